package aws

import (
	"context"
	"testing"
)

func TestLoadAWSConfig_UsesGivenRegion(t *testing.T) {
	cfg, err := LoadAWSConfig(context.Background(), "eu-west-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Region != "eu-west-1" {
		t.Fatalf("expected region 'eu-west-1', got %s", cfg.Region)
	}
}
