package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/whiskermap/go-catmap-backend/internal/aws"
	"github.com/whiskermap/go-catmap-backend/internal/config"
	"github.com/whiskermap/go-catmap-backend/internal/logger"
)

func main() {
	cfg := config.Load()
	zlog := logger.New(cfg.LogLevel)
	defer zlog.Sync()

	clients, err := aws.NewAWSClients(context.Background(), cfg.AWSRegion)
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	p := NewProcessor(clients.DynamoDB, cfg, zlog)

	// If RUN_LOCAL=true, simulate a single SQS event for local testing.
	if cfg.RunLocal {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"kind":"cat_counters","cat_id":"local-cat-1"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{Body: testBody},
			},
		}
		if err := p.Handle(context.Background(), event); err != nil {
			log.Fatalf("local handler error: %v", err)
		}
		return
	}

	lambda.Start(p.Handle)
}
