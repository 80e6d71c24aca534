package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestWrapStorage_TranslatesTransientCodes(t *testing.T) {
	codes := []string{
		"ProvisionedThroughputExceededException",
		"ThrottlingException",
		"RequestLimitExceeded",
		"InternalServerError",
		"ServiceUnavailable",
	}
	for _, code := range codes {
		err := WrapStorage("put cat", &smithy.GenericAPIError{Code: code})
		assert.ErrorIs(t, err, ErrStorageUnavailable, code)
		assert.True(t, Retryable(err), code)
	}
}

func TestWrapStorage_PassesThroughOtherErrors(t *testing.T) {
	raw := &smithy.GenericAPIError{Code: "AccessDeniedException"}
	err := WrapStorage("put cat", raw)
	assert.NotErrorIs(t, err, ErrStorageUnavailable)
	assert.False(t, Retryable(err))

	// the original API error stays reachable for callers that classify it
	var ae smithy.APIError
	assert.True(t, errors.As(err, &ae))

	assert.NoError(t, WrapStorage("put cat", nil))
}

func TestRetryable_OnlyStorageUnavailable(t *testing.T) {
	assert.True(t, Retryable(fmt.Errorf("query: %w", ErrStorageUnavailable)))
	assert.False(t, Retryable(fmt.Errorf("put: %w", ErrConflict)))
	assert.False(t, Retryable(nil))
}
