// Package core centralizes the failure taxonomy shared by every component.
// Services return these sentinels (usually wrapped); the HTTP layer maps
// them onto status codes.
package core

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

var (
	// ErrValidation indicates malformed caller input. Never retried.
	ErrValidation = errors.New("invalid input")

	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when a lifecycle transition is attempted
	// from a state that does not allow it (e.g. re-moderating a cat).
	ErrInvalidState = errors.New("invalid state transition")

	// ErrConflict indicates a uniqueness violation. This is a normal,
	// expected outcome (a duplicate treat, a replayed visit), not a crash.
	ErrConflict = errors.New("already exists")

	// Token redemption failures. The caller must re-issue a token.
	ErrTokenNotFound    = errors.New("token not found")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenAlreadyUsed = errors.New("token already used")

	// ErrStorageUnavailable marks a transient backend failure. Idempotent
	// operations are safe to retry with backoff.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// transient DynamoDB error codes that map to ErrStorageUnavailable.
var retryableCodes = map[string]bool{
	"ProvisionedThroughputExceededException": true,
	"ThrottlingException":                    true,
	"RequestLimitExceeded":                   true,
	"InternalServerError":                    true,
	"ServiceUnavailable":                     true,
}

// WrapStorage wraps a raw storage error, translating transient backend
// failures into ErrStorageUnavailable so callers can test with errors.Is.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae smithy.APIError
	if errors.As(err, &ae) && retryableCodes[ae.ErrorCode()] {
		return fmt.Errorf("%s: %w: %s", op, ErrStorageUnavailable, ae.ErrorCode())
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Retryable reports whether err is safe to retry with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
