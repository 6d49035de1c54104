package provider

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError reports a missing or malformed input field, detected
// before any network call. Always terminal.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("validation: %s is required", e.Field)
}

// TransientError wraps a network-level failure (connection reset, timeout,
// refused, 5xx) that is safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// ProviderError reports a terminal provider-side failure; the message is
// surfaced verbatim, prefixed with any provider error code.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// TimeoutError marks a job that exhausted its total elapsed-time budget.
type TimeoutError struct {
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: no result after %s", e.Elapsed)
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
