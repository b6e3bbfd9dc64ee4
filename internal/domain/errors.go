package domain

import (
	"fmt"
	"time"
)

// ValidationError marks malformed caller input. Fatal to the request, never
// retried.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "missing or empty required field: " + e.Field
}

// ConsentDeniedError blocks a send on legal grounds. Surfaced to the caller,
// not retried.
type ConsentDeniedError struct {
	Phone  string
	Reason string
}

func (e *ConsentDeniedError) Error() string {
	return fmt.Sprintf("consent denied for %s: %s", e.Phone, e.Reason)
}

// RateLimitExceededError carries the violated window and when it resets.
// The caller may retry after ResetTime; the core does not auto-retry.
type RateLimitExceededError struct {
	LimitType string
	ResetTime time.Time
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded (%s window), resets at %s", e.LimitType, e.ResetTime.Format(time.RFC3339))
}

// GatewayError is a carrier send failure. Retryability is decided by the
// caller from the resulting message status.
type GatewayError struct {
	Code string
	Err  error
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway send failed (%s): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("gateway send failed: %v", e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }
