// Package quickbooks talks to the QuickBooks Online API: OAuth2 token
// lifecycle (tokens.go) and the authenticated REST client (client.go).
package quickbooks

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared across the sync engine.
var (
	// ErrReauthRequired means the refresh token has been rejected or revoked.
	// Callers must not retry; an operator has to reconnect the company.
	ErrReauthRequired = errors.New("quickbooks: reauthorization required")

	// ErrNotConnected means no QuickBooks company has been connected yet.
	ErrNotConnected = errors.New("quickbooks: not connected")
)

// APIError is a non-retryable request failure (HTTP 400/403), carrying the
// fault code and detail parsed from the QuickBooks error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("quickbooks: %s (code %s, http %d): %s", e.Message, e.Code, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("quickbooks: %s (code %s, http %d)", e.Message, e.Code, e.StatusCode)
}

// TransientError is a retryable failure: network error, HTTP 5xx, or a rate
// limit response. The client retries these internally with backoff and only
// returns one after exhausting its attempts.
type TransientError struct {
	Cause      error
	StatusCode int
	RetryAfter time.Duration
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("quickbooks: transient failure (http %d): %v", e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("quickbooks: transient failure: %v", e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// IsRetryable reports whether an error may succeed on a later attempt.
func IsRetryable(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
