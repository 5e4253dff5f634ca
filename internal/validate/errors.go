package validate

import (
	"errors"
	"fmt"
)

// Standard errors returned by the validation client.
var (
	// ErrDisabled indicates validation is disabled by configuration.
	ErrDisabled = errors.New("guardrail validation disabled")

	// ErrResourceNotOpen indicates the resource has not been opened.
	ErrResourceNotOpen = errors.New("resource not open")

	// ErrStaleResult indicates a result arrived for a superseded or
	// withdrawn request and was discarded. Not user-visible.
	ErrStaleResult = errors.New("stale validation result")

	// ErrUnavailable indicates validation could not be completed after
	// exhausting the retry budget.
	ErrUnavailable = errors.New("validation unavailable")

	// ErrShutdown indicates the client has been shut down.
	ErrShutdown = errors.New("validation client shut down")
)

// ConfigError indicates missing or invalid configuration. It is reported
// immediately and never retried.
type ConfigError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Reason)
}

// AuthError indicates the service rejected the supplied credentials.
// The connection is marked Disconnected and no automatic retry is
// scheduled, since the cause is not transient.
type AuthError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authentication rejected (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("authentication rejected (%d)", e.StatusCode)
}

// TransientError indicates a failure worth retrying with backoff: a
// timeout, a connection failure, rate limiting, or a 5xx response.
type TransientError struct {
	StatusCode int // zero for transport-level failures
	Err        error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient failure (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient failure: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// RequestError indicates the service rejected the request as malformed.
// Not retryable; usually a client bug or a contract mismatch.
type RequestError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return fmt.Sprintf("request rejected (%d): %s", e.StatusCode, e.Message)
}

// MalformedResponseError indicates a success response whose payload could
// not be parsed into the expected violation shape. Reported once, treated
// as a request failure, and never committed to the cache.
type MalformedResponseError struct {
	Reason string
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed validation response: %s", e.Reason)
}

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
