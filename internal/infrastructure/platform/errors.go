package platform

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a failed platform call. Callers branch on the kind,
// never on status codes or error text.
type ErrorKind string

const (
	// KindAuthExpired means the access token was rejected (401). Never
	// retried; the tenant needs to reconnect.
	KindAuthExpired ErrorKind = "auth_expired"
	// KindPermissionDenied means the app lacks a scope (403). Never retried.
	KindPermissionDenied ErrorKind = "permission_denied"
	// KindRateLimited means the platform's leaky bucket rejected the call
	// (429). Retried with a longer bounded backoff.
	KindRateLimited ErrorKind = "rate_limited"
	// KindNetworkTransient covers connection and timeout failures. Retried
	// with a short linear backoff.
	KindNetworkTransient ErrorKind = "network_transient"
	// KindPlatformError covers every other 4xx/5xx. Never retried.
	KindPlatformError ErrorKind = "platform_error"
)

// Error is the classified result of a failed platform call.
type Error struct {
	Kind         ErrorKind
	Status       int
	Message      string
	MissingScope string
	RetryAfter   time.Duration
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("platform: %s (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("platform: %s: %s", e.Kind, e.Message)
}

// Retryable reports whether the retry policy may re-attempt this error.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindNetworkTransient
}

// AsError unwraps a classified platform error from err.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsKind reports whether err is a platform error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	pe, ok := AsError(err)
	return ok && pe.Kind == kind
}
