package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// TransientError marks a downstream failure worth retrying: network
// timeouts, connection resets, 429/503-equivalents. Services wrap causes
// with Transient to opt into the gateway's retry loop.
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Cause) }

// Unwrap returns the underlying cause.
func (e *TransientError) Unwrap() error { return e.Cause }

// Transient wraps err as a TransientError.
func Transient(err error) error { return &TransientError{Cause: err} }

// PermanentError marks a downstream failure that retrying cannot fix
// (malformed request, unknown resource). Surfaced immediately.
type PermanentError struct {
	Cause error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("permanent: %v", e.Cause) }

// Unwrap returns the underlying cause.
func (e *PermanentError) Unwrap() error { return e.Cause }

// Permanent wraps err as a PermanentError.
func Permanent(err error) error { return &PermanentError{Cause: err} }

// AuthorizationError marks a credential or permission failure. Never
// retried; retrying with the same credentials cannot succeed.
type AuthorizationError struct {
	Service   string
	Operation string
	Cause     error
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization failed for %s.%s: %v", e.Service, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *AuthorizationError) Unwrap() error { return e.Cause }

// UnknownServiceError reports an invoke against a service or operation that
// was never registered. A configuration defect, not a runtime condition.
type UnknownServiceError struct {
	Service   string
	Operation string
}

func (e *UnknownServiceError) Error() string {
	if e.Operation == "" {
		return fmt.Sprintf("service %q not registered", e.Service)
	}
	return fmt.Sprintf("operation %q not registered on service %q", e.Operation, e.Service)
}

// ExternalServiceError is raised when the retry budget for a transient
// failure is exhausted.
type ExternalServiceError struct {
	Service   string
	Operation string
	Attempts  int
	Cause     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s.%s failed after %d attempts: %v", e.Service, e.Operation, e.Attempts, e.Cause)
}

// Unwrap returns the last underlying cause.
func (e *ExternalServiceError) Unwrap() error { return e.Cause }

// IsTransient reports whether an error coming out of Invoke may succeed on
// a later call. Exhausted retries (ExternalServiceError) count as transient:
// the gateway gave up for now, but the caller may replay the triggering
// event once the downstream recovers.
func IsTransient(err error) bool {
	var exhausted *ExternalServiceError
	if errors.As(err, &exhausted) {
		return true
	}
	return isRetryable(err)
}

// isRetryable decides whether an attempt error should enter the backoff
// loop. Explicit TransientError wins; plain network timeouts are treated as
// transient too so services built on net/http need no extra wrapping.
// Context cancellation is never retryable: the caller gave up.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	var authz *AuthorizationError
	if errors.As(err, &authz) {
		return false
	}
	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
