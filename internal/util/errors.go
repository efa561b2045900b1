// Package util provides shared utility types for the gateway.
//
// # Error Conventions
//
// This project follows a standardized error pattern across all packages:
//
//   - Sentinel errors (errors.New) for well-known, stable conditions
//     that callers check with errors.Is(). Example: ErrNotFound.
//   - Structured error types for context-rich errors that carry
//     additional fields (e.g., StatusError). Each type implements
//     Error(), Unwrap() (if wrapping), and Is().
//   - fmt.Errorf with %w for ad-hoc wrapping that adds context to an
//     existing error without introducing a new type.
package util

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Common sentinel errors.
var (
	ErrNotFound       = errors.New("not found")
	ErrTimeout        = errors.New("timeout")
	ErrBackendUnavail = errors.New("backend unavailable")
	ErrConfigInvalid  = errors.New("invalid configuration")
)

// StatusError signals that a backend responded with a status code the
// gateway treats as a failure (5xx or 429). It lets the retry and
// circuit breaker layers see HTTP-level failures as errors without
// inspecting the response.
type StatusError struct {
	StatusCode int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// Is checks if the error matches the target.
func (e *StatusError) Is(target error) bool {
	var se *StatusError
	if errors.As(target, &se) {
		return se.StatusCode == e.StatusCode
	}
	return false
}

// NewStatusError creates a StatusError for the given status code.
func NewStatusError(statusCode int) *StatusError {
	return &StatusError{StatusCode: statusCode}
}

// StatusCodeFromError extracts the status code from a StatusError,
// returning 0 if the error is not status-based.
func StatusCodeFromError(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// IsTimeout reports whether the error represents an exceeded deadline,
// either at the transport level or via context cancellation.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
