package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"

	"github.com/tradepulse/gateway/internal/util"
)

// HTTPRetryable reports whether an error from a proxied HTTP call is
// safe to retry: 5xx and 429 responses, connection-level failures
// (refused, reset, DNS, closed connection), and attempt timeouts.
// Other 4xx responses are never retried.
func HTTPRetryable(err error) bool {
	if err == nil {
		return false
	}

	if code := util.StatusCodeFromError(err); code != 0 {
		return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
	}

	return isConnectionError(err)
}

// ShouldRetryHTTP adapts HTTPRetryable to the policy predicate shape.
func ShouldRetryHTTP(err error, _ int) bool {
	return HTTPRetryable(err)
}

// NeverRetry is a predicate that stops after the first failure.
func NeverRetry(_ error, _ int) bool {
	return false
}

// isConnectionError classifies transport-level failures as transient.
func isConnectionError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout() || isConnectionError(urlErr.Err)
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	return false
}
