package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tradepulse/gateway/internal/circuitbreaker"
	"github.com/tradepulse/gateway/internal/registry"
	"github.com/tradepulse/gateway/internal/retry"
	"github.com/tradepulse/gateway/internal/util"
)

// Error codes returned to clients in the error envelope.
const (
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeCircuitOpen        = "CIRCUIT_OPEN"
	CodeUpstreamTimeout    = "UPSTREAM_TIMEOUT"
	CodeNotFound           = "NOT_FOUND"
)

// errBackendUnhealthy is returned by the health gate before any call is
// attempted.
var errBackendUnhealthy = errors.New("backend is unhealthy")

// ErrorDetail is the code and message inside the error envelope.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEnvelope is the uniform error payload returned by the gateway
// when it cannot deliver a backend response.
type ErrorEnvelope struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	Timestamp time.Time   `json:"timestamp"`
}

func newErrorEnvelope(code, message string) ErrorEnvelope {
	return ErrorEnvelope{
		Success:   false,
		Error:     ErrorDetail{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
	}
}

// writeError sends the error envelope with the given status.
func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, newErrorEnvelope(code, message))
}

// classifyError maps a forwarding failure onto an HTTP status and error
// code for the client envelope. Retry exhaustion is unwrapped so the
// classification reflects the last underlying failure.
func classifyError(service string, err error) (status int, code, message string) {
	if exhausted, ok := retry.IsExhausted(err); ok {
		err = exhausted.Unwrap()
	}

	switch {
	case errors.Is(err, registry.ErrServiceNotFound):
		return http.StatusNotFound, CodeNotFound,
			fmt.Sprintf("unknown service %q", service)

	case circuitbreaker.IsRejection(err):
		return http.StatusServiceUnavailable, CodeCircuitOpen,
			fmt.Sprintf("service %q is temporarily unavailable (circuit open)", service)

	case util.IsTimeout(err):
		return http.StatusGatewayTimeout, CodeUpstreamTimeout,
			fmt.Sprintf("service %q did not respond in time", service)

	case errors.Is(err, errBackendUnhealthy):
		return http.StatusServiceUnavailable, CodeServiceUnavailable,
			fmt.Sprintf("service %q is unhealthy", service)

	default:
		return http.StatusServiceUnavailable, CodeServiceUnavailable,
			fmt.Sprintf("service %q is unavailable", service)
	}
}
