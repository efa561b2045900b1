package retry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

var (
	// retryAttemptsTotal counts individual attempts by outcome.
	retryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_retry_attempts_total",
			Help: "Total number of attempts executed under the retry policy",
		},
		[]string{"name", "outcome"},
	)

	// retriesExhaustedTotal counts terminal retry failures.
	retriesExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_retries_exhausted_total",
			Help: "Total number of operations that returned a terminal failure",
		},
		[]string{"name"},
	)
)

func recordAttempt(name, outcome string) {
	retryAttemptsTotal.WithLabelValues(name, outcome).Inc()
}

func recordExhausted(name string) {
	retriesExhaustedTotal.WithLabelValues(name).Inc()
}
