package proxy

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_proxy_requests_total",
			Help: "Total proxied requests by service and response status.",
		},
		[]string{"service", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_proxy_request_duration_seconds",
			Help:    "End-to-end proxied request duration in seconds, including retries.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	forwardErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_proxy_errors_total",
			Help: "Requests answered with a gateway error envelope, by error code.",
		},
		[]string{"service", "code"},
	)
)

func recordRequest(service string, status int, elapsed time.Duration) {
	requestsTotal.WithLabelValues(service, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(service).Observe(elapsed.Seconds())
}

func recordForwardError(service, code string) {
	forwardErrors.WithLabelValues(service, code).Inc()
}
