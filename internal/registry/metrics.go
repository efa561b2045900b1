package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	probesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_health_probes_total",
			Help: "Total number of health probes by service and result.",
		},
		[]string{"service", "result"},
	)

	probeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_health_probe_duration_seconds",
			Help:    "Health probe round-trip time in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	probesDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_health_probes_discarded_total",
			Help: "Probes whose result was discarded because a newer probe already completed.",
		},
		[]string{"service"},
	)

	serviceHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_service_healthy",
			Help: "Whether the most recent applied probe for the service succeeded (1) or failed (0).",
		},
		[]string{"service"},
	)
)

const (
	resultHealthy   = "healthy"
	resultUnhealthy = "unhealthy"
)

// recordProbe updates probe metrics for one completed probe. The health
// gauge only moves when the probe's result was applied to the record.
func recordProbe(service string, record HealthRecord, applied bool) {
	result := resultUnhealthy
	if record.Status == StatusHealthy {
		result = resultHealthy
	}

	probesTotal.WithLabelValues(service, result).Inc()
	probeDuration.WithLabelValues(service).Observe(record.LastResponseTime.Seconds())

	if !applied {
		probesDiscarded.WithLabelValues(service).Inc()
		return
	}

	value := 0.0
	if record.Status == StatusHealthy {
		value = 1.0
	}
	serviceHealthy.WithLabelValues(service).Set(value)
}
