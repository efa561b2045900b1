package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var panicsRecovered = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "gateway_panics_recovered_total",
		Help: "Total number of handler panics recovered by the middleware.",
	},
)
