package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// breakerState shows the current state per backend
	// (0=closed, 1=open, 2=half-open).
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"backend"},
	)

	// breakerAdmissionsTotal counts admission decisions.
	breakerAdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_circuit_breaker_admissions_total",
			Help: "Total admission decisions made by circuit breakers",
		},
		[]string{"backend", "decision"},
	)

	// breakerOutcomesTotal counts call outcomes recorded by breakers.
	breakerOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_circuit_breaker_outcomes_total",
			Help: "Total call outcomes recorded by circuit breakers",
		},
		[]string{"backend", "outcome"},
	)

	// breakerTransitionsTotal counts state transitions.
	breakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_circuit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"backend", "from", "to"},
	)
)

func setStateGauge(name string, state State) {
	breakerState.WithLabelValues(name).Set(float64(state))
}

func recordAdmission(name string, allowed bool) {
	decision := "rejected"
	if allowed {
		decision = "allowed"
	}
	breakerAdmissionsTotal.WithLabelValues(name, decision).Inc()
}

func recordOutcome(name string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	breakerOutcomesTotal.WithLabelValues(name, outcome).Inc()
}

func recordStateChange(name string, from, to State) {
	breakerTransitionsTotal.WithLabelValues(name, from.String(), to.String()).Inc()
	setStateGauge(name, to)
}
