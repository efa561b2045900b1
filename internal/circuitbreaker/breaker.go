package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tradepulse/gateway/internal/observability"
)

// State represents the state of a circuit breaker.
type State int

const (
	// StateClosed indicates the circuit is closed and calls pass through.
	StateClosed State = iota

	// StateOpen indicates the circuit is open and calls are rejected.
	StateOpen

	// StateHalfOpen indicates the circuit is probing the backend.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker rejects a call
// without attempting it.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrTooManyTrials is returned when the half-open trial budget is
// exhausted by concurrent callers.
var ErrTooManyTrials = errors.New("too many trial calls in half-open state")

// IsRejection reports whether the error means the breaker refused the
// call without reaching the backend.
func IsRejection(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyTrials)
}

// CircuitBreaker guards calls to a single backend. Outcomes are tracked
// over a sliding window of the most recent calls; when the failure
// ratio crosses the configured threshold the circuit opens and calls
// fail fast until a cooldown elapses.
type CircuitBreaker struct {
	name   string
	config *Config
	logger observability.Logger

	mu    sync.RWMutex
	state State

	// Sliding window of the last WindowSize outcomes (true = failure).
	window   []bool
	windowAt int
	samples  int
	failures int

	halfOpenInFlight int

	openedAt        time.Time
	lastStateChange time.Time
}

// New creates a circuit breaker for the named backend.
func New(name string, config *Config, logger observability.Logger) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	config.Validate()

	if logger == nil {
		logger = observability.NopLogger()
	}

	now := time.Now()
	cb := &CircuitBreaker{
		name:            name,
		config:          config,
		logger:          logger,
		state:           StateClosed,
		window:          make([]bool, config.WindowSize),
		lastStateChange: now,
	}
	setStateGauge(name, StateClosed)
	return cb
}

// Execute runs fn under circuit breaker protection. When the circuit is
// open the call is rejected with ErrCircuitOpen before fn is invoked.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.Allow(); err != nil {
		return err
	}

	err := fn(ctx)

	if cb.isSuccessful(err) {
		cb.RecordSuccess()
	} else {
		cb.RecordFailure()
	}

	return err
}

// Allow checks whether a call may proceed. It returns nil when the call
// is admitted and a rejection error otherwise. Callers that use Allow
// directly must pair it with RecordSuccess or RecordFailure.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		recordAdmission(cb.name, true)
		return nil

	case StateOpen:
		if time.Since(cb.openedAt) >= cb.config.Cooldown {
			cb.transitionTo(StateHalfOpen)
			cb.halfOpenInFlight = 1
			recordAdmission(cb.name, true)
			return nil
		}
		recordAdmission(cb.name, false)
		return ErrCircuitOpen

	case StateHalfOpen:
		if cb.halfOpenInFlight < cb.config.HalfOpenMax {
			cb.halfOpenInFlight++
			recordAdmission(cb.name, true)
			return nil
		}
		recordAdmission(cb.name, false)
		return ErrTooManyTrials

	default:
		recordAdmission(cb.name, false)
		return ErrCircuitOpen
	}
}

// RecordSuccess records a successful call outcome.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	recordOutcome(cb.name, true)

	switch cb.state {
	case StateClosed:
		cb.push(false)

	case StateHalfOpen:
		// The trial call succeeded: the backend has recovered.
		cb.transitionTo(StateClosed)
	}
	// Outcomes that complete after the circuit opened are ignored.
}

// RecordFailure records a failed call outcome.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	recordOutcome(cb.name, false)

	switch cb.state {
	case StateClosed:
		cb.push(true)
		if cb.samples >= cb.config.MinimumSamples && cb.failureRatio() >= cb.config.FailureThreshold {
			cb.transitionTo(StateOpen)
		}

	case StateHalfOpen:
		// A failed trial re-opens the circuit and restarts the cooldown.
		cb.transitionTo(StateOpen)
	}
}

// push records one outcome into the sliding window.
func (cb *CircuitBreaker) push(failure bool) {
	evicted := cb.window[cb.windowAt]
	if cb.samples == len(cb.window) && evicted {
		cb.failures--
	}

	cb.window[cb.windowAt] = failure
	cb.windowAt = (cb.windowAt + 1) % len(cb.window)
	if cb.samples < len(cb.window) {
		cb.samples++
	}
	if failure {
		cb.failures++
	}
}

// failureRatio returns the ratio of failures in the current window.
func (cb *CircuitBreaker) failureRatio() float64 {
	if cb.samples == 0 {
		return 0
	}
	return float64(cb.failures) / float64(cb.samples)
}

// transitionTo moves the breaker to a new state. Must hold cb.mu.
func (cb *CircuitBreaker) transitionTo(newState State) {
	oldState := cb.state
	cb.state = newState
	now := time.Now()
	cb.lastStateChange = now
	if newState == StateOpen {
		cb.openedAt = now
	}

	cb.resetCounters()

	recordStateChange(cb.name, oldState, newState)

	cb.logger.Info("circuit breaker state changed",
		observability.String("backend", cb.name),
		observability.String("from", oldState.String()),
		observability.String("to", newState.String()),
	)

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(cb.name, oldState, newState)
	}
}

// resetCounters clears the window and half-open bookkeeping. Must hold cb.mu.
func (cb *CircuitBreaker) resetCounters() {
	for i := range cb.window {
		cb.window[i] = false
	}
	cb.windowAt = 0
	cb.samples = 0
	cb.failures = 0
	cb.halfOpenInFlight = 0
}

// isSuccessful determines whether an error counts as a success.
func (cb *CircuitBreaker) isSuccessful(err error) bool {
	if cb.config.IsSuccessful != nil {
		return cb.config.IsSuccessful(err)
	}
	return err == nil
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Name returns the backend name this breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Reset forces the breaker back to the closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateClosed {
		cb.transitionTo(StateClosed)
		return
	}
	cb.resetCounters()
}

// Stats holds a snapshot of circuit breaker statistics.
type Stats struct {
	State           State
	Samples         int
	Failures        int
	FailureRatio    float64
	OpenedAt        time.Time
	LastStateChange time.Time
}

// Stats returns a snapshot of the breaker's current statistics.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return Stats{
		State:           cb.state,
		Samples:         cb.samples,
		Failures:        cb.failures,
		FailureRatio:    cb.failureRatio(),
		OpenedAt:        cb.openedAt,
		LastStateChange: cb.lastStateChange,
	}
}
