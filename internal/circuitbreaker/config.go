// Package circuitbreaker implements the circuit breaker pattern for
// backend services, preventing cascading failures when a backend is
// judged unhealthy.
package circuitbreaker

import (
	"time"
)

// Config holds configuration for a circuit breaker.
type Config struct {
	// WindowSize is the number of most recent call outcomes tracked
	// while the circuit is closed.
	WindowSize int

	// FailureThreshold is the failure ratio (0.0 to 1.0] at or above
	// which the circuit opens, once MinimumSamples outcomes are in the
	// window.
	FailureThreshold float64

	// MinimumSamples is the minimum number of recorded outcomes before
	// the failure ratio is evaluated. Prevents tripping on the first
	// few failures.
	MinimumSamples int

	// Cooldown is the duration the circuit stays open before a trial
	// call is permitted.
	Cooldown time.Duration

	// HalfOpenMax is the maximum number of trial calls admitted while
	// half-open.
	HalfOpenMax int

	// IsSuccessful decides whether an error counts as a success.
	// If nil, any non-nil error counts as a failure.
	IsSuccessful func(err error) bool

	// OnStateChange is called after each state transition.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns a Config with default values: the circuit opens
// at a 50% failure ratio over a 10-call window and stays open for 30s
// before admitting a single trial call.
func DefaultConfig() *Config {
	return &Config{
		WindowSize:       10,
		FailureThreshold: 0.5,
		MinimumSamples:   10,
		Cooldown:         30 * time.Second,
		HalfOpenMax:      1,
	}
}

// Validate normalizes the configuration, replacing out-of-range values
// with defaults.
func (c *Config) Validate() {
	if c.WindowSize < 1 {
		c.WindowSize = 10
	}
	if c.FailureThreshold <= 0 || c.FailureThreshold > 1 {
		c.FailureThreshold = 0.5
	}
	if c.MinimumSamples < 1 {
		c.MinimumSamples = 10
	}
	if c.MinimumSamples > c.WindowSize {
		c.MinimumSamples = c.WindowSize
	}
	if c.Cooldown < time.Millisecond {
		c.Cooldown = 30 * time.Second
	}
	if c.HalfOpenMax < 1 {
		c.HalfOpenMax = 1
	}
}
