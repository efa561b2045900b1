// Package retry provides exponential backoff retry functionality for
// calls to backend services.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tradepulse/gateway/internal/observability"
)

// Default retry configuration constants.
const (
	// DefaultMaxAttempts is the default total number of attempts.
	DefaultMaxAttempts = 3

	// DefaultInitialDelay is the default delay before the first retry.
	DefaultInitialDelay = time.Second

	// DefaultMultiplier is the default exponential backoff multiplier.
	DefaultMultiplier = 2.0

	// DefaultMaxDelay is the default cap on the computed delay.
	DefaultMaxDelay = 30 * time.Second
)

// Config contains retry configuration parameters.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Default is 3.
	MaxAttempts int

	// InitialDelay is the delay before the first retry. Default is 1s.
	InitialDelay time.Duration

	// Multiplier is the exponential backoff multiplier. Default is 2.
	Multiplier float64

	// MaxDelay caps the computed delay. Default is 30s.
	MaxDelay time.Duration

	// DisableJitter turns off the uniform [0.75, 1.25] jitter factor.
	// Jitter is on by default.
	DisableJitter bool

	// PerAttemptTimeout bounds each individual attempt. Zero means the
	// attempt runs under the caller's context deadline only.
	PerAttemptTimeout time.Duration
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		Multiplier:   DefaultMultiplier,
		MaxDelay:     DefaultMaxDelay,
	}
}

// GetMaxAttempts returns the effective max attempts.
func (c *Config) GetMaxAttempts() int {
	if c == nil || c.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return c.MaxAttempts
}

// GetInitialDelay returns the effective initial delay.
func (c *Config) GetInitialDelay() time.Duration {
	if c == nil || c.InitialDelay <= 0 {
		return DefaultInitialDelay
	}
	return c.InitialDelay
}

// GetMultiplier returns the effective backoff multiplier.
func (c *Config) GetMultiplier() float64 {
	if c == nil || c.Multiplier <= 1 {
		return DefaultMultiplier
	}
	return c.Multiplier
}

// GetMaxDelay returns the effective delay cap.
func (c *Config) GetMaxDelay() time.Duration {
	if c == nil || c.MaxDelay <= 0 {
		return DefaultMaxDelay
	}
	return c.MaxDelay
}

// JitterEnabled reports whether jitter is applied to delays.
func (c *Config) JitterEnabled() bool {
	return c == nil || !c.DisableJitter
}

// RetryableFunc is an operation executed under the retry policy. The
// context carries the per-attempt deadline when one is configured.
type RetryableFunc func(ctx context.Context) error

// ShouldRetryFunc decides whether a failed attempt should be retried.
type ShouldRetryFunc func(err error, attempt int) bool

// OnRetryFunc observes each scheduled retry before its backoff sleep.
type OnRetryFunc func(err error, attempt int, delay time.Duration)

// Options contains optional retry behavior configuration.
type Options struct {
	// Name identifies the retry sequence in logs and metrics.
	Name string

	// ShouldRetry determines if an error should trigger a retry.
	// If nil, all errors are retried.
	ShouldRetry ShouldRetryFunc

	// OnRetry is called before each retry attempt.
	OnRetry OnRetryFunc

	// Logger for logging retry attempts.
	Logger observability.Logger
}

// ExhaustedError is the terminal error returned when an operation keeps
// failing. It carries the number of attempts made and the last
// underlying error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempt(s): %v", e.Attempts, e.Err)
}

// Unwrap returns the last underlying error.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// IsExhausted reports whether the error is a terminal retry failure and
// returns it when so.
func IsExhausted(err error) (*ExhaustedError, bool) {
	var ee *ExhaustedError
	ok := errors.As(err, &ee)
	return ee, ok
}

// Do executes fn under the retry policy. On success it returns nil. On
// terminal failure it returns an *ExhaustedError carrying the attempt
// count and the last underlying error; a context cancellation surfaces
// as the context error.
//
// Each call owns its backoff timers, so concurrent retry sequences
// never serialize on one another.
func Do(ctx context.Context, cfg *Config, fn RetryableFunc, opts *Options) error {
	maxAttempts := cfg.GetMaxAttempts()

	name := "default"
	var logger observability.Logger = observability.NopLogger()
	if opts != nil {
		if opts.Name != "" {
			name = opts.Name
		}
		if opts.Logger != nil {
			logger = opts.Logger
		}
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = runAttempt(ctx, cfg, fn)
		if lastErr == nil {
			recordAttempt(name, outcomeSuccess)
			return nil
		}
		recordAttempt(name, outcomeFailure)

		if attempt >= maxAttempts || !shouldRetry(opts, lastErr, attempt) {
			recordExhausted(name)
			return &ExhaustedError{Attempts: attempt, Err: lastErr}
		}

		delay := Delay(cfg, attempt)

		if opts != nil && opts.OnRetry != nil {
			opts.OnRetry(lastErr, attempt, delay)
		}

		logger.Debug("retrying operation",
			observability.String("name", name),
			observability.Int("attempt", attempt),
			observability.Int("max_attempts", maxAttempts),
			observability.Duration("delay", delay),
			observability.Error(lastErr),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// runAttempt executes one attempt, applying the per-attempt timeout.
func runAttempt(ctx context.Context, cfg *Config, fn RetryableFunc) error {
	if cfg == nil || cfg.PerAttemptTimeout <= 0 {
		return fn(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, cfg.PerAttemptTimeout)
	defer cancel()
	return fn(attemptCtx)
}

func shouldRetry(opts *Options, err error, attempt int) bool {
	if opts == nil || opts.ShouldRetry == nil {
		return true
	}
	return opts.ShouldRetry(err, attempt)
}
