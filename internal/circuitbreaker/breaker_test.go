package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend failed")

func testConfig() *Config {
	return &Config{
		WindowSize:       10,
		FailureThreshold: 0.5,
		MinimumSamples:   10,
		Cooldown:         20 * time.Millisecond,
		HalfOpenMax:      1,
	}
}

// tripBreaker drives the breaker to the open state.
func tripBreaker(t *testing.T, cb *CircuitBreaker) {
	t.Helper()
	for i := 0; i < 10; i++ {
		cb.RecordFailure()
	}
	require.Equal(t, StateOpen, cb.State())
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := &Config{WindowSize: -1, FailureThreshold: 2, MinimumSamples: 0, Cooldown: 0, HalfOpenMax: 0}
	cfg.Validate()

	assert.Equal(t, 10, cfg.WindowSize)
	assert.Equal(t, 0.5, cfg.FailureThreshold)
	assert.Equal(t, 10, cfg.MinimumSamples)
	assert.Equal(t, 30*time.Second, cfg.Cooldown)
	assert.Equal(t, 1, cfg.HalfOpenMax)
}

func TestConfig_Validate_ClampsMinimumSamplesToWindow(t *testing.T) {
	t.Parallel()

	cfg := &Config{WindowSize: 5, MinimumSamples: 20, FailureThreshold: 0.5, Cooldown: time.Second, HalfOpenMax: 1}
	cfg.Validate()
	assert.Equal(t, 5, cfg.MinimumSamples)
}

func TestBreaker_StaysClosedBelowMinimumSamples(t *testing.T) {
	t.Parallel()

	cb := New("order-service", testConfig(), nil)

	// 9 failures out of 9 is a 100% ratio but below the sample floor.
	for i := 0; i < 9; i++ {
		cb.RecordFailure()
	}
	assert.Equal(t, StateClosed, cb.State())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
}

func TestBreaker_OpensAtThresholdRatio(t *testing.T) {
	t.Parallel()

	cb := New("order-service", testConfig(), nil)

	// 5 failures and 5 successes: ratio exactly 0.5 over 10 samples.
	for i := 0; i < 5; i++ {
		cb.RecordSuccess()
		cb.RecordFailure()
	}

	assert.Equal(t, StateOpen, cb.State())
}

func TestBreaker_StaysClosedBelowThreshold(t *testing.T) {
	t.Parallel()

	cb := New("order-service", testConfig(), nil)

	// 4 failures out of 10: ratio 0.4, below the 0.5 threshold.
	for i := 0; i < 6; i++ {
		cb.RecordSuccess()
	}
	for i := 0; i < 4; i++ {
		cb.RecordFailure()
	}

	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_SlidingWindowEvictsOldOutcomes(t *testing.T) {
	t.Parallel()

	cb := New("order-service", testConfig(), nil)

	// Fill the window with failures short of tripping, then push
	// successes so the old failures slide out.
	for i := 0; i < 9; i++ {
		cb.RecordFailure()
	}
	for i := 0; i < 9; i++ {
		cb.RecordSuccess()
	}

	stats := cb.Stats()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 10, stats.Samples)
	assert.Equal(t, 1, stats.Failures)
}

func TestBreaker_OpenRejectsWithoutCallingOperation(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Cooldown = time.Hour
	cb := New("order-service", cfg, nil)
	tripBreaker(t, cb)

	calls := 0
	for i := 0; i < 5; i++ {
		err := cb.Execute(context.Background(), func(ctx context.Context) error {
			calls++
			return nil
		})
		assert.ErrorIs(t, err, ErrCircuitOpen)
	}

	assert.Zero(t, calls)
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	t.Parallel()

	cb := New("order-service", testConfig(), nil)
	tripBreaker(t, cb)

	time.Sleep(30 * time.Millisecond)

	require.NoError(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	t.Parallel()

	cb := New("order-service", testConfig(), nil)
	tripBreaker(t, cb)

	time.Sleep(30 * time.Millisecond)

	err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
	assert.Zero(t, cb.Stats().Samples)
}

func TestBreaker_HalfOpenFailureReopensAndRestartsCooldown(t *testing.T) {
	t.Parallel()

	cb := New("order-service", testConfig(), nil)
	tripBreaker(t, cb)
	firstOpen := cb.Stats().OpenedAt

	time.Sleep(30 * time.Millisecond)

	err := cb.Execute(context.Background(), func(ctx context.Context) error { return errBackend })
	require.ErrorIs(t, err, errBackend)
	require.Equal(t, StateOpen, cb.State())
	assert.True(t, cb.Stats().OpenedAt.After(firstOpen))

	// Cooldown restarted: immediately rejected again.
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestBreaker_HalfOpenBoundsConcurrentTrials(t *testing.T) {
	t.Parallel()

	cb := New("order-service", testConfig(), nil)
	tripBreaker(t, cb)

	time.Sleep(30 * time.Millisecond)

	require.NoError(t, cb.Allow())
	assert.ErrorIs(t, cb.Allow(), ErrTooManyTrials)
}

func TestBreaker_IsSuccessfulOverride(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.IsSuccessful = func(err error) bool { return true }
	cb := New("order-service", cfg, nil)

	for i := 0; i < 20; i++ {
		err := cb.Execute(context.Background(), func(ctx context.Context) error { return errBackend })
		assert.ErrorIs(t, err, errBackend)
	}

	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_OnStateChangeCallback(t *testing.T) {
	t.Parallel()

	transitions := make(chan [2]State, 4)
	cfg := testConfig()
	cfg.OnStateChange = func(name string, from, to State) {
		transitions <- [2]State{from, to}
	}

	cb := New("order-service", cfg, nil)
	tripBreaker(t, cb)

	select {
	case tr := <-transitions:
		assert.Equal(t, StateClosed, tr[0])
		assert.Equal(t, StateOpen, tr[1])
	case <-time.After(time.Second):
		t.Fatal("state change callback not invoked")
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	cb := New("order-service", testConfig(), nil)
	tripBreaker(t, cb)

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Zero(t, cb.Stats().Samples)
	assert.NoError(t, cb.Allow())
}

func TestBreaker_ConcurrentOutcomes(t *testing.T) {
	t.Parallel()

	cb := New("order-service", testConfig(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(fail bool) {
			defer wg.Done()
			if fail {
				cb.RecordFailure()
			} else {
				cb.RecordSuccess()
			}
		}(i%2 == 0)
	}
	wg.Wait()

	// No panic and a consistent window regardless of state.
	stats := cb.Stats()
	assert.LessOrEqual(t, stats.Failures, stats.Samples)
	assert.LessOrEqual(t, stats.Samples, 10)
}

func TestIsRejection(t *testing.T) {
	t.Parallel()

	assert.True(t, IsRejection(ErrCircuitOpen))
	assert.True(t, IsRejection(ErrTooManyTrials))
	assert.False(t, IsRejection(errBackend))
	assert.False(t, IsRejection(nil))
}
