package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fastConfig() *Config {
	return &Config{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		Multiplier:    2,
		MaxDelay:      10 * time.Millisecond,
		DisableJitter: true,
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.InitialDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.Equal(t, 30*time.Second, cfg.MaxDelay)
	assert.True(t, cfg.JitterEnabled())
}

func TestConfig_Getters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		cfg         *Config
		maxAttempts int
		delay       time.Duration
		multiplier  float64
	}{
		{"nil config", nil, 3, time.Second, 2.0},
		{"zero values", &Config{}, 3, time.Second, 2.0},
		{"custom values", &Config{MaxAttempts: 5, InitialDelay: 50 * time.Millisecond, Multiplier: 3}, 5, 50 * time.Millisecond, 3.0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.maxAttempts, tt.cfg.GetMaxAttempts())
			assert.Equal(t, tt.delay, tt.cfg.GetInitialDelay())
			assert.Equal(t, tt.multiplier, tt.cfg.GetMultiplier())
		})
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_PermanentFailureInvokesExactlyMaxAttempts(t *testing.T) {
	t.Parallel()

	for _, maxAttempts := range []int{1, 2, 3, 5} {
		cfg := fastConfig()
		cfg.MaxAttempts = maxAttempts

		calls := 0
		err := Do(context.Background(), cfg, func(ctx context.Context) error {
			calls++
			return errBoom
		}, nil)

		require.Error(t, err)
		assert.Equal(t, maxAttempts, calls)

		ee, ok := IsExhausted(err)
		require.True(t, ok)
		assert.Equal(t, maxAttempts, ee.Attempts)
		assert.ErrorIs(t, err, errBoom)
	}
}

func TestDo_EventualSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ShouldRetryFalseStopsAfterOneInvocation(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		return errBoom
	}, &Options{
		ShouldRetry: func(err error, attempt int) bool { return false },
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)

	ee, ok := IsExhausted(err)
	require.True(t, ok)
	assert.Equal(t, 1, ee.Attempts)
}

func TestDo_OnRetryObservesEachScheduledRetry(t *testing.T) {
	t.Parallel()

	type retryEvent struct {
		attempt int
		delay   time.Duration
	}

	var events []retryEvent
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		return errBoom
	}, &Options{
		OnRetry: func(err error, attempt int, delay time.Duration) {
			assert.ErrorIs(t, err, errBoom)
			events = append(events, retryEvent{attempt, delay})
		},
	})

	require.Error(t, err)
	// 3 attempts means 2 retries were scheduled.
	require.Len(t, events, 2)
	assert.Equal(t, 1, events[0].attempt)
	assert.Equal(t, 2, events[1].attempt)
	assert.GreaterOrEqual(t, events[1].delay, events[0].delay)
}

func TestDo_ContextCancellationDuringSleep(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.InitialDelay = time.Minute
	cfg.MaxDelay = time.Minute

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, cfg, func(ctx context.Context) error {
			calls++
			return errBoom
		}, nil)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

func TestDo_PerAttemptTimeout(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.MaxAttempts = 2
	cfg.PerAttemptTimeout = 10 * time.Millisecond

	calls := 0
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExhaustedError(t *testing.T) {
	t.Parallel()

	err := &ExhaustedError{Attempts: 4, Err: errBoom}
	assert.Contains(t, err.Error(), "4 attempt(s)")
	assert.ErrorIs(t, err, errBoom)

	_, ok := IsExhausted(errBoom)
	assert.False(t, ok)
}
