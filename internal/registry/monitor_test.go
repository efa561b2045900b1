package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, m *Monitor, name string, want Status) {
	t.Helper()

	deadline := time.After(3 * time.Second)
	for {
		record, ok := m.Record(name)
		if ok && record.Status == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("backend %s never reached status %s (last: %+v)", name, want, record)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestMonitor_HealthyBackend(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	m := NewMonitor(
		[]ServiceDescriptor{{Name: "signal-service", BaseURL: backend.URL}},
		MonitorConfig{Interval: 20 * time.Millisecond, Timeout: time.Second},
	)
	m.Start(context.Background())
	defer m.Stop()

	waitForStatus(t, m, "signal-service", StatusHealthy)

	record, ok := m.Record("signal-service")
	require.True(t, ok)
	assert.Empty(t, record.LastError)
	assert.False(t, record.LastCheckedAt.IsZero())
	assert.True(t, m.IsHealthy("signal-service"))
}

func TestMonitor_Non2xxIsUnhealthy(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer backend.Close()

	m := NewMonitor(
		[]ServiceDescriptor{{Name: "order-service", BaseURL: backend.URL}},
		MonitorConfig{Interval: 20 * time.Millisecond, Timeout: time.Second},
	)
	m.Start(context.Background())
	defer m.Stop()

	waitForStatus(t, m, "order-service", StatusUnhealthy)

	record, _ := m.Record("order-service")
	assert.Equal(t, "unexpected status 500", record.LastError)
	assert.False(t, m.IsHealthy("order-service"))
}

func TestMonitor_TimedOutProbeIsUnhealthy(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer backend.Close()
	defer close(release)

	m := NewMonitor(
		[]ServiceDescriptor{{Name: "ml-service", BaseURL: backend.URL}},
		MonitorConfig{Interval: 20 * time.Millisecond, Timeout: 30 * time.Millisecond},
	)
	m.Start(context.Background())
	defer m.Stop()

	waitForStatus(t, m, "ml-service", StatusUnhealthy)

	record, _ := m.Record("ml-service")
	assert.NotEmpty(t, record.LastError)

	// The backend keeps hanging, so the record must stay unhealthy over
	// the following probe cycles; only a successful probe may flip it.
	for i := 0; i < 3; i++ {
		time.Sleep(50 * time.Millisecond)
		record, _ = m.Record("ml-service")
		assert.Equal(t, StatusUnhealthy, record.Status)
	}
}

func TestMonitor_UnreachableBackendIsUnhealthy(t *testing.T) {
	t.Parallel()

	m := NewMonitor(
		[]ServiceDescriptor{{Name: "sentiment-service", BaseURL: "http://127.0.0.1:1"}},
		MonitorConfig{Interval: 20 * time.Millisecond, Timeout: 200 * time.Millisecond},
	)
	m.Start(context.Background())
	defer m.Stop()

	waitForStatus(t, m, "sentiment-service", StatusUnhealthy)
}

func TestMonitor_RecoveryFlipsBackToHealthy(t *testing.T) {
	t.Parallel()

	var failing atomic.Bool
	failing.Store(true)

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	m := NewMonitor(
		[]ServiceDescriptor{{Name: "signal-service", BaseURL: backend.URL}},
		MonitorConfig{Interval: 20 * time.Millisecond, Timeout: time.Second},
	)
	m.Start(context.Background())
	defer m.Stop()

	waitForStatus(t, m, "signal-service", StatusUnhealthy)

	failing.Store(false)
	waitForStatus(t, m, "signal-service", StatusHealthy)
}

func TestMonitor_SlowProbeDoesNotDelayOtherBackends(t *testing.T) {
	t.Parallel()

	stuck := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-stuck
	}))
	defer slow.Close()
	defer close(stuck)

	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer fast.Close()

	m := NewMonitor(
		[]ServiceDescriptor{
			{Name: "slow", BaseURL: slow.URL},
			{Name: "fast", BaseURL: fast.URL},
		},
		MonitorConfig{Interval: 20 * time.Millisecond, Timeout: 5 * time.Second},
	)
	m.Start(context.Background())
	defer m.Stop()

	// The fast backend must turn healthy while the slow probe is still
	// hanging inside its own goroutine.
	waitForStatus(t, m, "fast", StatusHealthy)

	record, ok := m.Record("slow")
	require.True(t, ok)
	assert.Equal(t, StatusUnknown, record.Status)
}

func TestMonitor_StopHaltsProbing(t *testing.T) {
	t.Parallel()

	var probes atomic.Int64
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	m := NewMonitor(
		[]ServiceDescriptor{{Name: "order-service", BaseURL: backend.URL}},
		MonitorConfig{Interval: 10 * time.Millisecond, Timeout: time.Second},
	)
	m.Start(context.Background())
	waitForStatus(t, m, "order-service", StatusHealthy)

	m.Stop()
	m.Stop() // idempotent

	// Any already-launched probe may still land; afterwards the count
	// must stay flat.
	time.Sleep(30 * time.Millisecond)
	settled := probes.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, probes.Load())
}

func TestMonitor_UnknownNameHasNoRecord(t *testing.T) {
	t.Parallel()

	m := NewMonitor(nil, MonitorConfig{})

	_, ok := m.Record("nope")
	assert.False(t, ok)
	assert.False(t, m.IsHealthy("nope"))
}

func TestMonitorConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := MonitorConfig{}.withDefaults()

	assert.Equal(t, DefaultProbeInterval, cfg.Interval)
	assert.Equal(t, DefaultProbeTimeout, cfg.Timeout)
	assert.Equal(t, DefaultProbePath, cfg.Path)
}

func TestMonitor_HealthySummary(t *testing.T) {
	t.Parallel()

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	m := NewMonitor(
		[]ServiceDescriptor{
			{Name: "up", BaseURL: up.URL},
			{Name: "down", BaseURL: "http://127.0.0.1:1"},
		},
		MonitorConfig{Interval: 20 * time.Millisecond, Timeout: 200 * time.Millisecond},
	)
	m.Start(context.Background())
	defer m.Stop()

	waitForStatus(t, m, "up", StatusHealthy)
	waitForStatus(t, m, "down", StatusUnhealthy)

	healthy, total := m.HealthySummary()
	assert.Equal(t, 1, healthy)
	assert.Equal(t, 2, total)

	all := m.AllHealth()
	assert.Len(t, all, 2)
	assert.Equal(t, StatusHealthy, all["up"].Status)
	assert.Equal(t, StatusUnhealthy, all["down"].Status)
}
