package registry

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tradepulse/gateway/internal/observability"
)

// Health probing default configuration constants.
const (
	// DefaultProbeInterval is the default interval between probes.
	DefaultProbeInterval = 30 * time.Second

	// DefaultProbeTimeout is the default timeout for a single probe.
	DefaultProbeTimeout = 5 * time.Second

	// DefaultProbePath is the health endpoint every backend must expose.
	DefaultProbePath = "/health"
)

// MonitorConfig holds health monitor configuration.
type MonitorConfig struct {
	// Interval between probes per backend. Default is 30s.
	Interval time.Duration

	// Timeout bounds each probe request. Default is 5s.
	Timeout time.Duration

	// Path is the health endpoint path. Default is /health.
	Path string
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultProbeInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultProbeTimeout
	}
	if c.Path == "" {
		c.Path = DefaultProbePath
	}
	return c
}

// Monitor periodically probes every registered backend's health
// endpoint. Each backend has its own probe loop goroutine, so a slow or
// hanging probe for one backend never delays the others. Probe results
// are written through sequence-guarded record cells (see recordCell).
type Monitor struct {
	descriptors []ServiceDescriptor
	cells       map[string]*recordCell
	config      MonitorConfig
	client      *http.Client
	logger      observability.Logger

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	stoppedWg sync.WaitGroup
}

// MonitorOption is a functional option for configuring the monitor.
type MonitorOption func(*Monitor)

// WithMonitorLogger sets the logger for the monitor.
func WithMonitorLogger(logger observability.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithProbeClient sets the HTTP client used for probes.
func WithProbeClient(client *http.Client) MonitorOption {
	return func(m *Monitor) {
		m.client = client
	}
}

// NewMonitor creates a health monitor for the given backends.
func NewMonitor(descriptors []ServiceDescriptor, config MonitorConfig, opts ...MonitorOption) *Monitor {
	config = config.withDefaults()

	m := &Monitor{
		descriptors: descriptors,
		cells:       make(map[string]*recordCell, len(descriptors)),
		config:      config,
		client:      &http.Client{},
		logger:      observability.NopLogger(),
		stopCh:      make(chan struct{}),
	}

	for _, desc := range descriptors {
		m.cells[desc.Name] = newRecordCell()
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start launches one probe loop per backend. Calling Start on a running
// monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	for _, desc := range m.descriptors {
		m.stoppedWg.Add(1)
		go m.loop(ctx, desc)
	}
}

// Stop halts probe scheduling and waits for the loops to exit. In-flight
// probes finish against their own timeouts; their late results are
// still subject to the sequence guard. Safe to call multiple times.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	m.stoppedWg.Wait()
}

// loop is the probe loop for one backend.
func (m *Monitor) loop(ctx context.Context, desc ServiceDescriptor) {
	defer m.stoppedWg.Done()

	cell := m.cells[desc.Name]

	// Initial probe runs immediately so records leave the unknown
	// state without waiting a full interval.
	go m.probe(ctx, desc, cell, cell.claim())

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			// Probes launch in their own goroutine so a hanging probe
			// never blocks this loop or the ticker.
			go m.probe(ctx, desc, cell, cell.claim())
		}
	}
}

// probe issues one health check and records the outcome.
func (m *Monitor) probe(ctx context.Context, desc ServiceDescriptor, cell *recordCell, seq uint64) {
	probeCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	url := desc.BaseURL + m.config.Path

	start := time.Now()
	record := m.doProbe(probeCtx, url)
	record.LastCheckedAt = time.Now()
	record.LastResponseTime = time.Since(start)

	applied := cell.store(seq, record)
	recordProbe(desc.Name, record, applied)

	if !applied {
		m.logger.Debug("discarded stale probe result",
			observability.String("service", desc.Name),
		)
		return
	}

	if record.Status == StatusUnhealthy {
		m.logger.Warn("backend unhealthy",
			observability.String("service", desc.Name),
			observability.String("error", record.LastError),
			observability.Duration("response_time", record.LastResponseTime),
		)
	} else {
		m.logger.Debug("backend healthy",
			observability.String("service", desc.Name),
			observability.Duration("response_time", record.LastResponseTime),
		)
	}
}

// doProbe performs the HTTP request and classifies the outcome.
func (m *Monitor) doProbe(ctx context.Context, url string) HealthRecord {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return HealthRecord{Status: StatusUnhealthy, LastError: err.Error()}
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return HealthRecord{Status: StatusUnhealthy, LastError: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return HealthRecord{Status: StatusHealthy}
	}

	return HealthRecord{
		Status:    StatusUnhealthy,
		LastError: fmt.Sprintf("unexpected status %d", resp.StatusCode),
	}
}

// Record returns the current health record for a backend.
func (m *Monitor) Record(name string) (HealthRecord, bool) {
	cell, ok := m.cells[name]
	if !ok {
		return HealthRecord{}, false
	}
	return cell.load(), true
}

// IsHealthy reports whether the most recent completed probe for the
// backend succeeded. Unknown (not yet probed) counts as not healthy.
func (m *Monitor) IsHealthy(name string) bool {
	record, ok := m.Record(name)
	return ok && record.Status == StatusHealthy
}

// AllHealth returns a snapshot of every backend's health record.
func (m *Monitor) AllHealth() map[string]HealthRecord {
	snapshot := make(map[string]HealthRecord, len(m.cells))
	for name, cell := range m.cells {
		snapshot[name] = cell.load()
	}
	return snapshot
}

// HealthySummary returns how many backends are currently healthy out of
// the total registered.
func (m *Monitor) HealthySummary() (healthy, total int) {
	for _, cell := range m.cells {
		if cell.load().Status == StatusHealthy {
			healthy++
		}
	}
	return healthy, len(m.cells)
}
