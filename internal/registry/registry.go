// Package registry tracks the gateway's downstream services and their
// liveness. The set of services is fixed at startup; only their health
// records change over the process lifetime.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tradepulse/gateway/internal/observability"
)

// ErrServiceNotFound is returned when resolving an unregistered service name.
var ErrServiceNotFound = errors.New("service not found")

// ServiceDescriptor identifies one downstream service. Immutable after
// startup.
type ServiceDescriptor struct {
	Name    string
	BaseURL string
}

// Registry owns the fixed logical-name to base-URL map and the health
// monitor for the registered backends.
type Registry struct {
	descriptors map[string]ServiceDescriptor
	monitor     *Monitor
	logger      observability.Logger

	mu      sync.Mutex
	started bool
	stopped bool
}

// RegistryOption is a functional option for configuring the registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger for the registry and its monitor.
func WithLogger(logger observability.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithMonitor replaces the default monitor. Used by tests to install a
// monitor with a custom probe client.
func WithMonitor(monitor *Monitor) RegistryOption {
	return func(r *Registry) {
		r.monitor = monitor
	}
}

// New creates a registry from a map of service names to base URLs.
func New(services map[string]string, monitorCfg MonitorConfig, opts ...RegistryOption) (*Registry, error) {
	descriptors := make(map[string]ServiceDescriptor, len(services))
	ordered := make([]ServiceDescriptor, 0, len(services))

	for _, name := range sortedNames(services) {
		baseURL := services[name]
		u, err := url.Parse(baseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("service %q has invalid base URL %q", name, baseURL)
		}
		// Trailing slashes would double up when request paths are
		// appended.
		desc := ServiceDescriptor{Name: name, BaseURL: strings.TrimSuffix(baseURL, "/")}
		descriptors[name] = desc
		ordered = append(ordered, desc)
	}

	r := &Registry{
		descriptors: descriptors,
		logger:      observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.monitor == nil {
		r.monitor = NewMonitor(ordered, monitorCfg, WithMonitorLogger(r.logger))
	}

	return r, nil
}

// Resolve returns the base URL for a service name.
func (r *Registry) Resolve(name string) (string, error) {
	desc, ok := r.descriptors[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return desc.BaseURL, nil
}

// Names returns the registered service names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start launches the health monitor. No-op when already started.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true
	r.monitor.Start(ctx)
}

// Stop tears down the monitor's probe loops. Idempotent.
func (r *Registry) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	started := r.started
	r.mu.Unlock()

	if started {
		r.monitor.Stop()
	}
}

// IsHealthy reports whether the backend's most recent probe succeeded.
func (r *Registry) IsHealthy(name string) bool {
	return r.monitor.IsHealthy(name)
}

// Status returns the backend's health status, with ok=false for an
// unregistered name.
func (r *Registry) Status(name string) (Status, bool) {
	record, ok := r.monitor.Record(name)
	if !ok {
		return StatusUnknown, false
	}
	return record.Status, true
}

// AllHealth returns a snapshot of every backend's health record.
func (r *Registry) AllHealth() map[string]HealthRecord {
	return r.monitor.AllHealth()
}

// HealthySummary returns how many backends are healthy out of the total.
func (r *Registry) HealthySummary() (healthy, total int) {
	return r.monitor.HealthySummary()
}

// WaitUntilReady blocks until every backend is healthy, the timeout
// elapses, or the context is cancelled. It returns the healthy and
// unhealthy partitions of service names either way; a timeout is not an
// error, the caller decides whether to proceed degraded.
func (r *Registry) WaitUntilReady(ctx context.Context, timeout, pollInterval time.Duration) (healthy, unhealthy []string) {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		healthy, unhealthy = r.partition()
		if len(unhealthy) == 0 {
			return healthy, unhealthy
		}

		select {
		case <-ctx.Done():
			return healthy, unhealthy
		case <-deadline.C:
			return healthy, unhealthy
		case <-ticker.C:
		}
	}
}

// partition splits the registered names into healthy and unhealthy sets.
func (r *Registry) partition() (healthy, unhealthy []string) {
	for name, record := range r.AllHealth() {
		if record.Status == StatusHealthy {
			healthy = append(healthy, name)
		} else {
			unhealthy = append(unhealthy, name)
		}
	}
	sort.Strings(healthy)
	sort.Strings(unhealthy)
	return healthy, unhealthy
}

func sortedNames(services map[string]string) []string {
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
