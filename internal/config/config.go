// Package config provides configuration management for the gateway.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// ErrInvalidConfig is the sentinel wrapped by all validation errors.
var ErrInvalidConfig = errors.New("invalid configuration")

func errInvalid(field string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, field)
}

// Environment values recognized by the gateway.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// GatewayConfig is the root configuration for the gateway process.
type GatewayConfig struct {
	// Environment controls environment-dependent behavior. Health
	// gating defaults to off outside production so services can start
	// in any order during local development.
	Environment string `yaml:"environment"`

	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Services       map[string]string    `yaml:"services"`
	HealthCheck    HealthCheckConfig    `yaml:"healthCheck"`
	Readiness      ReadinessConfig      `yaml:"readiness"`
	Proxy          ProxyConfig          `yaml:"proxy"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
	PathRewrites   []PathRewriteConfig  `yaml:"pathRewrites"`
}

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Address        string   `yaml:"address"`
	ReadTimeout    Duration `yaml:"readTimeout"`
	WriteTimeout   Duration `yaml:"writeTimeout"`
	IdleTimeout    Duration `yaml:"idleTimeout"`
	MaxHeaderBytes int      `yaml:"maxHeaderBytes"`
}

// LoggingConfig holds the logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// HealthCheckConfig holds backend health probing configuration.
type HealthCheckConfig struct {
	Interval Duration `yaml:"interval"`
	Timeout  Duration `yaml:"timeout"`
	Path     string   `yaml:"path"`
}

// ReadinessConfig controls the optional startup readiness wait.
type ReadinessConfig struct {
	Enabled      bool     `yaml:"enabled"`
	WaitTimeout  Duration `yaml:"waitTimeout"`
	PollInterval Duration `yaml:"pollInterval"`
}

// ProxyConfig holds the reverse proxy behavior configuration.
type ProxyConfig struct {
	EnableRetry          bool     `yaml:"enableRetry"`
	EnableCircuitBreaker bool     `yaml:"enableCircuitBreaker"`
	// SkipHealthCheck disables pre-call health gating. When unset it
	// defaults to true outside production.
	SkipHealthCheck *bool    `yaml:"skipHealthCheck"`
	CallTimeout     Duration `yaml:"callTimeout"`
	IdentityHeader  string   `yaml:"identityHeader"`
}

// RetryConfig holds retry policy tunables for proxied calls.
type RetryConfig struct {
	MaxAttempts       int      `yaml:"maxAttempts"`
	InitialDelay      Duration `yaml:"initialDelay"`
	BackoffMultiplier float64  `yaml:"backoffMultiplier"`
	MaxDelay          Duration `yaml:"maxDelay"`
	Jitter            *bool    `yaml:"jitter"`
}

// CircuitBreakerConfig holds per-backend circuit breaker tunables.
type CircuitBreakerConfig struct {
	WindowSize       int      `yaml:"windowSize"`
	FailureThreshold float64  `yaml:"failureThreshold"`
	MinimumSamples   int      `yaml:"minimumSamples"`
	Cooldown         Duration `yaml:"cooldown"`
	HalfOpenMax      int      `yaml:"halfOpenMax"`
}

// PathRewriteConfig maps an inbound path prefix to a backend service
// with an optional prefix rewrite.
type PathRewriteConfig struct {
	Pattern       string `yaml:"pattern"`
	TargetService string `yaml:"targetService"`
	PrefixRewrite string `yaml:"prefixRewrite"`
}

// Default configuration values.
const (
	DefaultServerPort          = 8080
	DefaultHealthCheckPath     = "/health"
	DefaultIdentityHeader      = "X-Gateway-User-Id"
	DefaultHealthCheckInterval = 30 * time.Second
	DefaultHealthCheckTimeout  = 5 * time.Second
	DefaultCallTimeout         = 10 * time.Second
	DefaultReadinessTimeout    = 60 * time.Second
	DefaultReadinessPoll       = 2 * time.Second
)

// DefaultConfig returns a GatewayConfig with default values.
func DefaultConfig() *GatewayConfig {
	cfg := &GatewayConfig{
		Environment: EnvDevelopment,
		Services:    map[string]string{},
	}
	_ = cfg.Validate()
	return cfg
}

// Validate validates the configuration and fills in defaults.
func (c *GatewayConfig) Validate() error {
	if c.Environment == "" {
		c.Environment = EnvDevelopment
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = Duration(30 * time.Second)
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = Duration(30 * time.Second)
	}
	if c.Server.IdleTimeout <= 0 {
		c.Server.IdleTimeout = Duration(120 * time.Second)
	}
	if c.Server.MaxHeaderBytes <= 0 {
		c.Server.MaxHeaderBytes = 1 << 20
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	for name, baseURL := range c.Services {
		if name == "" {
			return fmt.Errorf("service with empty name: %w", errInvalid("services"))
		}
		u, err := url.Parse(baseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("service %q has invalid base URL %q: %w", name, baseURL, errInvalid("services"))
		}
	}

	if c.HealthCheck.Interval <= 0 {
		c.HealthCheck.Interval = Duration(DefaultHealthCheckInterval)
	}
	if c.HealthCheck.Timeout <= 0 {
		c.HealthCheck.Timeout = Duration(DefaultHealthCheckTimeout)
	}
	if c.HealthCheck.Path == "" {
		c.HealthCheck.Path = DefaultHealthCheckPath
	}
	if !strings.HasPrefix(c.HealthCheck.Path, "/") {
		return fmt.Errorf("health check path %q must start with /: %w", c.HealthCheck.Path, errInvalid("healthCheck.path"))
	}

	if c.Readiness.WaitTimeout <= 0 {
		c.Readiness.WaitTimeout = Duration(DefaultReadinessTimeout)
	}
	if c.Readiness.PollInterval <= 0 {
		c.Readiness.PollInterval = Duration(DefaultReadinessPoll)
	}

	if c.Proxy.CallTimeout <= 0 {
		c.Proxy.CallTimeout = Duration(DefaultCallTimeout)
	}
	if c.Proxy.IdentityHeader == "" {
		c.Proxy.IdentityHeader = DefaultIdentityHeader
	}

	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.InitialDelay <= 0 {
		c.Retry.InitialDelay = Duration(time.Second)
	}
	if c.Retry.BackoffMultiplier <= 1 {
		c.Retry.BackoffMultiplier = 2
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = Duration(30 * time.Second)
	}

	if c.CircuitBreaker.WindowSize <= 0 {
		c.CircuitBreaker.WindowSize = 10
	}
	if c.CircuitBreaker.FailureThreshold <= 0 || c.CircuitBreaker.FailureThreshold > 1 {
		c.CircuitBreaker.FailureThreshold = 0.5
	}
	if c.CircuitBreaker.MinimumSamples <= 0 {
		c.CircuitBreaker.MinimumSamples = 10
	}
	if c.CircuitBreaker.Cooldown <= 0 {
		c.CircuitBreaker.Cooldown = Duration(30 * time.Second)
	}
	if c.CircuitBreaker.HalfOpenMax <= 0 {
		c.CircuitBreaker.HalfOpenMax = 1
	}

	seen := make(map[string]bool, len(c.PathRewrites))
	for i := range c.PathRewrites {
		r := &c.PathRewrites[i]
		if !strings.HasPrefix(r.Pattern, "/") {
			return fmt.Errorf("rewrite pattern %q must start with /: %w", r.Pattern, errInvalid("pathRewrites"))
		}
		if seen[r.Pattern] {
			return fmt.Errorf("duplicate rewrite pattern %q: %w", r.Pattern, errInvalid("pathRewrites"))
		}
		seen[r.Pattern] = true
		if _, ok := c.Services[r.TargetService]; !ok {
			return fmt.Errorf("rewrite pattern %q targets unknown service %q: %w", r.Pattern, r.TargetService, errInvalid("pathRewrites"))
		}
		if r.PrefixRewrite != "" && !strings.HasPrefix(r.PrefixRewrite, "/") {
			return fmt.Errorf("prefix rewrite %q must start with /: %w", r.PrefixRewrite, errInvalid("pathRewrites"))
		}
	}

	return nil
}

// SkipHealthCheck reports whether pre-call health gating is disabled.
// Unset defaults to the environment: gating is enforced only in production.
func (c *GatewayConfig) SkipHealthCheck() bool {
	if c.Proxy.SkipHealthCheck != nil {
		return *c.Proxy.SkipHealthCheck
	}
	return c.Environment != EnvProduction
}

// RetryJitter reports whether jitter is enabled (default on).
func (c *RetryConfig) RetryJitter() bool {
	if c.Jitter != nil {
		return *c.Jitter
	}
	return true
}

// ServiceNames returns the configured service names in sorted order.
func (c *GatewayConfig) ServiceNames() []string {
	names := make([]string, 0, len(c.Services))
	for name := range c.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
