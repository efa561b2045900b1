package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tradepulse/gateway/internal/circuitbreaker"
	"github.com/tradepulse/gateway/internal/config"
	"github.com/tradepulse/gateway/internal/health"
	"github.com/tradepulse/gateway/internal/middleware"
	"github.com/tradepulse/gateway/internal/observability"
	"github.com/tradepulse/gateway/internal/proxy"
	"github.com/tradepulse/gateway/internal/registry"
	"github.com/tradepulse/gateway/internal/server"
)

// shutdownTimeout bounds graceful drain of in-flight requests.
const shutdownTimeout = 15 * time.Second

// application holds the wired gateway components.
type application struct {
	cfg      *config.GatewayConfig
	logger   observability.Logger
	registry *registry.Registry
	breakers *circuitbreaker.Registry
	server   *server.Server
}

// newApplication wires the gateway components from configuration.
func newApplication(cfg *config.GatewayConfig, logger observability.Logger) (*application, error) {
	reg, err := registry.New(cfg.Services, registry.MonitorConfig{
		Interval: time.Duration(cfg.HealthCheck.Interval),
		Timeout:  time.Duration(cfg.HealthCheck.Timeout),
		Path:     cfg.HealthCheck.Path,
	}, registry.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("service registry: %w", err)
	}

	breakers := circuitbreaker.NewRegistry(&circuitbreaker.Config{
		WindowSize:       cfg.CircuitBreaker.WindowSize,
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		MinimumSamples:   cfg.CircuitBreaker.MinimumSamples,
		Cooldown:         time.Duration(cfg.CircuitBreaker.Cooldown),
		HalfOpenMax:      cfg.CircuitBreaker.HalfOpenMax,
	}, logger)

	p := proxy.New(reg, breakers, cfg, proxy.WithLogger(logger))
	checker := health.NewChecker(version, reg)

	srv := server.New(cfg.Server, logger)
	srv.Use(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
	)
	srv.MountRoutes(checker, p)

	return &application{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		breakers: breakers,
		server:   srv,
	}, nil
}

// run starts the gateway and blocks until a termination signal.
func (a *application) run(configPath string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.registry.Start(ctx)
	defer a.registry.Stop()

	if a.cfg.Readiness.Enabled {
		a.waitForBackends(ctx)
	}

	watcher := a.startConfigWatcher(ctx, configPath)
	if watcher != nil {
		defer func() { _ = watcher.Stop() }()
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		a.logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			a.logger.Error("server failed", observability.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("shutdown failed", observability.Error(err))
	}

	a.logger.Info("gateway stopped")
}

// waitForBackends blocks startup until the backends report healthy or
// the readiness timeout elapses. A degraded start is logged, not fatal.
func (a *application) waitForBackends(ctx context.Context) {
	a.logger.Info("waiting for backends",
		observability.Duration("timeout", time.Duration(a.cfg.Readiness.WaitTimeout)),
	)

	healthy, unhealthy := a.registry.WaitUntilReady(ctx,
		time.Duration(a.cfg.Readiness.WaitTimeout),
		time.Duration(a.cfg.Readiness.PollInterval),
	)

	if len(unhealthy) > 0 {
		a.logger.Warn("starting degraded, some backends are not healthy",
			observability.Strings("healthy", healthy),
			observability.Strings("unhealthy", unhealthy),
		)
		return
	}

	a.logger.Info("all backends healthy", observability.Strings("services", healthy))
}

// startConfigWatcher watches the config file and applies the settings
// that can change at runtime. Topology changes need a restart; only the
// log level is applied live.
func (a *application) startConfigWatcher(ctx context.Context, configPath string) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, func(next *config.GatewayConfig) {
		a.logger.Info("configuration reloaded",
			observability.String("log_level", next.Logging.Level),
		)

		if setter, ok := a.logger.(observability.LevelSetter); ok {
			if err := setter.SetLevel(next.Logging.Level); err != nil {
				a.logger.Warn("invalid log level in reloaded config",
					observability.String("level", next.Logging.Level),
					observability.Error(err),
				)
			}
		}
	}, config.WithWatcherLogger(a.logger))
	if err != nil {
		a.logger.Warn("config watcher unavailable", observability.Error(err))
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		a.logger.Warn("config watcher failed to start", observability.Error(err))
		return nil
	}

	return watcher
}
