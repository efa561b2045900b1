// Package health exposes the gateway's own health endpoints: a gateway
// liveness view and the aggregated backend health envelope.
package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tradepulse/gateway/internal/registry"
)

// HealthProvider supplies backend health snapshots. *registry.Registry
// satisfies it.
type HealthProvider interface {
	AllHealth() map[string]registry.HealthRecord
}

// SummaryResponse is the gateway liveness payload.
type SummaryResponse struct {
	Gateway   string    `json:"gateway"`
	Version   string    `json:"version,omitempty"`
	Uptime    string    `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

// ServicesResponse is the aggregated backend health payload. Services
// carries one boolean per backend; Details carries the full probe
// records behind them.
type ServicesResponse struct {
	Gateway    string                           `json:"gateway"`
	Services   map[string]bool                  `json:"services"`
	AllHealthy bool                             `json:"allHealthy"`
	Details    map[string]registry.HealthRecord `json:"details"`
	Timestamp  time.Time                        `json:"timestamp"`
}

// Checker answers health queries for the gateway process.
type Checker struct {
	version   string
	startTime time.Time
	provider  HealthProvider
}

// NewChecker creates a health checker backed by the given provider.
func NewChecker(version string, provider HealthProvider) *Checker {
	return &Checker{
		version:   version,
		startTime: time.Now(),
		provider:  provider,
	}
}

// Summary returns the gateway liveness view. The gateway reports itself
// as up whenever it can answer.
func (c *Checker) Summary() SummaryResponse {
	return SummaryResponse{
		Gateway:   "ok",
		Version:   c.version,
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}
}

// Services returns the aggregated backend health view.
func (c *Checker) Services() ServicesResponse {
	details := c.provider.AllHealth()

	services := make(map[string]bool, len(details))
	allHealthy := true
	for name, record := range details {
		ok := record.Status == registry.StatusHealthy
		services[name] = ok
		if !ok {
			allHealthy = false
		}
	}

	return ServicesResponse{
		Gateway:    "ok",
		Services:   services,
		AllHealthy: allHealthy,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}
}

// SummaryHandler serves GET /health.
func (c *Checker) SummaryHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, c.Summary())
	}
}

// ServicesHandler serves GET /health/services.
func (c *Checker) ServicesHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, c.Services())
	}
}
