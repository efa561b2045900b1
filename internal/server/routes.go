package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tradepulse/gateway/internal/health"
	"github.com/tradepulse/gateway/internal/proxy"
)

// MountRoutes registers the gateway's route table: operational
// endpoints, the generic proxy route, and the configured rewrites.
func (s *Server) MountRoutes(checker *health.Checker, p *proxy.Proxy) {
	s.engine.GET("/health", checker.SummaryHandler())
	s.engine.GET("/health/services", checker.ServicesHandler())
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.engine.Any("/api/:service/*path", p.Handler())
	p.MountRewrites(s.engine)
}
