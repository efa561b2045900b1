package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tradepulse/gateway/internal/observability"
	"github.com/tradepulse/gateway/internal/util"
)

// Logging returns a middleware that logs every HTTP request after it
// completes.
func Logging(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		requestID := util.RequestIDFromContext(c.Request.Context())

		logger.Info("http request",
			observability.String("method", c.Request.Method),
			observability.String("path", c.Request.URL.Path),
			observability.String("query", c.Request.URL.RawQuery),
			observability.Int("status", c.Writer.Status()),
			observability.Int("size", c.Writer.Size()),
			observability.Duration("duration", time.Since(start)),
			observability.String("remote_addr", c.ClientIP()),
			observability.String("user_agent", c.Request.UserAgent()),
			observability.String("request_id", requestID),
		)
	}
}
