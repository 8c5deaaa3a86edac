// Package middleware holds gin middleware shared by every route.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"denoise-bench/internal/logger"
)

// Logger records one entry per request through the component logger
func Logger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := map[string]interface{}{
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"status":     c.Writer.Status(),
			"ip":         c.ClientIP(),
			"cost_ms":    time.Since(start).Milliseconds(),
			"user_agent": c.Request.UserAgent(),
		}

		if c.Writer.Status() >= 500 {
			log.Warning("HTTP", "request failed", fields)
			return
		}
		log.Info("HTTP", "request", fields)
	}
}
