package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rl-arena/ladder-backend/pkg/logger"
)

// Logger logs every HTTP request once it completes.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"status", c.Writer.Status(),
			"latency", latency,
			"ip", c.ClientIP(),
		}
		if adapterID, ok := c.Get("adapterId"); ok {
			fields = append(fields, "adapterId", adapterID)
		}

		if c.Writer.Status() >= 500 {
			logger.Error("HTTP Request", fields...)
			return
		}
		logger.Info("HTTP Request", fields...)
	}
}
