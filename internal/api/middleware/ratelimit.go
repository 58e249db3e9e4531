package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rl-arena/ladder-backend/pkg/logger"
	"github.com/rl-arena/ladder-backend/pkg/ratelimit"
)

// DefaultKeyFunc uses the adapter id if authenticated, otherwise the IP address.
func DefaultKeyFunc(c *gin.Context) string {
	if adapterID, exists := c.Get("adapterId"); exists {
		return fmt.Sprintf("adapter:%v", adapterID)
	}
	return IPKeyFunc(c)
}

func IPKeyFunc(c *gin.Context) string {
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// RateLimit rejects requests over the limiter budget with 429.
// Limiter failures let the request through.
func RateLimit(limiter ratelimit.Limiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = DefaultKeyFunc
	}

	return func(c *gin.Context) {
		key := keyFunc(c)

		allowed, info, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			logger.Warn("rate limit check failed", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

		if !allowed {
			retryAfter := int(time.Until(info.ResetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"message":     fmt.Sprintf("Too many requests. Limit: %d", info.Limit),
				"retry_after": retryAfter,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
