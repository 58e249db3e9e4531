package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rl-arena/ladder-backend/internal/service"
	"github.com/rl-arena/ladder-backend/pkg/logger"
)

// statusFor HTTP status of a domain error kind.
func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindTooNoob, service.KindNoCable, service.KindNoYuzu,
		service.KindIncompatibleYuzu, service.KindRejectedPlayer:
		return http.StatusForbidden
	case service.KindSamePlayer, service.KindInvalidAction:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusConflict
	}
}

// respondError domain errors become 4xx with a stable code, anything else is logged and hidden.
func respondError(c *gin.Context, err error) {
	var domainErr *service.Error
	if errors.As(err, &domainErr) {
		c.JSON(statusFor(domainErr.Kind), gin.H{
			"error":   domainErr.Error(),
			"code":    domainErr.Kind,
			"details": domainErr,
		})
		return
	}

	logger.Error("Request failed",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"error", err,
	)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "Internal server error",
	})
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return false
	}
	return true
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, req any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, req)
}

func parseDuration(c *gin.Context, value string) (time.Duration, bool) {
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid duration: " + value,
		})
		return 0, false
	}
	return d, true
}
