package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rl-arena/ladder-backend/internal/config"
	jwtutil "github.com/rl-arena/ladder-backend/pkg/jwt"
)

const claimsKey = "claims"

// Auth verifies the adapter bearer token and stores its claims on the context.
func Auth(cfg *config.Config) gin.HandlerFunc {
	return AuthWith(jwtutil.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration))
}

func AuthWith(jwtManager *jwtutil.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization header format",
			})
			c.Abort()
			return
		}

		claims, err := jwtManager.Verify(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			c.Abort()
			return
		}

		c.Set(claimsKey, claims)
		c.Set("adapterId", claims.AdapterID)

		c.Next()
	}
}

// RequireGuild rejects tokens that are scoped to other guilds than :guildId.
func RequireGuild() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ClaimsFrom(c)
		if claims == nil || !claims.AllowsGuild(c.Param("guildId")) {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Token is not allowed for this guild",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func ClaimsFrom(c *gin.Context) *jwtutil.Claims {
	value, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := value.(*jwtutil.Claims)
	return claims
}

// RequireGlobal admits only tokens without a guild scope.
func RequireGlobal() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ClaimsFrom(c)
		if claims == nil || len(claims.Guilds) > 0 {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Token must not be scoped to guilds",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
