package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/rl-arena/ladder-backend/internal/config"
	jwtutil "github.com/rl-arena/ladder-backend/pkg/jwt"
	"github.com/rl-arena/ladder-backend/pkg/logger"
)

// AuthHandler exchanges adapter credentials for a bearer token.
type AuthHandler struct {
	adapterKeys map[string]string
	jwtManager  *jwtutil.JWTManager
}

func NewAuthHandler(cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		adapterKeys: cfg.AdapterKeys,
		jwtManager:  jwtutil.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration),
	}
}

type TokenRequest struct {
	AdapterID string   `json:"adapterId" binding:"required"`
	Secret    string   `json:"secret" binding:"required"`
	Guilds    []string `json:"guilds"`
}

// Token guilds narrows the token to those guild ids; none means every guild.
func (h *AuthHandler) Token(c *gin.Context) {
	var req TokenRequest
	if !bindJSON(c, &req) {
		return
	}

	hash, ok := h.adapterKeys[req.AdapterID]
	if !ok || bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Secret)) != nil {
		logger.Warn("Adapter authentication failed", "adapterId", req.AdapterID, "ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid adapter credentials",
		})
		return
	}

	token, err := h.jwtManager.Generate(req.AdapterID, req.Guilds...)
	if err != nil {
		logger.Error("Failed to generate token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to generate token",
		})
		return
	}

	logger.Info("Adapter token issued", "adapterId", req.AdapterID, "guilds", len(req.Guilds))
	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresIn": int(h.jwtManager.Duration().Seconds()),
	})
}
