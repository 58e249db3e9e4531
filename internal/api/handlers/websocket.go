package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"

	"github.com/rl-arena/ladder-backend/internal/api/middleware"
	"github.com/rl-arena/ladder-backend/internal/websocket"
)

type WebSocketHandler struct {
	hub      *websocket.Hub
	upgrader *gorillaws.Upgrader
}

func NewWebSocketHandler(hub *websocket.Hub, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		upgrader: websocket.NewUpgrader(allowedOrigins),
	}
}

// HandleWebSocket streams events of the guilds the adapter token covers.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	websocket.ServeWs(h.hub, h.upgrader, c.Writer, c.Request, claims.AdapterID, claims.AllowsGuild)
}
