package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rl-arena/ladder-backend/internal/service"
)

// IdentityHandler maps chat platform ids to engine ids; every other route takes engine ids.
type IdentityHandler struct {
	players *service.PlayerService
}

func NewIdentityHandler(players *service.PlayerService) *IdentityHandler {
	return &IdentityHandler{players: players}
}

type resolveRequest struct {
	ExternalID string `json:"externalId" binding:"required"`
}

func (h *IdentityHandler) ResolvePlayer(c *gin.Context) {
	var req resolveRequest
	if !bindJSON(c, &req) {
		return
	}

	player, err := h.players.ResolvePlayer(c.Request.Context(), req.ExternalID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"player": player})
}

func (h *IdentityHandler) ResolveGuild(c *gin.Context) {
	var req resolveRequest
	if !bindJSON(c, &req) {
		return
	}

	guild, err := h.players.ResolveGuild(c.Request.Context(), req.ExternalID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"guild": guild})
}
