package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rl-arena/ladder-backend/internal/models"
	"github.com/rl-arena/ladder-backend/internal/service"
)

// SchedulerHandler cleanup jobs an external scheduler triggers periodically.
type SchedulerHandler struct {
	lobbies *service.LobbyService
	sets    *service.SetService
}

func NewSchedulerHandler(lobbies *service.LobbyService, sets *service.SetService) *SchedulerHandler {
	return &SchedulerHandler{lobbies: lobbies, sets: sets}
}

type purgeLobbiesRequest struct {
	Status    models.LobbyStatus `json:"status" binding:"required"`
	OlderThan string             `json:"olderThan" binding:"required"`
}

type cancelStaleSetsRequest struct {
	OlderThan string `json:"olderThan" binding:"required"`
}

func (h *SchedulerHandler) PurgeLobbies(c *gin.Context) {
	var req purgeLobbiesRequest
	if !bindJSON(c, &req) {
		return
	}
	olderThan, ok := parseDuration(c, req.OlderThan)
	if !ok {
		return
	}

	purged, err := h.lobbies.PurgeLobbies(c.Request.Context(), req.Status, olderThan)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purged": purged, "total": len(purged)})
}

func (h *SchedulerHandler) CancelStaleSets(c *gin.Context) {
	var req cancelStaleSetsRequest
	if !bindJSON(c, &req) {
		return
	}
	olderThan, ok := parseDuration(c, req.OlderThan)
	if !ok {
		return
	}

	sets, err := h.sets.CancelStaleSets(c.Request.Context(), olderThan)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": sets, "total": len(sets)})
}
