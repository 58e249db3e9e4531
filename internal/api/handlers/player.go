package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rl-arena/ladder-backend/internal/models"
	"github.com/rl-arena/ladder-backend/internal/service"
)

type PlayerHandler struct {
	players *service.PlayerService
	ratings *service.RatingService
}

func NewPlayerHandler(players *service.PlayerService, ratings *service.RatingService) *PlayerHandler {
	return &PlayerHandler{players: players, ratings: ratings}
}

func (h *PlayerHandler) ListTiers(c *gin.Context) {
	tiers, err := h.players.Tiers(c.Request.Context(), c.Param("guildId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tiers": tiers})
}

// SaveTier creates the tier when it has no id, replaces it otherwise.
func (h *PlayerHandler) SaveTier(c *gin.Context) {
	var tier models.Tier
	if !bindJSON(c, &tier) {
		return
	}
	tier.GuildID = c.Param("guildId")

	if err := h.players.SaveTier(c.Request.Context(), &tier); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tier": tier})
}

func (h *PlayerHandler) GetProfile(c *gin.Context) {
	profile, err := h.players.Profile(c.Request.Context(), c.Param("guildId"), c.Param("playerId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

func (h *PlayerHandler) UpdateProfile(c *gin.Context) {
	var req models.UpdateProfileRequest
	if !bindJSON(c, &req) {
		return
	}

	profile, err := h.players.SetProfile(c.Request.Context(), c.Param("guildId"), c.Param("playerId"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

func (h *PlayerHandler) GetRating(c *gin.Context) {
	view, err := h.ratings.Rating(c.Request.Context(), c.Param("guildId"), c.Param("playerId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
