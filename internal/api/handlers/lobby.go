package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rl-arena/ladder-backend/internal/models"
	"github.com/rl-arena/ladder-backend/internal/service"
)

type LobbyHandler struct {
	lobbies      *service.LobbyService
	matchmaking  *service.MatchmakingService
	confirmation *service.ConfirmationService
}

func NewLobbyHandler(
	lobbies *service.LobbyService,
	matchmaking *service.MatchmakingService,
	confirmation *service.ConfirmationService,
) *LobbyHandler {
	return &LobbyHandler{
		lobbies:      lobbies,
		matchmaking:  matchmaking,
		confirmation: confirmation,
	}
}

type stopSearchRequest struct {
	service.SearchTarget
	All bool `json:"all"`
}

type directMatchRequest struct {
	OpponentID string `json:"opponentId" binding:"required"`
	TierID     string `json:"tierId" binding:"required"`
}

type arenaRequest struct {
	TextChannelID  *string `json:"textChannelId"`
	VoiceChannelID *string `json:"voiceChannelId"`
}

func (h *LobbyHandler) GetLobby(c *gin.Context) {
	view, err := h.lobbies.Lobby(c.Request.Context(), c.Param("guildId"), c.Param("playerId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Search body {"tierId": "..."} or {"ranked": true}.
func (h *LobbyHandler) Search(c *gin.Context) {
	var target service.SearchTarget
	if !bindJSON(c, &target) {
		return
	}

	result, err := h.matchmaking.Search(c.Request.Context(), c.Param("guildId"), c.Param("playerId"), target)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *LobbyHandler) StopSearch(c *gin.Context) {
	var req stopSearchRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	result, err := h.lobbies.StopSearch(c.Request.Context(), c.Param("guildId"), c.Param("playerId"), req.SearchTarget, req.All)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *LobbyHandler) DirectMatch(c *gin.Context) {
	var req directMatchRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.matchmaking.DirectMatch(c.Request.Context(), c.Param("guildId"), c.Param("playerId"), req.OpponentID, req.TierID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *LobbyHandler) Accept(c *gin.Context) {
	result, err := h.confirmation.Accept(c.Request.Context(), c.Param("guildId"), c.Param("playerId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *LobbyHandler) Decline(c *gin.Context) {
	result, err := h.confirmation.Decline(c.Request.Context(), c.Param("guildId"), c.Param("playerId"), false)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *LobbyHandler) Resume(c *gin.Context) {
	result, err := h.confirmation.ResumeFromAFK(c.Request.Context(), c.Param("guildId"), c.Param("playerId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// TimeoutConfirmation declines on behalf of every player who did not accept in time.
func (h *LobbyHandler) TimeoutConfirmation(c *gin.Context) {
	result, err := h.confirmation.TimeoutConfirmation(c.Request.Context(), c.Param("guildId"), c.Param("lobbyId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *LobbyHandler) BindArena(c *gin.Context) {
	var req arenaRequest
	if !bindJSON(c, &req) {
		return
	}

	lobby, err := h.lobbies.BindArena(c.Request.Context(), c.Param("guildId"), c.Param("lobbyId"), req.TextChannelID, req.VoiceChannelID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lobby": lobby})
}

func (h *LobbyHandler) CloseArena(c *gin.Context) {
	result, err := h.lobbies.CloseArena(c.Request.Context(), c.Param("guildId"), c.Param("lobbyId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *LobbyHandler) RemoveLobby(c *gin.Context) {
	messages, err := h.lobbies.RemoveLobby(c.Request.Context(), c.Param("guildId"), c.Param("lobbyId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type registerMessageRequest struct {
	ID        string             `json:"id" binding:"required"`
	ChannelID string             `json:"channelId" binding:"required"`
	Type      models.MessageType `json:"type" binding:"required"`
	PlayerID  *string            `json:"playerId"`
	LobbyID   *string            `json:"lobbyId"`
	TierID    *string            `json:"tierId"`
	GameID    *string            `json:"gameId"`
}

// RegisterMessage records a platform message so later transitions can hand it back for deletion.
func (h *LobbyHandler) RegisterMessage(c *gin.Context) {
	var req registerMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	message := &models.Message{
		ID:        req.ID,
		GuildID:   c.Param("guildId"),
		ChannelID: req.ChannelID,
		Type:      req.Type,
		PlayerID:  req.PlayerID,
		LobbyID:   req.LobbyID,
		TierID:    req.TierID,
		GameID:    req.GameID,
	}
	if err := h.lobbies.RegisterMessage(c.Request.Context(), message); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": message})
}
