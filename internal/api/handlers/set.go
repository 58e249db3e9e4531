package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rl-arena/ladder-backend/internal/service"
)

type SetHandler struct {
	sets *service.SetService
}

func NewSetHandler(sets *service.SetService) *SetHandler {
	return &SetHandler{sets: sets}
}

type bestOfRequest struct {
	BestOf int `json:"bestOf" binding:"required"`
}

type stageRequest struct {
	StageID string `json:"stageId" binding:"required"`
}

type characterRequest struct {
	CharacterID string `json:"characterId" binding:"required"`
}

type winnerRequest struct {
	Num int  `json:"num" binding:"required,min=1"`
	Won bool `json:"won"`
}

// playerAction routes one set operation keyed by the acting player.
func (h *SetHandler) playerAction(c *gin.Context, fn func(playerID string) (*service.SetResult, error)) {
	result, err := fn(c.Param("playerId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *SetHandler) StartSet(c *gin.Context) {
	var req bestOfRequest
	if !bindJSON(c, &req) {
		return
	}

	state, err := h.sets.StartSet(c.Request.Context(), c.Param("guildId"), c.Param("lobbyId"), req.BestOf)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, state)
}

func (h *SetHandler) GetState(c *gin.Context) {
	state, err := h.sets.State(c.Request.Context(), c.Param("guildId"), c.Param("playerId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *SetHandler) Ban(c *gin.Context) {
	var req stageRequest
	if !bindJSON(c, &req) {
		return
	}
	h.playerAction(c, func(playerID string) (*service.SetResult, error) {
		return h.sets.Ban(c.Request.Context(), c.Param("guildId"), playerID, req.StageID)
	})
}

func (h *SetHandler) PickStage(c *gin.Context) {
	var req stageRequest
	if !bindJSON(c, &req) {
		return
	}
	h.playerAction(c, func(playerID string) (*service.SetResult, error) {
		return h.sets.PickStage(c.Request.Context(), c.Param("guildId"), playerID, req.StageID)
	})
}

func (h *SetHandler) PickCharacter(c *gin.Context) {
	var req characterRequest
	if !bindJSON(c, &req) {
		return
	}
	h.playerAction(c, func(playerID string) (*service.SetResult, error) {
		return h.sets.PickCharacter(c.Request.Context(), c.Param("guildId"), playerID, req.CharacterID)
	})
}

func (h *SetHandler) VoteWinner(c *gin.Context) {
	var req winnerRequest
	if !bindJSON(c, &req) {
		return
	}
	h.playerAction(c, func(playerID string) (*service.SetResult, error) {
		return h.sets.VoteWinner(c.Request.Context(), c.Param("guildId"), playerID, req.Num, req.Won)
	})
}

func (h *SetHandler) Surrender(c *gin.Context) {
	h.playerAction(c, func(playerID string) (*service.SetResult, error) {
		return h.sets.Surrender(c.Request.Context(), c.Param("guildId"), playerID)
	})
}

// ForceSurrender concedes for a player who left the arena.
func (h *SetHandler) ForceSurrender(c *gin.Context) {
	h.playerAction(c, func(playerID string) (*service.SetResult, error) {
		return h.sets.ForceSurrender(c.Request.Context(), c.Param("guildId"), playerID)
	})
}

func (h *SetHandler) Remake(c *gin.Context) {
	h.playerAction(c, func(playerID string) (*service.SetResult, error) {
		return h.sets.Remake(c.Request.Context(), c.Param("guildId"), playerID)
	})
}

func (h *SetHandler) VoteCancel(c *gin.Context) {
	result, err := h.sets.VoteCancelSet(c.Request.Context(), c.Param("guildId"), c.Param("playerId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *SetHandler) VoteRematch(c *gin.Context) {
	var req bestOfRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.sets.VoteRematch(c.Request.Context(), c.Param("guildId"), c.Param("playerId"), req.BestOf)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *SetHandler) CancelSet(c *gin.Context) {
	set, err := h.sets.CancelSet(c.Request.Context(), c.Param("guildId"), c.Param("setId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"set": set})
}
