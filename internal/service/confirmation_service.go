package service

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/rl-arena/ladder-backend/internal/models"
	"github.com/rl-arena/ladder-backend/internal/repository"
)

type AcceptResult struct {
	Lobby    models.Lobby         `json:"lobby"`
	Ready    bool                 `json:"ready"`
	Players  []models.LobbyPlayer `json:"players"`
	Pending  []models.LobbyPlayer `json:"pending"`
	Messages []models.Message     `json:"messages"`
}

type DeclineResult struct {
	DeclinedPlayerID string           `json:"declinedPlayerId"`
	OtherPlayerIDs   []string         `json:"otherPlayerIds"`
	AFK              bool             `json:"afk"`
	Messages         []models.Message `json:"messages"`
	// Rematched searches of the other players rerun after the decline.
	Rematched []SearchResult `json:"rematched,omitempty"`
}

type ResumeResult struct {
	Search   *SearchResult    `json:"search"`
	Messages []models.Message `json:"messages"`
}

// ConfirmationService accept/decline handshake between matched lobbies.
type ConfirmationService struct {
	*core
	lobbies     *LobbyService
	matchmaking *MatchmakingService
}

func newConfirmationService(c *core, lobbies *LobbyService, matchmaking *MatchmakingService) *ConfirmationService {
	return &ConfirmationService{core: c, lobbies: lobbies, matchmaking: matchmaking}
}

// confirmationLobby the CONFIRMATION lobby of guildID the player takes part in, row-locked.
func confirmationLobby(ctx context.Context, tx repository.Tx, guildID, playerID string) (*models.Lobby, error) {
	lobby, err := tx.Lobbies().FindByPlayer(ctx, playerID, models.LobbyStatusConfirmation)
	if err != nil {
		return nil, fmt.Errorf("failed to find lobby: %w", err)
	}
	if lobby == nil || lobby.GuildID != guildID {
		return nil, notFound("lobby", "confirmation of "+playerID)
	}
	locked, err := tx.Lobbies().Lock(ctx, lobby.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock lobby: %w", err)
	}
	if len(locked) == 0 || locked[0].Status != models.LobbyStatusConfirmation {
		return nil, notFound("lobby", "confirmation of "+playerID)
	}
	return &locked[0], nil
}

// Accept marks the player accepted. Once every participant accepted the lobby starts PLAYING.
func (s *ConfirmationService) Accept(ctx context.Context, guildID, playerID string) (*AcceptResult, error) {
	var result *AcceptResult
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		lobby, err := confirmationLobby(ctx, tx, guildID, playerID)
		if err != nil {
			return err
		}
		lp, err := tx.Lobbies().FindPlayer(ctx, lobby.ID, playerID)
		if err != nil {
			return fmt.Errorf("failed to find lobby player: %w", err)
		}
		if lp == nil {
			return notFound("lobby player", playerID)
		}
		if lp.Status == models.LobbyStatusAccepted {
			return ErrAlreadyAccepted
		}
		now := s.now()
		lp.Status = models.LobbyStatusAccepted
		lp.AcceptedAt = &now
		if err := tx.Lobbies().UpdatePlayer(ctx, lp); err != nil {
			return fmt.Errorf("failed to update lobby player: %w", err)
		}

		players, err := tx.Lobbies().ListPlayers(ctx, lobby.ID)
		if err != nil {
			return fmt.Errorf("failed to list lobby players: %w", err)
		}
		result = &AcceptResult{Lobby: *lobby, Players: players}
		for _, p := range players {
			if p.Status != models.LobbyStatusAccepted {
				result.Pending = append(result.Pending, p)
			}
		}
		if len(result.Pending) > 0 {
			return nil
		}

		result.Ready = true
		result.Messages, err = s.startPlaying(ctx, tx, lobby, players)
		if err != nil {
			return err
		}
		result.Lobby = *lobby
		result.Players, err = tx.Lobbies().ListPlayers(ctx, lobby.ID)
		if err != nil {
			return fmt.Errorf("failed to list lobby players: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Ready {
		s.logger.Info("Lobby ready", zap.String("lobbyId", result.Lobby.ID))
		s.publish(ctx, models.Event{
			Type:      models.EventLobbyReady,
			GuildID:   result.Lobby.GuildID,
			LobbyID:   result.Lobby.ID,
			PlayerIDs: playerIDs(result.Players),
		})
	}
	return result, nil
}

// startPlaying moves an all-accepted lobby to PLAYING and closes the other participants' own lobbies.
func (s *ConfirmationService) startPlaying(ctx context.Context, tx repository.Tx, lobby *models.Lobby, players []models.LobbyPlayer) ([]models.Message, error) {
	var messages []models.Message

	lobby.Ranked = false
	lobby.Status = models.LobbyStatusPlaying
	if err := tx.Lobbies().Update(ctx, lobby); err != nil {
		return nil, fmt.Errorf("failed to update lobby: %w", err)
	}
	if err := tx.Lobbies().RemoveTiers(ctx, lobby.ID); err != nil {
		return nil, fmt.Errorf("failed to remove search targets: %w", err)
	}
	own, err := tx.Messages().ListByLobby(ctx, lobby.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lobby messages: %w", err)
	}
	taken, err := takeMessages(ctx, tx, own)
	if err != nil {
		return nil, err
	}
	messages = append(messages, taken...)

	for _, p := range players {
		p.Status = models.LobbyStatusPlaying
		if err := tx.Lobbies().UpdatePlayer(ctx, &p); err != nil {
			return nil, fmt.Errorf("failed to update lobby player: %w", err)
		}

		dms, err := tx.Messages().ListByPlayer(ctx, p.PlayerID, models.MessageLobbyPlayer)
		if err != nil {
			return nil, fmt.Errorf("failed to list player messages: %w", err)
		}
		taken, err := takeMessages(ctx, tx, dms)
		if err != nil {
			return nil, err
		}
		messages = append(messages, taken...)

		if p.PlayerID == lobby.CreatedBy {
			continue
		}
		other, err := tx.Lobbies().FindByCreator(ctx, p.PlayerID)
		if err != nil {
			return nil, fmt.Errorf("failed to find lobby: %w", err)
		}
		if other == nil {
			continue
		}
		deleted, err := s.lobbies.deleteLobby(ctx, tx, other.ID)
		if err != nil {
			return nil, err
		}
		messages = append(messages, deleted...)
	}
	return messages, nil
}

// Decline backs out of a confirmation. Other participants go back to searching when they still have
// something to search; the decliner's lobby turns AFK on timeout and is removed otherwise.
func (s *ConfirmationService) Decline(ctx context.Context, guildID, playerID string, isTimeout bool) (*DeclineResult, error) {
	result := &DeclineResult{DeclinedPlayerID: playerID}
	var confirmationID string
	var reverted []models.Lobby

	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		*result = DeclineResult{DeclinedPlayerID: playerID}
		reverted = nil

		lobby, err := confirmationLobby(ctx, tx, guildID, playerID)
		if err != nil {
			return err
		}
		confirmationID = lobby.ID

		players, err := tx.Lobbies().ListPlayers(ctx, lobby.ID)
		if err != nil {
			return fmt.Errorf("failed to list lobby players: %w", err)
		}
		ids := []string{lobby.ID}
		for _, p := range players {
			if own, err := tx.Lobbies().FindByCreator(ctx, p.PlayerID); err != nil {
				return fmt.Errorf("failed to find lobby: %w", err)
			} else if own != nil && own.ID != lobby.ID {
				ids = append(ids, own.ID)
			}
		}
		if _, err := tx.Lobbies().Lock(ctx, ids...); err != nil {
			return fmt.Errorf("failed to lock lobbies: %w", err)
		}

		if err := tx.Lobbies().RemoveOtherPlayers(ctx, lobby.ID, lobby.CreatedBy); err != nil {
			return fmt.Errorf("failed to strip lobby players: %w", err)
		}

		for _, p := range players {
			dms, err := tx.Messages().ListByPlayer(ctx, p.PlayerID, models.MessageLobbyPlayer)
			if err != nil {
				return fmt.Errorf("failed to list player messages: %w", err)
			}
			taken, err := takeMessages(ctx, tx, dms)
			if err != nil {
				return err
			}
			result.Messages = append(result.Messages, taken...)

			if p.PlayerID == playerID {
				continue
			}
			result.OtherPlayerIDs = append(result.OtherPlayerIDs, p.PlayerID)

			lobby, kept, messages, err := s.settle(ctx, tx, p.PlayerID, models.LobbyStatusSearching)
			if err != nil {
				return err
			}
			result.Messages = append(result.Messages, messages...)
			if kept {
				reverted = append(reverted, *lobby)
			}
		}

		if isTimeout {
			_, kept, messages, err := s.settle(ctx, tx, playerID, models.LobbyStatusAFK)
			if err != nil {
				return err
			}
			result.AFK = kept
			result.Messages = append(result.Messages, messages...)
			return nil
		}

		own, err := tx.Lobbies().FindByCreator(ctx, playerID)
		if err != nil {
			return fmt.Errorf("failed to find lobby: %w", err)
		}
		if own != nil {
			messages, err := s.lobbies.deleteLobby(ctx, tx, own.ID)
			if err != nil {
				return err
			}
			result.Messages = append(result.Messages, messages...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !isTimeout {
		for _, other := range result.OtherPlayerIDs {
			if err := s.ledger.Exclude(ctx, playerID, other, s.opts.DeclineExclusion); err != nil {
				s.logger.Error("Failed to record decline exclusion",
					zap.String("playerId", playerID),
					zap.String("otherId", other),
					zap.Error(err))
			}
		}
	}

	s.logger.Info("Confirmation declined",
		zap.String("lobbyId", confirmationID),
		zap.String("playerId", playerID),
		zap.Bool("timeout", isTimeout))
	s.publish(ctx, models.Event{
		Type:      models.EventLobbyDeclined,
		GuildID:   guildID,
		LobbyID:   confirmationID,
		PlayerIDs: append([]string{playerID}, result.OtherPlayerIDs...),
	})

	for _, lobby := range reverted {
		search, err := s.matchmaking.tryMatch(ctx, lobby.GuildID, lobby.ID, lobby.CreatedBy)
		if err != nil {
			s.logger.Warn("Failed to rerun search after decline", zap.String("lobbyId", lobby.ID), zap.Error(err))
			continue
		}
		if search.Matched {
			result.Rematched = append(result.Rematched, *search)
		}
	}
	return result, nil
}

// settle moves the player's own lobby to status when it still has targets or the ranked flag,
// and deletes it otherwise. kept reports which one happened.
func (s *ConfirmationService) settle(ctx context.Context, tx repository.Tx, playerID string, status models.LobbyStatus) (*models.Lobby, bool, []models.Message, error) {
	lobby, err := tx.Lobbies().FindByCreator(ctx, playerID)
	if err != nil {
		return nil, false, nil, fmt.Errorf("failed to find lobby: %w", err)
	}
	if lobby == nil {
		return nil, false, nil, nil
	}
	targets, err := tx.Lobbies().ListTiers(ctx, lobby.ID)
	if err != nil {
		return nil, false, nil, fmt.Errorf("failed to list search targets: %w", err)
	}
	if len(targets) == 0 && !lobby.Ranked {
		messages, err := s.lobbies.deleteLobby(ctx, tx, lobby.ID)
		return nil, false, messages, err
	}

	lobby.Mode = models.LobbyModeFriendlies
	lobby.Bonus = false
	if err := setStatus(ctx, tx, lobby, status); err != nil {
		return nil, false, nil, err
	}
	return lobby, true, nil, nil
}

// ResumeFromAFK puts an AFK lobby back into search and scans right away.
func (s *ConfirmationService) ResumeFromAFK(ctx context.Context, guildID, playerID string) (*ResumeResult, error) {
	var lobby *models.Lobby
	var messages []models.Message
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		own, err := tx.Lobbies().FindByCreator(ctx, playerID)
		if err != nil {
			return fmt.Errorf("failed to find lobby: %w", err)
		}
		if own == nil || own.GuildID != guildID {
			return notFound("lobby", playerID)
		}
		locked, err := tx.Lobbies().Lock(ctx, own.ID)
		if err != nil {
			return fmt.Errorf("failed to lock lobby: %w", err)
		}
		if len(locked) == 0 {
			return notFound("lobby", playerID)
		}
		lobby = &locked[0]
		if lobby.Status != models.LobbyStatusAFK {
			return cannotSearch(lobby.Status, "resume")
		}
		if err := setStatus(ctx, tx, lobby, models.LobbyStatusSearching); err != nil {
			return err
		}
		afk, err := tx.Messages().ListByPlayer(ctx, playerID, models.MessageLobbyPlayerAFK)
		if err != nil {
			return fmt.Errorf("failed to list player messages: %w", err)
		}
		messages, err = takeMessages(ctx, tx, afk)
		return err
	})
	if err != nil {
		return nil, err
	}

	search, err := s.matchmaking.tryMatch(ctx, lobby.GuildID, lobby.ID, playerID)
	if err != nil {
		return nil, err
	}
	return &ResumeResult{Search: search, Messages: messages}, nil
}

// TimeoutConfirmation called by the scheduler when the accept window of lobbyID expired: the first
// participant who has not accepted is declined with isTimeout.
func (s *ConfirmationService) TimeoutConfirmation(ctx context.Context, guildID, lobbyID string) (*DeclineResult, error) {
	var pending string
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		lobby, err := tx.Lobbies().FindByID(ctx, lobbyID)
		if err != nil {
			return fmt.Errorf("failed to find lobby: %w", err)
		}
		if lobby == nil || lobby.GuildID != guildID {
			return notFound("lobby", lobbyID)
		}
		if lobby.Status != models.LobbyStatusConfirmation {
			return cannotSearch(lobby.Status, "time out confirmation")
		}
		players, err := tx.Lobbies().ListPlayers(ctx, lobbyID)
		if err != nil {
			return fmt.Errorf("failed to list lobby players: %w", err)
		}
		sort.SliceStable(players, func(i, j int) bool { return players[i].CreatedAt.Before(players[j].CreatedAt) })
		for _, p := range players {
			if p.Status != models.LobbyStatusAccepted {
				pending = p.PlayerID
				return nil
			}
		}
		return ErrAlreadyAccepted
	})
	if err != nil {
		return nil, err
	}
	return s.Decline(ctx, guildID, pending, true)
}

func playerIDs(players []models.LobbyPlayer) []string {
	ids := make([]string, len(players))
	for i, p := range players {
		ids[i] = p.PlayerID
	}
	return ids
}
