package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rl-arena/ladder-backend/internal/models"
	"github.com/rl-arena/ladder-backend/internal/repository"
)

// SearchTarget what a lobby searches: one tier, or the ranked ladder.
type SearchTarget struct {
	TierID string `json:"tierId,omitempty"`
	Ranked bool   `json:"ranked,omitempty"`
}

// LobbyView a lobby with its participants and search targets.
type LobbyView struct {
	Lobby   models.Lobby         `json:"lobby"`
	Players []models.LobbyPlayer `json:"players"`
	Targets []models.LobbyTier   `json:"targets"`
}

type StopSearchResult struct {
	Lobby    *models.Lobby    `json:"lobby,omitempty"`
	Deleted  bool             `json:"deleted"`
	Messages []models.Message `json:"messages"`
}

// LobbyService lobby state machine: search targets, arena binding and removal.
type LobbyService struct {
	*core
	// confirmation resolves stale pairings found by PurgeLobbies.
	confirmation *ConfirmationService
}

func newLobbyService(c *core) *LobbyService {
	return &LobbyService{core: c}
}

// searchBlocked statuses in which no search target may be added.
var searchBlocked = map[models.LobbyStatus]bool{
	models.LobbyStatusWaiting:      true,
	models.LobbyStatusConfirmation: true,
	models.LobbyStatusAccepted:     true,
	models.LobbyStatusPlaying:      true,
}

// pairedStatuses statuses of a lobby bound to an opponent.
var pairedStatuses = []models.LobbyStatus{
	models.LobbyStatusWaiting,
	models.LobbyStatusConfirmation,
	models.LobbyStatusAccepted,
	models.LobbyStatusPlaying,
}

// ensureLobby the player's lobby, created SEARCHING on first use. A player taking part in another
// player's paired or playing lobby gets no lobby of their own.
func (s *LobbyService) ensureLobby(ctx context.Context, tx repository.Tx, guildID, playerID string) (*models.Lobby, error) {
	lobby, err := tx.Lobbies().FindByCreator(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find lobby: %w", err)
	}
	if lobby != nil {
		locked, err := tx.Lobbies().Lock(ctx, lobby.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to lock lobby: %w", err)
		}
		if len(locked) == 0 {
			return nil, notFound("lobby", lobby.ID)
		}
		return &locked[0], nil
	}

	joined, err := tx.Lobbies().FindByPlayer(ctx, playerID, pairedStatuses...)
	if err != nil {
		return nil, fmt.Errorf("failed to find lobby: %w", err)
	}
	if joined != nil {
		return nil, cannotSearch(joined.Status, "search")
	}

	lobby = &models.Lobby{
		GuildID:   guildID,
		CreatedBy: playerID,
		Status:    models.LobbyStatusSearching,
		Mode:      models.LobbyModeFriendlies,
	}
	if err := tx.Lobbies().Create(ctx, lobby); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, cannotSearch(models.LobbyStatusSearching, "create lobby")
		}
		return nil, fmt.Errorf("failed to create lobby: %w", err)
	}
	if err := tx.Lobbies().AddPlayer(ctx, &models.LobbyPlayer{
		LobbyID:  lobby.ID,
		PlayerID: playerID,
		Status:   models.LobbyStatusSearching,
	}); err != nil {
		return nil, fmt.Errorf("failed to add lobby player: %w", err)
	}
	return lobby, nil
}

// setStatus moves the lobby and the owner's participant row together.
func setStatus(ctx context.Context, tx repository.Tx, lobby *models.Lobby, status models.LobbyStatus) error {
	lobby.Status = status
	if err := tx.Lobbies().Update(ctx, lobby); err != nil {
		return fmt.Errorf("failed to update lobby: %w", err)
	}
	lp, err := tx.Lobbies().FindPlayer(ctx, lobby.ID, lobby.CreatedBy)
	if err != nil {
		return fmt.Errorf("failed to find lobby player: %w", err)
	}
	if lp == nil {
		return nil
	}
	lp.Status = status
	if err := tx.Lobbies().UpdatePlayer(ctx, lp); err != nil {
		return fmt.Errorf("failed to update lobby player: %w", err)
	}
	return nil
}

// addTarget adds target to the player's lobby. Eligibility has been checked by the caller.
func (s *LobbyService) addTarget(ctx context.Context, tx repository.Tx, guildID, playerID string, target SearchTarget) (*models.Lobby, error) {
	lobby, err := s.ensureLobby(ctx, tx, guildID, playerID)
	if err != nil {
		return nil, err
	}
	if searchBlocked[lobby.Status] {
		return nil, cannotSearch(lobby.Status, "search")
	}

	if target.Ranked {
		if lobby.Ranked {
			return nil, ErrAlreadySearching
		}
		lobby.Ranked = true
	} else {
		err := tx.Lobbies().AddTier(ctx, &models.LobbyTier{LobbyID: lobby.ID, TierID: target.TierID})
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, tierError(KindAlreadySearching, target.TierID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to add search target: %w", err)
		}
	}

	if err := setStatus(ctx, tx, lobby, models.LobbyStatusSearching); err != nil {
		return nil, err
	}
	return lobby, nil
}

// StopSearch removes one target (or every target when all is set). A lobby left with nothing to
// search is deleted.
func (s *LobbyService) StopSearch(ctx context.Context, guildID, playerID string, target SearchTarget, all bool) (*StopSearchResult, error) {
	var result *StopSearchResult
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		lobby, err := tx.Lobbies().FindByCreator(ctx, playerID)
		if err != nil {
			return fmt.Errorf("failed to find lobby: %w", err)
		}
		if lobby == nil || lobby.GuildID != guildID {
			return ErrNotSearching
		}
		locked, err := tx.Lobbies().Lock(ctx, lobby.ID)
		if err != nil {
			return fmt.Errorf("failed to lock lobby: %w", err)
		}
		if len(locked) == 0 {
			return ErrNotSearching
		}
		lobby = &locked[0]
		if lobby.Status != models.LobbyStatusSearching && lobby.Status != models.LobbyStatusAFK {
			return cannotSearch(lobby.Status, "stop search")
		}

		targets, err := tx.Lobbies().ListTiers(ctx, lobby.ID)
		if err != nil {
			return fmt.Errorf("failed to list search targets: %w", err)
		}
		remaining := len(targets)
		removed := map[string]bool{}

		switch {
		case all:
			if remaining == 0 && !lobby.Ranked {
				return ErrNotSearching
			}
			if err := tx.Lobbies().RemoveTiers(ctx, lobby.ID); err != nil {
				return fmt.Errorf("failed to remove search targets: %w", err)
			}
			for _, t := range targets {
				removed[t.TierID] = true
			}
			remaining = 0
			lobby.Ranked = false
		case target.Ranked:
			if !lobby.Ranked {
				return ErrNotSearching
			}
			lobby.Ranked = false
		default:
			if !hasTarget(targets, target.TierID) {
				return tierError(KindNotSearching, target.TierID)
			}
			if err := tx.Lobbies().RemoveTier(ctx, lobby.ID, target.TierID); err != nil {
				return fmt.Errorf("failed to remove search target: %w", err)
			}
			removed[target.TierID] = true
			remaining--
		}

		if remaining == 0 && !lobby.Ranked {
			messages, err := s.deleteLobby(ctx, tx, lobby.ID)
			if err != nil {
				return err
			}
			result = &StopSearchResult{Deleted: true, Messages: messages}
			return nil
		}

		if err := tx.Lobbies().Update(ctx, lobby); err != nil {
			return fmt.Errorf("failed to update lobby: %w", err)
		}
		lobbyMessages, err := tx.Messages().ListByLobby(ctx, lobby.ID)
		if err != nil {
			return fmt.Errorf("failed to list lobby messages: %w", err)
		}
		var stale []models.Message
		for _, m := range lobbyMessages {
			if m.TierID != nil && removed[*m.TierID] {
				stale = append(stale, m)
			}
		}
		messages, err := takeMessages(ctx, tx, stale)
		if err != nil {
			return err
		}
		result = &StopSearchResult{Lobby: lobby, Messages: messages}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func hasTarget(targets []models.LobbyTier, tierID string) bool {
	for _, t := range targets {
		if t.TierID == tierID {
			return true
		}
	}
	return false
}

// deleteLobby removes the lobby with its rows and returns the messages that were attached to it.
func (s *LobbyService) deleteLobby(ctx context.Context, tx repository.Tx, lobbyID string) ([]models.Message, error) {
	messages, err := tx.Messages().ListByLobby(ctx, lobbyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lobby messages: %w", err)
	}
	if err := tx.Lobbies().Delete(ctx, lobbyID); err != nil {
		return nil, fmt.Errorf("failed to delete lobby: %w", err)
	}
	return messages, nil
}

// Lobby the player's own lobby, or the paired lobby they joined as a guest.
func (s *LobbyService) Lobby(ctx context.Context, guildID, playerID string) (*LobbyView, error) {
	var view *LobbyView
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		lobby, err := tx.Lobbies().FindByCreator(ctx, playerID)
		if err != nil {
			return fmt.Errorf("failed to find lobby: %w", err)
		}
		if lobby == nil {
			if lobby, err = tx.Lobbies().FindByPlayer(ctx, playerID, pairedStatuses...); err != nil {
				return fmt.Errorf("failed to find lobby: %w", err)
			}
		}
		if lobby == nil || lobby.GuildID != guildID {
			return notFound("lobby", playerID)
		}
		view, err = loadLobbyView(ctx, tx, *lobby)
		return err
	})
	return view, err
}

func loadLobbyView(ctx context.Context, tx repository.Tx, lobby models.Lobby) (*LobbyView, error) {
	players, err := tx.Lobbies().ListPlayers(ctx, lobby.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lobby players: %w", err)
	}
	targets, err := tx.Lobbies().ListTiers(ctx, lobby.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list search targets: %w", err)
	}
	return &LobbyView{Lobby: lobby, Players: players, Targets: targets}, nil
}

// lockLobby row-locks lobbyID. Lobbies of other guilds are reported missing.
func lockLobby(ctx context.Context, tx repository.Tx, guildID, lobbyID string) (*models.Lobby, error) {
	locked, err := tx.Lobbies().Lock(ctx, lobbyID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock lobby: %w", err)
	}
	if len(locked) == 0 || locked[0].GuildID != guildID {
		return nil, notFound("lobby", lobbyID)
	}
	return &locked[0], nil
}

// RemoveLobby deletes a lobby and everything attached to it.
func (s *LobbyService) RemoveLobby(ctx context.Context, guildID, lobbyID string) ([]models.Message, error) {
	var messages []models.Message
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := lockLobby(ctx, tx, guildID, lobbyID); err != nil {
			return err
		}
		var err error
		messages, err = s.deleteLobby(ctx, tx, lobbyID)
		return err
	})
	return messages, err
}

// PurgedLobby one lobby removed by PurgeLobbies. Decline is set when a stale pairing was timed out.
type PurgedLobby struct {
	Lobby    models.Lobby     `json:"lobby"`
	Messages []models.Message `json:"messages"`
	Decline  *DeclineResult   `json:"decline,omitempty"`
}

// PurgeLobbies removes lobbies stuck in status for longer than olderThan. A stale CONFIRMATION or
// WAITING lobby is one half of a pairing: it is resolved as a confirmation timeout, which releases the
// other half too.
func (s *LobbyService) PurgeLobbies(ctx context.Context, status models.LobbyStatus, olderThan time.Duration) ([]PurgedLobby, error) {
	if status == models.LobbyStatusPlaying {
		return nil, invalidAction("playing lobbies are closed through their arena")
	}
	paired := status == models.LobbyStatusConfirmation || status == models.LobbyStatusWaiting

	var stale []models.Lobby
	var purged []PurgedLobby
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		purged = nil
		var err error
		stale, err = tx.Lobbies().ListByStatus(ctx, status, s.now().Add(-olderThan))
		if err != nil {
			return fmt.Errorf("failed to list lobbies: %w", err)
		}
		if paired {
			return nil
		}
		for _, lobby := range stale {
			messages, err := s.deleteLobby(ctx, tx, lobby.ID)
			if err != nil {
				return err
			}
			purged = append(purged, PurgedLobby{Lobby: lobby, Messages: messages})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if paired {
		for _, lobby := range stale {
			p, err := s.purgePairing(ctx, lobby)
			if err != nil {
				return purged, err
			}
			if p != nil {
				purged = append(purged, *p)
			}
		}
	}

	if len(purged) > 0 {
		s.logger.Info("Purged lobbies", zap.String("status", string(status)), zap.Int("count", len(purged)))
	}
	return purged, nil
}

// purgePairing times out the confirmation lobby belongs to. nil when the pairing was already resolved.
func (s *LobbyService) purgePairing(ctx context.Context, lobby models.Lobby) (*PurgedLobby, error) {
	confirmationID := lobby.ID
	if lobby.Status == models.LobbyStatusWaiting {
		var host *models.Lobby
		var orphan *PurgedLobby
		err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			var err error
			host, err = tx.Lobbies().FindByPlayer(ctx, lobby.CreatedBy, models.LobbyStatusConfirmation)
			if err != nil {
				return fmt.Errorf("failed to find confirmation lobby: %w", err)
			}
			if host != nil {
				return nil
			}
			// waiting on a confirmation that no longer exists
			current, err := lockLobby(ctx, tx, lobby.GuildID, lobby.ID)
			if err != nil || current.Status != models.LobbyStatusWaiting {
				return err
			}
			messages, err := s.deleteLobby(ctx, tx, lobby.ID)
			if err != nil {
				return err
			}
			orphan = &PurgedLobby{Lobby: lobby, Messages: messages}
			return nil
		})
		switch {
		case errors.Is(err, ErrNotFound):
			return nil, nil
		case err != nil:
			return nil, err
		case host == nil:
			return orphan, nil
		}
		confirmationID = host.ID
	}

	declined, err := s.confirmation.TimeoutConfirmation(ctx, lobby.GuildID, confirmationID)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAlreadyAccepted), errors.Is(err, ErrCannotSearch):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &PurgedLobby{Lobby: lobby, Messages: declined.Messages, Decline: declined}, nil
}

// BindArena records the channels the adapter opened for a ready lobby.
func (s *LobbyService) BindArena(ctx context.Context, guildID, lobbyID string, textChannelID, voiceChannelID *string) (*models.Lobby, error) {
	var lobby *models.Lobby
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		if lobby, err = lockLobby(ctx, tx, guildID, lobbyID); err != nil {
			return err
		}
		if lobby.Status != models.LobbyStatusPlaying {
			return cannotSearch(lobby.Status, "bind arena")
		}
		lobby.TextChannelID = textChannelID
		lobby.VoiceChannelID = voiceChannelID
		if err := tx.Lobbies().Update(ctx, lobby); err != nil {
			return fmt.Errorf("failed to update lobby: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lobby, nil
}

type CloseArenaResult struct {
	Lobby        models.Lobby     `json:"lobby"`
	CancelledSet *models.GameSet  `json:"cancelledSet,omitempty"`
	Messages     []models.Message `json:"messages"`
}

// CloseArena ends a PLAYING lobby: an unfinished set is cancelled, finished sets outlive the lobby.
func (s *LobbyService) CloseArena(ctx context.Context, guildID, lobbyID string) (*CloseArenaResult, error) {
	var result *CloseArenaResult
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		locked, err := lockLobby(ctx, tx, guildID, lobbyID)
		if err != nil {
			return err
		}
		lobby := *locked
		if lobby.Status != models.LobbyStatusPlaying {
			return cannotSearch(lobby.Status, "close arena")
		}
		result = &CloseArenaResult{Lobby: lobby}

		active, err := tx.Sets().FindActiveByLobby(ctx, lobbyID)
		if err != nil {
			return fmt.Errorf("failed to find active set: %w", err)
		}
		if active != nil {
			if err := tx.Sets().Delete(ctx, active.ID); err != nil {
				return fmt.Errorf("failed to cancel set: %w", err)
			}
			result.CancelledSet = active
		}
		result.Messages, err = s.deleteLobby(ctx, tx, lobbyID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result.CancelledSet != nil {
		s.publish(ctx, models.Event{
			Type:      models.EventSetCancelled,
			GuildID:   result.Lobby.GuildID,
			LobbyID:   result.Lobby.ID,
			GameSetID: result.CancelledSet.ID,
		})
	}
	return result, nil
}

// RegisterMessage records a platform message the adapter may need to delete later.
func (s *LobbyService) RegisterMessage(ctx context.Context, message *models.Message) error {
	if message.ChannelID == "" {
		return invalidAction("message channel is required")
	}
	return s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if message.LobbyID != nil {
			lobby, err := tx.Lobbies().FindByID(ctx, *message.LobbyID)
			if err != nil {
				return fmt.Errorf("failed to find lobby: %w", err)
			}
			if lobby == nil || lobby.GuildID != message.GuildID {
				return notFound("lobby", *message.LobbyID)
			}
		}
		if err := tx.Messages().Create(ctx, message); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return invalidAction("message already registered")
			}
			return fmt.Errorf("failed to register message: %w", err)
		}
		return nil
	})
}
