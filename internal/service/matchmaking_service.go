package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl-arena/ladder-backend/internal/models"
	"github.com/rl-arena/ladder-backend/internal/repository"
)

// SearchResult outcome of a search. Lobby is nil when the lobby no longer exists.
type SearchResult struct {
	Lobby           *models.Lobby        `json:"lobby,omitempty"`
	Matched         bool                 `json:"matched"`
	OpponentID      string               `json:"opponentId,omitempty"`
	OpponentLobbyID string               `json:"opponentLobbyId,omitempty"`
	TierID          string               `json:"tierId,omitempty"`
	Mode            models.LobbyMode     `json:"mode,omitempty"`
	Bonus           bool                 `json:"bonus"`
	Players         []models.LobbyPlayer `json:"players,omitempty"`
}

// opponent a candidate picked by the scan.
type opponent struct {
	lobby    models.Lobby
	playerID string
	tierID   string
	ranked   bool
	bonus    bool
}

// rankedRule decides whether two ratings may meet in a ranked pass.
type rankedRule func(graph *TierGraph, a, b models.Rating) bool

// rankedCompatible regular ranked pairing: same tier outside promotion, or a promotion player against
// a player of the tier they are promoting into.
func rankedCompatible(graph *TierGraph, a, b models.Rating) bool {
	if a.TierID == nil || b.TierID == nil {
		return false
	}
	switch {
	case !a.Promotion && !b.Promotion:
		return *a.TierID == *b.TierID
	case a.Promotion && !b.Promotion:
		up, ok := graph.Stronger(*a.TierID)
		return ok && up.ID == *b.TierID
	case !a.Promotion && b.Promotion:
		up, ok := graph.Stronger(*b.TierID)
		return ok && up.ID == *a.TierID
	}
	return false
}

// promotionBonusWidening second pass: exactly one player in promotion, both still in the same tier.
// Such a pairing counts as a bonus set for the promotion player.
func promotionBonusWidening(graph *TierGraph, a, b models.Rating) bool {
	if a.TierID == nil || b.TierID == nil || a.Promotion == b.Promotion {
		return false
	}
	return *a.TierID == *b.TierID
}

// MatchmakingService pairs searching lobbies, open tiers and the ranked ladder.
type MatchmakingService struct {
	*core
	lobbies *LobbyService
}

func newMatchmakingService(c *core, lobbies *LobbyService) *MatchmakingService {
	return &MatchmakingService{core: c, lobbies: lobbies}
}

// Search adds target to the player's lobby and tries to pair it right away.
func (s *MatchmakingService) Search(ctx context.Context, guildID, playerID string, target SearchTarget) (*SearchResult, error) {
	if target.TierID == "" && !target.Ranked {
		return nil, invalidAction("search target is required")
	}

	var lobby *models.Lobby
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		graph, err := s.tierGraph(ctx, tx, guildID)
		if err != nil {
			return err
		}
		profile, err := s.profile(ctx, tx, playerID, guildID)
		if err != nil {
			return err
		}
		rating, err := tx.Ratings().Find(ctx, playerID, guildID)
		if err != nil {
			return fmt.Errorf("failed to find rating: %w", err)
		}

		if target.Ranked {
			if _, ok := graph.Weakest(); !ok {
				return notFound("tier", "ranked ladder")
			}
			if !profile.Cable {
				return ErrNoCable
			}
			if _, err := s.ensureRating(ctx, tx, graph, playerID, guildID); err != nil {
				return err
			}
		} else {
			tier, ok := graph.Tier(target.TierID)
			if !ok {
				return notFound("tier", target.TierID)
			}
			var tierID *string
			if rating != nil {
				tierID = rating.TierID
			}
			if err := graph.CanSearchIn(tierID, tier, profile); err != nil {
				return err
			}
		}

		lobby, err = s.lobbies.addTarget(ctx, tx, guildID, playerID, target)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Search target added",
		zap.String("lobbyId", lobby.ID),
		zap.String("tierId", target.TierID),
		zap.Bool("ranked", target.Ranked))

	return s.tryMatch(ctx, lobby.GuildID, lobby.ID, playerID)
}

// tryMatch scans for an opponent and pairs inside one transaction. A lost race (opponent no longer
// SEARCHING at lock time) skips that opponent and rescans, up to MatchRetryAttempts times.
func (s *MatchmakingService) tryMatch(ctx context.Context, guildID, lobbyID, playerID string) (*SearchResult, error) {
	excludedIDs, err := s.ledger.Excluded(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to read exclusions: %w", err)
	}
	excluded := make(map[string]bool, len(excludedIDs))
	for _, id := range excludedIDs {
		excluded[id] = true
	}

	lease, err := s.lockGuild(ctx, guildID)
	if err != nil {
		return nil, err
	}
	defer s.releaseGuild(lease, guildID)

	skip := map[string]bool{}
	var result *SearchResult
	for attempt := 0; attempt < s.opts.MatchRetryAttempts; attempt++ {
		if attempt > 0 {
			if err := lease.Extend(ctx, s.opts.MatchLockTTL); err != nil {
				s.logger.Warn("Failed to extend matchmaking lock", zap.String("guildId", guildID), zap.Error(err))
			}
		}
		raced := false
		err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			locked, err := tx.Lobbies().Lock(ctx, lobbyID)
			if err != nil {
				return fmt.Errorf("failed to lock lobby: %w", err)
			}
			if len(locked) == 0 {
				result = &SearchResult{}
				return nil
			}
			lobby := locked[0]
			result = &SearchResult{Lobby: &lobby}
			if lobby.Status != models.LobbyStatusSearching {
				return nil
			}

			opp, err := s.findOpponent(ctx, tx, lobby, excluded, skip)
			if err != nil || opp == nil {
				return err
			}

			pairLocked, err := tx.Lobbies().Lock(ctx, lobby.ID, opp.lobby.ID)
			if err != nil {
				return fmt.Errorf("failed to lock lobbies: %w", err)
			}
			var current *models.Lobby
			for i := range pairLocked {
				if pairLocked[i].ID == opp.lobby.ID {
					current = &pairLocked[i]
				}
			}
			if current == nil || current.Status != models.LobbyStatusSearching {
				skip[opp.lobby.ID] = true
				raced = true
				return nil
			}
			opp.lobby = *current

			result, err = s.pair(ctx, tx, lobby, *opp)
			return err
		})
		if err != nil {
			return nil, err
		}
		if !raced {
			break
		}
		s.logger.Debug("Opponent taken by a concurrent search, rescanning",
			zap.String("lobbyId", lobbyID),
			zap.Int("attempt", attempt+1))
	}

	if result.Matched {
		s.logger.Info("Lobbies matched",
			zap.String("lobbyId", result.Lobby.ID),
			zap.String("opponentLobbyId", result.OpponentLobbyID),
			zap.String("mode", string(result.Mode)),
			zap.Bool("bonus", result.Bonus))
		s.publish(ctx, models.Event{
			Type:      models.EventLobbyMatched,
			GuildID:   guildID,
			LobbyID:   result.Lobby.ID,
			PlayerIDs: []string{playerID, result.OpponentID},
		})
	}
	return result, nil
}

// lockGuild serializes pairing in guildID. Every path that pairs two lobbies takes it before any row lock.
func (s *MatchmakingService) lockGuild(ctx context.Context, guildID string) (Lease, error) {
	lease, err := s.locker.Lock(ctx, "matchmaking:lock:"+guildID, s.opts.MatchLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire matchmaking lock: %w", err)
	}
	return lease, nil
}

func (s *MatchmakingService) releaseGuild(lease Lease, guildID string) {
	if err := lease.Release(context.Background()); err != nil {
		s.logger.Warn("Failed to release matchmaking lock", zap.String("guildId", guildID), zap.Error(err))
	}
}

// findOpponent ranked passes first, then open tiers. nil when nobody fits.
func (s *MatchmakingService) findOpponent(ctx context.Context, tx repository.Tx, lobby models.Lobby, excluded, skip map[string]bool) (*opponent, error) {
	graph, err := s.tierGraph(ctx, tx, lobby.GuildID)
	if err != nil {
		return nil, err
	}
	usable := func(l models.Lobby) bool {
		return !skip[l.ID] && !excluded[l.CreatedBy] && l.CreatedBy != lobby.CreatedBy
	}

	if lobby.Ranked {
		opp, err := s.findRanked(ctx, tx, graph, lobby, usable)
		if err != nil || opp != nil {
			return opp, err
		}
	}

	targets, err := tx.Lobbies().ListTiers(ctx, lobby.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list search targets: %w", err)
	}
	if len(targets) == 0 {
		return nil, nil
	}
	tierIDs := make([]string, len(targets))
	for i, t := range targets {
		tierIDs[i] = t.TierID
	}

	candidates, err := tx.Lobbies().FindCandidates(ctx, lobby.GuildID, lobby.ID, tierIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to find candidates: %w", err)
	}
	var profile *models.PlayerProfile
	for _, c := range candidates {
		if !usable(c.Lobby) {
			continue
		}
		if tier, ok := graph.Tier(c.TierID); ok && tier.Yuzu {
			if profile == nil {
				p, err := s.profile(ctx, tx, lobby.CreatedBy, lobby.GuildID)
				if err != nil {
					return nil, err
				}
				profile = &p
			}
			other, err := s.profile(ctx, tx, c.PlayerID, lobby.GuildID)
			if err != nil {
				return nil, err
			}
			if !YuzuCompatible(*profile, other) {
				continue
			}
		}
		return &opponent{lobby: c.Lobby, playerID: c.PlayerID, tierID: c.TierID}, nil
	}
	return nil, nil
}

func (s *MatchmakingService) findRanked(ctx context.Context, tx repository.Tx, graph *TierGraph, lobby models.Lobby, usable func(models.Lobby) bool) (*opponent, error) {
	me, err := s.ensureRating(ctx, tx, graph, lobby.CreatedBy, lobby.GuildID)
	if err != nil {
		return nil, err
	}
	candidates, err := tx.Lobbies().FindRankedCandidates(ctx, lobby.GuildID, lobby.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find ranked candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	myDefeated, err := s.defeatedInPromotion(ctx, tx, *me)
	if err != nil {
		return nil, err
	}
	today := startOfDay(s.now())

	for pass, rule := range []rankedRule{rankedCompatible, promotionBonusWidening} {
		for _, c := range candidates {
			if !usable(c) {
				continue
			}
			other, err := tx.Ratings().Find(ctx, c.CreatedBy, c.GuildID)
			if err != nil {
				return nil, fmt.Errorf("failed to find rating: %w", err)
			}
			if other == nil || !rule(graph, *me, *other) {
				continue
			}

			played, err := tx.Sets().CountRankedBetween(ctx, lobby.GuildID, me.PlayerID, other.PlayerID, today)
			if err != nil {
				return nil, fmt.Errorf("failed to count ranked sets: %w", err)
			}
			if played >= s.opts.RankedDailySetLimit {
				continue
			}

			if pass == 0 {
				if myDefeated[other.PlayerID] {
					continue
				}
				theirDefeated, err := s.defeatedInPromotion(ctx, tx, *other)
				if err != nil {
					return nil, err
				}
				if theirDefeated[me.PlayerID] {
					continue
				}
			}
			return &opponent{lobby: c, playerID: c.CreatedBy, ranked: true, bonus: pass == 1}, nil
		}
	}
	return nil, nil
}

// defeatedInPromotion opponents r beat since its promotion window opened.
func (s *MatchmakingService) defeatedInPromotion(ctx context.Context, tx repository.Tx, r models.Rating) (map[string]bool, error) {
	if !r.Promotion || r.PromotionStartedAt == nil {
		return nil, nil
	}
	history, err := tx.Sets().RankedHistory(ctx, r.PlayerID, r.GuildID, r.PromotionStartedAt, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load ranked history: %w", err)
	}
	defeated := make(map[string]bool, len(history))
	for _, h := range history {
		if h.Won {
			defeated[h.OpponentID] = true
		}
	}
	return defeated, nil
}

// pair the caller drives the confirmation, the opponent's lobby waits.
func (s *MatchmakingService) pair(ctx context.Context, tx repository.Tx, lobby models.Lobby, opp opponent) (*SearchResult, error) {
	lobby.Mode = models.LobbyModeFriendlies
	if opp.ranked {
		lobby.Mode = models.LobbyModeRanked
	}
	lobby.Bonus = opp.bonus
	if err := setStatus(ctx, tx, &lobby, models.LobbyStatusConfirmation); err != nil {
		return nil, err
	}
	if err := setStatus(ctx, tx, &opp.lobby, models.LobbyStatusWaiting); err != nil {
		return nil, err
	}
	if err := tx.Lobbies().AddPlayer(ctx, &models.LobbyPlayer{
		LobbyID:  lobby.ID,
		PlayerID: opp.playerID,
		Status:   models.LobbyStatusConfirmation,
	}); err != nil {
		return nil, fmt.Errorf("failed to add opponent to lobby: %w", err)
	}

	players, err := tx.Lobbies().ListPlayers(ctx, lobby.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lobby players: %w", err)
	}
	return &SearchResult{
		Lobby:           &lobby,
		Matched:         true,
		OpponentID:      opp.playerID,
		OpponentLobbyID: opp.lobby.ID,
		TierID:          opp.tierID,
		Mode:            lobby.Mode,
		Bonus:           lobby.Bonus,
		Players:         players,
	}, nil
}

// DirectMatch pairs the caller with one specific player searching tierID.
func (s *MatchmakingService) DirectMatch(ctx context.Context, guildID, playerID, opponentID, tierID string) (*SearchResult, error) {
	if playerID == opponentID {
		return nil, ErrSamePlayer
	}
	rejected, err := s.ledger.IsExcluded(ctx, playerID, opponentID)
	if err != nil {
		return nil, fmt.Errorf("failed to read exclusions: %w", err)
	}
	if rejected {
		return nil, ErrRejectedPlayer
	}

	lease, err := s.lockGuild(ctx, guildID)
	if err != nil {
		return nil, err
	}
	defer s.releaseGuild(lease, guildID)

	var result *SearchResult
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		graph, err := s.tierGraph(ctx, tx, guildID)
		if err != nil {
			return err
		}
		tier, ok := graph.Tier(tierID)
		if !ok {
			return notFound("tier", tierID)
		}
		profile, err := s.profile(ctx, tx, playerID, guildID)
		if err != nil {
			return err
		}
		rating, err := tx.Ratings().Find(ctx, playerID, guildID)
		if err != nil {
			return fmt.Errorf("failed to find rating: %w", err)
		}
		var myTier *string
		if rating != nil {
			myTier = rating.TierID
		}
		if err := graph.CanSearchIn(myTier, tier, profile); err != nil {
			return err
		}

		oppLobby, err := tx.Lobbies().FindByCreator(ctx, opponentID)
		if err != nil {
			return fmt.Errorf("failed to find opponent lobby: %w", err)
		}
		if oppLobby == nil || oppLobby.GuildID != guildID || oppLobby.Status != models.LobbyStatusSearching {
			return ErrNotSearching
		}
		targets, err := tx.Lobbies().ListTiers(ctx, oppLobby.ID)
		if err != nil {
			return fmt.Errorf("failed to list search targets: %w", err)
		}
		if !hasTarget(targets, tierID) {
			return tierError(KindNotSearching, tierID)
		}
		if tier.Yuzu {
			other, err := s.profile(ctx, tx, opponentID, guildID)
			if err != nil {
				return err
			}
			if !YuzuCompatible(profile, other) {
				return tierError(KindIncompatibleYuzu, tierID)
			}
		}

		lobby, err := s.lobbies.ensureLobby(ctx, tx, guildID, playerID)
		if err != nil {
			return err
		}

		// statuses are re-read under the row locks
		locked, err := tx.Lobbies().Lock(ctx, lobby.ID, oppLobby.ID)
		if err != nil {
			return fmt.Errorf("failed to lock lobbies: %w", err)
		}
		var mine, theirs *models.Lobby
		for i := range locked {
			switch locked[i].ID {
			case lobby.ID:
				mine = &locked[i]
			case oppLobby.ID:
				theirs = &locked[i]
			}
		}
		if mine == nil {
			return notFound("lobby", lobby.ID)
		}
		if mine.Status != models.LobbyStatusSearching && mine.Status != models.LobbyStatusAFK {
			return cannotSearch(mine.Status, "match")
		}
		if theirs == nil || theirs.Status != models.LobbyStatusSearching {
			return ErrNotSearching
		}

		result, err = s.pair(ctx, tx, *mine, opponent{lobby: *theirs, playerID: opponentID, tierID: tierID})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, models.Event{
		Type:      models.EventLobbyMatched,
		GuildID:   guildID,
		LobbyID:   result.Lobby.ID,
		PlayerIDs: []string{playerID, opponentID},
	})
	return result, nil
}
