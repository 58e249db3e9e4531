package service

import (
	"context"
	"fmt"

	"github.com/rl-arena/ladder-backend/internal/models"
	"github.com/rl-arena/ladder-backend/internal/repository"
)

// PlayerService identity mapping, player profiles and guild tiers.
type PlayerService struct {
	*core
}

func newPlayerService(c *core) *PlayerService {
	return &PlayerService{core: c}
}

// ResolvePlayer internal player for a platform user id, created on first sight.
func (s *PlayerService) ResolvePlayer(ctx context.Context, externalID string) (*models.Player, error) {
	if externalID == "" {
		return nil, invalidAction("external player id is required")
	}
	var player *models.Player
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		player, err = tx.Players().FindOrCreatePlayer(ctx, externalID)
		if err != nil {
			return fmt.Errorf("failed to resolve player: %w", err)
		}
		return nil
	})
	return player, err
}

// ResolveGuild internal guild for a platform community id, created on first sight.
func (s *PlayerService) ResolveGuild(ctx context.Context, externalID string) (*models.Guild, error) {
	if externalID == "" {
		return nil, invalidAction("external guild id is required")
	}
	var guild *models.Guild
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		guild, err = tx.Players().FindOrCreateGuild(ctx, externalID)
		if err != nil {
			return fmt.Errorf("failed to resolve guild: %w", err)
		}
		return nil
	})
	return guild, err
}

// Profile the player's capabilities in the guild; zero values when never set.
func (s *PlayerService) Profile(ctx context.Context, guildID, playerID string) (*models.PlayerProfile, error) {
	var profile models.PlayerProfile
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		profile, err = s.profile(ctx, tx, playerID, guildID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// SetProfile stores the player's capabilities in the guild.
func (s *PlayerService) SetProfile(ctx context.Context, guildID, playerID string, req models.UpdateProfileRequest) (*models.PlayerProfile, error) {
	profile := &models.PlayerProfile{
		PlayerID:   playerID,
		GuildID:    guildID,
		Cable:      req.Cable,
		YuzuHost:   req.YuzuHost,
		YuzuClient: req.YuzuClient,
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Players().UpsertProfile(ctx, profile); err != nil {
			return fmt.Errorf("failed to update profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// Tiers the guild's tiers, strongest weighted tier first, unweighted tiers last.
func (s *PlayerService) Tiers(ctx context.Context, guildID string) ([]models.Tier, error) {
	var tiers []models.Tier
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		graph, err := s.tierGraph(ctx, tx, guildID)
		if err != nil {
			return err
		}
		tiers = graph.All()
		return nil
	})
	return tiers, err
}

// SaveTier creates or updates a tier of the guild.
func (s *PlayerService) SaveTier(ctx context.Context, tier *models.Tier) error {
	if tier.Name == "" || tier.GuildID == "" {
		return invalidAction("tier name and guild are required")
	}
	if tier.Yuzu && tier.Weight != nil {
		return invalidAction("yuzu tiers cannot be weighted")
	}
	return s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Tiers().Upsert(ctx, tier); err != nil {
			return fmt.Errorf("failed to save tier: %w", err)
		}
		return nil
	})
}
