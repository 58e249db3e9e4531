package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rl-arena/ladder-backend/internal/models"
	"github.com/rl-arena/ladder-backend/internal/repository"
)

// Publisher receives events after the transaction that produced them committed.
type Publisher interface {
	Publish(ctx context.Context, event models.Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, models.Event) error { return nil }

// core dependencies shared by every engine service.
type core struct {
	store  repository.Store
	ledger ExclusionLedger
	locker Locker
	events Publisher
	opts   Options
	logger *zap.Logger
}

func (c *core) now() time.Time {
	return c.opts.Now().UTC()
}

// publish failures never undo a committed transition; they are only logged.
func (c *core) publish(ctx context.Context, event models.Event) {
	event.Timestamp = c.now()
	if err := c.events.Publish(ctx, event); err != nil {
		c.logger.Error("Failed to publish event",
			zap.String("type", string(event.Type)),
			zap.String("guildId", event.GuildID),
			zap.Error(err))
	}
}

func (c *core) tierGraph(ctx context.Context, tx repository.Tx, guildID string) (*TierGraph, error) {
	tiers, err := tx.Tiers().ListByGuild(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tiers: %w", err)
	}
	return NewTierGraph(tiers, c.opts.TierSearchReach), nil
}

func (c *core) profile(ctx context.Context, tx repository.Tx, playerID, guildID string) (models.PlayerProfile, error) {
	p, err := tx.Players().FindProfile(ctx, playerID, guildID)
	if err != nil {
		return models.PlayerProfile{}, fmt.Errorf("failed to find profile: %w", err)
	}
	if p == nil {
		return models.PlayerProfile{PlayerID: playerID, GuildID: guildID}, nil
	}
	return *p, nil
}

// ensureRating returns the player's rating, creating it in the weakest weighted tier at that tier's threshold.
func (c *core) ensureRating(ctx context.Context, tx repository.Tx, graph *TierGraph, playerID, guildID string) (*models.Rating, error) {
	r, err := tx.Ratings().Find(ctx, playerID, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to find rating: %w", err)
	}
	if r != nil {
		return r, nil
	}
	r = &models.Rating{PlayerID: playerID, GuildID: guildID}
	if weakest, ok := graph.Weakest(); ok {
		r.TierID = &weakest.ID
		r.Score = weakest.ThresholdValue()
	}
	if err := tx.Ratings().Upsert(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to create rating: %w", err)
	}
	return r, nil
}

// takeMessages returns the rows and forgets them; the caller deletes the platform messages.
func takeMessages(ctx context.Context, tx repository.Tx, messages []models.Message) ([]models.Message, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	ids := make([]string, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}
	if err := tx.Messages().Delete(ctx, ids...); err != nil {
		return nil, fmt.Errorf("failed to delete messages: %w", err)
	}
	return messages, nil
}
