package memory

import (
	"context"
	"sort"

	"github.com/rl-arena/ladder-backend/internal/models"
)

type playerRepo struct{ t *tx }

func (r playerRepo) FindOrCreatePlayer(ctx context.Context, externalID string) (*models.Player, error) {
	for _, p := range r.t.data.players {
		if p.ExternalID == externalID {
			return ptr(p), nil
		}
	}
	p := models.Player{ID: newID(), ExternalID: externalID, CreatedAt: r.t.store.now()}
	r.t.data.players[p.ID] = p
	return ptr(p), nil
}

func (r playerRepo) FindOrCreateGuild(ctx context.Context, externalID string) (*models.Guild, error) {
	for _, g := range r.t.data.guilds {
		if g.ExternalID == externalID {
			return ptr(g), nil
		}
	}
	g := models.Guild{ID: newID(), ExternalID: externalID, CreatedAt: r.t.store.now()}
	r.t.data.guilds[g.ID] = g
	return ptr(g), nil
}

func (r playerRepo) FindProfile(ctx context.Context, playerID, guildID string) (*models.PlayerProfile, error) {
	p, ok := r.t.data.profiles[profileKey{playerID, guildID}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r playerRepo) UpsertProfile(ctx context.Context, profile *models.PlayerProfile) error {
	r.t.data.profiles[profileKey{profile.PlayerID, profile.GuildID}] = *profile
	return nil
}

type tierRepo struct{ t *tx }

func (r tierRepo) FindByID(ctx context.Context, id string) (*models.Tier, error) {
	tier, ok := r.t.data.tiers[id]
	if !ok {
		return nil, nil
	}
	return &tier, nil
}

func (r tierRepo) ListByGuild(ctx context.Context, guildID string) ([]models.Tier, error) {
	var tiers []models.Tier
	for _, tier := range r.t.data.tiers {
		if tier.GuildID == guildID {
			tiers = append(tiers, tier)
		}
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].ID < tiers[j].ID })
	return tiers, nil
}

func (r tierRepo) Upsert(ctx context.Context, tier *models.Tier) error {
	if tier.ID == "" {
		tier.ID = newID()
	}
	r.t.data.tiers[tier.ID] = *tier
	return nil
}

type stageRepo struct{ t *tx }

func (r stageRepo) List(ctx context.Context) ([]models.Stage, error) {
	return append([]models.Stage(nil), r.t.data.stages...), nil
}

type ratingRepo struct{ t *tx }

func (r ratingRepo) Find(ctx context.Context, playerID, guildID string) (*models.Rating, error) {
	rating, ok := r.t.data.ratings[profileKey{playerID, guildID}]
	if !ok {
		return nil, nil
	}
	return &rating, nil
}

func (r ratingRepo) Upsert(ctx context.Context, rating *models.Rating) error {
	rating.UpdatedAt = r.t.store.now()
	r.t.data.ratings[profileKey{rating.PlayerID, rating.GuildID}] = *rating
	return nil
}
