package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rl-arena/ladder-backend/internal/models"
)

type playerRepo struct{ q *sql.Tx }

func (r playerRepo) FindOrCreatePlayer(ctx context.Context, externalID string) (*models.Player, error) {
	query := `
		INSERT INTO players (id, external_id)
		VALUES ($1, $2)
		ON CONFLICT (external_id) DO UPDATE SET external_id = EXCLUDED.external_id
		RETURNING id, external_id, created_at
	`
	p := &models.Player{}
	err := r.q.QueryRowContext(ctx, query, newID(), externalID).Scan(&p.ID, &p.ExternalID, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert player: %w", err)
	}
	return p, nil
}

func (r playerRepo) FindOrCreateGuild(ctx context.Context, externalID string) (*models.Guild, error) {
	query := `
		INSERT INTO guilds (id, external_id)
		VALUES ($1, $2)
		ON CONFLICT (external_id) DO UPDATE SET external_id = EXCLUDED.external_id
		RETURNING id, external_id, created_at
	`
	g := &models.Guild{}
	err := r.q.QueryRowContext(ctx, query, newID(), externalID).Scan(&g.ID, &g.ExternalID, &g.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert guild: %w", err)
	}
	return g, nil
}

func scanProfile(s scanner) (models.PlayerProfile, error) {
	var p models.PlayerProfile
	err := s.Scan(&p.PlayerID, &p.GuildID, &p.Cable, &p.YuzuHost, &p.YuzuClient)
	return p, err
}

func (r playerRepo) FindProfile(ctx context.Context, playerID, guildID string) (*models.PlayerProfile, error) {
	p, err := queryOne(ctx, r.q, scanProfile, `
		SELECT player_id, guild_id, cable, yuzu_host, yuzu_client
		FROM player_profiles
		WHERE player_id = $1 AND guild_id = $2
	`, playerID, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	return p, nil
}

func (r playerRepo) UpsertProfile(ctx context.Context, p *models.PlayerProfile) error {
	query := `
		INSERT INTO player_profiles (player_id, guild_id, cable, yuzu_host, yuzu_client)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (player_id, guild_id) DO UPDATE
		SET cable = EXCLUDED.cable, yuzu_host = EXCLUDED.yuzu_host, yuzu_client = EXCLUDED.yuzu_client
	`
	if _, err := r.q.ExecContext(ctx, query, p.PlayerID, p.GuildID, p.Cable, p.YuzuHost, p.YuzuClient); err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

type tierRepo struct{ q *sql.Tx }

const tierColumns = `id, guild_id, name, weight, threshold, yuzu`

func scanTier(s scanner) (models.Tier, error) {
	var t models.Tier
	err := s.Scan(&t.ID, &t.GuildID, &t.Name, &t.Weight, &t.Threshold, &t.Yuzu)
	return t, err
}

func (r tierRepo) FindByID(ctx context.Context, id string) (*models.Tier, error) {
	if !validID(id) {
		return nil, nil
	}
	t, err := queryOne(ctx, r.q, scanTier, `SELECT `+tierColumns+` FROM tiers WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find tier: %w", err)
	}
	return t, nil
}

func (r tierRepo) ListByGuild(ctx context.Context, guildID string) ([]models.Tier, error) {
	tiers, err := queryAll(ctx, r.q, scanTier, `SELECT `+tierColumns+` FROM tiers WHERE guild_id = $1 ORDER BY id`, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tiers: %w", err)
	}
	return tiers, nil
}

func (r tierRepo) Upsert(ctx context.Context, t *models.Tier) error {
	if t.ID == "" {
		t.ID = newID()
	}
	query := `
		INSERT INTO tiers (` + tierColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, weight = EXCLUDED.weight, threshold = EXCLUDED.threshold, yuzu = EXCLUDED.yuzu
	`
	if _, err := r.q.ExecContext(ctx, query, t.ID, t.GuildID, t.Name, t.Weight, t.Threshold, t.Yuzu); err != nil {
		return fmt.Errorf("failed to upsert tier: %w", err)
	}
	return nil
}

type stageRepo struct{ q *sql.Tx }

func (r stageRepo) List(ctx context.Context) ([]models.Stage, error) {
	stages, err := queryAll(ctx, r.q, func(s scanner) (models.Stage, error) {
		var st models.Stage
		err := s.Scan(&st.ID, &st.Name, &st.Starter, &st.Counterpick)
		return st, err
	}, `SELECT id, name, starter, counterpick FROM stages ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	return stages, nil
}

type ratingRepo struct{ q *sql.Tx }

func (r ratingRepo) Find(ctx context.Context, playerID, guildID string) (*models.Rating, error) {
	rating, err := queryOne(ctx, r.q, func(s scanner) (models.Rating, error) {
		var rt models.Rating
		err := s.Scan(
			&rt.PlayerID, &rt.GuildID, &rt.TierID, &rt.Score,
			&rt.Promotion, &rt.PromotionWins, &rt.PromotionLosses,
			&rt.PromotionBonusScore, &rt.PromotionBonusSets, &rt.PromotionStartedAt,
			&rt.UpdatedAt,
		)
		return rt, err
	}, `
		SELECT player_id, guild_id, tier_id, score,
		       promotion, promotion_wins, promotion_losses,
		       promotion_bonus_score, promotion_bonus_sets, promotion_started_at,
		       updated_at
		FROM ratings
		WHERE player_id = $1 AND guild_id = $2
	`, playerID, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to find rating: %w", err)
	}
	return rating, nil
}

func (r ratingRepo) Upsert(ctx context.Context, rt *models.Rating) error {
	query := `
		INSERT INTO ratings (
			player_id, guild_id, tier_id, score,
			promotion, promotion_wins, promotion_losses,
			promotion_bonus_score, promotion_bonus_sets, promotion_started_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (player_id, guild_id) DO UPDATE
		SET tier_id = EXCLUDED.tier_id,
		    score = EXCLUDED.score,
		    promotion = EXCLUDED.promotion,
		    promotion_wins = EXCLUDED.promotion_wins,
		    promotion_losses = EXCLUDED.promotion_losses,
		    promotion_bonus_score = EXCLUDED.promotion_bonus_score,
		    promotion_bonus_sets = EXCLUDED.promotion_bonus_sets,
		    promotion_started_at = EXCLUDED.promotion_started_at,
		    updated_at = NOW()
		RETURNING updated_at
	`
	err := r.q.QueryRowContext(ctx, query,
		rt.PlayerID, rt.GuildID, rt.TierID, rt.Score,
		rt.Promotion, rt.PromotionWins, rt.PromotionLosses,
		rt.PromotionBonusScore, rt.PromotionBonusSets, rt.PromotionStartedAt,
	).Scan(&rt.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert rating: %w", err)
	}
	return nil
}
