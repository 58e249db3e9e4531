package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/rl-arena/ladder-backend/internal/models"
	"github.com/rl-arena/ladder-backend/internal/repository"
)

type lobbyRepo struct{ q *sql.Tx }

const lobbyColumns = `l.id, l.guild_id, l.created_by, l.status, l.mode, l.ranked, l.bonus,
	l.text_channel_id, l.voice_channel_id, l.created_at, l.updated_at`

func scanLobbyInto(s scanner, l *models.Lobby, extra ...any) error {
	dest := []any{
		&l.ID, &l.GuildID, &l.CreatedBy, &l.Status, &l.Mode, &l.Ranked, &l.Bonus,
		&l.TextChannelID, &l.VoiceChannelID, &l.CreatedAt, &l.UpdatedAt,
	}
	return s.Scan(append(dest, extra...)...)
}

func scanLobby(s scanner) (models.Lobby, error) {
	var l models.Lobby
	err := scanLobbyInto(s, &l)
	return l, err
}

func (r lobbyRepo) Create(ctx context.Context, l *models.Lobby) error {
	if l.ID == "" {
		l.ID = newID()
	}
	query := `
		INSERT INTO lobbies (id, guild_id, created_by, status, mode, ranked, bonus, text_channel_id, voice_channel_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	err := r.q.QueryRowContext(ctx, query,
		l.ID, l.GuildID, l.CreatedBy, l.Status, l.Mode, l.Ranked, l.Bonus, l.TextChannelID, l.VoiceChannelID,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if err := duplicate(err); errors.Is(err, repository.ErrDuplicate) {
			return err
		}
		return fmt.Errorf("failed to create lobby: %w", err)
	}
	return nil
}

func (r lobbyRepo) FindByID(ctx context.Context, id string) (*models.Lobby, error) {
	if !validID(id) {
		return nil, nil
	}
	l, err := queryOne(ctx, r.q, scanLobby, `SELECT `+lobbyColumns+` FROM lobbies l WHERE l.id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find lobby: %w", err)
	}
	return l, nil
}

func (r lobbyRepo) FindByCreator(ctx context.Context, playerID string) (*models.Lobby, error) {
	l, err := queryOne(ctx, r.q, scanLobby, `SELECT `+lobbyColumns+` FROM lobbies l WHERE l.created_by = $1`, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find lobby by creator: %w", err)
	}
	return l, nil
}

func (r lobbyRepo) FindByPlayer(ctx context.Context, playerID string, statuses ...models.LobbyStatus) (*models.Lobby, error) {
	l, err := queryOne(ctx, r.q, scanLobby, `
		SELECT `+lobbyColumns+`
		FROM lobbies l
		JOIN lobby_players lp ON lp.lobby_id = l.id
		WHERE lp.player_id = $1
		  AND (cardinality($2::text[]) = 0 OR l.status = ANY($2::text[]))
		ORDER BY l.created_at
		LIMIT 1
	`, playerID, statusArray(statuses))
	if err != nil {
		return nil, fmt.Errorf("failed to find lobby by player: %w", err)
	}
	return l, nil
}

func (r lobbyRepo) Lock(ctx context.Context, ids ...string) ([]models.Lobby, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	lobbies, err := queryAll(ctx, r.q, scanLobby, `
		SELECT `+lobbyColumns+`
		FROM lobbies l
		WHERE l.id = ANY($1::uuid[])
		ORDER BY l.id
		FOR UPDATE
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to lock lobbies: %w", err)
	}
	return lobbies, nil
}

func (r lobbyRepo) Update(ctx context.Context, l *models.Lobby) error {
	query := `
		UPDATE lobbies
		SET status = $1, mode = $2, ranked = $3, bonus = $4,
		    text_channel_id = $5, voice_channel_id = $6, updated_at = NOW()
		WHERE id = $7
		RETURNING updated_at
	`
	err := r.q.QueryRowContext(ctx, query,
		l.Status, l.Mode, l.Ranked, l.Bonus, l.TextChannelID, l.VoiceChannelID, l.ID,
	).Scan(&l.UpdatedAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to update lobby: %w", err)
	}
	return nil
}

// Delete participants, targets and messages cascade; game sets keep their rows with lobby_id NULL.
func (r lobbyRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM lobbies WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete lobby: %w", err)
	}
	return nil
}

func (r lobbyRepo) ListByStatus(ctx context.Context, status models.LobbyStatus, updatedBefore time.Time) ([]models.Lobby, error) {
	lobbies, err := queryAll(ctx, r.q, scanLobby, `
		SELECT `+lobbyColumns+`
		FROM lobbies l
		WHERE l.status = $1 AND l.updated_at < $2
		ORDER BY l.updated_at
	`, status, updatedBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to list lobbies: %w", err)
	}
	return lobbies, nil
}

func scanLobbyPlayer(s scanner) (models.LobbyPlayer, error) {
	var p models.LobbyPlayer
	err := s.Scan(&p.LobbyID, &p.PlayerID, &p.Status, &p.NewSetBo3, &p.NewSetBo5, &p.CancelSet, &p.AcceptedAt, &p.CreatedAt)
	return p, err
}

const lobbyPlayerColumns = `lobby_id, player_id, status, new_set_bo3, new_set_bo5, cancel_set, accepted_at, created_at`

func (r lobbyRepo) ListPlayers(ctx context.Context, lobbyID string) ([]models.LobbyPlayer, error) {
	players, err := queryAll(ctx, r.q, scanLobbyPlayer, `
		SELECT `+lobbyPlayerColumns+` FROM lobby_players WHERE lobby_id = $1 ORDER BY created_at, player_id
	`, lobbyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lobby players: %w", err)
	}
	return players, nil
}

func (r lobbyRepo) FindPlayer(ctx context.Context, lobbyID, playerID string) (*models.LobbyPlayer, error) {
	p, err := queryOne(ctx, r.q, scanLobbyPlayer, `
		SELECT `+lobbyPlayerColumns+` FROM lobby_players WHERE lobby_id = $1 AND player_id = $2
	`, lobbyID, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find lobby player: %w", err)
	}
	return p, nil
}

func (r lobbyRepo) AddPlayer(ctx context.Context, p *models.LobbyPlayer) error {
	query := `
		INSERT INTO lobby_players (lobby_id, player_id, status, new_set_bo3, new_set_bo5, cancel_set, accepted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err := r.q.QueryRowContext(ctx, query,
		p.LobbyID, p.PlayerID, p.Status, p.NewSetBo3, p.NewSetBo5, p.CancelSet, p.AcceptedAt,
	).Scan(&p.CreatedAt)
	if err != nil {
		if err := duplicate(err); errors.Is(err, repository.ErrDuplicate) {
			return err
		}
		return fmt.Errorf("failed to add lobby player: %w", err)
	}
	return nil
}

func (r lobbyRepo) UpdatePlayer(ctx context.Context, p *models.LobbyPlayer) error {
	query := `
		UPDATE lobby_players
		SET status = $1, new_set_bo3 = $2, new_set_bo5 = $3, cancel_set = $4, accepted_at = $5
		WHERE lobby_id = $6 AND player_id = $7
	`
	_, err := r.q.ExecContext(ctx, query,
		p.Status, p.NewSetBo3, p.NewSetBo5, p.CancelSet, p.AcceptedAt, p.LobbyID, p.PlayerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update lobby player: %w", err)
	}
	return nil
}

func (r lobbyRepo) RemoveOtherPlayers(ctx context.Context, lobbyID, keepPlayerID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM lobby_players WHERE lobby_id = $1 AND player_id <> $2`, lobbyID, keepPlayerID)
	if err != nil {
		return fmt.Errorf("failed to remove lobby players: %w", err)
	}
	return nil
}

func (r lobbyRepo) ListTiers(ctx context.Context, lobbyID string) ([]models.LobbyTier, error) {
	targets, err := queryAll(ctx, r.q, func(s scanner) (models.LobbyTier, error) {
		var lt models.LobbyTier
		err := s.Scan(&lt.LobbyID, &lt.TierID, &lt.CreatedAt)
		return lt, err
	}, `SELECT lobby_id, tier_id, created_at FROM lobby_tiers WHERE lobby_id = $1 ORDER BY created_at`, lobbyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lobby tiers: %w", err)
	}
	return targets, nil
}

func (r lobbyRepo) AddTier(ctx context.Context, lt *models.LobbyTier) error {
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO lobby_tiers (lobby_id, tier_id) VALUES ($1, $2) RETURNING created_at
	`, lt.LobbyID, lt.TierID).Scan(&lt.CreatedAt)
	if err != nil {
		if err := duplicate(err); errors.Is(err, repository.ErrDuplicate) {
			return err
		}
		return fmt.Errorf("failed to add lobby tier: %w", err)
	}
	return nil
}

func (r lobbyRepo) RemoveTier(ctx context.Context, lobbyID, tierID string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM lobby_tiers WHERE lobby_id = $1 AND tier_id = $2`, lobbyID, tierID); err != nil {
		return fmt.Errorf("failed to remove lobby tier: %w", err)
	}
	return nil
}

func (r lobbyRepo) RemoveTiers(ctx context.Context, lobbyID string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM lobby_tiers WHERE lobby_id = $1`, lobbyID); err != nil {
		return fmt.Errorf("failed to remove lobby tiers: %w", err)
	}
	return nil
}

func (r lobbyRepo) FindCandidates(ctx context.Context, guildID, excludeLobbyID string, tierIDs []string) ([]models.SearchCandidate, error) {
	if len(tierIDs) == 0 {
		return nil, nil
	}
	candidates, err := queryAll(ctx, r.q, func(s scanner) (models.SearchCandidate, error) {
		var c models.SearchCandidate
		err := scanLobbyInto(s, &c.Lobby, &c.TierID, &c.Weight, &c.Since)
		c.PlayerID = c.Lobby.CreatedBy
		return c, err
	}, `
		SELECT `+lobbyColumns+`, lt.tier_id, t.weight, lt.created_at
		FROM lobby_tiers lt
		JOIN lobbies l ON l.id = lt.lobby_id
		JOIN tiers t ON t.id = lt.tier_id
		WHERE l.guild_id = $1
		  AND l.id::text <> $2
		  AND l.status = 'SEARCHING'
		  AND lt.tier_id = ANY($3::uuid[])
		ORDER BY t.weight ASC NULLS LAST, lt.created_at ASC
	`, guildID, excludeLobbyID, pq.Array(tierIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to find candidates: %w", err)
	}
	return candidates, nil
}

func (r lobbyRepo) FindRankedCandidates(ctx context.Context, guildID, excludeLobbyID string) ([]models.Lobby, error) {
	lobbies, err := queryAll(ctx, r.q, scanLobby, `
		SELECT `+lobbyColumns+`
		FROM lobbies l
		WHERE l.guild_id = $1
		  AND l.id::text <> $2
		  AND l.ranked
		  AND l.status = 'SEARCHING'
		ORDER BY l.created_at
	`, guildID, excludeLobbyID)
	if err != nil {
		return nil, fmt.Errorf("failed to find ranked candidates: %w", err)
	}
	return lobbies, nil
}
