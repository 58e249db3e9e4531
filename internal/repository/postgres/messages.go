package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/rl-arena/ladder-backend/internal/models"
	"github.com/rl-arena/ladder-backend/internal/repository"
)

type messageRepo struct{ q *sql.Tx }

const messageColumns = `id, guild_id, channel_id, type, player_id, lobby_id, tier_id, game_id, created_at`

func scanMessage(s scanner) (models.Message, error) {
	var m models.Message
	err := s.Scan(&m.ID, &m.GuildID, &m.ChannelID, &m.Type, &m.PlayerID, &m.LobbyID, &m.TierID, &m.GameID, &m.CreatedAt)
	return m, err
}

func (r messageRepo) Create(ctx context.Context, m *models.Message) error {
	if m.ID == "" {
		m.ID = newID()
	}
	query := `
		INSERT INTO messages (id, guild_id, channel_id, type, player_id, lobby_id, tier_id, game_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err := r.q.QueryRowContext(ctx, query,
		m.ID, m.GuildID, m.ChannelID, m.Type, m.PlayerID, m.LobbyID, m.TierID, m.GameID,
	).Scan(&m.CreatedAt)
	if err != nil {
		if err := duplicate(err); errors.Is(err, repository.ErrDuplicate) {
			return err
		}
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r messageRepo) ListByLobby(ctx context.Context, lobbyID string) ([]models.Message, error) {
	messages, err := queryAll(ctx, r.q, scanMessage, `
		SELECT `+messageColumns+` FROM messages WHERE lobby_id = $1 ORDER BY created_at
	`, lobbyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lobby messages: %w", err)
	}
	return messages, nil
}

func (r messageRepo) ListByPlayer(ctx context.Context, playerID string, types ...models.MessageType) ([]models.Message, error) {
	messages, err := queryAll(ctx, r.q, scanMessage, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE player_id = $1
		  AND (cardinality($2::text[]) = 0 OR type = ANY($2::text[]))
		ORDER BY created_at
	`, playerID, typeArray(types))
	if err != nil {
		return nil, fmt.Errorf("failed to list player messages: %w", err)
	}
	return messages, nil
}

func (r messageRepo) ListByGame(ctx context.Context, gameID string, playerID string, types ...models.MessageType) ([]models.Message, error) {
	messages, err := queryAll(ctx, r.q, scanMessage, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE game_id = $1
		  AND ($2::text = '' OR player_id::text = $2::text)
		  AND (cardinality($3::text[]) = 0 OR type = ANY($3::text[]))
		ORDER BY created_at
	`, gameID, playerID, typeArray(types))
	if err != nil {
		return nil, fmt.Errorf("failed to list game messages: %w", err)
	}
	return messages, nil
}

func (r messageRepo) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.q.ExecContext(ctx, `DELETE FROM messages WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}
