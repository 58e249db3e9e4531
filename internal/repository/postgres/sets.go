package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rl-arena/ladder-backend/internal/models"
)

type setRepo struct{ q *sql.Tx }

const setColumns = `id, guild_id, lobby_id, first_to, ranked, bonus, winner_id, is_surrender, finished_at, created_at`

func scanSet(s scanner) (models.GameSet, error) {
	var gs models.GameSet
	err := s.Scan(
		&gs.ID, &gs.GuildID, &gs.LobbyID, &gs.FirstTo, &gs.Ranked, &gs.Bonus,
		&gs.WinnerID, &gs.IsSurrender, &gs.FinishedAt, &gs.CreatedAt,
	)
	return gs, err
}

func (r setRepo) Create(ctx context.Context, gs *models.GameSet) error {
	if gs.ID == "" {
		gs.ID = newID()
	}
	query := `
		INSERT INTO game_sets (id, guild_id, lobby_id, first_to, ranked, bonus, winner_id, is_surrender, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	err := r.q.QueryRowContext(ctx, query,
		gs.ID, gs.GuildID, gs.LobbyID, gs.FirstTo, gs.Ranked, gs.Bonus, gs.WinnerID, gs.IsSurrender, gs.FinishedAt,
	).Scan(&gs.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create game set: %w", err)
	}
	return nil
}

func (r setRepo) FindByID(ctx context.Context, id string) (*models.GameSet, error) {
	if !validID(id) {
		return nil, nil
	}
	gs, err := queryOne(ctx, r.q, scanSet, `SELECT `+setColumns+` FROM game_sets WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find game set: %w", err)
	}
	return gs, nil
}

func (r setRepo) FindActiveByLobby(ctx context.Context, lobbyID string) (*models.GameSet, error) {
	gs, err := queryOne(ctx, r.q, scanSet, `
		SELECT `+setColumns+`
		FROM game_sets
		WHERE lobby_id = $1 AND winner_id IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`, lobbyID)
	if err != nil {
		return nil, fmt.Errorf("failed to find active game set: %w", err)
	}
	return gs, nil
}

func (r setRepo) FindLastByLobby(ctx context.Context, lobbyID string) (*models.GameSet, error) {
	gs, err := queryOne(ctx, r.q, scanSet, `
		SELECT `+setColumns+` FROM game_sets WHERE lobby_id = $1 ORDER BY created_at DESC LIMIT 1
	`, lobbyID)
	if err != nil {
		return nil, fmt.Errorf("failed to find last game set: %w", err)
	}
	return gs, nil
}

func (r setRepo) FindLastFinishedByLobby(ctx context.Context, lobbyID string) (*models.GameSet, error) {
	gs, err := queryOne(ctx, r.q, scanSet, `
		SELECT `+setColumns+` FROM game_sets
		WHERE lobby_id = $1 AND winner_id IS NOT NULL
		ORDER BY finished_at DESC LIMIT 1
	`, lobbyID)
	if err != nil {
		return nil, fmt.Errorf("failed to find last finished game set: %w", err)
	}
	return gs, nil
}

func (r setRepo) Update(ctx context.Context, gs *models.GameSet) error {
	query := `
		UPDATE game_sets
		SET lobby_id = $1, first_to = $2, ranked = $3, bonus = $4,
		    winner_id = $5, is_surrender = $6, finished_at = $7
		WHERE id = $8
	`
	_, err := r.q.ExecContext(ctx, query,
		gs.LobbyID, gs.FirstTo, gs.Ranked, gs.Bonus, gs.WinnerID, gs.IsSurrender, gs.FinishedAt, gs.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update game set: %w", err)
	}
	return nil
}

// Delete games, their players, bans and messages cascade.
func (r setRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM game_sets WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete game set: %w", err)
	}
	return nil
}

func (r setRepo) DetachLobby(ctx context.Context, lobbyID string) error {
	if _, err := r.q.ExecContext(ctx, `UPDATE game_sets SET lobby_id = NULL WHERE lobby_id = $1`, lobbyID); err != nil {
		return fmt.Errorf("failed to detach game sets: %w", err)
	}
	return nil
}

func (r setRepo) ListUnfinished(ctx context.Context, createdBefore time.Time) ([]models.GameSet, error) {
	sets, err := queryAll(ctx, r.q, scanSet, `
		SELECT `+setColumns+`
		FROM game_sets
		WHERE winner_id IS NULL AND created_at < $1
		ORDER BY created_at
	`, createdBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to list unfinished game sets: %w", err)
	}
	return sets, nil
}

// rankedSets finished ranked sets of $1 in guild $2 with the opponent taken from game 1.
const rankedSets = `
	FROM game_sets s
	JOIN games g ON g.gameset_id = s.id AND g.num = 1
	JOIN game_players me ON me.game_id = g.id AND me.player_id = $1
	LEFT JOIN game_players opp ON opp.game_id = g.id AND opp.player_id <> $1
	WHERE s.guild_id = $2
	  AND s.ranked
	  AND s.winner_id IS NOT NULL
	  AND s.finished_at IS NOT NULL
`

func (r setRepo) RankedHistory(ctx context.Context, playerID, guildID string, since *time.Time, limit int) ([]models.SetHistory, error) {
	var limitArg *int
	if limit > 0 {
		limitArg = &limit
	}
	history, err := queryAll(ctx, r.q, func(s scanner) (models.SetHistory, error) {
		var h models.SetHistory
		var opponent sql.NullString
		err := s.Scan(&h.GameSetID, &opponent, &h.Won, &h.FinishedAt)
		h.OpponentID = opponent.String
		return h, err
	}, `
		SELECT s.id, opp.player_id, s.winner_id = $1, s.finished_at
		`+rankedSets+`
		  AND ($3::timestamptz IS NULL OR s.finished_at >= $3)
		ORDER BY s.finished_at DESC
		LIMIT $4
	`, playerID, guildID, since, limitArg)
	if err != nil {
		return nil, fmt.Errorf("failed to load ranked history: %w", err)
	}
	return history, nil
}

func (r setRepo) CountRankedBetween(ctx context.Context, guildID, playerA, playerB string, since time.Time) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		`+rankedSets+`
		  AND opp.player_id = $3
		  AND s.finished_at >= $4
	`, playerA, guildID, playerB, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count ranked sets: %w", err)
	}
	return count, nil
}
