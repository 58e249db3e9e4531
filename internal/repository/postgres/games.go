package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl-arena/ladder-backend/internal/models"
	"github.com/rl-arena/ladder-backend/internal/repository"
)

type gameRepo struct{ q *sql.Tx }

const gameColumns = `id, gameset_id, num, stage_id, winner_id, created_at`

func scanGame(s scanner) (models.Game, error) {
	var g models.Game
	err := s.Scan(&g.ID, &g.GameSetID, &g.Num, &g.StageID, &g.WinnerID, &g.CreatedAt)
	return g, err
}

func (r gameRepo) Create(ctx context.Context, g *models.Game) error {
	if g.ID == "" {
		g.ID = newID()
	}
	query := `
		INSERT INTO games (id, gameset_id, num, stage_id, winner_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := r.q.QueryRowContext(ctx, query, g.ID, g.GameSetID, g.Num, g.StageID, g.WinnerID).Scan(&g.CreatedAt)
	if err != nil {
		if err := duplicate(err); errors.Is(err, repository.ErrDuplicate) {
			return err
		}
		return fmt.Errorf("failed to create game: %w", err)
	}
	return nil
}

func (r gameRepo) FindCurrent(ctx context.Context, setID string) (*models.Game, error) {
	g, err := queryOne(ctx, r.q, scanGame, `
		SELECT `+gameColumns+` FROM games WHERE gameset_id = $1 ORDER BY num DESC LIMIT 1
	`, setID)
	if err != nil {
		return nil, fmt.Errorf("failed to find current game: %w", err)
	}
	return g, nil
}

func (r gameRepo) FindByNum(ctx context.Context, setID string, num int) (*models.Game, error) {
	g, err := queryOne(ctx, r.q, scanGame, `
		SELECT `+gameColumns+` FROM games WHERE gameset_id = $1 AND num = $2
	`, setID, num)
	if err != nil {
		return nil, fmt.Errorf("failed to find game: %w", err)
	}
	return g, nil
}

func (r gameRepo) ListBySet(ctx context.Context, setID string) ([]models.Game, error) {
	games, err := queryAll(ctx, r.q, scanGame, `SELECT `+gameColumns+` FROM games WHERE gameset_id = $1 ORDER BY num`, setID)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	return games, nil
}

func (r gameRepo) Update(ctx context.Context, g *models.Game) error {
	if _, err := r.q.ExecContext(ctx, `UPDATE games SET stage_id = $1, winner_id = $2 WHERE id = $3`, g.StageID, g.WinnerID, g.ID); err != nil {
		return fmt.Errorf("failed to update game: %w", err)
	}
	return nil
}

func (r gameRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM games WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete game: %w", err)
	}
	return nil
}

func (r gameRepo) ListPlayers(ctx context.Context, gameID string) ([]models.GamePlayer, error) {
	players, err := queryAll(ctx, r.q, func(s scanner) (models.GamePlayer, error) {
		var gp models.GamePlayer
		err := s.Scan(&gp.GameID, &gp.PlayerID, &gp.CharacterID, &gp.Picked, &gp.BanTurn, &gp.Winner)
		return gp, err
	}, `
		SELECT game_id, player_id, character_id, picked, ban_turn, winner
		FROM game_players
		WHERE game_id = $1
		ORDER BY player_id
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list game players: %w", err)
	}
	return players, nil
}

func (r gameRepo) AddPlayer(ctx context.Context, gp *models.GamePlayer) error {
	if gp.Winner == "" {
		gp.Winner = models.VoteUndecided
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO game_players (game_id, player_id, character_id, picked, ban_turn, winner)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, gp.GameID, gp.PlayerID, gp.CharacterID, gp.Picked, gp.BanTurn, gp.Winner)
	if err != nil {
		if err := duplicate(err); errors.Is(err, repository.ErrDuplicate) {
			return err
		}
		return fmt.Errorf("failed to add game player: %w", err)
	}
	return nil
}

func (r gameRepo) UpdatePlayer(ctx context.Context, gp *models.GamePlayer) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE game_players
		SET character_id = $1, picked = $2, ban_turn = $3, winner = $4
		WHERE game_id = $5 AND player_id = $6
	`, gp.CharacterID, gp.Picked, gp.BanTurn, gp.Winner, gp.GameID, gp.PlayerID)
	if err != nil {
		return fmt.Errorf("failed to update game player: %w", err)
	}
	return nil
}

func (r gameRepo) ListBans(ctx context.Context, gameID string) ([]models.StageBan, error) {
	bans, err := queryAll(ctx, r.q, func(s scanner) (models.StageBan, error) {
		var b models.StageBan
		err := s.Scan(&b.GameID, &b.PlayerID, &b.StageID, &b.CreatedAt)
		return b, err
	}, `SELECT game_id, player_id, stage_id, created_at FROM stage_bans WHERE game_id = $1 ORDER BY created_at`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stage bans: %w", err)
	}
	return bans, nil
}

func (r gameRepo) AddBan(ctx context.Context, b *models.StageBan) error {
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO stage_bans (game_id, player_id, stage_id) VALUES ($1, $2, $3) RETURNING created_at
	`, b.GameID, b.PlayerID, b.StageID).Scan(&b.CreatedAt)
	if err != nil {
		if err := duplicate(err); errors.Is(err, repository.ErrDuplicate) {
			return err
		}
		return fmt.Errorf("failed to add stage ban: %w", err)
	}
	return nil
}
