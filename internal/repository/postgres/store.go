// Package postgres implements repository.Store over database/sql and lib/pq. Lobby rows are the unit of
// concurrency: Lock takes row locks in id order, so two transactions pairing the same lobbies serialize.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/rl-arena/ladder-backend/internal/models"
	"github.com/rl-arena/ladder-backend/internal/repository"
	"github.com/rl-arena/ladder-backend/pkg/database"
)

const (
	uniqueViolation      = "23505"
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

// txAttempts runs of a unit of work aborted by a deadlock or serialization failure.
const txAttempts = 3

type Store struct {
	db *database.DB
}

func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// WithTx commits when fn returns nil and rolls back on error or panic. A unit of work Postgres aborted
// to break a deadlock or a serialization conflict is run again, so fn must only assign its results.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	var err error
	for attempt := 0; attempt < txAttempts; attempt++ {
		if err = s.runTx(ctx, fn); !retryable(err) {
			return err
		}
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, &tx{q: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// retryable deadlock and serialization aborts.
func retryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == deadlockDetected || pqErr.Code == serializationFailure
}

type tx struct {
	q *sql.Tx
}

func (t *tx) Players() repository.PlayerRepository   { return playerRepo{t.q} }
func (t *tx) Tiers() repository.TierRepository       { return tierRepo{t.q} }
func (t *tx) Stages() repository.StageRepository     { return stageRepo{t.q} }
func (t *tx) Ratings() repository.RatingRepository   { return ratingRepo{t.q} }
func (t *tx) Lobbies() repository.LobbyRepository    { return lobbyRepo{t.q} }
func (t *tx) Sets() repository.GameSetRepository     { return setRepo{t.q} }
func (t *tx) Games() repository.GameRepository       { return gameRepo{t.q} }
func (t *tx) Messages() repository.MessageRepository { return messageRepo{t.q} }

type scanner interface {
	Scan(dest ...any) error
}

func newID() string {
	return uuid.New().String()
}

// validID ids that are not uuids can match no row.
func validID(id string) bool {
	return uuid.Validate(id) == nil
}

// duplicate maps unique violations to repository.ErrDuplicate.
func duplicate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return repository.ErrDuplicate
	}
	return err
}

// queryOne scans a single row; sql.ErrNoRows becomes (nil, nil).
func queryOne[T any](ctx context.Context, q *sql.Tx, scan func(scanner) (T, error), query string, args ...any) (*T, error) {
	v, err := scan(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func queryAll[T any](ctx context.Context, q *sql.Tx, scan func(scanner) (T, error), query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func statusArray(statuses []models.LobbyStatus) any {
	s := make([]string, len(statuses))
	for i, st := range statuses {
		s[i] = string(st)
	}
	return pq.Array(s)
}

func typeArray(types []models.MessageType) any {
	s := make([]string, len(types))
	for i, t := range types {
		s[i] = string(t)
	}
	return pq.Array(s)
}
