package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/rl-arena/ladder-backend/internal/models"
	"github.com/rl-arena/ladder-backend/internal/repository"
)

type messageRepo struct{ t *tx }

func (r messageRepo) Create(ctx context.Context, message *models.Message) error {
	if message.ID == "" {
		message.ID = newID()
	}
	if _, ok := r.t.data.messages[message.ID]; ok {
		return repository.ErrDuplicate
	}
	message.CreatedAt = r.t.store.now()
	r.t.data.messages[message.ID] = *message
	return nil
}

func (r messageRepo) list(match func(m models.Message) bool) []models.Message {
	var out []models.Message
	for _, m := range r.t.data.messages {
		if match(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r messageRepo) ListByLobby(ctx context.Context, lobbyID string) ([]models.Message, error) {
	return r.list(func(m models.Message) bool {
		return m.LobbyID != nil && *m.LobbyID == lobbyID
	}), nil
}

func (r messageRepo) ListByPlayer(ctx context.Context, playerID string, types ...models.MessageType) ([]models.Message, error) {
	return r.list(func(m models.Message) bool {
		return m.PlayerID != nil && *m.PlayerID == playerID && (len(types) == 0 || slices.Contains(types, m.Type))
	}), nil
}

func (r messageRepo) ListByGame(ctx context.Context, gameID string, playerID string, types ...models.MessageType) ([]models.Message, error) {
	return r.list(func(m models.Message) bool {
		if m.GameID == nil || *m.GameID != gameID {
			return false
		}
		if playerID != "" && (m.PlayerID == nil || *m.PlayerID != playerID) {
			return false
		}
		return len(types) == 0 || slices.Contains(types, m.Type)
	}), nil
}

func (r messageRepo) Delete(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		delete(r.t.data.messages, id)
	}
	return nil
}
