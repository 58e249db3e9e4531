package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/rl-arena/ladder-backend/internal/models"
	"github.com/rl-arena/ladder-backend/internal/repository"
)

type gameRepo struct{ t *tx }

func (r gameRepo) Create(ctx context.Context, game *models.Game) error {
	for _, g := range r.t.data.games {
		if g.GameSetID == game.GameSetID && g.Num == game.Num {
			return repository.ErrDuplicate
		}
	}
	if game.ID == "" {
		game.ID = newID()
	}
	game.CreatedAt = r.t.store.now()
	r.t.data.games[game.ID] = *game
	return nil
}

func (r gameRepo) FindCurrent(ctx context.Context, setID string) (*models.Game, error) {
	var current *models.Game
	for _, g := range r.t.data.games {
		if g.GameSetID == setID && (current == nil || g.Num > current.Num) {
			current = ptr(g)
		}
	}
	return current, nil
}

func (r gameRepo) FindByNum(ctx context.Context, setID string, num int) (*models.Game, error) {
	for _, g := range r.t.data.games {
		if g.GameSetID == setID && g.Num == num {
			return ptr(g), nil
		}
	}
	return nil, nil
}

func (r gameRepo) ListBySet(ctx context.Context, setID string) ([]models.Game, error) {
	var games []models.Game
	for _, g := range r.t.data.games {
		if g.GameSetID == setID {
			games = append(games, g)
		}
	}
	sort.Slice(games, func(i, j int) bool { return games[i].Num < games[j].Num })
	return games, nil
}

func (r gameRepo) Update(ctx context.Context, game *models.Game) error {
	if _, ok := r.t.data.games[game.ID]; ok {
		r.t.data.games[game.ID] = *game
	}
	return nil
}

func (r gameRepo) Delete(ctx context.Context, id string) error {
	delete(r.t.data.games, id)
	delete(r.t.data.gamePlayers, id)
	delete(r.t.data.bans, id)
	for msgID, m := range r.t.data.messages {
		if m.GameID != nil && *m.GameID == id {
			delete(r.t.data.messages, msgID)
		}
	}
	return nil
}

func (r gameRepo) ListPlayers(ctx context.Context, gameID string) ([]models.GamePlayer, error) {
	return append([]models.GamePlayer(nil), r.t.data.gamePlayers[gameID]...), nil
}

func (r gameRepo) AddPlayer(ctx context.Context, player *models.GamePlayer) error {
	if slices.ContainsFunc(r.t.data.gamePlayers[player.GameID], func(gp models.GamePlayer) bool {
		return gp.PlayerID == player.PlayerID
	}) {
		return repository.ErrDuplicate
	}
	r.t.data.gamePlayers[player.GameID] = append(r.t.data.gamePlayers[player.GameID], *player)
	return nil
}

func (r gameRepo) UpdatePlayer(ctx context.Context, player *models.GamePlayer) error {
	players := r.t.data.gamePlayers[player.GameID]
	for i := range players {
		if players[i].PlayerID == player.PlayerID {
			players[i] = *player
		}
	}
	return nil
}

func (r gameRepo) ListBans(ctx context.Context, gameID string) ([]models.StageBan, error) {
	return append([]models.StageBan(nil), r.t.data.bans[gameID]...), nil
}

func (r gameRepo) AddBan(ctx context.Context, ban *models.StageBan) error {
	if slices.ContainsFunc(r.t.data.bans[ban.GameID], func(b models.StageBan) bool {
		return b.StageID == ban.StageID
	}) {
		return repository.ErrDuplicate
	}
	ban.CreatedAt = r.t.store.now()
	r.t.data.bans[ban.GameID] = append(r.t.data.bans[ban.GameID], *ban)
	return nil
}
