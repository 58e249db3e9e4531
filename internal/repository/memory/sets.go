package memory

import (
	"context"
	"sort"
	"time"

	"github.com/rl-arena/ladder-backend/internal/models"
)

type setRepo struct{ t *tx }

func (r setRepo) Create(ctx context.Context, set *models.GameSet) error {
	if set.ID == "" {
		set.ID = newID()
	}
	set.CreatedAt = r.t.store.now()
	r.t.data.sets[set.ID] = *set
	return nil
}

func (r setRepo) FindByID(ctx context.Context, id string) (*models.GameSet, error) {
	s, ok := r.t.data.sets[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r setRepo) FindActiveByLobby(ctx context.Context, lobbyID string) (*models.GameSet, error) {
	for _, s := range r.t.data.sets {
		if s.LobbyID != nil && *s.LobbyID == lobbyID && !s.Finished() {
			return ptr(s), nil
		}
	}
	return nil, nil
}

func (r setRepo) FindLastByLobby(ctx context.Context, lobbyID string) (*models.GameSet, error) {
	var last *models.GameSet
	for _, s := range r.t.data.sets {
		if s.LobbyID == nil || *s.LobbyID != lobbyID {
			continue
		}
		if last == nil || s.CreatedAt.After(last.CreatedAt) {
			last = ptr(s)
		}
	}
	return last, nil
}

func (r setRepo) FindLastFinishedByLobby(ctx context.Context, lobbyID string) (*models.GameSet, error) {
	var last *models.GameSet
	for _, s := range r.t.data.sets {
		if s.LobbyID == nil || *s.LobbyID != lobbyID || !s.Finished() {
			continue
		}
		if last == nil || s.FinishedAt.After(*last.FinishedAt) {
			last = ptr(s)
		}
	}
	return last, nil
}

func (r setRepo) Update(ctx context.Context, set *models.GameSet) error {
	if _, ok := r.t.data.sets[set.ID]; ok {
		r.t.data.sets[set.ID] = *set
	}
	return nil
}

func (r setRepo) Delete(ctx context.Context, id string) error {
	games := gameRepo{r.t}
	for gameID, g := range r.t.data.games {
		if g.GameSetID == id {
			if err := games.Delete(ctx, gameID); err != nil {
				return err
			}
		}
	}
	delete(r.t.data.sets, id)
	return nil
}

func (r setRepo) DetachLobby(ctx context.Context, lobbyID string) error {
	for id, s := range r.t.data.sets {
		if s.LobbyID != nil && *s.LobbyID == lobbyID {
			s.LobbyID = nil
			r.t.data.sets[id] = s
		}
	}
	return nil
}

func (r setRepo) ListUnfinished(ctx context.Context, createdBefore time.Time) ([]models.GameSet, error) {
	var sets []models.GameSet
	for _, s := range r.t.data.sets {
		if !s.Finished() && s.CreatedAt.Before(createdBefore) {
			sets = append(sets, s)
		}
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].CreatedAt.Before(sets[j].CreatedAt) })
	return sets, nil
}

// setPlayers ids of the players of game 1.
func (r setRepo) setPlayers(setID string) []string {
	for _, g := range r.t.data.games {
		if g.GameSetID != setID || g.Num != 1 {
			continue
		}
		var ids []string
		for _, gp := range r.t.data.gamePlayers[g.ID] {
			ids = append(ids, gp.PlayerID)
		}
		return ids
	}
	return nil
}

func (r setRepo) RankedHistory(ctx context.Context, playerID, guildID string, since *time.Time, limit int) ([]models.SetHistory, error) {
	var history []models.SetHistory
	for _, s := range r.t.data.sets {
		if s.GuildID != guildID || !s.Ranked || !s.Finished() || s.FinishedAt == nil {
			continue
		}
		if since != nil && s.FinishedAt.Before(*since) {
			continue
		}
		players := r.setPlayers(s.ID)
		var opponent string
		var played bool
		for _, id := range players {
			if id == playerID {
				played = true
			} else {
				opponent = id
			}
		}
		if !played {
			continue
		}
		history = append(history, models.SetHistory{
			GameSetID:  s.ID,
			OpponentID: opponent,
			Won:        *s.WinnerID == playerID,
			FinishedAt: *s.FinishedAt,
		})
	}
	sort.Slice(history, func(i, j int) bool { return history[i].FinishedAt.After(history[j].FinishedAt) })
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	return history, nil
}

func (r setRepo) CountRankedBetween(ctx context.Context, guildID, playerA, playerB string, since time.Time) (int, error) {
	history, err := r.RankedHistory(ctx, playerA, guildID, &since, 0)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, h := range history {
		if h.OpponentID == playerB {
			count++
		}
	}
	return count, nil
}
