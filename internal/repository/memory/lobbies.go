package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/rl-arena/ladder-backend/internal/models"
	"github.com/rl-arena/ladder-backend/internal/repository"
)

type lobbyRepo struct{ t *tx }

func (r lobbyRepo) Create(ctx context.Context, lobby *models.Lobby) error {
	for _, l := range r.t.data.lobbies {
		if l.CreatedBy == lobby.CreatedBy {
			return repository.ErrDuplicate
		}
	}
	if lobby.ID == "" {
		lobby.ID = newID()
	}
	now := r.t.store.now()
	lobby.CreatedAt = now
	lobby.UpdatedAt = now
	r.t.data.lobbies[lobby.ID] = *lobby
	return nil
}

func (r lobbyRepo) FindByID(ctx context.Context, id string) (*models.Lobby, error) {
	l, ok := r.t.data.lobbies[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (r lobbyRepo) FindByCreator(ctx context.Context, playerID string) (*models.Lobby, error) {
	for _, l := range r.t.data.lobbies {
		if l.CreatedBy == playerID {
			return ptr(l), nil
		}
	}
	return nil, nil
}

func (r lobbyRepo) FindByPlayer(ctx context.Context, playerID string, statuses ...models.LobbyStatus) (*models.Lobby, error) {
	var found []models.Lobby
	for id, players := range r.t.data.lobbyPlayers {
		l, ok := r.t.data.lobbies[id]
		if !ok || (len(statuses) > 0 && !slices.Contains(statuses, l.Status)) {
			continue
		}
		for _, p := range players {
			if p.PlayerID == playerID {
				found = append(found, l)
				break
			}
		}
	}
	if len(found) == 0 {
		return nil, nil
	}
	sort.Slice(found, func(i, j int) bool { return found[i].CreatedAt.Before(found[j].CreatedAt) })
	return &found[0], nil
}

func (r lobbyRepo) Lock(ctx context.Context, ids ...string) ([]models.Lobby, error) {
	var lobbies []models.Lobby
	for _, id := range ids {
		if l, ok := r.t.data.lobbies[id]; ok {
			lobbies = append(lobbies, l)
		}
	}
	sort.Slice(lobbies, func(i, j int) bool { return lobbies[i].ID < lobbies[j].ID })
	return lobbies, nil
}

func (r lobbyRepo) Update(ctx context.Context, lobby *models.Lobby) error {
	if _, ok := r.t.data.lobbies[lobby.ID]; !ok {
		return nil
	}
	lobby.UpdatedAt = r.t.store.now()
	r.t.data.lobbies[lobby.ID] = *lobby
	return nil
}

func (r lobbyRepo) Delete(ctx context.Context, id string) error {
	delete(r.t.data.lobbies, id)
	delete(r.t.data.lobbyPlayers, id)
	delete(r.t.data.lobbyTiers, id)
	for msgID, m := range r.t.data.messages {
		if m.LobbyID != nil && *m.LobbyID == id {
			delete(r.t.data.messages, msgID)
		}
	}
	return setRepo{r.t}.DetachLobby(ctx, id)
}

func (r lobbyRepo) ListByStatus(ctx context.Context, status models.LobbyStatus, updatedBefore time.Time) ([]models.Lobby, error) {
	var lobbies []models.Lobby
	for _, l := range r.t.data.lobbies {
		if l.Status == status && l.UpdatedAt.Before(updatedBefore) {
			lobbies = append(lobbies, l)
		}
	}
	sort.Slice(lobbies, func(i, j int) bool { return lobbies[i].UpdatedAt.Before(lobbies[j].UpdatedAt) })
	return lobbies, nil
}

func (r lobbyRepo) ListPlayers(ctx context.Context, lobbyID string) ([]models.LobbyPlayer, error) {
	return append([]models.LobbyPlayer(nil), r.t.data.lobbyPlayers[lobbyID]...), nil
}

func (r lobbyRepo) FindPlayer(ctx context.Context, lobbyID, playerID string) (*models.LobbyPlayer, error) {
	for _, p := range r.t.data.lobbyPlayers[lobbyID] {
		if p.PlayerID == playerID {
			return ptr(p), nil
		}
	}
	return nil, nil
}

func (r lobbyRepo) AddPlayer(ctx context.Context, player *models.LobbyPlayer) error {
	for _, p := range r.t.data.lobbyPlayers[player.LobbyID] {
		if p.PlayerID == player.PlayerID {
			return repository.ErrDuplicate
		}
	}
	player.CreatedAt = r.t.store.now()
	r.t.data.lobbyPlayers[player.LobbyID] = append(r.t.data.lobbyPlayers[player.LobbyID], *player)
	return nil
}

func (r lobbyRepo) UpdatePlayer(ctx context.Context, player *models.LobbyPlayer) error {
	players := r.t.data.lobbyPlayers[player.LobbyID]
	for i := range players {
		if players[i].PlayerID == player.PlayerID {
			players[i] = *player
		}
	}
	return nil
}

func (r lobbyRepo) RemoveOtherPlayers(ctx context.Context, lobbyID, keepPlayerID string) error {
	var kept []models.LobbyPlayer
	for _, p := range r.t.data.lobbyPlayers[lobbyID] {
		if p.PlayerID == keepPlayerID {
			kept = append(kept, p)
		}
	}
	r.t.data.lobbyPlayers[lobbyID] = kept
	return nil
}

func (r lobbyRepo) ListTiers(ctx context.Context, lobbyID string) ([]models.LobbyTier, error) {
	return append([]models.LobbyTier(nil), r.t.data.lobbyTiers[lobbyID]...), nil
}

func (r lobbyRepo) AddTier(ctx context.Context, target *models.LobbyTier) error {
	for _, lt := range r.t.data.lobbyTiers[target.LobbyID] {
		if lt.TierID == target.TierID {
			return repository.ErrDuplicate
		}
	}
	target.CreatedAt = r.t.store.now()
	r.t.data.lobbyTiers[target.LobbyID] = append(r.t.data.lobbyTiers[target.LobbyID], *target)
	return nil
}

func (r lobbyRepo) RemoveTier(ctx context.Context, lobbyID, tierID string) error {
	targets := r.t.data.lobbyTiers[lobbyID]
	r.t.data.lobbyTiers[lobbyID] = slices.DeleteFunc(targets, func(lt models.LobbyTier) bool {
		return lt.TierID == tierID
	})
	return nil
}

func (r lobbyRepo) RemoveTiers(ctx context.Context, lobbyID string) error {
	delete(r.t.data.lobbyTiers, lobbyID)
	return nil
}

func (r lobbyRepo) FindCandidates(ctx context.Context, guildID, excludeLobbyID string, tierIDs []string) ([]models.SearchCandidate, error) {
	var candidates []models.SearchCandidate
	for id, targets := range r.t.data.lobbyTiers {
		l, ok := r.t.data.lobbies[id]
		if !ok || id == excludeLobbyID || l.GuildID != guildID || l.Status != models.LobbyStatusSearching {
			continue
		}
		for _, lt := range targets {
			if !slices.Contains(tierIDs, lt.TierID) {
				continue
			}
			c := models.SearchCandidate{Lobby: l, PlayerID: l.CreatedBy, TierID: lt.TierID, Since: lt.CreatedAt}
			if tier, ok := r.t.data.tiers[lt.TierID]; ok && tier.Weight != nil {
				c.Weight = ptr(*tier.Weight)
			}
			candidates = append(candidates, c)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		switch {
		case a.Weight != nil && b.Weight == nil:
			return true
		case a.Weight == nil && b.Weight != nil:
			return false
		case a.Weight != nil && *a.Weight != *b.Weight:
			return *a.Weight < *b.Weight
		}
		return a.Since.Before(b.Since)
	})
	return candidates, nil
}

func (r lobbyRepo) FindRankedCandidates(ctx context.Context, guildID, excludeLobbyID string) ([]models.Lobby, error) {
	var lobbies []models.Lobby
	for id, l := range r.t.data.lobbies {
		if id == excludeLobbyID || l.GuildID != guildID || !l.Ranked || l.Status != models.LobbyStatusSearching {
			continue
		}
		lobbies = append(lobbies, l)
	}
	sort.Slice(lobbies, func(i, j int) bool { return lobbies[i].CreatedAt.Before(lobbies[j].CreatedAt) })
	return lobbies, nil
}
