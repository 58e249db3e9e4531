// Package memory is a single-process Store. Transactions are serialized behind one mutex and run
// against a copy of the data set that replaces the committed state only when fn succeeds.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl-arena/ladder-backend/internal/models"
	"github.com/rl-arena/ladder-backend/internal/repository"
)

type profileKey struct{ playerID, guildID string }

type dataset struct {
	players      map[string]models.Player
	guilds       map[string]models.Guild
	profiles     map[profileKey]models.PlayerProfile
	tiers        map[string]models.Tier
	stages       []models.Stage
	ratings      map[profileKey]models.Rating
	lobbies      map[string]models.Lobby
	lobbyPlayers map[string][]models.LobbyPlayer
	lobbyTiers   map[string][]models.LobbyTier
	sets         map[string]models.GameSet
	games        map[string]models.Game
	gamePlayers  map[string][]models.GamePlayer
	bans         map[string][]models.StageBan
	messages     map[string]models.Message
}

func newDataset() *dataset {
	return &dataset{
		players:      map[string]models.Player{},
		guilds:       map[string]models.Guild{},
		profiles:     map[profileKey]models.PlayerProfile{},
		tiers:        map[string]models.Tier{},
		ratings:      map[profileKey]models.Rating{},
		lobbies:      map[string]models.Lobby{},
		lobbyPlayers: map[string][]models.LobbyPlayer{},
		lobbyTiers:   map[string][]models.LobbyTier{},
		sets:         map[string]models.GameSet{},
		games:        map[string]models.Game{},
		gamePlayers:  map[string][]models.GamePlayer{},
		bans:         map[string][]models.StageBan{},
		messages:     map[string]models.Message{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneSliceMap[K comparable, V any](m map[K][]V) map[K][]V {
	out := make(map[K][]V, len(m))
	for k, v := range m {
		out[k] = append([]V(nil), v...)
	}
	return out
}

func (d *dataset) clone() *dataset {
	return &dataset{
		players:      cloneMap(d.players),
		guilds:       cloneMap(d.guilds),
		profiles:     cloneMap(d.profiles),
		tiers:        cloneMap(d.tiers),
		stages:       append([]models.Stage(nil), d.stages...),
		ratings:      cloneMap(d.ratings),
		lobbies:      cloneMap(d.lobbies),
		lobbyPlayers: cloneSliceMap(d.lobbyPlayers),
		lobbyTiers:   cloneSliceMap(d.lobbyTiers),
		sets:         cloneMap(d.sets),
		games:        cloneMap(d.games),
		gamePlayers:  cloneSliceMap(d.gamePlayers),
		bans:         cloneSliceMap(d.bans),
		messages:     cloneMap(d.messages),
	}
}

// Store in-memory repository.Store.
type Store struct {
	mu    sync.Mutex
	data  *dataset
	last  time.Time
	clock func() time.Time
}

func NewStore(stages ...models.Stage) *Store {
	d := newDataset()
	d.stages = append(d.stages, stages...)
	return &Store{data: d}
}

// WithTx holds the store lock for the whole unit of work, so units never interleave.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &tx{store: s, data: s.data.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.data = tx.data
	return nil
}

// UseClock replaces the wall clock used for row timestamps.
func (s *Store) UseClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = now
	return s
}

// now strictly increasing timestamps so FIFO ordering never ties.
func (s *Store) now() time.Time {
	clock := s.clock
	if clock == nil {
		clock = time.Now
	}
	t := clock().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func newID() string {
	return uuid.NewString()
}

type tx struct {
	store *Store
	data  *dataset
}

func (t *tx) Players() repository.PlayerRepository   { return playerRepo{t} }
func (t *tx) Tiers() repository.TierRepository       { return tierRepo{t} }
func (t *tx) Stages() repository.StageRepository     { return stageRepo{t} }
func (t *tx) Ratings() repository.RatingRepository   { return ratingRepo{t} }
func (t *tx) Lobbies() repository.LobbyRepository    { return lobbyRepo{t} }
func (t *tx) Sets() repository.GameSetRepository     { return setRepo{t} }
func (t *tx) Games() repository.GameRepository       { return gameRepo{t} }
func (t *tx) Messages() repository.MessageRepository { return messageRepo{t} }

func ptr[T any](v T) *T { return &v }
