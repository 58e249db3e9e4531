package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl-arena/ladder-backend/internal/models"
	"github.com/rl-arena/ladder-backend/internal/repository"
	"github.com/rl-arena/ladder-backend/internal/repository/memory"
)

const testGuild = "guild-1"

var starterIDs = []string{
	"battlefield", "small-battlefield", "final-destination", "pokemon-stadium-2",
	"smashville", "town-and-city", "kalos", "hollow-bastion",
}

func intPtr(v int) *int { return &v }

func testStages() []models.Stage {
	var stages []models.Stage
	for _, id := range starterIDs {
		stages = append(stages, models.Stage{ID: id, Name: id, Starter: true, Counterpick: true})
	}
	return append(stages,
		models.Stage{ID: "lylat", Name: "lylat", Counterpick: true},
		models.Stage{ID: "yoshis-story", Name: "yoshis-story", Counterpick: true},
	)
}

func testTiers() []models.Tier {
	return []models.Tier{
		{ID: "tier-1", GuildID: testGuild, Name: "Tier 1", Weight: intPtr(1), Threshold: intPtr(2400)},
		{ID: "tier-2", GuildID: testGuild, Name: "Tier 2", Weight: intPtr(2), Threshold: intPtr(2000)},
		{ID: "tier-3", GuildID: testGuild, Name: "Tier 3", Weight: intPtr(3), Threshold: intPtr(1600)},
		{ID: "tier-4", GuildID: testGuild, Name: "Tier 4", Weight: intPtr(4), Threshold: intPtr(1200)},
		{ID: "open", GuildID: testGuild, Name: "Open"},
		{ID: "yuzu", GuildID: testGuild, Name: "Yuzu", Yuzu: true},
	}
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *memory.Store
	engine *Engine
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: memory.NewStore(testStages()...),
		now:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.store.UseClock(func() time.Time { return f.now })
	opts := DefaultOptions()
	opts.Now = func() time.Time { return f.now }
	opts.Random = func(int) int { return 0 }
	f.engine = NewEngine(f.store, nil, nil, nil, opts, zap.NewNop())

	for _, tier := range testTiers() {
		require.NoError(t, f.engine.Players.SaveTier(f.ctx, &tier))
	}
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) tx(fn func(ctx context.Context, tx repository.Tx)) {
	require.NoError(f.t, f.store.WithTx(f.ctx, func(ctx context.Context, tx repository.Tx) error {
		fn(ctx, tx)
		return nil
	}))
}

func (f *fixture) rating(playerID, tierID string, score int) {
	f.tx(func(ctx context.Context, tx repository.Tx) {
		require.NoError(f.t, tx.Ratings().Upsert(ctx, &models.Rating{
			PlayerID: playerID,
			GuildID:  testGuild,
			TierID:   &tierID,
			Score:    score,
		}))
	})
}

func (f *fixture) storedRating(playerID string) models.Rating {
	var r *models.Rating
	f.tx(func(ctx context.Context, tx repository.Tx) {
		var err error
		r, err = tx.Ratings().Find(ctx, playerID, testGuild)
		require.NoError(f.t, err)
	})
	require.NotNil(f.t, r)
	return *r
}

func (f *fixture) profile(playerID string, cable, host, client bool) {
	_, err := f.engine.Players.SetProfile(f.ctx, testGuild, playerID, models.UpdateProfileRequest{
		Cable:      cable,
		YuzuHost:   host,
		YuzuClient: client,
	})
	require.NoError(f.t, err)
}

func (f *fixture) lobbyOf(playerID string) *models.Lobby {
	var lobby *models.Lobby
	f.tx(func(ctx context.Context, tx repository.Tx) {
		var err error
		lobby, err = tx.Lobbies().FindByCreator(ctx, playerID)
		require.NoError(f.t, err)
	})
	return lobby
}

func (f *fixture) targets(lobbyID string) []string {
	var ids []string
	f.tx(func(ctx context.Context, tx repository.Tx) {
		targets, err := tx.Lobbies().ListTiers(ctx, lobbyID)
		require.NoError(f.t, err)
		for _, t := range targets {
			ids = append(ids, t.TierID)
		}
	})
	return ids
}

func (f *fixture) search(playerID string, target SearchTarget) *SearchResult {
	res, err := f.engine.Matchmaking.Search(f.ctx, testGuild, playerID, target)
	require.NoError(f.t, err)
	return res
}

func (f *fixture) accept(playerID string) *AcceptResult {
	res, err := f.engine.Confirmation.Accept(f.ctx, testGuild, playerID)
	require.NoError(f.t, err)
	return res
}

// playing pairs owner and guest on the open tier (owner drives the confirmation) and accepts both.
func (f *fixture) playing(owner, guest string, target SearchTarget) string {
	require.False(f.t, f.search(guest, target).Matched)
	res := f.search(owner, target)
	require.True(f.t, res.Matched)
	f.accept(owner)
	ready := f.accept(guest)
	require.True(f.t, ready.Ready)
	return ready.Lobby.ID
}

func (f *fixture) state(playerID string) *SetState {
	state, err := f.engine.Sets.State(f.ctx, testGuild, playerID)
	require.NoError(f.t, err)
	return state
}

// strikeGame1 runs the 1-2-2-2 strikes over the first seven starters.
func (f *fixture) strikeGame1(first, second string) {
	order := []string{first, second, second, first, first, second, second}
	for i, player := range order {
		_, err := f.engine.Sets.Ban(f.ctx, testGuild, player, starterIDs[i])
		require.NoError(f.t, err)
	}
}

// counterpick winner of the previous game strikes three stages, loser picks the first one left.
func (f *fixture) counterpick(winner, loser string) {
	for i := 0; i < counterpickBans; i++ {
		state := f.state(winner)
		_, err := f.engine.Sets.Ban(f.ctx, testGuild, winner, state.Available[0].ID)
		require.NoError(f.t, err)
	}
	state := f.state(loser)
	_, err := f.engine.Sets.PickStage(f.ctx, testGuild, loser, state.Available[0].ID)
	require.NoError(f.t, err)
}

// winGame plays the current game with winner taking it. Game 1 starts with first striking.
func (f *fixture) winGame(winner, loser, first string) *SetResult {
	state := f.state(winner)
	if state.Game.Num == 1 {
		second := winner
		if first == winner {
			second = loser
		}
		f.strikeGame1(first, second)
		_, err := f.engine.Sets.PickCharacter(f.ctx, testGuild, winner, "fox")
		require.NoError(f.t, err)
		_, err = f.engine.Sets.PickCharacter(f.ctx, testGuild, loser, "falco")
		require.NoError(f.t, err)
	} else {
		f.counterpick(winner, loser)
	}

	conceded, err := f.engine.Sets.VoteWinner(f.ctx, testGuild, loser, 0, false)
	require.NoError(f.t, err)
	require.False(f.t, conceded.Finished)
	res, err := f.engine.Sets.VoteWinner(f.ctx, testGuild, winner, 0, true)
	require.NoError(f.t, err)
	return res
}
