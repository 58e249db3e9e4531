package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl-arena/ladder-backend/internal/models"
	"github.com/rl-arena/ladder-backend/internal/repository"
)

func TestMatchmakingService_SharedTierScenario(t *testing.T) {
	f := newFixture(t)
	f.rating("player-a", "tier-3", 1785)
	f.rating("player-b", "tier-4", 1300)

	assert.False(t, f.search("player-b", SearchTarget{TierID: "tier-4"}).Matched)
	assert.False(t, f.search("player-b", SearchTarget{TierID: "tier-3"}).Matched)

	res := f.search("player-a", SearchTarget{TierID: "tier-3"})
	require.True(t, res.Matched)
	assert.Equal(t, "player-b", res.OpponentID)
	assert.Equal(t, "tier-3", res.TierID)
	assert.Equal(t, models.LobbyModeFriendlies, res.Mode)
	assert.Len(t, res.Players, 2)

	assert.Equal(t, models.LobbyStatusConfirmation, f.lobbyOf("player-a").Status)
	assert.Equal(t, models.LobbyStatusWaiting, f.lobbyOf("player-b").Status)

	waitingID := f.lobbyOf("player-b").ID
	f.tx(func(ctx context.Context, tx repository.Tx) {
		own, err := tx.Lobbies().FindPlayer(ctx, waitingID, "player-b")
		require.NoError(t, err)
		assert.Equal(t, models.LobbyStatusWaiting, own.Status)
		guest, err := tx.Lobbies().FindPlayer(ctx, res.Lobby.ID, "player-b")
		require.NoError(t, err)
		assert.Equal(t, models.LobbyStatusConfirmation, guest.Status)
	})
}

func TestMatchmakingService_OldestSearchFirst(t *testing.T) {
	f := newFixture(t)
	for _, p := range []string{"first", "second", "caller", "late"} {
		f.rating(p, "tier-3", 1700)
	}
	require.NoError(t, f.engine.Matchmaking.ledger.Exclude(f.ctx, "first", "second", time.Hour))

	assert.False(t, f.search("first", SearchTarget{TierID: "tier-3"}).Matched)
	f.advance(time.Second)
	assert.False(t, f.search("second", SearchTarget{TierID: "tier-3"}).Matched)

	res := f.search("caller", SearchTarget{TierID: "tier-3"})
	require.True(t, res.Matched)
	assert.Equal(t, "first", res.OpponentID)

	res = f.search("late", SearchTarget{TierID: "tier-3"})
	require.True(t, res.Matched)
	assert.Equal(t, "second", res.OpponentID)
}

func TestMatchmakingService_SearchEligibility(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx
	f.rating("low", "tier-4", 1250)

	tests := []struct {
		name   string
		target SearchTarget
		want   error
	}{
		{"two tiers above", SearchTarget{TierID: "tier-2"}, ErrTooNoob},
		{"unknown tier", SearchTarget{TierID: "missing"}, ErrNotFound},
		{"yuzu without capability", SearchTarget{TierID: "yuzu"}, ErrNoYuzu},
		{"ranked without cable", SearchTarget{Ranked: true}, ErrNoCable},
		{"empty target", SearchTarget{}, ErrInvalidAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Matchmaking.Search(ctx, testGuild, "low", tt.target)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Nil(t, f.lobbyOf("low"), "failed searches leave no lobby behind")

	_, err := f.engine.Matchmaking.Search(ctx, testGuild, "low", SearchTarget{TierID: "tier-2"})
	var domainErr *Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "tier-2", domainErr.TierID)

	f.search("low", SearchTarget{TierID: "tier-3"})
	_, err = f.engine.Matchmaking.Search(ctx, testGuild, "low", SearchTarget{TierID: "tier-3"})
	assert.ErrorIs(t, err, ErrAlreadySearching)

	// unrated players count as the weakest tier
	f.search("fresh", SearchTarget{TierID: "tier-4"})
	_, err = f.engine.Matchmaking.Search(ctx, testGuild, "fresh", SearchTarget{TierID: "tier-2"})
	assert.ErrorIs(t, err, ErrTooNoob)
}

func TestMatchmakingService_CannotSearchWhilePaired(t *testing.T) {
	f := newFixture(t)
	f.search("guest", SearchTarget{TierID: "open"})
	require.True(t, f.search("owner", SearchTarget{TierID: "open"}).Matched)

	for _, player := range []string{"owner", "guest"} {
		_, err := f.engine.Matchmaking.Search(f.ctx, testGuild, player, SearchTarget{TierID: "tier-4"})
		assert.ErrorIs(t, err, ErrCannotSearch, player)
	}
}

func TestMatchmakingService_YuzuComplementarity(t *testing.T) {
	f := newFixture(t)
	f.profile("host", false, true, false)
	f.profile("host-2", false, true, false)
	f.profile("client", false, false, true)

	assert.False(t, f.search("host", SearchTarget{TierID: "yuzu"}).Matched)
	assert.False(t, f.search("host-2", SearchTarget{TierID: "yuzu"}).Matched)

	res := f.search("client", SearchTarget{TierID: "yuzu"})
	require.True(t, res.Matched)
	assert.Equal(t, "host", res.OpponentID)
	assert.Equal(t, models.LobbyStatusSearching, f.lobbyOf("host-2").Status)
}

func TestMatchmakingService_DirectMatch(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx
	f.profile("host", false, true, false)
	f.profile("host-2", false, true, false)

	_, err := f.engine.Matchmaking.DirectMatch(ctx, testGuild, "me", "me", "open")
	assert.ErrorIs(t, err, ErrSamePlayer)

	_, err = f.engine.Matchmaking.DirectMatch(ctx, testGuild, "me", "nobody", "open")
	assert.ErrorIs(t, err, ErrNotSearching)

	f.search("host", SearchTarget{TierID: "yuzu"})
	_, err = f.engine.Matchmaking.DirectMatch(ctx, testGuild, "host-2", "host", "yuzu")
	assert.ErrorIs(t, err, ErrIncompatibleYuzu)

	f.search("target", SearchTarget{TierID: "open"})
	require.NoError(t, f.engine.Matchmaking.ledger.Exclude(ctx, "me", "target", time.Hour))
	_, err = f.engine.Matchmaking.DirectMatch(ctx, testGuild, "me", "target", "open")
	assert.ErrorIs(t, err, ErrRejectedPlayer)

	res, err := f.engine.Matchmaking.DirectMatch(ctx, testGuild, "other", "target", "open")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, models.LobbyStatusConfirmation, res.Lobby.Status)
	assert.Equal(t, models.LobbyStatusWaiting, f.lobbyOf("target").Status)
}

func TestMatchmakingService_ConcurrentSearchesPairExclusively(t *testing.T) {
	f := newFixture(t)
	const players = 10

	var wg sync.WaitGroup
	errs := make(chan error, players)
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.engine.Matchmaking.Search(f.ctx, testGuild, id, SearchTarget{TierID: "open"})
			errs <- err
		}(fmt.Sprintf("player-%d", i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	counts := map[models.LobbyStatus]int{}
	for i := 0; i < players; i++ {
		lobby := f.lobbyOf(fmt.Sprintf("player-%d", i))
		require.NotNil(t, lobby)
		counts[lobby.Status]++
		if lobby.Status == models.LobbyStatusConfirmation {
			f.tx(func(ctx context.Context, tx repository.Tx) {
				lp, err := tx.Lobbies().ListPlayers(ctx, lobby.ID)
				require.NoError(t, err)
				assert.Len(t, lp, 2)
			})
		}
	}
	assert.Equal(t, counts[models.LobbyStatusConfirmation], counts[models.LobbyStatusWaiting])
	assert.LessOrEqual(t, counts[models.LobbyStatusSearching], 1)
	assert.Equal(t, players, 2*counts[models.LobbyStatusConfirmation]+counts[models.LobbyStatusSearching])
}

func (f *fixture) setRating(r models.Rating) {
	r.GuildID = testGuild
	f.tx(func(ctx context.Context, tx repository.Tx) {
		require.NoError(f.t, tx.Ratings().Upsert(ctx, &r))
	})
}

func TestMatchmakingService_RankedPasses(t *testing.T) {
	tier2, tier3 := "tier-2", "tier-3"
	started := time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		waiting   models.Rating
		caller    models.Rating
		matched   bool
		wantBonus bool
	}{
		{
			name:    "same tier",
			waiting: models.Rating{PlayerID: "waiting", TierID: &tier3, Score: 1700},
			caller:  models.Rating{PlayerID: "caller", TierID: &tier3, Score: 1750},
			matched: true,
		},
		{
			name:    "promotion into the opponent's tier",
			waiting: models.Rating{PlayerID: "waiting", TierID: &tier2, Score: 2100},
			caller:  models.Rating{PlayerID: "caller", TierID: &tier3, Score: 2000, Promotion: true, PromotionStartedAt: &started},
			matched: true,
		},
		{
			name:      "promotion widened to the own tier",
			waiting:   models.Rating{PlayerID: "waiting", TierID: &tier3, Score: 1700},
			caller:    models.Rating{PlayerID: "caller", TierID: &tier3, Score: 2000, Promotion: true, PromotionStartedAt: &started},
			matched:   true,
			wantBonus: true,
		},
		{
			name:    "both in promotion",
			waiting: models.Rating{PlayerID: "waiting", TierID: &tier3, Score: 2000, Promotion: true, PromotionStartedAt: &started},
			caller:  models.Rating{PlayerID: "caller", TierID: &tier3, Score: 2000, Promotion: true, PromotionStartedAt: &started},
		},
		{
			name:    "different tiers outside promotion",
			waiting: models.Rating{PlayerID: "waiting", TierID: &tier2, Score: 2100},
			caller:  models.Rating{PlayerID: "caller", TierID: &tier3, Score: 1700},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.setRating(tt.waiting)
			f.setRating(tt.caller)
			f.profile("waiting", true, false, false)
			f.profile("caller", true, false, false)

			assert.False(t, f.search("waiting", SearchTarget{Ranked: true}).Matched)
			res := f.search("caller", SearchTarget{Ranked: true})
			assert.Equal(t, tt.matched, res.Matched)
			if tt.matched {
				assert.Equal(t, models.LobbyModeRanked, res.Mode)
				assert.Equal(t, tt.wantBonus, res.Bonus)
			}
		})
	}
}

func TestMatchmakingService_RankedDailyLimit(t *testing.T) {
	f := newFixture(t)
	for _, p := range []string{"alice", "bob"} {
		f.rating(p, "tier-3", 1700)
		f.profile(p, true, false, false)
	}

	for i := 0; i < 2; i++ {
		lobbyID := f.playing("alice", "bob", SearchTarget{Ranked: true})
		_, err := f.engine.Sets.StartSet(f.ctx, testGuild, lobbyID, 1)
		require.NoError(t, err)
		res := f.winGame("alice", "bob", "alice")
		require.True(t, res.Finished)
		_, err = f.engine.Lobbies.CloseArena(f.ctx, testGuild, lobbyID)
		require.NoError(t, err)
		f.advance(time.Minute)
	}

	assert.False(t, f.search("bob", SearchTarget{Ranked: true}).Matched)
	assert.False(t, f.search("alice", SearchTarget{Ranked: true}).Matched)
}

func TestMatchmakingService_GuestCannotSearchWhilePlaying(t *testing.T) {
	f := newFixture(t)
	open := SearchTarget{TierID: "open"}
	f.playing("alice", "bob", open)
	require.Nil(t, f.lobbyOf("bob"))

	_, err := f.engine.Matchmaking.Search(f.ctx, testGuild, "bob", open)
	assert.ErrorIs(t, err, ErrCannotSearch)
	assert.Nil(t, f.lobbyOf("bob"), "no second lobby for the guest")

	f.search("carol", open)
	_, err = f.engine.Matchmaking.DirectMatch(f.ctx, testGuild, "bob", "carol", "open")
	assert.ErrorIs(t, err, ErrCannotSearch)
	assert.Equal(t, models.LobbyStatusSearching, f.lobbyOf("carol").Status)

	view, err := f.engine.Lobbies.Lobby(f.ctx, testGuild, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.LobbyStatusPlaying, view.Lobby.Status)
}

func TestMatchmakingService_DirectMatchRechecksBothLobbies(t *testing.T) {
	f := newFixture(t)
	open := SearchTarget{TierID: "open"}
	f.search("bob", open)
	require.True(t, f.search("alice", open).Matched)
	require.False(t, f.search("carol", open).Matched)

	_, err := f.engine.Matchmaking.DirectMatch(f.ctx, testGuild, "carol", "bob", "open")
	assert.ErrorIs(t, err, ErrNotSearching)
	_, err = f.engine.Matchmaking.DirectMatch(f.ctx, testGuild, "alice", "carol", "open")
	assert.ErrorIs(t, err, ErrCannotSearch)

	assert.Equal(t, models.LobbyStatusWaiting, f.lobbyOf("bob").Status)
	assert.Equal(t, models.LobbyStatusConfirmation, f.lobbyOf("alice").Status)
	assert.Equal(t, models.LobbyStatusSearching, f.lobbyOf("carol").Status)
}
