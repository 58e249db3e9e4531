package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl-arena/ladder-backend/internal/models"
)

func rated(tierID string, score int) models.Rating {
	return models.Rating{PlayerID: "p", GuildID: testGuild, TierID: &tierID, Score: score}
}

func inPromotion(tierID string, wins, losses int) models.Rating {
	r := rated(tierID, 2000)
	started := time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)
	r.Promotion = true
	r.PromotionStartedAt = &started
	r.PromotionWins = wins
	r.PromotionLosses = losses
	return r
}

func TestRatingService_Apply(t *testing.T) {
	f := newFixture(t)
	graph := NewTierGraph(testTiers(), 1)
	s := f.engine.Ratings

	t.Run("gain inside the tier", func(t *testing.T) {
		c := s.apply(graph, rated("tier-3", 1700), 25, true, false)
		assert.Equal(t, 1725, c.After.Score)
		assert.Equal(t, "tier-3", *c.After.TierID)
		assert.False(t, c.EnteredPromotion)
	})

	t.Run("reaching the next threshold opens promotion", func(t *testing.T) {
		c := s.apply(graph, rated("tier-3", 1990), 25, true, false)
		assert.True(t, c.EnteredPromotion)
		assert.True(t, c.After.Promotion)
		assert.Equal(t, 2000, c.After.Score)
		assert.Equal(t, "tier-3", *c.After.TierID)
		require.NotNil(t, c.After.PromotionStartedAt)
		assert.True(t, f.now.Equal(*c.After.PromotionStartedAt))
	})

	t.Run("falling below the demotion margin", func(t *testing.T) {
		c := s.apply(graph, rated("tier-3", 1410), -25, false, false)
		assert.True(t, c.Demoted)
		assert.Equal(t, "tier-4", *c.After.TierID)
		assert.Equal(t, 1385, c.After.Score)
	})

	t.Run("margin boundary keeps the tier", func(t *testing.T) {
		c := s.apply(graph, rated("tier-3", 1425), -25, false, false)
		assert.False(t, c.Demoted)
		assert.Equal(t, 1400, c.After.Score)
	})

	t.Run("weakest tier floors at zero", func(t *testing.T) {
		c := s.apply(graph, rated("tier-4", 10), -25, false, false)
		assert.False(t, c.Demoted)
		assert.Equal(t, "tier-4", *c.After.TierID)
		assert.Equal(t, 0, c.After.Score)
	})

	t.Run("top tier has no promotion", func(t *testing.T) {
		c := s.apply(graph, rated("tier-1", 3000), 16, true, false)
		assert.False(t, c.EnteredPromotion)
		assert.Equal(t, 3016, c.After.Score)
	})

	t.Run("third promotion win promotes", func(t *testing.T) {
		c := s.apply(graph, inPromotion("tier-3", 2, 1), 25, true, false)
		assert.True(t, c.Promoted)
		assert.Equal(t, "tier-2", *c.After.TierID)
		assert.Equal(t, 2000-promotionBase+3*promotionWinValue, c.After.Score)
		assert.False(t, c.After.Promotion)
		assert.Zero(t, c.After.PromotionSets())
		assert.Nil(t, c.After.PromotionStartedAt)
	})

	t.Run("promotion points do not move the score", func(t *testing.T) {
		c := s.apply(graph, inPromotion("tier-3", 0, 1), -25, false, false)
		assert.Equal(t, 2000, c.After.Score)
		assert.Equal(t, 2, c.After.PromotionLosses)
		assert.True(t, c.After.Promotion)
	})

	t.Run("third loss fails the window", func(t *testing.T) {
		c := s.apply(graph, inPromotion("tier-3", 1, 2), -25, false, false)
		assert.True(t, c.FailedPromotion)
		assert.Equal(t, "tier-3", *c.After.TierID)
		assert.Equal(t, 2000-promotionBase+promotionWinValue, c.After.Score)
		assert.False(t, c.After.Promotion)
	})

	t.Run("bonus sets collect points and fill the window", func(t *testing.T) {
		c := s.apply(graph, inPromotion("tier-3", 0, 0), 25, true, true)
		assert.Equal(t, 1, c.After.PromotionBonusSets)
		assert.Equal(t, 25, c.After.PromotionBonusScore)
		assert.Equal(t, 0, c.After.PromotionWins)

		lost := s.apply(graph, c.After, -25, false, true)
		assert.Equal(t, 2, lost.After.PromotionBonusSets)
		assert.Equal(t, 25, lost.After.PromotionBonusScore)
	})

	t.Run("failed window with bonus points stays below the next tier", func(t *testing.T) {
		r := inPromotion("tier-3", 2, 0)
		r.PromotionBonusScore = models.MaxPromotionBonusScore
		r.PromotionBonusSets = 2
		c := s.apply(graph, r, -25, false, false)
		assert.True(t, c.FailedPromotion)
		assert.Equal(t, 1999, c.After.Score)
	})
}

func TestRatingService_PromotionWindowAlwaysResolves(t *testing.T) {
	f := newFixture(t)
	graph := NewTierGraph(testTiers(), 1)
	s := f.engine.Ratings

	type outcome struct {
		won, bonus bool
	}
	outcomes := []outcome{{true, false}, {false, false}, {true, true}, {false, true}}

	var walk func(seq []outcome)
	walk = func(seq []outcome) {
		if len(seq) == promotionSetLimit {
			r := inPromotion("tier-3", 0, 0)
			resolvedAt := 0
			for i, o := range seq {
				delta := 25
				if !o.won {
					delta = -25
				}
				c := s.apply(graph, r, delta, o.won, o.bonus)
				r = c.After
				if c.Promoted || c.FailedPromotion {
					resolvedAt = i + 1
					wins := 0
					for _, prev := range seq[:i+1] {
						if prev.won && !prev.bonus {
							wins++
						}
					}
					if c.Promoted {
						assert.Equal(t, promotionWinsNeed, wins, "%v", seq)
						assert.Greater(t, r.Score, 2000, "%v", seq)
						assert.Equal(t, "tier-2", *r.TierID)
					} else {
						assert.Less(t, wins, promotionWinsNeed, "%v", seq)
						assert.Less(t, r.Score, 2000, "%v", seq)
						assert.Equal(t, "tier-3", *r.TierID)
					}
					break
				}
			}
			assert.NotZero(t, resolvedAt, "window still open after %v", seq)
			assert.LessOrEqual(t, resolvedAt, promotionSetLimit)
			return
		}
		for _, o := range outcomes {
			walk(append(append([]outcome(nil), seq...), o))
		}
	}
	walk(nil)
}

func TestRatingService_Deltas(t *testing.T) {
	f := newFixture(t)
	graph := NewTierGraph(testTiers(), 1)
	set := models.GameSet{ID: "set", GuildID: testGuild, Ranked: true}

	tests := []struct {
		name             string
		winner, loser    models.Rating
		wantGain, wantLo int
	}{
		{"stronger tier wins", rated("tier-2", 2100), rated("tier-3", 1900), strongerTierGain, crossTierLoss},
		{"weaker tier wins", rated("tier-3", 1900), rated("tier-2", 2100), weakerTierGain, crossTierLoss},
		{"top tier uses elo", rated("tier-1", 2400), rated("tier-1", 2400), 16, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gain, loss, err := f.engine.Ratings.deltas(f.ctx, nil, graph, set, tt.winner, tt.loser)
			require.NoError(t, err)
			assert.Equal(t, tt.wantGain, gain)
			assert.Equal(t, tt.wantLo, loss)
		})
	}
}

// rankedSet plays one ranked best-of-1 won by winner and closes the arena.
func (f *fixture) rankedSet(winner, loser string) *SetResult {
	lobbyID := f.playing(winner, loser, SearchTarget{Ranked: true})
	_, err := f.engine.Sets.StartSet(f.ctx, testGuild, lobbyID, 1)
	require.NoError(f.t, err)
	res := f.winGame(winner, loser, winner)
	require.True(f.t, res.Finished)
	_, err = f.engine.Lobbies.CloseArena(f.ctx, testGuild, lobbyID)
	require.NoError(f.t, err)
	f.advance(time.Minute)
	return res
}

func TestRatingService_RankedSetsWithStreak(t *testing.T) {
	f := newFixture(t)
	for _, p := range []string{"alice", "bob"} {
		f.rating(p, "tier-3", 1700)
		f.profile(p, true, false, false)
	}

	wantGain := []int{25, 27, 29}
	alice, bob := 1700, 1700
	for i, gain := range wantGain {
		if i == 2 {
			f.advance(24 * time.Hour)
		}
		res := f.rankedSet("alice", "bob")
		require.Len(t, res.Ratings, 2)
		assert.Equal(t, "alice", res.Ratings[0].PlayerID)
		assert.Equal(t, gain, res.Ratings[0].Delta, "set %d", i+1)
		assert.Equal(t, -gain, res.Ratings[1].Delta, "set %d", i+1)

		alice += gain
		bob -= gain
		assert.Equal(t, alice, f.storedRating("alice").Score)
		assert.Equal(t, bob, f.storedRating("bob").Score)
	}

	view, err := f.engine.Ratings.Rating(f.ctx, testGuild, "alice")
	require.NoError(t, err)
	assert.Equal(t, "tier-3", view.Tier.ID)
	assert.Equal(t, "tier-2", view.NextTier.ID)

	_, err = f.engine.Ratings.Rating(f.ctx, testGuild, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRatingService_UnratedPlayersStartAtTheWeakestTier(t *testing.T) {
	f := newFixture(t)
	f.profile("alice", true, false, false)
	f.profile("bob", true, false, false)

	res := f.rankedSet("alice", "bob")
	require.Len(t, res.Ratings, 2)
	assert.Equal(t, "tier-4", *res.Ratings[0].Before.TierID)
	assert.Equal(t, 1200, res.Ratings[0].Before.Score)
	assert.Equal(t, 1225, f.storedRating("alice").Score)
	assert.Equal(t, 1175, f.storedRating("bob").Score)
}
