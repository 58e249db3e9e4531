package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rl-arena/ladder-backend/internal/models"
)

func TestTierGraph_Order(t *testing.T) {
	g := NewTierGraph(testTiers(), 1)

	top, ok := g.Top()
	assert.True(t, ok)
	assert.Equal(t, "tier-1", top.ID)
	weakest, ok := g.Weakest()
	assert.True(t, ok)
	assert.Equal(t, "tier-4", weakest.ID)

	up, ok := g.Stronger("tier-3")
	assert.True(t, ok)
	assert.Equal(t, "tier-2", up.ID)
	_, ok = g.Stronger("tier-1")
	assert.False(t, ok)
	down, ok := g.Weaker("tier-3")
	assert.True(t, ok)
	assert.Equal(t, "tier-4", down.ID)
	_, ok = g.Weaker("tier-4")
	assert.False(t, ok)
	_, ok = g.Stronger("open")
	assert.False(t, ok)

	assert.True(t, g.IsTop("tier-1"))
	assert.Equal(t, -1, g.Compare("tier-2", "tier-3"))
	assert.Equal(t, 1, g.Compare("tier-4", "tier-3"))
	assert.Equal(t, 0, g.Compare("open", "tier-3"))

	var ids []string
	for _, tier := range g.All() {
		ids = append(ids, tier.ID)
	}
	assert.Equal(t, []string{"tier-1", "tier-2", "tier-3", "tier-4", "open", "yuzu"}, ids)
}

func TestTierGraph_CanSearchIn(t *testing.T) {
	g := NewTierGraph(testTiers(), 1)
	tier := func(id string) models.Tier {
		tt, _ := g.Tier(id)
		return tt
	}
	tier3 := "tier-3"

	tests := []struct {
		name    string
		player  *string
		target  string
		profile models.PlayerProfile
		want    error
	}{
		{"own tier", &tier3, "tier-3", models.PlayerProfile{}, nil},
		{"weaker tier", &tier3, "tier-4", models.PlayerProfile{}, nil},
		{"one step up", &tier3, "tier-2", models.PlayerProfile{}, nil},
		{"two steps up", &tier3, "tier-1", models.PlayerProfile{}, ErrTooNoob},
		{"unrated one step up", nil, "tier-3", models.PlayerProfile{}, nil},
		{"unrated two steps up", nil, "tier-2", models.PlayerProfile{}, ErrTooNoob},
		{"open tier", nil, "open", models.PlayerProfile{}, nil},
		{"yuzu without roles", &tier3, "yuzu", models.PlayerProfile{}, ErrNoYuzu},
		{"yuzu host", &tier3, "yuzu", models.PlayerProfile{YuzuHost: true}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.CanSearchIn(tt.player, tier(tt.target), tt.profile)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestYuzuCompatible(t *testing.T) {
	host := models.PlayerProfile{YuzuHost: true}
	client := models.PlayerProfile{YuzuClient: true}
	both := models.PlayerProfile{YuzuHost: true, YuzuClient: true}

	assert.True(t, YuzuCompatible(host, client))
	assert.True(t, YuzuCompatible(client, host))
	assert.True(t, YuzuCompatible(both, both))
	assert.False(t, YuzuCompatible(host, host))
	assert.False(t, YuzuCompatible(client, client))
	assert.False(t, YuzuCompatible(models.PlayerProfile{}, both))
}

func TestRankedRules(t *testing.T) {
	g := NewTierGraph(testTiers(), 1)
	promo := func(tierID string) models.Rating {
		r := rated(tierID, 2000)
		r.Promotion = true
		return r
	}

	tests := []struct {
		name     string
		a, b     models.Rating
		compat   bool
		widening bool
	}{
		{"same tier", rated("tier-3", 1700), rated("tier-3", 1800), true, false},
		{"different tiers", rated("tier-3", 1700), rated("tier-2", 2100), false, false},
		{"promotion meets the tier above", promo("tier-3"), rated("tier-2", 2100), true, false},
		{"tier above meets promotion", rated("tier-2", 2100), promo("tier-3"), true, false},
		{"promotion meets own tier", promo("tier-3"), rated("tier-3", 1700), false, true},
		{"two promotions", promo("tier-3"), promo("tier-3"), false, false},
		{"unrated", models.Rating{}, rated("tier-3", 1700), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.compat, rankedCompatible(g, tt.a, tt.b))
			assert.Equal(t, tt.widening, promotionBonusWidening(g, tt.a, tt.b))
		})
	}
}
