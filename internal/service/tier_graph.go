package service

import (
	"sort"

	"github.com/rl-arena/ladder-backend/internal/models"
)

// TierGraph weighted tiers of one guild ordered strongest first, plus the unweighted (open/yuzu) tiers.
type TierGraph struct {
	ordered []models.Tier
	byID    map[string]models.Tier
	reach   int
}

func NewTierGraph(tiers []models.Tier, reach int) *TierGraph {
	g := &TierGraph{byID: make(map[string]models.Tier, len(tiers)), reach: reach}
	for _, t := range tiers {
		g.byID[t.ID] = t
		if t.Weight != nil {
			g.ordered = append(g.ordered, t)
		}
	}
	sort.SliceStable(g.ordered, func(i, j int) bool {
		return *g.ordered[i].Weight < *g.ordered[j].Weight
	})
	return g
}

func (g *TierGraph) Tier(id string) (models.Tier, bool) {
	t, ok := g.byID[id]
	return t, ok
}

// Top strongest weighted tier.
func (g *TierGraph) Top() (models.Tier, bool) {
	if len(g.ordered) == 0 {
		return models.Tier{}, false
	}
	return g.ordered[0], true
}

// Weakest weakest weighted tier; new ratings start here.
func (g *TierGraph) Weakest() (models.Tier, bool) {
	if len(g.ordered) == 0 {
		return models.Tier{}, false
	}
	return g.ordered[len(g.ordered)-1], true
}

func (g *TierGraph) index(id string) int {
	for i, t := range g.ordered {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Stronger the tier one step above id (promotion target).
func (g *TierGraph) Stronger(id string) (models.Tier, bool) {
	i := g.index(id)
	if i <= 0 {
		return models.Tier{}, false
	}
	return g.ordered[i-1], true
}

// Weaker the tier one step below id (demotion target).
func (g *TierGraph) Weaker(id string) (models.Tier, bool) {
	i := g.index(id)
	if i < 0 || i == len(g.ordered)-1 {
		return models.Tier{}, false
	}
	return g.ordered[i+1], true
}

// IsTop reports whether id is the strongest weighted tier.
func (g *TierGraph) IsTop(id string) bool {
	return len(g.ordered) > 0 && g.ordered[0].ID == id
}

// Compare -1 when a is stronger than b, 1 when weaker, 0 when equal or not comparable.
func (g *TierGraph) Compare(a, b string) int {
	ia, ib := g.index(a), g.index(b)
	if ia < 0 || ib < 0 || ia == ib {
		return 0
	}
	if ia < ib {
		return -1
	}
	return 1
}

// CanSearchIn checks whether a player in playerTier (nil: unrated) may search target.
// Weighted targets are open to the own tier, every weaker tier and reach steps stronger.
func (g *TierGraph) CanSearchIn(playerTierID *string, target models.Tier, profile models.PlayerProfile) error {
	if target.Yuzu {
		if !profile.HasYuzu() {
			return tierError(KindNoYuzu, target.ID)
		}
		return nil
	}
	if target.Weight == nil {
		return nil
	}

	playerIdx := g.positionOf(playerTierID)
	targetIdx := g.index(target.ID)
	if playerIdx < 0 || targetIdx < 0 || targetIdx < playerIdx-g.reach {
		return tierError(KindTooNoob, target.ID)
	}
	return nil
}

// positionOf ladder position of a player's tier; unrated players sit in the weakest tier.
func (g *TierGraph) positionOf(tierID *string) int {
	if tierID != nil {
		if i := g.index(*tierID); i >= 0 {
			return i
		}
	}
	return len(g.ordered) - 1
}

// YuzuCompatible (A hosts and B joins) or (A joins and B hosts).
func YuzuCompatible(a, b models.PlayerProfile) bool {
	return (a.YuzuHost && b.YuzuClient) || (a.YuzuClient && b.YuzuHost)
}

// All weighted tiers strongest first, then the unweighted tiers by name.
func (g *TierGraph) All() []models.Tier {
	all := append([]models.Tier(nil), g.ordered...)
	var open []models.Tier
	for _, t := range g.byID {
		if t.Weight == nil {
			open = append(open, t)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].Name < open[j].Name })
	return append(all, open...)
}
