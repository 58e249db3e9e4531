package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl-arena/ladder-backend/internal/models"
	"github.com/rl-arena/ladder-backend/internal/repository"
)

const (
	sameTierBase      = 25
	streakBonus       = 2
	streakWindow      = 5
	strongerTierGain  = 15
	weakerTierGain    = 25
	crossTierLoss     = 15
	demotionMargin    = 200
	promotionWinsNeed = 3
	promotionSetLimit = 5
	promotionBase     = 50
	promotionWinValue = 20
)

// RatingChange one player's rating before and after a ranked set.
type RatingChange struct {
	PlayerID         string        `json:"playerId"`
	Before           models.Rating `json:"before"`
	After            models.Rating `json:"after"`
	Delta            int           `json:"delta"`
	EnteredPromotion bool          `json:"enteredPromotion"`
	Promoted         bool          `json:"promoted"`
	FailedPromotion  bool          `json:"failedPromotion"`
	Demoted          bool          `json:"demoted"`
}

// RatingView a rating with its tier and the tier it promotes into.
type RatingView struct {
	Rating   models.Rating `json:"rating"`
	Tier     *models.Tier  `json:"tier,omitempty"`
	NextTier *models.Tier  `json:"nextTier,omitempty"`
}

// RatingService score, promotion and demotion after ranked sets.
type RatingService struct {
	*core
	elo *ELOService
}

func newRatingService(c *core, elo *ELOService) *RatingService {
	return &RatingService{core: c, elo: elo}
}

// Rating read-only view of the player's rating.
func (s *RatingService) Rating(ctx context.Context, guildID, playerID string) (*RatingView, error) {
	var view *RatingView
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		r, err := tx.Ratings().Find(ctx, playerID, guildID)
		if err != nil {
			return fmt.Errorf("failed to find rating: %w", err)
		}
		if r == nil {
			return notFound("rating", playerID)
		}
		graph, err := s.tierGraph(ctx, tx, guildID)
		if err != nil {
			return err
		}
		view = &RatingView{Rating: *r}
		if r.TierID != nil {
			if tier, ok := graph.Tier(*r.TierID); ok {
				view.Tier = &tier
			}
			if next, ok := graph.Stronger(*r.TierID); ok {
				view.NextTier = &next
			}
		}
		return nil
	})
	return view, err
}

// applySetResult updates both ratings of a finished ranked set.
func (s *RatingService) applySetResult(ctx context.Context, tx repository.Tx, set models.GameSet, winnerID, loserID string) ([]RatingChange, error) {
	graph, err := s.tierGraph(ctx, tx, set.GuildID)
	if err != nil {
		return nil, err
	}
	winner, err := s.ensureRating(ctx, tx, graph, winnerID, set.GuildID)
	if err != nil {
		return nil, err
	}
	loser, err := s.ensureRating(ctx, tx, graph, loserID, set.GuildID)
	if err != nil {
		return nil, err
	}

	gain, loss, err := s.deltas(ctx, tx, graph, set, *winner, *loser)
	if err != nil {
		return nil, err
	}

	changes := []RatingChange{
		s.apply(graph, *winner, gain, true, set.Bonus),
		s.apply(graph, *loser, -loss, false, set.Bonus),
	}
	for i := range changes {
		if err := tx.Ratings().Upsert(ctx, &changes[i].After); err != nil {
			return nil, fmt.Errorf("failed to update rating: %w", err)
		}
		s.logger.Info("Rating updated",
			zap.String("playerId", changes[i].PlayerID),
			zap.Int("before", changes[i].Before.Score),
			zap.Int("after", changes[i].After.Score),
			zap.Bool("promotion", changes[i].After.Promotion))
	}
	return changes, nil
}

// deltas points gained by the winner and lost by the loser.
func (s *RatingService) deltas(ctx context.Context, tx repository.Tx, graph *TierGraph, set models.GameSet, winner, loser models.Rating) (int, int, error) {
	sameTier := winner.TierID == nil || loser.TierID == nil || *winner.TierID == *loser.TierID
	if !sameTier {
		if graph.Compare(*winner.TierID, *loser.TierID) < 0 {
			return strongerTierGain, crossTierLoss, nil
		}
		return weakerTierGain, crossTierLoss, nil
	}

	if winner.TierID != nil && graph.IsTop(*winner.TierID) {
		gain, loss := s.elo.SetDeltas(winner.Score, loser.Score)
		return gain, loss, nil
	}

	winStreak, err := s.streak(ctx, tx, winner, set.ID, true)
	if err != nil {
		return 0, 0, err
	}
	lossStreak, err := s.streak(ctx, tx, loser, set.ID, false)
	if err != nil {
		return 0, 0, err
	}
	return sameTierBase + streakBonus*winStreak, sameTierBase + streakBonus*lossStreak, nil
}

// streak consecutive previous ranked sets with the same outcome, newest first, within streakWindow.
func (s *RatingService) streak(ctx context.Context, tx repository.Tx, r models.Rating, currentSetID string, won bool) (int, error) {
	history, err := tx.Sets().RankedHistory(ctx, r.PlayerID, r.GuildID, nil, streakWindow+1)
	if err != nil {
		return 0, fmt.Errorf("failed to load ranked history: %w", err)
	}
	streak := 0
	for _, h := range history {
		if h.GameSetID == currentSetID {
			continue
		}
		if h.Won != won || streak == streakWindow {
			break
		}
		streak++
	}
	return streak, nil
}

// apply moves r by delta, or counts the set toward r's promotion window.
func (s *RatingService) apply(graph *TierGraph, r models.Rating, delta int, won, bonus bool) RatingChange {
	change := RatingChange{PlayerID: r.PlayerID, Before: r, Delta: delta}

	if r.Promotion {
		switch {
		case bonus:
			r.PromotionBonusSets++
			if won {
				r.AddPromotionBonusScore(delta)
			}
		case won:
			r.PromotionWins++
		default:
			r.PromotionLosses++
		}
		s.resolvePromotion(graph, &r, &change)
		change.After = r
		return change
	}

	r.Score = max(0, r.Score+delta)
	if r.TierID != nil {
		next, hasNext := graph.Stronger(*r.TierID)
		current, hasCurrent := graph.Tier(*r.TierID)
		switch {
		case hasNext && next.Threshold != nil && r.Score >= *next.Threshold:
			now := s.now()
			r.Score = *next.Threshold
			r.Promotion = true
			r.PromotionStartedAt = &now
			change.EnteredPromotion = true
		case hasCurrent && r.Score < current.ThresholdValue()-demotionMargin:
			if weaker, ok := graph.Weaker(current.ID); ok {
				id := weaker.ID
				r.TierID = &id
				change.Demoted = true
			}
		}
	}
	change.After = r
	return change
}

// resolvePromotion closes the window on promotionWinsNeed wins, or once that many wins can no longer
// fit into promotionSetLimit sets.
func (s *RatingService) resolvePromotion(graph *TierGraph, r *models.Rating, change *RatingChange) {
	if r.TierID == nil {
		r.ClearPromotion()
		return
	}
	next, ok := graph.Stronger(*r.TierID)
	if !ok {
		r.ClearPromotion()
		return
	}
	score := next.ThresholdValue() - promotionBase + promotionWinValue*r.PromotionWins + r.PromotionBonusScore

	switch {
	case r.PromotionWins >= promotionWinsNeed:
		id := next.ID
		r.TierID = &id
		r.Score = score
		r.ClearPromotion()
		change.Promoted = true
	case promotionWinsNeed-r.PromotionWins > promotionSetLimit-r.PromotionSets():
		r.Score = min(score, next.ThresholdValue()-1)
		r.ClearPromotion()
		change.FailedPromotion = true
	}
}
