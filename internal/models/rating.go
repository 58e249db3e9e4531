package models

import "time"

// MaxPromotionBonusScore cap for Rating.PromotionBonusScore.
const MaxPromotionBonusScore = 75

// Rating one per (player, guild).
type Rating struct {
	PlayerID            string     `json:"playerId" db:"player_id"`
	GuildID             string     `json:"guildId" db:"guild_id"`
	TierID              *string    `json:"tierId,omitempty" db:"tier_id"`
	Score               int        `json:"score" db:"score"`
	Promotion           bool       `json:"promotion" db:"promotion"`
	PromotionWins       int        `json:"promotionWins" db:"promotion_wins"`
	PromotionLosses     int        `json:"promotionLosses" db:"promotion_losses"`
	PromotionBonusScore int        `json:"promotionBonusScore" db:"promotion_bonus_score"`
	PromotionBonusSets  int        `json:"promotionBonusSets" db:"promotion_bonus_sets"`
	PromotionStartedAt  *time.Time `json:"promotionStartedAt,omitempty" db:"promotion_started_at"`
	UpdatedAt           time.Time  `json:"updatedAt" db:"updated_at"`
}

// PromotionSets sets played inside the current promotion window.
func (r Rating) PromotionSets() int {
	return r.PromotionWins + r.PromotionLosses + r.PromotionBonusSets
}

// AddPromotionBonusScore monotonic, capped at MaxPromotionBonusScore.
func (r *Rating) AddPromotionBonusScore(points int) {
	if points <= 0 {
		return
	}
	r.PromotionBonusScore += points
	if r.PromotionBonusScore > MaxPromotionBonusScore {
		r.PromotionBonusScore = MaxPromotionBonusScore
	}
}

// ClearPromotion leaves the promotion window.
func (r *Rating) ClearPromotion() {
	r.Promotion = false
	r.PromotionWins = 0
	r.PromotionLosses = 0
	r.PromotionBonusScore = 0
	r.PromotionBonusSets = 0
	r.PromotionStartedAt = nil
}
