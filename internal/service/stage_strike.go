package service

import "github.com/rl-arena/ladder-backend/internal/models"

// counterpickBans strikes the previous game's winner makes before the loser picks.
const counterpickBans = 3

// stagePool stages playable in game num: starters for game 1, every legal stage afterwards.
func stagePool(stages []models.Stage, num int) []models.Stage {
	var pool []models.Stage
	for _, st := range stages {
		if st.Starter || (num > 1 && st.Counterpick) {
			pool = append(pool, st)
		}
	}
	return pool
}

// available pool minus the banned stages.
func available(pool []models.Stage, bans []models.StageBan) []models.Stage {
	banned := make(map[string]bool, len(bans))
	for _, b := range bans {
		banned[b.StageID] = true
	}
	var out []models.Stage
	for _, st := range pool {
		if !banned[st.ID] {
			out = append(out, st)
		}
	}
	return out
}

func containsStage(stages []models.Stage, id string) bool {
	for _, st := range stages {
		if st.ID == id {
			return true
		}
	}
	return false
}

// strikeOutcome what happens after ban number n (1-based) of a game.
type strikeOutcome struct {
	// FlipTurn the other player strikes (or picks) next.
	FlipTurn bool
	// AutoStage set when the strikes left a single starter.
	AutoStage string
	// PickPhase counterpick strikes are over; the player holding the turn picks freely.
	PickPhase bool
}

// nextStrike game 1 follows 1-2-2-2 over the starters: the turn flips after every odd-numbered ban and
// the last remaining starter is selected automatically. Later games end after counterpickBans strikes
// by the winner, then the loser picks.
func nextStrike(num, n int, remaining []models.Stage) strikeOutcome {
	if num == 1 {
		if len(remaining) == 1 {
			return strikeOutcome{AutoStage: remaining[0].ID}
		}
		return strikeOutcome{FlipTurn: n%2 == 1}
	}
	if n >= counterpickBans {
		return strikeOutcome{FlipTurn: true, PickPhase: true}
	}
	return strikeOutcome{}
}
