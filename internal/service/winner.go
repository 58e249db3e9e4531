package service

import "github.com/rl-arena/ladder-backend/internal/models"

// calculateWinner resolves a game from the players' votes. A winner exists only when exactly one player
// claims the win and the other conceded or has not voted. Two claims, or two concessions, are a
// conflict the players must correct.
func calculateWinner(players []models.GamePlayer) (winnerID string, conflict bool) {
	if len(players) != 2 {
		return "", false
	}
	a, b := players[0], players[1]
	switch {
	case a.Winner == models.VoteWin && b.Winner == models.VoteWin:
		return "", true
	case a.Winner == models.VoteLoss && b.Winner == models.VoteLoss:
		return "", true
	case a.Winner == models.VoteWin:
		return a.PlayerID, false
	case b.Winner == models.VoteWin:
		return b.PlayerID, false
	}
	return "", false
}

// winsByPlayer games won per player.
func winsByPlayer(games []models.Game) map[string]int {
	wins := make(map[string]int)
	for _, g := range games {
		if g.WinnerID != nil {
			wins[*g.WinnerID]++
		}
	}
	return wins
}

// firstTo games needed to take a best-of-n set.
func firstTo(bestOf int) int {
	return (bestOf + 1) / 2
}
