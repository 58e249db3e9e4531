package service

import "math"

// ELOService Elo rating calculation, used between two players of the top tier.
type ELOService struct {
	kFactor float64
}

// NewELOService Elo service with K=32
func NewELOService() *ELOService {
	return &ELOService{
		kFactor: 32,
	}
}

// CalculateNewRatings new ratings after a result.
// result: 1.0 (player1 wins), 0.5 (draw), 0.0 (player2 wins)
func (s *ELOService) CalculateNewRatings(player1, player2 int, result float64) (newPlayer1, newPlayer2, player1Change, player2Change int) {
	expected1 := s.expectedScore(float64(player1), float64(player2))
	expected2 := 1.0 - expected1

	newPlayer1 = int(math.Round(float64(player1) + s.kFactor*(result-expected1)))
	newPlayer2 = int(math.Round(float64(player2) + s.kFactor*((1.0-result)-expected2)))

	player1Change = newPlayer1 - player1
	player2Change = newPlayer2 - player2
	return
}

// SetDeltas points won by the winner and lost by the loser of a set.
func (s *ELOService) SetDeltas(winnerScore, loserScore int) (gain, loss int) {
	_, _, winnerChange, loserChange := s.CalculateNewRatings(winnerScore, loserScore, 1.0)
	return winnerChange, -loserChange
}

// expectedScore Elo expected score of A against B
func (s *ELOService) expectedScore(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (ratingB-ratingA)/400.0))
}
