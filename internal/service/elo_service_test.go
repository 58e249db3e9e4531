package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestELOService_CalculateNewRatings(t *testing.T) {
	eloService := NewELOService()

	tests := []struct {
		name            string
		player1         int
		player2         int
		result          float64
		expectedChange1 int
		expectedChange2 int
	}{
		{
			name:            "Equal ratings - player1 wins",
			player1:         2400,
			player2:         2400,
			result:          1.0,
			expectedChange1: 16,
			expectedChange2: -16,
		},
		{
			name:            "Equal ratings - draw",
			player1:         2400,
			player2:         2400,
			result:          0.5,
			expectedChange1: 0,
			expectedChange2: 0,
		},
		{
			name:            "Favourite wins - small gain",
			player1:         2800,
			player2:         2400,
			result:          1.0,
			expectedChange1: 3,
			expectedChange2: -3,
		},
		{
			name:            "Underdog wins - large gain",
			player1:         2400,
			player2:         2800,
			result:          1.0,
			expectedChange1: 29,
			expectedChange2: -29,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			new1, new2, change1, change2 := eloService.CalculateNewRatings(tt.player1, tt.player2, tt.result)
			assert.Equal(t, tt.expectedChange1, change1)
			assert.Equal(t, tt.expectedChange2, change2)
			assert.Equal(t, tt.player1+change1, new1)
			assert.Equal(t, tt.player2+change2, new2)
		})
	}
}

func TestELOService_SetDeltas(t *testing.T) {
	eloService := NewELOService()

	gain, loss := eloService.SetDeltas(2400, 2400)
	assert.Equal(t, 16, gain)
	assert.Equal(t, 16, loss)
}

func TestELOService_ExpectedScore(t *testing.T) {
	eloService := NewELOService()

	assert.InDelta(t, 0.5, eloService.expectedScore(2400, 2400), 1e-9)
	assert.InDelta(t, 1.0/(1.0+0.1), eloService.expectedScore(2800, 2400), 1e-9)
}
