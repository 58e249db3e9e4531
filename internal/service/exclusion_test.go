package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryExclusionLedger_SymmetricAndExpiring(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ledger := NewMemoryExclusionLedger(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, ledger.Exclude(ctx, "a", "b", 45*time.Minute))

	excluded, err := ledger.IsExcluded(ctx, "b", "a")
	require.NoError(t, err)
	assert.True(t, excluded)

	ids, err := ledger.Excluded(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)

	now = now.Add(46 * time.Minute)
	excluded, err = ledger.IsExcluded(ctx, "a", "b")
	require.NoError(t, err)
	assert.False(t, excluded)

	ids, err = ledger.Excluded(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
