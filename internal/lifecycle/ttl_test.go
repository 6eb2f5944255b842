package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/scrypster/mnemo/pkg/types"
)

func TestCleanupExpiredHardDeletesPastTTL(t *testing.T) {
	d := newLifecycleDriver(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	past := now.Add(-time.Minute)
	expired := &types.MemoryRecord{
		ID: types.NewID(), Agent: "agent-1", Content: "old", MemoryType: types.MemoryTypeWorking,
		Scope: types.ScopePrivate, CreatedAt: now, LastAccessed: now,
		ConsolidationState: types.ConsolidationActive, Version: 1, ContentHash: "h1",
		ExpiresAt: &past,
	}
	require.NoError(t, d.Store(ctx, expired))

	live := &types.MemoryRecord{
		ID: types.NewID(), Agent: "agent-1", Content: "fresh", MemoryType: types.MemoryTypeWorking,
		Scope: types.ScopePrivate, CreatedAt: now, LastAccessed: now,
		ConsolidationState: types.ConsolidationActive, Version: 1, ContentHash: "h2",
	}
	require.NoError(t, d.Store(ctx, live))

	stats, err := CleanupExpired(ctx, d, now, 10, rate.NewLimiter(rate.Inf, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deleted)

	_, err = d.Get(ctx, expired.ID)
	assert.Error(t, err)
	_, err = d.Get(ctx, live.ID)
	assert.NoError(t, err)
}

func TestCleanupExpiredNoneEligible(t *testing.T) {
	d := newLifecycleDriver(t)
	ctx := context.Background()

	stats, err := CleanupExpired(ctx, d, time.Now(), 10, rate.NewLimiter(rate.Inf, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Deleted)
}
