package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/scrypster/mnemo/internal/storage/sqlite"
	"github.com/scrypster/mnemo/pkg/types"
)

func newLifecycleDriver(t *testing.T) *sqlite.Driver {
	t.Helper()
	d, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestEffectiveImportanceDecaysOverTime(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	decayRate := 0.01
	m := &types.MemoryRecord{
		Importance: 1.0,
		CreatedAt:  now.Add(-1000 * time.Hour),
		DecayRate:  &decayRate,
	}
	ieff := EffectiveImportance(m, now)
	assert.Less(t, ieff, 1.0)
	assert.Greater(t, ieff, 0.0)
}

func TestEffectiveImportanceAccessBoost(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	decayRate := 0.01
	unaccessed := &types.MemoryRecord{Importance: 0.5, CreatedAt: now.Add(-10 * time.Hour), DecayRate: &decayRate}
	accessed := &types.MemoryRecord{Importance: 0.5, CreatedAt: now.Add(-10 * time.Hour), DecayRate: &decayRate, AccessCount: 20}

	assert.Greater(t, EffectiveImportance(accessed, now), EffectiveImportance(unaccessed, now))
}

func TestRunDecayPassTransitionsToForgotten(t *testing.T) {
	d := newLifecycleDriver(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	decayRate := 5.0 // aggressive enough to cross the forget threshold quickly
	m := &types.MemoryRecord{
		ID:                 types.NewID(),
		Agent:              "agent-1",
		Content:            "stale memory",
		MemoryType:         types.MemoryTypeWorking,
		Scope:              types.ScopePrivate,
		Importance:         0.3,
		CreatedAt:          now.Add(-24 * time.Hour),
		LastAccessed:       now.Add(-24 * time.Hour),
		ConsolidationState: types.ConsolidationActive,
		Version:            1,
		ContentHash:        "h1",
		DecayRate:          &decayRate,
	}
	require.NoError(t, d.Store(ctx, m))

	stats, err := RunDecayPass(ctx, d, DefaultDecayThresholds(), 10, rate.NewLimiter(rate.Inf, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Evaluated)
	assert.Equal(t, 1, stats.Forgotten)

	got, err := d.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ConsolidationForgotten, got.ConsolidationState)
}

func TestRunDecayPassLeavesHealthyMemoriesActive(t *testing.T) {
	d := newLifecycleDriver(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	decayRate := 0.0001
	m := &types.MemoryRecord{
		ID:                 types.NewID(),
		Agent:              "agent-1",
		Content:            "fresh memory",
		MemoryType:         types.MemoryTypeSemantic,
		Scope:              types.ScopePrivate,
		Importance:         0.9,
		CreatedAt:          now,
		LastAccessed:       now,
		ConsolidationState: types.ConsolidationActive,
		Version:            1,
		ContentHash:        "h2",
		DecayRate:          &decayRate,
	}
	require.NoError(t, d.Store(ctx, m))

	stats, err := RunDecayPass(ctx, d, DefaultDecayThresholds(), 10, rate.NewLimiter(rate.Inf, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Evaluated)
	assert.Equal(t, 0, stats.Archived)
	assert.Equal(t, 0, stats.Forgotten)

	got, err := d.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ConsolidationActive, got.ConsolidationState)
}
