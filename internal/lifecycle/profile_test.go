package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrNewProfileReturnsZeroValueWhenMissing(t *testing.T) {
	d := newLifecycleDriver(t)
	p, err := LoadOrNewProfile(context.Background(), d, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", p.Agent)
	assert.Zero(t, p.TotalMemories)
}

func TestObserveWritePersistsRunningAverages(t *testing.T) {
	d := newLifecycleDriver(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	p, err := LoadOrNewProfile(ctx, d, "agent-1")
	require.NoError(t, err)

	require.NoError(t, ObserveWrite(ctx, d, p, 0.8, 100, now))
	require.NoError(t, ObserveWrite(ctx, d, p, 0.4, 200, now.Add(time.Second)))

	got, err := LoadOrNewProfile(ctx, d, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.TotalMemories)
	assert.InDelta(t, 0.6, got.AverageImportance, 1e-9)
}
