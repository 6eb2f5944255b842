package lifecycle

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/types"
)

func joinSummarizer(parts []string) string {
	return strings.Join(parts, " / ")
}

func newConsolidationCandidate(agent string, tags []string, createdAt time.Time) *types.MemoryRecord {
	return &types.MemoryRecord{
		ID:                 types.NewID(),
		Agent:              agent,
		Content:            "memory about " + strings.Join(tags, ","),
		MemoryType:         types.MemoryTypeEpisodic,
		Scope:              types.ScopePrivate,
		Importance:         0.4,
		Tags:               tags,
		CreatedAt:          createdAt,
		LastAccessed:       createdAt,
		ConsolidationState: types.ConsolidationActive,
		Version:            1,
		ContentHash:        types.NewID(),
	}
}

func TestRunConsolidationPassClustersByTagOverlap(t *testing.T) {
	d := newLifecycleDriver(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tags := []string{"deploy", "runbook"}
	for i := 0; i < 3; i++ {
		m := newConsolidationCandidate("agent-1", tags, now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, d.Store(ctx, m))
	}

	stats, err := RunConsolidationPass(ctx, d, d, "agent-1", DefaultConsolidationConfig(), joinSummarizer)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ClustersFound)
	assert.Equal(t, 3, stats.MemoriesMerged)
	assert.Equal(t, 1, stats.SummariesCreated)

	page, err := d.List(ctx, storage.ListOptions{Agent: "agent-1", IncludeDeleted: true, Limit: 50})
	require.NoError(t, err)
	var consolidated int
	for _, m := range page.Items {
		if m.ConsolidationState == types.ConsolidationConsolidated {
			consolidated++
		}
	}
	// 3 sources demoted to consolidated plus the 1 newly-created summary.
	assert.Equal(t, 4, consolidated)
}

func TestRunConsolidationPassSkipsClustersBelowMinSize(t *testing.T) {
	d := newLifecycleDriver(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	m1 := newConsolidationCandidate("agent-1", []string{"alpha"}, now)
	m2 := newConsolidationCandidate("agent-1", []string{"beta"}, now)
	require.NoError(t, d.Store(ctx, m1))
	require.NoError(t, d.Store(ctx, m2))

	stats, err := RunConsolidationPass(ctx, d, d, "agent-1", DefaultConsolidationConfig(), joinSummarizer)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ClustersFound)
	assert.Equal(t, 0, stats.SummariesCreated)
}

func TestTagJaccard(t *testing.T) {
	assert.Equal(t, 1.0, tagJaccard([]string{"a", "b"}, []string{"a", "b"}))
	assert.Equal(t, 0.0, tagJaccard([]string{"a"}, []string{"b"}))
	assert.InDelta(t, 0.5, tagJaccard([]string{"a", "b"}, []string{"a"}), 1e-9)
	assert.Equal(t, 0.0, tagJaccard(nil, nil))
}
