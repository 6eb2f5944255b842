package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/mnemo/pkg/types"
)

func TestRecall_ExactStrategyOrdersByRecency(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Remember(ctx, RememberRequest{Content: "first memory", Agent: "agent-1"})
	require.NoError(t, err)
	_, err = c.Remember(ctx, RememberRequest{Content: "second memory", Agent: "agent-1"})
	require.NoError(t, err)

	res, err := c.Recall(ctx, RecallRequest{
		Principal: "agent-1", Agent: "agent-1", Strategy: StrategyExact,
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "second memory", res.Items[0].Content)
}

func TestRecall_RejectsEmptyQueryForNonExactStrategy(t *testing.T) {
	c, _ := newTestCoordinator(t)
	_, err := c.Recall(context.Background(), RecallRequest{Principal: "agent-1", Strategy: StrategyHybrid})
	require.Error(t, err)
}

func TestRecall_RejectsInvalidPrincipal(t *testing.T) {
	c, _ := newTestCoordinator(t)
	_, err := c.Recall(context.Background(), RecallRequest{Principal: "bad id", Query: "x"})
	require.Error(t, err)
}

func TestRecall_SemanticFindsClosestMatch(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Remember(ctx, RememberRequest{Content: "the quick brown fox", Agent: "agent-1"})
	require.NoError(t, err)
	_, err = c.Remember(ctx, RememberRequest{Content: "quantum mechanics is strange", Agent: "agent-1"})
	require.NoError(t, err)

	res, err := c.Recall(ctx, RecallRequest{
		Principal: "agent-1", Agent: "agent-1", Query: "the quick brown fox", Strategy: StrategySemantic,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Items)
	assert.Equal(t, "the quick brown fox", res.Items[0].Content)
}

func TestRecall_OnlyReturnsMemoriesPrincipalCanRead(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Remember(ctx, RememberRequest{Content: "owner secret", Agent: "agent-1", Scope: types.ScopePrivate})
	require.NoError(t, err)

	res, err := c.Recall(ctx, RecallRequest{
		Principal: "agent-2", Agent: "agent-1", Strategy: StrategyExact,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
}

func TestRecall_PublicScopeIsReadableByAnyone(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Remember(ctx, RememberRequest{Content: "public fact", Agent: "agent-1", Scope: types.ScopePublic})
	require.NoError(t, err)

	res, err := c.Recall(ctx, RecallRequest{
		Principal: "agent-2", Agent: "agent-1", Strategy: StrategyExact,
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
}

func TestRecall_HybridFusesAndRespectsLimit(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := c.Remember(ctx, RememberRequest{Content: "note about cats and dogs", Agent: "agent-1"})
		require.NoError(t, err)
	}

	res, err := c.Recall(ctx, RecallRequest{
		Principal: "agent-1", Agent: "agent-1", Query: "cats", Strategy: StrategyHybrid, Limit: 2,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res.Items), 2)
}

func TestRecall_BranchIsolatesWrites(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Remember(ctx, RememberRequest{Content: "main line note", Agent: "agent-1", Thread: "thread-1"})
	require.NoError(t, err)
	_, err = c.Checkpoint(ctx, CheckpointRequest{Principal: "agent-1", Thread: "thread-1"})
	require.NoError(t, err)

	_, err = c.Branch(ctx, BranchRequest{Principal: "agent-1", Thread: "thread-1", NewBranch: "experiment"})
	require.NoError(t, err)

	_, err = c.Remember(ctx, RememberRequest{Content: "experiment-only note", Agent: "agent-1", Thread: "thread-1", Branch: "experiment"})
	require.NoError(t, err)

	mainResult, err := c.Recall(ctx, RecallRequest{
		Principal: "agent-1", Agent: "agent-1", Thread: "thread-1", Branch: types.DefaultBranch, Strategy: StrategyExact,
	})
	require.NoError(t, err)
	require.Len(t, mainResult.Items, 1)
	assert.Equal(t, "main line note", mainResult.Items[0].Content)

	expResult, err := c.Recall(ctx, RecallRequest{
		Principal: "agent-1", Agent: "agent-1", Thread: "thread-1", Branch: "experiment", Strategy: StrategyExact,
	})
	require.NoError(t, err)
	require.Len(t, expResult.Items, 1)
	assert.Equal(t, "experiment-only note", expResult.Items[0].Content)
}

func TestRecall_IncrementsAccessCount(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	res, err := c.Remember(ctx, RememberRequest{Content: "track me", Agent: "agent-1"})
	require.NoError(t, err)

	_, err = c.Recall(ctx, RecallRequest{Principal: "agent-1", Agent: "agent-1", Strategy: StrategyExact})
	require.NoError(t, err)

	m, err := c.store.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, m.AccessCount)
}
