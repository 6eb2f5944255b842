package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify_IntactChainsAreValid(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Remember(ctx, RememberRequest{Content: "one", Agent: "agent-1"})
	require.NoError(t, err)
	_, err = c.Remember(ctx, RememberRequest{Content: "two", Agent: "agent-1"})
	require.NoError(t, err)

	res, err := c.Verify(ctx, VerifyRequest{Agent: "agent-1"})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, StatusVerified, res.Status)
	assert.Equal(t, 2, res.TotalMemory)
}

func TestVerify_HardDeleteGapIsExplainedNotViolated(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Remember(ctx, RememberRequest{Content: "one", Agent: "agent-1"})
	require.NoError(t, err)
	mid, err := c.Remember(ctx, RememberRequest{Content: "two", Agent: "agent-1"})
	require.NoError(t, err)
	_, err = c.Remember(ctx, RememberRequest{Content: "three", Agent: "agent-1"})
	require.NoError(t, err)

	_, err = c.Forget(ctx, ForgetRequest{Principal: "agent-1", MemoryIDs: []string{mid.ID}, Strategy: ForgetHardDelete})
	require.NoError(t, err)

	res, err := c.Verify(ctx, VerifyRequest{Agent: "agent-1"})
	require.NoError(t, err)
	assert.True(t, res.Valid, "an authorized hard-delete gap must not fail verification")
	assert.True(t, res.ExplainedGap)
	assert.NotEmpty(t, res.FirstBrokenAt)
}

func TestVerify_RequiresAgent(t *testing.T) {
	c, _ := newTestCoordinator(t)
	_, err := c.Verify(context.Background(), VerifyRequest{})
	require.Error(t, err)
}

func TestVerify_AgentWithNoHistoryIsValid(t *testing.T) {
	c, _ := newTestCoordinator(t)
	res, err := c.Verify(context.Background(), VerifyRequest{Agent: "agent-never-wrote"})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 0, res.TotalMemory)
}
