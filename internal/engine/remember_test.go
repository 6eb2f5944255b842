package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/mnemo/pkg/hashchain"
	"github.com/scrypster/mnemo/pkg/types"
)

func TestRemember_PersistsAndChainsHashes(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	first, err := c.Remember(ctx, RememberRequest{
		Content: "the sky is blue", Agent: "agent-1",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRemembered, first.Status)
	assert.NotEmpty(t, first.ContentHash)

	second, err := c.Remember(ctx, RememberRequest{
		Content: "water is wet", Agent: "agent-1",
	})
	require.NoError(t, err)

	m, err := c.store.Get(ctx, second.ID)
	require.NoError(t, err)
	firstHash, err := hashchain.Parse(first.ContentHash)
	require.NoError(t, err)
	secondHash, err := hashchain.Parse(m.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, hashchain.Hex(hashchain.Link(secondHash, firstHash)), m.PrevHash, "each record's prev_hash links its own content_hash to its predecessor's")

	firstRecord, err := c.store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, firstRecord.ContentHash, first.ContentHash)
}

func TestRemember_RejectsEmptyContent(t *testing.T) {
	c, _ := newTestCoordinator(t)
	_, err := c.Remember(context.Background(), RememberRequest{Agent: "agent-1"})
	require.Error(t, err)
}

func TestRemember_RejectsInvalidAgent(t *testing.T) {
	c, _ := newTestCoordinator(t)
	_, err := c.Remember(context.Background(), RememberRequest{Content: "x", Agent: "bad id with spaces"})
	require.Error(t, err)
}

func TestRemember_RejectsUnknownMemoryType(t *testing.T) {
	c, _ := newTestCoordinator(t)
	_, err := c.Remember(context.Background(), RememberRequest{
		Content: "x", Agent: "agent-1", MemoryType: types.MemoryType("bogus"),
	})
	require.Error(t, err)
}

func TestRemember_RejectsOutOfRangeImportance(t *testing.T) {
	c, _ := newTestCoordinator(t)
	bad := 1.5
	_, err := c.Remember(context.Background(), RememberRequest{
		Content: "x", Agent: "agent-1", Importance: &bad,
	})
	require.Error(t, err)
}

func TestRemember_RelatedToCreatesRelationOrReportsError(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	base, err := c.Remember(ctx, RememberRequest{Content: "base fact", Agent: "agent-1"})
	require.NoError(t, err)

	res, err := c.Remember(ctx, RememberRequest{
		Content: "derived fact", Agent: "agent-1",
		RelatedTo: []string{base.ID, "does-not-exist"},
	})
	require.NoError(t, err)
	assert.Empty(t, res.RelationErrors[base.ID])
	assert.Error(t, res.RelationErrors["does-not-exist"])

	rels, err := c.store.ForSource(ctx, res.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, base.ID, rels[0].TargetID)
	assert.Equal(t, types.RelationRelatedTo, rels[0].RelationType)
}

func TestRemember_DefaultsProvenanceCreatedByWhenOmitted(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	res, err := c.Remember(ctx, RememberRequest{Content: "no creator given", Agent: "agent-1"})
	require.NoError(t, err)

	m, err := c.store.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, m.Provenance.CreatedBy)
}

func TestRemember_PreservesExplicitProvenanceCreatedBy(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	res, err := c.Remember(ctx, RememberRequest{Content: "explicit creator", Agent: "agent-1", CreatedBy: "human:alice"})
	require.NoError(t, err)

	m, err := c.store.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "human:alice", m.Provenance.CreatedBy)
}

func TestRemember_AppendsMemoryWriteEvent(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	res, err := c.Remember(ctx, RememberRequest{Content: "hello", Agent: "agent-9"})
	require.NoError(t, err)

	last, err := c.store.LastForAgent(ctx, "agent-9")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, types.EventMemoryWrite, last.EventType)
	assert.Equal(t, res.ID, last.Payload["memory_id"])
}
