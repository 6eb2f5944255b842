package authz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/types"
)

// fakeMemoryStore implements storage.MemoryStore over an in-memory map; only
// Get is exercised by the authorizer, the rest satisfy the interface.
type fakeMemoryStore struct {
	memories map[string]*types.MemoryRecord
}

func newFakeMemoryStore(memories ...*types.MemoryRecord) *fakeMemoryStore {
	m := &fakeMemoryStore{memories: make(map[string]*types.MemoryRecord)}
	for _, mem := range memories {
		m.memories[mem.ID] = mem
	}
	return m
}

func (f *fakeMemoryStore) Store(ctx context.Context, m *types.MemoryRecord) error { return nil }
func (f *fakeMemoryStore) Get(ctx context.Context, id string) (*types.MemoryRecord, error) {
	m, ok := f.memories[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return m, nil
}
func (f *fakeMemoryStore) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.MemoryRecord], error) {
	return nil, nil
}
func (f *fakeMemoryStore) Update(ctx context.Context, m *types.MemoryRecord) error { return nil }
func (f *fakeMemoryStore) SoftDelete(ctx context.Context, id string, now time.Time) error {
	return nil
}
func (f *fakeMemoryStore) HardDelete(ctx context.Context, id string) error { return nil }
func (f *fakeMemoryStore) EvolutionChain(ctx context.Context, memoryID string) ([]*types.MemoryRecord, error) {
	return nil, nil
}
func (f *fakeMemoryStore) IncrementAccess(ctx context.Context, id string, now time.Time) error {
	return nil
}
func (f *fakeMemoryStore) UpdateConsolidationState(ctx context.Context, id string, state types.ConsolidationState) error {
	return nil
}
func (f *fakeMemoryStore) Quarantine(ctx context.Context, id string, reason string) error {
	return nil
}
func (f *fakeMemoryStore) ClearQuarantine(ctx context.Context, id string) error { return nil }
func (f *fakeMemoryStore) ForRecall(ctx context.Context, filter storage.RecallFilter, limit int) ([]*types.MemoryRecord, error) {
	return nil, nil
}
func (f *fakeMemoryStore) ForDecay(ctx context.Context, limit int) ([]*types.MemoryRecord, error) {
	return nil, nil
}
func (f *fakeMemoryStore) ForExpired(ctx context.Context, now time.Time, limit int) ([]*types.MemoryRecord, error) {
	return nil, nil
}
func (f *fakeMemoryStore) LatestForAgent(ctx context.Context, agent string) (*types.MemoryRecord, error) {
	return nil, nil
}
func (f *fakeMemoryStore) CountByAgent(ctx context.Context, agent string) (int64, error) {
	return 0, nil
}
func (f *fakeMemoryStore) Close() error { return nil }

// fakeACLStore implements storage.ACLStore over an in-memory slice.
type fakeACLStore struct {
	entries []*types.ACLEntry
}

func (f *fakeACLStore) Grant(ctx context.Context, e *types.ACLEntry) error {
	f.entries = append(f.entries, e)
	return nil
}
func (f *fakeACLStore) Revoke(ctx context.Context, id string) error { return nil }
func (f *fakeACLStore) ForMemory(ctx context.Context, memoryID string) ([]*types.ACLEntry, error) {
	var out []*types.ACLEntry
	for _, e := range f.entries {
		if e.MemoryID == memoryID {
			out = append(out, e)
		}
	}
	return out, nil
}
func (f *fakeACLStore) ForPrincipal(ctx context.Context, principalType types.PrincipalType, principalID string) ([]*types.ACLEntry, error) {
	return nil, nil
}

// fakeDelegationStore implements storage.DelegationStore over an in-memory slice.
type fakeDelegationStore struct {
	delegations []*types.Delegation
}

func (f *fakeDelegationStore) CreateDelegation(ctx context.Context, d *types.Delegation) error {
	f.delegations = append(f.delegations, d)
	return nil
}
func (f *fakeDelegationStore) RevokeDelegation(ctx context.Context, id string, now time.Time) error {
	return nil
}
func (f *fakeDelegationStore) GetDelegation(ctx context.Context, id string) (*types.Delegation, error) {
	return nil, storage.ErrNotFound
}
func (f *fakeDelegationStore) ForDelegate(ctx context.Context, delegateID string) ([]*types.Delegation, error) {
	var out []*types.Delegation
	for _, d := range f.delegations {
		if d.DelegateID == delegateID {
			out = append(out, d)
		}
	}
	return out, nil
}
func (f *fakeDelegationStore) ForDelegator(ctx context.Context, delegatorID string) ([]*types.Delegation, error) {
	return nil, nil
}

func TestAuthorizerCheckOwnerAlwaysAllowed(t *testing.T) {
	m := &types.MemoryRecord{ID: "m1", Agent: "agent-1", Scope: types.ScopePrivate}
	a := New(newFakeMemoryStore(m), &fakeACLStore{}, &fakeDelegationStore{})

	err := a.Check(context.Background(), "agent-1", "m1", types.PermissionAdmin)
	assert.NoError(t, err)
}

func TestAuthorizerCheckPublicScopeAllowsRead(t *testing.T) {
	m := &types.MemoryRecord{ID: "m1", Agent: "agent-1", Scope: types.ScopePublic}
	a := New(newFakeMemoryStore(m), &fakeACLStore{}, &fakeDelegationStore{})

	assert.NoError(t, a.Check(context.Background(), "agent-2", "m1", types.PermissionRead))
	assert.Error(t, a.Check(context.Background(), "agent-2", "m1", types.PermissionWrite))
}

func TestAuthorizerCheckPrivateScopeDeniesStranger(t *testing.T) {
	m := &types.MemoryRecord{ID: "m1", Agent: "agent-1", Scope: types.ScopePrivate}
	a := New(newFakeMemoryStore(m), &fakeACLStore{}, &fakeDelegationStore{})

	err := a.Check(context.Background(), "agent-2", "m1", types.PermissionRead)
	assert.Error(t, err)
}

func TestAuthorizerCheckACLGrant(t *testing.T) {
	m := &types.MemoryRecord{ID: "m1", Agent: "agent-1", Scope: types.ScopePrivate}
	acl := &fakeACLStore{entries: []*types.ACLEntry{
		{MemoryID: "m1", PrincipalType: types.PrincipalAgent, PrincipalID: "agent-2", Permission: types.PermissionWrite},
	}}
	a := New(newFakeMemoryStore(m), acl, &fakeDelegationStore{})

	assert.NoError(t, a.Check(context.Background(), "agent-2", "m1", types.PermissionWrite))
	assert.Error(t, a.Check(context.Background(), "agent-2", "m1", types.PermissionDelete))
}

func TestAuthorizerCheckExpiredACLGrantDenied(t *testing.T) {
	m := &types.MemoryRecord{ID: "m1", Agent: "agent-1", Scope: types.ScopePrivate}
	past := time.Now().Add(-time.Hour)
	acl := &fakeACLStore{entries: []*types.ACLEntry{
		{MemoryID: "m1", PrincipalType: types.PrincipalAgent, PrincipalID: "agent-2", Permission: types.PermissionWrite, ExpiresAt: &past},
	}}
	a := New(newFakeMemoryStore(m), acl, &fakeDelegationStore{})

	assert.Error(t, a.Check(context.Background(), "agent-2", "m1", types.PermissionRead))
}

func TestAuthorizerCheckDelegation(t *testing.T) {
	m := &types.MemoryRecord{ID: "m1", Agent: "agent-1", Scope: types.ScopePrivate, Tags: []string{"x"}}
	del := &fakeDelegationStore{delegations: []*types.Delegation{
		{
			DelegatorID: "agent-1", DelegateID: "agent-2", Permission: types.PermissionShare,
			Scope: types.DelegationScope{Kind: types.DelegationScopeAll}, MaxDepth: 1,
		},
	}}
	a := New(newFakeMemoryStore(m), &fakeACLStore{}, del)

	assert.NoError(t, a.Check(context.Background(), "agent-2", "m1", types.PermissionShare))
	assert.Error(t, a.Check(context.Background(), "agent-2", "m1", types.PermissionAdmin))
}

func TestAuthorizerCheckRevokedDelegationDenied(t *testing.T) {
	m := &types.MemoryRecord{ID: "m1", Agent: "agent-1", Scope: types.ScopePrivate}
	revokedAt := time.Now().Add(-time.Minute)
	del := &fakeDelegationStore{delegations: []*types.Delegation{
		{
			DelegatorID: "agent-1", DelegateID: "agent-2", Permission: types.PermissionRead,
			Scope: types.DelegationScope{Kind: types.DelegationScopeAll}, MaxDepth: 1, RevokedAt: &revokedAt,
		},
	}}
	a := New(newFakeMemoryStore(m), &fakeACLStore{}, del)

	assert.Error(t, a.Check(context.Background(), "agent-2", "m1", types.PermissionRead))
}

func TestAuthorizerCheckMemoryNotFound(t *testing.T) {
	a := New(newFakeMemoryStore(), &fakeACLStore{}, &fakeDelegationStore{})
	err := a.Check(context.Background(), "agent-1", "missing", types.PermissionRead)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAuthorizerAccessibleIDsFiltersAndPreservesOrder(t *testing.T) {
	m1 := &types.MemoryRecord{ID: "m1", Agent: "agent-1", Scope: types.ScopePrivate}
	m2 := &types.MemoryRecord{ID: "m2", Agent: "agent-2", Scope: types.ScopePublic}
	m3 := &types.MemoryRecord{ID: "m3", Agent: "agent-1", Scope: types.ScopePrivate}
	a := New(newFakeMemoryStore(m1, m2, m3), &fakeACLStore{}, &fakeDelegationStore{})

	out, err := a.AccessibleIDs(context.Background(), "agent-2", []string{"m1", "m2", "m3"}, types.PermissionRead)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, out)
}
