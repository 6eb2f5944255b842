package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelegationScopeContainsAll(t *testing.T) {
	s := DelegationScope{Kind: DelegationScopeAll}
	assert.True(t, s.Contains("any-id", nil))
}

func TestDelegationScopeContainsByMemoryIDs(t *testing.T) {
	s := DelegationScope{Kind: DelegationScopeByMemoryIDs, MemoryIDs: []string{"m1", "m2"}}
	assert.True(t, s.Contains("m1", nil))
	assert.False(t, s.Contains("m3", nil))
}

func TestDelegationScopeContainsByTag(t *testing.T) {
	s := DelegationScope{Kind: DelegationScopeByTag, Tags: []string{"project-x"}}
	assert.True(t, s.Contains("m1", []string{"project-x", "other"}))
	assert.False(t, s.Contains("m1", []string{"other"}))
	assert.False(t, s.Contains("m1", nil))
}

func TestDelegationScopeContainsUnknownKind(t *testing.T) {
	s := DelegationScope{Kind: DelegationScopeKind("bogus")}
	assert.False(t, s.Contains("m1", []string{"x"}))
}

func TestDelegationActive(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	d := &Delegation{MaxDepth: 3, CurrentDepth: 1}
	assert.True(t, d.Active(now))

	revoked := &Delegation{MaxDepth: 3}
	revokedAt := now.Add(-time.Minute)
	revoked.RevokedAt = &revokedAt
	assert.False(t, revoked.Active(now))

	expired := &Delegation{MaxDepth: 3}
	expiredAt := now.Add(-time.Minute)
	expired.ExpiresAt = &expiredAt
	assert.False(t, expired.Active(now))

	tooDeep := &Delegation{MaxDepth: 1, CurrentDepth: 2}
	assert.False(t, tooDeep.Active(now))
}
