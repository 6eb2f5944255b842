package types

import "time"

// DelegationScopeKind distinguishes the three ways a delegation's reach can
// be bounded.
type DelegationScopeKind string

const (
	DelegationScopeAll         DelegationScopeKind = "all"
	DelegationScopeByTag       DelegationScopeKind = "by_tag"
	DelegationScopeByMemoryIDs DelegationScopeKind = "by_memory_id"
)

// DelegationScope bounds which memories a Delegation applies to.
type DelegationScope struct {
	Kind      DelegationScopeKind `json:"kind"`
	Tags      []string            `json:"tags,omitempty"`
	MemoryIDs []string            `json:"memory_ids,omitempty"`
}

// Contains reports whether the scope covers the given memory, consulting
// its tags when the scope is by_tag. An empty intersection denies.
func (s DelegationScope) Contains(memoryID string, memoryTags []string) bool {
	switch s.Kind {
	case DelegationScopeAll:
		return true
	case DelegationScopeByMemoryIDs:
		for _, id := range s.MemoryIDs {
			if id == memoryID {
				return true
			}
		}
		return false
	case DelegationScopeByTag:
		tagSet := make(map[string]bool, len(s.Tags))
		for _, t := range s.Tags {
			tagSet[t] = true
		}
		for _, t := range memoryTags {
			if tagSet[t] {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Delegation is a transitive grant of a permission over a scope, bounded by
// depth and time.
type Delegation struct {
	ID               string          `json:"id"`
	DelegatorID      string          `json:"delegator_id"`
	DelegateID       string          `json:"delegate_id"`
	Permission       Permission      `json:"permission"`
	Scope            DelegationScope `json:"scope"`
	MaxDepth         int             `json:"max_depth"`
	CurrentDepth     int             `json:"current_depth"`
	ParentDelegation string          `json:"parent_delegation_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
	RevokedAt        *time.Time      `json:"revoked_at,omitempty"`
}

// Active reports whether the delegation grants anything at the given
// instant: not revoked, not expired, and within its declared max depth.
func (d *Delegation) Active(now time.Time) bool {
	if d.RevokedAt != nil {
		return false
	}
	if d.ExpiresAt != nil && !d.ExpiresAt.After(now) {
		return false
	}
	if d.CurrentDepth > d.MaxDepth {
		return false
	}
	return true
}
