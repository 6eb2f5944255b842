// Package types defines the core data structures of the memory engine:
// memory records, agent events, relations, ACL entries, delegations,
// checkpoints, and agent profiles.
package types

import "time"

// MemoryType is the cognitive category of a memory.
type MemoryType string

const (
	MemoryTypeWorking    MemoryType = "working"
	MemoryTypeEpisodic   MemoryType = "episodic"
	MemoryTypeSemantic   MemoryType = "semantic"
	MemoryTypeProcedural MemoryType = "procedural"
)

// ValidMemoryTypes enumerates the allowed memory_type values. Per DESIGN.md's
// Open Question (a), "strategic" is treated as out of scope: the base data
// model names exactly these four.
var ValidMemoryTypes = []MemoryType{
	MemoryTypeWorking, MemoryTypeEpisodic, MemoryTypeSemantic, MemoryTypeProcedural,
}

// IsValidMemoryType reports whether t is one of the four recognized types.
func IsValidMemoryType(t MemoryType) bool {
	for _, v := range ValidMemoryTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Scope is the visibility class of a memory.
type Scope string

const (
	ScopePrivate Scope = "private"
	ScopeShared  Scope = "shared"
	ScopePublic  Scope = "public"
	ScopeGlobal  Scope = "global"
)

// ConsolidationState is the cognitive-lifecycle state of a memory.
type ConsolidationState string

const (
	ConsolidationRaw          ConsolidationState = "raw"
	ConsolidationActive       ConsolidationState = "active"
	ConsolidationPending      ConsolidationState = "pending"
	ConsolidationConsolidated ConsolidationState = "consolidated"
	ConsolidationArchived     ConsolidationState = "archived"
	ConsolidationForgotten    ConsolidationState = "forgotten"
)

// validConsolidationTransitions enumerates the lifecycle transitions the
// engine may apply automatically (decay/consolidate/archive/forget). It
// mirrors the shape of a state machine but is deliberately permissive about
// re-entering "active" from "pending" (a cluster candidate that failed to
// consolidate returns to active), since cognitive lifecycle is not a strict
// linear progression the way checkpoint branch states are.
var validConsolidationTransitions = map[ConsolidationState]map[ConsolidationState]bool{
	ConsolidationRaw:          {ConsolidationActive: true, ConsolidationArchived: true, ConsolidationForgotten: true},
	ConsolidationActive:       {ConsolidationPending: true, ConsolidationArchived: true, ConsolidationForgotten: true, ConsolidationConsolidated: true},
	ConsolidationPending:      {ConsolidationActive: true, ConsolidationConsolidated: true, ConsolidationArchived: true, ConsolidationForgotten: true},
	ConsolidationConsolidated: {ConsolidationArchived: true, ConsolidationForgotten: true},
	ConsolidationArchived:     {ConsolidationForgotten: true},
	ConsolidationForgotten:    {},
}

// IsValidConsolidationTransition reports whether a transition from cur to
// next is permitted.
func IsValidConsolidationTransition(cur, next ConsolidationState) bool {
	if cur == next {
		return true
	}
	allowed, ok := validConsolidationTransitions[cur]
	if !ok {
		return false
	}
	return allowed[next]
}

// Provenance records where a memory came from.
type Provenance struct {
	CreatedBy  string `json:"created_by"`
	SourceType string `json:"source_type,omitempty"`
	SourceID   string `json:"source_id,omitempty"`
}

// MemoryRecord is a single memorized item.
type MemoryRecord struct {
	// Core identification
	ID    string `json:"id"`
	Agent string `json:"agent_id"`
	Org   string `json:"org_id,omitempty"`
	Thread string `json:"thread_id,omitempty"`
	// Branch is the branch this memory was written on within Thread. Writes
	// on one branch never affect recall scoped to a sibling branch; empty
	// is treated as DefaultBranch.
	Branch string `json:"branch_name,omitempty"`

	// Content
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`

	// Classification
	MemoryType MemoryType `json:"memory_type"`
	Scope      Scope      `json:"scope"`
	Importance float64    `json:"importance"`
	Tags       []string   `json:"tags,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`

	// Timestamps and usage
	CreatedAt    time.Time  `json:"created_at"`
	LastAccessed time.Time  `json:"last_accessed_at"`
	AccessCount  int        `json:"access_count"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	DecayRate    *float64   `json:"decay_rate,omitempty"`

	// Cognitive lifecycle
	ConsolidationState ConsolidationState `json:"consolidation_state"`

	// Provenance
	Provenance Provenance `json:"provenance"`

	// Version chain
	Version       int    `json:"version"`
	PrevVersionID string `json:"prev_version_id,omitempty"`

	// Content-addressing / hash chain
	ContentHash string `json:"content_hash"`
	PrevHash    string `json:"prev_hash"`

	// Quarantine
	Quarantined      bool   `json:"quarantined"`
	QuarantineReason string `json:"quarantine_reason,omitempty"`

	// Soft delete
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// IsExpired reports whether the memory's TTL has elapsed as of now.
func (m *MemoryRecord) IsExpired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// Retrievable reports whether the memory may appear in any recall result.
func (m *MemoryRecord) Retrievable(now time.Time) bool {
	if m.ConsolidationState == ConsolidationForgotten {
		return false
	}
	if m.Quarantined {
		return false
	}
	if m.DeletedAt != nil {
		return false
	}
	if m.ExpiresAt != nil && !m.ExpiresAt.After(now) {
		return false
	}
	return true
}

// DefaultDecayRate returns the per-memory-type default decay rate used when
// a memory does not specify one explicitly.
func DefaultDecayRate(t MemoryType) float64 {
	switch t {
	case MemoryTypeWorking:
		return 0.05
	case MemoryTypeEpisodic:
		return 0.01
	case MemoryTypeSemantic:
		return 0.001
	case MemoryTypeProcedural:
		return 0.002
	default:
		return 0.01
	}
}

// EffectiveDecayRate returns m.DecayRate if set, else the type default.
func (m *MemoryRecord) EffectiveDecayRate() float64 {
	if m.DecayRate != nil {
		return *m.DecayRate
	}
	return DefaultDecayRate(m.MemoryType)
}
