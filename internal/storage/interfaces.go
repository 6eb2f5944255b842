// Package storage defines the persistence contracts for the memory
// database. The driver is split into small, focused interfaces rather than
// one monolith, following the Interface Segregation Principle: a component
// that only ever touches ACL rows has no business depending on checkpoint
// methods it will never call.
package storage

import (
	"context"
	"time"

	"github.com/scrypster/mnemo/pkg/types"
)

// MemoryStore provides CRUD, versioning, and lifecycle queries for
// MemoryRecord.
type MemoryStore interface {
	Store(ctx context.Context, m *types.MemoryRecord) error
	Get(ctx context.Context, id string) (*types.MemoryRecord, error)
	List(ctx context.Context, opts ListOptions) (*PaginatedResult[types.MemoryRecord], error)
	Update(ctx context.Context, m *types.MemoryRecord) error

	// SoftDelete marks a memory forgotten without erasing its row.
	SoftDelete(ctx context.Context, id string, now time.Time) error
	// HardDelete permanently erases a memory row.
	HardDelete(ctx context.Context, id string) error

	// EvolutionChain walks PrevVersionID backward and returns the full
	// version history oldest-first, capped at 50 hops.
	EvolutionChain(ctx context.Context, memoryID string) ([]*types.MemoryRecord, error)

	// IncrementAccess atomically bumps access_count and last_accessed.
	IncrementAccess(ctx context.Context, id string, now time.Time) error

	// UpdateConsolidationState transitions a memory's lifecycle state.
	// Callers must have already validated the transition via
	// types.IsValidConsolidationTransition.
	UpdateConsolidationState(ctx context.Context, id string, state types.ConsolidationState) error

	// Quarantine flags a memory as anomalous, hiding it from recall until cleared.
	Quarantine(ctx context.Context, id string, reason string) error
	ClearQuarantine(ctx context.Context, id string) error

	// ForRecall returns the candidate set a recall strategy may score,
	// already narrowed by filter (including authorization).
	ForRecall(ctx context.Context, filter RecallFilter, limit int) ([]*types.MemoryRecord, error)

	// LatestForAgent returns the most recently created live memory for an
	// agent, used to read prev_mem_hash when linking a new memory into the
	// agent's content-hash chain, or nil if the agent has none yet.
	LatestForAgent(ctx context.Context, agent string) (*types.MemoryRecord, error)

	// ForDecay returns active/pending memories eligible for a decay pass,
	// in batches bounded by limit, ordered by last_accessed ascending.
	ForDecay(ctx context.Context, limit int) ([]*types.MemoryRecord, error)

	// ForExpired returns live memories whose expires_at has elapsed as of
	// now, in batches bounded by limit, for the TTL cleanup pass.
	ForExpired(ctx context.Context, now time.Time, limit int) ([]*types.MemoryRecord, error)

	// CountByAgent returns the total live memory count for an agent, used
	// by the lifecycle engine's profile bookkeeping.
	CountByAgent(ctx context.Context, agent string) (int64, error)

	Close() error
}

// EventStore appends and queries the immutable agent event log.
//
// Get is named GetEvent rather than Get: Driver aggregates this interface
// alongside MemoryStore, DelegationStore, CheckpointStore, and
// ProfileStore, each of which also fetches a single entity by id, and Go
// forbids embedding interfaces whose methods share a name but differ in
// signature. Every entity-fetch method across these seven interfaces is
// named GetX except MemoryStore's, which keeps the bare Get as the
// engine's most frequently called lookup.
type EventStore interface {
	Append(ctx context.Context, e *types.AgentEvent) error
	GetEvent(ctx context.Context, id string) (*types.AgentEvent, error)
	// ListByThread returns events for a thread ordered by logical_clock ascending.
	ListByThread(ctx context.Context, thread string, since int64, limit int) ([]*types.AgentEvent, error)
	// Children returns events whose ParentEventID is the given id, for DAG walks.
	Children(ctx context.Context, parentEventID string) ([]*types.AgentEvent, error)
	// LastForAgent returns the most recently appended event for an agent's
	// chain, or nil if the agent has none yet.
	LastForAgent(ctx context.Context, agent string) (*types.AgentEvent, error)
	// ForAgentAndType returns an agent's events of one type in logical-clock
	// order, bounded by limit. Used by integrity verification to locate the
	// memory_delete events that explain hash-chain gaps left by hard deletes.
	ForAgentAndType(ctx context.Context, agent string, eventType types.EventType, limit int) ([]*types.AgentEvent, error)
}

// RelationStore manages typed edges between memories.
type RelationStore interface {
	Create(ctx context.Context, r *types.Relation) error
	Delete(ctx context.Context, id string) error
	ForSource(ctx context.Context, sourceID string) ([]*types.Relation, error)
	ForTarget(ctx context.Context, targetID string) ([]*types.Relation, error)
	// Neighbors returns distinct memory IDs reachable in one hop from id,
	// in either direction, optionally filtered to relationTypes.
	Neighbors(ctx context.Context, id string, relationTypes []string) ([]string, error)
}

// ACLStore manages explicit per-memory permission grants.
type ACLStore interface {
	Grant(ctx context.Context, e *types.ACLEntry) error
	Revoke(ctx context.Context, id string) error
	ForMemory(ctx context.Context, memoryID string) ([]*types.ACLEntry, error)
	ForPrincipal(ctx context.Context, principalType types.PrincipalType, principalID string) ([]*types.ACLEntry, error)
}

// DelegationStore manages transitive permission delegations. Create, Get,
// and Revoke carry an entity suffix for the same reason documented on
// EventStore: Driver aggregates this alongside stores whose Create/Get/
// Revoke would otherwise collide.
type DelegationStore interface {
	CreateDelegation(ctx context.Context, d *types.Delegation) error
	RevokeDelegation(ctx context.Context, id string, now time.Time) error
	GetDelegation(ctx context.Context, id string) (*types.Delegation, error)
	ForDelegate(ctx context.Context, delegateID string) ([]*types.Delegation, error)
	ForDelegator(ctx context.Context, delegatorID string) ([]*types.Delegation, error)
}

// CheckpointStore manages checkpoint/branch/merge timeline state. Create
// and Get carry an entity suffix for the same reason documented on
// EventStore.
type CheckpointStore interface {
	CreateCheckpoint(ctx context.Context, c *types.Checkpoint) error
	GetCheckpoint(ctx context.Context, id string) (*types.Checkpoint, error)
	// ForBranch returns checkpoints on a branch ordered oldest-first.
	ForBranch(ctx context.Context, thread, branch string) ([]*types.Checkpoint, error)
	// Branches lists distinct branch names known for a thread.
	Branches(ctx context.Context, thread string) ([]string, error)
	// Latest returns the most recent checkpoint on a branch, or nil.
	Latest(ctx context.Context, thread, branch string) (*types.Checkpoint, error)
}

// ProfileStore persists rolling per-agent behavioral profiles. Get carries
// an entity suffix for the same reason documented on EventStore.
type ProfileStore interface {
	GetProfile(ctx context.Context, agent string) (*types.AgentProfile, error)
	Save(ctx context.Context, p *types.AgentProfile) error
}

// Driver aggregates every storage sub-interface plus connection lifecycle
// and integrity verification. A concrete backend implements all of it; the
// engine depends only on the narrow interfaces it actually needs.
type Driver interface {
	MemoryStore
	EventStore
	RelationStore
	ACLStore
	DelegationStore
	CheckpointStore
	ProfileStore

	// VerifyMemoryChain walks an agent's content-hash chain and reports the
	// first broken link, if any.
	VerifyMemoryChain(ctx context.Context, agent string) (*ChainVerification, error)
	// VerifyEventChain walks an agent's event hash chain.
	VerifyEventChain(ctx context.Context, agent string) (*ChainVerification, error)

	// WithTx runs fn inside a single transaction, guaranteeing the
	// read-modify-write sequences the engine needs (e.g. append-then-link)
	// are atomic.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ChainVerification reports the outcome of a hash-chain walk.
type ChainVerification struct {
	Valid       bool
	RecordsSeen int
	BrokenAt    string // id of first record whose prev_hash does not match, if invalid
	Reason      string
	// ExpectedPrevHash is the prev_hash BrokenAt should have carried had the
	// chain been unbroken; it is reported in Reason. The hard-delete gap
	// check in engine/verify.go works from FoundPrevHash and
	// BrokenContentHash instead.
	ExpectedPrevHash string
	// FoundPrevHash is the prev_hash BrokenAt actually carried.
	FoundPrevHash string
	// BrokenContentHash is BrokenAt's own content_hash, needed to recompute
	// the link a hard-deleted predecessor would have produced.
	BrokenContentHash string
}
