package engine

import (
	"context"
	"time"

	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/merr"
	"github.com/scrypster/mnemo/pkg/types"
)

// Conflict resolution policy names.
const (
	ConflictNewestWins       = "newest_wins"
	ConflictHighestImportance = "highest_importance"
	ConflictEvidenceWeighted = "evidence_weighted"
	ConflictManual           = "manual"
)

// ContradictionPredicate lets a caller supply domain-specific contradiction
// detection beyond relation_type = "contradicts"; nil disables it.
type ContradictionPredicate func(a, b *types.MemoryRecord) bool

// ResolveConflictRequest is the validated input to ResolveConflict.
type ResolveConflictRequest struct {
	Principal  string
	MemoryAID  string
	MemoryBID  string
	Policy     string
	WinnerID   string // required, and must be MemoryAID or MemoryBID, when Policy is manual
	Predicate  ContradictionPredicate
}

// ResolveConflictResult is the output of ResolveConflict.
type ResolveConflictResult struct {
	WinnerID string
	LoserID  string
	Relation *types.Relation
	Status   string
}

// ResolveConflict adjudicates a contradiction between two memories without
// deleting the loser: it adds a resolved_by relation from loser to winner
// and demotes the loser's importance.
func (c *Coordinator) ResolveConflict(ctx context.Context, req ResolveConflictRequest) (*ResolveConflictResult, error) {
	if req.MemoryAID == "" || req.MemoryBID == "" {
		return nil, merr.New(merr.Validation, "memory_a_id and memory_b_id are required")
	}
	if !isValidConflictPolicy(req.Policy) {
		return nil, merr.New(merr.Validation, "unrecognized conflict policy")
	}

	a, err := c.store.Get(ctx, req.MemoryAID)
	if err != nil {
		return nil, merr.Wrap(merr.NotFound, "memory_a not found", err)
	}
	b, err := c.store.Get(ctx, req.MemoryBID)
	if err != nil {
		return nil, merr.Wrap(merr.NotFound, "memory_b not found", err)
	}

	if !c.contradicts(ctx, a, b, req.Predicate) {
		return nil, merr.New(merr.Validation, "memories do not contradict")
	}

	winner, loser, err := c.pickWinner(ctx, a, b, req)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rel := &types.Relation{
		ID:           types.NewID(),
		SourceID:     loser.ID,
		TargetID:     winner.ID,
		RelationType: types.RelationResolvedBy,
		Weight:       1.0,
		CreatedAt:    now,
	}
	if err := c.store.Create(ctx, rel); err != nil {
		return nil, merr.Wrap(merr.Storage, "failed to record resolution relation", err)
	}

	for attempt := 0; ; attempt++ {
		loser.Importance = types.ClampImportance(loser.Importance * 0.5)
		err := c.store.Update(ctx, loser)
		if err == nil {
			break
		}
		if err != storage.ErrConflict {
			return nil, merr.Wrap(merr.Storage, "failed to demote loser importance", err)
		}
		if attempt >= maxUpdateConflictRetries {
			return nil, merr.Wrap(merr.Conflict, "loser demotion lost to a concurrent writer, retries exhausted", err)
		}
		loser, err = c.store.Get(ctx, loser.ID)
		if err != nil {
			return nil, merr.Wrap(merr.NotFound, "loser disappeared mid-resolution", err)
		}
	}

	return &ResolveConflictResult{WinnerID: winner.ID, LoserID: loser.ID, Relation: rel, Status: StatusVerified}, nil
}

func isValidConflictPolicy(p string) bool {
	switch p {
	case ConflictNewestWins, ConflictHighestImportance, ConflictEvidenceWeighted, ConflictManual:
		return true
	default:
		return false
	}
}

// contradicts reports whether a and b are in conflict, either by an
// explicit "contradicts" relation between them or by the caller's injected
// predicate.
func (c *Coordinator) contradicts(ctx context.Context, a, b *types.MemoryRecord, predicate ContradictionPredicate) bool {
	if predicate != nil && predicate(a, b) {
		return true
	}
	rels, err := c.store.ForSource(ctx, a.ID)
	if err != nil {
		return false
	}
	for _, r := range rels {
		if r.TargetID == b.ID && r.RelationType == types.RelationContradicts {
			return true
		}
	}
	rels, err = c.store.ForSource(ctx, b.ID)
	if err != nil {
		return false
	}
	for _, r := range rels {
		if r.TargetID == a.ID && r.RelationType == types.RelationContradicts {
			return true
		}
	}
	return false
}

func (c *Coordinator) pickWinner(ctx context.Context, a, b *types.MemoryRecord, req ResolveConflictRequest) (winner, loser *types.MemoryRecord, err error) {
	switch req.Policy {
	case ConflictNewestWins:
		if a.CreatedAt.After(b.CreatedAt) {
			return a, b, nil
		}
		return b, a, nil

	case ConflictHighestImportance:
		if a.Importance >= b.Importance {
			return a, b, nil
		}
		return b, a, nil

	case ConflictEvidenceWeighted:
		scoreA, err := c.evidenceScore(ctx, a.ID)
		if err != nil {
			return nil, nil, err
		}
		scoreB, err := c.evidenceScore(ctx, b.ID)
		if err != nil {
			return nil, nil, err
		}
		if scoreA >= scoreB {
			return a, b, nil
		}
		return b, a, nil

	case ConflictManual:
		if req.WinnerID == a.ID {
			return a, b, nil
		}
		if req.WinnerID == b.ID {
			return b, a, nil
		}
		return nil, nil, merr.New(merr.Validation, "winner_id must name one of the two conflicting memories")

	default:
		return nil, nil, merr.New(merr.Validation, "unrecognized conflict policy")
	}
}

// evidenceScore sums the importance of every memory that supports id via a
// "supports" relation, starting from EvidenceWeightedFloor so an
// unsupported memory scores the floor; id's own importance is not counted.
func (c *Coordinator) evidenceScore(ctx context.Context, id string) (float64, error) {
	rels, err := c.store.ForTarget(ctx, id)
	if err != nil {
		return 0, merr.Wrap(merr.Storage, "failed to load supporting relations", err)
	}
	total := c.cfg.EvidenceWeightedFloor
	for _, r := range rels {
		if r.RelationType != types.RelationSupports {
			continue
		}
		m, err := c.store.Get(ctx, r.SourceID)
		if err != nil {
			continue
		}
		total += m.Importance
	}
	return total, nil
}
