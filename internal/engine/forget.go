package engine

import (
	"context"
	"time"

	"github.com/scrypster/mnemo/internal/lifecycle"
	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/merr"
	"github.com/scrypster/mnemo/pkg/types"
)

// Forget strategy names.
const (
	ForgetSoftDelete  = "soft_delete"
	ForgetHardDelete  = "hard_delete"
	ForgetDecay       = "decay"
	ForgetConsolidate = "consolidate"
	ForgetArchive     = "archive"
)

// maxUpdateConflictRetries bounds how many times a version-guarded Update is
// retried after losing an optimistic-concurrency race before giving up.
const maxUpdateConflictRetries = 3

// ForgetCriteria selects targets by predicate when MemoryIDs is empty.
type ForgetCriteria struct {
	MaxAgeHours       float64
	MinImportanceBelow float64
	MemoryType        types.MemoryType
	Tags              []string
}

// ForgetRequest is the validated input to Forget.
type ForgetRequest struct {
	Principal string
	Agent     string // used only for criteria-based selection scope
	MemoryIDs []string
	Strategy  string
	Criteria  ForgetCriteria
}

// ForgetResult is the output of Forget.
type ForgetResult struct {
	Forgotten []string
	Errors    map[string]error
	Status    string
}

// Forget applies strategy to each selected memory, requiring Delete
// permission (Admin for hard_delete) on every target.
func (c *Coordinator) Forget(ctx context.Context, req ForgetRequest) (*ForgetResult, error) {
	if !isValidForgetStrategy(req.Strategy) {
		return nil, merr.New(merr.Validation, "unrecognized forget strategy")
	}

	targets, err := c.selectForgetTargets(ctx, req)
	if err != nil {
		return nil, err
	}

	required := types.PermissionDelete
	if req.Strategy == ForgetHardDelete {
		required = types.PermissionAdmin
	}

	result := &ForgetResult{Errors: make(map[string]error), Status: StatusForgotten}
	now := time.Now().UTC()
	var hardDeleteRecords []map[string]any

	for _, id := range targets {
		if err := c.authz.Check(ctx, req.Principal, id, required); err != nil {
			result.Errors[id] = err
			continue
		}
		contentHash, err := c.applyForgetStrategy(ctx, id, req.Strategy, now)
		if err != nil {
			result.Errors[id] = err
			continue
		}
		if req.Strategy == ForgetHardDelete {
			hardDeleteRecords = append(hardDeleteRecords, map[string]any{"id": id, "content_hash": contentHash})
		}
		result.Forgotten = append(result.Forgotten, id)
	}

	agentForEvent := req.Agent
	if agentForEvent == "" {
		agentForEvent = req.Principal
	}
	payload := map[string]any{"strategy": req.Strategy, "ids": result.Forgotten}
	if len(hardDeleteRecords) > 0 {
		payload["hard_delete_records"] = hardDeleteRecords
	}
	_ = c.appendEvent(ctx, agentForEvent, "", types.EventMemoryDelete, payload)

	return result, nil
}

func isValidForgetStrategy(s string) bool {
	switch s {
	case ForgetSoftDelete, ForgetHardDelete, ForgetDecay, ForgetConsolidate, ForgetArchive:
		return true
	default:
		return false
	}
}

func (c *Coordinator) selectForgetTargets(ctx context.Context, req ForgetRequest) ([]string, error) {
	if len(req.MemoryIDs) > 0 {
		return req.MemoryIDs, nil
	}

	opts := storage.ListOptions{
		Agent:      req.Agent,
		MemoryType: string(req.Criteria.MemoryType),
		Tags:       req.Criteria.Tags,
		Limit:      200,
	}
	if req.Criteria.MaxAgeHours > 0 {
		opts.CreatedBefore = time.Now().UTC().Add(-time.Duration(req.Criteria.MaxAgeHours) * time.Hour)
	}
	page, err := c.store.List(ctx, opts)
	if err != nil {
		return nil, merr.Wrap(merr.Storage, "failed to select forget targets by criteria", err)
	}

	var ids []string
	for _, m := range page.Items {
		if req.Criteria.MinImportanceBelow > 0 && m.Importance >= req.Criteria.MinImportanceBelow {
			continue
		}
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// applyForgetStrategy applies one strategy to a single memory. The returned
// string carries the memory's content_hash only for hard_delete, captured
// before the row is erased so the caller can record it on the memory_delete
// event — the only remaining evidence that explains the gap a later
// integrity verification will see in the hash chain.
func (c *Coordinator) applyForgetStrategy(ctx context.Context, id string, strategy string, now time.Time) (string, error) {
	switch strategy {
	case ForgetSoftDelete:
		if err := c.store.SoftDelete(ctx, id, now); err != nil {
			return "", merr.Wrap(merr.Storage, "soft delete failed", err)
		}
		return "", nil

	case ForgetHardDelete:
		m, err := c.store.Get(ctx, id)
		if err != nil {
			return "", merr.Wrap(merr.NotFound, "memory not found", err)
		}
		if err := c.store.HardDelete(ctx, id); err != nil {
			return "", merr.Wrap(merr.Storage, "hard delete failed", err)
		}
		return m.ContentHash, nil

	case ForgetDecay:
		for attempt := 0; ; attempt++ {
			m, err := c.store.Get(ctx, id)
			if err != nil {
				return "", merr.Wrap(merr.NotFound, "memory not found", err)
			}
			ieff := lifecycle.EffectiveImportance(m, now)
			m.Importance = types.ClampImportance(ieff)
			err = c.store.Update(ctx, m)
			if err == nil {
				return "", nil
			}
			if err == storage.ErrConflict {
				if attempt < maxUpdateConflictRetries {
					continue
				}
				return "", merr.Wrap(merr.Conflict, "decay step lost to a concurrent writer, retries exhausted", err)
			}
			return "", merr.Wrap(merr.Storage, "decay step failed", err)
		}

	case ForgetConsolidate:
		if !types.IsValidConsolidationTransition(mustState(ctx, c, id), types.ConsolidationPending) {
			return "", merr.New(merr.Conflict, "invalid consolidation transition to pending")
		}
		if err := c.store.UpdateConsolidationState(ctx, id, types.ConsolidationPending); err != nil {
			return "", merr.Wrap(merr.Storage, "consolidate transition failed", err)
		}
		return "", nil

	case ForgetArchive:
		if !types.IsValidConsolidationTransition(mustState(ctx, c, id), types.ConsolidationArchived) {
			return "", merr.New(merr.Conflict, "invalid consolidation transition to archived")
		}
		if err := c.store.UpdateConsolidationState(ctx, id, types.ConsolidationArchived); err != nil {
			return "", merr.Wrap(merr.Storage, "archive transition failed", err)
		}
		return "", nil

	default:
		return "", merr.New(merr.Validation, "unrecognized forget strategy")
	}
}

// mustState fetches a memory's current consolidation state for a
// transition check; a lookup failure yields a state with no valid
// transitions so the caller's guard reports Conflict rather than
// panicking on a nil record.
func mustState(ctx context.Context, c *Coordinator, id string) types.ConsolidationState {
	m, err := c.store.Get(ctx, id)
	if err != nil {
		return types.ConsolidationForgotten
	}
	return m.ConsolidationState
}
