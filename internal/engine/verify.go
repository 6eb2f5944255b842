package engine

import (
	"context"

	"github.com/scrypster/mnemo/pkg/hashchain"
	"github.com/scrypster/mnemo/pkg/merr"
	"github.com/scrypster/mnemo/pkg/types"
)

// maxHardDeleteEventsScanned bounds how many memory_delete events a single
// verify call inspects while explaining a chain gap.
const maxHardDeleteEventsScanned = 100000

// VerifyRequest is the validated input to Verify.
type VerifyRequest struct {
	Agent  string
	Thread string // optional narrowing; empty means the agent's full chains
}

// VerifyResult reports the outcome of walking an agent's memory and event
// hash chains.
type VerifyResult struct {
	Valid            bool
	TotalMemory      int
	VerifiedMemory   int
	TotalEvent       int
	VerifiedEvent    int
	FirstBrokenAt    string
	ErrorMessage     string
	ExplainedGap     bool // true when FirstBrokenAt is a hard-delete gap, not tampering
	Status           string
}

// Verify walks an agent's memory and event hash chains, reporting the first
// genuine break. A break whose predecessor hash matches a recorded
// memory_delete event's content_hash is a gap left by an authorized
// hard_delete, not tampering, and is labeled as such rather than failing
// verification outright.
func (c *Coordinator) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	if req.Agent == "" {
		return nil, merr.New(merr.Validation, "agent_id is required")
	}

	memResult, err := c.store.VerifyMemoryChain(ctx, req.Agent)
	if err != nil {
		return nil, merr.Wrap(merr.Storage, "failed to verify memory chain", err)
	}
	eventResult, err := c.store.VerifyEventChain(ctx, req.Agent)
	if err != nil {
		return nil, merr.Wrap(merr.Storage, "failed to verify event chain", err)
	}

	result := &VerifyResult{
		Valid:          true,
		TotalMemory:    memResult.RecordsSeen,
		VerifiedMemory: memResult.RecordsSeen,
		TotalEvent:     eventResult.RecordsSeen,
		VerifiedEvent:  eventResult.RecordsSeen,
		Status:         StatusVerified,
	}

	if !eventResult.Valid {
		result.Valid = false
		result.FirstBrokenAt = eventResult.BrokenAt
		result.ErrorMessage = eventResult.Reason
		result.Status = StatusIntegrityViolated
		return result, nil
	}

	if !memResult.Valid {
		explained, err := c.gapExplainedByHardDelete(ctx, req.Agent, memResult.BrokenContentHash, memResult.FoundPrevHash)
		if err != nil {
			return nil, err
		}
		result.FirstBrokenAt = memResult.BrokenAt
		if explained {
			result.ExplainedGap = true
			// A gap left by an authorized hard_delete is not an integrity
			// violation; the chain is considered intact up to and including
			// the explained break.
			result.ErrorMessage = "gap explained by hard_delete: " + memResult.Reason
		} else {
			result.Valid = false
			result.ErrorMessage = memResult.Reason
			result.Status = StatusIntegrityViolated
		}
	}

	return result, nil
}

// gapExplainedByHardDelete reports whether some hard-deleted predecessor
// recorded in the agent's memory_delete events would, if still present,
// have linked to brokenContentHash and produced foundPrevHash — meaning the
// chain link was intentionally removed rather than tampered with.
func (c *Coordinator) gapExplainedByHardDelete(ctx context.Context, agent, brokenContentHash, foundPrevHash string) (bool, error) {
	broken, err := hashchain.Parse(brokenContentHash)
	if err != nil {
		return false, merr.Wrap(merr.Internal, "failed to parse broken record's content_hash", err)
	}

	events, err := c.store.ForAgentAndType(ctx, agent, types.EventMemoryDelete, maxHardDeleteEventsScanned)
	if err != nil {
		return false, merr.Wrap(merr.Storage, "failed to scan memory_delete events", err)
	}
	for _, e := range events {
		records, ok := e.Payload["hard_delete_records"].([]any)
		if !ok {
			continue
		}
		for _, r := range records {
			rec, ok := r.(map[string]any)
			if !ok {
				continue
			}
			hash, _ := rec["content_hash"].(string)
			if hash == "" {
				continue
			}
			candidate, err := hashchain.Parse(hash)
			if err != nil {
				continue
			}
			if hashchain.EqualHex(hashchain.Hex(hashchain.Link(broken, candidate)), foundPrevHash) {
				return true, nil
			}
		}
	}
	return false, nil
}
