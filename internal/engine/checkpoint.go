package engine

import (
	"context"
	"errors"
	"time"

	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/hashchain"
	"github.com/scrypster/mnemo/pkg/merr"
	"github.com/scrypster/mnemo/pkg/types"
)

// threadEventScanLimit bounds how many events a single thread's timeline
// scan reads when resolving event_cursor or a replay window. Threads with
// more history than this need a narrower replay request.
const threadEventScanLimit = 100000

// Merge strategy names.
const (
	MergeFull       = "full_merge"
	MergeCherryPick = "cherry_pick"
	MergeSquash     = "squash"
)

// CheckpointRequest is the validated input to Checkpoint.
type CheckpointRequest struct {
	Principal     string
	Thread        string
	Branch        string // defaults to types.DefaultBranch
	StateSnapshot map[string]any
	Label         string
}

// CheckpointResult is the output of Checkpoint.
type CheckpointResult struct {
	Checkpoint *types.Checkpoint
	Status     string
}

// Checkpoint snapshots the caller-provided state alongside the thread's
// current live memory set and event cursor, linking to the current head of
// (thread, branch).
func (c *Coordinator) Checkpoint(ctx context.Context, req CheckpointRequest) (*CheckpointResult, error) {
	if req.Thread == "" {
		return nil, merr.New(merr.Validation, "thread_id is required")
	}
	branch := req.Branch
	if branch == "" {
		branch = types.DefaultBranch
	}

	memRefs, err := c.liveMemoryRefs(ctx, req.Thread, branch)
	if err != nil {
		return nil, err
	}
	cursor, err := c.latestEventID(ctx, req.Thread)
	if err != nil {
		return nil, err
	}

	head, err := c.store.Latest(ctx, req.Thread, branch)
	if err != nil {
		return nil, merr.Wrap(merr.Storage, "failed to read branch head", err)
	}
	parentID := ""
	if head != nil {
		parentID = head.ID
	}

	cp := &types.Checkpoint{
		ID:            types.NewID(),
		ThreadID:      req.Thread,
		Agent:         req.Principal,
		ParentID:      parentID,
		BranchName:    branch,
		StateSnapshot: req.StateSnapshot,
		MemoryRefs:    memRefs,
		EventCursor:   cursor,
		Label:         req.Label,
		CreatedAt:     time.Now().UTC(),
	}
	if err := c.store.CreateCheckpoint(ctx, cp); err != nil {
		return nil, merr.Wrap(merr.Storage, "failed to create checkpoint", err)
	}

	_ = c.appendEvent(ctx, req.Principal, req.Thread, types.EventCheckpoint, map[string]any{
		"checkpoint_id": cp.ID, "branch": branch,
	})

	return &CheckpointResult{Checkpoint: cp, Status: StatusCheckpointed}, nil
}

// BranchRequest is the validated input to Branch.
type BranchRequest struct {
	Principal          string
	Thread             string
	NewBranch          string
	SourceBranch       string // defaults to types.DefaultBranch
	SourceCheckpointID string // takes precedence over SourceBranch when set
}

// BranchResult is the output of Branch.
type BranchResult struct {
	Checkpoint *types.Checkpoint
	Status     string
}

// Branch forks a new branch from a source checkpoint (explicit, or the head
// of source_branch, or the head of main), copying its snapshot and memory
// refs so new writes on the branch diverge cleanly.
func (c *Coordinator) Branch(ctx context.Context, req BranchRequest) (*BranchResult, error) {
	if req.Thread == "" || req.NewBranch == "" {
		return nil, merr.New(merr.Validation, "thread_id and new_branch_name are required")
	}

	source, err := c.resolveSourceCheckpoint(ctx, req.Thread, req.SourceBranch, req.SourceCheckpointID)
	if err != nil {
		return nil, err
	}

	cp := &types.Checkpoint{
		ID:            types.NewID(),
		ThreadID:      req.Thread,
		Agent:         req.Principal,
		ParentID:      source.ID,
		BranchName:    req.NewBranch,
		StateSnapshot: source.StateSnapshot,
		MemoryRefs:    append([]string(nil), source.MemoryRefs...),
		EventCursor:   source.EventCursor,
		CreatedAt:     time.Now().UTC(),
	}
	if err := c.store.CreateCheckpoint(ctx, cp); err != nil {
		return nil, merr.Wrap(merr.Storage, "failed to create branch checkpoint", err)
	}

	_ = c.appendEvent(ctx, req.Principal, req.Thread, types.EventBranch, map[string]any{
		"branch": req.NewBranch, "source_checkpoint_id": source.ID,
	})

	return &BranchResult{Checkpoint: cp, Status: StatusBranched}, nil
}

// resolveSourceCheckpoint implements the fallback chain: an explicit
// checkpoint id, else the head of sourceBranch, else the head of main.
func (c *Coordinator) resolveSourceCheckpoint(ctx context.Context, thread, sourceBranch, sourceCheckpointID string) (*types.Checkpoint, error) {
	if sourceCheckpointID != "" {
		cp, err := c.store.GetCheckpoint(ctx, sourceCheckpointID)
		if err != nil {
			return nil, merr.Wrap(merr.NotFound, "source checkpoint not found", err)
		}
		return cp, nil
	}
	branch := sourceBranch
	if branch == "" {
		branch = types.DefaultBranch
	}
	head, err := c.store.Latest(ctx, thread, branch)
	if err != nil {
		return nil, merr.Wrap(merr.Storage, "failed to read source branch head", err)
	}
	if head != nil {
		return head, nil
	}
	if branch != types.DefaultBranch {
		head, err = c.store.Latest(ctx, thread, types.DefaultBranch)
		if err != nil {
			return nil, merr.Wrap(merr.Storage, "failed to read main branch head", err)
		}
	}
	if head == nil {
		return nil, merr.New(merr.NotFound, "no source checkpoint exists for this thread")
	}
	return head, nil
}

// MergeRequest is the validated input to Merge.
type MergeRequest struct {
	Principal      string
	Thread         string
	SourceBranch   string
	TargetBranch   string // defaults to types.DefaultBranch
	Strategy       string
	CherryPickIDs  []string
	SquashContent  string // caller-supplied union content, used only by squash
}

// MergeResult is the output of Merge.
type MergeResult struct {
	Checkpoint     *types.Checkpoint
	IntroducedIDs  []string
	SquashMemoryID string
	Status         string
}

// Merge folds the memories introduced on source_branch since its divergence
// point into target_branch, according to strategy, and records a merge
// checkpoint whose lineage carries both parents.
func (c *Coordinator) Merge(ctx context.Context, req MergeRequest) (*MergeResult, error) {
	if req.Thread == "" || req.SourceBranch == "" {
		return nil, merr.New(merr.Validation, "thread_id and source_branch are required")
	}
	target := req.TargetBranch
	if target == "" {
		target = types.DefaultBranch
	}
	if !isValidMergeStrategy(req.Strategy) {
		return nil, merr.New(merr.Validation, "unrecognized merge strategy")
	}

	sourceHead, err := c.store.Latest(ctx, req.Thread, req.SourceBranch)
	if err != nil {
		return nil, merr.Wrap(merr.Storage, "failed to read source branch head", err)
	}
	if sourceHead == nil {
		return nil, merr.New(merr.NotFound, "source branch has no checkpoints")
	}
	targetHead, err := c.store.Latest(ctx, req.Thread, target)
	if err != nil {
		return nil, merr.Wrap(merr.Storage, "failed to read target branch head", err)
	}

	divergence, err := c.divergenceCheckpoint(ctx, req.Thread, req.SourceBranch)
	if err != nil {
		return nil, err
	}
	introduced := diffMemoryRefs(sourceHead.MemoryRefs, divergence)

	result := &MergeResult{Status: StatusMerged}
	mergedRefs := targetRefs(targetHead)

	switch req.Strategy {
	case MergeFull:
		result.IntroducedIDs = introduced
		mergedRefs = unionRefs(mergedRefs, introduced)

	case MergeCherryPick:
		picked := intersectRefs(introduced, req.CherryPickIDs)
		result.IntroducedIDs = picked
		mergedRefs = unionRefs(mergedRefs, picked)

	case MergeSquash:
		if req.SquashContent == "" {
			return nil, merr.New(merr.Validation, "squash_content is required for the squash strategy")
		}
		rr, err := c.Remember(ctx, RememberRequest{
			Content:    req.SquashContent,
			Agent:      req.Principal,
			Thread:     req.Thread,
			MemoryType: types.MemoryTypeSemantic,
			RelatedTo:  introduced,
		})
		if err != nil {
			return nil, merr.Wrap(merr.Storage, "failed to create squash memory", err)
		}
		result.SquashMemoryID = rr.ID
		mergedRefs = unionRefs(mergedRefs, []string{rr.ID})
	}

	parentID := ""
	if targetHead != nil {
		parentID = targetHead.ID
	}
	cp := &types.Checkpoint{
		ID:            types.NewID(),
		ThreadID:      req.Thread,
		Agent:         req.Principal,
		ParentID:      parentID,
		BranchName:    target,
		StateSnapshot: sourceHead.StateSnapshot,
		StateDiff:     map[string]any{"merged_from_checkpoint_id": sourceHead.ID, "merge_strategy": req.Strategy},
		MemoryRefs:    mergedRefs,
		EventCursor:   sourceHead.EventCursor,
		CreatedAt:     time.Now().UTC(),
	}
	if err := c.store.CreateCheckpoint(ctx, cp); err != nil {
		return nil, merr.Wrap(merr.Storage, "failed to create merge checkpoint", err)
	}
	result.Checkpoint = cp

	_ = c.appendEvent(ctx, req.Principal, req.Thread, types.EventMerge, map[string]any{
		"source_branch": req.SourceBranch, "target_branch": target, "strategy": req.Strategy,
		"merge_checkpoint_id": cp.ID, "source_checkpoint_id": sourceHead.ID,
	})

	return result, nil
}

func isValidMergeStrategy(s string) bool {
	switch s {
	case MergeFull, MergeCherryPick, MergeSquash:
		return true
	default:
		return false
	}
}

// divergenceCheckpoint walks the source branch's oldest checkpoint back to
// its parent, which sits on the branch it forked from; its memory_refs are
// the baseline the source branch diverged from.
func (c *Coordinator) divergenceCheckpoint(ctx context.Context, thread, sourceBranch string) (*types.Checkpoint, error) {
	chain, err := c.store.ForBranch(ctx, thread, sourceBranch)
	if err != nil {
		return nil, merr.Wrap(merr.Storage, "failed to read source branch history", err)
	}
	if len(chain) == 0 || chain[0].ParentID == "" {
		return nil, nil
	}
	parent, err := c.store.GetCheckpoint(ctx, chain[0].ParentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, merr.Wrap(merr.Storage, "failed to read divergence checkpoint", err)
	}
	return parent, nil
}

func targetRefs(head *types.Checkpoint) []string {
	if head == nil {
		return nil
	}
	return append([]string(nil), head.MemoryRefs...)
}

func diffMemoryRefs(sourceRefs []string, baseline *types.Checkpoint) []string {
	base := map[string]bool{}
	if baseline != nil {
		for _, id := range baseline.MemoryRefs {
			base[id] = true
		}
	}
	var out []string
	for _, id := range sourceRefs {
		if !base[id] {
			out = append(out, id)
		}
	}
	return out
}

func unionRefs(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range a {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range b {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func intersectRefs(a, allow []string) []string {
	want := map[string]bool{}
	for _, id := range allow {
		want[id] = true
	}
	var out []string
	for _, id := range a {
		if want[id] {
			out = append(out, id)
		}
	}
	return out
}

// ReplayRequest is the validated input to Replay.
type ReplayRequest struct {
	Thread       string
	CheckpointID string // empty means the latest checkpoint on Branch
	Branch       string // defaults to types.DefaultBranch
}

// ReplayMismatch records one memory whose stored content_hash did not match
// its recomputed hash during replay.
type ReplayMismatch struct {
	MemoryID string
	Reason   string
}

// ReplayResult is the output of Replay.
type ReplayResult struct {
	Checkpoint *types.Checkpoint
	Memories   []*types.MemoryRecord
	Events     []*types.AgentEvent
	Mismatches []ReplayMismatch
	Status     string
}

// Replay reconstructs a checkpoint's snapshot, its referenced memory set,
// and the event window up to its cursor, verifying each memory's content
// hash record-by-record and reporting any mismatch rather than eliding it.
func (c *Coordinator) Replay(ctx context.Context, req ReplayRequest) (*ReplayResult, error) {
	if req.Thread == "" {
		return nil, merr.New(merr.Validation, "thread_id is required")
	}
	branch := req.Branch
	if branch == "" {
		branch = types.DefaultBranch
	}

	var cp *types.Checkpoint
	var err error
	if req.CheckpointID != "" {
		cp, err = c.store.GetCheckpoint(ctx, req.CheckpointID)
		if err != nil {
			return nil, merr.Wrap(merr.NotFound, "checkpoint not found", err)
		}
	} else {
		cp, err = c.store.Latest(ctx, req.Thread, branch)
		if err != nil {
			return nil, merr.Wrap(merr.Storage, "failed to read branch head", err)
		}
		if cp == nil {
			return nil, merr.New(merr.NotFound, "no checkpoint exists for this thread/branch")
		}
	}

	result := &ReplayResult{Checkpoint: cp, Status: StatusReplayed}
	for _, id := range cp.MemoryRefs {
		m, err := c.store.Get(ctx, id)
		if err != nil {
			result.Mismatches = append(result.Mismatches, ReplayMismatch{MemoryID: id, Reason: "memory not found"})
			continue
		}
		if !verifyMemoryContentHash(m) {
			result.Mismatches = append(result.Mismatches, ReplayMismatch{MemoryID: id, Reason: "content_hash mismatch"})
		}
		result.Memories = append(result.Memories, m)
	}

	events, err := c.eventsUpToCursor(ctx, req.Thread, cp.EventCursor)
	if err != nil {
		return nil, err
	}
	result.Events = events

	return result, nil
}

// verifyMemoryContentHash recomputes a memory's content hash from its
// stored fields and compares it in constant time against the hash recorded
// at write time.
func verifyMemoryContentHash(m *types.MemoryRecord) bool {
	want := hashchain.Hex(hashchain.ContentHash(m.Content, m.Agent, m.CreatedAt))
	return hashchain.EqualHex(want, m.ContentHash)
}

// liveMemoryRefs lists every non-deleted, non-forgotten memory currently on
// a thread's branch, paging through storage until exhausted.
func (c *Coordinator) liveMemoryRefs(ctx context.Context, thread, branch string) ([]string, error) {
	var out []string
	page := 1
	for {
		res, err := c.store.List(ctx, storage.ListOptions{Thread: thread, Branch: branch, Page: page, Limit: 200})
		if err != nil {
			return nil, merr.Wrap(merr.Storage, "failed to list thread memories", err)
		}
		for _, m := range res.Items {
			if m.ConsolidationState == types.ConsolidationForgotten || m.DeletedAt != nil {
				continue
			}
			out = append(out, m.ID)
		}
		if !res.HasMore {
			break
		}
		page++
	}
	return out, nil
}

// latestEventID returns the id of the most recently appended event in a
// thread's timeline, or "" if the thread has none.
func (c *Coordinator) latestEventID(ctx context.Context, thread string) (string, error) {
	events, err := c.store.ListByThread(ctx, thread, -1, threadEventScanLimit)
	if err != nil {
		return "", merr.Wrap(merr.Storage, "failed to read thread event timeline", err)
	}
	if len(events) == 0 {
		return "", nil
	}
	return events[len(events)-1].ID, nil
}

// eventsUpToCursor returns every event in a thread's timeline up to and
// including the event named by cursor, ordered oldest-first.
func (c *Coordinator) eventsUpToCursor(ctx context.Context, thread, cursor string) ([]*types.AgentEvent, error) {
	if cursor == "" {
		return nil, nil
	}
	marker, err := c.store.GetEvent(ctx, cursor)
	if err != nil {
		return nil, merr.Wrap(merr.NotFound, "event_cursor does not reference a known event", err)
	}
	all, err := c.store.ListByThread(ctx, thread, -1, threadEventScanLimit)
	if err != nil {
		return nil, merr.Wrap(merr.Storage, "failed to read thread event timeline", err)
	}
	var out []*types.AgentEvent
	for _, e := range all {
		if e.LogicalClock > marker.LogicalClock {
			break
		}
		out = append(out, e)
	}
	return out, nil
}
