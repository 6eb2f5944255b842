package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/scrypster/mnemo/internal/attribution"
	"github.com/scrypster/mnemo/internal/lifecycle"
	"github.com/scrypster/mnemo/pkg/hashchain"
	"github.com/scrypster/mnemo/pkg/merr"
	"github.com/scrypster/mnemo/pkg/types"
)

// RememberRequest is the validated input to Remember.
type RememberRequest struct {
	Content    string
	Agent      string
	Org        string
	Thread     string
	Branch     string // defaults to types.DefaultBranch; writes on one branch never affect recall on another
	MemoryType types.MemoryType
	Scope      types.Scope
	Importance *float64 // nil means use the 0.5 default
	Tags       []string
	Metadata   map[string]any
	TTLSeconds int64
	DecayRate  *float64
	RelatedTo  []string
	CreatedBy  string
	SourceType string
	SourceID   string
}

// RememberResult is the output of Remember.
type RememberResult struct {
	ID          string
	ContentHash string
	Status      string
	Quarantined bool
	Warnings    []string
	RelationErrors map[string]error
}

// Remember runs the ten-step write pipeline: validate, embed, encrypt,
// hash-chain link, persist, index, anomaly-score, profile-update,
// relate, and event-append.
func (c *Coordinator) Remember(ctx context.Context, req RememberRequest) (*RememberResult, error) {
	if req.Content == "" {
		return nil, merr.New(merr.Validation, "content must not be empty")
	}
	if !types.ValidIdentifier(req.Agent) {
		return nil, merr.New(merr.Validation, "agent_id is invalid")
	}
	if req.MemoryType == "" {
		req.MemoryType = types.MemoryTypeEpisodic
	}
	if !types.IsValidMemoryType(req.MemoryType) {
		return nil, merr.New(merr.Validation, fmt.Sprintf("unrecognized memory_type %q", req.MemoryType))
	}
	if req.Scope == "" {
		req.Scope = types.ScopePrivate
	}
	importance := 0.5
	if req.Importance != nil {
		importance = *req.Importance
	}
	if importance < 0 || importance > 1 {
		return nil, merr.New(merr.Validation, "importance must be in [0,1]")
	}

	embVec, err := c.embedder.Embed(ctx, req.Content)
	if err != nil {
		return nil, merr.Wrap(merr.Embedding, "failed to compute embedding", err)
	}

	plaintext := req.Content
	stored := plaintext
	if c.cipher != nil {
		ciphertext, err := c.cipher.Encrypt(ctx, []byte(plaintext))
		if err != nil {
			return nil, merr.Wrap(merr.Decryption, "failed to encrypt content", err)
		}
		stored = string(ciphertext)
	}

	now := time.Now().UTC()
	prevContentHash := hashchain.Zero
	latest, err := c.store.LatestForAgent(ctx, req.Agent)
	if err != nil {
		return nil, merr.Wrap(merr.Storage, "failed to read agent's latest memory", err)
	}
	if latest != nil {
		parsed, err := hashchain.Parse(latest.ContentHash)
		if err != nil {
			return nil, merr.Wrap(merr.Internal, "failed to parse predecessor content_hash", err)
		}
		prevContentHash = parsed
	}

	contentHash := hashchain.ContentHash(plaintext, req.Agent, now)
	prevMemHash := hashchain.Hex(hashchain.Link(contentHash, prevContentHash))

	branch := req.Branch
	if branch == "" {
		branch = types.DefaultBranch
	}

	m := &types.MemoryRecord{
		ID:                 types.NewID(),
		Agent:              req.Agent,
		Org:                req.Org,
		Thread:             req.Thread,
		Branch:             branch,
		Content:            stored,
		Embedding:          embVec,
		MemoryType:         req.MemoryType,
		Scope:              req.Scope,
		Importance:         types.ClampImportance(importance),
		Tags:               req.Tags,
		Metadata:           req.Metadata,
		CreatedAt:          now,
		LastAccessed:       now,
		AccessCount:        0,
		DecayRate:          req.DecayRate,
		ConsolidationState: types.ConsolidationActive,
		Provenance: types.Provenance{
			CreatedBy:  req.CreatedBy,
			SourceType: req.SourceType,
			SourceID:   req.SourceID,
		},
		Version:     1,
		ContentHash: hashchain.Hex(contentHash),
		PrevHash:    prevMemHash,
	}
	if m.Provenance.CreatedBy == "" {
		m.Provenance.CreatedBy = attribution.DetectCreator()
	}
	if req.TTLSeconds > 0 {
		exp := now.Add(time.Duration(req.TTLSeconds) * time.Second)
		m.ExpiresAt = &exp
	}

	if err := c.store.Store(ctx, m); err != nil {
		return nil, merr.Wrap(merr.Storage, "failed to persist memory", err)
	}

	result := &RememberResult{ID: m.ID, ContentHash: m.ContentHash, Status: StatusRemembered}

	// Index-add: both the vector and full-text indices in this build scan
	// storage fresh on every recall call rather than maintaining a
	// persistent add/remove structure, so there is no separate index
	// mutation to fail here. A backend with a persistent ANN/BM25 index
	// would add(id, embedding)/add(id, content) at this step and surface
	// IndexError on failure without rolling back the memory write already
	// committed above.

	profile, err := lifecycle.LoadOrNewProfile(ctx, c.store, req.Agent)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("failed to load agent profile: %v", err))
	} else {
		score := lifecycle.ScoreWrite(profile, plaintext, m.Importance)
		if c.cfg.AnomalyQuarantineEnabled && score.Quarantine() {
			if err := c.store.Quarantine(ctx, m.ID, "anomaly score "+fmt.Sprintf("%.2f", score.Total)+" exceeded threshold"); err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("failed to quarantine anomalous write: %v", err))
			} else {
				result.Quarantined = true
			}
		}
		if err := lifecycle.ObserveWrite(ctx, c.store, profile, m.Importance, len(plaintext), now); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("failed to update agent profile: %v", err))
		}
	}

	if len(req.RelatedTo) > 0 {
		result.RelationErrors = make(map[string]error)
		for _, targetID := range req.RelatedTo {
			rel := &types.Relation{
				ID:           types.NewID(),
				SourceID:     m.ID,
				TargetID:     targetID,
				RelationType: types.RelationRelatedTo,
				Weight:       1.0,
				CreatedAt:    now,
			}
			if _, err := c.store.Get(ctx, targetID); err != nil {
				result.RelationErrors[targetID] = merr.Wrap(merr.NotFound, "related_to target does not exist", err)
				continue
			}
			if err := c.store.Create(ctx, rel); err != nil {
				result.RelationErrors[targetID] = merr.Wrap(merr.Storage, "failed to create relation", err)
			}
		}
	}

	if err := c.appendEvent(ctx, req.Agent, req.Thread, types.EventMemoryWrite, map[string]any{
		"memory_id":    m.ID,
		"content_hash": m.ContentHash,
		"quarantined":  result.Quarantined,
	}); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("event append failed and must be retried by the caller: %v", err))
	}

	return result, nil
}

// appendEvent builds and appends one event in agent's hash chain,
// reading and linking prev_hash and the logical clock under the same
// per-agent serialization the memory chain relies on.
func (c *Coordinator) appendEvent(ctx context.Context, agent, thread string, eventType types.EventType, payload map[string]any) error {
	now := time.Now().UTC()
	clock, err := c.nextLogicalClock(ctx, agent)
	if err != nil {
		return err
	}
	prevContentHashHex, err := c.lastEventHash(ctx, agent)
	if err != nil {
		return err
	}
	prevContentHash, err := hashchain.Parse(prevContentHashHex)
	if err != nil {
		return merr.Wrap(merr.Internal, "failed to parse predecessor event content_hash", err)
	}

	contentHash := hashchain.ContentHash(fmt.Sprintf("%v", payload), agent, now)

	e := &types.AgentEvent{
		ID:           types.NewID(),
		Agent:        agent,
		Thread:       thread,
		EventType:    eventType,
		Payload:      payload,
		CreatedAt:    now,
		LogicalClock: clock,
		ContentHash:  hashchain.Hex(contentHash),
		PrevHash:     hashchain.Hex(hashchain.Link(contentHash, prevContentHash)),
	}
	if err := c.store.Append(ctx, e); err != nil {
		return merr.Wrap(merr.Storage, "failed to append event", err)
	}
	return nil
}
