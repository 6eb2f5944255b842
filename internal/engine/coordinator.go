package engine

import (
	"context"
	"fmt"

	"github.com/scrypster/mnemo/internal/authz"
	"github.com/scrypster/mnemo/internal/cipher"
	"github.com/scrypster/mnemo/internal/embedding"
	"github.com/scrypster/mnemo/internal/lifecycle"
	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/hashchain"
	"github.com/scrypster/mnemo/pkg/merr"
)

// Summarizer aliases the lifecycle package's consolidation summarizer so
// callers wiring a Coordinator never need to import internal/lifecycle
// themselves just to name the function type.
type Summarizer = lifecycle.Summarizer

// Status strings returned on every operation response, per the wire
// contract every frontend must preserve verbatim.
const (
	StatusRemembered        = "remembered"
	StatusRecalled          = "recalled"
	StatusForgotten         = "forgotten"
	StatusShared            = "shared"
	StatusCheckpointed      = "checkpointed"
	StatusBranched          = "branched"
	StatusMerged            = "merged"
	StatusReplayed          = "replayed"
	StatusVerified          = "verified"
	StatusIntegrityViolated = "integrity_violation"
	StatusDelegated         = "delegated"
)

// Coordinator is the Query Coordinator: it holds every capability
// interface the eight memory operations need and exposes them as thin,
// validated methods. No operation reaches past these fields directly into
// a concrete backend; swapping storage, embedding, or cipher backends
// never touches this file.
type Coordinator struct {
	store      storage.Driver
	embedder   embedding.Provider
	cipher     cipher.Cipher // nil disables at-rest encryption
	authz      *authz.Authorizer
	cfg        Config
	summarize  Summarizer
}

// New builds a Coordinator. cipher may be nil to disable at-rest
// encryption; summarize may be nil, in which case consolidation passes are
// skipped rather than panicking on a nil function value.
func New(store storage.Driver, embedder embedding.Provider, ciph cipher.Cipher, az *authz.Authorizer, cfg Config, summarize Summarizer) (*Coordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("engine: storage driver is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("engine: embedding provider is required")
	}
	if az == nil {
		return nil, fmt.Errorf("engine: authorizer is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid config: %w", err)
	}
	return &Coordinator{
		store:     store,
		embedder:  embedder,
		cipher:    ciph,
		authz:     az,
		cfg:       cfg,
		summarize: summarize,
	}, nil
}

// nextLogicalClock returns the next Lamport clock value for agent's event
// chain: one past the last appended event, or 0 if the agent has none yet.
func (c *Coordinator) nextLogicalClock(ctx context.Context, agent string) (int64, error) {
	last, err := c.store.LastForAgent(ctx, agent)
	if err != nil {
		return 0, merr.Wrap(merr.Storage, "failed to read agent's last event", err)
	}
	if last == nil {
		return 0, nil
	}
	return last.LogicalClock + 1, nil
}

// lastEventHash returns the prev_hash a new event for agent should chain
// from: the last event's content_hash, or the zero hex sentinel if agent
// has no events yet.
func (c *Coordinator) lastEventHash(ctx context.Context, agent string) (string, error) {
	last, err := c.store.LastForAgent(ctx, agent)
	if err != nil {
		return "", merr.Wrap(merr.Storage, "failed to read agent's last event", err)
	}
	if last == nil {
		return hashchain.ZeroHex, nil
	}
	return last.ContentHash, nil
}
