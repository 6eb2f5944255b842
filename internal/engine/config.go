// Package engine implements the Query Coordinator: the eight memory
// operations (remember, recall, forget, share, checkpoint, branch, merge,
// replay) plus verify, delegate, and causal trace, orchestrating storage,
// indices, embedding, cipher, authorization, and lifecycle underneath.
package engine

import (
	"fmt"
	"time"

	"github.com/scrypster/mnemo/internal/lifecycle"
)

// Config holds every tunable threshold and default the coordinator needs,
// kept as plain fields on one struct rather than scattered constants so an
// operator can load it from one config file.
type Config struct {
	// RecallDefaultLimit/RecallMaxLimit bound the limit param on recall.
	RecallDefaultLimit int
	RecallMaxLimit     int

	// RRFK is the k constant in Reciprocal Rank Fusion.
	RRFK int

	// RecencyHalfLife is the half-life used to score the recency list in
	// hybrid/auto recall.
	RecencyHalfLife time.Duration

	// OversampleStart/OversampleCeiling bound permission-safe ANN
	// oversampling when the vector backend cannot filter natively.
	OversampleStart   int
	OversampleCeiling int

	// DecayThresholds/DecayBatchSize/ConsolidationConfig parameterize the
	// lifecycle engine's background passes.
	DecayThresholds      lifecycle.DecayThresholds
	DecayBatchSize       int
	ConsolidationConfig  lifecycle.ConsolidationConfig

	// AnomalyQuarantineEnabled toggles inline quarantine on remember; tests
	// that want deterministic writes without quarantine noise disable it.
	AnomalyQuarantineEnabled bool

	// GraphBounds caps the graph recall strategy's traversal.
	GraphMaxHops  int
	GraphMaxNodes int

	// EvidenceWeightedFloor is the base value each side's evidence_weighted
	// score starts from in conflict resolution; supporters are not filtered
	// by it.
	EvidenceWeightedFloor float64
}

// DefaultConfig returns the coordinator's default tuning.
func DefaultConfig() Config {
	return Config{
		RecallDefaultLimit:       10,
		RecallMaxLimit:           100,
		RRFK:                     60,
		RecencyHalfLife:          168 * time.Hour,
		OversampleStart:          3,
		OversampleCeiling:        32,
		DecayThresholds:          lifecycle.DefaultDecayThresholds(),
		DecayBatchSize:           200,
		ConsolidationConfig:      lifecycle.DefaultConsolidationConfig(),
		AnomalyQuarantineEnabled: true,
		GraphMaxHops:             2,
		GraphMaxNodes:            50,
		EvidenceWeightedFloor:    0.0,
	}
}

// Validate checks the config for internally-consistent values.
func (c *Config) Validate() error {
	if c.RecallDefaultLimit < 1 {
		return fmt.Errorf("RecallDefaultLimit must be >= 1, got %d", c.RecallDefaultLimit)
	}
	if c.RecallMaxLimit < c.RecallDefaultLimit {
		return fmt.Errorf("RecallMaxLimit must be >= RecallDefaultLimit, got %d", c.RecallMaxLimit)
	}
	if c.RRFK < 1 {
		return fmt.Errorf("RRFK must be >= 1, got %d", c.RRFK)
	}
	if c.OversampleStart < 1 {
		return fmt.Errorf("OversampleStart must be >= 1, got %d", c.OversampleStart)
	}
	if c.OversampleCeiling < c.OversampleStart {
		return fmt.Errorf("OversampleCeiling must be >= OversampleStart, got %d", c.OversampleCeiling)
	}
	if c.GraphMaxHops < 1 {
		return fmt.Errorf("GraphMaxHops must be >= 1, got %d", c.GraphMaxHops)
	}
	return nil
}
