// Package lifecycle implements the cognitive-lifecycle subsystem: decay,
// consolidation, TTL expiry, and anomaly-driven quarantine.
package lifecycle

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/merr"
	"github.com/scrypster/mnemo/pkg/types"
)

// DecayThresholds bounds the importance values at which a memory
// transitions to archived or forgotten during a decay pass. One value
// applies to every memory a RunDecayPass call evaluates, whatever its
// agent; there is no per-agent override.
type DecayThresholds struct {
	ArchiveThreshold float64
	ForgetThreshold  float64
}

// DefaultDecayThresholds returns the engine's default archive/forget
// cutoffs, picked so a memory with near-default importance and no recent
// access ages out over the span of weeks rather than hours.
func DefaultDecayThresholds() DecayThresholds {
	return DecayThresholds{ArchiveThreshold: 0.2, ForgetThreshold: 0.05}
}

// EffectiveImportance computes I_eff for m as of now:
//
//	I_eff = I_base · exp(-decay_rate · hours_since_creation) + 0.05 · ln(1 + access_count)
//
// decay_rate defaults per memory_type when m.DecayRate is unset. The result
// is not clamped to [0,1]; the access-count term can push I_eff slightly
// above I_base for heavily accessed memories, which is intentional — access
// is evidence a memory still matters.
func EffectiveImportance(m *types.MemoryRecord, now time.Time) float64 {
	hours := now.Sub(m.CreatedAt).Hours()
	if hours < 0 {
		hours = 0
	}
	decayed := m.Importance * math.Exp(-m.EffectiveDecayRate()*hours)
	accessTerm := 0.05 * math.Log(1+float64(m.AccessCount))
	return decayed + accessTerm
}

// DecayPassStats summarizes the outcome of one RunDecayPass call.
type DecayPassStats struct {
	Evaluated int
	Archived  int
	Forgotten int
}

// RunDecayPass fetches up to batchSize memories eligible for decay
// evaluation (oldest-last-accessed first), recomputes I_eff for each,
// writes the new importance back, and transitions consolidation_state when
// a threshold is crossed. Each write is paced by limiter so a large corpus
// cannot monopolize storage I/O.
//
// One call processes one batch; a caller drives repeated batches on a
// ticker or by hand (cmd/mnemo-admin's decay subcommand runs one batch per
// invocation), which also gives memories whose
// state changed this round a chance to drop out of the next batch's
// candidate set.
func RunDecayPass(ctx context.Context, store storage.MemoryStore, thresholds DecayThresholds, batchSize int, limiter *rate.Limiter) (DecayPassStats, error) {
	var stats DecayPassStats
	now := time.Now()

	batch, err := store.ForDecay(ctx, batchSize)
	if err != nil {
		return stats, merr.Wrap(merr.Storage, "failed to fetch decay candidates", err)
	}

	for _, m := range batch {
		if err := limiter.Wait(ctx); err != nil {
			return stats, merr.Wrap(merr.Cancelled, "decay pass interrupted", err)
		}

		stats.Evaluated++
		ieff := EffectiveImportance(m, now)
		m.Importance = types.ClampImportance(ieff)

		next := nextDecayState(m.ConsolidationState, ieff, thresholds)
		if next != m.ConsolidationState && types.IsValidConsolidationTransition(m.ConsolidationState, next) {
			if err := store.UpdateConsolidationState(ctx, m.ID, next); err != nil {
				return stats, merr.Wrap(merr.Storage, fmt.Sprintf("failed to transition memory %s", m.ID), err)
			}
			if next == types.ConsolidationArchived {
				stats.Archived++
			} else if next == types.ConsolidationForgotten {
				stats.Forgotten++
			}
		}

		if err := store.Update(ctx, m); err != nil {
			if err == storage.ErrConflict {
				// Someone else wrote m since ForDecay read it; skip rather than
				// clobber, it will be re-evaluated on the next pass.
				continue
			}
			return stats, merr.Wrap(merr.Storage, fmt.Sprintf("failed to write back decay score for %s", m.ID), err)
		}
	}

	return stats, nil
}

// nextDecayState decides the consolidation_state transition implied by a
// freshly-computed I_eff, or returns cur unchanged if no threshold is
// crossed.
func nextDecayState(cur types.ConsolidationState, ieff float64, t DecayThresholds) types.ConsolidationState {
	if ieff < t.ForgetThreshold {
		return types.ConsolidationForgotten
	}
	if ieff < t.ArchiveThreshold {
		return types.ConsolidationArchived
	}
	return cur
}
