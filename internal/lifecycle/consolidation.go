package lifecycle

import (
	"context"
	"time"

	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/hashchain"
	"github.com/scrypster/mnemo/pkg/merr"
	"github.com/scrypster/mnemo/pkg/types"
)

// Summarizer produces a single piece of summary text from a cluster of
// source memory contents. The core treats it as an injected function: it
// has no opinion on how the summary is produced (an LLM call, a template,
// string concatenation in a test), only on how the result is wired back
// into the memory graph.
type Summarizer func(parts []string) string

// ConsolidationConfig tunes the clustering pass.
type ConsolidationConfig struct {
	// Tau is the minimum tag-set Jaccard similarity for two memories to be
	// placed in the same cluster.
	Tau float64
	// Window bounds how far apart (by CreatedAt) two memories may be and
	// still cluster together.
	Window time.Duration
	// MinCluster is the minimum number of memories a cluster needs before
	// it is consolidated into a summary memory.
	MinCluster int
}

// DefaultConsolidationConfig returns the engine's default clustering
// parameters.
func DefaultConsolidationConfig() ConsolidationConfig {
	return ConsolidationConfig{Tau: 0.5, Window: 24 * time.Hour, MinCluster: 3}
}

// ConsolidationPassStats summarizes one RunConsolidationPass call.
type ConsolidationPassStats struct {
	ClustersFound   int
	MemoriesMerged  int
	SummariesCreated int
}

// RunConsolidationPass clusters an agent's active/pending memories by tag
// Jaccard similarity within a time window, and for each cluster meeting
// MinCluster, creates a new semantic memory summarizing the cluster via
// summarize, links it to every source with a derived_from relation, demotes
// the sources to consolidated state, and reduces their importance.
func RunConsolidationPass(ctx context.Context, store storage.MemoryStore, relations storage.RelationStore, agent string, cfg ConsolidationConfig, summarize Summarizer) (ConsolidationPassStats, error) {
	var stats ConsolidationPassStats

	page, err := store.List(ctx, storage.ListOptions{
		Agent: agent,
		State: types.ConsolidationActive,
		Limit: 200,
	})
	if err != nil {
		return stats, merr.Wrap(merr.Storage, "failed to list consolidation candidates", err)
	}
	pending, err := store.List(ctx, storage.ListOptions{
		Agent: agent,
		State: types.ConsolidationPending,
		Limit: 200,
	})
	if err != nil {
		return stats, merr.Wrap(merr.Storage, "failed to list pending consolidation candidates", err)
	}

	candidates := make([]*types.MemoryRecord, 0, len(page.Items)+len(pending.Items))
	for i := range page.Items {
		candidates = append(candidates, &page.Items[i])
	}
	for i := range pending.Items {
		candidates = append(candidates, &pending.Items[i])
	}

	clusters := clusterByTagJaccard(candidates, cfg.Tau, cfg.Window)
	now := time.Now()

	for _, cluster := range clusters {
		if len(cluster) < cfg.MinCluster {
			continue
		}
		stats.ClustersFound++

		parts := make([]string, len(cluster))
		maxImportance := 0.0
		tagSet := map[string]bool{}
		for i, m := range cluster {
			parts[i] = m.Content
			if m.Importance > maxImportance {
				maxImportance = m.Importance
			}
			for _, t := range m.Tags {
				tagSet[t] = true
			}
		}

		tags := make([]string, 0, len(tagSet))
		for t := range tagSet {
			tags = append(tags, t)
		}

		summary := &types.MemoryRecord{
			ID:                 types.NewID(),
			Agent:              agent,
			Content:            summarize(parts),
			MemoryType:         types.MemoryTypeSemantic,
			Scope:              cluster[0].Scope,
			Importance:         maxImportance,
			Tags:               tags,
			CreatedAt:          now,
			LastAccessed:       now,
			ConsolidationState: types.ConsolidationConsolidated,
			Version:            1,
			Provenance:         types.Provenance{CreatedBy: agent, SourceType: "consolidation"},
		}
		contentHash := hashchain.ContentHash(summary.Content, summary.Agent, summary.CreatedAt)
		summary.ContentHash = hashchain.Hex(contentHash)

		if err := store.Store(ctx, summary); err != nil {
			return stats, merr.Wrap(merr.Storage, "failed to store consolidated summary", err)
		}
		stats.SummariesCreated++

		for _, m := range cluster {
			rel := &types.Relation{
				ID:           types.NewID(),
				SourceID:     summary.ID,
				TargetID:     m.ID,
				RelationType: types.RelationDerivedFrom,
				Weight:       1.0,
				CreatedAt:    now,
			}
			if err := relations.Create(ctx, rel); err != nil {
				return stats, merr.Wrap(merr.Storage, "failed to link consolidated summary", err)
			}

			m.ConsolidationState = types.ConsolidationConsolidated
			m.Importance = types.ClampImportance(m.Importance * 0.5)
			if err := store.Update(ctx, m); err != nil {
				if err == storage.ErrConflict {
					// m changed since the cluster was read; leave it for the
					// next consolidation pass rather than clobber the write.
					continue
				}
				return stats, merr.Wrap(merr.Storage, "failed to demote consolidated source", err)
			}
			stats.MemoriesMerged++
		}
	}

	return stats, nil
}

// clusterByTagJaccard groups memories into clusters whose pairwise tag
// Jaccard similarity to the cluster's seed member is at least tau, and
// whose CreatedAt falls within window of the seed. This is a simple
// single-pass seeded clustering, not exact agglomerative clustering: good
// enough for the bounded corpora the lifecycle engine runs over, and cheap
// enough to run on every pass.
func clusterByTagJaccard(candidates []*types.MemoryRecord, tau float64, window time.Duration) [][]*types.MemoryRecord {
	used := make(map[string]bool, len(candidates))
	var clusters [][]*types.MemoryRecord

	for _, seed := range candidates {
		if used[seed.ID] {
			continue
		}
		cluster := []*types.MemoryRecord{seed}
		used[seed.ID] = true

		for _, other := range candidates {
			if used[other.ID] {
				continue
			}
			if absDuration(seed.CreatedAt.Sub(other.CreatedAt)) > window {
				continue
			}
			if tagJaccard(seed.Tags, other.Tags) >= tau {
				cluster = append(cluster, other)
				used[other.ID] = true
			}
		}

		clusters = append(clusters, cluster)
	}

	return clusters
}

func tagJaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[t] = true
	}
	setB := make(map[string]bool, len(b))
	for _, t := range b {
		setB[t] = true
	}

	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
