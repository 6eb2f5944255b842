// Package vector implements semantic recall by brute-force cosine
// similarity over embeddings already resident in memory. ANN/HNSW
// libraries give sublinear lookup at the cost of approximate recall; for
// the memory volumes a single agent session produces, an exact O(n) scan
// is both simpler and correct, so it is hand-rolled here rather than
// pulled in from a vector-index library.
package vector

import (
	"math"
	"sort"

	"github.com/scrypster/mnemo/pkg/types"
)

// Scored pairs a memory with its similarity to the query vector.
type Scored struct {
	Memory *types.MemoryRecord
	Score  float64
}

// Search ranks candidates by cosine similarity to query, descending, and
// returns at most limit results. Candidates with no embedding or a
// dimension mismatch are skipped rather than erroring, since a partially
// embedded corpus is expected during backfill.
func Search(query []float32, candidates []*types.MemoryRecord, limit int) []Scored {
	if len(query) == 0 {
		return nil
	}

	scored := make([]Scored, 0, len(candidates))
	for _, m := range candidates {
		if len(m.Embedding) != len(query) {
			continue
		}
		sim := CosineSimilarity(query, m.Embedding)
		scored = append(scored, Scored{Memory: m, Score: sim})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. Returns 0 if either vector has zero magnitude.
func CosineSimilarity(a, b []float32) float64 {
	var dot, magA, magB float64
	for i := range a {
		da, db := float64(a[i]), float64(b[i])
		dot += da * db
		magA += da * da
		magB += db * db
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
