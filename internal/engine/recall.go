package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/scrypster/mnemo/internal/index/fulltext"
	"github.com/scrypster/mnemo/internal/index/vector"
	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/merr"
	"github.com/scrypster/mnemo/pkg/types"
)

// Recall strategy names.
const (
	StrategyExact    = "exact"
	StrategySemantic = "semantic"
	StrategyLexical  = "lexical"
	StrategyGraph    = "graph"
	StrategyHybrid   = "hybrid"
	StrategyAuto     = "auto"
)

// RecallRequest is the validated input to Recall.
type RecallRequest struct {
	Principal string // the caller whose permissions gate every returned id

	Query string
	Agent string
	Org   string
	Thread string
	// Branch narrows Thread to memories written on one branch. Empty means
	// every branch of Thread is candidate; pass types.DefaultBranch
	// explicitly to see only trunk history.
	Branch string

	MemoryTypes   []types.MemoryType
	Scope         types.Scope
	MinImportance float64
	Tags          []string
	CreatedAfter  time.Time
	CreatedBefore time.Time

	Strategy string
	Limit    int
	AsOf     *time.Time

	ListWeights map[string]float64 // per-list RRF weight override; nil means equal weights of 1.0
}

// RecallItem is one ranked memory returned by Recall.
type RecallItem struct {
	ID               string
	Agent            string
	Content          string
	DecryptionFailed bool
	MemoryType       types.MemoryType
	Scope            types.Scope
	Importance       float64
	Tags             []string
	Score            float64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RecallResult is the output of Recall.
type RecallResult struct {
	Items       []RecallItem
	Status      string
	CeilingHit  bool // oversampling hit its configurable ceiling before filling limit
	PoolSize    int  // candidates considered before ranking
}

// Recall dispatches to the requested strategy, fuses results where the
// strategy calls for it, and applies access-count/last-accessed side
// effects plus the retrieval event pair on the returned set.
func (c *Coordinator) Recall(ctx context.Context, req RecallRequest) (*RecallResult, error) {
	if req.Query == "" && req.Strategy != StrategyExact {
		return nil, merr.New(merr.Validation, "query must not be empty")
	}
	if !types.ValidIdentifier(req.Principal) {
		return nil, merr.New(merr.Validation, "principal is invalid")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = c.cfg.RecallDefaultLimit
	}
	if limit > c.cfg.RecallMaxLimit {
		limit = c.cfg.RecallMaxLimit
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = StrategyAuto
	}
	if strategy == StrategyAuto {
		if req.Query == "" {
			strategy = StrategyExact
		} else {
			strategy = StrategyHybrid
		}
	}

	now := time.Now().UTC()
	asOf := now
	if req.AsOf != nil {
		asOf = *req.AsOf
	}

	filter := storage.RecallFilter{
		Agent:         req.Agent,
		Org:           req.Org,
		Thread:        req.Thread,
		Branch:        req.Branch,
		MemoryTypes:   req.MemoryTypes,
		Tags:          req.Tags,
		CreatedAfter:  req.CreatedAfter,
		CreatedBefore: req.CreatedBefore,
		Now:           asOf,
	}

	pool, ceilingHit, err := c.oversampleCandidates(ctx, req.Principal, filter, limit)
	if err != nil {
		return nil, merr.Wrap(merr.Storage, "failed to gather recall candidates", err)
	}
	pool = filterByImportanceAndScope(pool, req.MinImportance, req.Scope)

	var ranked []RecallItem
	switch strategy {
	case StrategyExact:
		ranked = rankExact(pool, limit)
	case StrategySemantic:
		ranked, err = c.rankSemantic(ctx, req.Query, pool, limit)
	case StrategyLexical:
		ranked = rankLexical(req.Query, pool, limit)
	case StrategyGraph:
		ranked, err = c.rankGraph(ctx, req.Principal, req.Query, pool, limit)
	case StrategyHybrid:
		ranked, err = c.rankHybrid(ctx, req.Principal, req.Query, pool, limit, req.ListWeights)
	default:
		return nil, merr.New(merr.Validation, fmt.Sprintf("unrecognized recall strategy %q", strategy))
	}
	if err != nil {
		return nil, err
	}

	for i := range ranked {
		item := &ranked[i]
		if c.cipher != nil {
			plaintext, derr := c.cipher.Decrypt(ctx, []byte(item.Content))
			if derr != nil {
				item.DecryptionFailed = true
				item.Content = ""
			} else {
				item.Content = string(plaintext)
			}
		}
		if err := c.store.IncrementAccess(ctx, item.ID, now); err != nil {
			// Best-effort: a failed access bump must not fail the whole recall.
			continue
		}
	}

	if err := c.appendEvent(ctx, req.Principal, req.Thread, types.EventRetrievalQuery, map[string]any{
		"query": req.Query, "strategy": strategy, "limit": limit,
	}); err != nil {
		// An event-append failure on the query/result pair does not abort
		// the read path; it is not reported in the result either.
	}
	resultIDs := make([]string, len(ranked))
	for i, item := range ranked {
		resultIDs[i] = item.ID
	}
	_ = c.appendEvent(ctx, req.Principal, req.Thread, types.EventRetrievalResult, map[string]any{
		"result_ids": resultIDs, "count": len(ranked),
	})

	return &RecallResult{Items: ranked, Status: StatusRecalled, CeilingHit: ceilingHit, PoolSize: len(pool)}, nil
}

// oversampleCandidates fetches the recall candidate pool, iteratively
// widening the query starting at OversampleStart*limit and doubling until
// enough principal-accessible results are collected or OversampleCeiling
// is reached, per the permission-safe ANN oversampling rule.
func (c *Coordinator) oversampleCandidates(ctx context.Context, principal string, filter storage.RecallFilter, limit int) ([]*types.MemoryRecord, bool, error) {
	n := c.cfg.OversampleStart * limit
	if n < limit {
		n = limit
	}
	ceiling := c.cfg.OversampleCeiling * limit

	for {
		candidatePool, err := c.store.ForRecall(ctx, filter, n)
		if err != nil {
			return nil, false, err
		}
		ids := make([]string, len(candidatePool))
		for i, m := range candidatePool {
			ids[i] = m.ID
		}
		allowed, err := c.authz.AccessibleIDs(ctx, principal, ids, types.PermissionRead)
		if err != nil {
			return nil, false, err
		}
		allowedSet := make(map[string]bool, len(allowed))
		for _, id := range allowed {
			allowedSet[id] = true
		}
		var permitted []*types.MemoryRecord
		for _, m := range candidatePool {
			if allowedSet[m.ID] {
				permitted = append(permitted, m)
			}
		}

		exhausted := len(candidatePool) < n
		atCeiling := n >= ceiling
		if len(permitted) >= limit || exhausted || atCeiling {
			return permitted, atCeiling && len(permitted) < limit, nil
		}
		n *= 2
		if n > ceiling {
			n = ceiling
		}
	}
}

func filterByImportanceAndScope(pool []*types.MemoryRecord, minImportance float64, scope types.Scope) []*types.MemoryRecord {
	if minImportance <= 0 && scope == "" {
		return pool
	}
	out := make([]*types.MemoryRecord, 0, len(pool))
	for _, m := range pool {
		if m.Importance < minImportance {
			continue
		}
		if scope != "" && m.Scope != scope {
			continue
		}
		out = append(out, m)
	}
	return out
}

func rankExact(pool []*types.MemoryRecord, limit int) []RecallItem {
	sorted := append([]*types.MemoryRecord(nil), pool...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	items := make([]RecallItem, len(sorted))
	for i, m := range sorted {
		items[i] = toRecallItem(m, 0)
	}
	return items
}

func (c *Coordinator) rankSemantic(ctx context.Context, query string, pool []*types.MemoryRecord, limit int) ([]RecallItem, error) {
	queryVec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, merr.Wrap(merr.Embedding, "failed to embed recall query", err)
	}
	scored := vector.Search(queryVec, pool, limit)
	items := make([]RecallItem, len(scored))
	for i, s := range scored {
		items[i] = toRecallItem(s.Memory, s.Score)
	}
	return items, nil
}

func rankLexical(query string, pool []*types.MemoryRecord, limit int) []RecallItem {
	scored := fulltext.Search(query, pool, limit)
	items := make([]RecallItem, len(scored))
	for i, s := range scored {
		items[i] = toRecallItem(s.Memory, s.Score)
	}
	return items
}

// rankGraph seeds from the top-s semantic matches, expands up to
// GraphMaxHops via Relations in both directions, and scores each reached
// memory by its maximum propagated weight
// w_child = w_parent * edge_weight * 0.5^hop.
func (c *Coordinator) rankGraph(ctx context.Context, principal, query string, pool []*types.MemoryRecord, limit int) ([]RecallItem, error) {
	seedCount := limit
	if seedCount > len(pool) {
		seedCount = len(pool)
	}
	seeded, err := c.rankSemantic(ctx, query, pool, seedCount)
	if err != nil {
		return nil, err
	}

	weights := make(map[string]float64)
	type frontierNode struct {
		id     string
		weight float64
		hop    int
	}
	var frontier []frontierNode
	for _, s := range seeded {
		weights[s.ID] = math.Max(weights[s.ID], 1.0)
		frontier = append(frontier, frontierNode{id: s.ID, weight: 1.0, hop: 0})
	}

	visited := make(map[string]bool, len(weights))
	for id := range weights {
		visited[id] = true
	}

	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		if cur.hop >= c.cfg.GraphMaxHops || len(visited) >= c.cfg.GraphMaxNodes {
			continue
		}
		outgoing, err := c.store.ForSource(ctx, cur.id)
		if err != nil {
			return nil, merr.Wrap(merr.Storage, "failed to read outgoing relations", err)
		}
		incoming, err := c.store.ForTarget(ctx, cur.id)
		if err != nil {
			return nil, merr.Wrap(merr.Storage, "failed to read incoming relations", err)
		}
		neighbors := make([]*types.Relation, 0, len(outgoing)+len(incoming))
		neighbors = append(neighbors, outgoing...)
		neighbors = append(neighbors, incoming...)

		for _, r := range neighbors {
			other := r.TargetID
			if other == cur.id {
				other = r.SourceID
			}
			if other == cur.id {
				continue
			}
			propagated := cur.weight * r.Weight * math.Pow(0.5, float64(cur.hop+1))
			if propagated > weights[other] {
				weights[other] = propagated
			}
			if !visited[other] && len(visited) < c.cfg.GraphMaxNodes {
				visited[other] = true
				frontier = append(frontier, frontierNode{id: other, weight: propagated, hop: cur.hop + 1})
			}
		}
	}

	type candidate struct {
		m      *types.MemoryRecord
		weight float64
	}
	var candidates []candidate
	for id, w := range weights {
		m, err := c.authorizedFetch(ctx, principal, id)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{m: m, weight: w})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].weight > candidates[j].weight })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	items := make([]RecallItem, len(candidates))
	for i, cand := range candidates {
		items[i] = toRecallItem(cand.m, cand.weight)
	}
	return items, nil
}

// authorizedFetch fetches a memory and confirms principal holds at least
// Read on it, for graph-discovered ids outside the original filtered pool.
func (c *Coordinator) authorizedFetch(ctx context.Context, principal, id string) (*types.MemoryRecord, error) {
	if err := c.authz.Check(ctx, principal, id, types.PermissionRead); err != nil {
		return nil, err
	}
	m, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !m.Retrievable(time.Now().UTC()) {
		return nil, merr.New(merr.NotFound, "memory not retrievable")
	}
	return m, nil
}

// rankHybrid computes semantic, lexical, recency, and graph ranked lists
// and fuses them by Reciprocal Rank Fusion.
func (c *Coordinator) rankHybrid(ctx context.Context, principal, query string, pool []*types.MemoryRecord, limit int, weights map[string]float64) ([]RecallItem, error) {
	byID := make(map[string]*types.MemoryRecord, len(pool))
	for _, m := range pool {
		byID[m.ID] = m
	}

	semantic, err := c.rankSemantic(ctx, query, pool, len(pool))
	if err != nil {
		return nil, err
	}
	lexical := rankLexical(query, pool, len(pool))
	graph, err := c.rankGraph(ctx, principal, query, pool, limit)
	if err != nil {
		return nil, err
	}
	recency := rankRecency(pool, c.cfg.RecencyHalfLife)

	lists := map[string][]string{
		"semantic": idsOf(semantic),
		"lexical":  idsOf(lexical),
		"recency":  idsOf(recency),
		"graph":    idsOf(graph),
	}
	fused := rrfFuse(lists, weights, c.cfg.RRFK)

	var ids []string
	for id := range fused {
		ids = append(ids, id)
		if _, ok := byID[id]; !ok {
			if m, err := c.authorizedFetch(ctx, principal, id); err == nil {
				byID[id] = m
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return fused[ids[i]] > fused[ids[j]] })
	if len(ids) > limit {
		ids = ids[:limit]
	}

	items := make([]RecallItem, 0, len(ids))
	for _, id := range ids {
		m, ok := byID[id]
		if !ok {
			continue
		}
		items = append(items, toRecallItem(m, fused[id]))
	}
	return items, nil
}

func rankRecency(pool []*types.MemoryRecord, halfLife time.Duration) []RecallItem {
	now := time.Now().UTC()
	halfLifeHours := halfLife.Hours()
	if halfLifeHours <= 0 {
		halfLifeHours = 168
	}
	items := make([]RecallItem, len(pool))
	for i, m := range pool {
		ageHours := now.Sub(m.CreatedAt).Hours()
		score := math.Exp(-ageHours * math.Ln2 / halfLifeHours)
		items[i] = toRecallItem(m, score)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	return items
}

func idsOf(items []RecallItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

// rrfFuse implements score(m) = Σ_list w_list / (k + rank_list(m)), with
// rank_list 1-indexed and weights defaulting to 1.0 when unset.
func rrfFuse(lists map[string][]string, weights map[string]float64, k int) map[string]float64 {
	scores := make(map[string]float64)
	for listName, ids := range lists {
		w, ok := weights[listName]
		if !ok {
			w = 1.0
		}
		for rank, id := range ids {
			scores[id] += w / float64(k+rank+1)
		}
	}
	return scores
}

func toRecallItem(m *types.MemoryRecord, score float64) RecallItem {
	return RecallItem{
		ID:         m.ID,
		Agent:      m.Agent,
		Content:    m.Content,
		MemoryType: m.MemoryType,
		Scope:      m.Scope,
		Importance: m.Importance,
		Tags:       m.Tags,
		Score:      score,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.LastAccessed,
	}
}
