package storage

import (
	"time"

	"github.com/scrypster/mnemo/pkg/types"
)

// PaginatedResult is a type-safe page of results.
type PaginatedResult[T any] struct {
	Items    []T
	Total    int
	Page     int
	PageSize int
	HasMore  bool
}

// ListOptions carries pagination, sorting, and filtering for memory listing.
type ListOptions struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder string

	Agent          string
	Org            string
	Thread         string
	Branch         string // empty means unfiltered; callers scoping to a branch pass types.DefaultBranch explicitly
	MemoryType     string
	Scope          types.Scope
	State          types.ConsolidationState
	Tags           []string
	CreatedAfter   time.Time
	CreatedBefore  time.Time
	MinImportance  float64
	IncludeDeleted bool
	OnlyDeleted    bool
	Quarantined    *bool
}

var allowedSortFields = map[string]bool{
	"created_at":    true,
	"last_accessed": true,
	"importance":    true,
	"access_count":  true,
}

// Normalize applies defaults and whitelists sort fields against injection.
func (o *ListOptions) Normalize() {
	if !allowedSortFields[o.SortBy] {
		o.SortBy = "created_at"
	}
	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		o.SortOrder = "desc"
	}
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit < 1 {
		o.Limit = 20
	}
	if o.Limit > 200 {
		o.Limit = 200
	}
}

// Offset computes the SQL OFFSET implied by Page/Limit.
func (o *ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// RecallFilter narrows which memories a recall strategy may consider,
// applied before scoring so that authorization and scope never leak through
// a ranking bug.
type RecallFilter struct {
	Agent          string
	Org            string
	Thread         string
	Branch         string // empty means unfiltered across every branch of Thread
	MemoryTypes    []types.MemoryType
	Tags           []string
	AllowedIDs     []string // authorization-resolved accessible set; nil means unrestricted
	ExcludeForgot  bool
	CreatedAfter   time.Time
	CreatedBefore  time.Time

	// Now gates out memories whose TTL has elapsed as of this instant. The
	// zero value disables expiry filtering (callers that already filter
	// in-process, e.g. tests, may omit it).
	Now time.Time
}

// GraphBounds prevents combinatorial explosion during graph traversal.
type GraphBounds struct {
	MaxHops  int
	MaxNodes int
	Timeout  time.Duration
}

// Normalize applies defaults and caps to GraphBounds.
func (g *GraphBounds) Normalize() {
	if g.MaxHops < 1 {
		g.MaxHops = 2
	}
	if g.MaxHops > 6 {
		g.MaxHops = 6
	}
	if g.MaxNodes < 1 {
		g.MaxNodes = 50
	}
	if g.MaxNodes > 1000 {
		g.MaxNodes = 1000
	}
	if g.Timeout == 0 {
		g.Timeout = 10 * time.Second
	}
}

// GraphEdge is a directed edge surfaced by a graph traversal.
type GraphEdge struct {
	From         string
	To           string
	RelationType string
	Weight       float64
}

// GraphResult is the outcome of a bounded graph traversal.
type GraphResult struct {
	Nodes         []string
	Edges         []GraphEdge
	BoundsReached bool
}
