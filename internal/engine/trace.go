package engine

import (
	"context"

	"github.com/scrypster/mnemo/pkg/merr"
	"github.com/scrypster/mnemo/pkg/types"
)

// Trace directions.
const (
	TraceUp   = "up"
	TraceDown = "down"
	TraceBoth = "both"
)

// TraceRequest is the validated input to Trace.
type TraceRequest struct {
	EventID         string
	Direction       string
	MaxDepth        int
	EventTypeFilter types.EventType // zero value means no filter
}

// TracedEvent is one hop in a causal trace, annotated with its distance
// from the root event and whether it was reached by walking up
// (ancestors) or down (descendants).
type TracedEvent struct {
	Event *types.AgentEvent
	Depth int
	Via   string
}

// TraceResult is the output of Trace.
type TraceResult struct {
	Root   *types.AgentEvent
	Events []TracedEvent
	Status string
}

// Trace walks an event's causal lineage via parent_event_id (up) and its
// indexed children (down), answering "what caused this" and "what did this
// cause" for debugging.
func (c *Coordinator) Trace(ctx context.Context, req TraceRequest) (*TraceResult, error) {
	if req.EventID == "" {
		return nil, merr.New(merr.Validation, "event_id is required")
	}
	if !isValidTraceDirection(req.Direction) {
		return nil, merr.New(merr.Validation, "unrecognized trace direction")
	}
	maxDepth := req.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 10
	}

	root, err := c.store.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, merr.Wrap(merr.NotFound, "event not found", err)
	}

	result := &TraceResult{Root: root, Status: StatusVerified}

	if req.Direction == TraceUp || req.Direction == TraceBoth {
		up, err := c.traceUp(ctx, root, maxDepth, req.EventTypeFilter)
		if err != nil {
			return nil, err
		}
		result.Events = append(result.Events, up...)
	}
	if req.Direction == TraceDown || req.Direction == TraceBoth {
		down, err := c.traceDown(ctx, root, maxDepth, req.EventTypeFilter)
		if err != nil {
			return nil, err
		}
		result.Events = append(result.Events, down...)
	}

	return result, nil
}

func isValidTraceDirection(d string) bool {
	switch d {
	case TraceUp, TraceDown, TraceBoth:
		return true
	default:
		return false
	}
}

func (c *Coordinator) traceUp(ctx context.Context, root *types.AgentEvent, maxDepth int, filter types.EventType) ([]TracedEvent, error) {
	var out []TracedEvent
	cur := root
	for depth := 1; depth <= maxDepth; depth++ {
		if cur.ParentEventID == "" {
			break
		}
		parent, err := c.store.GetEvent(ctx, cur.ParentEventID)
		if err != nil {
			return out, merr.Wrap(merr.Storage, "failed to walk causal ancestry", err)
		}
		if filter == "" || parent.EventType == filter {
			out = append(out, TracedEvent{Event: parent, Depth: depth, Via: TraceUp})
		}
		cur = parent
	}
	return out, nil
}

func (c *Coordinator) traceDown(ctx context.Context, root *types.AgentEvent, maxDepth int, filter types.EventType) ([]TracedEvent, error) {
	var out []TracedEvent
	frontier := []*types.AgentEvent{root}
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []*types.AgentEvent
		for _, e := range frontier {
			children, err := c.store.Children(ctx, e.ID)
			if err != nil {
				return out, merr.Wrap(merr.Storage, "failed to walk causal descendants", err)
			}
			for _, child := range children {
				if filter == "" || child.EventType == filter {
					out = append(out, TracedEvent{Event: child, Depth: depth, Via: TraceDown})
				}
				next = append(next, child)
			}
		}
		frontier = next
	}
	return out, nil
}
