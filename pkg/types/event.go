package types

import "time"

// EventType classifies an AgentEvent.
type EventType string

const (
	EventUserMsg         EventType = "user_msg"
	EventAssistantMsg    EventType = "assistant_msg"
	EventToolCall        EventType = "tool_call"
	EventToolResult      EventType = "tool_result"
	EventRetrievalQuery  EventType = "retrieval_query"
	EventRetrievalResult EventType = "retrieval_result"
	EventMemoryWrite     EventType = "memory_write"
	EventMemoryRead      EventType = "memory_read"
	EventMemoryDelete    EventType = "memory_delete"
	EventMemoryShare     EventType = "memory_share"
	EventCheckpoint      EventType = "checkpoint"
	EventBranch          EventType = "branch"
	EventMerge           EventType = "merge"
	EventError           EventType = "error"
	EventDecision        EventType = "decision"
)

// Telemetry holds optional correlation fields carried on an AgentEvent.
type Telemetry struct {
	TraceID      string  `json:"trace_id,omitempty"`
	SpanID       string  `json:"span_id,omitempty"`
	Model        string  `json:"model,omitempty"`
	InputTokens  int     `json:"input_tokens,omitempty"`
	OutputTokens int     `json:"output_tokens,omitempty"`
	LatencyMS    int64   `json:"latency_ms,omitempty"`
	CostUSD      float64 `json:"cost_usd,omitempty"`
}

// AgentEvent is an immutable action record forming a DAG via ParentEventID
// and a per-agent hash chain via PrevHash.
type AgentEvent struct {
	ID            string         `json:"id"`
	Agent         string         `json:"agent_id"`
	Thread        string         `json:"thread_id,omitempty"`
	Run           string         `json:"run_id,omitempty"`
	ParentEventID string         `json:"parent_event_id,omitempty"`
	EventType     EventType      `json:"event_type"`
	Payload       map[string]any `json:"payload,omitempty"`
	Telemetry     Telemetry      `json:"telemetry,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	LogicalClock int64     `json:"logical_clock"`

	ContentHash string `json:"content_hash"`
	PrevHash    string `json:"prev_hash"`
}
