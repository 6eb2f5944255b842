package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/types"
)

// EventStore implements storage.EventStore over the agent_events table.
type EventStore struct {
	db *sql.DB
}

const eventColumns = `
	id, agent_id, thread_id, run_id, parent_event_id, event_type, payload,
	telemetry, created_at, logical_clock, content_hash, prev_hash
`

func scanEvent(row interface{ Scan(...any) error }) (*types.AgentEvent, error) {
	var e types.AgentEvent
	var payloadJSON, telemetryJSON string

	err := row.Scan(
		&e.ID, &e.Agent, &e.Thread, &e.Run, &e.ParentEventID, &e.EventType, &payloadJSON,
		&telemetryJSON, &e.CreatedAt, &e.LogicalClock, &e.ContentHash, &e.PrevHash,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	unmarshalJSON(payloadJSON, &e.Payload)
	unmarshalJSON(telemetryJSON, &e.Telemetry)
	return &e, nil
}

// Append inserts a new event. Events are immutable: there is no update path.
func (s *EventStore) Append(ctx context.Context, e *types.AgentEvent) error {
	if e == nil || e.ID == "" {
		return storage.ErrInvalidInput
	}
	exec := execerFromContext(ctx, s.db)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO agent_events (`+eventColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
	`,
		e.ID, e.Agent, e.Thread, e.Run, e.ParentEventID, string(e.EventType), marshalJSON(e.Payload),
		marshalJSON(e.Telemetry), e.CreatedAt, e.LogicalClock, e.ContentHash, e.PrevHash,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to append event: %w", err)
	}
	return nil
}

// GetEvent retrieves a single event by id.
func (s *EventStore) GetEvent(ctx context.Context, id string) (*types.AgentEvent, error) {
	exec := execerFromContext(ctx, s.db)
	row := exec.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM agent_events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: failed to get event: %w", err)
	}
	return e, nil
}

// ListByThread returns events for a thread ordered by logical_clock
// ascending, starting strictly after since.
func (s *EventStore) ListByThread(ctx context.Context, thread string, since int64, limit int) ([]*types.AgentEvent, error) {
	exec := execerFromContext(ctx, s.db)
	rows, err := exec.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM agent_events WHERE thread_id = ? AND logical_clock > ? ORDER BY logical_clock ASC LIMIT ?`,
		thread, since, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list events: %w", err)
	}
	defer rows.Close()

	var out []*types.AgentEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Children returns events whose parent_event_id is the given id.
func (s *EventStore) Children(ctx context.Context, parentEventID string) ([]*types.AgentEvent, error) {
	exec := execerFromContext(ctx, s.db)
	rows, err := exec.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM agent_events WHERE parent_event_id = ? ORDER BY logical_clock ASC`, parentEventID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list event children: %w", err)
	}
	defer rows.Close()

	var out []*types.AgentEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ForAgentAndType returns an agent's events of one type ordered by logical
// clock ascending.
func (s *EventStore) ForAgentAndType(ctx context.Context, agent string, eventType types.EventType, limit int) ([]*types.AgentEvent, error) {
	exec := execerFromContext(ctx, s.db)
	rows, err := exec.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM agent_events WHERE agent_id = ? AND event_type = ? ORDER BY logical_clock ASC LIMIT ?`,
		agent, string(eventType), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query events by type: %w", err)
	}
	defer rows.Close()

	var out []*types.AgentEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LastForAgent returns the most recent event appended for an agent's chain.
func (s *EventStore) LastForAgent(ctx context.Context, agent string) (*types.AgentEvent, error) {
	exec := execerFromContext(ctx, s.db)
	row := exec.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM agent_events WHERE agent_id = ? ORDER BY logical_clock DESC LIMIT 1`, agent)
	e, err := scanEvent(row)
	if err == storage.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get last event: %w", err)
	}
	return e, nil
}
