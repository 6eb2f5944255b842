package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/types"
)

// CheckpointStore implements storage.CheckpointStore over the checkpoints
// table.
type CheckpointStore struct {
	db *sql.DB
}

const checkpointColumns = `
	id, thread_id, agent_id, parent_id, branch_name, state_snapshot,
	state_diff, memory_refs, event_cursor, label, created_at
`

func scanCheckpoint(row interface{ Scan(...any) error }) (*types.Checkpoint, error) {
	var c types.Checkpoint
	var snapshotJSON, diffJSON, refsJSON string
	err := row.Scan(
		&c.ID, &c.ThreadID, &c.Agent, &c.ParentID, &c.BranchName, &snapshotJSON,
		&diffJSON, &refsJSON, &c.EventCursor, &c.Label, &c.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	unmarshalJSON(snapshotJSON, &c.StateSnapshot)
	unmarshalJSON(diffJSON, &c.StateDiff)
	unmarshalJSON(refsJSON, &c.MemoryRefs)
	return &c, nil
}

// CreateCheckpoint inserts a new checkpoint.
func (s *CheckpointStore) CreateCheckpoint(ctx context.Context, c *types.Checkpoint) error {
	if c == nil || c.ID == "" {
		return storage.ErrInvalidInput
	}
	if c.BranchName == "" {
		c.BranchName = types.DefaultBranch
	}
	exec := execerFromContext(ctx, s.db)
	_, err := exec.ExecContext(ctx,
		`INSERT INTO checkpoints (`+checkpointColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.ThreadID, c.Agent, c.ParentID, c.BranchName, marshalJSON(c.StateSnapshot),
		marshalJSON(c.StateDiff), marshalJSON(c.MemoryRefs), c.EventCursor, c.Label, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves a checkpoint by id.
func (s *CheckpointStore) GetCheckpoint(ctx context.Context, id string) (*types.Checkpoint, error) {
	exec := execerFromContext(ctx, s.db)
	row := exec.QueryRowContext(ctx, `SELECT `+checkpointColumns+` FROM checkpoints WHERE id = ?`, id)
	c, err := scanCheckpoint(row)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: failed to get checkpoint: %w", err)
	}
	return c, nil
}

// ForBranch returns checkpoints on a branch ordered oldest-first.
func (s *CheckpointStore) ForBranch(ctx context.Context, thread, branch string) ([]*types.Checkpoint, error) {
	exec := execerFromContext(ctx, s.db)
	rows, err := exec.QueryContext(ctx,
		`SELECT `+checkpointColumns+` FROM checkpoints WHERE thread_id = ? AND branch_name = ? ORDER BY created_at ASC`,
		thread, branch)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*types.Checkpoint
	for rows.Next() {
		c, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan checkpoint: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Branches lists distinct branch names known for a thread.
func (s *CheckpointStore) Branches(ctx context.Context, thread string) ([]string, error) {
	exec := execerFromContext(ctx, s.db)
	rows, err := exec.QueryContext(ctx,
		`SELECT DISTINCT branch_name FROM checkpoints WHERE thread_id = ?`, thread)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query branches: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan branch: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Latest returns the most recent checkpoint on a branch, or nil if none.
func (s *CheckpointStore) Latest(ctx context.Context, thread, branch string) (*types.Checkpoint, error) {
	exec := execerFromContext(ctx, s.db)
	row := exec.QueryRowContext(ctx,
		`SELECT `+checkpointColumns+` FROM checkpoints WHERE thread_id = ? AND branch_name = ? ORDER BY created_at DESC LIMIT 1`,
		thread, branch)
	c, err := scanCheckpoint(row)
	if err == storage.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get latest checkpoint: %w", err)
	}
	return c, nil
}
