package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/types"
)

// DelegationStore implements storage.DelegationStore over the delegations
// table.
type DelegationStore struct {
	db *sql.DB
}

const delegationColumns = `
	id, delegator_id, delegate_id, permission, scope_kind, scope_tags,
	scope_memory_ids, max_depth, current_depth, parent_delegation_id,
	created_at, expires_at, revoked_at
`

func scanDelegation(row interface{ Scan(...any) error }) (*types.Delegation, error) {
	var d types.Delegation
	var tagsJSON, idsJSON string
	var expiresAt, revokedAt sql.NullTime

	err := row.Scan(
		&d.ID, &d.DelegatorID, &d.DelegateID, &d.Permission, &d.Scope.Kind, &tagsJSON,
		&idsJSON, &d.MaxDepth, &d.CurrentDepth, &d.ParentDelegation,
		&d.CreatedAt, &expiresAt, &revokedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	unmarshalJSON(tagsJSON, &d.Scope.Tags)
	unmarshalJSON(idsJSON, &d.Scope.MemoryIDs)
	d.ExpiresAt = timePtr(expiresAt)
	d.RevokedAt = timePtr(revokedAt)
	return &d, nil
}

// CreateDelegation inserts a new delegation.
func (s *DelegationStore) CreateDelegation(ctx context.Context, d *types.Delegation) error {
	if d == nil || d.ID == "" {
		return storage.ErrInvalidInput
	}
	exec := execerFromContext(ctx, s.db)
	_, err := exec.ExecContext(ctx,
		`INSERT INTO delegations (`+delegationColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.DelegatorID, d.DelegateID, int(d.Permission), string(d.Scope.Kind), marshalJSON(d.Scope.Tags),
		marshalJSON(d.Scope.MemoryIDs), d.MaxDepth, d.CurrentDepth, d.ParentDelegation,
		d.CreatedAt, nullableTime(d.ExpiresAt), nullableTime(d.RevokedAt))
	if err != nil {
		return fmt.Errorf("sqlite: failed to create delegation: %w", err)
	}
	return nil
}

// RevokeDelegation marks a delegation revoked as of now.
func (s *DelegationStore) RevokeDelegation(ctx context.Context, id string, now time.Time) error {
	exec := execerFromContext(ctx, s.db)
	res, err := exec.ExecContext(ctx,
		`UPDATE delegations SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`, now, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to revoke delegation: %w", err)
	}
	return requireRowsAffected(res)
}

// GetDelegation retrieves a delegation by id.
func (s *DelegationStore) GetDelegation(ctx context.Context, id string) (*types.Delegation, error) {
	exec := execerFromContext(ctx, s.db)
	row := exec.QueryRowContext(ctx, `SELECT `+delegationColumns+` FROM delegations WHERE id = ?`, id)
	d, err := scanDelegation(row)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: failed to get delegation: %w", err)
	}
	return d, nil
}

// ForDelegate returns delegations granted to a delegate.
func (s *DelegationStore) ForDelegate(ctx context.Context, delegateID string) ([]*types.Delegation, error) {
	return s.listWhere(ctx, "delegate_id = ?", delegateID)
}

// ForDelegator returns delegations granted by a delegator.
func (s *DelegationStore) ForDelegator(ctx context.Context, delegatorID string) ([]*types.Delegation, error) {
	return s.listWhere(ctx, "delegator_id = ?", delegatorID)
}

func (s *DelegationStore) listWhere(ctx context.Context, clause, arg string) ([]*types.Delegation, error) {
	exec := execerFromContext(ctx, s.db)
	rows, err := exec.QueryContext(ctx, `SELECT `+delegationColumns+` FROM delegations WHERE `+clause, arg)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query delegations: %w", err)
	}
	defer rows.Close()

	var out []*types.Delegation
	for rows.Next() {
		d, err := scanDelegation(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan delegation: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
