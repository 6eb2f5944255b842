package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/types"
)

// ACLStore implements storage.ACLStore over the acl_entries table.
type ACLStore struct {
	db *sql.DB
}

const aclColumns = `id, memory_id, principal_type, principal_id, permission, granted_by, created_at, expires_at`

func scanACL(row interface{ Scan(...any) error }) (*types.ACLEntry, error) {
	var e types.ACLEntry
	var expiresAt sql.NullTime
	err := row.Scan(&e.ID, &e.MemoryID, &e.PrincipalType, &e.PrincipalID, &e.Permission, &e.GrantedBy, &e.CreatedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e.ExpiresAt = timePtr(expiresAt)
	return &e, nil
}

// Grant inserts a new ACL entry.
func (s *ACLStore) Grant(ctx context.Context, e *types.ACLEntry) error {
	if e == nil || e.ID == "" || e.MemoryID == "" {
		return storage.ErrInvalidInput
	}
	exec := execerFromContext(ctx, s.db)
	_, err := exec.ExecContext(ctx,
		`INSERT INTO acl_entries (`+aclColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		e.ID, e.MemoryID, string(e.PrincipalType), e.PrincipalID, int(e.Permission), e.GrantedBy, e.CreatedAt, nullableTime(e.ExpiresAt))
	if err != nil {
		return fmt.Errorf("sqlite: failed to grant ACL entry: %w", err)
	}
	return nil
}

// Revoke deletes an ACL entry by id.
func (s *ACLStore) Revoke(ctx context.Context, id string) error {
	exec := execerFromContext(ctx, s.db)
	res, err := exec.ExecContext(ctx, `DELETE FROM acl_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to revoke ACL entry: %w", err)
	}
	return requireRowsAffected(res)
}

// ForMemory returns all ACL entries granted on a memory.
func (s *ACLStore) ForMemory(ctx context.Context, memoryID string) ([]*types.ACLEntry, error) {
	exec := execerFromContext(ctx, s.db)
	rows, err := exec.QueryContext(ctx, `SELECT `+aclColumns+` FROM acl_entries WHERE memory_id = ?`, memoryID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query ACL entries: %w", err)
	}
	defer rows.Close()

	var out []*types.ACLEntry
	for rows.Next() {
		e, err := scanACL(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan ACL entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ForPrincipal returns all ACL entries granted to a principal.
func (s *ACLStore) ForPrincipal(ctx context.Context, principalType types.PrincipalType, principalID string) ([]*types.ACLEntry, error) {
	exec := execerFromContext(ctx, s.db)
	rows, err := exec.QueryContext(ctx,
		`SELECT `+aclColumns+` FROM acl_entries WHERE principal_type = ? AND principal_id = ?`,
		string(principalType), principalID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query ACL entries: %w", err)
	}
	defer rows.Close()

	var out []*types.ACLEntry
	for rows.Next() {
		e, err := scanACL(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan ACL entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
