// Package authz resolves whether a principal may act on a memory, folding
// together ownership, explicit ACL grants, scope visibility, and
// transitive delegation chains into a single decision.
package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/merr"
	"github.com/scrypster/mnemo/pkg/types"
)

// Authorizer answers permission questions against the storage driver's ACL
// and delegation tables.
type Authorizer struct {
	memories    storage.MemoryStore
	acl         storage.ACLStore
	delegations storage.DelegationStore
}

// New builds an Authorizer over the given stores.
func New(memories storage.MemoryStore, acl storage.ACLStore, delegations storage.DelegationStore) *Authorizer {
	return &Authorizer{memories: memories, acl: acl, delegations: delegations}
}

// Check reports whether principal holds at least required permission on
// memoryID, consulting ownership, scope, direct ACL grants, and delegation
// in that order; the first match wins.
func (a *Authorizer) Check(ctx context.Context, principal string, memoryID string, required types.Permission) error {
	m, err := a.memories.Get(ctx, memoryID)
	if err != nil {
		return err
	}

	if m.Agent == principal {
		return nil // owners hold Admin implicitly
	}

	if m.Scope == types.ScopePublic || m.Scope == types.ScopeGlobal {
		if required <= types.PermissionRead {
			return nil
		}
	}

	granted, err := a.effectivePermission(ctx, principal, m)
	if err != nil {
		return err
	}
	if granted.Satisfies(required) {
		return nil
	}
	return merr.New(merr.Permission, fmt.Sprintf("principal %q lacks %s on memory %q", principal, required, memoryID))
}

// effectivePermission is the strongest permission principal holds on m via
// direct ACL grants or active delegation, ignoring ownership and scope
// (callers check those first).
func (a *Authorizer) effectivePermission(ctx context.Context, principal string, m *types.MemoryRecord) (types.Permission, error) {
	return a.effectivePermissionVisiting(ctx, principal, m, map[string]bool{principal: true})
}

func (a *Authorizer) effectivePermissionVisiting(ctx context.Context, principal string, m *types.MemoryRecord, visited map[string]bool) (types.Permission, error) {
	best := types.PermissionNone

	entries, err := a.acl.ForMemory(ctx, m.ID)
	if err != nil {
		return types.PermissionNone, err
	}
	for _, e := range entries {
		if e.PrincipalID != principal && e.PrincipalType != types.PrincipalPublic {
			continue
		}
		if e.Expired(time.Now()) {
			continue
		}
		if e.Permission > best {
			best = e.Permission
		}
	}

	delegated, err := a.delegatedPermission(ctx, principal, m, visited)
	if err != nil {
		return types.PermissionNone, err
	}
	if delegated > best {
		best = delegated
	}

	return best, nil
}

// delegatedPermission walks delegations granted to principal, honoring each
// delegation's scope and active/depth bounds, and capping what it passes on
// at the delegator's own effective permission — recomputed recursively so a
// delegation chain can never grant more than the original holder actually
// had. A delegation whose stored Permission field claims more than its
// delegator holds is silently clamped down to what the delegator holds,
// rather than trusted at face value. visited guards against delegation
// cycles feeding back into the recursion.
func (a *Authorizer) delegatedPermission(ctx context.Context, principal string, m *types.MemoryRecord, visited map[string]bool) (types.Permission, error) {
	delegations, err := a.delegations.ForDelegate(ctx, principal)
	if err != nil {
		return types.PermissionNone, err
	}

	best := types.PermissionNone
	now := time.Now()
	for _, d := range delegations {
		if !d.Active(now) {
			continue
		}
		if !d.Scope.Contains(m.ID, m.Tags) {
			continue
		}
		if visited[d.DelegatorID] {
			continue
		}

		held, err := a.holderPermission(ctx, d.DelegatorID, m, visited)
		if err != nil {
			return types.PermissionNone, err
		}
		grant := d.Permission
		if held < grant {
			grant = held
		}
		if grant > best {
			best = grant
		}
	}
	return best, nil
}

// holderPermission is the permission principal actually holds on m via
// ownership, public/global scope visibility, direct ACL grants, or their
// own delegations — the ceiling delegatedPermission enforces on what
// principal may pass further down a delegation chain.
func (a *Authorizer) holderPermission(ctx context.Context, principal string, m *types.MemoryRecord, visited map[string]bool) (types.Permission, error) {
	if m.Agent == principal {
		return types.PermissionAdmin, nil
	}

	next := make(map[string]bool, len(visited)+1)
	for k := range visited {
		next[k] = true
	}
	next[principal] = true

	eff, err := a.effectivePermissionVisiting(ctx, principal, m, next)
	if err != nil {
		return types.PermissionNone, err
	}
	if (m.Scope == types.ScopePublic || m.Scope == types.ScopeGlobal) && eff < types.PermissionRead {
		eff = types.PermissionRead
	}
	return eff, nil
}

// AccessibleIDs returns the subset of candidateIDs principal may access at
// required permission or above, preserving order. It is used to turn an
// authorization check into the RecallFilter.AllowedIDs set a recall
// strategy can push down into SQL.
func (a *Authorizer) AccessibleIDs(ctx context.Context, principal string, candidateIDs []string, required types.Permission) ([]string, error) {
	var out []string
	for _, id := range candidateIDs {
		if err := a.Check(ctx, principal, id, required); err == nil {
			out = append(out, id)
		}
	}
	return out, nil
}
