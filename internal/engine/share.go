package engine

import (
	"context"
	"time"

	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/merr"
	"github.com/scrypster/mnemo/pkg/types"
)

// maxDelegationScopeCheckScanned bounds how many memories a creation-time
// by_tag/all scope check enumerates; it is a best-effort early deny, not the
// authoritative bound — authz.delegatedPermission recomputes the
// delegator's own effective permission on every access, so memories created
// after the delegation are still capped correctly.
const maxDelegationScopeCheckScanned = 500

// ShareRequest is the validated input to Share.
type ShareRequest struct {
	Principal  string
	MemoryID   string
	TargetIDs  []string
	Permission types.Permission // zero value is treated as PermissionRead
	ExpiresAt  *time.Time
}

// ShareResult is the output of Share.
type ShareResult struct {
	Granted []string
	Errors  map[string]error
	Status  string
}

// Share grants Permission on MemoryID to each target agent, requiring the
// caller to hold Share on the memory.
func (c *Coordinator) Share(ctx context.Context, req ShareRequest) (*ShareResult, error) {
	if req.MemoryID == "" || len(req.TargetIDs) == 0 {
		return nil, merr.New(merr.Validation, "memory_id and at least one target are required")
	}
	if err := c.authz.Check(ctx, req.Principal, req.MemoryID, types.PermissionShare); err != nil {
		return nil, err
	}

	permission := req.Permission
	if permission == types.PermissionNone {
		permission = types.PermissionRead
	}

	result := &ShareResult{Errors: make(map[string]error), Status: StatusShared}
	now := time.Now().UTC()
	for _, target := range req.TargetIDs {
		entry := &types.ACLEntry{
			ID:            types.NewID(),
			MemoryID:      req.MemoryID,
			PrincipalType: types.PrincipalAgent,
			PrincipalID:   target,
			Permission:    permission,
			GrantedBy:     req.Principal,
			CreatedAt:     now,
			ExpiresAt:     req.ExpiresAt,
		}
		if err := c.store.Grant(ctx, entry); err != nil {
			result.Errors[target] = merr.Wrap(merr.Storage, "failed to grant access", err)
			continue
		}
		result.Granted = append(result.Granted, target)
	}

	m, err := c.store.Get(ctx, req.MemoryID)
	agent := req.Principal
	if err == nil {
		agent = m.Agent
	}
	_ = c.appendEvent(ctx, agent, "", types.EventMemoryShare, map[string]any{
		"memory_id": req.MemoryID, "targets": result.Granted, "permission": permission.String(),
	})

	return result, nil
}

// DelegateRequest is the validated input to Delegate.
type DelegateRequest struct {
	Principal   string // the delegator
	DelegateID  string
	Permission  types.Permission
	Scope       types.DelegationScope
	MaxDepth    int
	// ParentDelegationID, when set, marks this as a re-delegation: Principal
	// is extending a delegation it was itself granted, and the new
	// delegation's depth is chained off the parent's.
	ParentDelegationID string
	ExpiresAt          *time.Time
}

// DelegateResult is the output of Delegate.
type DelegateResult struct {
	Delegation *types.Delegation
	Status     string
}

// Delegate creates a transitive grant. The caller must hold Delegate on
// every memory the scope could include; for by_memory_id scopes that is
// checked per id, for by_tag and all scopes the caller's Delegate
// permission is confirmed against every matching memory currently in
// storage as a best-effort early deny. The authoritative bound is enforced
// on every access by authz.Authorizer.delegatedPermission, which recomputes
// the delegator's own effective permission and caps what the delegation
// passes on at that ceiling, so a delegation can never grant more than the
// delegator actually holds even as matching memories are added later.
//
// A re-delegation (ParentDelegationID set) chains its depth off the parent:
// CurrentDepth is the parent's CurrentDepth+1, and creation is denied if
// that would exceed the parent's MaxDepth, so a sub-delegate cannot extend a
// chain past the bound the original delegator set.
func (c *Coordinator) Delegate(ctx context.Context, req DelegateRequest) (*DelegateResult, error) {
	if req.DelegateID == "" {
		return nil, merr.New(merr.Validation, "delegate_id is required")
	}
	if req.MaxDepth < 0 {
		return nil, merr.New(merr.Validation, "max_depth must be >= 0")
	}

	if err := c.checkDelegationScope(ctx, req.Principal, req.Scope); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	currentDepth := 0
	maxDepth := req.MaxDepth
	var parentID string

	if req.ParentDelegationID != "" {
		parent, err := c.store.GetDelegation(ctx, req.ParentDelegationID)
		if err != nil {
			return nil, merr.Wrap(merr.NotFound, "parent delegation not found", err)
		}
		if parent.DelegateID != req.Principal {
			return nil, merr.New(merr.Permission, "principal does not hold the parent delegation")
		}
		if !parent.Active(now) {
			return nil, merr.New(merr.Permission, "parent delegation is not active")
		}
		currentDepth = parent.CurrentDepth + 1
		if currentDepth > parent.MaxDepth {
			return nil, merr.New(merr.Permission, "re-delegation would exceed the parent delegation's max_depth")
		}
		if maxDepth > parent.MaxDepth {
			maxDepth = parent.MaxDepth
		}
		parentID = parent.ID
	}

	d := &types.Delegation{
		ID:               types.NewID(),
		DelegatorID:      req.Principal,
		DelegateID:       req.DelegateID,
		Permission:       req.Permission,
		Scope:            req.Scope,
		MaxDepth:         maxDepth,
		CurrentDepth:     currentDepth,
		ParentDelegation: parentID,
		CreatedAt:        now,
		ExpiresAt:        req.ExpiresAt,
	}
	if err := c.store.CreateDelegation(ctx, d); err != nil {
		return nil, merr.Wrap(merr.Storage, "failed to create delegation", err)
	}

	return &DelegateResult{Delegation: d, Status: StatusDelegated}, nil
}

// checkDelegationScope confirms the delegator holds Delegate on every
// memory the scope names, or on every memory currently matching it for
// by_tag/all; this is mandatory regardless of what any upstream transport
// already checked.
func (c *Coordinator) checkDelegationScope(ctx context.Context, principal string, scope types.DelegationScope) error {
	switch scope.Kind {
	case types.DelegationScopeByMemoryIDs:
		for _, id := range scope.MemoryIDs {
			if err := c.authz.Check(ctx, principal, id, types.PermissionDelegate); err != nil {
				return err
			}
		}
		return nil
	case types.DelegationScopeByTag:
		page, err := c.store.List(ctx, storage.ListOptions{Tags: scope.Tags, Limit: maxDelegationScopeCheckScanned})
		if err != nil {
			return merr.Wrap(merr.Storage, "failed to enumerate by_tag delegation scope", err)
		}
		for _, m := range page.Items {
			if err := c.authz.Check(ctx, principal, m.ID, types.PermissionDelegate); err != nil {
				return err
			}
		}
		return nil
	case types.DelegationScopeAll:
		page, err := c.store.List(ctx, storage.ListOptions{Limit: maxDelegationScopeCheckScanned})
		if err != nil {
			return merr.Wrap(merr.Storage, "failed to enumerate all-scope delegation", err)
		}
		for _, m := range page.Items {
			if err := c.authz.Check(ctx, principal, m.ID, types.PermissionDelegate); err != nil {
				return err
			}
		}
		return nil
	default:
		return merr.New(merr.Validation, "unrecognized delegation scope kind")
	}
}
