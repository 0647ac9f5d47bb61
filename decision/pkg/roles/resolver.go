// Package roles computes a principal's effective permission set from
// role assignments and the role inheritance hierarchy.
package roles

import (
	"context"
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/bl-hori/auth-platform-sub003/db/pkg/db"
	"github.com/bl-hori/auth-platform-sub003/db/pkg/db/model"
)

// Decision reasons produced by effective-set evaluation.
const (
	ReasonExplicitDeny   = "explicit_deny"
	ReasonRolePermission = "role_permission"
	ReasonNoPermission   = "no_matching_permission"
)

var (
	// ErrUserNotFound is returned when the principal has no user record.
	ErrUserNotFound = errors.New("principal has no user record")
	// ErrUserInactive is returned when the principal's user record is not
	// active.
	ErrUserInactive = errors.New("principal is not active")
)

// EffectiveSet is the flattened permission set of one principal for one
// request scope. Deny entries always win over allow entries.
type EffectiveSet struct {
	RoleIDs []uuid.UUID
	allow   mapset.Set[string]
	deny    mapset.Set[string]
}

// permKey length-prefixes the resource type so a ":" inside either
// field cannot make two different pairs share a key.
func permKey(resourceType, action string) string {
	return strconv.Itoa(len(resourceType)) + ":" + resourceType + ":" + action
}

// NewEffectiveSet builds a set from resolved permissions.
func NewEffectiveSet(roleIDs []uuid.UUID, perms []model.Permission) *EffectiveSet {
	es := &EffectiveSet{
		RoleIDs: roleIDs,
		allow:   mapset.NewThreadUnsafeSet[string](),
		deny:    mapset.NewThreadUnsafeSet[string](),
	}
	for _, p := range perms {
		if p.Effect == model.EffectDeny {
			es.deny.Add(permKey(p.ResourceType, p.Action))
		} else {
			es.allow.Add(permKey(p.ResourceType, p.Action))
		}
	}
	return es
}

// Decide evaluates one (resourceType, action) pair against the set.
func (es *EffectiveSet) Decide(resourceType, action string) (bool, string) {
	key := permKey(resourceType, action)
	if es.deny.Contains(key) {
		return false, ReasonExplicitDeny
	}
	if es.allow.Contains(key) {
		return true, ReasonRolePermission
	}
	return false, ReasonNoPermission
}

// Allows reports whether the set grants the pair outright.
func (es *EffectiveSet) Allows(resourceType, action string) bool {
	ok, _ := es.Decide(resourceType, action)
	return ok
}

// Resolver walks the role graph for a principal. All reads go through
// the DAOs so tenancy checks apply.
type Resolver struct {
	users       model.UserDAO
	assignments model.RoleAssignmentDAO
	roles       model.RoleDAO
	rolePerms   model.RolePermissionDAO
}

// NewResolver creates a resolver over the given stores.
func NewResolver(users model.UserDAO, assignments model.RoleAssignmentDAO, roles model.RoleDAO, rolePerms model.RolePermissionDAO) *Resolver {
	return &Resolver{
		users:       users,
		assignments: assignments,
		roles:       roles,
		rolePerms:   rolePerms,
	}
}

// Resolve computes the effective permission set for a user, optionally
// narrowed to one resource scope. Expired assignments are excluded at
// the store; inherited roles are collected by walking parent chains with
// a visited set, bounded by db.MaxRoleDepth.
func (r *Resolver) Resolve(ctx context.Context, tx *db.Tx, userID uuid.UUID, scope *model.RoleAssignmentScope) (*EffectiveSet, error) {
	u, err := r.users.Get(ctx, tx, userID)
	if db.IsNotFound(err) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if u.Status != model.UserStatusActive {
		return nil, ErrUserInactive
	}

	assignments, err := r.assignments.GetActiveForUser(ctx, tx, userID, scope)
	if err != nil {
		return nil, err
	}

	assigned := lo.Map(assignments, func(a model.RoleAssignment, _ int) uuid.UUID {
		return a.RoleID
	})

	visited := mapset.NewThreadUnsafeSet[uuid.UUID]()
	for _, roleID := range assigned {
		if err := r.walk(ctx, tx, roleID, visited); err != nil {
			return nil, err
		}
	}
	allRoles := visited.ToSlice()

	perms, err := r.rolePerms.GetPermissionsForRoles(ctx, tx, allRoles)
	if err != nil {
		return nil, err
	}

	return NewEffectiveSet(allRoles, perms), nil
}

// walk collects roleID and its ancestors into visited. A chain longer
// than db.MaxRoleDepth stops with an error; revisiting a role stops
// silently, which also makes stored cycles harmless.
func (r *Resolver) walk(ctx context.Context, tx *db.Tx, roleID uuid.UUID, visited mapset.Set[uuid.UUID]) error {
	current := &roleID
	for depth := 0; current != nil; depth++ {
		if depth > db.MaxRoleDepth {
			return model.ErrRoleDepthExceeded
		}
		if !visited.Add(*current) {
			return nil
		}
		role, err := r.roles.Get(ctx, tx, *current)
		if db.IsNotFound(err) {
			// Assignment pointing at a vanished role contributes nothing.
			return nil
		}
		if err != nil {
			return err
		}
		current = role.ParentRoleID
	}
	return nil
}
