package roles

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bl-hori/auth-platform-sub003/db/pkg/db"
	"github.com/bl-hori/auth-platform-sub003/db/pkg/db/model"
)

// Fakes embed the DAO interfaces so only the methods the resolver uses
// need implementations.

type fakeUsers struct {
	model.UserDAO
	users map[uuid.UUID]*model.User
}

func (f fakeUsers) Get(_ context.Context, _ *db.Tx, userID uuid.UUID) (*model.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, db.ErrDoesNotExist
	}
	return u, nil
}

type fakeAssignments struct {
	model.RoleAssignmentDAO
	byUser map[uuid.UUID][]model.RoleAssignment
}

func (f fakeAssignments) GetActiveForUser(_ context.Context, _ *db.Tx, userID uuid.UUID, _ *model.RoleAssignmentScope) ([]model.RoleAssignment, error) {
	return f.byUser[userID], nil
}

type fakeRoles struct {
	model.RoleDAO
	roles map[uuid.UUID]*model.Role
}

func (f fakeRoles) Get(_ context.Context, _ *db.Tx, roleID uuid.UUID) (*model.Role, error) {
	r, ok := f.roles[roleID]
	if !ok {
		return nil, db.ErrDoesNotExist
	}
	return r, nil
}

type fakeRolePerms struct {
	model.RolePermissionDAO
	byRole map[uuid.UUID][]model.Permission
}

func (f fakeRolePerms) GetPermissionsForRoles(_ context.Context, _ *db.Tx, roleIDs []uuid.UUID) ([]model.Permission, error) {
	var out []model.Permission
	for _, id := range roleIDs {
		out = append(out, f.byRole[id]...)
	}
	return out, nil
}

type fixture struct {
	users       fakeUsers
	assignments fakeAssignments
	roles       fakeRoles
	rolePerms   fakeRolePerms
	org         uuid.UUID
	user        uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		users:       fakeUsers{users: map[uuid.UUID]*model.User{}},
		assignments: fakeAssignments{byUser: map[uuid.UUID][]model.RoleAssignment{}},
		roles:       fakeRoles{roles: map[uuid.UUID]*model.Role{}},
		rolePerms:   fakeRolePerms{byRole: map[uuid.UUID][]model.Permission{}},
		org:         uuid.New(),
		user:        uuid.New(),
	}
	f.users.users[f.user] = &model.User{ID: f.user, OrganizationID: f.org, Status: model.UserStatusActive}
	return f
}

func (f *fixture) addRole(parent *uuid.UUID) uuid.UUID {
	id := uuid.New()
	f.roles.roles[id] = &model.Role{ID: id, OrganizationID: f.org, ParentRoleID: parent}
	return id
}

func (f *fixture) assign(roleID uuid.UUID) {
	f.assignments.byUser[f.user] = append(f.assignments.byUser[f.user], model.RoleAssignment{
		ID: uuid.New(), UserID: f.user, RoleID: roleID,
	})
}

func (f *fixture) bind(roleID uuid.UUID, resourceType, action, effect string) {
	f.rolePerms.byRole[roleID] = append(f.rolePerms.byRole[roleID], model.Permission{
		ID: uuid.New(), OrganizationID: f.org,
		ResourceType: resourceType, Action: action, Effect: effect,
	})
}

func (f *fixture) resolver() *Resolver {
	return NewResolver(f.users, f.assignments, f.roles, f.rolePerms)
}

func TestResolve_DirectPermission(t *testing.T) {
	f := newFixture()
	role := f.addRole(nil)
	f.assign(role)
	f.bind(role, "document", "read", model.EffectAllow)

	es, err := f.resolver().Resolve(context.Background(), nil, f.user, nil)
	require.NoError(t, err)

	ok, reason := es.Decide("document", "read")
	assert.True(t, ok)
	assert.Equal(t, ReasonRolePermission, reason)

	ok, reason = es.Decide("document", "delete")
	assert.False(t, ok)
	assert.Equal(t, ReasonNoPermission, reason)
}

func TestResolve_InheritedPermission(t *testing.T) {
	f := newFixture()
	grandparent := f.addRole(nil)
	parent := f.addRole(&grandparent)
	child := f.addRole(&parent)
	f.assign(child)
	f.bind(grandparent, "document", "read", model.EffectAllow)

	es, err := f.resolver().Resolve(context.Background(), nil, f.user, nil)
	require.NoError(t, err)

	assert.True(t, es.Allows("document", "read"))
	assert.Len(t, es.RoleIDs, 3)
}

func TestResolve_DenyBeatsAllow(t *testing.T) {
	f := newFixture()
	reader := f.addRole(nil)
	restricted := f.addRole(nil)
	f.assign(reader)
	f.assign(restricted)
	f.bind(reader, "document", "read", model.EffectAllow)
	f.bind(restricted, "document", "read", model.EffectDeny)

	es, err := f.resolver().Resolve(context.Background(), nil, f.user, nil)
	require.NoError(t, err)

	ok, reason := es.Decide("document", "read")
	assert.False(t, ok)
	assert.Equal(t, ReasonExplicitDeny, reason)
}

// Granting another role never removes a previously granted permission.
func TestResolve_GrantIsMonotonic(t *testing.T) {
	f := newFixture()
	reader := f.addRole(nil)
	f.assign(reader)
	f.bind(reader, "document", "read", model.EffectAllow)

	es, err := f.resolver().Resolve(context.Background(), nil, f.user, nil)
	require.NoError(t, err)
	assert.True(t, es.Allows("document", "read"))

	writer := f.addRole(nil)
	f.assign(writer)
	f.bind(writer, "document", "write", model.EffectAllow)

	es, err = f.resolver().Resolve(context.Background(), nil, f.user, nil)
	require.NoError(t, err)
	assert.True(t, es.Allows("document", "read"))
	assert.True(t, es.Allows("document", "write"))
}

func TestResolve_CyclicHierarchyTerminates(t *testing.T) {
	f := newFixture()
	a := f.addRole(nil)
	b := f.addRole(&a)
	// Corrupt the stored graph into a cycle.
	f.roles.roles[a].ParentRoleID = &b
	f.assign(b)
	f.bind(a, "document", "read", model.EffectAllow)

	es, err := f.resolver().Resolve(context.Background(), nil, f.user, nil)
	require.NoError(t, err)
	assert.True(t, es.Allows("document", "read"))
	assert.Len(t, es.RoleIDs, 2)
}

func TestResolve_DepthBound(t *testing.T) {
	f := newFixture()
	var parent *uuid.UUID
	var leaf uuid.UUID
	for i := 0; i <= db.MaxRoleDepth+1; i++ {
		leaf = f.addRole(parent)
		p := leaf
		parent = &p
	}
	f.assign(leaf)

	_, err := f.resolver().Resolve(context.Background(), nil, f.user, nil)
	assert.ErrorIs(t, err, model.ErrRoleDepthExceeded)
}

func TestResolve_UserNotFound(t *testing.T) {
	f := newFixture()
	_, err := f.resolver().Resolve(context.Background(), nil, uuid.New(), nil)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestResolve_InactiveUser(t *testing.T) {
	f := newFixture()
	f.users.users[f.user].Status = model.UserStatusSuspended

	_, err := f.resolver().Resolve(context.Background(), nil, f.user, nil)
	assert.ErrorIs(t, err, ErrUserInactive)
}

func TestResolve_VanishedRoleIgnored(t *testing.T) {
	f := newFixture()
	role := f.addRole(nil)
	f.assign(role)
	f.assign(uuid.New()) // assignment to a role that no longer exists
	f.bind(role, "document", "read", model.EffectAllow)

	es, err := f.resolver().Resolve(context.Background(), nil, f.user, nil)
	require.NoError(t, err)
	assert.True(t, es.Allows("document", "read"))
}

func TestEffectiveSet_DelimiterInFields(t *testing.T) {
	es := NewEffectiveSet(nil, []model.Permission{
		{ResourceType: "a", Action: "b:c", Effect: model.EffectAllow},
	})

	assert.True(t, es.Allows("a", "b:c"))
	// The same bytes split differently are a different pair.
	assert.False(t, es.Allows("a:b", "c"))

	_, reason := es.Decide("a:b", "c")
	assert.Equal(t, ReasonNoPermission, reason)
}
