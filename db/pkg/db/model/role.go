package model

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	"github.com/bl-hori/auth-platform-sub003/db/pkg/db"
)

var (
	// ErrRoleCycle is returned when a parent change would create a cycle.
	ErrRoleCycle = errors.New("role parent chain would form a cycle")
	// ErrRoleDepthExceeded is returned when the inheritance chain would
	// exceed db.MaxRoleDepth.
	ErrRoleDepthExceeded = errors.New("role depth limit exceeded")
	// ErrRoleHasChildren is returned when deleting a role that other
	// roles inherit from.
	ErrRoleHasChildren = errors.New("role has child roles")
	// ErrRoleIsSystem is returned when deleting a deletion-protected role.
	ErrRoleIsSystem = errors.New("system roles cannot be deleted")
)

// Role is a named grant scope inside an organization, optionally
// inheriting from a parent role in the same organization.
type Role struct {
	bun.BaseModel `bun:"table:role,alias:r"`

	ID             uuid.UUID  `bun:"id,pk"`
	OrganizationID uuid.UUID  `bun:"organization_id,type:uuid,notnull"`
	Name           string     `bun:"name,notnull"`
	ParentRoleID   *uuid.UUID `bun:"parent_role_id,type:uuid,nullzero"`
	Parent         *Role      `bun:"rel:belongs-to,join:parent_role_id=id"`
	Depth          int        `bun:"depth,notnull,default:0"`
	IsSystem       bool       `bun:"is_system,notnull,default:false"`
	Created        time.Time  `bun:"created,nullzero,notnull,default:current_timestamp"`
	Updated        time.Time  `bun:"updated,nullzero,notnull,default:current_timestamp"`
}

var _ bun.BeforeAppendModelHook = (*Role)(nil)

// BeforeAppendModel is a hook that is called before the model is appended to the query
func (r *Role) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery:
		r.Created = db.GetCurTime()
		r.Updated = db.GetCurTime()
	case *bun.UpdateQuery:
		r.Updated = db.GetCurTime()
	}
	return nil
}

// RoleCreateInput input parameters for Create method
type RoleCreateInput struct {
	OrganizationID uuid.UUID
	Name           string
	ParentRoleID   *uuid.UUID
	IsSystem       bool
}

// RoleUpdateInput input parameters for Update method
type RoleUpdateInput struct {
	RoleID       uuid.UUID
	Name         *string
	ParentRoleID *uuid.UUID
}

// RoleDAO is an interface for interacting with the Role model
type RoleDAO interface {
	Create(ctx context.Context, tx *db.Tx, input RoleCreateInput) (*Role, error)
	Get(ctx context.Context, tx *db.Tx, roleID uuid.UUID) (*Role, error)
	GetAll(ctx context.Context, tx *db.Tx, organizationID uuid.UUID) ([]Role, error)
	GetByIDs(ctx context.Context, tx *db.Tx, roleIDs []uuid.UUID) ([]Role, error)
	Update(ctx context.Context, tx *db.Tx, input RoleUpdateInput) (*Role, error)
	Delete(ctx context.Context, tx *db.Tx, roleID uuid.UUID) error
}

// RoleSQLDAO is an implementation of the RoleDAO interface
type RoleSQLDAO struct {
	dbSession *db.Session
}

// NewRoleDAO creates a new RoleDAO
func NewRoleDAO(dbSession *db.Session) RoleDAO {
	return RoleSQLDAO{dbSession: dbSession}
}

// resolveDepth validates a prospective parent chain and returns the depth
// of the child. The chain must stay inside one organization, contain no
// cycle, and fit within db.MaxRoleDepth.
func (rsd RoleSQLDAO) resolveDepth(ctx context.Context, tx *db.Tx, organizationID uuid.UUID, roleID uuid.UUID, parentID *uuid.UUID) (int, error) {
	if parentID == nil {
		return 0, nil
	}

	visited := map[uuid.UUID]bool{roleID: true}
	depth := 0
	current := parentID
	for current != nil {
		if visited[*current] {
			return 0, ErrRoleCycle
		}
		visited[*current] = true

		parent, err := rsd.Get(ctx, tx, *current)
		if err != nil {
			return 0, err
		}
		if parent.OrganizationID != organizationID {
			return 0, db.ErrTenancyViolation
		}

		depth++
		if depth > db.MaxRoleDepth {
			return 0, ErrRoleDepthExceeded
		}
		current = parent.ParentRoleID
	}
	return depth, nil
}

// Create creates a new Role from the given parameters
func (rsd RoleSQLDAO) Create(ctx context.Context, tx *db.Tx, input RoleCreateInput) (*Role, error) {
	if err := db.CheckTenant(ctx, input.OrganizationID); err != nil {
		return nil, err
	}

	id := uuid.New()
	depth, err := rsd.resolveDepth(ctx, tx, input.OrganizationID, id, input.ParentRoleID)
	if err != nil {
		return nil, err
	}

	r := &Role{
		ID:             id,
		OrganizationID: input.OrganizationID,
		Name:           input.Name,
		ParentRoleID:   input.ParentRoleID,
		Depth:          depth,
		IsSystem:       input.IsSystem,
	}
	if _, err := db.GetIDB(tx, rsd.dbSession).NewInsert().Model(r).Exec(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns a Role by ID
// returns db.ErrDoesNotExist error if the record is not found
func (rsd RoleSQLDAO) Get(ctx context.Context, tx *db.Tx, roleID uuid.UUID) (*Role, error) {
	r := &Role{}
	err := db.GetIDB(tx, rsd.dbSession).NewSelect().Model(r).Where("r.id = ?", roleID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrDoesNotExist
	}
	if err != nil {
		return nil, err
	}
	if err := db.CheckTenant(ctx, r.OrganizationID); err != nil {
		return nil, err
	}
	return r, nil
}

// GetAll returns all roles of an organization
func (rsd RoleSQLDAO) GetAll(ctx context.Context, tx *db.Tx, organizationID uuid.UUID) ([]Role, error) {
	if err := db.CheckTenant(ctx, organizationID); err != nil {
		return nil, err
	}
	var roles []Role
	err := db.GetIDB(tx, rsd.dbSession).NewSelect().Model(&roles).
		Where("r.organization_id = ?", organizationID).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return roles, nil
}

// GetByIDs returns roles matching the given IDs within the tenant.
func (rsd RoleSQLDAO) GetByIDs(ctx context.Context, tx *db.Tx, roleIDs []uuid.UUID) ([]Role, error) {
	tenant, err := db.TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if len(roleIDs) == 0 {
		return nil, nil
	}
	var roles []Role
	err = db.GetIDB(tx, rsd.dbSession).NewSelect().Model(&roles).
		Where("r.organization_id = ?", tenant).
		Where("r.id IN (?)", bun.In(roleIDs)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return roles, nil
}

// Update updates role name and/or parent. Parent changes revalidate the
// chain: the new parent must not be a descendant of the role.
func (rsd RoleSQLDAO) Update(ctx context.Context, tx *db.Tx, input RoleUpdateInput) (*Role, error) {
	r, err := rsd.Get(ctx, tx, input.RoleID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		r.Name = *input.Name
	}
	if input.ParentRoleID != nil {
		depth, derr := rsd.resolveDepth(ctx, tx, r.OrganizationID, r.ID, input.ParentRoleID)
		if derr != nil {
			return nil, derr
		}
		r.ParentRoleID = input.ParentRoleID
		r.Depth = depth
	}

	_, err = db.GetIDB(tx, rsd.dbSession).NewUpdate().Model(r).WherePK().Exec(ctx)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Delete removes a Role. Roles with children or marked as system are
// protected.
func (rsd RoleSQLDAO) Delete(ctx context.Context, tx *db.Tx, roleID uuid.UUID) error {
	r, err := rsd.Get(ctx, tx, roleID)
	if err != nil {
		return err
	}
	if r.IsSystem {
		return ErrRoleIsSystem
	}

	children, err := db.GetIDB(tx, rsd.dbSession).NewSelect().Model((*Role)(nil)).
		Where("r.parent_role_id = ?", roleID).
		Count(ctx)
	if err != nil {
		return err
	}
	if children > 0 {
		return ErrRoleHasChildren
	}

	_, err = db.GetIDB(tx, rsd.dbSession).NewDelete().Model((*Role)(nil)).Where("id = ?", roleID).Exec(ctx)
	return err
}
