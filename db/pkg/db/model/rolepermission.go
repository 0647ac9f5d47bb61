package model

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/bl-hori/auth-platform-sub003/db/pkg/db"
)

// RolePermission binds a permission to a role. Role and permission must
// belong to the same organization.
type RolePermission struct {
	bun.BaseModel `bun:"table:role_permission,alias:rp"`

	RoleID       uuid.UUID   `bun:"role_id,pk,type:uuid"`
	PermissionID uuid.UUID   `bun:"permission_id,pk,type:uuid"`
	Role         *Role       `bun:"rel:belongs-to,join:role_id=id"`
	Permission   *Permission `bun:"rel:belongs-to,join:permission_id=id"`
}

// RolePermissionDAO is an interface for interacting with the RolePermission model
type RolePermissionDAO interface {
	Bind(ctx context.Context, tx *db.Tx, roleID, permissionID uuid.UUID) error
	Unbind(ctx context.Context, tx *db.Tx, roleID, permissionID uuid.UUID) error
	// GetPermissionsForRoles returns the permissions bound to any of the
	// given roles. Used by the role resolver after the hierarchy walk.
	GetPermissionsForRoles(ctx context.Context, tx *db.Tx, roleIDs []uuid.UUID) ([]Permission, error)
}

// RolePermissionSQLDAO is an implementation of the RolePermissionDAO interface
type RolePermissionSQLDAO struct {
	dbSession *db.Session
}

// NewRolePermissionDAO creates a new RolePermissionDAO
func NewRolePermissionDAO(dbSession *db.Session) RolePermissionDAO {
	return RolePermissionSQLDAO{dbSession: dbSession}
}

// Bind attaches a permission to a role within one organization.
func (rpsd RolePermissionSQLDAO) Bind(ctx context.Context, tx *db.Tx, roleID, permissionID uuid.UUID) error {
	r, err := NewRoleDAO(rpsd.dbSession).Get(ctx, tx, roleID)
	if err != nil {
		return err
	}
	p, err := NewPermissionDAO(rpsd.dbSession).Get(ctx, tx, permissionID)
	if err != nil {
		return err
	}
	if r.OrganizationID != p.OrganizationID {
		return db.ErrTenancyViolation
	}

	rp := &RolePermission{RoleID: roleID, PermissionID: permissionID}
	_, err = db.GetIDB(tx, rpsd.dbSession).NewInsert().Model(rp).On("CONFLICT DO NOTHING").Exec(ctx)
	return err
}

// Unbind detaches a permission from a role.
func (rpsd RolePermissionSQLDAO) Unbind(ctx context.Context, tx *db.Tx, roleID, permissionID uuid.UUID) error {
	if _, err := NewRoleDAO(rpsd.dbSession).Get(ctx, tx, roleID); err != nil {
		return err
	}
	res, err := db.GetIDB(tx, rpsd.dbSession).NewDelete().Model((*RolePermission)(nil)).
		Where("role_id = ?", roleID).
		Where("permission_id = ?", permissionID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return db.ErrDoesNotExist
	}
	return nil
}

// GetPermissionsForRoles returns the permissions bound to any of the
// given roles, scoped to the tenant in context.
func (rpsd RolePermissionSQLDAO) GetPermissionsForRoles(ctx context.Context, tx *db.Tx, roleIDs []uuid.UUID) ([]Permission, error) {
	tenant, err := db.TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if len(roleIDs) == 0 {
		return nil, nil
	}

	var perms []Permission
	err = db.GetIDB(tx, rpsd.dbSession).NewSelect().Model(&perms).
		Join("JOIN role_permission AS rp ON rp.permission_id = p.id").
		Where("rp.role_id IN (?)", bun.In(roleIDs)).
		Where("p.organization_id = ?", tenant).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return perms, nil
}
