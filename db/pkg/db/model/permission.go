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

// Permission effect values.
const (
	EffectAllow = "allow"
	EffectDeny  = "deny"
)

// Permission is a (resourceType, action, effect) triple scoped to an
// organization. (organization_id, name) and (organization_id,
// resource_type, action) are unique.
type Permission struct {
	bun.BaseModel `bun:"table:permission,alias:p"`

	ID             uuid.UUID `bun:"id,pk"`
	OrganizationID uuid.UUID `bun:"organization_id,type:uuid,notnull"`
	Name           string    `bun:"name,notnull"`
	ResourceType   string    `bun:"resource_type,notnull"`
	Action         string    `bun:"action,notnull"`
	Effect         string    `bun:"effect,notnull,default:'allow'"`
	Created        time.Time `bun:"created,nullzero,notnull,default:current_timestamp"`
}

var _ bun.BeforeAppendModelHook = (*Permission)(nil)

// BeforeAppendModel is a hook that is called before the model is appended to the query
func (p *Permission) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok {
		p.Created = db.GetCurTime()
	}
	return nil
}

// PermissionCreateInput input parameters for Create method
type PermissionCreateInput struct {
	OrganizationID uuid.UUID
	Name           string
	ResourceType   string
	Action         string
	Effect         string
}

// PermissionDAO is an interface for interacting with the Permission model
type PermissionDAO interface {
	Create(ctx context.Context, tx *db.Tx, input PermissionCreateInput) (*Permission, error)
	Get(ctx context.Context, tx *db.Tx, permissionID uuid.UUID) (*Permission, error)
	GetAll(ctx context.Context, tx *db.Tx, organizationID uuid.UUID) ([]Permission, error)
	Delete(ctx context.Context, tx *db.Tx, permissionID uuid.UUID) error
}

// PermissionSQLDAO is an implementation of the PermissionDAO interface
type PermissionSQLDAO struct {
	dbSession *db.Session
}

// NewPermissionDAO creates a new PermissionDAO
func NewPermissionDAO(dbSession *db.Session) PermissionDAO {
	return PermissionSQLDAO{dbSession: dbSession}
}

// Create creates a new Permission from the given parameters
func (psd PermissionSQLDAO) Create(ctx context.Context, tx *db.Tx, input PermissionCreateInput) (*Permission, error) {
	if err := db.CheckTenant(ctx, input.OrganizationID); err != nil {
		return nil, err
	}
	if input.Effect != EffectAllow && input.Effect != EffectDeny {
		return nil, errors.Errorf("invalid permission effect %q", input.Effect)
	}
	p := &Permission{
		ID:             uuid.New(),
		OrganizationID: input.OrganizationID,
		Name:           input.Name,
		ResourceType:   input.ResourceType,
		Action:         input.Action,
		Effect:         input.Effect,
	}
	if _, err := db.GetIDB(tx, psd.dbSession).NewInsert().Model(p).Exec(ctx); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, errors.Wrap(db.ErrAlreadyExists, "permission name or (resource_type, action) already taken")
		}
		return nil, err
	}
	return p, nil
}

// Get returns a Permission by ID
// returns db.ErrDoesNotExist error if the record is not found
func (psd PermissionSQLDAO) Get(ctx context.Context, tx *db.Tx, permissionID uuid.UUID) (*Permission, error) {
	p := &Permission{}
	err := db.GetIDB(tx, psd.dbSession).NewSelect().Model(p).Where("p.id = ?", permissionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrDoesNotExist
	}
	if err != nil {
		return nil, err
	}
	if err := db.CheckTenant(ctx, p.OrganizationID); err != nil {
		return nil, err
	}
	return p, nil
}

// GetAll returns all permissions of an organization
func (psd PermissionSQLDAO) GetAll(ctx context.Context, tx *db.Tx, organizationID uuid.UUID) ([]Permission, error) {
	if err := db.CheckTenant(ctx, organizationID); err != nil {
		return nil, err
	}
	var perms []Permission
	err := db.GetIDB(tx, psd.dbSession).NewSelect().Model(&perms).
		Where("p.organization_id = ?", organizationID).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return perms, nil
}

// Delete removes a Permission and its role bindings (cascade).
func (psd PermissionSQLDAO) Delete(ctx context.Context, tx *db.Tx, permissionID uuid.UUID) error {
	if _, err := psd.Get(ctx, tx, permissionID); err != nil {
		return err
	}
	_, err := db.GetIDB(tx, psd.dbSession).NewDelete().Model((*Permission)(nil)).Where("id = ?", permissionID).Exec(ctx)
	return err
}
