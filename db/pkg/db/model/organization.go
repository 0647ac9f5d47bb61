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

// Organization status values. Deleted is terminal (soft delete).
const (
	OrgStatusActive    = "active"
	OrgStatusSuspended = "suspended"
	OrgStatusDeleted   = "deleted"
)

// Organization is the tenant root. Every tenant-scoped row references
// exactly one organization.
type Organization struct {
	bun.BaseModel `bun:"table:organization,alias:org"`

	ID      uuid.UUID `bun:"id,pk"`
	Name    string    `bun:"name,notnull,unique"`
	Status  string    `bun:"status,notnull,default:'active'"`
	Created time.Time `bun:"created,nullzero,notnull,default:current_timestamp"`
	Updated time.Time `bun:"updated,nullzero,notnull,default:current_timestamp"`
}

var _ bun.BeforeAppendModelHook = (*Organization)(nil)

// BeforeAppendModel is a hook that is called before the model is appended to the query
func (o *Organization) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery:
		o.Created = db.GetCurTime()
		o.Updated = db.GetCurTime()
	case *bun.UpdateQuery:
		o.Updated = db.GetCurTime()
	}
	return nil
}

// OrganizationCreateInput input parameters for Create method
type OrganizationCreateInput struct {
	Name string
}

// OrganizationDAO is an interface for interacting with the Organization model
type OrganizationDAO interface {
	Create(ctx context.Context, tx *db.Tx, input OrganizationCreateInput) (*Organization, error)
	Get(ctx context.Context, tx *db.Tx, organizationID uuid.UUID) (*Organization, error)
	GetByName(ctx context.Context, tx *db.Tx, name string) (*Organization, error)
	SetStatus(ctx context.Context, tx *db.Tx, organizationID uuid.UUID, status string) error
}

// OrganizationSQLDAO is an implementation of the OrganizationDAO interface
type OrganizationSQLDAO struct {
	dbSession *db.Session
}

// NewOrganizationDAO creates a new OrganizationDAO
func NewOrganizationDAO(dbSession *db.Session) OrganizationDAO {
	return OrganizationSQLDAO{dbSession: dbSession}
}

// Create creates a new Organization from the given parameters
func (osd OrganizationSQLDAO) Create(ctx context.Context, tx *db.Tx, input OrganizationCreateInput) (*Organization, error) {
	org := &Organization{
		ID:     uuid.New(),
		Name:   input.Name,
		Status: OrgStatusActive,
	}

	_, err := db.GetIDB(tx, osd.dbSession).NewInsert().Model(org).Exec(ctx)
	if err != nil {
		return nil, err
	}
	return org, nil
}

// Get returns an Organization by ID
// returns db.ErrDoesNotExist error if the record is not found
func (osd OrganizationSQLDAO) Get(ctx context.Context, tx *db.Tx, organizationID uuid.UUID) (*Organization, error) {
	org := &Organization{}
	err := db.GetIDB(tx, osd.dbSession).NewSelect().Model(org).Where("org.id = ?", organizationID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrDoesNotExist
	}
	if err != nil {
		return nil, err
	}
	return org, nil
}

// GetByName returns an Organization by its globally-unique name
func (osd OrganizationSQLDAO) GetByName(ctx context.Context, tx *db.Tx, name string) (*Organization, error) {
	org := &Organization{}
	err := db.GetIDB(tx, osd.dbSession).NewSelect().Model(org).Where("org.name = ?", name).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrDoesNotExist
	}
	if err != nil {
		return nil, err
	}
	return org, nil
}

// SetStatus transitions the organization lifecycle. Deleted is terminal.
func (osd OrganizationSQLDAO) SetStatus(ctx context.Context, tx *db.Tx, organizationID uuid.UUID, status string) error {
	current, err := osd.Get(ctx, tx, organizationID)
	if err != nil {
		return err
	}
	if current.Status == OrgStatusDeleted {
		return errors.Wrap(db.ErrDoesNotExist, "organization is deleted")
	}
	_, err = db.GetIDB(tx, osd.dbSession).NewUpdate().Model((*Organization)(nil)).
		Set("status = ?", status).
		Set("updated = ?", db.GetCurTime()).
		Where("id = ?", organizationID).
		Exec(ctx)
	return err
}
