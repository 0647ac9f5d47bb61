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

// User status values.
const (
	UserStatusActive    = "active"
	UserStatusInactive  = "inactive"
	UserStatusSuspended = "suspended"
	UserStatusDeleted   = "deleted"
)

// User is an authenticated subject scoped to exactly one organization.
// (organization_id, email) and external_subject_id are unique.
type User struct {
	bun.BaseModel `bun:"table:app_user,alias:u"`

	ID                uuid.UUID         `bun:"id,pk"`
	OrganizationID    uuid.UUID         `bun:"organization_id,type:uuid,notnull"`
	Organization      *Organization     `bun:"rel:belongs-to,join:organization_id=id"`
	Email             string            `bun:"email,notnull"`
	ExternalSubjectID *string           `bun:"external_subject_id,unique,nullzero"`
	Status            string            `bun:"status,notnull,default:'active'"`
	Attributes        map[string]string `bun:"attributes,type:jsonb"`
	Created           time.Time         `bun:"created,nullzero,notnull,default:current_timestamp"`
	Updated           time.Time         `bun:"updated,nullzero,notnull,default:current_timestamp"`
}

var _ bun.BeforeAppendModelHook = (*User)(nil)

// BeforeAppendModel is a hook that is called before the model is appended to the query
func (u *User) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery:
		u.Created = db.GetCurTime()
		u.Updated = db.GetCurTime()
	case *bun.UpdateQuery:
		u.Updated = db.GetCurTime()
	}
	return nil
}

// UserCreateInput input parameters for Create method
type UserCreateInput struct {
	OrganizationID    uuid.UUID
	Email             string
	ExternalSubjectID *string
	Attributes        map[string]string
}

// UserGetOrCreateInput input parameters for the JIT provisioning path.
// Lookup order: ExternalSubjectID, then Email within the organization.
type UserGetOrCreateInput struct {
	OrganizationID    uuid.UUID
	Email             string
	ExternalSubjectID string
}

// UserDAO is an interface for interacting with the User model
type UserDAO interface {
	Create(ctx context.Context, tx *db.Tx, input UserCreateInput) (*User, error)
	Get(ctx context.Context, tx *db.Tx, userID uuid.UUID) (*User, error)
	GetByExternalSubject(ctx context.Context, tx *db.Tx, externalSubjectID string) (*User, error)
	GetByEmail(ctx context.Context, tx *db.Tx, organizationID uuid.UUID, email string) (*User, error)
	// GetOrCreate resolves a user for a validated token, provisioning
	// just-in-time when no record matches. The created flag reports
	// whether a new row was inserted.
	GetOrCreate(ctx context.Context, tx *db.Tx, input UserGetOrCreateInput) (*User, bool, error)
	Delete(ctx context.Context, tx *db.Tx, userID uuid.UUID) error
}

// UserSQLDAO is an implementation of the UserDAO interface
type UserSQLDAO struct {
	dbSession *db.Session
}

// NewUserDAO creates a new UserDAO
func NewUserDAO(dbSession *db.Session) UserDAO {
	return UserSQLDAO{dbSession: dbSession}
}

// Create creates a new User from the given parameters
func (usd UserSQLDAO) Create(ctx context.Context, tx *db.Tx, input UserCreateInput) (*User, error) {
	if err := db.CheckTenant(ctx, input.OrganizationID); err != nil {
		return nil, err
	}
	u := &User{
		ID:                uuid.New(),
		OrganizationID:    input.OrganizationID,
		Email:             input.Email,
		ExternalSubjectID: input.ExternalSubjectID,
		Status:            UserStatusActive,
		Attributes:        input.Attributes,
	}
	_, err := db.GetIDB(tx, usd.dbSession).NewInsert().Model(u).Exec(ctx)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Get returns a User by ID
// returns db.ErrDoesNotExist error if the record is not found
func (usd UserSQLDAO) Get(ctx context.Context, tx *db.Tx, userID uuid.UUID) (*User, error) {
	u := &User{}
	err := db.GetIDB(tx, usd.dbSession).NewSelect().Model(u).Where("u.id = ?", userID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrDoesNotExist
	}
	if err != nil {
		return nil, err
	}
	if err := db.CheckTenant(ctx, u.OrganizationID); err != nil {
		return nil, err
	}
	return u, nil
}

// GetByExternalSubject returns a User by the identity provider subject claim.
// Subject lookup is cross-organization by design: the subject is globally
// unique and determines the tenant, not the other way around.
func (usd UserSQLDAO) GetByExternalSubject(ctx context.Context, tx *db.Tx, externalSubjectID string) (*User, error) {
	u := &User{}
	err := db.GetIDB(tx, usd.dbSession).NewSelect().Model(u).
		Where("u.external_subject_id = ?", externalSubjectID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrDoesNotExist
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetByEmail returns a User by (organization, email)
func (usd UserSQLDAO) GetByEmail(ctx context.Context, tx *db.Tx, organizationID uuid.UUID, email string) (*User, error) {
	u := &User{}
	err := db.GetIDB(tx, usd.dbSession).NewSelect().Model(u).
		Where("u.organization_id = ?", organizationID).
		Where("u.email = ?", email).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrDoesNotExist
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetOrCreate resolves a user for a validated token. Match by subject
// first; fall back to email and attach the subject (set at most once);
// otherwise provision a new active user. A token without a subject
// resolves purely by email and binds nothing.
func (usd UserSQLDAO) GetOrCreate(ctx context.Context, tx *db.Tx, input UserGetOrCreateInput) (*User, bool, error) {
	if input.ExternalSubjectID != "" {
		u, err := usd.GetByExternalSubject(ctx, tx, input.ExternalSubjectID)
		if err == nil {
			return u, false, nil
		}
		if !db.IsNotFound(err) {
			return nil, false, err
		}
	}

	if input.Email != "" {
		u, err := usd.GetByEmail(ctx, tx, input.OrganizationID, input.Email)
		if err == nil {
			if input.ExternalSubjectID == "" {
				return u, false, nil
			}
			if u.ExternalSubjectID != nil {
				// Subject already bound and it was not ours. Never rebind.
				return nil, false, errors.Wrap(db.ErrAlreadyExists, "user subject already set")
			}
			_, uerr := db.GetIDB(tx, usd.dbSession).NewUpdate().Model((*User)(nil)).
				Set("external_subject_id = ?", input.ExternalSubjectID).
				Set("updated = ?", db.GetCurTime()).
				Where("id = ?", u.ID).
				Where("external_subject_id IS NULL").
				Exec(ctx)
			if uerr != nil {
				return nil, false, uerr
			}
			u.ExternalSubjectID = &input.ExternalSubjectID
			return u, false, nil
		}
		if !db.IsNotFound(err) {
			return nil, false, err
		}
	}

	var subjectID *string
	if input.ExternalSubjectID != "" {
		subjectID = &input.ExternalSubjectID
	}
	created, err := usd.Create(ctx, tx, UserCreateInput{
		OrganizationID:    input.OrganizationID,
		Email:             input.Email,
		ExternalSubjectID: subjectID,
	})
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// Delete soft-deletes a User. Role assignments owned by the user are
// removed by the cascade on role_assignment.
func (usd UserSQLDAO) Delete(ctx context.Context, tx *db.Tx, userID uuid.UUID) error {
	u, err := usd.Get(ctx, tx, userID)
	if err != nil {
		return err
	}
	_, err = db.GetIDB(tx, usd.dbSession).NewUpdate().Model((*User)(nil)).
		Set("status = ?", UserStatusDeleted).
		Set("updated = ?", db.GetCurTime()).
		Where("id = ?", u.ID).
		Exec(ctx)
	return err
}
