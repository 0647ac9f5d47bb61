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

// RoleAssignment grants a role to a user, optionally scoped to a single
// resource and optionally expiring. The (user, role, resource_type,
// resource_id) four-tuple appears at most once.
type RoleAssignment struct {
	bun.BaseModel `bun:"table:role_assignment,alias:ra"`

	ID           uuid.UUID  `bun:"id,pk"`
	UserID       uuid.UUID  `bun:"user_id,type:uuid,notnull"`
	User         *User      `bun:"rel:belongs-to,join:user_id=id"`
	RoleID       uuid.UUID  `bun:"role_id,type:uuid,notnull"`
	Role         *Role      `bun:"rel:belongs-to,join:role_id=id"`
	ResourceType *string    `bun:"resource_type,nullzero"`
	ResourceID   *string    `bun:"resource_id,nullzero"`
	ExpiresAt    *time.Time `bun:"expires_at,nullzero"`
	GrantedBy    uuid.UUID  `bun:"granted_by,type:uuid,notnull"`
	GrantedAt    time.Time  `bun:"granted_at,nullzero,notnull,default:current_timestamp"`
}

var _ bun.BeforeAppendModelHook = (*RoleAssignment)(nil)

// BeforeAppendModel is a hook that is called before the model is appended to the query
func (ra *RoleAssignment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok {
		ra.GrantedAt = db.GetCurTime()
	}
	return nil
}

// RoleAssignmentCreateInput input parameters for Grant method
type RoleAssignmentCreateInput struct {
	UserID       uuid.UUID
	RoleID       uuid.UUID
	ResourceType *string
	ResourceID   *string
	ExpiresAt    *time.Time
	GrantedBy    uuid.UUID
}

// RoleAssignmentScope narrows resolution to a single resource. Global
// assignments (nil resource) always match.
type RoleAssignmentScope struct {
	ResourceType string
	ResourceID   string
}

// RoleAssignmentDAO is an interface for interacting with the RoleAssignment model
type RoleAssignmentDAO interface {
	// Grant inserts a new assignment after checking that user and role
	// belong to the same organization.
	Grant(ctx context.Context, tx *db.Tx, input RoleAssignmentCreateInput) (*RoleAssignment, error)
	Revoke(ctx context.Context, tx *db.Tx, assignmentID uuid.UUID) (*RoleAssignment, error)
	// RevokeByRole removes an assignment identified by (user, role) with
	// a global scope.
	RevokeByRole(ctx context.Context, tx *db.Tx, userID, roleID uuid.UUID) error
	// GetActiveForUser returns non-expired assignments for the user that
	// are either global or match the given scope.
	GetActiveForUser(ctx context.Context, tx *db.Tx, userID uuid.UUID, scope *RoleAssignmentScope) ([]RoleAssignment, error)
}

// RoleAssignmentSQLDAO is an implementation of the RoleAssignmentDAO interface
type RoleAssignmentSQLDAO struct {
	dbSession *db.Session
}

// NewRoleAssignmentDAO creates a new RoleAssignmentDAO
func NewRoleAssignmentDAO(dbSession *db.Session) RoleAssignmentDAO {
	return RoleAssignmentSQLDAO{dbSession: dbSession}
}

// Grant inserts a new assignment. The user and role must live in the
// same organization as the tenant in context; anything else is a
// tenancy violation surfaced as a hard error.
func (rasd RoleAssignmentSQLDAO) Grant(ctx context.Context, tx *db.Tx, input RoleAssignmentCreateInput) (*RoleAssignment, error) {
	userDAO := NewUserDAO(rasd.dbSession)
	roleDAO := NewRoleDAO(rasd.dbSession)

	u, err := userDAO.Get(ctx, tx, input.UserID)
	if err != nil {
		return nil, err
	}
	r, err := roleDAO.Get(ctx, tx, input.RoleID)
	if err != nil {
		return nil, err
	}
	if u.OrganizationID != r.OrganizationID {
		return nil, db.ErrTenancyViolation
	}

	ra := &RoleAssignment{
		ID:           uuid.New(),
		UserID:       input.UserID,
		RoleID:       input.RoleID,
		ResourceType: input.ResourceType,
		ResourceID:   input.ResourceID,
		ExpiresAt:    input.ExpiresAt,
		GrantedBy:    input.GrantedBy,
	}
	if _, err := db.GetIDB(tx, rasd.dbSession).NewInsert().Model(ra).Exec(ctx); err != nil {
		return nil, err
	}
	return ra, nil
}

// Revoke removes an assignment by ID and returns the removed row so the
// caller can target its cache invalidation.
func (rasd RoleAssignmentSQLDAO) Revoke(ctx context.Context, tx *db.Tx, assignmentID uuid.UUID) (*RoleAssignment, error) {
	ra := &RoleAssignment{}
	err := db.GetIDB(tx, rasd.dbSession).NewSelect().Model(ra).
		Where("ra.id = ?", assignmentID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrDoesNotExist
	}
	if err != nil {
		return nil, err
	}

	// Tenancy is checked through the owning user.
	if _, err := NewUserDAO(rasd.dbSession).Get(ctx, tx, ra.UserID); err != nil {
		return nil, err
	}

	_, err = db.GetIDB(tx, rasd.dbSession).NewDelete().Model((*RoleAssignment)(nil)).Where("id = ?", assignmentID).Exec(ctx)
	if err != nil {
		return nil, err
	}
	return ra, nil
}

// RevokeByRole removes a globally-scoped (user, role) assignment.
func (rasd RoleAssignmentSQLDAO) RevokeByRole(ctx context.Context, tx *db.Tx, userID, roleID uuid.UUID) error {
	if _, err := NewUserDAO(rasd.dbSession).Get(ctx, tx, userID); err != nil {
		return err
	}
	res, err := db.GetIDB(tx, rasd.dbSession).NewDelete().Model((*RoleAssignment)(nil)).
		Where("user_id = ?", userID).
		Where("role_id = ?", roleID).
		Where("resource_type IS NULL").
		Where("resource_id IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return db.ErrDoesNotExist
	}
	return nil
}

// GetActiveForUser returns non-expired assignments that are either
// global or match the query scope. Expired assignments are silently
// ignored.
func (rasd RoleAssignmentSQLDAO) GetActiveForUser(ctx context.Context, tx *db.Tx, userID uuid.UUID, scope *RoleAssignmentScope) ([]RoleAssignment, error) {
	if _, err := db.TenantFromContext(ctx); err != nil {
		return nil, err
	}

	var assignments []RoleAssignment
	q := db.GetIDB(tx, rasd.dbSession).NewSelect().Model(&assignments).
		Where("ra.user_id = ?", userID).
		Where("ra.expires_at IS NULL OR ra.expires_at > ?", db.GetCurTime())

	if scope != nil {
		q = q.Where("(ra.resource_type IS NULL AND ra.resource_id IS NULL) OR (ra.resource_type = ? AND ra.resource_id = ?)",
			scope.ResourceType, scope.ResourceID)
	} else {
		q = q.Where("ra.resource_type IS NULL").Where("ra.resource_id IS NULL")
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return assignments, nil
}
