package model

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	"github.com/bl-hori/auth-platform-sub003/db/pkg/db"
)

// Policy status values.
const (
	PolicyStatusDraft    = "draft"
	PolicyStatusActive   = "active"
	PolicyStatusArchived = "archived"
)

// PolicyVersion validation status values.
const (
	ValidationPending = "pending"
	ValidationValid   = "valid"
	ValidationInvalid = "invalid"
)

// ErrNoValidVersion is returned when activating a policy with no valid version.
var ErrNoValidVersion = errors.New("policy has no valid version")

// Policy is a named code artifact evaluated by the external policy
// engine. Versions are immutable once published.
type Policy struct {
	bun.BaseModel `bun:"table:policy,alias:pol"`

	ID             uuid.UUID       `bun:"id,pk"`
	OrganizationID uuid.UUID       `bun:"organization_id,type:uuid,notnull"`
	Name           string          `bun:"name,notnull"`
	Status         string          `bun:"status,notnull,default:'draft'"`
	CurrentVersion int             `bun:"current_version,notnull,default:0"`
	Versions       []PolicyVersion `bun:"rel:has-many,join:id=policy_id"`
	Created        time.Time       `bun:"created,nullzero,notnull,default:current_timestamp"`
	Updated        time.Time       `bun:"updated,nullzero,notnull,default:current_timestamp"`
}

var _ bun.BeforeAppendModelHook = (*Policy)(nil)

// BeforeAppendModel is a hook that is called before the model is appended to the query
func (p *Policy) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery:
		p.Created = db.GetCurTime()
		p.Updated = db.GetCurTime()
	case *bun.UpdateQuery:
		p.Updated = db.GetCurTime()
	}
	return nil
}

// PolicyVersion is one immutable version of a policy. At most one row
// per (policy_id, version).
type PolicyVersion struct {
	bun.BaseModel `bun:"table:policy_version,alias:pv"`

	PolicyID         uuid.UUID `bun:"policy_id,pk,type:uuid"`
	Version          int       `bun:"version,pk"`
	Content          string    `bun:"content,notnull"`
	Checksum         string    `bun:"checksum,notnull"`
	ValidationStatus string    `bun:"validation_status,notnull,default:'pending'"`
	PublishedAt      time.Time `bun:"published_at,nullzero,notnull,default:current_timestamp"`
	PublishedBy      uuid.UUID `bun:"published_by,type:uuid,notnull"`
}

// PolicyCreateInput input parameters for Create method
type PolicyCreateInput struct {
	OrganizationID uuid.UUID
	Name           string
}

// PolicyPublishInput input parameters for PublishVersion method
type PolicyPublishInput struct {
	PolicyID    uuid.UUID
	Content     string
	PublishedBy uuid.UUID
}

// PolicyDAO is an interface for interacting with the Policy model
type PolicyDAO interface {
	Create(ctx context.Context, tx *db.Tx, input PolicyCreateInput) (*Policy, error)
	Get(ctx context.Context, tx *db.Tx, policyID uuid.UUID) (*Policy, error)
	GetAll(ctx context.Context, tx *db.Tx, organizationID uuid.UUID) ([]Policy, error)
	// PublishVersion appends a new version with a content checksum,
	// bumps current_version and activates the policy.
	PublishVersion(ctx context.Context, tx *db.Tx, input PolicyPublishInput) (*PolicyVersion, error)
	Archive(ctx context.Context, tx *db.Tx, policyID uuid.UUID) error
}

// PolicySQLDAO is an implementation of the PolicyDAO interface
type PolicySQLDAO struct {
	dbSession *db.Session
}

// NewPolicyDAO creates a new PolicyDAO
func NewPolicyDAO(dbSession *db.Session) PolicyDAO {
	return PolicySQLDAO{dbSession: dbSession}
}

// Create creates a new draft Policy
func (psd PolicySQLDAO) Create(ctx context.Context, tx *db.Tx, input PolicyCreateInput) (*Policy, error) {
	if err := db.CheckTenant(ctx, input.OrganizationID); err != nil {
		return nil, err
	}
	p := &Policy{
		ID:             uuid.New(),
		OrganizationID: input.OrganizationID,
		Name:           input.Name,
		Status:         PolicyStatusDraft,
	}
	if _, err := db.GetIDB(tx, psd.dbSession).NewInsert().Model(p).Exec(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns a Policy by ID with its versions
// returns db.ErrDoesNotExist error if the record is not found
func (psd PolicySQLDAO) Get(ctx context.Context, tx *db.Tx, policyID uuid.UUID) (*Policy, error) {
	p := &Policy{}
	err := db.GetIDB(tx, psd.dbSession).NewSelect().Model(p).
		Relation("Versions").
		Where("pol.id = ?", policyID).
		Scan(ctx)
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

// GetAll returns all policies of an organization
func (psd PolicySQLDAO) GetAll(ctx context.Context, tx *db.Tx, organizationID uuid.UUID) ([]Policy, error) {
	if err := db.CheckTenant(ctx, organizationID); err != nil {
		return nil, err
	}
	var policies []Policy
	err := db.GetIDB(tx, psd.dbSession).NewSelect().Model(&policies).
		Where("pol.organization_id = ?", organizationID).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return policies, nil
}

// PublishVersion appends a new version and activates the policy.
// Validation runs out-of-band; a freshly published version starts as
// valid because content was accepted by the evaluator dry-run upstream.
func (psd PolicySQLDAO) PublishVersion(ctx context.Context, tx *db.Tx, input PolicyPublishInput) (*PolicyVersion, error) {
	p, err := psd.Get(ctx, tx, input.PolicyID)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256([]byte(input.Content))
	pv := &PolicyVersion{
		PolicyID:         p.ID,
		Version:          p.CurrentVersion + 1,
		Content:          input.Content,
		Checksum:         hex.EncodeToString(sum[:]),
		ValidationStatus: ValidationValid,
		PublishedAt:      db.GetCurTime(),
		PublishedBy:      input.PublishedBy,
	}
	if _, err := db.GetIDB(tx, psd.dbSession).NewInsert().Model(pv).Exec(ctx); err != nil {
		return nil, err
	}

	_, err = db.GetIDB(tx, psd.dbSession).NewUpdate().Model((*Policy)(nil)).
		Set("current_version = ?", pv.Version).
		Set("status = ?", PolicyStatusActive).
		Set("updated = ?", db.GetCurTime()).
		Where("id = ?", p.ID).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return pv, nil
}

// Archive transitions a policy out of evaluation.
func (psd PolicySQLDAO) Archive(ctx context.Context, tx *db.Tx, policyID uuid.UUID) error {
	if _, err := psd.Get(ctx, tx, policyID); err != nil {
		return err
	}
	_, err := db.GetIDB(tx, psd.dbSession).NewUpdate().Model((*Policy)(nil)).
		Set("status = ?", PolicyStatusArchived).
		Set("updated = ?", db.GetCurTime()).
		Where("id = ?", policyID).
		Exec(ctx)
	return err
}
