package model

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/bl-hori/auth-platform-sub003/db/pkg/db"
)

// Audit decision values.
const (
	AuditDecisionAllow   = "allow"
	AuditDecisionDeny    = "deny"
	AuditDecisionError   = "error"
	AuditDecisionSuccess = "success"
	AuditDecisionFailure = "failure"
)

// Audit event types recorded by the service.
const (
	AuditEventAuthorization  = "authorization.decision"
	AuditEventAdminMutation  = "admin.mutation"
	AuditEventCredentialFail = "credential.failure"
)

// AuditRecord is an append-only decision/mutation record. The table is
// range-partitioned by month on the timestamp column; the primary key is
// (id, timestamp) so rows land in their partition. Rows are never
// updated.
type AuditRecord struct {
	bun.BaseModel `bun:"table:audit_record,alias:ar"`

	ID             uuid.UUID `bun:"id,pk"`
	OrganizationID uuid.UUID `bun:"organization_id,type:uuid,notnull"`
	EventType      string    `bun:"event_type,notnull"`
	Actor          string    `bun:"actor,notnull"`
	ResourceType   string    `bun:"resource_type"`
	ResourceID     string    `bun:"resource_id"`
	Action         string    `bun:"action"`
	Decision       string    `bun:"decision,notnull"`
	DecisionReason string    `bun:"decision_reason"`
	IPAddress      string    `bun:"ip_address"`
	UserAgent      string    `bun:"user_agent"`
	RequestDigest  string    `bun:"request_digest"`
	Timestamp      time.Time `bun:"timestamp,pk,notnull"`
}

// AuditRecordFilterInput filtering options for GetAll method
type AuditRecordFilterInput struct {
	OrganizationID uuid.UUID
	EventType      *string
	From           *time.Time
	To             *time.Time
	Limit          int
}

// AuditRecordDAO is an interface for interacting with the AuditRecord model
type AuditRecordDAO interface {
	// CreateBatch persists a batch of records in one insert. Called only
	// by the audit pipeline workers.
	CreateBatch(ctx context.Context, tx *db.Tx, records []AuditRecord) error
	GetAll(ctx context.Context, tx *db.Tx, filter AuditRecordFilterInput) ([]AuditRecord, error)
}

// AuditRecordSQLDAO is an implementation of the AuditRecordDAO interface
type AuditRecordSQLDAO struct {
	dbSession *db.Session
}

// NewAuditRecordDAO creates a new AuditRecordDAO
func NewAuditRecordDAO(dbSession *db.Session) AuditRecordDAO {
	return AuditRecordSQLDAO{dbSession: dbSession}
}

// CreateBatch persists records in one insert. The pipeline worker is the
// only caller and runs outside any request tenant, so no tenant check
// here; each record carries its organization id.
func (asd AuditRecordSQLDAO) CreateBatch(ctx context.Context, tx *db.Tx, records []AuditRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := db.GetIDB(tx, asd.dbSession).NewInsert().Model(&records).Exec(ctx)
	return err
}

// GetAll returns audit records for an organization, newest first.
func (asd AuditRecordSQLDAO) GetAll(ctx context.Context, tx *db.Tx, filter AuditRecordFilterInput) ([]AuditRecord, error) {
	if err := db.CheckTenant(ctx, filter.OrganizationID); err != nil {
		return nil, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > db.MaxPageSize {
		limit = db.DefaultPageSize
	}

	var records []AuditRecord
	q := db.GetIDB(tx, asd.dbSession).NewSelect().Model(&records).
		Where("ar.organization_id = ?", filter.OrganizationID).
		Order("timestamp DESC").
		Limit(limit)

	if filter.EventType != nil {
		q = q.Where("ar.event_type = ?", *filter.EventType)
	}
	if filter.From != nil {
		q = q.Where("ar.timestamp >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("ar.timestamp < ?", *filter.To)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return records, nil
}
