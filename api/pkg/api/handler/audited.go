package handler

import (
	"context"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/bl-hori/auth-platform-sub003/auth/pkg/credential"
	"github.com/bl-hori/auth-platform-sub003/db/pkg/db"
	"github.com/bl-hori/auth-platform-sub003/db/pkg/db/model"
)

// Auditor accepts audit records without blocking. Satisfied by the audit
// pipeline.
type Auditor interface {
	Emit(record model.AuditRecord)
}

// Invalidator is the cache surface administrative mutations need.
type Invalidator interface {
	Invalidate(ctx context.Context, organizationID, principalID uuid.UUID) error
	InvalidateOrganization(ctx context.Context, organizationID uuid.UUID) error
	Clear(ctx context.Context) error
}

// TxRunner runs a function inside a tenant-scoped transaction. Satisfied
// by db.Session.
type TxRunner interface {
	RunInTenantTx(ctx context.Context, fn func(ctx context.Context, tx *db.Tx) error) error
}

// Audited declares the audit shape of one administrative mutation:
// the action name, the resource type, and how to extract the mutated
// resource id from the result. Declared once per handler, next to it.
type Audited struct {
	Action       string
	ResourceType string
	ExtractID    func(result interface{}) string
}

// Success emits an admin.mutation success record for the actor.
func (a Audited) Success(c echo.Context, auditor Auditor, p *credential.Principal, result interface{}) {
	a.emit(c, auditor, p, model.AuditDecisionSuccess, "", result)
}

// Failure emits an admin.mutation failure record carrying the reason.
func (a Audited) Failure(c echo.Context, auditor Auditor, p *credential.Principal, reason string) {
	a.emit(c, auditor, p, model.AuditDecisionFailure, reason, nil)
}

func (a Audited) emit(c echo.Context, auditor Auditor, p *credential.Principal, decision, reason string, result interface{}) {
	record := model.AuditRecord{
		ID:             uuid.New(),
		OrganizationID: p.OrganizationID,
		EventType:      model.AuditEventAdminMutation,
		Actor:          p.Subject,
		ResourceType:   a.ResourceType,
		Action:         a.Action,
		Decision:       decision,
		DecisionReason: reason,
		IPAddress:      c.RealIP(),
		UserAgent:      c.Request().UserAgent(),
		Timestamp:      db.GetCurTime(),
	}
	if result != nil && a.ExtractID != nil {
		record.ResourceID = a.ExtractID(result)
	}
	auditor.Emit(record)
}
