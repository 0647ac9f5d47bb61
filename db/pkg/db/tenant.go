package db

import (
	"context"

	"github.com/google/uuid"
)

type tenantContextKey struct{}

// WithTenant binds the authenticated organization to the context. The
// credential resolver calls this exactly once per request; everything
// below the HTTP layer reads it back instead of trusting request bodies.
func WithTenant(ctx context.Context, organizationID uuid.UUID) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, organizationID)
}

// TenantFromContext returns the organization bound to the context.
func TenantFromContext(ctx context.Context) (uuid.UUID, error) {
	v := ctx.Value(tenantContextKey{})
	if v == nil {
		return uuid.Nil, ErrNoTenant
	}
	id, ok := v.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, ErrNoTenant
	}
	return id, nil
}

// RunInTenantTx runs fn inside a transaction with the session-scoped
// tenant id set. Tables with row-level security policies keyed on
// app.current_tenant reject rows from other organizations even if a DAO
// predicate is missed.
func (s *Session) RunInTenantTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	tenant, err := TenantFromContext(ctx)
	if err != nil {
		return err
	}
	return s.RunInTx(ctx, func(ctx context.Context, tx *Tx) error {
		if _, err := tx.Tx.ExecContext(ctx, "SET LOCAL app.current_tenant = ?", tenant.String()); err != nil {
			return err
		}
		return fn(ctx, tx)
	})
}

// CheckTenant verifies that a record's organization matches the tenant
// bound to the context. DAOs call this before returning rows fetched by
// primary key.
func CheckTenant(ctx context.Context, organizationID uuid.UUID) error {
	tenant, err := TenantFromContext(ctx)
	if err != nil {
		return err
	}
	if tenant != organizationID {
		return ErrTenancyViolation
	}
	return nil
}
