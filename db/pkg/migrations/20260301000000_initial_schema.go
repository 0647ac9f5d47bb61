package migrations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
)

// initialSchemaStatements creates every table the service owns. The
// audit_record table is range-partitioned by month on timestamp, which
// is why it is raw SQL instead of bun model DDL; the primary key must
// include the partition column.
var initialSchemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS organization (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'active',
		created TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
		updated TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS app_user (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL REFERENCES organization (id),
		email TEXT NOT NULL,
		external_subject_id TEXT UNIQUE,
		status TEXT NOT NULL DEFAULT 'active',
		attributes JSONB,
		created TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
		updated TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
		UNIQUE (organization_id, email)
	)`,
	`CREATE TABLE IF NOT EXISTS role (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL REFERENCES organization (id),
		name TEXT NOT NULL,
		parent_role_id UUID REFERENCES role (id),
		depth INTEGER NOT NULL DEFAULT 0,
		is_system BOOLEAN NOT NULL DEFAULT false,
		created TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
		updated TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
		UNIQUE (organization_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS permission (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL REFERENCES organization (id),
		name TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		action TEXT NOT NULL,
		effect TEXT NOT NULL DEFAULT 'allow',
		created TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
		UNIQUE (organization_id, name),
		UNIQUE (organization_id, resource_type, action)
	)`,
	`CREATE TABLE IF NOT EXISTS role_permission (
		role_id UUID NOT NULL REFERENCES role (id) ON DELETE CASCADE,
		permission_id UUID NOT NULL REFERENCES permission (id) ON DELETE CASCADE,
		PRIMARY KEY (role_id, permission_id)
	)`,
	`CREATE TABLE IF NOT EXISTS role_assignment (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES app_user (id) ON DELETE CASCADE,
		role_id UUID NOT NULL REFERENCES role (id) ON DELETE CASCADE,
		resource_type TEXT,
		resource_id TEXT,
		expires_at TIMESTAMPTZ,
		granted_by UUID NOT NULL,
		granted_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
		UNIQUE NULLS NOT DISTINCT (user_id, role_id, resource_type, resource_id)
	)`,
	`CREATE TABLE IF NOT EXISTS policy (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL REFERENCES organization (id),
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		current_version INTEGER NOT NULL DEFAULT 0,
		created TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
		updated TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
		UNIQUE (organization_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS policy_version (
		policy_id UUID NOT NULL REFERENCES policy (id) ON DELETE CASCADE,
		version INTEGER NOT NULL,
		content TEXT NOT NULL,
		checksum TEXT NOT NULL,
		validation_status TEXT NOT NULL DEFAULT 'pending',
		published_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
		published_by UUID NOT NULL,
		PRIMARY KEY (policy_id, version)
	)`,
	`CREATE TABLE IF NOT EXISTS api_key (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL REFERENCES organization (id),
		key_digest TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		revoked BOOLEAN NOT NULL DEFAULT false,
		created TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
		last_used TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS audit_record (
		id UUID NOT NULL,
		organization_id UUID NOT NULL,
		event_type TEXT NOT NULL,
		actor TEXT NOT NULL,
		resource_type TEXT,
		resource_id TEXT,
		action TEXT,
		decision TEXT NOT NULL,
		decision_reason TEXT,
		ip_address TEXT,
		user_agent TEXT,
		request_digest TEXT,
		timestamp TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (id, timestamp)
	) PARTITION BY RANGE (timestamp)`,
	`CREATE TABLE IF NOT EXISTS audit_record_default
		PARTITION OF audit_record DEFAULT`,
	`CREATE INDEX IF NOT EXISTS idx_app_user_org ON app_user (organization_id)`,
	`CREATE INDEX IF NOT EXISTS idx_role_org ON role (organization_id)`,
	`CREATE INDEX IF NOT EXISTS idx_role_assignment_user ON role_assignment (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_record_org_ts ON audit_record (organization_id, timestamp DESC)`,
}

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		// Start transactions
		tx, terr := db.BeginTx(ctx, &sql.TxOptions{})
		if terr != nil {
			handlePanic(terr, "failed to begin transaction")
		}

		for _, stmt := range initialSchemaStatements {
			_, err := tx.ExecContext(ctx, stmt)
			handleError(tx, err)
		}

		terr = tx.Commit()
		if terr != nil {
			handlePanic(terr, "failed to commit transaction")
		}

		fmt.Print(" [up migration] Created initial authorization schema successfully. ")
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Print(" [down migration] ")
		return nil
	})
}
