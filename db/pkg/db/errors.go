package db

import (
	"database/sql"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

// uniqueViolationCode is the Postgres SQLSTATE for unique_violation.
const uniqueViolationCode = "23505"

var (
	// ErrDoesNotExist is returned when a requested record is not found.
	ErrDoesNotExist = errors.New("record does not exist")

	// ErrAlreadyExists is returned on uniqueness violations.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrTenancyViolation is returned when a query or write would cross
	// organization boundaries. This is an invariant breach, not a user
	// error.
	ErrTenancyViolation = errors.New("tenancy violation")

	// ErrNoTenant is returned when a tenant-scoped operation runs
	// without a tenant in context.
	ErrNoTenant = errors.New("no tenant bound to request context")
)

// IsNotFound reports whether err is a missing-record error from the DAO
// layer or the driver.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDoesNotExist) || errors.Is(err, sql.ErrNoRows)
}

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
