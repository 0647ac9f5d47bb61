package db

import (
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505"}
	assert.True(t, IsUniqueViolation(pgErr))
	assert.True(t, IsUniqueViolation(errors.Wrap(pgErr, "insert failed")))

	assert.False(t, IsUniqueViolation(errors.New("connection refused")))
	// Foreign key violations are a different failure, not a conflict.
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(nil))
}
