package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// Session wraps the bun connection for the authorization store.
type Session struct {
	DB *bun.DB
}

// Tx wraps a bun transaction so DAOs can run inside or outside one.
type Tx struct {
	Tx bun.Tx
}

// IDB is the query surface shared by sessions and transactions.
type IDB = bun.IDB

// NewSession opens a Postgres-backed session using the pgx stdlib driver.
func NewSession(dsn string, maxOpenConns int) (*Session, error) {
	config, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse database DSN")
	}

	sqldb := stdlib.OpenDB(*config)
	sqldb.SetMaxOpenConns(maxOpenConns)
	sqldb.SetMaxIdleConns(maxOpenConns / 2)
	sqldb.SetConnMaxIdleTime(5 * time.Minute)

	return &Session{DB: bun.NewDB(sqldb, pgdialect.New())}, nil
}

// Close closes the underlying connection pool.
func (s *Session) Close() error {
	return s.DB.Close()
}

// Ping verifies connectivity within the storage hop budget.
func (s *Session) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, StorageTimeout)
	defer cancel()
	return s.DB.PingContext(ctx)
}

// GetIDB returns the transaction when one is in flight, otherwise the
// session connection. DAO methods accept an optional *Tx and route
// queries through this.
func GetIDB(tx *Tx, session *Session) bun.IDB {
	if tx != nil {
		return tx.Tx
	}
	return session.DB
}

// RunInTx runs fn inside a transaction, committing on nil and rolling
// back on error.
func (s *Session) RunInTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	return s.DB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, btx bun.Tx) error {
		return fn(ctx, &Tx{Tx: btx})
	})
}

// GetCurTime returns the current UTC time, truncated to microseconds to
// match Postgres timestamp precision.
func GetCurTime() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
