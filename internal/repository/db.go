// Package repository provides the Postgres data access layer.
//
// Queries is a thin wrapper over database/sql in the style of generated
// query code: one method per statement, Params structs for multi-argument
// writes, and no business logic. Concurrency correctness lives in the SQL:
// status transitions are compare-and-set updates that report affected
// rows, and idempotent inserts lean on unique indexes rather than locks.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Queries holds the prepared data access methods.
type Queries struct {
	db DBTX
}

// New creates a Queries instance backed by the given handle.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries instance scoped to the given transaction.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// ErrNotFound is returned when a lookup matches no rows.
var ErrNotFound = sql.ErrNoRows

// IsNotFound reports whether err is a no-rows lookup failure.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation. Both the pgx and lib/pq drivers are recognized.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolationCode
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolationCode
	}
	return false
}
