// Package postgres contains PostgreSQL implementations of repository interfaces.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/and161185/zerobase/internal/errs"
)

// PgxPool is a minimal abstraction over a Postgres connection pool,
// used by repositories. It is implemented by *pgxpool.Pool and pgxmock.PgxPoolIface.
type PgxPool interface {
	// Exec executes a SQL command and returns the command tag.
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	// Query executes a SELECT and returns a rows iterator.
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	// QueryRow executes a query expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	// BeginTx starts a transaction with the provided options.
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close shuts down the pool and frees resources.
	Close()
}

// TenantConnector hands out the connection pool of one tenant database.
// The pool stays open until release is called; release is idempotent.
type TenantConnector interface {
	Tenant(ctx context.Context, projectID string) (pool PgxPool, release func(), err error)
}

// DB wraps the control-plane pool to satisfy repository constructors and allow testing.
type DB struct{ Pool PgxPool }

// Close closes the underlying pool.
func (db *DB) Close() { db.Pool.Close() }

// isUniqueViolation reports whether the error is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pg *pgconn.PgError
	return errors.As(err, &pg) && pg.Code == "23505"
}

// classify maps the engine errors callers react to onto sentinels, keeping
// the engine message. Anything else is returned unchanged.
func classify(err error) error {
	var pg *pgconn.PgError
	if !errors.As(err, &pg) {
		return err
	}
	switch pg.Code {
	case "42P07", "42701", "42P04", "23505", "42710":
		return fmt.Errorf("%w: %s", errs.ErrConflict, pg.Message)
	case "42P01", "3D000":
		return fmt.Errorf("%w: %s", errs.ErrNotFound, pg.Message)
	case "42703", "22P02", "23502", "42804":
		return fmt.Errorf("%w: %s", errs.ErrValidation, pg.Message)
	default:
		return err
	}
}
