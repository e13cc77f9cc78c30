// Package storage implements the storage driver and schema bootstrap: a
// thin, instrumented wrapper around a pooled sqlx.DB exposing query/exec/tx,
// centralizing error wrapping and context plumbing around a base connection
// over parameterized SQL against lib/pq.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/yaaruu/bunsane-sub005/internal/apperrors"
	"github.com/yaaruu/bunsane-sub005/internal/obs/metrics"
)

// Driver is the pooled SQL connection used by every higher-level component
// (the entity store, the query engine). Transactions are per-call and
// never shared across goroutines.
type Driver struct {
	db      *sqlx.DB
	metrics *metrics.Metrics
}

// Open connects to dsn using the "postgres" driver (lib/pq) and configures
// the connection pool to poolSize open connections.
func Open(dsn string, poolSize int, m *metrics.Metrics) (*Driver, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, apperrors.Storage("open", err)
	}
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Driver{db: db, metrics: m}, nil
}

// FromExisting wraps an already-open sqlx.DB, used by tests to inject a
// sqlmock-backed connection without dialing a real database.
func FromExisting(db *sqlx.DB, m *metrics.Metrics) *Driver {
	return &Driver{db: db, metrics: m}
}

// Close releases the underlying connection pool.
func (d *Driver) Close() error {
	return d.db.Close()
}

// Ping verifies connectivity.
func (d *Driver) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return apperrors.Storage("ping", err)
	}
	return nil
}

// Query runs a SELECT and scans rows into dest, which must be a pointer to
// a slice of structs or a compatible scan target.
func (d *Driver) Query(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	start := time.Now()
	err := d.db.SelectContext(ctx, dest, query, args...)
	d.observe("query", start, err)
	if err != nil {
		return apperrors.Storage("query", err)
	}
	return nil
}

// QueryRow runs a SELECT expected to return exactly one row.
func (d *Driver) QueryRow(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	start := time.Now()
	err := d.db.GetContext(ctx, dest, query, args...)
	d.observe("query_row", start, err)
	if err == sql.ErrNoRows {
		return apperrors.NotFound("row", "")
	}
	if err != nil {
		return apperrors.Storage("query_row", err)
	}
	return nil
}

// Exec runs a statement with no result set (INSERT/UPDATE/DELETE outside a
// transaction).
func (d *Driver) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	res, err := d.db.ExecContext(ctx, query, args...)
	d.observe("exec", start, err)
	if err != nil {
		return nil, apperrors.Storage("exec", err)
	}
	return res, nil
}

// Tx is a transaction handle passed into caller-supplied functions so that
// every statement of a single save() executes atomically.
type Tx struct {
	tx *sqlx.Tx
}

// Exec runs a statement inside the transaction.
func (t *Tx) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Storage("tx_exec", err)
	}
	return res, nil
}

// Query runs a SELECT inside the transaction.
func (t *Tx) Query(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if err := t.tx.SelectContext(ctx, dest, query, args...); err != nil {
		return apperrors.Storage("tx_query", err)
	}
	return nil
}

// QueryRow runs a single-row SELECT inside the transaction.
func (t *Tx) QueryRow(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	err := t.tx.GetContext(ctx, dest, query, args...)
	if err == sql.ErrNoRows {
		return apperrors.NotFound("row", "")
	}
	if err != nil {
		return apperrors.Storage("tx_query_row", err)
	}
	return nil
}

// In expands a slice-valued bind parameter into a driver-compatible query
// and argument list for IN (...) expansion. The query compiler and the
// component loaders do not use it; they bind arrays with = ANY($n).
func (d *Driver) In(query string, args ...interface{}) (string, []interface{}, error) {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, fmt.Errorf("expand IN clause: %w", err)
	}
	return d.db.Rebind(q), a, nil
}

// WithTx runs fn inside a single transaction, committing on success and
// rolling back on any error or panic.
func (d *Driver) WithTx(ctx context.Context, fn func(*Tx) error) (err error) {
	start := time.Now()
	sqlxTx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.Storage("begin_tx", err)
	}

	tx := &Tx{tx: sqlxTx}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlxTx.Rollback()
			panic(p)
		}
		d.observe("tx", start, err)
	}()

	if err = fn(tx); err != nil {
		if rbErr := sqlxTx.Rollback(); rbErr != nil {
			return apperrors.Storage("rollback", rbErr)
		}
		return err
	}

	if err = sqlxTx.Commit(); err != nil {
		return apperrors.Storage("commit", err)
	}
	return nil
}

func (d *Driver) observe(operation string, start time.Time, err error) {
	if d.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	d.metrics.RecordStorageOp(operation, status, time.Since(start))
}
