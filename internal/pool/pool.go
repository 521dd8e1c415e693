// Package pool wraps a database/sql connection pool behind the narrow
// executor surface the rest of the engine consumes: execute, fetch, and a
// context-scoped transaction primitive. The pool is owned by the caller and
// handed in; nothing in this module opens or closes connections on its own.
package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Row is one result row keyed by column name.
type Row map[string]any

// DB is the executor interface shared by the pool and an open transaction.
// Every method may suspend on a network round trip and honors ctx
// cancellation; a cancelled statement inside WithinTx rolls the whole
// transaction back.
type DB interface {
	// Exec runs a statement and returns the affected row count.
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	// FetchAll runs a query and returns every row.
	FetchAll(ctx context.Context, query string, args ...any) ([]Row, error)
	// FetchOne runs a query and returns the first row, or nil when the
	// result set is empty.
	FetchOne(ctx context.Context, query string, args ...any) (Row, error)
	// FetchValue runs a query and returns the first column of the first
	// row, or nil when the result set is empty.
	FetchValue(ctx context.Context, query string, args ...any) (any, error)
	// WithinTx runs fn inside a transaction. fn returning an error (or ctx
	// cancellation) rolls back; otherwise the transaction commits. Calling
	// WithinTx on an open transaction joins it instead of nesting.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx DB) error) error
}

// Pool is the production DB implementation over *sql.DB.
type Pool struct {
	db *sql.DB
}

// New wraps an already-open *sql.DB. The caller keeps ownership.
func New(db *sql.DB) *Pool {
	return &Pool{db: db}
}

// Open opens a PostgreSQL pool for the given DSN and verifies connectivity.
func Open(ctx context.Context, dsn string) (*Pool, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if pingErr := db.PingContext(ctx); pingErr != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %v; additionally failed to close connection: %w", pingErr, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}
	return &Pool{db: db}, nil
}

// Close closes the underlying pool.
func (p *Pool) Close() error {
	return p.db.Close()
}

func (p *Pool) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *Pool) FetchAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

func (p *Pool) FetchOne(ctx context.Context, query string, args ...any) (Row, error) {
	rows, err := p.FetchAll(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (p *Pool) FetchValue(ctx context.Context, query string, args ...any) (any, error) {
	row, err := p.FetchOne(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return firstValue(row), nil
}

func (p *Pool) WithinTx(ctx context.Context, fn func(ctx context.Context, tx DB) error) error {
	sqlTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	t := &tx{tx: sqlTx}
	if err := fn(ctx, t); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("%w; additionally rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// tx adapts *sql.Tx to the DB interface.
type tx struct {
	tx *sql.Tx
}

func (t *tx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *tx) FetchAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

func (t *tx) FetchOne(ctx context.Context, query string, args ...any) (Row, error) {
	rows, err := t.FetchAll(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (t *tx) FetchValue(ctx context.Context, query string, args ...any) (any, error) {
	row, err := t.FetchOne(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return firstValue(row), nil
}

// WithinTx on an open transaction joins it: savepoints are not needed by
// any caller in this engine.
func (t *tx) WithinTx(ctx context.Context, fn func(ctx context.Context, tx DB) error) error {
	return fn(ctx, t)
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// normalizeValue converts driver-level representations into the values the
// temporal layer works with: byte slices become strings (JSONB and text
// come back as []byte from lib/pq), times pass through untouched.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val
	default:
		return v
	}
}

// firstValue is only meaningful for single-column queries (COUNT, EXISTS);
// with more columns the pick is unspecified.
func firstValue(row Row) any {
	for _, v := range row {
		return v
	}
	return nil
}

// IsUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	return pqCode(err) == "23505"
}

// IsSerializationFailure reports whether err is a PostgreSQL serialization
// failure (SQLSTATE 40001), the signature of two writers racing.
func IsSerializationFailure(err error) bool {
	return pqCode(err) == "40001"
}

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}
