package pool

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPool(t *testing.T) (*Pool, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestExecReturnsAffectedRows(t *testing.T) {
	p, mock := newMockPool(t)
	mock.ExpectExec(`UPDATE "products" SET "active" = $1`).
		WithArgs(false).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := p.Exec(context.Background(), `UPDATE "products" SET "active" = $1`, false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchAllScansRowsIntoMaps(t *testing.T) {
	p, mock := newMockPool(t)
	now := time.Now()
	mock.ExpectQuery(`SELECT * FROM "products"`).WillReturnRows(
		sqlmock.NewRows([]string{"id", "name", "metadata", "created_at"}).
			AddRow("a1", []byte("Widget"), []byte(`{"tags":["new"]}`), now),
	)

	rows, err := p.FetchAll(context.Background(), `SELECT * FROM "products"`)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// Byte slices normalize to strings, timestamps stay time.Time.
	assert.Equal(t, "Widget", rows[0]["name"])
	assert.Equal(t, `{"tags":["new"]}`, rows[0]["metadata"])
	assert.Equal(t, now, rows[0]["created_at"])
}

func TestFetchOneEmptyResult(t *testing.T) {
	p, mock := newMockPool(t)
	mock.ExpectQuery(`SELECT * FROM "products" WHERE "id" = $1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	row, err := p.FetchOne(context.Background(), `SELECT * FROM "products" WHERE "id" = $1`, "missing")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestFetchValue(t *testing.T) {
	p, mock := newMockPool(t)
	mock.ExpectQuery(`SELECT COUNT(*) FROM "products"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(7)))

	v, err := p.FetchValue(context.Background(), `SELECT COUNT(*) FROM "products"`)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
}

func TestWithinTxCommitsOnSuccess(t *testing.T) {
	p, mock := newMockPool(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE t SET a = 1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := p.WithinTx(context.Background(), func(ctx context.Context, tx DB) error {
		_, err := tx.Exec(ctx, "UPDATE t SET a = 1")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	p, mock := newMockPool(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE t SET a = 1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	boom := fmt.Errorf("boom")
	err := p.WithinTx(context.Background(), func(ctx context.Context, tx DB) error {
		if _, err := tx.Exec(ctx, "UPDATE t SET a = 1"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxJoinsOpenTransaction(t *testing.T) {
	p, mock := newMockPool(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO t VALUES (1)").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO t VALUES (2)").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := p.WithinTx(context.Background(), func(ctx context.Context, tx DB) error {
		if _, err := tx.Exec(ctx, "INSERT INTO t VALUES (1)"); err != nil {
			return err
		}
		// Nested call must reuse the same transaction, not deadlock on a
		// second BeginTx.
		return tx.WithinTx(ctx, func(ctx context.Context, inner DB) error {
			_, err := inner.Exec(ctx, "INSERT INTO t VALUES (2)")
			return err
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestErrorClassification(t *testing.T) {
	dup := &pq.Error{Code: "23505"}
	serial := &pq.Error{Code: "40001"}

	assert.True(t, IsUniqueViolation(dup))
	assert.False(t, IsUniqueViolation(serial))
	assert.True(t, IsSerializationFailure(serial))
	assert.False(t, IsSerializationFailure(errors.New("plain")))
	assert.False(t, IsUniqueViolation(nil))

	wrapped := fmt.Errorf("insert failed: %w", dup)
	assert.True(t, IsUniqueViolation(wrapped))
}
