package storage_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yaaruu/bunsane-sub005/internal/apperrors"
	"github.com/yaaruu/bunsane-sub005/internal/storage"
)

// newMockDriver builds a storage.Driver backed by a sqlmock connection,
// wrapped through storage.FromExisting.
func newMockDriver(t *testing.T) (*storage.Driver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	drv := storage.FromExisting(sqlxDB, nil)
	return drv, mock
}

func TestExecReturnsStorageErrorOnFailure(t *testing.T) {
	drv, mock := newMockDriver(t)
	mock.ExpectExec("INSERT INTO entities").WillReturnError(assert.AnError)

	_, err := drv.Exec(context.Background(), "INSERT INTO entities (id) VALUES ($1)", "e1")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeStorage))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	drv, mock := newMockDriver(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO entities").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := drv.WithTx(context.Background(), func(tx *storage.Tx) error {
		_, execErr := tx.Exec(context.Background(), "INSERT INTO entities (id) VALUES ($1)", "e1")
		return execErr
	})

	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	drv, mock := newMockDriver(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO entities").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := drv.WithTx(context.Background(), func(tx *storage.Tx) error {
		_, execErr := tx.Exec(context.Background(), "INSERT INTO entities (id) VALUES ($1)", "e1")
		return execErr
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
