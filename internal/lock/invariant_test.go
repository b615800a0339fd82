package lock

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/migrant/internal/dialect"
)

func newMockLock(t *testing.T) (*Lock, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	d, err := dialect.Lookup(dialect.SQLite)
	require.NoError(t, err)

	l := New(sqlx.NewDb(mockDB, "sqlite3"), d, Options{
		Owner: "test",
		Lease: time.Minute,
		NewID: func() string { return "lease-1" },
	})
	return l, mock
}

func TestTryAcquire_MultipleRowsIsInvariantViolation(t *testing.T) {
	l, mock := newMockLock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE change_lock SET lock_id = \?, lock_expiration = \?, locked_by = \?`).
		WithArgs("lease-1", sqlmock.AnyArg(), "test", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectRollback()

	ok, err := l.TryAcquire(context.Background())
	assert.False(t, ok)
	require.Error(t, err)

	var ie *InvariantError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "acquire", ie.Op)
	assert.Equal(t, int64(2), ie.Rows)
	assert.Empty(t, l.HeldID())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRenew_MultipleRowsIsInvariantViolation(t *testing.T) {
	l, mock := newMockLock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE change_lock SET lock_id`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE change_lock SET lock_expiration = \? WHERE lock_id = \?`).
		WithArgs(sqlmock.AnyArg(), "lease-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectRollback()

	ok, err := l.TryAcquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	err = l.Renew(context.Background())
	assert.True(t, IsInvariantError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelease_ZeroRowsIsInvariantViolation(t *testing.T) {
	l, mock := newMockLock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE change_lock SET lock_id = \?`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE change_lock SET lock_id = NULL WHERE lock_id = \?`).
		WithArgs("lease-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	ok, err := l.TryAcquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	err = l.Release(context.Background())
	var ie *InvariantError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "release", ie.Op)
	assert.Equal(t, int64(0), ie.Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInit_DropsTableWhenVerificationFails(t *testing.T) {
	l, mock := newMockLock(t)

	mock.ExpectQuery(`sqlite_master`).
		WithArgs("change_lock").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE change_lock`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO change_lock`).
		WithArgs(int64(0)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`sqlite_master`).
		WithArgs("change_lock").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`DROP TABLE change_lock`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := l.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInit_ExistingTableWithTwoRows(t *testing.T) {
	l, mock := newMockLock(t)

	mock.ExpectQuery(`sqlite_master`).
		WithArgs("change_lock").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM change_lock`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	err := l.Init(context.Background())
	var ie *InvariantError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, int64(2), ie.Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
