package lock

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/migrant/internal/dialect"
	"github.com/roach88/migrant/internal/testutil"
)

func openSQLite(t *testing.T, path string) *sqlx.DB {
	t.Helper()
	d, err := dialect.Lookup(dialect.SQLite)
	require.NoError(t, err)
	db, err := dialect.Open(context.Background(), d, path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newSQLiteLock(t *testing.T, path, owner string, clock *testutil.ManualClock) *Lock {
	t.Helper()
	d, _ := dialect.Lookup(dialect.SQLite)
	l := New(openSQLite(t, path), d, Options{
		Owner: owner,
		Lease: time.Minute,
		Now:   clock.Now,
	})
	require.NoError(t, l.Init(context.Background()))
	return l
}

func TestInit_CreatesSingleRow(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "lock.db")
	clock := testutil.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	l := newSQLiteLock(t, path, "a", clock)

	var count int
	require.NoError(t, l.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM change_lock"))
	assert.Equal(t, 1, count)

	// Idempotent.
	require.NoError(t, l.Init(ctx))
	require.NoError(t, l.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM change_lock"))
	assert.Equal(t, 1, count)

	st, err := l.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Held)
}

func TestInit_RejectsExtraRows(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "lock.db")
	clock := testutil.NewManualClock(time.Now())

	l := newSQLiteLock(t, path, "a", clock)
	_, err := l.db.ExecContext(ctx, "INSERT INTO change_lock (lock_id, lock_expiration, locked_by) VALUES (NULL, 0, NULL)")
	require.NoError(t, err)

	err = l.Init(ctx)
	require.Error(t, err)
	assert.True(t, IsInvariantError(err))
}

func TestAcquireRenewRelease(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "lock.db")
	clock := testutil.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	a := newSQLiteLock(t, path, "host-a", clock)
	b := newSQLiteLock(t, path, "host-b", clock)

	ok, err := a.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, a.HeldID())

	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "lease is still valid")

	st, err := b.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Held)
	assert.Equal(t, a.HeldID(), st.LockID)
	assert.Equal(t, "host-a", st.LockedBy)
	assert.Equal(t, clock.Now().Add(time.Minute).UnixMilli(), st.Expiration.UnixMilli())

	clock.Advance(45 * time.Second)
	require.NoError(t, a.Renew(ctx))

	// Past the original expiry but within the renewed one.
	clock.Advance(30 * time.Second)
	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Release(ctx))
	assert.Empty(t, a.HeldID())

	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExpiredLeaseIsTakenOver(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "lock.db")
	clock := testutil.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	a := newSQLiteLock(t, path, "host-a", clock)
	b := newSQLiteLock(t, path, "host-b", clock)

	ok, err := a.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(2 * time.Minute)

	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	err = a.Renew(ctx)
	assert.ErrorIs(t, err, ErrLeaseLost)

	err = a.Release(ctx)
	require.Error(t, err)
	assert.True(t, IsInvariantError(err))

	// b still holds it.
	st, err := b.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.HeldID(), st.LockID)
}

func TestTryAcquire_ExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "lock.db")
	clock := testutil.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	const n = 6
	locks := make([]*Lock, n)
	for i := range locks {
		locks[i] = newSQLiteLock(t, path, "p", clock)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, l := range locks {
		wg.Add(1)
		go func(l *Lock) {
			defer wg.Done()
			ok, err := l.TryAcquire(ctx)
			if err != nil {
				errs <- err
				return
			}
			if ok {
				wins.Add(1)
			}
		}(l)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), wins.Load())
}

func TestForceRelease(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "lock.db")
	clock := testutil.NewManualClock(time.Now())

	a := newSQLiteLock(t, path, "a", clock)
	b := newSQLiteLock(t, path, "b", clock)

	cleared, err := b.ForceRelease(ctx)
	require.NoError(t, err)
	assert.False(t, cleared)

	ok, err := a.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	cleared, err = b.ForceRelease(ctx)
	require.NoError(t, err)
	assert.True(t, cleared)

	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.True(t, errors.Is(a.Renew(ctx), ErrLeaseLost))
}

func TestRenew_WithoutLease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock.db")
	l := newSQLiteLock(t, path, "a", testutil.NewManualClock(time.Now()))
	assert.ErrorIs(t, l.Renew(context.Background()), ErrLeaseLost)
}

func TestNewID_Unique(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}
