package lock

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/semaphore"

	"github.com/roach88/migrant/internal/dialect"
)

// Defaults for Options.
const (
	DefaultTable   = "change_lock"
	DefaultLease   = 5 * time.Minute
	DefaultTimeout = 10 * time.Second
)

// Options configures a Lock.
type Options struct {
	Catalog string
	Schema  string
	Table   string

	// Lease is how long an acquisition or renewal stays valid.
	Lease time.Duration
	// Timeout bounds every lock operation, including waiting for other
	// goroutines of this process that use the same Lock.
	Timeout time.Duration

	// Owner is recorded in locked_by.
	Owner string

	Now    func() time.Time
	NewID  func() string
	Logger *slog.Logger
}

// Record is the current content of the lock row.
type Record struct {
	LockID     string
	Held       bool
	Expiration time.Time
	LockedBy   string
}

// Lock is one participant in the lease protocol.
type Lock struct {
	db      *sqlx.DB
	dialect dialect.Dialect
	opts    Options
	table   string

	// guards held and serialises this process's operations
	sem  *semaphore.Weighted
	held string
}

// New returns a Lock over the configured table. It performs no I/O; call Init
// before the first Acquire.
func New(db *sqlx.DB, d dialect.Dialect, opts Options) *Lock {
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if opts.Lease <= 0 {
		opts.Lease = DefaultLease
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = NewID
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Lock{
		db:      db,
		dialect: d,
		opts:    opts,
		table:   d.QualifiedName(opts.Catalog, opts.Schema, opts.Table),
		sem:     semaphore.NewWeighted(1),
	}
}

// Table returns the qualified lock table name.
func (l *Lock) Table() string { return l.table }

// HeldID returns the lease id held by this Lock, or "" when not held.
func (l *Lock) HeldID() string { return l.held }

func (l *Lock) enter(ctx context.Context, op string) (context.Context, func(), error) {
	ctx, cancel := context.WithTimeout(ctx, l.opts.Timeout)
	if err := l.sem.Acquire(ctx, 1); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("lock %s: wait for in-process guard: %w", op, err)
	}
	return ctx, func() {
		l.sem.Release(1)
		cancel()
	}, nil
}

// exec runs one conditional UPDATE in its own transaction and commits it only
// when it changed zero rows or the single lock row (exactly one when exact is
// set).
func (l *Lock) exec(ctx context.Context, op string, exact bool, query string, args ...any) (int64, error) {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("lock %s on %s: begin tx: %w", op, l.table, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, l.dialect.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("lock %s on %s: %w", op, l.table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("lock %s on %s: rows affected: %w", op, l.table, err)
	}
	if n > 1 || n < 0 || (exact && n != 1) {
		return n, &InvariantError{Op: op, Table: l.table, Rows: n}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("lock %s on %s: commit: %w", op, l.table, err)
	}
	return n, nil
}

func millis(t time.Time) int64 { return t.UTC().UnixMilli() }

// TryAcquire attempts to take the lease. It returns false, without error,
// when another holder's lease is still valid.
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	ctx, done, err := l.enter(ctx, "acquire")
	if err != nil {
		return false, err
	}
	defer done()

	now := l.opts.Now()
	id := l.opts.NewID()
	n, err := l.exec(ctx, "acquire", false, fmt.Sprintf(
		`UPDATE %s SET lock_id = ?, lock_expiration = ?, locked_by = ? WHERE lock_id IS NULL OR lock_expiration < ?`,
		l.table),
		id, millis(now.Add(l.opts.Lease)), l.opts.Owner, millis(now),
	)
	if err != nil {
		return false, err
	}
	if n == 0 {
		l.opts.Logger.Debug("lock held elsewhere", "table", l.table)
		return false, nil
	}

	l.held = id
	l.opts.Logger.Debug("lock acquired", "table", l.table, "lock_id", id, "lease", l.opts.Lease)
	return true, nil
}

// Renew extends the lease. It returns ErrLeaseLost when the lease expired
// and was taken over.
func (l *Lock) Renew(ctx context.Context) error {
	ctx, done, err := l.enter(ctx, "renew")
	if err != nil {
		return err
	}
	defer done()

	if l.held == "" {
		return fmt.Errorf("lock renew on %s: %w", l.table, ErrLeaseLost)
	}

	n, err := l.exec(ctx, "renew", false, fmt.Sprintf(
		`UPDATE %s SET lock_expiration = ? WHERE lock_id = ?`, l.table),
		millis(l.opts.Now().Add(l.opts.Lease)), l.held,
	)
	if err != nil {
		return err
	}
	if n == 0 {
		lost := l.held
		l.held = ""
		return fmt.Errorf("lock renew on %s (lock_id %s): %w", l.table, lost, ErrLeaseLost)
	}

	l.opts.Logger.Debug("lock renewed", "table", l.table, "lock_id", l.held)
	return nil
}

// Release gives the lease back. Exactly one row must change; anything else
// means the lease was lost or released twice and is an InvariantError.
func (l *Lock) Release(ctx context.Context) error {
	ctx, done, err := l.enter(ctx, "release")
	if err != nil {
		return err
	}
	defer done()

	id := l.held
	l.held = ""

	if _, err := l.exec(ctx, "release", true, fmt.Sprintf(
		`UPDATE %s SET lock_id = NULL WHERE lock_id = ?`, l.table), id); err != nil {
		return err
	}

	l.opts.Logger.Debug("lock released", "table", l.table, "lock_id", id)
	return nil
}

// ForceRelease clears whatever lease is recorded, regardless of holder.
// It is the operator's escape hatch after a crashed run and reports whether
// a lease was cleared.
func (l *Lock) ForceRelease(ctx context.Context) (bool, error) {
	ctx, done, err := l.enter(ctx, "force release")
	if err != nil {
		return false, err
	}
	defer done()

	n, err := l.exec(ctx, "force release", false, fmt.Sprintf(
		`UPDATE %s SET lock_id = NULL WHERE lock_id IS NOT NULL`, l.table))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type lockRow struct {
	LockID     sql.NullString `db:"lock_id"`
	Expiration int64          `db:"lock_expiration"`
	LockedBy   sql.NullString `db:"locked_by"`
}

// Status reads the lock row.
func (l *Lock) Status(ctx context.Context) (Record, error) {
	ctx, done, err := l.enter(ctx, "status")
	if err != nil {
		return Record{}, err
	}
	defer done()

	var rows []lockRow
	if err := l.db.SelectContext(ctx, &rows, fmt.Sprintf(
		`SELECT lock_id, lock_expiration, locked_by FROM %s`, l.table)); err != nil {
		return Record{}, fmt.Errorf("lock status on %s: %w", l.table, err)
	}
	if len(rows) != 1 {
		return Record{}, &InvariantError{Op: "status", Table: l.table, Rows: int64(len(rows))}
	}

	r := rows[0]
	return Record{
		LockID:     r.LockID.String,
		Held:       r.LockID.Valid && millis(l.opts.Now()) <= r.Expiration,
		Expiration: time.UnixMilli(r.Expiration).UTC(),
		LockedBy:   r.LockedBy.String,
	}, nil
}
