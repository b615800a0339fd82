package lock

import (
	"context"
	"errors"
	"fmt"
)

// Init makes sure the lock table exists and holds exactly one row.
//
// A missing table is created with its single row in one transaction and then
// verified through the dialect's catalog lookup. If verification fails the
// table is dropped (best effort) so a half-initialised lock table is never
// reused, and the verification failure is returned.
func (l *Lock) Init(ctx context.Context) error {
	ctx, done, err := l.enter(ctx, "init")
	if err != nil {
		return err
	}
	defer done()

	exists, err := l.dialect.TableExists(ctx, l.db, l.opts.Catalog, l.opts.Schema, l.opts.Table)
	if err != nil {
		return err
	}
	if exists {
		return l.verifySingleRow(ctx)
	}

	created, err := l.create(ctx)
	if err != nil {
		// A concurrent run may have created it first.
		exists, lookupErr := l.dialect.TableExists(ctx, l.db, l.opts.Catalog, l.opts.Schema, l.opts.Table)
		if lookupErr != nil || !exists {
			return errors.Join(err, lookupErr)
		}
	}

	if verifyErr := l.verifyCreated(ctx); verifyErr != nil {
		if created {
			if _, dropErr := l.db.ExecContext(context.WithoutCancel(ctx), fmt.Sprintf(`DROP TABLE %s`, l.table)); dropErr != nil {
				l.opts.Logger.Warn("drop of unverified lock table failed", "table", l.table, "error", dropErr)
			}
		}
		return verifyErr
	}

	if created {
		l.opts.Logger.Info("lock table created", "table", l.table)
	}
	return nil
}

func (l *Lock) create(ctx context.Context) (bool, error) {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("create lock table %s: begin tx: %w", l.table, err)
	}
	defer tx.Rollback()

	ddl := fmt.Sprintf(`CREATE TABLE %s (lock_id %s NULL, lock_expiration %s NOT NULL, locked_by %s NULL)`,
		l.table, l.dialect.Types.Text, l.dialect.Types.BigInt, l.dialect.Types.Text)
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return false, fmt.Errorf("create lock table %s: %w", l.table, err)
	}

	if _, err := tx.ExecContext(ctx, l.dialect.Rebind(fmt.Sprintf(
		`INSERT INTO %s (lock_id, lock_expiration, locked_by) VALUES (NULL, ?, NULL)`, l.table)), int64(0)); err != nil {
		return false, fmt.Errorf("create lock table %s: insert lock row: %w", l.table, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("create lock table %s: commit: %w", l.table, err)
	}
	return true, nil
}

func (l *Lock) verifyCreated(ctx context.Context) error {
	exists, err := l.dialect.TableExists(ctx, l.db, l.opts.Catalog, l.opts.Schema, l.opts.Table)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("lock table %s was created but cannot be found via catalog %q schema %q; check lock.catalog and lock.schema",
			l.table, l.opts.Catalog, l.opts.Schema)
	}
	return l.verifySingleRow(ctx)
}

func (l *Lock) verifySingleRow(ctx context.Context) error {
	var count int64
	if err := l.db.GetContext(ctx, &count, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, l.table)); err != nil {
		return fmt.Errorf("count lock rows in %s: %w", l.table, err)
	}
	if count != 1 {
		return &InvariantError{Op: "row count", Table: l.table, Rows: count}
	}
	return nil
}
