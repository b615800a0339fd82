package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/migrant/internal/catalog"
	"github.com/roach88/migrant/internal/change"
	"github.com/roach88/migrant/internal/connector"
	"github.com/roach88/migrant/internal/lock"
	"github.com/roach88/migrant/internal/pending"
	"github.com/roach88/migrant/internal/pipeline"
	"github.com/roach88/migrant/internal/state"
)

// ApplyOptions controls ApplyPending.
type ApplyOptions struct {
	// Filter keeps only changes whose catalog-relative path matches.
	// Empty means the configured default.
	Filter string
	// DryRun resolves pending changes without executing or recording them.
	DryRun bool
}

// ApplyResult reports an ApplyPending run.
type ApplyResult struct {
	// Filter is the expression actually used, empty when none.
	Filter string
	DryRun bool
	// Pending lists the changes found pending, in execution order.
	Pending []change.ID
	// Executed lists the changes that ran successfully, in order. On
	// failure it holds the changes that ran before the failing one.
	Executed []change.ID
}

// RevertOptions controls Revert.
type RevertOptions struct {
	Filter string
	// Limit reverts at most this many changes; zero means no limit.
	Limit  int
	DryRun bool
}

// RevertResult reports a Revert run.
type RevertResult struct {
	Filter   string
	DryRun   bool
	Pending  []change.ID
	Reverted []change.ID
}

// ApplyPending executes every pending apply change in catalog order and
// records it in the ledger.
func (e *Engine) ApplyPending(ctx context.Context, opts ApplyOptions) (*ApplyResult, error) {
	return run(ctx, e, pipeline.Func(cmdApply, func(ctx context.Context, rc *pipeline.RunContext) (*ApplyResult, error) {
		return e.applyPending(ctx, rc, opts)
	}))
}

// Revert executes the revert changes whose logical change is recorded, most
// recent first, and removes their ledger records.
func (e *Engine) Revert(ctx context.Context, opts RevertOptions) (*RevertResult, error) {
	return run(ctx, e, pipeline.Func(cmdRevert, func(ctx context.Context, rc *pipeline.RunContext) (*RevertResult, error) {
		return e.revert(ctx, rc, opts)
	}))
}

// ListPending returns the pending apply changes without executing them.
func (e *Engine) ListPending(ctx context.Context, filter string) ([]pending.Change, error) {
	return run(ctx, e, e.listPending(filter))
}

// ListState returns the ledger ordered by apply time, then id.
func (e *Engine) ListState(ctx context.Context) ([]state.Record, error) {
	return run(ctx, e, pipeline.Func(cmdState, func(ctx context.Context, rc *pipeline.RunContext) ([]state.Record, error) {
		repo, err := pipeline.Get(rc, StateKey)
		if err != nil {
			return nil, err
		}
		records, err := repo.GetAllStateRecords(ctx)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(records, func(i, j int) bool {
			a, b := records[i], records[j]
			if !a.ApplyTimestamp.Equal(b.ApplyTimestamp) {
				return a.ApplyTimestamp.Before(b.ApplyTimestamp)
			}
			return a.ChangeID.String() < b.ChangeID.String()
		})
		return records, nil
	}))
}

// Catalog lists the change files of a direction in execution order.
func (e *Engine) Catalog(ctx context.Context, dir catalog.Direction, filter string) ([]change.File, error) {
	return run(ctx, e, pipeline.Func(cmdCatalog, func(ctx context.Context, rc *pipeline.RunContext) ([]change.File, error) {
		re, _, err := e.compileFilter(filter)
		if err != nil {
			return nil, err
		}
		return catalog.Scan(catalog.Options{
			Root:           e.settings.Changes.Dir,
			Environment:    e.settings.Environment,
			Direction:      dir,
			Filter:         re,
			HashingEnabled: hashingEnabled(e.settings.Hash.Algorithm),
			Logger:         e.logger,
		})
	}))
}

// LockStatus reads the lock row without taking the lock.
func (e *Engine) LockStatus(ctx context.Context) (lock.Record, error) {
	return run(ctx, e, pipeline.Func(cmdLockStatus, func(ctx context.Context, rc *pipeline.RunContext) (lock.Record, error) {
		l, closeDB, err := e.openLock(ctx)
		if err != nil {
			return lock.Record{}, err
		}
		defer closeDB()
		return l.Status(ctx)
	}))
}

// ForceRelease clears the lock regardless of its holder and reports whether
// a lease was cleared.
func (e *Engine) ForceRelease(ctx context.Context) (bool, error) {
	return run(ctx, e, pipeline.Func(cmdLockRelease, func(ctx context.Context, rc *pipeline.RunContext) (bool, error) {
		l, closeDB, err := e.openLock(ctx)
		if err != nil {
			return false, err
		}
		defer closeDB()

		cleared, err := l.ForceRelease(ctx)
		if err == nil && cleared {
			e.logger.Warn("lock forcibly released", "table", l.Table(), "by", e.settings.Run.User)
		}
		return cleared, err
	}))
}

func hashingEnabled(algorithm string) bool {
	return algorithm != "" && algorithm != "none"
}

func (e *Engine) listPending(filter string) pipeline.Command[[]pending.Change] {
	return pipeline.Func(cmdPending, func(ctx context.Context, rc *pipeline.RunContext) ([]pending.Change, error) {
		re, _, err := e.compileFilter(filter)
		if err != nil {
			return nil, err
		}
		repo, err := pipeline.Get(rc, StateKey)
		if err != nil {
			return nil, err
		}
		hasher, hashing := pipeline.Lookup(rc, HasherKey)

		files, err := catalog.Scan(catalog.Options{
			Root:           e.settings.Changes.Dir,
			Environment:    e.settings.Environment,
			Direction:      catalog.Apply,
			Filter:         re,
			HashingEnabled: hashing,
			Logger:         e.logger,
		})
		if err != nil {
			return nil, err
		}

		records, err := repo.GetAllStateRecords(ctx)
		if err != nil {
			return nil, err
		}

		changes, err := pending.Applies(files, records, hasher)
		if err != nil {
			return nil, err
		}
		e.metrics.PendingChanges.Set(float64(len(changes)))
		e.logger.Debug("pending resolved", "catalog", len(files), "ledger", len(records), "pending", len(changes))
		return changes, nil
	})
}

func (e *Engine) applyPending(ctx context.Context, rc *pipeline.RunContext, opts ApplyOptions) (*ApplyResult, error) {
	_, used, err := e.compileFilter(opts.Filter)
	if err != nil {
		return nil, err
	}
	result := &ApplyResult{Filter: used, DryRun: opts.DryRun}

	// Nested: runs directly with this RunContext, under the lock already held.
	changes, err := pipeline.Execute(ctx, e.executor, rc, e.listPending(opts.Filter))
	if err != nil {
		return nil, err
	}
	for _, c := range changes {
		result.Pending = append(result.Pending, c.ID())
	}
	if opts.DryRun || len(changes) == 0 {
		e.logger.Info("nothing to apply", "pending", len(changes), "dry_run", opts.DryRun)
		return result, nil
	}

	repo, err := pipeline.Get(rc, StateKey)
	if err != nil {
		return nil, err
	}
	registry, err := pipeline.Get(rc, ConnectorsKey)
	if err != nil {
		return nil, err
	}

	for _, c := range changes {
		id := c.ID()
		if err := e.execute(ctx, registry, c.File); err != nil {
			return result, err
		}

		if id.Type.Recorded() {
			rec := state.Record{
				ChangeID:       id,
				FileHash:       c.Hash,
				ApplyTimestamp: e.now().UTC(),
				AppliedBy:      e.settings.Run.User,
			}
			if len(c.Previous) > 0 {
				err = state.Replace(ctx, repo, pending.IDs(c.Previous), rec)
			} else {
				err = repo.SaveStateRecord(ctx, rec)
			}
			if err != nil {
				return result, fmt.Errorf("record %s: %w", id, err)
			}
		}
		result.Executed = append(result.Executed, id)

		if err := renew(ctx, rc); err != nil {
			return result, err
		}
	}

	e.logger.Info("apply finished", "executed", len(result.Executed))
	return result, nil
}

func (e *Engine) revert(ctx context.Context, rc *pipeline.RunContext, opts RevertOptions) (*RevertResult, error) {
	re, used, err := e.compileFilter(opts.Filter)
	if err != nil {
		return nil, err
	}
	result := &RevertResult{Filter: used, DryRun: opts.DryRun}

	repo, err := pipeline.Get(rc, StateKey)
	if err != nil {
		return nil, err
	}
	_, hashing := pipeline.Lookup(rc, HasherKey)

	files, err := catalog.Scan(catalog.Options{
		Root:           e.settings.Changes.Dir,
		Environment:    e.settings.Environment,
		Direction:      catalog.Revert,
		Filter:         re,
		HashingEnabled: hashing,
		Logger:         e.logger,
	})
	if err != nil {
		return nil, err
	}
	records, err := repo.GetAllStateRecords(ctx)
	if err != nil {
		return nil, err
	}
	changes, err := pending.Reverts(files, records)
	if err != nil {
		return nil, err
	}
	if opts.Limit > 0 && len(changes) > opts.Limit {
		changes = changes[:opts.Limit]
	}
	for _, c := range changes {
		result.Pending = append(result.Pending, c.ID())
	}
	if opts.DryRun || len(changes) == 0 {
		e.logger.Info("nothing to revert", "pending", len(changes), "dry_run", opts.DryRun)
		return result, nil
	}

	registry, err := pipeline.Get(rc, ConnectorsKey)
	if err != nil {
		return nil, err
	}

	for _, c := range changes {
		id := c.ID()
		if err := e.execute(ctx, registry, c.File); err != nil {
			return result, err
		}

		n, err := repo.DeleteStateRecordsByIDs(ctx, pending.IDs(c.Previous))
		if err != nil {
			return result, fmt.Errorf("unrecord %s: %w", id, err)
		}
		if n != 1 {
			e.logger.Warn("revert removed an unexpected number of ledger records", "change", id.String(), "removed", n)
		}
		result.Reverted = append(result.Reverted, id)

		if err := renew(ctx, rc); err != nil {
			return result, err
		}
	}

	e.logger.Info("revert finished", "reverted", len(result.Reverted))
	return result, nil
}

// execute runs one change file through its connector.
func (e *Engine) execute(ctx context.Context, registry *connector.Registry, f change.File) error {
	id := f.ID()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("before %s: %w", id, err)
	}

	conn, err := registry.Get(ctx, id.Connector)
	if err != nil {
		return fmt.Errorf("%s: %w", id, err)
	}

	e.logger.Info("executing change", "change", id.String())
	start := e.now()
	err = conn.Execute(ctx, f, e.settings.Environment)
	elapsed := e.now().Sub(start)
	e.metrics.ObserveChange(id, elapsed, err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			e.logger.Warn("change interrupted", "change", id.String(), "error", err)
			return fmt.Errorf("%s interrupted: %w", id, errors.Join(ctxErr, err))
		}
		e.logger.Error("change failed", "change", id.String(), "error", err)
		return &ExecutionError{Change: id, Err: err}
	}
	e.logger.Info("change executed", "change", id.String(), "duration", elapsed.Round(time.Millisecond))
	return nil
}

// renew extends the lease when the run holds one.
func renew(ctx context.Context, rc *pipeline.RunContext) error {
	lease, ok := pipeline.Lookup(rc, LeaseKey)
	if !ok {
		return nil
	}
	return lease.Renew(ctx)
}
