package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/migrant/internal/hash"
	"github.com/roach88/migrant/internal/lock"
	"github.com/roach88/migrant/internal/metrics"
	"github.com/roach88/migrant/internal/pipeline"
)

// Command names.
const (
	cmdApply       = "apply"
	cmdRevert      = "revert"
	cmdPending     = "pending"
	cmdState       = "state"
	cmdCatalog     = "catalog"
	cmdLockStatus  = "lock status"
	cmdLockRelease = "lock release"
)

var (
	needsLock = map[string]bool{
		cmdApply:   true,
		cmdRevert:  true,
		cmdPending: true,
	}
	needsServices = map[string]bool{
		cmdApply:   true,
		cmdRevert:  true,
		cmdPending: true,
		cmdState:   true,
	}
)

// lockInterceptor holds the distributed lock around commands that read or
// write the ledger. The lease is published in the RunContext for renewal and
// released on every exit path, including cancellation.
func (e *Engine) lockInterceptor(next pipeline.Handler) pipeline.Handler {
	return func(ctx context.Context, call *pipeline.Call) (out any, err error) {
		if !e.settings.Lock.Enabled || !needsLock[call.Command] {
			return next(ctx, call)
		}

		l, closeDB, err := e.openLock(ctx)
		if err != nil {
			e.metrics.ObserveLock(metrics.LockError)
			return nil, err
		}
		defer func() {
			if cerr := closeDB(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("close lock datasource: %w", cerr))
			}
		}()

		acquired, err := l.TryAcquire(ctx)
		if err != nil {
			e.metrics.ObserveLock(metrics.LockError)
			return nil, err
		}
		if !acquired {
			e.metrics.ObserveLock(metrics.LockBusy)
			return nil, fmt.Errorf("%s: %w", call.Command, lock.ErrNotAcquired)
		}
		e.metrics.ObserveLock(metrics.LockAcquired)
		e.logger.Info("lock acquired", "table", l.Table(), "lock_id", l.HeldID())

		defer func() {
			if rerr := l.Release(context.WithoutCancel(ctx)); rerr != nil {
				e.logger.Error("lock release failed", "table", l.Table(), "error", rerr)
				err = errors.Join(err, rerr)
				return
			}
			e.logger.Info("lock released", "table", l.Table())
		}()

		if err := pipeline.Set(call.Run, LeaseKey, Lease(l)); err != nil {
			return nil, err
		}
		return next(ctx, call)
	}
}

// servicesInterceptor opens the hash service, state repository and connector
// registry once per invocation and closes them when the command returns.
// Close failures are reported alongside, never instead of, the command's
// own error.
func (e *Engine) servicesInterceptor(next pipeline.Handler) pipeline.Handler {
	return func(ctx context.Context, call *pipeline.Call) (out any, err error) {
		rc := call.Run
		if !needsServices[call.Command] || pipeline.Has(rc, StateKey) {
			return next(ctx, call)
		}

		hasher, err := hash.New(e.settings.Hash.Algorithm)
		if err != nil {
			return nil, err
		}
		if hasher != nil {
			if err := pipeline.Set(rc, HasherKey, hasher); err != nil {
				return nil, err
			}
		}

		repo, err := e.openState(ctx)
		if err != nil {
			return nil, err
		}
		defer func() {
			if cerr := repo.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("close state repository: %w", cerr))
			}
		}()
		if err := pipeline.Set(rc, StateKey, repo); err != nil {
			return nil, err
		}

		registry := e.newRegistry()
		defer func() {
			if cerr := registry.Close(); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}()
		if err := pipeline.Set(rc, ConnectorsKey, registry); err != nil {
			return nil, err
		}

		return next(ctx, call)
	}
}
