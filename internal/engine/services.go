package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/migrant/internal/config"
	"github.com/roach88/migrant/internal/connector"
	"github.com/roach88/migrant/internal/dialect"
	"github.com/roach88/migrant/internal/lock"
	"github.com/roach88/migrant/internal/state"
)

// openLock connects to the lock datasource and makes sure the lock table is
// initialised. The returned func closes the connection.
func (e *Engine) openLock(ctx context.Context) (*lock.Lock, func() error, error) {
	ls := e.settings.Lock
	d, err := dialect.Lookup(ls.Dialect)
	if err != nil {
		return nil, nil, &config.Error{Key: "lock.dialect", Message: "unsupported dialect", Err: err}
	}
	db, err := dialect.Open(ctx, d, ls.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open lock datasource: %w", err)
	}

	l := lock.New(db, d, lock.Options{
		Catalog: ls.Catalog,
		Schema:  ls.Schema,
		Table:   ls.Table,
		Lease:   ls.Lease,
		Timeout: ls.Timeout,
		Owner:   e.settings.Run.User,
		Now:     e.now,
		Logger:  e.logger,
	})
	if err := l.Init(ctx); err != nil {
		return nil, nil, errors.Join(err, db.Close())
	}
	return l, db.Close, nil
}

// openState opens the configured ledger backend.
func (e *Engine) openState(ctx context.Context) (state.Repository, error) {
	s := e.settings.State
	switch s.Backend {
	case config.BackendRelational:
		d, err := dialect.Lookup(s.Relational.Dialect)
		if err != nil {
			return nil, &config.Error{Key: "state.relational.dialect", Message: "unsupported dialect", Err: err}
		}
		db, err := dialect.Open(ctx, d, s.Relational.DSN)
		if err != nil {
			return nil, fmt.Errorf("open state datasource: %w", err)
		}
		repo, err := state.NewRelational(ctx, db, d, state.RelationalOptions{
			Catalog: s.Relational.Catalog,
			Schema:  s.Relational.Schema,
			Table:   s.Relational.Table,
			Columns: columns(s.Relational.Columns),
			Logger:  e.logger,
		})
		if err != nil {
			return nil, errors.Join(err, db.Close())
		}
		return repo, nil

	case config.BackendFlatFile:
		return state.NewFlatFile(ctx, state.FlatFileOptions{
			Path:        e.settings.FlatFilePath(),
			LockTimeout: s.FlatFile.LockTimeout,
			Logger:      e.logger,
		})

	default:
		return nil, &config.Error{Key: "state.backend", Message: fmt.Sprintf("unknown backend %q", s.Backend)}
	}
}

func columns(c config.ColumnsSettings) state.Columns {
	col := func(s config.ColumnSettings) state.Column { return state.Column{Name: s.Name, Type: s.Type} }
	return state.Columns{
		ID:        col(c.ID),
		Hash:      col(c.Hash),
		Timestamp: col(c.Timestamp),
		AppliedBy: col(c.AppliedBy),
	}
}

func (e *Engine) newRegistry() *connector.Registry {
	r := connector.NewRegistry(e.cfg.ConnectorResolver(e.settings.State.Relational.Datasource), e.logger)
	for typ, f := range e.factories {
		r.Register(typ, f)
	}
	return r
}
