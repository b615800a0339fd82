package connector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/migrant/internal/change"
	"github.com/roach88/migrant/internal/dialect"
)

// SQL executes a change file's content as one batch against a database.
// The connection is opened on first use.
type SQL struct {
	cfg     Config
	dialect dialect.Dialect
	logger  *slog.Logger

	mu sync.Mutex
	db *sqlx.DB
}

// NewSQL is the Factory for TypeSQL.
func NewSQL(_ context.Context, cfg Config, logger *slog.Logger) (Connector, error) {
	d, err := dialect.Lookup(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("no dsn configured")
	}
	return &SQL{cfg: cfg, dialect: d, logger: logger}, nil
}

func (s *SQL) conn(ctx context.Context) (*sqlx.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}
	db, err := dialect.Open(ctx, s.dialect, s.cfg.DSN)
	if err != nil {
		return nil, err
	}
	s.db = db
	return db, nil
}

// Execute runs the file's content.
func (s *SQL) Execute(ctx context.Context, f change.File, _ string) error {
	content, err := f.Content()
	if err != nil {
		return err
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	if _, err := db.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("execute %s: %w", f.RelPath(), err)
	}
	s.logger.Debug("sql executed", "change", f.ID().String(), "duration", time.Since(start))
	return nil
}

// Close closes the connection if one was opened.
func (s *SQL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
