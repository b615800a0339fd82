package engine

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/roach88/migrant/internal/config"
	"github.com/roach88/migrant/internal/connector"
	"github.com/roach88/migrant/internal/hash"
	"github.com/roach88/migrant/internal/metrics"
	"github.com/roach88/migrant/internal/pipeline"
	"github.com/roach88/migrant/internal/state"
)

// Lease is the part of the distributed lock a command sees: it renews the
// lease while work continues.
type Lease interface {
	Renew(ctx context.Context) error
}

// RunContext keys. Services are registered by the services interceptor and
// the lease by the lock interceptor.
var (
	SettingsKey   = pipeline.NewKey[*config.Settings]("settings")
	StateKey      = pipeline.NewKey[state.Repository]("state repository")
	ConnectorsKey = pipeline.NewKey[*connector.Registry]("connector registry")
	HasherKey     = pipeline.NewKey[hash.Service]("hash service")
	LeaseKey      = pipeline.NewKey[Lease]("lock lease")
)

// Engine runs top-level operations against one configuration.
type Engine struct {
	cfg       *config.Configuration
	settings  *config.Settings
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	executor  *pipeline.Executor
	factories map[string]connector.Factory
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock sets the wall clock used for apply timestamps and lock leases.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMetrics records into m instead of a fresh collector set.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithConnector installs a connector factory for type typ, replacing the
// built-in one of the same type.
func WithConnector(typ string, f connector.Factory) Option {
	return func(e *Engine) { e.factories[typ] = f }
}

// New returns an Engine for cfg. The configuration is decoded and checked
// here; nothing is opened until an operation runs.
func New(cfg *config.Configuration, opts ...Option) (*Engine, error) {
	settings, err := cfg.Settings()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		settings:  settings,
		logger:    slog.Default(),
		now:       time.Now,
		factories: map[string]connector.Factory{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.New()
	}
	e.logger = e.logger.With("environment", settings.Environment)

	e.executor = pipeline.NewExecutor(e.lockInterceptor, e.servicesInterceptor)
	return e, nil
}

// Settings returns the decoded configuration.
func (e *Engine) Settings() *config.Settings { return e.settings }

// Metrics returns the engine's collectors.
func (e *Engine) Metrics() *metrics.Metrics { return e.metrics }

// run executes cmd as a top-level command in a fresh RunContext.
func run[R any](ctx context.Context, e *Engine, cmd pipeline.Command[R]) (R, error) {
	rc := pipeline.NewRunContext()
	if err := pipeline.Set(rc, SettingsKey, e.settings); err != nil {
		var zero R
		return zero, err
	}
	return pipeline.Execute(ctx, e.executor, rc, cmd)
}

// compileFilter falls back to the configured default filter. It returns the
// expression actually used.
func (e *Engine) compileFilter(filter string) (*regexp.Regexp, string, error) {
	if filter == "" {
		filter = e.settings.Changes.Filter
	}
	if filter == "" {
		return nil, "", nil
	}
	re, err := regexp.Compile(filter)
	if err != nil {
		return nil, "", &config.Error{Key: "changes.filter", Message: fmt.Sprintf("invalid filter %q", filter), Err: err}
	}
	return re, filter, nil
}
