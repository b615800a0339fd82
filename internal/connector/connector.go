// Package connector executes change file payloads against target systems.
//
// A Registry hands out one Connector per connector name for the lifetime of a
// run and closes them all at the end. The name comes from the connector
// segment of a change file name; its type (sql, shell, or anything registered
// with Register) comes from configuration.
package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/migrant/internal/change"
)

// Connector runs one change file against its target.
type Connector interface {
	Execute(ctx context.Context, f change.File, env string) error
	Close() error
}

// Config is the resolved configuration of one named connector.
type Config struct {
	Name    string
	Type    string
	Dialect string
	DSN     string
	Shell   string
}

// Resolver returns the configuration of the connector called name.
type Resolver func(name string) (Config, error)

// Factory builds a connector from its configuration.
type Factory func(ctx context.Context, cfg Config, logger *slog.Logger) (Connector, error)

// Built-in connector types.
const (
	TypeSQL   = "sql"
	TypeShell = "shell"
)

// UnknownTypeError reports a connector whose configured type has no factory.
type UnknownTypeError struct {
	Name  string
	Type  string
	Known []string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("connector %q: unknown type %q (known: %v)", e.Name, e.Type, e.Known)
}

// Registry caches connectors by name.
type Registry struct {
	mu        sync.Mutex
	resolve   Resolver
	factories map[string]Factory
	cache     map[string]Connector
	order     []string
	logger    *slog.Logger
}

// NewRegistry returns a registry with the sql and shell types registered.
func NewRegistry(resolve Resolver, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		resolve:   resolve,
		factories: map[string]Factory{},
		cache:     map[string]Connector{},
		logger:    logger,
	}
	r.Register(TypeSQL, NewSQL)
	r.Register(TypeShell, NewShell)
	return r
}

// Register installs or replaces the factory for typ.
func (r *Registry) Register(typ string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typ] = f
}

// Get returns the connector called name, building it on first use.
func (r *Registry) Get(ctx context.Context, name string) (Connector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.cache[name]; ok {
		return c, nil
	}

	cfg, err := r.resolve(name)
	if err != nil {
		return nil, fmt.Errorf("connector %q: %w", name, err)
	}
	cfg.Name = name

	factory, ok := r.factories[cfg.Type]
	if !ok {
		known := make([]string, 0, len(r.factories))
		for k := range r.factories {
			known = append(known, k)
		}
		sort.Strings(known)
		return nil, &UnknownTypeError{Name: name, Type: cfg.Type, Known: known}
	}

	c, err := factory(ctx, cfg, r.logger.With("connector", name))
	if err != nil {
		return nil, fmt.Errorf("connector %q (%s): %w", name, cfg.Type, err)
	}

	r.cache[name] = c
	r.order = append(r.order, name)
	r.logger.Debug("connector ready", "connector", name, "type", cfg.Type)
	return c, nil
}

// Close closes every cached connector, newest first, and reports all
// failures together.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		if err := r.cache[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connector %q: %w", name, err))
		}
	}
	r.cache = map[string]Connector{}
	r.order = nil
	return errors.Join(errs...)
}
