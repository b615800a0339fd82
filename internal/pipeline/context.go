package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateValue is returned when a key is set twice in one RunContext.
	ErrDuplicateValue = errors.New("value already set")
	// ErrMissingValue is returned when reading a key that was never set.
	ErrMissingValue = errors.New("value not set")
)

// Key identifies a value of type T in a RunContext. Keys compare by identity,
// so declare each one once as a package-level variable.
type Key[T any] struct {
	name string
}

// NewKey declares a key. The name is only used in error messages.
func NewKey[T any](name string) *Key[T] {
	return &Key[T]{name: name}
}

func (k *Key[T]) String() string { return k.name }

// RunContext carries the values of one top-level invocation.
// It is not safe for concurrent use.
type RunContext struct {
	values map[any]any
	active bool
}

// NewRunContext returns an empty context.
func NewRunContext() *RunContext {
	return &RunContext{values: make(map[any]any)}
}

// Active reports whether a command is currently executing with this context.
func (rc *RunContext) Active() bool {
	return rc.active
}

// Set stores v under k. It fails if k already holds a value.
func Set[T any](rc *RunContext, k *Key[T], v T) error {
	if _, ok := rc.values[k]; ok {
		return fmt.Errorf("run context %s: %w", k.name, ErrDuplicateValue)
	}
	rc.values[k] = v
	return nil
}

// Get returns the value stored under k. It fails if k was never set.
func Get[T any](rc *RunContext, k *Key[T]) (T, error) {
	v, ok := rc.values[k]
	if !ok {
		var zero T
		return zero, fmt.Errorf("run context %s: %w", k.name, ErrMissingValue)
	}
	return v.(T), nil
}

// Lookup returns the value stored under k and whether it was set.
func Lookup[T any](rc *RunContext, k *Key[T]) (T, bool) {
	v, ok := rc.values[k]
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// Has reports whether k holds a value.
func Has[T any](rc *RunContext, k *Key[T]) bool {
	_, ok := rc.values[k]
	return ok
}
