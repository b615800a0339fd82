package pipeline

import (
	"context"
	"fmt"
)

// Command is a unit of work executed with a RunContext.
type Command[R any] interface {
	// Name identifies the command in logs and errors.
	Name() string
	Execute(ctx context.Context, rc *RunContext) (R, error)
}

// Call describes the command travelling through the chain.
type Call struct {
	Command string
	Run     *RunContext

	invoke func(ctx context.Context, rc *RunContext) (any, error)
}

// Handler processes a Call; interceptors wrap handlers.
type Handler func(ctx context.Context, call *Call) (any, error)

// Interceptor wraps the rest of the chain with a cross-cutting concern.
type Interceptor func(next Handler) Handler

// invoke is the terminal handler: it runs the command itself.
func invoke(ctx context.Context, call *Call) (any, error) {
	return call.invoke(ctx, call.Run)
}

// Executor runs commands through a fixed chain of interceptors. The first
// interceptor is the outermost.
type Executor struct {
	handler Handler
}

// NewExecutor builds the chain once.
func NewExecutor(interceptors ...Interceptor) *Executor {
	h := Handler(invoke)
	for i := len(interceptors) - 1; i >= 0; i-- {
		h = interceptors[i](h)
	}
	return &Executor{handler: h}
}

// Execute runs cmd with rc. When rc is already running a command, cmd is a
// nested command and is invoked directly without the interceptor chain.
func Execute[R any](ctx context.Context, e *Executor, rc *RunContext, cmd Command[R]) (R, error) {
	var zero R
	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("%s: %w", cmd.Name(), err)
	}

	if rc.active {
		return cmd.Execute(ctx, rc)
	}

	rc.active = true
	defer func() { rc.active = false }()

	call := &Call{
		Command: cmd.Name(),
		Run:     rc,
		invoke: func(ctx context.Context, rc *RunContext) (any, error) {
			return cmd.Execute(ctx, rc)
		},
	}

	out, err := e.handler(ctx, call)
	if out == nil {
		return zero, err
	}
	r, ok := out.(R)
	if !ok {
		return zero, fmt.Errorf("%s: chain returned %T, want %T", cmd.Name(), out, zero)
	}
	return r, err
}

type funcCommand[R any] struct {
	name string
	fn   func(ctx context.Context, rc *RunContext) (R, error)
}

func (c funcCommand[R]) Name() string { return c.name }

func (c funcCommand[R]) Execute(ctx context.Context, rc *RunContext) (R, error) {
	return c.fn(ctx, rc)
}

// Func adapts a function into a named Command.
func Func[R any](name string, fn func(ctx context.Context, rc *RunContext) (R, error)) Command[R] {
	return funcCommand[R]{name: name, fn: fn}
}
