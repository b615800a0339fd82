package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/migrant/internal/change"
)

// Execution is one change file run by a Recorder.
type Execution struct {
	ChangeID    string
	Environment string
	Content     string
}

// Recorder is a connector that records what it is asked to execute instead
// of touching a target system. It satisfies connector.Connector.
type Recorder struct {
	mu         sync.Mutex
	executions []Execution
	failures   map[string]error
	closed     int
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{failures: map[string]error{}}
}

// FailOn makes Execute return err for the change with the given canonical id.
func (r *Recorder) FailOn(changeID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[changeID] = err
}

func (r *Recorder) Execute(ctx context.Context, f change.File, env string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	content, err := f.Content()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := f.ID().String()
	if err, ok := r.failures[id]; ok {
		return fmt.Errorf("recorder: %w", err)
	}
	r.executions = append(r.executions, Execution{ChangeID: id, Environment: env, Content: string(content)})
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

// Executions returns a copy of everything executed so far.
func (r *Recorder) Executions() []Execution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Execution(nil), r.executions...)
}

// ExecutedIDs returns the canonical ids executed so far, in order.
func (r *Recorder) ExecutedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.executions))
	for i, e := range r.executions {
		ids[i] = e.ChangeID
	}
	return ids
}

// Reset forgets recorded executions, keeping configured failures.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executions = nil
}

// Closed reports how many times Close was called.
func (r *Recorder) Closed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
