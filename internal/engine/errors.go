package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/migrant/internal/change"
)

// ExecutionError reports a change whose connector failed. The run stops at
// the failing change; earlier changes keep their ledger records.
type ExecutionError struct {
	Change change.ID
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s: %v", e.Change, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// IsExecutionError reports whether err is or wraps an ExecutionError.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}
