package lock

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAcquired means another holder's lease is still valid.
	ErrNotAcquired = errors.New("could not acquire lock: held by another run")
	// ErrLeaseLost means our lease expired and was taken over, or was released.
	ErrLeaseLost = errors.New("lock lease lost")
)

// InvariantError reports a lock statement that changed a number of rows other
// than zero or one, or a lock table that does not hold exactly one row.
// It indicates external tampering or a corrupted lock table.
type InvariantError struct {
	Op    string
	Table string
	Rows  int64
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("lock table %s: %s affected %d rows, expected exactly 1", e.Table, e.Op, e.Rows)
}

// IsInvariantError reports whether err is or wraps an InvariantError.
func IsInvariantError(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}
