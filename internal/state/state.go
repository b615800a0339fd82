// Package state persists the idempotency ledger: which changes have been
// applied, when, by whom, and with which content hash.
//
// Two backends share the Repository contract: Relational stores the ledger in
// a SQL table, FlatFile in a delimited text file guarded by a shadow copy.
package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/migrant/internal/change"
)

// Record is one ledger entry.
type Record struct {
	ChangeID change.ID
	// FileHash is empty when hashing is disabled.
	FileHash       string
	ApplyTimestamp time.Time
	AppliedBy      string
}

// Repository is the ledger contract shared by every backend.
//
// At most one record exists per change key: an apply and the revert that
// undoes it never coexist.
type Repository interface {
	GetAllStateRecords(ctx context.Context) ([]Record, error)
	SaveStateRecord(ctx context.Context, rec Record) error
	// DeleteStateRecordsByIDs removes the records of ids and returns how many
	// were removed. Unknown ids are ignored.
	DeleteStateRecordsByIDs(ctx context.Context, ids []change.ID) (int, error)
	Close() error
}

// Replacer is implemented by backends that can delete and insert in one
// atomic step.
type Replacer interface {
	ReplaceStateRecord(ctx context.Context, remove []change.ID, rec Record) error
}

// Replace removes the records of ids and saves rec, atomically when repo
// implements Replacer.
func Replace(ctx context.Context, repo Repository, remove []change.ID, rec Record) error {
	if r, ok := repo.(Replacer); ok {
		return r.ReplaceStateRecord(ctx, remove, rec)
	}
	if _, err := repo.DeleteStateRecordsByIDs(ctx, remove); err != nil {
		return err
	}
	return repo.SaveStateRecord(ctx, rec)
}

// ErrClosed is returned by a repository used after Close.
var ErrClosed = errors.New("state repository is closed")

// CorruptionError reports an unreadable flat-file ledger with no shadow copy
// to recover from.
type CorruptionError struct {
	Path string
	Line int
	Err  error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("state file %s is corrupt at line %d: %v; no shadow copy was found, restore the file from a backup before running again",
		e.Path, e.Line, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }
