// Package pending decides which catalog entries still need to run, given the
// ledger.
//
// An apply change is pending when its id has no ledger record, or when it is
// an apply_on_change change whose recorded hash differs from the hash of its
// current content. apply_always changes are always pending. A revert change
// is pending when the ledger holds a record for the same logical change.
package pending

import (
	"fmt"

	"github.com/roach88/migrant/internal/change"
	"github.com/roach88/migrant/internal/hash"
	"github.com/roach88/migrant/internal/state"
)

// Change is a change file that needs to run.
type Change struct {
	File change.File
	// Hash of the file content; empty when hashing is disabled.
	Hash string
	// Previous holds the ledger records the run supersedes: the outdated
	// record of a re-applied apply_on_change change, or the record a revert
	// removes.
	Previous []state.Record
}

// ID is shorthand for c.File.ID().
func (c Change) ID() change.ID { return c.File.ID() }

// Applies returns the pending subset of files, which must be an apply
// catalog, preserving its order. hasher may be nil when hashing is disabled.
func Applies(files []change.File, records []state.Record, hasher hash.Service) ([]Change, error) {
	byID := make(map[change.ID]state.Record, len(records))
	byKey := make(map[change.Key][]state.Record, len(records))
	for _, r := range records {
		byID[r.ChangeID] = r
		byKey[r.ChangeID.Key()] = append(byKey[r.ChangeID.Key()], r)
	}

	var out []Change
	for _, f := range files {
		id := f.ID()
		if !id.Type.IsApply() {
			return nil, fmt.Errorf("pending applies: %s is not an apply change", id)
		}

		rec, recorded := byID[id]
		if recorded && id.Type != change.TypeApplyOnChange {
			continue
		}

		var sum string
		if hasher != nil && id.Type.Recorded() {
			content, err := f.Content()
			if err != nil {
				return nil, err
			}
			sum = hasher.Hash(content)
		}

		if recorded {
			if hasher == nil {
				return nil, fmt.Errorf("pending applies: %s: no hash algorithm configured", id)
			}
			if rec.FileHash == sum {
				continue
			}
		}

		// Records of the same logical change under another type (or this
		// one, when re-applying) are replaced when the change is recorded.
		out = append(out, Change{File: f, Hash: sum, Previous: byKey[id.Key()]})
	}
	return out, nil
}

// Reverts returns the revert files whose logical change is recorded in the
// ledger, preserving the catalog's (reverse) order.
func Reverts(files []change.File, records []state.Record) ([]Change, error) {
	byKey := make(map[change.Key][]state.Record, len(records))
	for _, r := range records {
		byKey[r.ChangeID.Key()] = append(byKey[r.ChangeID.Key()], r)
	}

	var out []Change
	for _, f := range files {
		id := f.ID()
		if id.Type != change.TypeRevert {
			return nil, fmt.Errorf("pending reverts: %s is not a revert change", id)
		}
		prev, ok := byKey[id.Key()]
		if !ok {
			continue
		}
		out = append(out, Change{File: f, Previous: prev})
	}
	return out, nil
}

// IDs returns the ids of records.
func IDs(records []state.Record) []change.ID {
	ids := make([]change.ID, len(records))
	for i, r := range records {
		ids[i] = r.ChangeID
	}
	return ids
}
