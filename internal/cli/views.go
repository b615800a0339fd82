package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/migrant/internal/change"
	"github.com/roach88/migrant/internal/engine"
	"github.com/roach88/migrant/internal/lock"
	"github.com/roach88/migrant/internal/pending"
	"github.com/roach88/migrant/internal/state"
)

func idStrings(ids []change.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func writeList(b *strings.Builder, ids []string) {
	for _, id := range ids {
		fmt.Fprintf(b, "\n  %s", id)
	}
}

// ApplyView is the output of the apply command.
type ApplyView struct {
	Filter   string   `json:"filter,omitempty"`
	DryRun   bool     `json:"dry_run"`
	Pending  []string `json:"pending"`
	Executed []string `json:"executed"`
}

func newApplyView(r *engine.ApplyResult) ApplyView {
	return ApplyView{
		Filter:   r.Filter,
		DryRun:   r.DryRun,
		Pending:  idStrings(r.Pending),
		Executed: idStrings(r.Executed),
	}
}

func (v ApplyView) String() string {
	var b strings.Builder
	switch {
	case len(v.Pending) == 0:
		b.WriteString("Nothing to apply")
	case v.DryRun:
		fmt.Fprintf(&b, "Dry run: %s would be applied", pluralize(len(v.Pending), "change"))
		writeList(&b, v.Pending)
	default:
		fmt.Fprintf(&b, "Applied %s", pluralize(len(v.Executed), "change"))
		writeList(&b, v.Executed)
	}
	return b.String()
}

// RevertView is the output of the revert command.
type RevertView struct {
	Filter   string   `json:"filter,omitempty"`
	DryRun   bool     `json:"dry_run"`
	Pending  []string `json:"pending"`
	Reverted []string `json:"reverted"`
}

func newRevertView(r *engine.RevertResult) RevertView {
	return RevertView{
		Filter:   r.Filter,
		DryRun:   r.DryRun,
		Pending:  idStrings(r.Pending),
		Reverted: idStrings(r.Reverted),
	}
}

func (v RevertView) String() string {
	var b strings.Builder
	switch {
	case len(v.Pending) == 0:
		b.WriteString("Nothing to revert")
	case v.DryRun:
		fmt.Fprintf(&b, "Dry run: %s would be reverted", pluralize(len(v.Pending), "change"))
		writeList(&b, v.Pending)
	default:
		fmt.Fprintf(&b, "Reverted %s", pluralize(len(v.Reverted), "change"))
		writeList(&b, v.Reverted)
	}
	return b.String()
}

// PendingItem is one pending change.
type PendingItem struct {
	ChangeID string `json:"change_id"`
	Hash     string `json:"hash,omitempty"`
	// Replaces lists ledger records the change supersedes when it runs.
	Replaces []string `json:"replaces,omitempty"`
}

// PendingView is the output of the pending command.
type PendingView struct {
	Changes []PendingItem `json:"changes"`
}

func newPendingView(changes []pending.Change) PendingView {
	v := PendingView{Changes: make([]PendingItem, 0, len(changes))}
	for _, c := range changes {
		v.Changes = append(v.Changes, PendingItem{
			ChangeID: c.ID().String(),
			Hash:     c.Hash,
			Replaces: idStrings(pending.IDs(c.Previous)),
		})
	}
	return v
}

func (v PendingView) String() string {
	if len(v.Changes) == 0 {
		return "No pending changes"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s pending", pluralize(len(v.Changes), "change"))
	for _, c := range v.Changes {
		fmt.Fprintf(&b, "\n  %s", c.ChangeID)
		if len(c.Replaces) > 0 {
			b.WriteString(" (changed)")
		}
	}
	return b.String()
}

// RecordView is one ledger record.
type RecordView struct {
	ChangeID  string    `json:"change_id"`
	FileHash  string    `json:"file_hash,omitempty"`
	AppliedAt time.Time `json:"applied_at"`
	AppliedBy string    `json:"applied_by"`
}

// StateView is the output of the state command.
type StateView struct {
	Records []RecordView `json:"records"`
}

func newStateView(records []state.Record) StateView {
	v := StateView{Records: make([]RecordView, 0, len(records))}
	for _, r := range records {
		v.Records = append(v.Records, RecordView{
			ChangeID:  r.ChangeID.String(),
			FileHash:  r.FileHash,
			AppliedAt: r.ApplyTimestamp,
			AppliedBy: r.AppliedBy,
		})
	}
	return v
}

func (v StateView) String() string {
	if len(v.Records) == 0 {
		return "No changes recorded"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s recorded", pluralize(len(v.Records), "change"))
	for _, r := range v.Records {
		fmt.Fprintf(&b, "\n  %s  %s  %s", r.AppliedAt.Format(time.RFC3339), r.AppliedBy, r.ChangeID)
	}
	return b.String()
}

// CatalogItem is one change file.
type CatalogItem struct {
	ChangeID string `json:"change_id"`
	Path     string `json:"path"`
}

// CatalogView is the output of the catalog command.
type CatalogView struct {
	Direction string        `json:"direction"`
	Files     []CatalogItem `json:"files"`
}

func newCatalogView(direction string, files []change.File) CatalogView {
	v := CatalogView{Direction: direction, Files: make([]CatalogItem, 0, len(files))}
	for _, f := range files {
		v.Files = append(v.Files, CatalogItem{ChangeID: f.ID().String(), Path: f.RelPath()})
	}
	return v
}

func (v CatalogView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s order)", pluralize(len(v.Files), "change file"), v.Direction)
	for _, f := range v.Files {
		fmt.Fprintf(&b, "\n  %s", f.ChangeID)
	}
	return b.String()
}

// LockView is the output of the lock status command.
type LockView struct {
	Held       bool      `json:"held"`
	LockID     string    `json:"lock_id,omitempty"`
	LockedBy   string    `json:"locked_by,omitempty"`
	Expiration time.Time `json:"expiration"`
}

func newLockView(r lock.Record) LockView {
	return LockView{Held: r.Held, LockID: r.LockID, LockedBy: r.LockedBy, Expiration: r.Expiration}
}

func (v LockView) String() string {
	switch {
	case v.Held:
		return fmt.Sprintf("Lock held by %s until %s (lease %s)", v.LockedBy, v.Expiration.Format(time.RFC3339), v.LockID)
	case v.LockID != "":
		return fmt.Sprintf("Lock free (lease %s held by %s expired at %s)", v.LockID, v.LockedBy, v.Expiration.Format(time.RFC3339))
	default:
		return "Lock free"
	}
}

// ReleaseView is the output of the lock release command.
type ReleaseView struct {
	Cleared bool `json:"cleared"`
}

func (v ReleaseView) String() string {
	if v.Cleared {
		return "Lock released"
	}
	return "Lock was not held"
}
