package state

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/migrant/internal/change"
)

const (
	flatFileHeader = "# migrant-state v1\n"
	shadowSuffix   = ".shadow"

	// DefaultLockTimeout bounds waiting for the in-process file lock.
	DefaultLockTimeout = 10 * time.Second
)

// FlatFileOptions configures a FlatFile repository.
type FlatFileOptions struct {
	Path        string
	LockTimeout time.Duration
	Logger      *slog.Logger
}

// FlatFile stores the ledger as comma-separated lines, one record per line:
// change id, file hash, apply timestamp (RFC 3339, UTC), applied by.
//
// Saves append. Deletes rewrite the whole file in two phases: the new content
// is written and fsynced to a sibling ".shadow" file, which is then renamed
// over the live file. The live file is therefore always either the old or the
// new ledger. A shadow found on open belongs to a rewrite that crashed before
// its rename and is discarded.
//
// Access is serialised within one process only. Concurrent writers in
// different processes are not supported.
type FlatFile struct {
	path   string
	shadow string
	lock   *rwLock
	logger *slog.Logger
	closed bool
}

// NewFlatFile opens (creating when absent) the ledger file at opts.Path,
// cleaning up after an interrupted rewrite first.
func NewFlatFile(ctx context.Context, opts FlatFileOptions) (*FlatFile, error) {
	if opts.Path == "" {
		return nil, errors.New("flat-file state: empty path")
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	abs, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("flat-file state %s: %w", opts.Path, err)
	}

	f := &FlatFile{
		path:   abs,
		shadow: abs + shadowSuffix,
		lock:   lockFor(abs, opts.LockTimeout),
		logger: opts.Logger,
	}

	unlock, err := f.lock.lock(ctx, f.path)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := f.recover(); err != nil {
		return nil, err
	}
	if err := f.ensureExists(); err != nil {
		return nil, err
	}
	return f, nil
}

// Path returns the absolute ledger path.
func (f *FlatFile) Path() string { return f.path }

func (f *FlatFile) recover() error {
	if _, err := os.Stat(f.shadow); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("check shadow %s: %w", f.shadow, err)
	}

	// The rename never happened, so the live file still holds the last
	// acknowledged ledger.
	f.logger.Warn("discarding shadow of an interrupted rewrite",
		"path", f.path, "shadow", f.shadow)
	if err := os.Remove(f.shadow); err != nil {
		return fmt.Errorf("remove shadow %s: %w", f.shadow, err)
	}
	return syncDir(filepath.Dir(f.path))
}

func (f *FlatFile) ensureExists() error {
	if _, err := os.Stat(f.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat state file %s: %w", f.path, err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	if err := writeDurable(f.path, nil); err != nil {
		return err
	}
	f.logger.Info("state file created", "path", f.path)
	return nil
}

// GetAllStateRecords returns every record in file order.
func (f *FlatFile) GetAllStateRecords(ctx context.Context) ([]Record, error) {
	if f.closed {
		return nil, ErrClosed
	}
	unlock, err := f.lock.rlock(ctx, f.path)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return f.read()
}

// SaveStateRecord appends rec.
func (f *FlatFile) SaveStateRecord(ctx context.Context, rec Record) error {
	if f.closed {
		return ErrClosed
	}
	unlock, err := f.lock.lock(ctx, f.path)
	if err != nil {
		return err
	}
	defer unlock()

	file, err := os.OpenFile(f.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open state file %s: %w", f.path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(encodeRecord(rec)); err != nil {
		return fmt.Errorf("append to state file %s: %w", f.path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("append to state file %s: %w", f.path, err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync state file %s: %w", f.path, err)
	}
	return file.Close()
}

// DeleteStateRecordsByIDs rewrites the file without the records of ids.
func (f *FlatFile) DeleteStateRecordsByIDs(ctx context.Context, ids []change.ID) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}
	unlock, err := f.lock.lock(ctx, f.path)
	if err != nil {
		return 0, err
	}
	defer unlock()

	records, err := f.read()
	if err != nil {
		return 0, err
	}
	kept, removed := without(records, ids)
	if removed == 0 {
		return 0, nil
	}
	if err := f.rewrite(ctx, kept); err != nil {
		return 0, err
	}
	return removed, nil
}

// ReplaceStateRecord removes the records of ids and adds rec in a single
// rewrite.
func (f *FlatFile) ReplaceStateRecord(ctx context.Context, remove []change.ID, rec Record) error {
	if f.closed {
		return ErrClosed
	}
	unlock, err := f.lock.lock(ctx, f.path)
	if err != nil {
		return err
	}
	defer unlock()

	records, err := f.read()
	if err != nil {
		return err
	}
	kept, _ := without(records, remove)
	return f.rewrite(ctx, append(kept, rec))
}

// Close marks the repository closed. The file holds no open handles between
// calls.
func (f *FlatFile) Close() error {
	f.closed = true
	return nil
}

func without(records []Record, ids []change.ID) ([]Record, int) {
	drop := make(map[change.ID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := records[:0:0]
	for _, r := range records {
		if _, ok := drop[r.ChangeID]; ok {
			continue
		}
		kept = append(kept, r)
	}
	return kept, len(records) - len(kept)
}

func (f *FlatFile) read() ([]Record, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open state file %s: %w", f.path, err)
	}
	defer file.Close()

	// Only the exact header line is skipped; ids may begin with '#'.
	br := bufio.NewReader(file)
	skipped := 0
	if head, _ := br.Peek(len(flatFileHeader)); string(head) == flatFileHeader {
		if _, err := br.Discard(len(flatFileHeader)); err != nil {
			return nil, fmt.Errorf("read state file %s: %w", f.path, err)
		}
		skipped = 1
	}

	r := csv.NewReader(br)
	r.FieldsPerRecord = 4

	var records []Record
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &CorruptionError{Path: f.path, Line: pe.Line + skipped, Err: pe.Err}
			}
			return nil, fmt.Errorf("read state file %s: %w", f.path, err)
		}

		rec, err := decodeRecord(fields)
		if err != nil {
			line, _ := r.FieldPos(0)
			return nil, &CorruptionError{Path: f.path, Line: line + skipped, Err: err}
		}
		records = append(records, rec)
	}
	return records, nil
}

// rewrite replaces the file content with records: write the shadow, fsync,
// rename it over the live file, fsync the directory.
func (f *FlatFile) rewrite(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("rewrite state file %s: %w", f.path, err)
	}

	if err := writeDurable(f.shadow, records); err != nil {
		_ = os.Remove(f.shadow)
		return fmt.Errorf("rewrite state file %s: %w", f.path, err)
	}
	if err := os.Rename(f.shadow, f.path); err != nil {
		_ = os.Remove(f.shadow)
		return fmt.Errorf("replace state file %s: %w", f.path, err)
	}
	return syncDir(filepath.Dir(f.path))
}

// writeDurable truncates path, writes records with the header and fsyncs.
func writeDurable(path string, records []Record) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	if err := writeRecords(file, records); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	return file.Close()
}

func writeRecords(w io.Writer, records []Record) error {
	if _, err := io.WriteString(w, flatFileHeader); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	for _, rec := range records {
		if err := cw.Write(encodeRecord(rec)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open directory %s: %w", dir, err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync directory %s: %w", dir, err)
	}
	return nil
}

func encodeRecord(rec Record) []string {
	return []string{
		rec.ChangeID.String(),
		rec.FileHash,
		rec.ApplyTimestamp.UTC().Format(time.RFC3339Nano),
		rec.AppliedBy,
	}
}

func decodeRecord(fields []string) (Record, error) {
	id, err := change.Parse(fields[0])
	if err != nil {
		return Record{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, fields[2])
	if err != nil {
		return Record{}, fmt.Errorf("apply timestamp: %w", err)
	}
	return Record{
		ChangeID:       id,
		FileHash:       fields[1],
		ApplyTimestamp: ts.UTC(),
		AppliedBy:      fields[3],
	}, nil
}
