package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/roach88/migrant/internal/catalog"
	"github.com/roach88/migrant/internal/change"
	"github.com/roach88/migrant/internal/config"
	"github.com/roach88/migrant/internal/connector"
	"github.com/roach88/migrant/internal/dialect"
	"github.com/roach88/migrant/internal/engine"
	"github.com/roach88/migrant/internal/lock"
	"github.com/roach88/migrant/internal/logger"
	"github.com/roach88/migrant/internal/testutil"
)

// Error classes recorded in the trace.
const (
	ErrClassExecution   = "execution"
	ErrClassLockBusy    = "lock_busy"
	ErrClassHashMissing = "hash_required"
	ErrClassConfig      = "config"
	ErrClassCanceled    = "canceled"
	ErrClassOther       = "error"
)

// HolderName is the owner recorded by hold_lock.
const HolderName = "other-host"

// Epoch is the clock's starting time.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness runs one scenario.
type Harness struct {
	root   string
	clock  *testutil.ManualClock
	rec    *testutil.Recorder
	engine *engine.Engine
	logger *slog.Logger

	holder   *lock.Lock
	closeDB  func() error
	sequence int64
}

// Run executes scenario in workDir, which must be an empty scratch
// directory, and returns the trace with any expectation failures.
func Run(ctx context.Context, scenario *Scenario, workDir string) (*Result, error) {
	h := &Harness{
		root:   filepath.Join(workDir, "changes"),
		clock:  testutil.NewManualClock(Epoch),
		rec:    testutil.NewRecorder(),
		logger: logger.Discard(),
	}
	defer h.close()

	if err := os.MkdirAll(h.root, 0o755); err != nil {
		return nil, fmt.Errorf("create catalog root: %w", err)
	}
	if err := h.writeFiles(scenario.Catalog); err != nil {
		return nil, err
	}

	values := map[string]any{
		"run.user":             "harness",
		"state.relational.dsn": filepath.Join(workDir, "state.db"),
		"state.flatfile.path":  filepath.Join(workDir, "state-{environment}.csv"),
	}
	for k, v := range scenario.Config {
		values[k] = v
	}
	values["changes.dir"] = h.root

	cfg, err := config.New(values)
	if err != nil {
		return nil, err
	}
	// The factory reads h.rec per call so each step can swap the recorder.
	recording := func(context.Context, connector.Config, *slog.Logger) (connector.Connector, error) {
		return h.rec, nil
	}
	h.engine, err = engine.New(cfg,
		engine.WithLogger(h.logger),
		engine.WithClock(h.clock.Now),
		engine.WithConnector(connector.TypeSQL, recording),
		engine.WithConnector(connector.TypeShell, recording),
	)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		ev, err := h.runStep(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d] %s: %w", i, step.Run, err)
		}
		result.Trace = append(result.Trace, ev)
		checkExpect(result, i, step, ev)
	}

	if h.engine.Settings().Lock.Enabled {
		st, err := h.engine.LockStatus(ctx)
		if err != nil {
			return nil, fmt.Errorf("final lock status: %w", err)
		}
		result.LockHeld = st.Held
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// runStep prepares the catalog and clock, runs the command and records the
// outcome. Only harness failures are returned; engine errors are traced.
func (h *Harness) runStep(ctx context.Context, step Step) (TraceEvent, error) {
	h.sequence++
	ev := TraceEvent{Seq: h.sequence, Command: step.Run}

	advance := time.Minute
	if step.Advance != "" {
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return ev, err
		}
		advance += d
	}
	h.clock.Advance(advance)

	if err := h.writeFiles(step.Write); err != nil {
		return ev, err
	}
	for _, rel := range step.Remove {
		if err := os.Remove(filepath.Join(h.root, filepath.FromSlash(rel))); err != nil {
			return ev, fmt.Errorf("remove %s: %w", rel, err)
		}
	}

	h.rec = testutil.NewRecorder()
	for id, msg := range step.Fail {
		h.rec.FailOn(id, errors.New(msg))
	}

	var err error
	switch step.Run {
	case CmdApply:
		var res *engine.ApplyResult
		res, err = h.engine.ApplyPending(ctx, engine.ApplyOptions{Filter: step.Filter, DryRun: step.DryRun})
		if res != nil {
			ev.Pending = ids(res.Pending)
		}
	case CmdRevert:
		var res *engine.RevertResult
		res, err = h.engine.Revert(ctx, engine.RevertOptions{Filter: step.Filter, Limit: step.Limit, DryRun: step.DryRun})
		if res != nil {
			ev.Pending = ids(res.Pending)
		}
	case CmdPending:
		ev.Pending, err = h.listPending(ctx, step.Filter)
	case CmdCatalog:
		var files []change.File
		files, err = h.engine.Catalog(ctx, catalog.Apply, step.Filter)
		for _, f := range files {
			ev.Pending = append(ev.Pending, f.ID().String())
		}
	case CmdState:
	case CmdHoldLock:
		ev.Holder, err = h.holdLock(ctx)
	case CmdReleaseLock:
		_, err = h.engine.ForceRelease(ctx)
	case CmdLockStatus:
		var st lock.Record
		st, err = h.engine.LockStatus(ctx)
		if st.Held {
			ev.Holder = st.LockedBy
		}
	default:
		return ev, fmt.Errorf("unknown command %q", step.Run)
	}

	ev.Executed = h.rec.ExecutedIDs()
	if len(ev.Executed) == 0 {
		ev.Executed = nil
	}
	ev.Error = errorClass(err)

	ledger, lerr := h.ledger(ctx)
	if lerr != nil {
		return ev, fmt.Errorf("read ledger: %w", lerr)
	}
	ev.Ledger = ledger
	return ev, nil
}

func (h *Harness) listPending(ctx context.Context, filter string) ([]string, error) {
	changes, err := h.engine.ListPending(ctx, filter)
	if err != nil || len(changes) == 0 {
		return nil, err
	}
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.ID().String()
	}
	return out, nil
}

// holdLock takes the lock as HolderName through a second connection.
func (h *Harness) holdLock(ctx context.Context) (string, error) {
	if h.holder == nil {
		ls := h.engine.Settings().Lock
		d, err := dialect.Lookup(ls.Dialect)
		if err != nil {
			return "", err
		}
		db, err := dialect.Open(ctx, d, ls.DSN)
		if err != nil {
			return "", err
		}
		l := lock.New(db, d, lock.Options{
			Catalog: ls.Catalog,
			Schema:  ls.Schema,
			Table:   ls.Table,
			Lease:   ls.Lease,
			Owner:   HolderName,
			Now:     h.clock.Now,
			Logger:  h.logger,
		})
		if err := l.Init(ctx); err != nil {
			return "", errors.Join(err, db.Close())
		}
		h.holder, h.closeDB = l, db.Close
	}

	ok, err := h.holder.TryAcquire(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", lock.ErrNotAcquired
	}
	return HolderName, nil
}

func (h *Harness) ledger(ctx context.Context) ([]string, error) {
	records, err := h.engine.ListState(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ChangeID.String()
	}
	return out, nil
}

func (h *Harness) writeFiles(files map[string]string) error {
	for rel, content := range files {
		path := filepath.Join(h.root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(rel), err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", rel, err)
		}
	}
	return nil
}

func (h *Harness) close() {
	if h.closeDB != nil {
		_ = h.closeDB()
	}
}

func ids(in []change.ID) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, id := range in {
		out[i] = id.String()
	}
	return out
}

func errorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, lock.ErrNotAcquired):
		return ErrClassLockBusy
	case engine.IsExecutionError(err):
		return ErrClassExecution
	case errors.Is(err, catalog.ErrHashRequired):
		return ErrClassHashMissing
	case errors.As(err, new(*config.Error)):
		return ErrClassConfig
	case errors.Is(err, context.Canceled):
		return ErrClassCanceled
	default:
		return ErrClassOther
	}
}

// checkExpect compares a step's trace event against its expect clause.
// A step without one must succeed.
func checkExpect(result *Result, index int, step Step, ev TraceEvent) {
	prefix := fmt.Sprintf("steps[%d] %s", index, step.Run)
	exp := step.Expect
	if exp == nil {
		if ev.Error != "" {
			result.AddError(fmt.Sprintf("%s: unexpected %s error", prefix, ev.Error))
		}
		return
	}
	if ev.Error != exp.Error {
		result.AddError(fmt.Sprintf("%s: error class %q, want %q", prefix, ev.Error, exp.Error))
	}
	if exp.Executed != nil && !slices.Equal(ev.Executed, exp.Executed) {
		result.AddError(fmt.Sprintf("%s: executed %v, want %v", prefix, ev.Executed, exp.Executed))
	}
	if exp.Pending != nil && !slices.Equal(ev.Pending, exp.Pending) {
		result.AddError(fmt.Sprintf("%s: pending %v, want %v", prefix, ev.Pending, exp.Pending))
	}
}
