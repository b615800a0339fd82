package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/migrant/internal/connector"
	"github.com/roach88/migrant/internal/dialect"
	"github.com/roach88/migrant/internal/engine"
	"github.com/roach88/migrant/internal/lock"
	"github.com/roach88/migrant/internal/testutil"
)

type project struct {
	dir   string
	dsn   string
	rec   *testutil.Recorder
	clock *testutil.ManualClock
}

func newProject(t *testing.T) *project {
	t.Helper()
	dir := t.TempDir()
	p := &project{
		dir:   dir,
		dsn:   filepath.Join(dir, "state.db"),
		rec:   testutil.NewRecorder(),
		clock: testutil.NewManualClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
	}
	testutil.WriteTree(t, filepath.Join(dir, "changes"), map[string]string{
		"1.0/001.create..apply.sql.sql":  "CREATE TABLE t (id INT);",
		"1.0/002.seed..apply.sql.sql":    "INSERT INTO t VALUES (1);",
		"1.0/001.create..revert.sql.sql": "DROP TABLE t;",
		"1.0/002.seed..revert.sql.sql":   "DELETE FROM t;",
	})
	return p
}

// run executes the CLI with args and returns stdout, stderr and the error.
func (p *project) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	recording := func(context.Context, connector.Config, *slog.Logger) (connector.Connector, error) {
		return p.rec, nil
	}
	cmd := NewRootCommand(
		engine.WithClock(p.clock.Now),
		engine.WithConnector(connector.TypeSQL, recording),
	)

	base := []string{
		"--project-dir", p.dir,
		"--changes", filepath.Join(p.dir, "changes"),
		"--set", "state.relational.dsn=" + p.dsn,
		"--set", "run.user=tester",
		"--log-format", "json",
	}
	cmd.SetArgs(append(base, args...))
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func decode[T any](t *testing.T, out string) (T, *CLIError) {
	t.Helper()
	var resp struct {
		Status string    `json:"status"`
		Data   T         `json:"data"`
		Error  *CLIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp.Data, resp.Error
}

func TestApplyCommand_JSON(t *testing.T) {
	p := newProject(t)

	out, _, err := p.run(t, "--format", "json", "apply")
	require.NoError(t, err)
	view, cliErr := decode[ApplyView](t, out)
	assert.Nil(t, cliErr)
	assert.Equal(t, []string{"1.0/001.create..apply.sql.sql", "1.0/002.seed..apply.sql.sql"}, view.Executed)
	assert.Equal(t, view.Executed, p.rec.ExecutedIDs())

	out, _, err = p.run(t, "pending")
	require.NoError(t, err)
	assert.Equal(t, "No pending changes\n", out)

	out, _, err = p.run(t, "--format", "json", "state")
	require.NoError(t, err)
	st, _ := decode[StateView](t, out)
	require.Len(t, st.Records, 2)
	assert.Equal(t, "tester", st.Records[0].AppliedBy)
	assert.True(t, p.clock.Now().Equal(st.Records[0].AppliedAt))
}

func TestApplyCommand_DryRunText(t *testing.T) {
	p := newProject(t)

	out, _, err := p.run(t, "apply", "--dry-run", "--filter", "seed")
	require.NoError(t, err)
	assert.Equal(t, "Dry run: 1 change would be applied\n  1.0/002.seed..apply.sql.sql\n", out)
	assert.Empty(t, p.rec.ExecutedIDs())
}

func TestApplyCommand_ChangeFailure(t *testing.T) {
	p := newProject(t)
	p.rec.FailOn("1.0/002.seed..apply.sql.sql", errors.New("constraint violated"))

	out, _, err := p.run(t, "--format", "json", "apply")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, cliErr := decode[any](t, out)
	require.NotNil(t, cliErr)
	assert.Equal(t, ErrCodeExecution, cliErr.Code)
	assert.Contains(t, cliErr.Message, "constraint violated")

	details, ok := cliErr.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"1.0/001.create..apply.sql.sql"}, details["executed"])
}

func TestApplyCommand_LockBusy(t *testing.T) {
	p := newProject(t)
	ctx := context.Background()

	d, err := dialect.Lookup(dialect.SQLite)
	require.NoError(t, err)
	db, err := dialect.Open(ctx, d, p.dsn)
	require.NoError(t, err)
	defer db.Close()
	holder := lock.New(db, d, lock.Options{Owner: "elsewhere", Now: p.clock.Now})
	require.NoError(t, holder.Init(ctx))
	ok, err := holder.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, errOut, err := p.run(t, "apply")
	require.Error(t, err)
	assert.Equal(t, ExitLockBusy, GetExitCode(err))
	assert.Contains(t, errOut, "Error [E003]")
	assert.Empty(t, p.rec.ExecutedIDs())

	out, _, err := p.run(t, "lock", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Lock held by elsewhere")

	out, _, err = p.run(t, "lock", "release")
	require.NoError(t, err)
	assert.Equal(t, "Lock released\n", out)

	_, _, err = p.run(t, "apply")
	require.NoError(t, err)
	assert.Len(t, p.rec.ExecutedIDs(), 2)
}

func TestRevertCommand(t *testing.T) {
	p := newProject(t)

	_, _, err := p.run(t, "apply")
	require.NoError(t, err)
	p.rec.Reset()

	out, _, err := p.run(t, "revert", "--limit", "1")
	require.NoError(t, err)
	assert.Equal(t, "Reverted 1 change\n  1.0/002.seed..revert.sql.sql\n", out)

	out, _, err = p.run(t, "--format", "json", "revert")
	require.NoError(t, err)
	view, _ := decode[RevertView](t, out)
	assert.Equal(t, []string{"1.0/001.create..revert.sql.sql"}, view.Reverted)

	out, _, err = p.run(t, "state")
	require.NoError(t, err)
	assert.Equal(t, "No changes recorded\n", out)

	_, _, err = p.run(t, "revert", "--limit", "-1")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCatalogCommand(t *testing.T) {
	p := newProject(t)

	out, _, err := p.run(t, "catalog", "--direction", "revert")
	require.NoError(t, err)
	assert.Equal(t, "2 change files (revert order)\n  1.0/002.seed..revert.sql.sql\n  1.0/001.create..revert.sql.sql\n", out)

	_, _, err = p.run(t, "catalog", "--direction", "sideways")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvalidFormat(t *testing.T) {
	p := newProject(t)

	_, errOut, err := p.run(t, "--format", "yaml", "state")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, errOut, "invalid format")
}

func TestConfigFileAndMetrics(t *testing.T) {
	p := newProject(t)
	textfile := filepath.Join(p.dir, "migrant.prom")
	testutil.WriteFile(t, p.dir, "migrant.yaml", `
hash:
  algorithm: sha512
metrics:
  textfile: `+textfile+`
`)

	out, _, err := p.run(t, "--format", "json", "pending")
	require.NoError(t, err)
	view, _ := decode[PendingView](t, out)
	require.Len(t, view.Changes, 2)
	assert.Len(t, view.Changes[0].Hash, 128)

	data, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "migrant_pending_changes 2")
}

func TestConfigFileRejectedBySchema(t *testing.T) {
	p := newProject(t)
	testutil.WriteFile(t, p.dir, "migrant.yaml", "state:\n  backend: mongo\n")

	_, errOut, err := p.run(t, "state")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, errOut, "Error [E002]")
}
