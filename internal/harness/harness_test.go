package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name, "scenario name must match its file name")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_ReportsUnexpectedError(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: unexpected
description: "a failing change with no expectation"
catalog:
  1/001.a..apply.sql.sql: "a"
steps:
  - run: apply
    fail:
      1/001.a..apply.sql.sql: "boom"
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario, t.TempDir())
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected execution error")
}

func TestRun_ExpectationMismatch(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: mismatch
description: "wrong executed list"
catalog:
  1/001.a..apply.sql.sql: "a"
  1/002.b..apply.sql.sql: "b"
steps:
  - run: apply
    expect:
      executed: [1/002.b..apply.sql.sql, 1/001.a..apply.sql.sql]
assertions:
  - type: final_ledger
    ledger: [1/001.a..apply.sql.sql]
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario, t.TempDir())
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "executed [1/001.a..apply.sql.sql 1/002.b..apply.sql.sql]")
	assert.Contains(t, result.Errors[1], "final_ledger")
}

func TestRun_HashRequired(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: no_hash
description: "apply_on_change without a hash algorithm"
config:
  hash.algorithm: none
catalog:
  1/001.v..apply_on_change.sql.sql: "v"
steps:
  - run: apply
    expect:
      error: hash_required
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario, t.TempDir())
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Trace[0].Executed)
}

func TestRun_RemoveFile(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: removed
description: "a removed apply file is no longer pending"
catalog:
  1/001.a..apply.sql.sql: "a"
  1/002.b..apply.sql.sql: "b"
steps:
  - run: pending
    remove: [1/002.b..apply.sql.sql]
    expect:
      pending: [1/001.a..apply.sql.sql]
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario, t.TempDir())
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestMarshalSnapshot(t *testing.T) {
	result := NewResult()
	result.Trace = append(result.Trace, TraceEvent{Seq: 1, Command: "state", Ledger: []string{}})

	data, err := MarshalSnapshot("snap", result)
	require.NoError(t, err)
	assert.Equal(t, `{
  "scenario_name": "snap",
  "trace": [
    {
      "seq": 1,
      "command": "state",
      "ledger": []
    }
  ]
}
`, string(data))
}
