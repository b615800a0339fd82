package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/first_run.yaml")
	require.NoError(t, err)
	assert.Equal(t, "first_run", s.Name)
	assert.Len(t, s.Catalog, 2)
	require.Len(t, s.Steps, 3)
	assert.Equal(t, CmdApply, s.Steps[0].Run)
	require.NotNil(t, s.Steps[1].Expect)
	assert.NotNil(t, s.Steps[1].Expect.Executed)
	assert.Empty(t, s.Steps[1].Expect.Executed)
	assert.Equal(t, "sql", s.Config["connectors.jdbc.type"])
}

func TestLoadScenario_Missing(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "name: x\ndescription: d\nsteps: [{run: apply}]\nstep: []\n", "failed to parse YAML"},
		{"no name", "description: d\nsteps: [{run: apply}]\n", "name is required"},
		{"no description", "name: x\nsteps: [{run: apply}]\n", "description is required"},
		{"no steps", "name: x\ndescription: d\n", "steps list is required"},
		{"unknown command", "name: x\ndescription: d\nsteps: [{run: migrate}]\n", `unknown command "migrate"`},
		{"negative limit", "name: x\ndescription: d\nsteps: [{run: revert, limit: -1}]\n", "limit must be non-negative"},
		{"bad advance", "name: x\ndescription: d\nsteps: [{run: apply, advance: soon}]\n", "advance"},
		{"assertion type", "name: x\ndescription: d\nsteps: [{run: apply}]\nassertions: [{type: trace_contains}]\n", "unknown assertion type"},
		{"order without changes", "name: x\ndescription: d\nsteps: [{run: apply}]\nassertions: [{type: executed_order}]\n", "changes list is required"},
		{"count without change", "name: x\ndescription: d\nsteps: [{run: apply}]\nassertions: [{type: execution_count}]\n", "change is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
