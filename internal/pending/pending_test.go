package pending

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/migrant/internal/change"
	"github.com/roach88/migrant/internal/hash"
	"github.com/roach88/migrant/internal/state"
	"github.com/roach88/migrant/internal/testutil"
)

type fixture struct {
	root   string
	hasher hash.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h, err := hash.New(hash.SHA256)
	require.NoError(t, err)
	return &fixture{root: t.TempDir(), hasher: h}
}

func (fx *fixture) file(t *testing.T, rel, content string) change.File {
	t.Helper()
	testutil.WriteFile(t, fx.root, rel, content)
	dir, name := filepath.Split(rel)
	id, err := change.ParseFileName(filepath.ToSlash(dir), name)
	require.NoError(t, err)
	return change.NewFile(id, filepath.Join(fx.root, rel), rel)
}

func (fx *fixture) record(f change.File, content string) state.Record {
	return state.Record{
		ChangeID:       f.ID(),
		FileHash:       fx.hasher.Hash([]byte(content)),
		ApplyTimestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		AppliedBy:      "test",
	}
}

func ids(changes []Change) []string {
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.ID().String()
	}
	return out
}

func TestApplies_FirstRunEverythingPending(t *testing.T) {
	fx := newFixture(t)
	files := []change.File{
		fx.file(t, "1.0/001.create_table..apply.sql.sql", "create"),
		fx.file(t, "1.0/002.seed_data..apply.sql.sql", "seed"),
	}

	got, err := Applies(files, nil, fx.hasher)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"1.0/001.create_table..apply.sql.sql",
		"1.0/002.seed_data..apply.sql.sql",
	}, ids(got))
	assert.Equal(t, fx.hasher.Hash([]byte("create")), got[0].Hash)
	assert.Empty(t, got[0].Previous)
}

func TestApplies_RecordedApplyIsSkipped(t *testing.T) {
	fx := newFixture(t)
	a := fx.file(t, "1.0/001.a..apply.sql.sql", "a")
	b := fx.file(t, "1.0/002.b..apply.sql.sql", "b")

	got, err := Applies([]change.File{a, b}, []state.Record{fx.record(a, "a"), fx.record(b, "b")}, fx.hasher)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestApplies_RecordedApplyIgnoresContentChange(t *testing.T) {
	fx := newFixture(t)
	a := fx.file(t, "1.0/001.a..apply.sql.sql", "edited")

	got, err := Applies([]change.File{a}, []state.Record{fx.record(a, "original")}, fx.hasher)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestApplies_ApplyAlwaysIsAlwaysPending(t *testing.T) {
	fx := newFixture(t)
	f := fx.file(t, "1.0/001.grants..apply_always.sql.sql", "grant")

	got, err := Applies([]change.File{f}, []state.Record{fx.record(f, "grant")}, fx.hasher)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].Hash, "apply_always leaves no record, so no hash is needed")
}

func TestApplies_ApplyOnChange(t *testing.T) {
	fx := newFixture(t)
	f := fx.file(t, "1.0/001.view..apply_on_change.sql.sql", "v2")

	// Unchanged content.
	got, err := Applies([]change.File{f}, []state.Record{fx.record(f, "v2")}, fx.hasher)
	require.NoError(t, err)
	assert.Empty(t, got)

	// Changed content.
	old := fx.record(f, "v1")
	got, err = Applies([]change.File{f}, []state.Record{old}, fx.hasher)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, fx.hasher.Hash([]byte("v2")), got[0].Hash)
	assert.Equal(t, []state.Record{old}, got[0].Previous)
}

func TestApplies_EnvironmentSpecificIDsAreDistinct(t *testing.T) {
	fx := newFixture(t)
	prod := fx.file(t, "1/001.a.prod.apply.sql.sql", "p")
	generic := fx.file(t, "1/001.a..apply.sql.sql", "g")

	got, err := Applies([]change.File{generic, prod}, []state.Record{fx.record(generic, "g")}, fx.hasher)
	require.NoError(t, err)
	assert.Equal(t, []string{"1/001.a.prod.apply.sql.sql"}, ids(got))
}

func TestApplies_RejectsRevertFiles(t *testing.T) {
	fx := newFixture(t)
	r := fx.file(t, "1/001.a..revert.sql.sql", "")

	_, err := Applies([]change.File{r}, nil, fx.hasher)
	assert.Error(t, err)
}

func TestApplies_NoHasher(t *testing.T) {
	fx := newFixture(t)
	f := fx.file(t, "1/001.a..apply.sql.sql", "a")

	got, err := Applies([]change.File{f}, nil, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].Hash)
}

func TestReverts(t *testing.T) {
	fx := newFixture(t)
	applyA := fx.file(t, "1/001.a..apply.sql.sql", "a")
	fx.file(t, "1/002.b..apply.sql.sql", "b")
	revertB := fx.file(t, "1/002.b..revert.sql.sql", "undo b")
	revertA := fx.file(t, "1/001.a..revert.sql.sql", "undo a")

	recA := fx.record(applyA, "a")
	got, err := Reverts([]change.File{revertB, revertA}, []state.Record{recA})
	require.NoError(t, err)
	assert.Equal(t, []string{"1/001.a..revert.sql.sql"}, ids(got))
	assert.Equal(t, []state.Record{recA}, got[0].Previous)
	assert.Equal(t, []change.ID{applyA.ID()}, IDs(got[0].Previous))
}

func TestReverts_RejectsApplyFiles(t *testing.T) {
	fx := newFixture(t)
	a := fx.file(t, "1/001.a..apply.sql.sql", "a")

	_, err := Reverts([]change.File{a}, nil)
	assert.Error(t, err)
}
