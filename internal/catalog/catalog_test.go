package catalog

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/migrant/internal/change"
	"github.com/roach88/migrant/internal/testutil"
)

func relPaths(files []change.File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.RelPath()
	}
	return out
}

func TestScan_ApplyOrder(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"2.0/1.later..apply.sql.sql":      "",
		"1.10/1.middle..apply.sql.sql":    "",
		"1.2/10.ten..apply.sql.sql":       "",
		"1.2/2.two..apply.sql.sql":        "",
		"1.2/1.one..apply.sql.sql":        "",
		"0.init..apply.sql.sql":           "",
		"1.2/1.one..revert.sql.sql":       "",
		"1.2/3.always.apply_always.sh.sh": "",
	})

	files, err := Scan(Options{Root: root, Direction: Apply})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"0.init..apply.sql.sql",
		"1.2/1.one..apply.sql.sql",
		"1.2/2.two..apply.sql.sql",
		"1.2/3.always.apply_always.sh.sh",
		"1.2/10.ten..apply.sql.sql",
		"1.10/1.middle..apply.sql.sql",
		"2.0/1.later..apply.sql.sql",
	}, relPaths(files))

	for _, f := range files {
		assert.IsType(t, change.ApplyFile{}, f)
		assert.True(t, filepath.IsAbs(f.Path()))
	}
}

func TestScan_RevertIsExactReverse(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"1.2/1.a..revert.sql.sql":         "",
		"1.2/2.b..revert.sql.sql":         "",
		"1.10/1.c..revert.sql.sql":        "",
		"1.10/nested/1.d..revert.sql.sql": "",
		"1.2/1.a..apply.sql.sql":          "",
		"1.2/2.b..apply.sql.sql":          "",
		"1.10/1.c..apply.sql.sql":         "",
		"1.10/nested/1.d..apply.sql.sql":  "",
	})

	applies, err := Scan(Options{Root: root, Direction: Apply})
	require.NoError(t, err)
	reverts, err := Scan(Options{Root: root, Direction: Revert})
	require.NoError(t, err)

	require.Len(t, reverts, len(applies))
	for i := range applies {
		a := applies[i].ID()
		r := reverts[len(reverts)-1-i].ID()
		assert.Equal(t, a.Key(), r.Key())
		assert.IsType(t, change.RevertFile{}, reverts[len(reverts)-1-i])
	}
	assert.Equal(t, "1.10/nested/1.d..revert.sql.sql", reverts[0].RelPath())
}

func TestScan_BreadthFirst(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"1/deep/1.deep..apply.sql.sql": "",
		"2/1.shallow..apply.sql.sql":   "",
		"1/1.first..apply.sql.sql":     "",
	})

	files, err := Scan(Options{Root: root})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"1/1.first..apply.sql.sql",
		"2/1.shallow..apply.sql.sql",
		"1/deep/1.deep..apply.sql.sql",
	}, relPaths(files))
}

func TestScan_EnvironmentFilter(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"1.common..apply.sql.sql":   "",
		"2.seed.dev.apply.sql.sql":  "",
		"3.tune.prod.apply.sql.sql": "",
	})

	dev, err := Scan(Options{Root: root, Environment: "dev"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1.common..apply.sql.sql", "2.seed.dev.apply.sql.sql"}, relPaths(dev))

	none, err := Scan(Options{Root: root})
	require.NoError(t, err)
	assert.Equal(t, []string{"1.common..apply.sql.sql"}, relPaths(none))
}

func TestScan_RegexpFilter(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"1.0/1.a..apply.sql.sql": "",
		"2.0/1.b..apply.sql.sql": "",
	})

	files, err := Scan(Options{Root: root, Filter: regexp.MustCompile(`^2\.0/`)})
	require.NoError(t, err)
	assert.Equal(t, []string{"2.0/1.b..apply.sql.sql"}, relPaths(files))
}

func TestScan_HashRequiredForApplyOnChange(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"1.views..apply_on_change.sql.sql": "",
	})

	_, err := Scan(Options{Root: root})
	assert.ErrorIs(t, err, ErrHashRequired)

	files, err := Scan(Options{Root: root, HashingEnabled: true})
	require.NoError(t, err)
	assert.Len(t, files, 1)

	// Revert scans never see apply_on_change files.
	_, err = Scan(Options{Root: root, Direction: Revert})
	assert.NoError(t, err)
}

func TestScan_MalformedNameIsFatal(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"1.0/README.md": "",
	})

	_, err := Scan(Options{Root: root})
	require.Error(t, err)
	var pe *change.ParseError
	assert.ErrorAs(t, err, &pe)
	assert.Contains(t, err.Error(), "1.0/README.md")
}

func TestScan_MalformedVersionDirectoryIsFatal(t *testing.T) {
	root := t.TempDir()
	testutil.MkdirAll(t, root, "99999999999999999999999")

	_, err := Scan(Options{Root: root})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "99999999999999999999999")
}

func TestScan_HiddenEntriesIgnored(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		".gitkeep":               "",
		".git/config":            "",
		"1.0/1.a..apply.sql.sql": "",
	})

	files, err := Scan(Options{Root: root})
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0/1.a..apply.sql.sql"}, relPaths(files))
}

func TestScan_RootMustBeDirectory(t *testing.T) {
	root := t.TempDir()

	_, err := Scan(Options{Root: filepath.Join(root, "missing")})
	assert.ErrorIs(t, err, os.ErrNotExist)

	testutil.WriteFile(t, root, "plain", "")
	_, err = Scan(Options{Root: filepath.Join(root, "plain")})
	assert.ErrorContains(t, err, "not a directory")
}
