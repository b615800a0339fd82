package catalog

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sortVersions(t *testing.T, names []string) []string {
	t.Helper()
	keys := make([]versionKey, len(names))
	for i, n := range names {
		k, err := parseVersionKey(n)
		require.NoError(t, err)
		keys[i] = k
	}
	sort.Slice(keys, func(i, j int) bool { return compareVersionKeys(keys[i], keys[j]) < 0 })
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.name
	}
	return out
}

func TestNaturalOrder_NumericNotLexicographic(t *testing.T) {
	got := sortVersions(t, []string{"2.0", "1.10", "1.2"})
	assert.Equal(t, []string{"1.2", "1.10", "2.0"}, got)
}

func TestNaturalOrder_MissingComponentSortsFirst(t *testing.T) {
	got := sortVersions(t, []string{"1.0.1", "1", "1.0"})
	assert.Equal(t, []string{"1", "1.0", "1.0.1"}, got)
}

func TestNaturalOrder_NoDigitsLexicographicAndFirst(t *testing.T) {
	got := sortVersions(t, []string{"v2", "beta", "alpha", "v10"})
	assert.Equal(t, []string{"alpha", "beta", "v2", "v10"}, got)
}

func TestNaturalOrder_ManyComponentsNoPrecisionLoss(t *testing.T) {
	a := "1.2.3.4.5.6.7.8.9.10.11.12"
	b := "1.2.3.4.5.6.7.8.9.10.11.13"
	c, err := CompareVersions(a, b)
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	c, err = CompareVersions("1.9999999999", "1.10000000000")
	require.NoError(t, err)
	assert.Equal(t, -1, c)
}

func TestNaturalOrder_TieBreaksOnName(t *testing.T) {
	c, err := CompareVersions("1.0", "1.00")
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	c, err = CompareVersions("1.0", "1.0")
	require.NoError(t, err)
	assert.Equal(t, 0, c)
}

func TestNaturalOrder_OverflowNamesDirectory(t *testing.T) {
	_, err := CompareVersions("1.0", "1.99999999999999999999999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1.99999999999999999999999")
}
