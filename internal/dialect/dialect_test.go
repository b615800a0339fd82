package dialect

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	d, err := Lookup("SQLite")
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", d.DriverName)

	d, err = Lookup("postgresql")
	require.NoError(t, err)
	assert.Equal(t, "pgx", d.DriverName)

	_, err = Lookup("oracle")
	assert.ErrorContains(t, err, "oracle")
}

func TestRebind(t *testing.T) {
	sqlite, _ := Lookup(SQLite)
	pg, _ := Lookup(Postgres)

	q := "UPDATE t SET a = ? WHERE b = ?"
	assert.Equal(t, q, sqlite.Rebind(q))
	assert.Equal(t, "UPDATE t SET a = $1 WHERE b = $2", pg.Rebind(q))
}

func TestQualifiedName(t *testing.T) {
	d, _ := Lookup(Postgres)
	assert.Equal(t, "lock", d.QualifiedName("", "", "lock"))
	assert.Equal(t, "ops.lock", d.QualifiedName("", "ops", "lock"))
	assert.Equal(t, "main.ops.lock", d.QualifiedName("main", "ops", "lock"))
}

func TestSQLiteDSN(t *testing.T) {
	dir := t.TempDir()

	got, err := sqliteDSN(filepath.Join(dir, "nested", "state.db"))
	require.NoError(t, err)
	assert.Contains(t, got, "file:"+filepath.Join(dir, "nested", "state.db")+"?")
	assert.Contains(t, got, "_busy_timeout=5000")
	assert.Contains(t, got, "_txlock=immediate")
	assert.Contains(t, got, "_journal_mode=WAL")
	assert.DirExists(t, filepath.Join(dir, "nested"))

	got, err = sqliteDSN("file:" + filepath.Join(dir, "x.db") + "?_busy_timeout=100")
	require.NoError(t, err)
	assert.Contains(t, got, "_busy_timeout=100")

	got, err = sqliteDSN(":memory:")
	require.NoError(t, err)
	assert.Equal(t, ":memory:", got)

	_, err = sqliteDSN("")
	assert.Error(t, err)
}

func TestOpen_SQLiteAndTableExists(t *testing.T) {
	d, _ := Lookup(SQLite)
	db, err := Open(context.Background(), d, filepath.Join(t.TempDir(), "t.db"))
	require.NoError(t, err)
	defer db.Close()

	ok, err := d.TableExists(context.Background(), db, "", "", "things")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = db.Exec("CREATE TABLE things (id INTEGER)")
	require.NoError(t, err)

	ok, err = d.TableExists(context.Background(), db, "ignored", "", "things")
	require.NoError(t, err)
	assert.True(t, ok)
}
