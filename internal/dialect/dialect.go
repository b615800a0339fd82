// Package dialect describes the SQL databases the ledger, the lock table and
// the sql connector can run against.
package dialect

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Names accepted by Lookup.
const (
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// ColumnTypes are the default DDL type expressions of a dialect.
type ColumnTypes struct {
	ID        string
	Hash      string
	Timestamp string
	Text      string
	BigInt    string
}

// Dialect captures what differs between SQL databases.
type Dialect struct {
	Name       string
	DriverName string
	Types      ColumnTypes

	prepareDSN  func(dsn string) (string, error)
	tableExists string
}

// Lookup returns the dialect registered under name.
func Lookup(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case SQLite, "sqlite3":
		return sqliteDialect, nil
	case Postgres, "postgresql", "pgx":
		return postgresDialect, nil
	default:
		return Dialect{}, fmt.Errorf("unknown SQL dialect %q (want %s or %s)", name, SQLite, Postgres)
	}
}

// Rebind rewrites ? placeholders into the dialect's bind style.
func (d Dialect) Rebind(query string) string {
	return sqlx.Rebind(sqlx.BindType(d.DriverName), query)
}

// QualifiedName joins the non-empty parts of a table location with dots.
func (d Dialect) QualifiedName(catalog, schema, table string) string {
	var parts []string
	for _, p := range []string{catalog, schema, table} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// TableExists looks the table up in the database's own catalog.
func (d Dialect) TableExists(ctx context.Context, db sqlx.QueryerContext, catalog, schema, table string) (bool, error) {
	var count int
	query, args := d.tableExistsQuery(catalog, schema, table)
	if err := sqlx.GetContext(ctx, db, &count, query, args...); err != nil {
		return false, fmt.Errorf("look up table %s: %w", d.QualifiedName(catalog, schema, table), err)
	}
	return count > 0, nil
}

func (d Dialect) tableExistsQuery(catalog, schema, table string) (string, []any) {
	if d.Name == SQLite {
		master := "sqlite_master"
		if schema != "" {
			master = schema + ".sqlite_master"
		}
		return fmt.Sprintf(d.tableExists, master), []any{table}
	}
	return d.Rebind(d.tableExists), []any{table, schema, schema, catalog, catalog}
}

var sqliteDialect = Dialect{
	Name:       SQLite,
	DriverName: "sqlite3",
	Types: ColumnTypes{
		ID:        "TEXT",
		Hash:      "TEXT",
		Timestamp: "TIMESTAMP",
		Text:      "TEXT",
		BigInt:    "INTEGER",
	},
	prepareDSN:  sqliteDSN,
	tableExists: `SELECT COUNT(*) FROM %s WHERE type = 'table' AND name = ?`,
}

var postgresDialect = Dialect{
	Name:       Postgres,
	DriverName: "pgx",
	Types: ColumnTypes{
		ID:        "VARCHAR(512)",
		Hash:      "VARCHAR(128)",
		Timestamp: "TIMESTAMPTZ",
		Text:      "VARCHAR(255)",
		BigInt:    "BIGINT",
	},
	prepareDSN: func(dsn string) (string, error) { return dsn, nil },
	tableExists: `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_name = ?
		  AND table_schema = COALESCE(NULLIF(?, ''), current_schema())
		  AND (? = '' OR table_catalog = ?)`,
}
