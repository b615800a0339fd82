package dialect

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// Open connects to dsn with the dialect's driver and verifies the connection.
func Open(ctx context.Context, d Dialect, dsn string) (*sqlx.DB, error) {
	prepared, err := d.prepareDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(d.DriverName, prepared)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", d.Name, err)
	}

	if d.Name == SQLite {
		// SQLite only supports one writer at a time.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to %s database: %w", d.Name, err)
	}
	return db, nil
}

// sqliteDSN turns a plain path into a file: URI carrying the busy timeout,
// WAL journaling and immediate write transactions, and creates the parent
// directory. Options already present in dsn win.
func sqliteDSN(dsn string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("sqlite: empty data source")
	}
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file::memory:") {
		return dsn, nil
	}

	p := strings.TrimPrefix(dsn, "file:")
	query := ""
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p, query = p[:i], p[i+1:]
	}

	if dir := filepath.Dir(p); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	params, err := url.ParseQuery(query)
	if err != nil {
		return "", fmt.Errorf("sqlite: parse data source options: %w", err)
	}
	if params.Get("_busy_timeout") == "" {
		params.Set("_busy_timeout", "5000")
	}
	if params.Get("_journal_mode") == "" {
		params.Set("_journal_mode", "WAL")
	}
	if params.Get("_txlock") == "" {
		params.Set("_txlock", "immediate")
	}
	return "file:" + p + "?" + params.Encode(), nil
}
