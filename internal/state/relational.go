package state

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/migrant/internal/change"
	"github.com/roach88/migrant/internal/dialect"
)

// DefaultTable is the ledger table name.
const DefaultTable = "change_state"

// Column is a configurable ledger column.
type Column struct {
	Name string
	Type string
}

// Columns names the four ledger columns. Empty fields fall back to the
// default name and the dialect's type.
type Columns struct {
	ID        Column
	Hash      Column
	Timestamp Column
	AppliedBy Column
}

// RelationalOptions configures a Relational repository.
type RelationalOptions struct {
	Catalog string
	Schema  string
	Table   string
	Columns Columns
	Logger  *slog.Logger
}

// Relational stores the ledger in one SQL table keyed by change id.
type Relational struct {
	db      *sqlx.DB
	dialect dialect.Dialect
	opts    RelationalOptions
	table   string
	closed  bool
}

type recordRow struct {
	ID        string         `db:"change_file_id"`
	Hash      sql.NullString `db:"file_hash"`
	Timestamp time.Time      `db:"apply_timestamp"`
	AppliedBy sql.NullString `db:"applied_by"`
}

func withDefault(c Column, name, typ string) Column {
	if c.Name == "" {
		c.Name = name
	}
	if c.Type == "" {
		c.Type = typ
	}
	return c
}

// NewRelational returns a repository over db and creates the ledger table
// when it does not exist yet. The repository owns db and closes it on Close.
func NewRelational(ctx context.Context, db *sqlx.DB, d dialect.Dialect, opts RelationalOptions) (*Relational, error) {
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Columns = Columns{
		ID:        withDefault(opts.Columns.ID, "change_file_id", d.Types.ID),
		Hash:      withDefault(opts.Columns.Hash, "file_hash", d.Types.Hash),
		Timestamp: withDefault(opts.Columns.Timestamp, "apply_timestamp", d.Types.Timestamp),
		AppliedBy: withDefault(opts.Columns.AppliedBy, "applied_by", d.Types.Text),
	}

	r := &Relational{
		db:      db,
		dialect: d,
		opts:    opts,
		table:   d.QualifiedName(opts.Catalog, opts.Schema, opts.Table),
	}
	if err := r.bootstrap(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Relational) bootstrap(ctx context.Context) error {
	exists, err := r.dialect.TableExists(ctx, r.db, r.opts.Catalog, r.opts.Schema, r.opts.Table)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	c := r.opts.Columns
	ddl := fmt.Sprintf(`CREATE TABLE %s (
		%s %s NOT NULL PRIMARY KEY,
		%s %s NULL,
		%s %s NOT NULL,
		%s %s NULL
	)`, r.table,
		c.ID.Name, c.ID.Type,
		c.Hash.Name, c.Hash.Type,
		c.Timestamp.Name, c.Timestamp.Type,
		c.AppliedBy.Name, c.AppliedBy.Type)

	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create state table %s: %w", r.table, err)
	}
	r.opts.Logger.Info("state table created", "table", r.table)
	return nil
}

// GetAllStateRecords returns every record ordered by apply time, then id.
func (r *Relational) GetAllStateRecords(ctx context.Context) ([]Record, error) {
	if r.closed {
		return nil, ErrClosed
	}

	c := r.opts.Columns
	query := fmt.Sprintf(`SELECT %s AS change_file_id, %s AS file_hash, %s AS apply_timestamp, %s AS applied_by
		FROM %s ORDER BY %s, %s`,
		c.ID.Name, c.Hash.Name, c.Timestamp.Name, c.AppliedBy.Name,
		r.table, c.Timestamp.Name, c.ID.Name)

	var rows []recordRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("read state table %s: %w", r.table, err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		id, err := change.Parse(row.ID)
		if err != nil {
			return nil, fmt.Errorf("read state table %s: %w", r.table, err)
		}
		records = append(records, Record{
			ChangeID:       id,
			FileHash:       row.Hash.String,
			ApplyTimestamp: row.Timestamp.UTC(),
			AppliedBy:      row.AppliedBy.String,
		})
	}
	return records, nil
}

// SaveStateRecord inserts rec.
func (r *Relational) SaveStateRecord(ctx context.Context, rec Record) error {
	return r.inTx(ctx, "save state record", func(tx *sqlx.Tx) error {
		return r.insert(ctx, tx, rec)
	})
}

// DeleteStateRecordsByIDs removes the records of ids.
func (r *Relational) DeleteStateRecordsByIDs(ctx context.Context, ids []change.ID) (int, error) {
	var n int
	err := r.inTx(ctx, "delete state records", func(tx *sqlx.Tx) error {
		var err error
		n, err = r.delete(ctx, tx, ids)
		return err
	})
	return n, err
}

// ReplaceStateRecord removes the records of ids and inserts rec in one
// transaction.
func (r *Relational) ReplaceStateRecord(ctx context.Context, remove []change.ID, rec Record) error {
	return r.inTx(ctx, "replace state record", func(tx *sqlx.Tx) error {
		if _, err := r.delete(ctx, tx, remove); err != nil {
			return err
		}
		return r.insert(ctx, tx, rec)
	})
}

// Close closes the underlying database.
func (r *Relational) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.db.Close()
}

// inTx runs fn in a transaction. Any error, including cancellation of ctx,
// rolls the transaction back.
func (r *Relational) inTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	if r.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s in %s: %w", op, r.table, err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s in %s: begin tx: %w", op, r.table, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return fmt.Errorf("%s in %s: %w", op, r.table, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s in %s: %w", op, r.table, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s in %s: commit: %w", op, r.table, err)
	}
	return nil
}

func (r *Relational) insert(ctx context.Context, tx *sqlx.Tx, rec Record) error {
	c := r.opts.Columns
	query := r.dialect.Rebind(fmt.Sprintf(`INSERT INTO %s (%s, %s, %s, %s) VALUES (?, ?, ?, ?)`,
		r.table, c.ID.Name, c.Hash.Name, c.Timestamp.Name, c.AppliedBy.Name))

	hash := sql.NullString{String: rec.FileHash, Valid: rec.FileHash != ""}
	if _, err := tx.ExecContext(ctx, query, rec.ChangeID.String(), hash, rec.ApplyTimestamp.UTC(), rec.AppliedBy); err != nil {
		return fmt.Errorf("insert %s: %w", rec.ChangeID, err)
	}
	return nil
}

func (r *Relational) delete(ctx context.Context, tx *sqlx.Tx, ids []change.ID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	query, args, err := sqlx.In(fmt.Sprintf(`DELETE FROM %s WHERE %s IN (?)`, r.table, r.opts.Columns.ID.Name), keys)
	if err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("delete %d ids: %w", len(ids), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete %d ids: rows affected: %w", len(ids), err)
	}
	return int(n), nil
}
