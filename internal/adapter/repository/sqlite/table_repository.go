package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/V4T54L/weblog-etl/internal/domain"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var columnTypes = map[string]string{
	"status":    "INTEGER",
	"is_mobile": "BOOLEAN",
	"is_tablet": "BOOLEAN",
	"is_pc":     "BOOLEAN",
	"is_bot":    "BOOLEAN",
	"lat":       "REAL",
	"lon":       "REAL",
	"proxy":     "BOOLEAN",
	"hosting":   "BOOLEAN",
}

// TableRepository stores the finalized table in a SQLite table. Every run
// replaces the table's contents.
type TableRepository struct {
	db     *sql.DB
	table  string
	logger *slog.Logger
}

// Open opens (creating if needed) the database file at path.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database %s: %w", path, err)
	}
	return db, nil
}

// NewTableRepository creates a TableRepository writing to table.
func NewTableRepository(db *sql.DB, table string, logger *slog.Logger) (*TableRepository, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &TableRepository{
		db:     db,
		table:  table,
		logger: logger.With("component", "sqlite_repository", "table", table),
	}, nil
}

func (r *TableRepository) Name() string { return "sqlite" }

// WriteRecords drops and recreates the table, then inserts every record in a
// single transaction.
func (r *TableRepository) WriteRecords(ctx context.Context, run domain.RunInfo, records []domain.AccessRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Rollback is a no-op if Commit() is called

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+quote(r.table)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", r.table, err)
	}
	if _, err := tx.ExecContext(ctx, createTableSQL(r.table)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", r.table, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL(r.table))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		if _, err := stmt.ExecContext(ctx, rowArgs(rec)...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit table %s: %w", r.table, err)
	}
	r.logger.Info("table replaced", "rows", len(records), "run_id", run.ID)
	return nil
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func createTableSQL(table string) string {
	cols := make([]string, len(domain.Columns))
	for i, c := range domain.Columns {
		typ, ok := columnTypes[c]
		if !ok {
			typ = "TEXT"
		}
		cols[i] = quote(c) + " " + typ
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quote(table), strings.Join(cols, ", "))
}

func insertSQL(table string) string {
	cols := make([]string, len(domain.Columns))
	marks := make([]string, len(domain.Columns))
	for i, c := range domain.Columns {
		cols[i] = quote(c)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(table), strings.Join(cols, ", "), strings.Join(marks, ", "))
}

// rowArgs renders the date as zone-less text so the stored value is the
// logged wall clock.
func rowArgs(rec domain.AccessRecord) []any {
	args := rec.Values()
	args[1] = rec.Date.Format(domain.DateLayout)
	return args
}
