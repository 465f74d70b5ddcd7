package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/lib/pq"

	"github.com/V4T54L/weblog-etl/internal/domain"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var columnTypes = map[string]string{
	"date":      "TIMESTAMP WITHOUT TIME ZONE NOT NULL",
	"status":    "INTEGER",
	"is_mobile": "BOOLEAN",
	"is_tablet": "BOOLEAN",
	"is_pc":     "BOOLEAN",
	"is_bot":    "BOOLEAN",
	"lat":       "DOUBLE PRECISION",
	"lon":       "DOUBLE PRECISION",
	"proxy":     "BOOLEAN",
	"hosting":   "BOOLEAN",
}

// LogRepository loads finalized tables into PostgreSQL. Rows are keyed by
// (run_id, row_num), so writing the same run twice is idempotent.
type LogRepository struct {
	db     *sql.DB
	table  string
	logger *slog.Logger
}

// NewLogRepository creates a new PostgreSQL log repository.
func NewLogRepository(db *sql.DB, table string, logger *slog.Logger) (*LogRepository, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &LogRepository{db: db, table: table, logger: logger.With("component", "postgres_repository", "table", table)}, nil
}

func (r *LogRepository) Name() string { return "postgres" }

// EnsureSchema creates the target table if it does not exist.
func (r *LogRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, CreateTableSQL(r.table)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", r.table, err)
	}
	return nil
}

// WriteRecords writes a run's table using the COPY protocol for high performance.
// It stages rows in a temporary table and upserts them into the main table.
func (r *LogRepository) WriteRecords(ctx context.Context, run domain.RunInfo, records []domain.AccessRecord) error {
	if len(records) == 0 {
		return nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer txn.Rollback() // Rollback is a no-op if Commit() is called

	tempTableName := r.table + "_temp_import"
	_, err = txn.ExecContext(ctx, `CREATE TEMP TABLE `+pq.QuoteIdentifier(tempTableName)+` (LIKE `+pq.QuoteIdentifier(r.table)+` INCLUDING DEFAULTS) ON COMMIT DROP;`)
	if err != nil {
		return fmt.Errorf("failed to create staging table: %w", err)
	}

	stmt, err := txn.Prepare(pq.CopyIn(tempTableName, copyColumns()...))
	if err != nil {
		return fmt.Errorf("failed to prepare copy: %w", err)
	}

	for i, rec := range records {
		args := append([]any{run.ID, i, run.StartedAt, run.Source}, rec.Values()...)
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			// Close the statement to avoid connection issues
			_ = stmt.Close()
			return fmt.Errorf("failed to copy row %d: %w", i, err)
		}
	}

	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to flush copy: %w", err)
	}

	if _, err = txn.ExecContext(ctx, upsertSQL(r.table, tempTableName)); err != nil {
		return fmt.Errorf("failed to upsert rows: %w", err)
	}

	if err := txn.Commit(); err != nil {
		return err
	}
	r.logger.Info("run loaded", "run_id", run.ID, "rows", len(records))
	return nil
}

func copyColumns() []string {
	return append([]string{"run_id", "row_num", "run_started_at", "source"}, domain.Columns...)
}

// CreateTableSQL returns the DDL of the target table.
func CreateTableSQL(table string) string {
	cols := []string{
		"run_id UUID NOT NULL",
		"row_num INTEGER NOT NULL",
		"run_started_at TIMESTAMPTZ NOT NULL",
		"source TEXT NOT NULL DEFAULT ''",
	}
	for _, c := range domain.Columns {
		typ, ok := columnTypes[c]
		if !ok {
			typ = "TEXT"
		}
		cols = append(cols, pq.QuoteIdentifier(c)+" "+typ)
	}
	cols = append(cols, "PRIMARY KEY (run_id, row_num)")
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", pq.QuoteIdentifier(table), strings.Join(cols, ",\n\t"))
}

func upsertSQL(table, staging string) string {
	cols := copyColumns()
	quoted := make([]string, len(cols))
	var updates []string
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
		if c != "run_id" && c != "row_num" {
			updates = append(updates, quoted[i]+" = EXCLUDED."+quoted[i])
		}
	}
	list := strings.Join(quoted, ", ")
	return fmt.Sprintf(`INSERT INTO %s (%s)
		SELECT %s FROM %s
		ON CONFLICT (run_id, row_num) DO UPDATE SET
			%s;`,
		pq.QuoteIdentifier(table), list, list, pq.QuoteIdentifier(staging), strings.Join(updates, ",\n\t\t\t"))
}
