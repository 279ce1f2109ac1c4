package ledger

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SqliteWriter implements Writer using SQLite, for single-node deployments
// that want a durable local ledger without Postgres.
type SqliteWriter struct {
	db        *sql.DB
	tableName string
}

// SqliteOptions configuration for the SQLite connection.
type SqliteOptions struct {
	Path      string
	TableName string // default "savings_ledger"
}

// NewSqliteWriter creates a new SQLite ledger writer and initializes the
// schema.
func NewSqliteWriter(opts SqliteOptions) (*SqliteWriter, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "savings_ledger"
	}

	w := &SqliteWriter{db: db, tableName: tableName}
	if err := w.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return w, nil
}

// InitSchema creates the ledger table if it doesn't exist.
func (w *SqliteWriter) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			workload_key TEXT NOT NULL,
			path TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			optimization_level INTEGER NOT NULL,
			baseline_tokens INTEGER NOT NULL,
			optimized_tokens INTEGER NOT NULL,
			baseline_cost REAL NOT NULL,
			optimized_cost REAL NOT NULL,
			confidence TEXT NOT NULL,
			savings_type TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_workload_key ON %s (workload_key);
	`, w.tableName, w.tableName, w.tableName)

	_, err := w.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Write inserts one ledger record.
func (w *SqliteWriter) Write(ctx context.Context, rec Record) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			workload_key, path, provider, model, optimization_level,
			baseline_tokens, optimized_tokens, baseline_cost, optimized_cost,
			confidence, savings_type, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, w.tableName)

	_, err := w.db.ExecContext(ctx, query,
		rec.WorkloadKey, string(rec.Path), rec.Provider, rec.Model, rec.OptimizationLevel,
		rec.BaselineTokens, rec.OptimizedTokens, rec.BaselineCost, rec.OptimizedCost,
		rec.Confidence, string(rec.SavingsType), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write ledger record: %w", err)
	}
	return nil
}

// SummarizeByWorkload aggregates savings per workload key.
func (w *SqliteWriter) SummarizeByWorkload(ctx context.Context) ([]WorkloadSummary, error) {
	query := fmt.Sprintf(`
		SELECT workload_key,
		       COUNT(*),
		       COALESCE(SUM(baseline_tokens - optimized_tokens), 0),
		       COALESCE(SUM(baseline_cost - optimized_cost), 0)
		FROM %s
		GROUP BY workload_key
		ORDER BY workload_key
	`, w.tableName)

	rows, err := w.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize ledger: %w", err)
	}
	defer rows.Close()

	var out []WorkloadSummary
	for rows.Next() {
		var s WorkloadSummary
		if err := rows.Scan(&s.WorkloadKey, &s.Rows, &s.TokensSaved, &s.CostSaved); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate summary rows: %w", err)
	}
	return out, nil
}

// Close closes the database connection.
func (w *SqliteWriter) Close() error {
	return w.db.Close()
}
