package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBPool defines the interface for the database connection pool.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresWriter implements Writer using PostgreSQL.
type PostgresWriter struct {
	pool      DBPool
	tableName string
}

// PostgresOptions configuration for the Postgres connection.
type PostgresOptions struct {
	ConnString string
	TableName  string // default "savings_ledger"
}

// NewPostgresWriter creates a new Postgres ledger writer.
func NewPostgresWriter(ctx context.Context, opts PostgresOptions) (*PostgresWriter, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "savings_ledger"
	}

	return &PostgresWriter{pool: pool, tableName: tableName}, nil
}

// NewPostgresWriterWithPool creates a writer with an existing pool.
// Useful for testing with mocks.
func NewPostgresWriterWithPool(pool DBPool, tableName string) *PostgresWriter {
	if tableName == "" {
		tableName = "savings_ledger"
	}
	return &PostgresWriter{pool: pool, tableName: tableName}
}

// InitSchema creates the ledger table if it doesn't exist.
func (w *PostgresWriter) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			workload_key TEXT NOT NULL,
			path TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			optimization_level INTEGER NOT NULL,
			baseline_tokens INTEGER NOT NULL,
			optimized_tokens INTEGER NOT NULL,
			baseline_cost DOUBLE PRECISION NOT NULL,
			optimized_cost DOUBLE PRECISION NOT NULL,
			confidence TEXT NOT NULL,
			savings_type TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_workload_key ON %s (workload_key);
	`, w.tableName, w.tableName, w.tableName)

	_, err := w.pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Write inserts one ledger record.
func (w *PostgresWriter) Write(ctx context.Context, rec Record) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			workload_key, path, provider, model, optimization_level,
			baseline_tokens, optimized_tokens, baseline_cost, optimized_cost,
			confidence, savings_type, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, w.tableName)

	_, err := w.pool.Exec(ctx, query,
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
func (w *PostgresWriter) SummarizeByWorkload(ctx context.Context) ([]WorkloadSummary, error) {
	query := fmt.Sprintf(`
		SELECT workload_key,
		       COUNT(*),
		       COALESCE(SUM(baseline_tokens - optimized_tokens), 0),
		       COALESCE(SUM(baseline_cost - optimized_cost), 0)
		FROM %s
		GROUP BY workload_key
		ORDER BY workload_key
	`, w.tableName)

	rows, err := w.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize ledger: %w", err)
	}
	defer rows.Close()

	var out []WorkloadSummary
	for rows.Next() {
		var s WorkloadSummary
		var rowCount int64
		var tokensSaved int64
		if err := rows.Scan(&s.WorkloadKey, &rowCount, &tokensSaved, &s.CostSaved); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		s.Rows = int(rowCount)
		s.TokensSaved = int(tokensSaved)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate summary rows: %w", err)
	}
	return out, nil
}

// Close closes the connection pool.
func (w *PostgresWriter) Close() error {
	w.pool.Close()
	return nil
}
