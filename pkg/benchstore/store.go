// Package benchstore keeps a history of finished benchmark runs in SQLite.
package benchstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/pario-ai/forge/pkg/models"
)

// Store records and queries benchmark runs.
type Store interface {
	// Record stores a run, assigning an ID and timestamp when unset.
	Record(ctx context.Context, rec *models.BenchmarkRecord) error
	// List returns runs newest first, optionally filtered by model.
	List(ctx context.Context, model string, limit int) ([]models.BenchmarkRecord, error)
	// Summary aggregates runs per model.
	Summary(ctx context.Context) ([]models.BenchmarkSummary, error)
	// Close releases resources.
	Close() error
}

// SQLiteStore implements Store with a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS benchmark_runs (
	id TEXT PRIMARY KEY,
	model TEXT NOT NULL,
	batch_size INTEGER NOT NULL,
	max_concurrent INTEGER NOT NULL,
	total_requests INTEGER NOT NULL,
	duration_ms REAL NOT NULL,
	avg_latency_ms REAL NOT NULL,
	min_latency_ms REAL NOT NULL,
	max_latency_ms REAL NOT NULL,
	throughput REAL NOT NULL,
	p50_latency_ms REAL NOT NULL,
	p95_latency_ms REAL NOT NULL,
	p99_latency_ms REAL NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_model_time ON benchmark_runs(model, created_at);
`

// New opens a SQLiteStore and runs auto-migration.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open benchmark db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate benchmark db: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Record stores a benchmark run.
func (s *SQLiteStore) Record(ctx context.Context, rec *models.BenchmarkRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO benchmark_runs (id, model, batch_size, max_concurrent, total_requests, duration_ms,
			avg_latency_ms, min_latency_ms, max_latency_ms, throughput,
			p50_latency_ms, p95_latency_ms, p99_latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Model, rec.BatchSize, rec.MaxConcurrent, rec.TotalRequests, rec.DurationMs,
		rec.AvgLatencyMs, rec.MinLatencyMs, rec.MaxLatencyMs, rec.ThroughputReqPerSec,
		rec.P50LatencyMs, rec.P95LatencyMs, rec.P99LatencyMs, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record benchmark: %w", err)
	}
	return nil
}

// List returns stored runs, newest first. A limit <= 0 returns all runs.
func (s *SQLiteStore) List(ctx context.Context, model string, limit int) ([]models.BenchmarkRecord, error) {
	query := `SELECT id, model, batch_size, max_concurrent, total_requests, duration_ms,
		avg_latency_ms, min_latency_ms, max_latency_ms, throughput,
		p50_latency_ms, p95_latency_ms, p99_latency_ms, created_at
		FROM benchmark_runs`
	var args []any
	if model != "" {
		query += ` WHERE model = ?`
		args = append(args, model)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list benchmarks: %w", err)
	}
	defer rows.Close()

	var records []models.BenchmarkRecord
	for rows.Next() {
		var r models.BenchmarkRecord
		if err := rows.Scan(&r.ID, &r.Model, &r.BatchSize, &r.MaxConcurrent, &r.TotalRequests, &r.DurationMs,
			&r.AvgLatencyMs, &r.MinLatencyMs, &r.MaxLatencyMs, &r.ThroughputReqPerSec,
			&r.P50LatencyMs, &r.P95LatencyMs, &r.P99LatencyMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan benchmark: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Summary returns aggregated runs grouped by model.
func (s *SQLiteStore) Summary(ctx context.Context) ([]models.BenchmarkSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT model, COUNT(*), SUM(total_requests), AVG(throughput), MIN(p99_latency_ms), MAX(p99_latency_ms)
		 FROM benchmark_runs GROUP BY model ORDER BY model`)
	if err != nil {
		return nil, fmt.Errorf("benchmark summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.BenchmarkSummary
	for rows.Next() {
		var m models.BenchmarkSummary
		if err := rows.Scan(&m.Model, &m.Runs, &m.TotalRequests, &m.AvgThroughput, &m.BestP99LatencyMs, &m.WorstP99LatencyMs); err != nil {
			return nil, fmt.Errorf("scan benchmark summary: %w", err)
		}
		summaries = append(summaries, m)
	}
	return summaries, rows.Err()
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
