package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordRun inserts one run summary
func (s *SQLiteStore) RecordRun(ctx context.Context, run *AnalysisRun) error {
	query := `
		INSERT INTO analysis_runs (
			scope_id, analysis_id, root_path, file_count, finding_count,
			failed_count, blocker, critical, major, minor, info,
			duration_ms, succeeded, error_message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	res, err := s.db.ExecContext(ctx, query,
		run.ScopeID, run.AnalysisID, run.RootPath, run.FileCount, run.FindingCount,
		run.FailedCount, run.Blocker, run.Critical, run.Major, run.Minor, run.Info,
		run.DurationMS, run.Succeeded, run.ErrorMessage, now,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get run ID: %w", err)
	}
	run.ID = id
	run.CreatedAt = now
	return nil
}

// RecentRuns returns up to limit runs, newest first
func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]*AnalysisRun, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT id, scope_id, analysis_id, root_path, file_count, finding_count,
		       failed_count, blocker, critical, major, minor, info,
		       duration_ms, succeeded, error_message, created_at
		FROM analysis_runs
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*AnalysisRun
	for rows.Next() {
		run := &AnalysisRun{}
		err := rows.Scan(
			&run.ID, &run.ScopeID, &run.AnalysisID, &run.RootPath,
			&run.FileCount, &run.FindingCount, &run.FailedCount,
			&run.Blocker, &run.Critical, &run.Major, &run.Minor, &run.Info,
			&run.DurationMS, &run.Succeeded, &run.ErrorMessage, &run.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Stats aggregates across all recorded runs
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN succeeded = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(finding_count), 0),
		       MAX(created_at)
		FROM analysis_runs
	`
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalRuns, &stats.FailedRuns, &stats.TotalFindings, &last,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	if last.Valid {
		stats.LastRunAt = &last.Time
	}
	return stats, nil
}
