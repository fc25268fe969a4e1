package storage

import (
	"context"
	"time"
)

// Store defines the interface for persisting analysis run history.
type Store interface {
	// RecordRun inserts one run summary.
	RecordRun(ctx context.Context, run *AnalysisRun) error
	// RecentRuns returns up to limit runs, newest first.
	RecentRuns(ctx context.Context, limit int) ([]*AnalysisRun, error)
	// Stats aggregates across all recorded runs.
	Stats(ctx context.Context) (*Stats, error)
	// Close releases the database.
	Close() error
}

// AnalysisRun is the summary of one analysis call.
type AnalysisRun struct {
	ID           int64
	ScopeID      string
	AnalysisID   string
	RootPath     string
	FileCount    int
	FindingCount int
	FailedCount  int
	Blocker      int
	Critical     int
	Major        int
	Minor        int
	Info         int
	DurationMS   int64
	Succeeded    bool
	ErrorMessage *string // Nullable
	CreatedAt    time.Time
}

// Stats aggregates run history.
type Stats struct {
	TotalRuns     int
	FailedRuns    int
	TotalFindings int
	LastRunAt     *time.Time
}
