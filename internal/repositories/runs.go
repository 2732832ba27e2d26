package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/mixtape/internal/models"
)

// RunRepository persists [models.RunSummary] rows in generation_runs.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Record inserts or replaces the summary for its run ID.
func (r *RunRepository) Record(ctx context.Context, s models.RunSummary) error {
	if s.RunID == "" {
		return fmt.Errorf("run summary has no run id")
	}

	query := `
		INSERT OR REPLACE INTO generation_runs
			(run_id, track_count, target_tracks, distinct_artists, avg_popularity, fallback, duration_ms, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.RunID,
		s.TrackCount,
		s.TargetTracks,
		s.DistinctArtists,
		s.AvgPopularity,
		boolToInt(s.Fallback),
		s.Duration.Milliseconds(),
		s.CompletedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run summary: %w", err)
	}
	return nil
}

// Get retrieves a run summary by ID.
func (r *RunRepository) Get(ctx context.Context, runID string) (*models.RunSummary, error) {
	query := `
		SELECT run_id, track_count, target_tracks, distinct_artists, avg_popularity, fallback, duration_ms, completed_at
		FROM generation_runs
		WHERE run_id = ?
	`
	s, err := scanRun(r.db.QueryRowContext(ctx, query, runID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return s, err
}

// Recent lists the latest summaries, newest first.
func (r *RunRepository) Recent(ctx context.Context, limit int) ([]models.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT run_id, track_count, target_tracks, distinct_artists, avg_popularity, fallback, duration_ms, completed_at
		FROM generation_runs
		ORDER BY completed_at DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []models.RunSummary
	for rows.Next() {
		s, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.RunSummary, error) {
	var (
		s          models.RunSummary
		fallback   int
		durationMS int64
	)
	err := row.Scan(
		&s.RunID,
		&s.TrackCount,
		&s.TargetTracks,
		&s.DistinctArtists,
		&s.AvgPopularity,
		&fallback,
		&durationMS,
		&s.CompletedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	s.Fallback = fallback == 1
	s.Duration = time.Duration(durationMS) * time.Millisecond
	return &s, nil
}
