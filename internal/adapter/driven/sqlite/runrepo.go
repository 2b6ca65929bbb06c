package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pipeboard/pipeboard/internal/domain/model"
	"github.com/pipeboard/pipeboard/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RunStore = (*RunRepo)(nil)

// RunRepo is the SQLite implementation of the RunStore port interface.
type RunRepo struct {
	db *DB
}

// NewRunRepo creates a new RunRepo backed by the given DB.
func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

// Upsert inserts or refreshes a pipeline run keyed by (repository_id,
// run_id). On conflict only the mutable fields are rewritten: status,
// conclusion, completed_at, and duration_seconds. Identity fields and
// commit metadata from the first observation are preserved, so re-applying
// the same payload is a no-op.
func (r *RunRepo) Upsert(ctx context.Context, run model.Run) error {
	const query = `
		INSERT INTO pipeline_runs (
			repository_id, run_id, status, conclusion, started_at, completed_at,
			duration_seconds, commit_sha, commit_message, branch, author
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repository_id, run_id) DO UPDATE SET
			status = excluded.status,
			conclusion = excluded.conclusion,
			completed_at = excluded.completed_at,
			duration_seconds = excluded.duration_seconds
	`

	var completedAt any
	if !run.CompletedAt.IsZero() {
		completedAt = formatTime(run.CompletedAt)
	}

	var duration any
	if run.DurationSeconds != nil {
		duration = *run.DurationSeconds
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		run.RepositoryID, run.RunID, string(run.Status), string(run.Outcome),
		formatTime(run.StartedAt), completedAt, duration,
		run.CommitSHA, run.CommitMessage, run.Branch, run.Author,
	)
	if err != nil {
		return fmt.Errorf("upsert run %s for repository %d: %w", run.RunID, run.RepositoryID, err)
	}

	return nil
}

// GetByRunID retrieves a single run by its natural key. Returns nil, nil if
// the run does not exist.
func (r *RunRepo) GetByRunID(ctx context.Context, repositoryID int64, runID string) (*model.Run, error) {
	const query = `
		SELECT id, repository_id, run_id, status, conclusion, started_at, completed_at,
		       duration_seconds, commit_sha, commit_message, branch, author
		FROM pipeline_runs
		WHERE repository_id = ? AND run_id = ?
	`

	run, err := scanRun(r.db.Reader.QueryRowContext(ctx, query, repositoryID, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s for repository %d: %w", runID, repositoryID, err)
	}

	return run, nil
}

// ListByRepository returns up to limit runs for the repository, newest
// first by start time.
func (r *RunRepo) ListByRepository(ctx context.Context, repositoryID int64, limit int) ([]model.Run, error) {
	const query = `
		SELECT id, repository_id, run_id, status, conclusion, started_at, completed_at,
		       duration_seconds, commit_sha, commit_message, branch, author
		FROM pipeline_runs
		WHERE repository_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, repositoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs for repository %d: %w", repositoryID, err)
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, nil
}

// ListRecent returns up to limit runs across all repositories joined with
// their repository names, newest first by start time.
func (r *RunRepo) ListRecent(ctx context.Context, limit int) ([]model.RunWithRepo, error) {
	const query = `
		SELECT pr.id, pr.repository_id, pr.run_id, pr.status, pr.conclusion, pr.started_at,
		       pr.completed_at, pr.duration_seconds, pr.commit_sha, pr.commit_message,
		       pr.branch, pr.author, r.name, r.full_name
		FROM pipeline_runs pr
		JOIN repositories r ON pr.repository_id = r.id
		ORDER BY pr.started_at DESC
		LIMIT ?
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}
	defer rows.Close()

	var runs []model.RunWithRepo
	for rows.Next() {
		var rw model.RunWithRepo
		var status, conclusion string
		var startedAt string
		var completedAt sql.NullString
		var duration sql.NullInt64

		err := rows.Scan(
			&rw.ID, &rw.RepositoryID, &rw.RunID, &status, &conclusion, &startedAt,
			&completedAt, &duration, &rw.CommitSHA, &rw.CommitMessage,
			&rw.Branch, &rw.Author, &rw.RepositoryName, &rw.RepositoryFullName,
		)
		if err != nil {
			return nil, fmt.Errorf("scan recent run: %w", err)
		}

		if err := populateRunFields(&rw.Run, status, conclusion, startedAt, completedAt, duration); err != nil {
			return nil, err
		}

		runs = append(runs, rw)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent runs: %w", err)
	}

	return runs, nil
}

// SuccessRate returns the percentage (0-100) of completed-successful runs
// among all runs started since the given time. Returns 0 when no runs fall
// in the window.
func (r *RunRepo) SuccessRate(ctx context.Context, since time.Time) (int, error) {
	const query = `
		SELECT COUNT(*),
		       COUNT(CASE WHEN status = 'completed' AND conclusion = 'success' THEN 1 END)
		FROM pipeline_runs
		WHERE started_at > ?
	`

	var total, successful int
	if err := r.db.Reader.QueryRowContext(ctx, query, formatTime(since)).Scan(&total, &successful); err != nil {
		return 0, fmt.Errorf("query success rate: %w", err)
	}

	if total == 0 {
		return 0, nil
	}

	return int(float64(successful)/float64(total)*100 + 0.5), nil
}

// AvgDurationSeconds returns the mean duration of runs with a known
// duration started since the given time, rounded to whole seconds.
func (r *RunRepo) AvgDurationSeconds(ctx context.Context, since time.Time) (int, error) {
	const query = `
		SELECT COALESCE(AVG(duration_seconds), 0)
		FROM pipeline_runs
		WHERE started_at > ? AND duration_seconds IS NOT NULL
	`

	var avg float64
	if err := r.db.Reader.QueryRowContext(ctx, query, formatTime(since)).Scan(&avg); err != nil {
		return 0, fmt.Errorf("query average duration: %w", err)
	}

	return int(avg + 0.5), nil
}

// CountSince counts runs started since the given time.
func (r *RunRepo) CountSince(ctx context.Context, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM pipeline_runs WHERE started_at > ?`

	var count int
	if err := r.db.Reader.QueryRowContext(ctx, query, formatTime(since)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}

	return count, nil
}

func scanRun(s scanner) (*model.Run, error) {
	var run model.Run
	var status, conclusion string
	var startedAt string
	var completedAt sql.NullString
	var duration sql.NullInt64

	err := s.Scan(
		&run.ID, &run.RepositoryID, &run.RunID, &status, &conclusion, &startedAt,
		&completedAt, &duration, &run.CommitSHA, &run.CommitMessage, &run.Branch, &run.Author,
	)
	if err != nil {
		return nil, err
	}

	if err := populateRunFields(&run, status, conclusion, startedAt, completedAt, duration); err != nil {
		return nil, err
	}

	return &run, nil
}

func populateRunFields(run *model.Run, status, conclusion, startedAt string, completedAt sql.NullString, duration sql.NullInt64) error {
	run.Status = model.RunStatus(status)
	run.Outcome = model.RunOutcome(conclusion)

	var err error
	run.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return fmt.Errorf("parse started_at: %w", err)
	}

	if completedAt.Valid {
		run.CompletedAt, err = parseTime(completedAt.String)
		if err != nil {
			return fmt.Errorf("parse completed_at: %w", err)
		}
	}

	if duration.Valid {
		d := duration.Int64
		run.DurationSeconds = &d
	}

	return nil
}
