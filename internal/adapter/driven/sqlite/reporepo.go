package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pipeboard/pipeboard/internal/domain/model"
	"github.com/pipeboard/pipeboard/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RepoStore = (*RepoRepo)(nil)

// RepoRepo is the SQLite implementation of the RepoStore port interface.
type RepoRepo struct {
	db *DB
}

// NewRepoRepo creates a new RepoRepo backed by the given DB.
func NewRepoRepo(db *DB) *RepoRepo {
	return &RepoRepo{db: db}
}

// Add inserts a new repository. Returns ErrRepoAlreadyExists if a repository
// with the same (provider, full_name) already exists.
func (r *RepoRepo) Add(ctx context.Context, repo model.Repository) error {
	const query = `INSERT INTO repositories (name, full_name, provider, url, added_at) VALUES (?, ?, ?, ?, ?)`

	addedAt := repo.AddedAt
	if addedAt.IsZero() {
		addedAt = time.Now().UTC()
	}

	_, err := r.db.Writer.ExecContext(ctx, query, repo.Name, repo.FullName, string(repo.Provider), repo.URL, formatTime(addedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("add repository %s: %w", repo.FullName, driven.ErrRepoAlreadyExists)
		}
		return fmt.Errorf("add repository %s: %w", repo.FullName, err)
	}

	return nil
}

// Upsert inserts or refreshes a repository keyed by (provider, full_name)
// and returns the stored row. Used for provider-discovered targets such as
// Jenkins jobs, where the same job reappears on every poll cycle.
func (r *RepoRepo) Upsert(ctx context.Context, repo model.Repository) (*model.Repository, error) {
	const query = `
		INSERT INTO repositories (name, full_name, provider, url, added_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(provider, full_name) DO UPDATE SET
			name = excluded.name,
			url = excluded.url
	`

	addedAt := repo.AddedAt
	if addedAt.IsZero() {
		addedAt = time.Now().UTC()
	}

	_, err := r.db.Writer.ExecContext(ctx, query, repo.Name, repo.FullName, string(repo.Provider), repo.URL, formatTime(addedAt))
	if err != nil {
		return nil, fmt.Errorf("upsert repository %s: %w", repo.FullName, err)
	}

	stored, err := r.GetByFullName(ctx, repo.Provider, repo.FullName)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("upsert repository %s: row missing after write", repo.FullName)
	}

	return stored, nil
}

// Remove deletes a repository by id. Returns ErrRepoNotFound if the
// repository does not exist. Foreign key cascade removes the repository's
// runs and alerts.
func (r *RepoRepo) Remove(ctx context.Context, id int64) error {
	const query = `DELETE FROM repositories WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("remove repository %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("remove repository %d: %w", id, driven.ErrRepoNotFound)
	}

	return nil
}

// GetByID retrieves a repository by its database id. Returns nil, nil if
// the repository does not exist.
func (r *RepoRepo) GetByID(ctx context.Context, id int64) (*model.Repository, error) {
	const query = `SELECT id, name, full_name, provider, url, added_at FROM repositories WHERE id = ?`

	repo, err := scanRepository(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get repository %d: %w", id, err)
	}

	return repo, nil
}

// GetByFullName retrieves a repository by provider and full name. Returns
// nil, nil if the repository does not exist.
func (r *RepoRepo) GetByFullName(ctx context.Context, provider model.Provider, fullName string) (*model.Repository, error) {
	const query = `SELECT id, name, full_name, provider, url, added_at FROM repositories WHERE provider = ? AND full_name = ?`

	repo, err := scanRepository(r.db.Reader.QueryRowContext(ctx, query, string(provider), fullName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get repository %s: %w", fullName, err)
	}

	return repo, nil
}

// ListByProvider returns all repositories for the given provider ordered by
// full name.
func (r *RepoRepo) ListByProvider(ctx context.Context, provider model.Provider) ([]model.Repository, error) {
	const query = `SELECT id, name, full_name, provider, url, added_at FROM repositories WHERE provider = ? ORDER BY full_name`

	return r.queryRepos(ctx, query, string(provider))
}

// ListAll returns all repositories ordered by full name.
func (r *RepoRepo) ListAll(ctx context.Context) ([]model.Repository, error) {
	const query = `SELECT id, name, full_name, provider, url, added_at FROM repositories ORDER BY full_name`

	return r.queryRepos(ctx, query)
}

func (r *RepoRepo) queryRepos(ctx context.Context, query string, args ...any) ([]model.Repository, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var repos []model.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, *repo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repositories: %w", err)
	}

	return repos, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRepository(s scanner) (*model.Repository, error) {
	var repo model.Repository
	var provider string
	var addedAt string

	err := s.Scan(&repo.ID, &repo.Name, &repo.FullName, &provider, &repo.URL, &addedAt)
	if err != nil {
		return nil, err
	}

	repo.Provider = model.Provider(provider)

	repo.AddedAt, err = parseTime(addedAt)
	if err != nil {
		return nil, fmt.Errorf("parse added_at: %w", err)
	}

	return &repo, nil
}

// timeFormat is the canonical column format for timestamps. All writes go
// through formatTime so the column holds exactly this shape; the fixed-width
// millisecond fraction keeps lexicographic order equal to chronological
// order, which the range queries on started_at rely on.
const timeFormat = "2006-01-02 15:04:05.000"

// formatTime renders a timestamp for storage in UTC.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// parseTime tries multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
