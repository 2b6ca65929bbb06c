package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pipeboard/pipeboard/internal/domain/model"
)

// setupTestDB creates a named shared in-memory SQLite database for testing.
// Writer and reader connections share the same in-memory database via
// cache=shared. A unique name derived from t.Name() ensures isolation
// between parallel tests.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// Percent-encode the test name so it's a safe SQLite URI filename
	// component and cannot be misinterpreted as query parameters in the DSN.
	safeName := url.PathEscape(t.Name())
	// WAL mode is not applicable to in-memory databases; omit journal_mode pragma.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=cache_size(-64000)",
		safeName,
	)

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("create test db writer: %v", err)
	}
	writer.SetMaxOpenConns(1)
	if err := writer.PingContext(context.Background()); err != nil {
		_ = writer.Close()
		t.Fatalf("ping test db writer: %v", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		t.Fatalf("create test db reader: %v", err)
	}
	reader.SetMaxOpenConns(4)
	if err := reader.PingContext(context.Background()); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		t.Fatalf("ping test db reader: %v", err)
	}

	db := &DB{Writer: writer, Reader: reader, path: dsn}

	if err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return db
}

// addTestRepo inserts a github repository and returns its database ID.
func addTestRepo(t *testing.T, db *DB, fullName string) int64 {
	t.Helper()

	repoRepo := NewRepoRepo(db)
	ctx := context.Background()

	require.NoError(t, repoRepo.Add(ctx, model.Repository{
		Name:     fullName,
		FullName: fullName,
		Provider: model.ProviderGitHub,
		URL:      "https://github.com/" + fullName,
		AddedAt:  time.Now().UTC(),
	}))

	stored, err := repoRepo.GetByFullName(ctx, model.ProviderGitHub, fullName)
	require.NoError(t, err)
	require.NotNil(t, stored)

	return stored.ID
}

// makeRun builds a run with sensible defaults for upsert tests.
func makeRun(repositoryID int64, runID string, status model.RunStatus, outcome model.RunOutcome) model.Run {
	return model.Run{
		RepositoryID:  repositoryID,
		RunID:         runID,
		Status:        status,
		Outcome:       outcome,
		StartedAt:     time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
		CommitSHA:     "abc1234def5678",
		CommitMessage: "Fix flaky integration test",
		Branch:        "main",
		Author:        "octocat",
	}
}
