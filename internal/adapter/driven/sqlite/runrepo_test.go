package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipeboard/pipeboard/internal/domain/model"
)

func TestRunRepo_UpsertIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repoID := addTestRepo(t, db, "octocat/hello-world")
	runRepo := NewRunRepo(db)
	ctx := context.Background()

	run := makeRun(repoID, "101", model.RunStatusCompleted, model.RunOutcomeFailure)
	run.CompletedAt = run.StartedAt.Add(5 * time.Minute)
	duration := int64(300)
	run.DurationSeconds = &duration

	require.NoError(t, runRepo.Upsert(ctx, run))
	require.NoError(t, runRepo.Upsert(ctx, run))

	// Applying the same payload twice leaves a single row with unchanged state.
	runs, err := runRepo.ListByRepository(ctx, repoID, 50)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	got := runs[0]
	assert.Equal(t, "101", got.RunID)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	assert.Equal(t, model.RunOutcomeFailure, got.Outcome)
	assert.Equal(t, run.StartedAt, got.StartedAt)
	assert.Equal(t, run.CompletedAt, got.CompletedAt)
	require.NotNil(t, got.DurationSeconds)
	assert.Equal(t, int64(300), *got.DurationSeconds)
	assert.Equal(t, "abc1234def5678", got.CommitSHA)
}

func TestRunRepo_UpsertUpdatesMutableFieldsOnly(t *testing.T) {
	db := setupTestDB(t)
	repoID := addTestRepo(t, db, "octocat/hello-world")
	runRepo := NewRunRepo(db)
	ctx := context.Background()

	first := makeRun(repoID, "202", model.RunStatusInProgress, model.RunOutcomeUnknown)
	require.NoError(t, runRepo.Upsert(ctx, first))

	stored, err := runRepo.GetByRunID(ctx, repoID, "202")
	require.NoError(t, err)
	require.NotNil(t, stored)
	firstID := stored.ID

	// Second observation: run completed with a failure. Commit metadata in
	// the refresh differs deliberately; only mutable fields may change.
	second := first
	second.Status = model.RunStatusCompleted
	second.Outcome = model.RunOutcomeFailure
	second.CompletedAt = first.StartedAt.Add(90 * time.Second)
	duration := int64(90)
	second.DurationSeconds = &duration
	second.CommitMessage = "rewritten message"
	second.Author = "impostor"

	require.NoError(t, runRepo.Upsert(ctx, second))

	got, err := runRepo.GetByRunID(ctx, repoID, "202")
	require.NoError(t, err)
	require.NotNil(t, got)

	// Row identity is stable through the refresh.
	assert.Equal(t, firstID, got.ID)

	assert.Equal(t, model.RunStatusCompleted, got.Status)
	assert.Equal(t, model.RunOutcomeFailure, got.Outcome)
	assert.Equal(t, second.CompletedAt, got.CompletedAt)
	require.NotNil(t, got.DurationSeconds)
	assert.Equal(t, int64(90), *got.DurationSeconds)

	// Commit metadata from the first observation is preserved.
	assert.Equal(t, "Fix flaky integration test", got.CommitMessage)
	assert.Equal(t, "octocat", got.Author)
}

func TestRunRepo_GetByRunID_Missing(t *testing.T) {
	db := setupTestDB(t)
	repoID := addTestRepo(t, db, "octocat/hello-world")
	runRepo := NewRunRepo(db)

	got, err := runRepo.GetByRunID(context.Background(), repoID, "999")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRunRepo_ListByRepository_NewestFirst(t *testing.T) {
	db := setupTestDB(t)
	repoID := addTestRepo(t, db, "octocat/hello-world")
	runRepo := NewRunRepo(db)
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"1", "2", "3"} {
		run := makeRun(repoID, id, model.RunStatusCompleted, model.RunOutcomeSuccess)
		run.StartedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, runRepo.Upsert(ctx, run))
	}

	runs, err := runRepo.ListByRepository(ctx, repoID, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "3", runs[0].RunID)
	assert.Equal(t, "2", runs[1].RunID)
}

func TestRunRepo_ListRecent_JoinsRepositoryNames(t *testing.T) {
	db := setupTestDB(t)
	repoID := addTestRepo(t, db, "octocat/hello-world")
	runRepo := NewRunRepo(db)
	ctx := context.Background()

	require.NoError(t, runRepo.Upsert(ctx, makeRun(repoID, "7", model.RunStatusCompleted, model.RunOutcomeSuccess)))

	recent, err := runRepo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "octocat/hello-world", recent[0].RepositoryFullName)
	assert.Equal(t, "7", recent[0].RunID)
}

func TestRunRepo_Aggregates(t *testing.T) {
	db := setupTestDB(t)
	repoID := addTestRepo(t, db, "octocat/hello-world")
	runRepo := NewRunRepo(db)
	ctx := context.Background()

	now := time.Now().UTC()
	since := now.Add(-30 * 24 * time.Hour)

	mk := func(id string, outcome model.RunOutcome, age time.Duration, duration int64) model.Run {
		run := makeRun(repoID, id, model.RunStatusCompleted, outcome)
		run.StartedAt = now.Add(-age)
		run.CompletedAt = run.StartedAt.Add(time.Duration(duration) * time.Second)
		run.DurationSeconds = &duration
		return run
	}

	require.NoError(t, runRepo.Upsert(ctx, mk("1", model.RunOutcomeSuccess, time.Hour, 100)))
	require.NoError(t, runRepo.Upsert(ctx, mk("2", model.RunOutcomeSuccess, 2*time.Hour, 200)))
	require.NoError(t, runRepo.Upsert(ctx, mk("3", model.RunOutcomeFailure, 3*time.Hour, 300)))
	// Outside the window; must not count.
	require.NoError(t, runRepo.Upsert(ctx, mk("4", model.RunOutcomeFailure, 40*24*time.Hour, 900)))

	rate, err := runRepo.SuccessRate(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, 67, rate)

	avg, err := runRepo.AvgDurationSeconds(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, 200, avg)

	count, err := runRepo.CountSince(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRunRepo_TimestampsRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	repoID := addTestRepo(t, db, "octocat/hello-world")
	runRepo := NewRunRepo(db)
	ctx := context.Background()

	// Sub-second precision and a non-UTC zone; columns store millisecond UTC.
	loc := time.FixedZone("CEST", 2*60*60)
	started := time.Date(2026, 8, 20, 14, 30, 15, 123_000_000, loc)
	duration := int64(300)

	run := makeRun(repoID, "901", model.RunStatusCompleted, model.RunOutcomeFailure)
	run.StartedAt = started
	run.CompletedAt = started.Add(5 * time.Minute)
	run.DurationSeconds = &duration
	require.NoError(t, runRepo.Upsert(ctx, run))

	got, err := runRepo.GetByRunID(ctx, repoID, "901")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.StartedAt.Equal(started), "started_at read back as %v", got.StartedAt)
	assert.True(t, got.CompletedAt.Equal(run.CompletedAt), "completed_at read back as %v", got.CompletedAt)
	assert.Equal(t, time.UTC, got.StartedAt.Location())

	// Stored values stay comparable against formatted window bounds.
	count, err := runRepo.CountSince(ctx, started.Add(-time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = runRepo.CountSince(ctx, started.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRunRepo_SuccessRate_NoRuns(t *testing.T) {
	db := setupTestDB(t)
	runRepo := NewRunRepo(db)

	rate, err := runRepo.SuccessRate(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, rate)
}
