package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipeboard/pipeboard/internal/domain/model"
)

func makeAlert(repositoryID int64, runID string, channel model.AlertChannel) model.Alert {
	return model.Alert{
		RepositoryID: repositoryID,
		RunID:        runID,
		Channel:      channel,
		Message:      "Pipeline failed (Run ID: " + runID + "): failure",
		Recipients:   []string{"dev@example.com"},
		SentAt:       time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
	}
}

func TestAlertRepo_RecordAndExists(t *testing.T) {
	db := setupTestDB(t)
	repoID := addTestRepo(t, db, "octocat/hello-world")
	alertRepo := NewAlertRepo(db)
	ctx := context.Background()

	exists, err := alertRepo.Exists(ctx, repoID, "101")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, alertRepo.Record(ctx, makeAlert(repoID, "101", model.AlertChannelSlack)))

	exists, err = alertRepo.Exists(ctx, repoID, "101")
	require.NoError(t, err)
	assert.True(t, exists)

	forSlack, err := alertRepo.ExistsForChannel(ctx, repoID, "101", model.AlertChannelSlack)
	require.NoError(t, err)
	assert.True(t, forSlack)

	forEmail, err := alertRepo.ExistsForChannel(ctx, repoID, "101", model.AlertChannelEmail)
	require.NoError(t, err)
	assert.False(t, forEmail)
}

// Run ids that are substrings of one another must not cross-match: the
// lookup is an equality on run_id, not a pattern match on the message text.
func TestAlertRepo_NoSubstringCrossMatch(t *testing.T) {
	db := setupTestDB(t)
	repoID := addTestRepo(t, db, "octocat/hello-world")
	alertRepo := NewAlertRepo(db)
	ctx := context.Background()

	require.NoError(t, alertRepo.Record(ctx, makeAlert(repoID, "10", model.AlertChannelSlack)))

	exists, err := alertRepo.Exists(ctx, repoID, "1")
	require.NoError(t, err)
	assert.False(t, exists, `alert for run "10" must not match run "1"`)

	exists, err = alertRepo.Exists(ctx, repoID, "10")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestAlertRepo_UniquePerChannel(t *testing.T) {
	db := setupTestDB(t)
	repoID := addTestRepo(t, db, "octocat/hello-world")
	alertRepo := NewAlertRepo(db)
	ctx := context.Background()

	require.NoError(t, alertRepo.Record(ctx, makeAlert(repoID, "101", model.AlertChannelSlack)))

	// Same (repository, run, channel) is rejected by the unique index.
	err := alertRepo.Record(ctx, makeAlert(repoID, "101", model.AlertChannelSlack))
	require.Error(t, err)

	// A different channel for the same run is allowed.
	require.NoError(t, alertRepo.Record(ctx, makeAlert(repoID, "101", model.AlertChannelEmail)))

	alerts, err := alertRepo.ListByRepository(ctx, repoID)
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
}

func TestAlertRepo_ListByRepository(t *testing.T) {
	db := setupTestDB(t)
	repoID := addTestRepo(t, db, "octocat/hello-world")
	alertRepo := NewAlertRepo(db)
	ctx := context.Background()

	first := makeAlert(repoID, "1", model.AlertChannelSlack)
	first.SentAt = time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	second := makeAlert(repoID, "2", model.AlertChannelSlack)
	second.SentAt = time.Date(2026, 8, 20, 11, 0, 0, 0, time.UTC)

	require.NoError(t, alertRepo.Record(ctx, first))
	require.NoError(t, alertRepo.Record(ctx, second))

	alerts, err := alertRepo.ListByRepository(ctx, repoID)
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	// Newest first.
	assert.Equal(t, "2", alerts[0].RunID)
	assert.Equal(t, "1", alerts[1].RunID)
	assert.Equal(t, []string{"dev@example.com"}, alerts[0].Recipients)
	assert.Contains(t, alerts[0].Message, "Run ID: 2")
}

func TestAlertRepo_CascadeDelete(t *testing.T) {
	db := setupTestDB(t)
	repoID := addTestRepo(t, db, "octocat/hello-world")
	repoRepo := NewRepoRepo(db)
	alertRepo := NewAlertRepo(db)
	runRepo := NewRunRepo(db)
	ctx := context.Background()

	require.NoError(t, runRepo.Upsert(ctx, makeRun(repoID, "101", model.RunStatusCompleted, model.RunOutcomeFailure)))
	require.NoError(t, alertRepo.Record(ctx, makeAlert(repoID, "101", model.AlertChannelSlack)))

	require.NoError(t, repoRepo.Remove(ctx, repoID))

	alerts, err := alertRepo.ListByRepository(ctx, repoID)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	runs, err := runRepo.ListByRepository(ctx, repoID, 50)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
