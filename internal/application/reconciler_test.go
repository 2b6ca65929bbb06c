package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipeboard/pipeboard/internal/application"
	"github.com/pipeboard/pipeboard/internal/domain/model"
	"github.com/pipeboard/pipeboard/internal/domain/port/driven"
)

func newReconcilerFixture(runs []model.Run, fetchErr error) (*application.Reconciler, *mockRunStore, *mockAlertStore) {
	provider := &mockProviderClient{
		fetchRuns: func(_ context.Context, _ model.Repository) ([]model.Run, error) {
			return runs, fetchErr
		},
	}
	runStore := &mockRunStore{}
	alertStore := newMockAlertStore()
	alerts := application.NewAlertService(alertStore, nil)
	return application.NewReconciler(provider, runStore, alerts), runStore, alertStore
}

func TestReconcileDetectsNewFailures(t *testing.T) {
	runs := []model.Run{failedRun("101"), successRun("102"), failedRun("103")}
	reconciler, runStore, _ := newReconcilerFixture(runs, nil)

	repo := testRepo(1, "acme/api")
	newlyFailed, err := reconciler.Reconcile(context.Background(), repo)
	require.NoError(t, err)

	require.Len(t, newlyFailed, 2)
	assert.Equal(t, "101", newlyFailed[0].RunID)
	assert.Equal(t, "103", newlyFailed[1].RunID)

	upserted := runStore.upserted()
	require.Len(t, upserted, 3)
	for _, run := range upserted {
		assert.Equal(t, int64(1), run.RepositoryID)
	}
}

func TestReconcileSkipsAlreadyAlertedRuns(t *testing.T) {
	runs := []model.Run{failedRun("101")}
	reconciler, runStore, alertStore := newReconcilerFixture(runs, nil)
	alertStore.markSent(1, "101", model.AlertChannelSlack)

	newlyFailed, err := reconciler.Reconcile(context.Background(), testRepo(1, "acme/api"))
	require.NoError(t, err)

	// The run is still upserted so its latest state is stored, but it is
	// not reported as newly failed.
	assert.Empty(t, newlyFailed)
	assert.Len(t, runStore.upserted(), 1)
}

func TestReconcileIgnoresIncompleteAndNonFailingRuns(t *testing.T) {
	pending := failedRun("201")
	pending.Status = model.RunStatusInProgress
	cancelled := failedRun("202")
	cancelled.Outcome = model.RunOutcomeCancelled

	runs := []model.Run{pending, cancelled, successRun("203")}
	reconciler, runStore, _ := newReconcilerFixture(runs, nil)

	newlyFailed, err := reconciler.Reconcile(context.Background(), testRepo(1, "acme/api"))
	require.NoError(t, err)

	assert.Empty(t, newlyFailed)
	assert.Len(t, runStore.upserted(), 3)
}

func TestReconcileSkipsFailedUpsertAndContinues(t *testing.T) {
	runs := []model.Run{failedRun("101"), failedRun("102"), failedRun("103")}
	reconciler, runStore, _ := newReconcilerFixture(runs, nil)
	runStore.failOnRunID = "102"

	newlyFailed, err := reconciler.Reconcile(context.Background(), testRepo(1, "acme/api"))
	require.NoError(t, err)

	// Run 102 hit a storage error: it is neither stored nor reported,
	// while the runs around it are unaffected.
	require.Len(t, newlyFailed, 2)
	assert.Equal(t, "101", newlyFailed[0].RunID)
	assert.Equal(t, "103", newlyFailed[1].RunID)
	assert.Len(t, runStore.upserted(), 2)
}

func TestReconcilePropagatesProviderError(t *testing.T) {
	reconciler, runStore, _ := newReconcilerFixture(nil, driven.ErrProviderUnavailable)

	_, err := reconciler.Reconcile(context.Background(), testRepo(1, "acme/api"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, driven.ErrProviderUnavailable))
	assert.Empty(t, runStore.upserted())
}

func TestReconcileAlertsOnceAcrossLifecycleTransitions(t *testing.T) {
	run := failedRun("301")
	run.Status = model.RunStatusPending
	run.Outcome = model.RunOutcomeUnknown
	run.CompletedAt = time.Time{}

	var current model.Run
	provider := &mockProviderClient{
		fetchRuns: func(_ context.Context, _ model.Repository) ([]model.Run, error) {
			return []model.Run{current}, nil
		},
	}
	runStore := &mockRunStore{}
	alertStore := newMockAlertStore()
	sink := &mockSink{channel: model.AlertChannelEmail}
	alerts := application.NewAlertService(alertStore, []driven.Sink{sink})
	reconciler := application.NewReconciler(provider, runStore, alerts)

	repo := testRepo(1, "acme/api")

	cycle := func() []model.Run {
		t.Helper()
		newlyFailed, err := reconciler.Reconcile(context.Background(), repo)
		require.NoError(t, err)
		for _, r := range newlyFailed {
			alerts.NotifyFailure(context.Background(), model.FailureEvent{Repository: repo, Run: r})
		}
		return newlyFailed
	}

	// Cycle 1: pending. Cycle 2: in progress. Neither alerts.
	current = run
	assert.Empty(t, cycle())

	current.Status = model.RunStatusInProgress
	assert.Empty(t, cycle())

	// Cycle 3: the run completes with a failure and alerts exactly once.
	current.Status = model.RunStatusCompleted
	current.Outcome = model.RunOutcomeFailure
	current.CompletedAt = current.StartedAt.Add(5 * time.Minute)
	require.Len(t, cycle(), 1)

	// Cycle 4: unchanged terminal state stays silent.
	assert.Empty(t, cycle())
	assert.Len(t, sink.notified(), 1)
}

func TestReconcileRetriesChannelThatFailedToDispatch(t *testing.T) {
	runs := []model.Run{failedRun("101")}
	provider := &mockProviderClient{
		fetchRuns: func(_ context.Context, _ model.Repository) ([]model.Run, error) {
			return runs, nil
		},
	}
	runStore := &mockRunStore{}
	alertStore := newMockAlertStore()
	email := &mockSink{channel: model.AlertChannelEmail, err: errors.New("smtp refused")}
	slack := &mockSink{channel: model.AlertChannelSlack}
	alerts := application.NewAlertService(alertStore, []driven.Sink{email, slack})
	reconciler := application.NewReconciler(provider, runStore, alerts)

	repo := testRepo(1, "acme/api")

	// Cycle 1: slack delivers, email errors and records nothing.
	first, err := reconciler.Reconcile(context.Background(), repo)
	require.NoError(t, err)
	require.Len(t, first, 1)
	alerts.NotifyFailure(context.Background(), model.FailureEvent{Repository: repo, Run: first[0]})
	assert.Len(t, slack.notified(), 1)
	assert.Empty(t, email.notified())

	// Cycle 2: email has recovered. The run is still reported so the
	// missing channel can catch up; slack is not dispatched again.
	email.err = nil
	second, err := reconciler.Reconcile(context.Background(), repo)
	require.NoError(t, err)
	require.Len(t, second, 1)
	alerts.NotifyFailure(context.Background(), model.FailureEvent{Repository: repo, Run: second[0]})
	assert.Len(t, email.notified(), 1)
	assert.Len(t, slack.notified(), 1)

	// Cycle 3: every channel is covered and the run goes quiet.
	third, err := reconciler.Reconcile(context.Background(), repo)
	require.NoError(t, err)
	assert.Empty(t, third)
}

func TestReconcileIsIdempotentAcrossCycles(t *testing.T) {
	runs := []model.Run{failedRun("101")}
	provider := &mockProviderClient{
		fetchRuns: func(_ context.Context, _ model.Repository) ([]model.Run, error) {
			return runs, nil
		},
	}
	runStore := &mockRunStore{}
	alertStore := newMockAlertStore()
	sink := &mockSink{channel: model.AlertChannelSlack}
	alerts := application.NewAlertService(alertStore, []driven.Sink{sink})
	reconciler := application.NewReconciler(provider, runStore, alerts)

	repo := testRepo(1, "acme/api")

	// First cycle detects the failure; the alert is then recorded.
	first, err := reconciler.Reconcile(context.Background(), repo)
	require.NoError(t, err)
	require.Len(t, first, 1)
	alerts.NotifyFailure(context.Background(), model.FailureEvent{Repository: repo, Run: first[0]})

	// Second cycle sees the same provider state and stays silent.
	second, err := reconciler.Reconcile(context.Background(), repo)
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Len(t, sink.notified(), 1)
}
