package application_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pipeboard/pipeboard/internal/domain/model"
)

// --- Mock implementations shared across the application tests ---

type mockProviderClient struct {
	fetchRuns func(ctx context.Context, repo model.Repository) ([]model.Run, error)
}

func (m *mockProviderClient) FetchRecentRuns(ctx context.Context, repo model.Repository) ([]model.Run, error) {
	return m.fetchRuns(ctx, repo)
}

type mockRunStore struct {
	mu          sync.Mutex
	upserts     []model.Run
	failOnRunID string
	recent      []model.RunWithRepo
	rate        int
	avgSeconds  int
	countToday  int
}

func (m *mockRunStore) Upsert(_ context.Context, run model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.RunID == m.failOnRunID {
		return fmt.Errorf("disk full")
	}
	m.upserts = append(m.upserts, run)
	return nil
}

func (m *mockRunStore) GetByRunID(_ context.Context, _ int64, _ string) (*model.Run, error) {
	return nil, nil
}

func (m *mockRunStore) ListByRepository(_ context.Context, _ int64, _ int) ([]model.Run, error) {
	return nil, nil
}

func (m *mockRunStore) ListRecent(_ context.Context, _ int) ([]model.RunWithRepo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recent, nil
}

func (m *mockRunStore) SuccessRate(_ context.Context, _ time.Time) (int, error) {
	return m.rate, nil
}

func (m *mockRunStore) AvgDurationSeconds(_ context.Context, _ time.Time) (int, error) {
	return m.avgSeconds, nil
}

func (m *mockRunStore) CountSince(_ context.Context, _ time.Time) (int, error) {
	return m.countToday, nil
}

func (m *mockRunStore) upserted() []model.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Run(nil), m.upserts...)
}

// mockAlertStore keys existence on the exact (repository, run, channel)
// triple, matching the unique index in the real store.
type mockAlertStore struct {
	mu      sync.Mutex
	sent    map[string]bool
	records []model.Alert
}

func newMockAlertStore() *mockAlertStore {
	return &mockAlertStore{sent: make(map[string]bool)}
}

func alertKey(repoID int64, runID string, channel model.AlertChannel) string {
	return fmt.Sprintf("%d|%s|%s", repoID, runID, channel)
}

func (m *mockAlertStore) markSent(repoID int64, runID string, channel model.AlertChannel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[alertKey(repoID, runID, channel)] = true
}

func (m *mockAlertStore) Exists(_ context.Context, repoID int64, runID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, channel := range []model.AlertChannel{model.AlertChannelEmail, model.AlertChannelSlack} {
		if m.sent[alertKey(repoID, runID, channel)] {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockAlertStore) ExistsForChannel(_ context.Context, repoID int64, runID string, channel model.AlertChannel) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[alertKey(repoID, runID, channel)], nil
}

func (m *mockAlertStore) Record(_ context.Context, alert model.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[alertKey(alert.RepositoryID, alert.RunID, alert.Channel)] = true
	m.records = append(m.records, alert)
	return nil
}

func (m *mockAlertStore) ListByRepository(_ context.Context, _ int64) ([]model.Alert, error) {
	return nil, nil
}

func (m *mockAlertStore) recorded() []model.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Alert(nil), m.records...)
}

type mockSink struct {
	channel    model.AlertChannel
	recipients []string
	err        error

	mu     sync.Mutex
	events []model.FailureEvent
}

func (m *mockSink) Channel() model.AlertChannel { return m.channel }

func (m *mockSink) Recipients() []string { return m.recipients }

func (m *mockSink) Notify(_ context.Context, event model.FailureEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockSink) notified() []model.FailureEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.FailureEvent(nil), m.events...)
}

type mockBroadcaster struct {
	events chan model.CycleEvent
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{events: make(chan model.CycleEvent, 16)}
}

func (m *mockBroadcaster) BroadcastCycle(event model.CycleEvent) {
	m.events <- event
}

type mockRepoStore struct {
	mu      sync.Mutex
	repos   []model.Repository
	upserts []model.Repository
}

func (m *mockRepoStore) Add(_ context.Context, _ model.Repository) error { return nil }

func (m *mockRepoStore) Upsert(_ context.Context, repo model.Repository) (*model.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts = append(m.upserts, repo)
	return &repo, nil
}

func (m *mockRepoStore) Remove(_ context.Context, _ int64) error { return nil }

func (m *mockRepoStore) GetByID(_ context.Context, id int64) (*model.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, repo := range m.repos {
		if repo.ID == id {
			r := repo
			return &r, nil
		}
	}
	return nil, nil
}

func (m *mockRepoStore) GetByFullName(_ context.Context, _ model.Provider, _ string) (*model.Repository, error) {
	return nil, nil
}

func (m *mockRepoStore) ListByProvider(_ context.Context, _ model.Provider) ([]model.Repository, error) {
	return nil, nil
}

func (m *mockRepoStore) ListAll(_ context.Context) ([]model.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Repository(nil), m.repos...), nil
}

type mockJobLister struct {
	jobs []model.Repository
	err  error
}

func (m *mockJobLister) ListJobs(_ context.Context) ([]model.Repository, error) {
	return m.jobs, m.err
}

// --- Shared fixtures ---

func testRepo(id int64, fullName string) model.Repository {
	return model.Repository{
		ID:       id,
		Name:     fullName,
		FullName: fullName,
		Provider: model.ProviderGitHub,
		URL:      "https://github.com/" + fullName,
	}
}

func failedRun(runID string) model.Run {
	return model.Run{
		RunID:         runID,
		Branch:        "main",
		CommitSHA:     "abc1234def",
		CommitMessage: "break things",
		Author:        "dev",
		Status:        model.RunStatusCompleted,
		Outcome:       model.RunOutcomeFailure,
		StartedAt:     time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		CompletedAt:   time.Date(2025, 6, 1, 10, 5, 0, 0, time.UTC),
	}
}

func successRun(runID string) model.Run {
	run := failedRun(runID)
	run.Outcome = model.RunOutcomeSuccess
	return run
}
