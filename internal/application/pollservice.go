package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/pipeboard/pipeboard/internal/domain/model"
	"github.com/pipeboard/pipeboard/internal/domain/port/driven"
)

// recentRunsSample bounds how many runs each cycle broadcast carries.
const recentRunsSample = 10

// refreshRequest represents a manual refresh trigger for one repository.
type refreshRequest struct {
	repoID int64
	done   chan error
}

// PollService orchestrates the periodic reconciliation loop: it walks the
// watched repositories sequentially, reconciles each against its provider,
// fans out failure alerts, and broadcasts a cycle summary. All cycles run
// on a single goroutine, so at most one cycle is in flight at a time.
type PollService struct {
	repoStore    driven.RepoStore
	runStore     driven.RunStore
	alerts       *AlertService
	broadcaster  driven.Broadcaster
	reconcilers  map[model.Provider]*Reconciler
	jenkinsJobs  driven.JobLister
	initialDelay time.Duration
	interval     time.Duration
	repoPause    time.Duration
	refreshCh    chan refreshRequest
}

// NewPollService creates a PollService. The reconcilers map binds each
// provider to its adapter; jenkinsJobs may be nil when Jenkins is not
// configured, in which case job discovery is skipped.
func NewPollService(
	repoStore driven.RepoStore,
	runStore driven.RunStore,
	alerts *AlertService,
	broadcaster driven.Broadcaster,
	reconcilers map[model.Provider]*Reconciler,
	jenkinsJobs driven.JobLister,
	initialDelay, interval, repoPause time.Duration,
) *PollService {
	return &PollService{
		repoStore:    repoStore,
		runStore:     runStore,
		alerts:       alerts,
		broadcaster:  broadcaster,
		reconcilers:  reconcilers,
		jenkinsJobs:  jenkinsJobs,
		initialDelay: initialDelay,
		interval:     interval,
		repoPause:    repoPause,
		refreshCh:    make(chan refreshRequest),
	}
}

// Start begins the reconciliation loop. It waits the initial delay, runs a
// first cycle, then waits the full interval after each cycle finishes
// before starting the next one, so a slow cycle never overlaps its
// successor. It also listens for manual refresh requests between cycles.
// Start blocks until the context is canceled.
func (s *PollService) Start(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.initialDelay):
	}

	s.runCycle(ctx)

	// The timer is reset once the cycle returns, so the interval is
	// measured from cycle end rather than on a fixed cadence.
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("poll service stopped")
			return
		case <-timer.C:
			s.runCycle(ctx)
			timer.Reset(s.interval)
		case req := <-s.refreshCh:
			req.done <- s.handleRefresh(ctx, req)
		}
	}
}

// RefreshRepo triggers a reconciliation of a single repository, bypassing
// the polling interval. It blocks until the refresh completes or the
// context is canceled.
func (s *PollService) RefreshRepo(ctx context.Context, repoID int64) error {
	done := make(chan error, 1)
	req := refreshRequest{repoID: repoID, done: done}

	select {
	case s.refreshCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runCycle executes one full reconciliation cycle and broadcasts its
// outcome. Per-repository errors are counted, not propagated; one slow or
// broken provider must not starve the rest.
func (s *PollService) runCycle(ctx context.Context) {
	start := time.Now()

	if s.jenkinsJobs != nil {
		s.syncJenkinsJobs(ctx)
	}

	repos, err := s.repoStore.ListAll(ctx)
	if err != nil {
		slog.Error("repository listing failed", "error", err)
		return
	}

	var cycleErrors int
	for i, repo := range repos {
		if ctx.Err() != nil {
			return
		}
		if i > 0 && s.repoPause > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.repoPause):
			}
		}

		if err := s.reconcileAndAlert(ctx, repo); err != nil {
			slog.Error("repository reconcile failed", "repo", repo.FullName, "error", err)
			cycleErrors++
		}
	}

	s.broadcast(ctx, len(repos), cycleErrors)

	slog.Info("poll cycle complete",
		"repos", len(repos),
		"errors", cycleErrors,
		"duration", time.Since(start).Round(time.Millisecond),
	)
}

// reconcileAndAlert reconciles one repository and fans out alerts for runs
// newly observed as failed.
func (s *PollService) reconcileAndAlert(ctx context.Context, repo model.Repository) error {
	reconciler, ok := s.reconcilers[repo.Provider]
	if !ok {
		slog.Warn("no provider configured for repository", "repo", repo.FullName, "provider", string(repo.Provider))
		return nil
	}

	newlyFailed, err := reconciler.Reconcile(ctx, repo)
	if err != nil {
		return err
	}

	for _, run := range newlyFailed {
		s.alerts.NotifyFailure(ctx, model.FailureEvent{Repository: repo, Run: run})
	}

	return nil
}

// syncJenkinsJobs discovers Jenkins jobs and upserts them as watched
// repositories so the main loop reconciles them like any other repo.
func (s *PollService) syncJenkinsJobs(ctx context.Context) {
	jobs, err := s.jenkinsJobs.ListJobs(ctx)
	if err != nil {
		slog.Error("jenkins job discovery failed", "error", err)
		return
	}

	for _, job := range jobs {
		if _, err := s.repoStore.Upsert(ctx, job); err != nil {
			slog.Error("jenkins job upsert failed", "job", job.FullName, "error", err)
		}
	}
}

// broadcast pushes a cycle summary with a bounded sample of recent runs.
func (s *PollService) broadcast(ctx context.Context, repoCount, errCount int) {
	if s.broadcaster == nil {
		return
	}

	recent, err := s.runStore.ListRecent(ctx, recentRunsSample)
	if err != nil {
		slog.Error("recent runs lookup failed", "error", err)
		recent = nil
	}

	s.broadcaster.BroadcastCycle(model.CycleEvent{
		Repositories: repoCount,
		Errors:       errCount,
		Runs:         recent,
	})
}

// handleRefresh reconciles a single repository on demand.
func (s *PollService) handleRefresh(ctx context.Context, req refreshRequest) error {
	repo, err := s.repoStore.GetByID(ctx, req.repoID)
	if err != nil {
		return err
	}
	if repo == nil {
		return driven.ErrRepoNotFound
	}

	slog.Info("manual refresh requested", "repo", repo.FullName)

	return s.reconcileAndAlert(ctx, *repo)
}
