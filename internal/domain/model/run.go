package model

import "time"

// Run represents one execution of a pipeline. (RepositoryID, RunID) is the
// natural key used for idempotent upserts; RunID is the provider-native
// identifier and is never rewritten once stored.
type Run struct {
	ID           int64
	RepositoryID int64
	RunID        string
	Status       RunStatus
	Outcome      RunOutcome
	StartedAt    time.Time
	// CompletedAt is zero while the run is still pending or in progress.
	CompletedAt time.Time
	// DurationSeconds is nil until both start and completion times are known.
	DurationSeconds *int64
	CommitSHA       string
	CommitMessage   string
	Branch          string
	Author          string
}

// IsFailed reports whether the run has finished with a failing outcome.
func (r Run) IsFailed() bool {
	return r.Status == RunStatusCompleted && r.Outcome == RunOutcomeFailure
}

// RunWithRepo pairs a run with the name of its owning repository, for the
// recent-runs feed where rows from all repositories are interleaved.
type RunWithRepo struct {
	Run
	RepositoryName     string
	RepositoryFullName string
}
