package driven

import (
	"context"
	"errors"

	"github.com/pipeboard/pipeboard/internal/domain/model"
)

// ErrProviderUnavailable indicates a recoverable failure talking to an
// upstream CI provider (network error, auth rejection, rate limiting, or a
// non-2xx response). The scheduler skips the affected repository for the
// current cycle and retries on the next interval.
var ErrProviderUnavailable = errors.New("provider unavailable")

// ProviderClient defines the driven port for fetching recent pipeline runs
// from an upstream CI provider. Implementations normalize provider-specific
// status vocabularies into the canonical RunStatus/RunOutcome model and
// return runs most recent first, bounded to a fixed page size.
//
// FetchRecentRuns is a pure fetch: it never writes to storage. Transport
// failures are wrapped with ErrProviderUnavailable.
type ProviderClient interface {
	FetchRecentRuns(ctx context.Context, repo model.Repository) ([]model.Run, error)
}

// ErrRunNotFound indicates the provider has no run with the requested
// identifier for the repository.
var ErrRunNotFound = errors.New("run not found")

// RunLogFetcher retrieves the job breakdown and log output for a single
// run. Only providers that expose per-job logs implement it (GitHub
// Actions does; Jenkins does not). Returns ErrRunNotFound for an unknown
// run and ErrProviderUnavailable for transport failures.
type RunLogFetcher interface {
	FetchRunLogs(ctx context.Context, repo model.Repository, runID string) (*model.RunLogs, error)
}

// ConnectionTester contacts an integration's endpoint with the configured
// credentials. Transport failures and auth rejections are wrapped with
// ErrProviderUnavailable.
type ConnectionTester interface {
	TestConnection(ctx context.Context) (*model.ConnectionStatus, error)
}

// RepoVerifier checks that a repository exists upstream before it is
// registered for monitoring. Returns ErrRepoNotFound for an unknown
// repository and ErrProviderUnavailable for transport failures.
type RepoVerifier interface {
	VerifyRepository(ctx context.Context, fullName string) error
}

// JobLister is implemented by providers whose monitored targets are
// discovered from the provider itself rather than registered by the user
// (Jenkins exposes its full job list; GitHub repositories are user-added).
type JobLister interface {
	ListJobs(ctx context.Context) ([]model.Repository, error)
}
