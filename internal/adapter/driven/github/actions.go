// Package github implements the ProviderClient port for GitHub Actions
// using the go-github library.
package github

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/pipeboard/pipeboard/internal/domain/model"
	"github.com/pipeboard/pipeboard/internal/domain/port/driven"
)

// runsPerPage bounds a single fetch; the reconciler never paginates beyond
// the most recent page of workflow runs.
const runsPerPage = 50

// maxJobLogBytes caps how much of a single job's log download is kept.
const maxJobLogBytes = 2 << 20

// Compile-time interface satisfaction check.
var (
	_ driven.ProviderClient = (*Client)(nil)
	_ driven.RepoVerifier   = (*Client)(nil)
	_ driven.RunLogFetcher  = (*Client)(nil)
)

// Client implements the ProviderClient port for GitHub Actions.
type Client struct {
	gh           *gh.Client
	logHTTP      *http.Client
	fetchTimeout time.Duration
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
func NewClient(token string, fetchTimeout time.Duration) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return &Client{
		gh:           client,
		logHTTP:      &http.Client{Timeout: fetchTimeout},
		fetchTimeout: fetchTimeout,
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base
// URL. This constructor is intended for testing, allowing injection of an
// httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string, fetchTimeout time.Duration) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{
		gh:           client,
		logHTTP:      httpClient,
		fetchTimeout: fetchTimeout,
	}, nil
}

// FetchRecentRuns retrieves the most recent workflow runs for the given
// repository, bounded to a single page, and maps them into the canonical
// run model, most recent first. Transport and API failures are wrapped with
// ErrProviderUnavailable so one unreachable repository never aborts the
// poll cycle.
func (c *Client) FetchRecentRuns(ctx context.Context, repo model.Repository) ([]model.Run, error) {
	owner, name, err := splitRepo(repo.FullName)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	opts := &gh.ListWorkflowRunsOptions{
		ListOptions: gh.ListOptions{PerPage: runsPerPage},
	}

	result, resp, err := c.gh.Actions.ListRepositoryWorkflowRuns(ctx, owner, name, opts)
	if err != nil {
		return nil, fmt.Errorf("listing workflow runs for %s: %w: %w", repo.FullName, driven.ErrProviderUnavailable, err)
	}

	logRateLimit(resp, repo.FullName, len(result.WorkflowRuns))

	runs := make([]model.Run, 0, len(result.WorkflowRuns))
	for _, wr := range result.WorkflowRuns {
		runs = append(runs, mapWorkflowRun(wr, repo.ID))
	}

	return runs, nil
}

// VerifyRepository checks that the repository exists and is reachable with
// the configured token. Used when a repository is registered via the API.
func (c *Client) VerifyRepository(ctx context.Context, fullName string) error {
	owner, name, err := splitRepo(fullName)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	_, resp, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("repository %s: %w", fullName, driven.ErrRepoNotFound)
		}
		return fmt.Errorf("verifying repository %s: %w: %w", fullName, driven.ErrProviderUnavailable, err)
	}

	return nil
}

// FetchRunLogs retrieves the job breakdown for one workflow run, with each
// job's log text when GitHub still has it. Logs live on short-lived blob
// URLs; a job whose download fails gets a placeholder instead of failing
// the whole request.
func (c *Client) FetchRunLogs(ctx context.Context, repo model.Repository, runID string) (*model.RunLogs, error) {
	owner, name, err := splitRepo(repo.FullName)
	if err != nil {
		return nil, err
	}

	id, err := strconv.ParseInt(runID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, driven.ErrRunNotFound)
	}

	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	wr, resp, err := c.gh.Actions.GetWorkflowRunByID(ctx, owner, name, id)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("run %s in %s: %w", runID, repo.FullName, driven.ErrRunNotFound)
		}
		return nil, fmt.Errorf("fetching run %s in %s: %w: %w", runID, repo.FullName, driven.ErrProviderUnavailable, err)
	}

	jobsResult, resp, err := c.gh.Actions.ListWorkflowJobs(ctx, owner, name, id, &gh.ListWorkflowJobsOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, fmt.Errorf("listing jobs for run %s in %s: %w: %w", runID, repo.FullName, driven.ErrProviderUnavailable, err)
	}

	logRateLimit(resp, repo.FullName+"/jobs", len(jobsResult.Jobs))

	jobs := make([]model.RunJob, 0, len(jobsResult.Jobs))
	for _, j := range jobsResult.Jobs {
		job := model.RunJob{
			ID:          j.GetID(),
			Name:        j.GetName(),
			Status:      mapStatus(j.GetStatus()),
			Outcome:     mapConclusion(j.GetConclusion()),
			StartedAt:   j.GetStartedAt().Time,
			CompletedAt: j.GetCompletedAt().Time,
		}
		job.Log, job.LogURL = c.downloadJobLog(ctx, owner, name, j.GetID())
		jobs = append(jobs, job)
	}

	return &model.RunLogs{
		Run:     mapWorkflowRun(wr, repo.ID),
		Jobs:    jobs,
		Summary: model.SummarizeJobs(jobs),
	}, nil
}

// downloadJobLog resolves the job's log blob URL and downloads its text,
// bounded to maxJobLogBytes. Expired or inaccessible logs yield a
// placeholder string and an empty URL.
func (c *Client) downloadJobLog(ctx context.Context, owner, name string, jobID int64) (string, string) {
	logURL, _, err := c.gh.Actions.GetWorkflowJobLogs(ctx, owner, name, jobID, 4)
	if err != nil {
		slog.Debug("job log url lookup failed", "job", jobID, "error", err)
		return "Logs not accessible or expired", ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, logURL.String(), nil)
	if err != nil {
		return "Logs not accessible or expired", logURL.String()
	}

	resp, err := c.logHTTP.Do(req)
	if err != nil {
		slog.Debug("job log download failed", "job", jobID, "error", err)
		return "Logs not accessible or expired", logURL.String()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "Logs not accessible or expired", logURL.String()
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJobLogBytes))
	if err != nil || len(body) == 0 {
		return "Logs not available", logURL.String()
	}

	return string(body), logURL.String()
}

// mapWorkflowRun converts a go-github WorkflowRun to a canonical Run. It
// uses GetXxx() helper methods exclusively to avoid nil pointer panics, and
// substitutes placeholder values for fields the API reported as missing.
func mapWorkflowRun(wr *gh.WorkflowRun, repositoryID int64) model.Run {
	startedAt := wr.GetCreatedAt().Time
	updatedAt := wr.GetUpdatedAt().Time

	run := model.Run{
		RepositoryID:  repositoryID,
		RunID:         strconv.FormatInt(wr.GetID(), 10),
		Status:        mapStatus(wr.GetStatus()),
		Outcome:       mapConclusion(wr.GetConclusion()),
		StartedAt:     startedAt,
		CommitSHA:     wr.GetHeadSHA(),
		CommitMessage: wr.GetHeadCommit().GetMessage(),
		Branch:        wr.GetHeadBranch(),
		Author:        wr.GetHeadCommit().GetAuthor().GetName(),
	}

	if run.Status == model.RunStatusCompleted && !startedAt.IsZero() && !updatedAt.IsZero() {
		run.CompletedAt = updatedAt
		seconds := int64(updatedAt.Sub(startedAt).Round(time.Second).Seconds())
		run.DurationSeconds = &seconds
	}

	if run.CommitMessage == "" {
		run.CommitMessage = "No commit message"
	}
	if run.Author == "" {
		run.Author = wr.GetActor().GetLogin()
	}
	if run.Author == "" {
		run.Author = "Unknown"
	}

	return run
}

// mapStatus normalizes the GitHub Actions status vocabulary into the
// canonical lifecycle model.
func mapStatus(status string) model.RunStatus {
	switch status {
	case "completed":
		return model.RunStatusCompleted
	case "in_progress":
		return model.RunStatusInProgress
	default:
		// queued, waiting, requested, pending
		return model.RunStatusPending
	}
}

// mapConclusion normalizes the GitHub Actions conclusion vocabulary.
// Conclusions that represent a broken pipeline (timed_out, startup_failure)
// are folded into failure; neutral, skipped, stale, and action_required map
// to unknown.
func mapConclusion(conclusion string) model.RunOutcome {
	switch conclusion {
	case "success":
		return model.RunOutcomeSuccess
	case "failure", "timed_out", "startup_failure":
		return model.RunOutcomeFailure
	case "cancelled":
		return model.RunOutcomeCancelled
	default:
		return model.RunOutcomeUnknown
	}
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// splitRepo splits a "owner/repo" string into its two components.
func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}
