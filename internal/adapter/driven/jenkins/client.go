// Package jenkins implements the ProviderClient port for a Jenkins build
// server using its JSON remote access API.
package jenkins

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pipeboard/pipeboard/internal/domain/model"
	"github.com/pipeboard/pipeboard/internal/domain/port/driven"
)

// buildsPerJob bounds how many recent builds are fetched per job.
const buildsPerJob = 20

// Compile-time interface satisfaction checks.
var (
	_ driven.ProviderClient   = (*Client)(nil)
	_ driven.JobLister        = (*Client)(nil)
	_ driven.ConnectionTester = (*Client)(nil)
)

// Client implements the ProviderClient and JobLister ports against the
// Jenkins JSON API with basic auth. There is no Jenkins client library in
// use here; the API surface needed is two tree-filtered GET endpoints.
type Client struct {
	baseURL  string
	username string
	apiToken string
	http     *http.Client
}

// NewClient creates a Jenkins API client. baseURL must not have a trailing
// slash. Every request carries the given timeout.
func NewClient(baseURL, username, apiToken string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		apiToken: apiToken,
		http:     &http.Client{Timeout: timeout},
	}
}

type jobsResponse struct {
	Jobs []jobJSON `json:"jobs"`
}

type jobJSON struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type buildsResponse struct {
	Builds []buildJSON `json:"builds"`
}

type buildJSON struct {
	Number    int64  `json:"number"`
	URL       string `json:"url"`
	Result    string `json:"result"`
	Timestamp int64  `json:"timestamp"` // Milliseconds since epoch.
	Duration  int64  `json:"duration"`  // Milliseconds.
	ChangeSet struct {
		Items []struct {
			Msg    string `json:"msg"`
			Author struct {
				FullName string `json:"fullName"`
			} `json:"author"`
		} `json:"items"`
	} `json:"changeSet"`
}

// ListJobs returns all jobs known to the Jenkins server as jenkins-provider
// repositories. The scheduler upserts these before reconciling them, so
// jobs appear and disappear from monitoring as they do on the server.
func (c *Client) ListJobs(ctx context.Context) ([]model.Repository, error) {
	var resp jobsResponse
	if err := c.getJSON(ctx, "/api/json?tree=jobs[name,url]", &resp); err != nil {
		return nil, fmt.Errorf("listing jenkins jobs: %w", err)
	}

	jobs := make([]model.Repository, 0, len(resp.Jobs))
	for _, j := range resp.Jobs {
		jobs = append(jobs, model.Repository{
			Name:     j.Name,
			FullName: j.Name,
			Provider: model.ProviderJenkins,
			URL:      j.URL,
		})
	}

	return jobs, nil
}

// FetchRecentRuns retrieves the most recent builds for the job named by the
// repository, bounded to buildsPerJob, most recent first (Jenkins returns
// builds newest first).
func (c *Client) FetchRecentRuns(ctx context.Context, repo model.Repository) ([]model.Run, error) {
	path := fmt.Sprintf(
		"/job/%s/api/json?tree=builds[number,url,result,timestamp,duration,changeSet[items[msg,author[fullName]]]]",
		url.PathEscape(repo.FullName),
	)

	var resp buildsResponse
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("fetching builds for job %s: %w", repo.FullName, err)
	}

	builds := resp.Builds
	if len(builds) > buildsPerJob {
		builds = builds[:buildsPerJob]
	}

	runs := make([]model.Run, 0, len(builds))
	for _, b := range builds {
		runs = append(runs, mapBuild(b, repo.ID))
	}

	return runs, nil
}

// TestConnection contacts the server root with the configured credentials.
// Jenkins reports its version in the X-Jenkins response header rather than
// the JSON body, so this bypasses getJSON to read it.
func (c *Client) TestConnection(ctx context.Context) (*model.ConnectionStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/json?tree=jobs[name]", nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.apiToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to jenkins: %w: %w", driven.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("connecting to jenkins: %w: unexpected status %d", driven.ErrProviderUnavailable, resp.StatusCode)
	}

	var jobs jobsResponse
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return nil, fmt.Errorf("decode jenkins response: %w", err)
	}

	version := resp.Header.Get("X-Jenkins")
	if version == "" {
		version = "Unknown"
	}

	return &model.ConnectionStatus{
		URL:      c.baseURL,
		Version:  version,
		JobCount: len(jobs.Jobs),
	}, nil
}

// getJSON performs an authenticated GET and decodes the JSON body. Any
// transport error or non-2xx status is wrapped with ErrProviderUnavailable.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.username, c.apiToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", driven.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: unexpected status %d", driven.ErrProviderUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// mapBuild converts a Jenkins build to a canonical Run. Jenkins reports no
// result while a build is running; a set result means the build finished.
func mapBuild(b buildJSON, repositoryID int64) model.Run {
	status, outcome := mapResult(b.Result)
	startedAt := time.UnixMilli(b.Timestamp).UTC()

	run := model.Run{
		RepositoryID:  repositoryID,
		RunID:         strconv.FormatInt(b.Number, 10),
		Status:        status,
		Outcome:       outcome,
		StartedAt:     startedAt,
		CommitMessage: "No commit message",
		Author:        "Unknown",
	}

	if len(b.ChangeSet.Items) > 0 {
		if msg := b.ChangeSet.Items[0].Msg; msg != "" {
			run.CommitMessage = msg
		}
		if name := b.ChangeSet.Items[0].Author.FullName; name != "" {
			run.Author = name
		}
	}

	if status == model.RunStatusCompleted {
		run.CompletedAt = startedAt.Add(time.Duration(b.Duration) * time.Millisecond)
		seconds := (b.Duration + 500) / 1000
		run.DurationSeconds = &seconds
	}

	return run
}

// mapResult normalizes the Jenkins result vocabulary into the canonical
// status/outcome model. UNSTABLE builds (tests failed but the build
// finished) count as failures.
func mapResult(result string) (model.RunStatus, model.RunOutcome) {
	switch result {
	case "":
		return model.RunStatusInProgress, model.RunOutcomeUnknown
	case "SUCCESS":
		return model.RunStatusCompleted, model.RunOutcomeSuccess
	case "FAILURE", "UNSTABLE":
		return model.RunStatusCompleted, model.RunOutcomeFailure
	case "ABORTED":
		return model.RunStatusCompleted, model.RunOutcomeCancelled
	default:
		return model.RunStatusCompleted, model.RunOutcomeUnknown
	}
}
