package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pipeboard/pipeboard/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// AddRepoRequest is the JSON body for the add repository endpoint.
type AddRepoRequest struct {
	FullName string `json:"full_name"`
}

// RepoResponse is the JSON representation of a watched repository.
type RepoResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Provider string `json:"provider"`
	URL      string `json:"url"`
	AddedAt  string `json:"added_at"`
}

// RunResponse is the JSON representation of a pipeline run.
type RunResponse struct {
	RunID           string `json:"run_id"`
	Status          string `json:"status"`
	Outcome         string `json:"outcome"`
	StartedAt       string `json:"started_at"`
	CompletedAt     string `json:"completed_at,omitempty"`
	DurationSeconds *int64 `json:"duration_seconds"`
	CommitSHA       string `json:"commit_sha"`
	CommitMessage   string `json:"commit_message"`
	Branch          string `json:"branch"`
	Author          string `json:"author"`
}

// RunWithRepoResponse is a run annotated with its repository, used by the
// interleaved recent-runs feed.
type RunWithRepoResponse struct {
	RunResponse
	Repository         string `json:"repository"`
	RepositoryFullName string `json:"repository_full_name"`
}

// AlertResponse is the JSON representation of a sent alert.
type AlertResponse struct {
	ID         int64    `json:"id"`
	RunID      string   `json:"run_id"`
	Channel    string   `json:"channel"`
	Message    string   `json:"message"`
	Recipients []string `json:"recipients"`
	SentAt     string   `json:"sent_at"`
}

// MetricsResponse is the JSON representation of the dashboard summary.
type MetricsResponse struct {
	SuccessRate     int                   `json:"success_rate"`
	AvgBuildSeconds int                   `json:"avg_build_seconds"`
	TotalRunsToday  int                   `json:"total_runs_today"`
	RecentRuns      []RunWithRepoResponse `json:"recent_runs"`
}

// JobLogResponse is one job inside a run's log breakdown.
type JobLogResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Outcome     string `json:"outcome"`
	StartedAt   string `json:"started_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
	Logs        string `json:"logs"`
	LogURL      string `json:"log_url,omitempty"`
}

// RunLogsResponse is the JSON representation of a run's job logs.
type RunLogsResponse struct {
	Run     RunResponse        `json:"run"`
	Jobs    []JobLogResponse   `json:"jobs"`
	Summary JobSummaryResponse `json:"summary"`
}

// JobSummaryResponse counts a run's jobs by outcome.
type JobSummaryResponse struct {
	TotalJobs      int `json:"total_jobs"`
	SuccessfulJobs int `json:"successful_jobs"`
	FailedJobs     int `json:"failed_jobs"`
	CancelledJobs  int `json:"cancelled_jobs"`
}

// JenkinsTestResponse is the JSON representation of a Jenkins connection test.
type JenkinsTestResponse struct {
	Status  string `json:"status"`
	Version string `json:"jenkins_version"`
	URL     string `json:"jenkins_url"`
	Jobs    int    `json:"jobs_count"`
	Message string `json:"message"`
}

// SlackTestResponse is the JSON representation of a Slack webhook test.
type SlackTestResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status       string          `json:"status"`
	Time         string          `json:"time"`
	Integrations map[string]bool `json:"integrations"`
}

// toRepoResponse converts a domain Repository to its JSON response representation.
func toRepoResponse(repo model.Repository) RepoResponse {
	return RepoResponse{
		ID:       repo.ID,
		Name:     repo.Name,
		FullName: repo.FullName,
		Provider: string(repo.Provider),
		URL:      repo.URL,
		AddedAt:  repo.AddedAt.UTC().Format(time.RFC3339),
	}
}

// toRunResponse converts a domain Run to its JSON response representation.
// CompletedAt is omitted while the run is still pending or in progress.
func toRunResponse(run model.Run) RunResponse {
	resp := RunResponse{
		RunID:           run.RunID,
		Status:          string(run.Status),
		Outcome:         string(run.Outcome),
		StartedAt:       run.StartedAt.UTC().Format(time.RFC3339),
		DurationSeconds: run.DurationSeconds,
		CommitSHA:       run.CommitSHA,
		CommitMessage:   run.CommitMessage,
		Branch:          run.Branch,
		Author:          run.Author,
	}
	if !run.CompletedAt.IsZero() {
		resp.CompletedAt = run.CompletedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// toRunWithRepoResponse converts an annotated run to its JSON representation.
func toRunWithRepoResponse(run model.RunWithRepo) RunWithRepoResponse {
	return RunWithRepoResponse{
		RunResponse:        toRunResponse(run.Run),
		Repository:         run.RepositoryName,
		RepositoryFullName: run.RepositoryFullName,
	}
}

// toAlertResponse converts a domain Alert to its JSON response representation.
func toAlertResponse(alert model.Alert) AlertResponse {
	recipients := alert.Recipients
	if recipients == nil {
		recipients = []string{}
	}

	return AlertResponse{
		ID:         alert.ID,
		RunID:      alert.RunID,
		Channel:    string(alert.Channel),
		Message:    alert.Message,
		Recipients: recipients,
		SentAt:     alert.SentAt.UTC().Format(time.RFC3339),
	}
}

// toRunLogsResponse converts a domain RunLogs to its JSON representation.
func toRunLogsResponse(logs model.RunLogs) RunLogsResponse {
	jobs := make([]JobLogResponse, 0, len(logs.Jobs))
	for _, job := range logs.Jobs {
		j := JobLogResponse{
			ID:      job.ID,
			Name:    job.Name,
			Status:  string(job.Status),
			Outcome: string(job.Outcome),
			Logs:    job.Log,
			LogURL:  job.LogURL,
		}
		if !job.StartedAt.IsZero() {
			j.StartedAt = job.StartedAt.UTC().Format(time.RFC3339)
		}
		if !job.CompletedAt.IsZero() {
			j.CompletedAt = job.CompletedAt.UTC().Format(time.RFC3339)
		}
		jobs = append(jobs, j)
	}

	return RunLogsResponse{
		Run:  toRunResponse(logs.Run),
		Jobs: jobs,
		Summary: JobSummaryResponse{
			TotalJobs:      logs.Summary.Total,
			SuccessfulJobs: logs.Summary.Successful,
			FailedJobs:     logs.Summary.Failed,
			CancelledJobs:  logs.Summary.Cancelled,
		},
	}
}

// toMetricsResponse converts a domain MetricsSummary to its JSON representation.
func toMetricsResponse(summary model.MetricsSummary) MetricsResponse {
	recent := make([]RunWithRepoResponse, 0, len(summary.RecentRuns))
	for _, run := range summary.RecentRuns {
		recent = append(recent, toRunWithRepoResponse(run))
	}

	return MetricsResponse{
		SuccessRate:     summary.SuccessRate,
		AvgBuildSeconds: summary.AvgBuildSeconds,
		TotalRunsToday:  summary.TotalRunsToday,
		RecentRuns:      recent,
	}
}
