// Package httphandler is the HTTP driving adapter serving the REST API.
package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pipeboard/pipeboard/internal/application"
	"github.com/pipeboard/pipeboard/internal/domain/model"
	"github.com/pipeboard/pipeboard/internal/domain/port/driven"
)

// defaultRunsLimit bounds the per-repository runs listing when the client
// does not pass an explicit limit.
const defaultRunsLimit = 50

// IntegrationStatus describes which outbound integrations are configured.
// It is assembled once at startup and served verbatim by the health endpoint.
type IntegrationStatus struct {
	GitHub  bool
	Jenkins bool
	Slack   bool
	Email   bool
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	repoStore    driven.RepoStore
	runStore     driven.RunStore
	alertStore   driven.AlertStore
	metrics      *application.MetricsService
	pollSvc      *application.PollService
	verifier     driven.RepoVerifier
	logFetcher   driven.RunLogFetcher
	jenkinsTest  driven.ConnectionTester
	slackTest    driven.TestSender
	integrations IntegrationStatus
	logger       *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. verifier,
// pollSvc, logFetcher, jenkinsTest, and slackTest may be nil; the routes
// backed by a missing integration then answer that it is not configured.
func NewHandler(
	repoStore driven.RepoStore,
	runStore driven.RunStore,
	alertStore driven.AlertStore,
	metrics *application.MetricsService,
	pollSvc *application.PollService,
	verifier driven.RepoVerifier,
	logFetcher driven.RunLogFetcher,
	jenkinsTest driven.ConnectionTester,
	slackTest driven.TestSender,
	integrations IntegrationStatus,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		repoStore:    repoStore,
		runStore:     runStore,
		alertStore:   alertStore,
		metrics:      metrics,
		pollSvc:      pollSvc,
		verifier:     verifier,
		logFetcher:   logFetcher,
		jenkinsTest:  jenkinsTest,
		slackTest:    slackTest,
		integrations: integrations,
		logger:       logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware. ws may be nil when live updates are
// disabled.
func NewServeMux(h *Handler, ws http.Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/repos", h.ListRepos)
	mux.HandleFunc("POST /api/v1/repos", h.AddRepo)
	mux.HandleFunc("DELETE /api/v1/repos/{id}", h.RemoveRepo)
	mux.HandleFunc("GET /api/v1/repos/{id}/runs", h.ListRuns)
	mux.HandleFunc("GET /api/v1/repos/{id}/runs/{run_id}/logs", h.RunLogs)
	mux.HandleFunc("GET /api/v1/repos/{id}/alerts", h.ListAlerts)
	mux.HandleFunc("GET /api/v1/metrics/summary", h.MetricsSummary)
	mux.HandleFunc("GET /api/v1/jenkins/test", h.JenkinsTest)
	mux.HandleFunc("GET /api/v1/slack/test", h.SlackTest)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	if ws != nil {
		mux.Handle("GET /ws", ws)
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// ListRepos returns all watched repositories across providers.
func (h *Handler) ListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := h.repoStore.ListAll(r.Context())
	if err != nil {
		h.logger.Error("failed to list repos", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]RepoResponse, 0, len(repos))
	for _, repo := range repos {
		resp = append(resp, toRepoResponse(repo))
	}

	writeJSON(w, http.StatusOK, resp)
}

// AddRepo adds a GitHub repository to the watch list and triggers an async
// refresh. Jenkins jobs are discovered automatically and cannot be added
// here.
func (h *Handler) AddRepo(w http.ResponseWriter, r *http.Request) {
	var req AddRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !isValidRepoName(req.FullName) {
		writeError(w, http.StatusBadRequest, "invalid repository name: expected owner/repo format")
		return
	}

	if h.verifier != nil {
		if err := h.verifier.VerifyRepository(r.Context(), req.FullName); err != nil {
			switch {
			case errors.Is(err, driven.ErrRepoNotFound):
				writeError(w, http.StatusNotFound, "repository not found on GitHub")
			case errors.Is(err, driven.ErrProviderUnavailable):
				writeError(w, http.StatusBadGateway, "GitHub is unreachable")
			default:
				h.logger.Error("repo verification failed", "repo", req.FullName, "error", err)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
			return
		}
	}

	parts := strings.SplitN(req.FullName, "/", 2)
	repo := model.Repository{
		Name:     parts[1],
		FullName: req.FullName,
		Provider: model.ProviderGitHub,
		URL:      "https://github.com/" + req.FullName,
		AddedAt:  time.Now().UTC(),
	}

	if err := h.repoStore.Add(r.Context(), repo); err != nil {
		if errors.Is(err, driven.ErrRepoAlreadyExists) {
			writeError(w, http.StatusConflict, "repository already exists")
			return
		}
		h.logger.Error("failed to add repo", "repo", req.FullName, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	stored, err := h.repoStore.GetByFullName(r.Context(), model.ProviderGitHub, req.FullName)
	if err != nil || stored == nil {
		h.logger.Error("failed to read back repo", "repo", req.FullName, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// Fire-and-forget async refresh with background context since the HTTP
	// request context will be cancelled after the response is sent.
	if h.pollSvc != nil {
		repoID := stored.ID
		go func() {
			if err := h.pollSvc.RefreshRepo(context.Background(), repoID); err != nil {
				h.logger.Error("async repo refresh failed", "repo", req.FullName, "error", err)
			}
		}()
	}

	writeJSON(w, http.StatusCreated, toRepoResponse(*stored))
}

// RemoveRepo removes a repository from the watch list. Its runs and alert
// history go with it.
func (h *Handler) RemoveRepo(w http.ResponseWriter, r *http.Request) {
	id, ok := h.repoID(w, r)
	if !ok {
		return
	}

	if err := h.repoStore.Remove(r.Context(), id); err != nil {
		if errors.Is(err, driven.ErrRepoNotFound) {
			writeError(w, http.StatusNotFound, "repository not found")
			return
		}
		h.logger.Error("failed to remove repo", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListRuns returns a repository's recent runs, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	id, ok := h.repoID(w, r)
	if !ok {
		return
	}

	repo, err := h.repoStore.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get repo", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if repo == nil {
		writeError(w, http.StatusNotFound, "repository not found")
		return
	}

	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	runs, err := h.runStore.ListByRepository(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("failed to list runs", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, toRunResponse(run))
	}

	writeJSON(w, http.StatusOK, resp)
}

// RunLogs returns the job breakdown and log output for one run, fetched
// live from the provider. Only GitHub repositories carry per-job logs.
func (h *Handler) RunLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := h.repoID(w, r)
	if !ok {
		return
	}

	repo, err := h.repoStore.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get repo", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if repo == nil {
		writeError(w, http.StatusNotFound, "repository not found")
		return
	}

	if repo.Provider != model.ProviderGitHub {
		writeError(w, http.StatusBadRequest, "logs are only available for GitHub repositories")
		return
	}
	if h.logFetcher == nil {
		writeError(w, http.StatusBadRequest, "GitHub is not configured")
		return
	}

	runID := r.PathValue("run_id")
	logs, err := h.logFetcher.FetchRunLogs(r.Context(), *repo, runID)
	if err != nil {
		switch {
		case errors.Is(err, driven.ErrRunNotFound):
			writeError(w, http.StatusNotFound, "pipeline run not found")
		case errors.Is(err, driven.ErrProviderUnavailable):
			writeError(w, http.StatusBadGateway, "GitHub is unreachable")
		default:
			h.logger.Error("failed to fetch run logs", "repo", repo.FullName, "run", runID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, toRunLogsResponse(*logs))
}

// JenkinsTest contacts the configured Jenkins server and reports its version
// and job count.
func (h *Handler) JenkinsTest(w http.ResponseWriter, r *http.Request) {
	if h.jenkinsTest == nil {
		writeError(w, http.StatusBadRequest, "Jenkins is not configured")
		return
	}

	status, err := h.jenkinsTest.TestConnection(r.Context())
	if err != nil {
		h.logger.Error("jenkins connection test failed", "error", err)
		writeError(w, http.StatusBadGateway, "failed to connect to Jenkins; check your credentials and URL")
		return
	}

	writeJSON(w, http.StatusOK, JenkinsTestResponse{
		Status:  "success",
		Version: status.Version,
		URL:     status.URL,
		Jobs:    status.JobCount,
		Message: "Jenkins connection successful",
	})
}

// SlackTest sends a test notification through the configured webhook.
func (h *Handler) SlackTest(w http.ResponseWriter, r *http.Request) {
	if h.slackTest == nil {
		writeError(w, http.StatusBadRequest, "Slack webhook is not configured")
		return
	}

	if err := h.slackTest.SendTest(r.Context()); err != nil {
		h.logger.Error("slack test message failed", "error", err)
		writeError(w, http.StatusBadGateway, "failed to send test message to Slack; check your webhook URL")
		return
	}

	writeJSON(w, http.StatusOK, SlackTestResponse{
		Status:  "success",
		Message: "test message sent to Slack",
	})
}

// ListAlerts returns a repository's alert history, newest first.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.repoID(w, r)
	if !ok {
		return
	}

	alerts, err := h.alertStore.ListByRepository(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to list alerts", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]AlertResponse, 0, len(alerts))
	for _, alert := range alerts {
		resp = append(resp, toAlertResponse(alert))
	}

	writeJSON(w, http.StatusOK, resp)
}

// MetricsSummary returns the aggregate dashboard metrics.
func (h *Handler) MetricsSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.metrics.Summary(r.Context())
	if err != nil {
		h.logger.Error("failed to compute metrics", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toMetricsResponse(*summary))
}

// Health reports process liveness and which integrations are configured.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
		Integrations: map[string]bool{
			"github":  h.integrations.GitHub,
			"jenkins": h.integrations.Jenkins,
			"slack":   h.integrations.Slack,
			"email":   h.integrations.Email,
		},
	})
}

// repoID parses the {id} path segment, writing a 400 on garbage input.
func (h *Handler) repoID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid repository id")
		return 0, false
	}
	return id, true
}

// isValidRepoName validates that name is in owner/repo format where each part
// contains only alphanumeric characters, hyphens, dots, or underscores.
func isValidRepoName(name string) bool {
	parts := strings.SplitN(name, "/", 3)
	if len(parts) != 2 {
		return false
	}

	for _, part := range parts {
		if part == "" {
			return false
		}
		for _, ch := range part {
			if !isValidRepoChar(ch) {
				return false
			}
		}
	}

	return true
}

// isValidRepoChar returns true if the rune is allowed in a repository owner or name.
func isValidRepoChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') ||
		ch == '-' || ch == '.' || ch == '_'
}
