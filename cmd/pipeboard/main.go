package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/pipeboard/pipeboard/internal/adapter/driven/github"
	jenkinsadapter "github.com/pipeboard/pipeboard/internal/adapter/driven/jenkins"
	"github.com/pipeboard/pipeboard/internal/adapter/driven/notify"
	sqliteadapter "github.com/pipeboard/pipeboard/internal/adapter/driven/sqlite"
	httphandler "github.com/pipeboard/pipeboard/internal/adapter/driving/http"
	"github.com/pipeboard/pipeboard/internal/adapter/driving/ws"
	"github.com/pipeboard/pipeboard/internal/application"
	"github.com/pipeboard/pipeboard/internal/config"
	"github.com/pipeboard/pipeboard/internal/domain/model"
	"github.com/pipeboard/pipeboard/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"poll_interval", cfg.PollInterval,
		"jenkins", cfg.Jenkins.Configured(),
		"slack", cfg.Slack.Configured(),
		"email", cfg.SMTP.Configured(),
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire stores.
	repoStore := sqliteadapter.NewRepoRepo(db)
	runStore := sqliteadapter.NewRunRepo(db)
	alertStore := sqliteadapter.NewAlertRepo(db)

	// 6. Wire notification sinks. Unconfigured channels are simply absent.
	var sinks []driven.Sink
	var slackSink *notify.SlackSink
	if cfg.Slack.Configured() {
		slackSink = notify.NewSlackSink(cfg.Slack.WebhookURL, cfg.FetchTimeout)
		sinks = append(sinks, slackSink)
		slog.Info("slack notifications enabled")
	}
	if cfg.SMTP.Configured() && len(cfg.AlertRecipients) > 0 {
		emailSink, err := notify.NewEmailSink(
			cfg.SMTP.Host, cfg.SMTP.Port,
			cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From,
			cfg.AlertRecipients, cfg.FetchTimeout,
		)
		if err != nil {
			return err
		}
		sinks = append(sinks, emailSink)
		slog.Info("email notifications enabled", "recipients", len(cfg.AlertRecipients))
	}
	if len(sinks) == 0 {
		slog.Warn("no notification sinks configured, failures will only be recorded")
	}

	alertSvc := application.NewAlertService(alertStore, sinks)

	// 7. Wire providers.
	reconcilers := make(map[model.Provider]*application.Reconciler)

	var ghClient *githubadapter.Client
	if cfg.HasGitHubToken() {
		ghClient = githubadapter.NewClient(cfg.GitHubToken, cfg.FetchTimeout)
		reconcilers[model.ProviderGitHub] = application.NewReconciler(ghClient, runStore, alertSvc)
		slog.Info("github provider enabled")
	} else {
		slog.Warn("no github token configured, github repositories will not be polled")
	}

	var jobLister driven.JobLister
	var jenkinsClient *jenkinsadapter.Client
	if cfg.Jenkins.Configured() {
		jenkinsClient = jenkinsadapter.NewClient(
			cfg.Jenkins.URL, cfg.Jenkins.Username, cfg.Jenkins.APIToken, cfg.FetchTimeout,
		)
		reconcilers[model.ProviderJenkins] = application.NewReconciler(jenkinsClient, runStore, alertSvc)
		jobLister = jenkinsClient
		slog.Info("jenkins provider enabled", "url", cfg.Jenkins.URL)
	}

	// 8. Start the websocket hub.
	hub := ws.NewHub(slog.Default())
	go hub.Run(ctx)

	// 9. Create and start the poll service.
	pollSvc := application.NewPollService(
		repoStore, runStore, alertSvc, hub,
		reconcilers, jobLister,
		cfg.InitialDelay, cfg.PollInterval, cfg.RepoPause,
	)
	go pollSvc.Start(ctx)

	// 10. Create HTTP handler and register routes.
	metricsSvc := application.NewMetricsService(runStore)

	// Typed nils must not leak into the handler's interface fields, so
	// each optional dependency is assigned only when its client exists.
	var verifier driven.RepoVerifier
	var logFetcher driven.RunLogFetcher
	if ghClient != nil {
		verifier = ghClient
		logFetcher = ghClient
	}
	var jenkinsTest driven.ConnectionTester
	if jenkinsClient != nil {
		jenkinsTest = jenkinsClient
	}
	var slackTest driven.TestSender
	if slackSink != nil {
		slackTest = slackSink
	}

	apiHandler := httphandler.NewHandler(
		repoStore, runStore, alertStore, metricsSvc, pollSvc, verifier,
		logFetcher, jenkinsTest, slackTest,
		httphandler.IntegrationStatus{
			GitHub:  cfg.HasGitHubToken(),
			Jenkins: cfg.Jenkins.Configured(),
			Slack:   cfg.Slack.Configured(),
			Email:   cfg.SMTP.Configured(),
		},
		slog.Default(),
	)
	handler := httphandler.NewServeMux(apiHandler, hub, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("pipeboard started",
		"listen_addr", cfg.ListenAddr,
		"poll_interval", cfg.PollInterval,
	)

	// 11. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 12. Graceful shutdown with 10s timeout to drain in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
