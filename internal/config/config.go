// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration loaded from environment
// variables. It is constructed once at startup and passed explicitly into
// the services that need it; nothing reads ambient process state after Load
// returns.
type Config struct {
	GitHubToken string

	PollInterval time.Duration
	InitialDelay time.Duration
	RepoPause    time.Duration
	FetchTimeout time.Duration

	ListenAddr string
	DBPath     string

	Jenkins JenkinsConfig
	Slack   SlackConfig
	SMTP    SMTPConfig

	// AlertRecipients are the email addresses notified on pipeline failure.
	AlertRecipients []string
}

// JenkinsConfig holds Jenkins API credentials. The integration is active
// only when all three fields are set.
type JenkinsConfig struct {
	URL      string
	Username string
	APIToken string
}

// Configured reports whether the Jenkins integration is enabled.
func (c JenkinsConfig) Configured() bool {
	return c.URL != "" && c.Username != "" && c.APIToken != ""
}

// SlackConfig holds the incoming-webhook URL for Slack failure alerts.
type SlackConfig struct {
	WebhookURL string
}

// Configured reports whether the Slack integration is enabled.
func (c SlackConfig) Configured() bool {
	return c.WebhookURL != ""
}

// SMTPConfig holds SMTP credentials for email failure alerts.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Configured reports whether the email integration is enabled.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Username != "" && c.Password != ""
}

// HasGitHubToken reports whether a GitHub token is available. Without one
// the GitHub provider is inactive and only Jenkins jobs are polled.
func (c *Config) HasGitHubToken() bool {
	return c.GitHubToken != ""
}

// Load reads configuration from environment variables and returns a
// validated Config. All integrations (GitHub, Jenkins, Slack, SMTP) are
// optional; a missing integration is a permanent no-op, not an error.
// Optional variables with defaults: PIPEBOARD_POLL_INTERVAL (60s),
// PIPEBOARD_INITIAL_DELAY (10s), PIPEBOARD_REPO_PAUSE (1s),
// PIPEBOARD_FETCH_TIMEOUT (10s), PIPEBOARD_LISTEN_ADDR (127.0.0.1:8080),
// PIPEBOARD_DB_PATH (pipeboard.db), PIPEBOARD_SMTP_PORT (587).
func Load() (*Config, error) {
	cfg := &Config{
		GitHubToken: os.Getenv("PIPEBOARD_GITHUB_TOKEN"),
		ListenAddr:  "127.0.0.1:8080",
		DBPath:      "pipeboard.db",
		Jenkins: JenkinsConfig{
			URL:      strings.TrimRight(os.Getenv("PIPEBOARD_JENKINS_URL"), "/"),
			Username: os.Getenv("PIPEBOARD_JENKINS_USERNAME"),
			APIToken: os.Getenv("PIPEBOARD_JENKINS_API_TOKEN"),
		},
		Slack: SlackConfig{
			WebhookURL: os.Getenv("PIPEBOARD_SLACK_WEBHOOK_URL"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("PIPEBOARD_SMTP_HOST"),
			Port:     587,
			Username: os.Getenv("PIPEBOARD_SMTP_USER"),
			Password: os.Getenv("PIPEBOARD_SMTP_PASS"),
			From:     os.Getenv("PIPEBOARD_SMTP_FROM"),
		},
	}

	var err error

	if cfg.PollInterval, err = durationEnv("PIPEBOARD_POLL_INTERVAL", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.InitialDelay, err = durationEnv("PIPEBOARD_INITIAL_DELAY", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.RepoPause, err = durationEnv("PIPEBOARD_REPO_PAUSE", time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = durationEnv("PIPEBOARD_FETCH_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv("PIPEBOARD_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("PIPEBOARD_DB_PATH"); ok {
		cfg.DBPath = v
	}

	if v, ok := os.LookupEnv("PIPEBOARD_SMTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("PIPEBOARD_SMTP_PORT has invalid value %q: %w", v, err)
		}
		cfg.SMTP.Port = port
	}

	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.Username
	}

	cfg.AlertRecipients = splitList(os.Getenv("PIPEBOARD_ALERT_RECIPIENTS"))

	return cfg, nil
}

// durationEnv reads a duration env var, returning the default when unset.
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	return parsed, nil
}

// splitList splits a comma-separated env value into trimmed non-empty parts.
func splitList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
