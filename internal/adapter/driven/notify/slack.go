// Package notify implements the notification Sink port: an email sink over
// SMTP and a Slack incoming-webhook sink.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pipeboard/pipeboard/internal/domain/model"
	"github.com/pipeboard/pipeboard/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.Sink       = (*SlackSink)(nil)
	_ driven.TestSender = (*SlackSink)(nil)
)

// SlackSink posts Block Kit failure messages to a Slack incoming webhook.
type SlackSink struct {
	webhookURL string
	http       *http.Client
}

// NewSlackSink creates a SlackSink. Every dispatch carries the given timeout.
func NewSlackSink(webhookURL string, timeout time.Duration) *SlackSink {
	return &SlackSink{
		webhookURL: webhookURL,
		http:       &http.Client{Timeout: timeout},
	}
}

// Channel returns the alert channel tag for Slack dispatches.
func (s *SlackSink) Channel() model.AlertChannel {
	return model.AlertChannelSlack
}

// Recipients identifies the webhook as the single delivery target.
func (s *SlackSink) Recipients() []string {
	return []string{"slack"}
}

// Notify posts the failure event to the webhook.
func (s *SlackSink) Notify(ctx context.Context, event model.FailureEvent) error {
	return s.post(ctx, buildSlackMessage(event))
}

// SendTest posts a test message so the operator can confirm the webhook
// works without waiting for a pipeline to fail.
func (s *SlackSink) SendTest(ctx context.Context) error {
	return s.post(ctx, buildTestMessage(time.Now().UTC()))
}

// post marshals and delivers one Block Kit message. A non-2xx response is
// an error; Slack webhooks return 200 with body "ok" on success.
func (s *SlackSink) post(ctx context.Context, payload slackMessage) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// slackMessage mirrors the subset of the Block Kit message format we send.
type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string       `json:"type"`
	Text     *slackText   `json:"text,omitempty"`
	Fields   []slackText  `json:"fields,omitempty"`
	Elements []slackText  `json:"elements,omitempty"`
}

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

func buildSlackMessage(event model.FailureEvent) slackMessage {
	repo := event.Repository
	run := event.Run

	return slackMessage{
		Text: "CI/CD Pipeline Failure Alert",
		Blocks: []slackBlock{
			{
				Type: "header",
				Text: &slackText{Type: "plain_text", Text: "Pipeline Failed: " + repo.FullName, Emoji: true},
			},
			{
				Type: "section",
				Fields: []slackText{
					{Type: "mrkdwn", Text: fmt.Sprintf("*Repository:*\n<%s|%s>", repo.URL, repo.FullName)},
					{Type: "mrkdwn", Text: fmt.Sprintf("*Status:*\n%s", run.Outcome)},
					{Type: "mrkdwn", Text: fmt.Sprintf("*Branch:*\n`%s`", valueOr(run.Branch, "Unknown"))},
					{Type: "mrkdwn", Text: fmt.Sprintf("*Duration:*\n%s", formatDuration(run.DurationSeconds))},
					{Type: "mrkdwn", Text: fmt.Sprintf("*Author:*\n%s", valueOr(run.Author, "Unknown"))},
					{Type: "mrkdwn", Text: fmt.Sprintf("*Commit:*\n`%s`", event.ShortSHA())},
				},
			},
			{
				Type: "section",
				Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf("*Commit Message:*\n_%s_", valueOr(run.CommitMessage, "No commit message"))},
			},
			{
				Type: "context",
				Elements: []slackText{
					{Type: "mrkdwn", Text: fmt.Sprintf("Run ID: %s | CI/CD Pipeline Health Dashboard", run.RunID)},
				},
			},
		},
	}
}

func buildTestMessage(at time.Time) slackMessage {
	return slackMessage{
		Text: "Test Message from CI/CD Dashboard",
		Blocks: []slackBlock{
			{
				Type: "header",
				Text: &slackText{Type: "plain_text", Text: "Slack Integration Test", Emoji: true},
			},
			{
				Type: "section",
				Text: &slackText{
					Type: "mrkdwn",
					Text: fmt.Sprintf("Your Slack webhook is working correctly.\n*Test Time:* %s", at.Format(time.RFC3339)),
				},
			},
			{
				Type: "context",
				Elements: []slackText{
					{Type: "mrkdwn", Text: "CI/CD Pipeline Health Dashboard"},
				},
			},
		},
	}
}

// formatDuration renders a duration in seconds as "4m 5s", or "Unknown"
// when the duration is not known.
func formatDuration(seconds *int64) string {
	if seconds == nil {
		return "Unknown"
	}
	return fmt.Sprintf("%dm %ds", *seconds/60, *seconds%60)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
