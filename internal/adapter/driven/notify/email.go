package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/pipeboard/pipeboard/internal/domain/model"
	"github.com/pipeboard/pipeboard/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Sink = (*EmailSink)(nil)

// EmailSink delivers failure alerts over SMTP using go-mail.
type EmailSink struct {
	client     *mail.Client
	from       string
	recipients []string
}

// NewEmailSink creates an EmailSink. recipients must be non-empty; the
// composition root skips constructing the sink otherwise.
func NewEmailSink(host string, port int, username, password, from string, recipients []string, timeout time.Duration) (*EmailSink, error) {
	client, err := mail.NewClient(host,
		mail.WithPort(port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(username),
		mail.WithPassword(password),
		mail.WithTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}

	return &EmailSink{
		client:     client,
		from:       from,
		recipients: recipients,
	}, nil
}

// Channel returns the alert channel tag for email dispatches.
func (s *EmailSink) Channel() model.AlertChannel {
	return model.AlertChannelEmail
}

// Recipients returns the configured alert addresses.
func (s *EmailSink) Recipients() []string {
	return s.recipients
}

// Notify sends one failure alert email to all configured recipients in a
// single message.
func (s *EmailSink) Notify(ctx context.Context, event model.FailureEvent) error {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return fmt.Errorf("set from address: %w", err)
	}
	if err := msg.To(s.recipients...); err != nil {
		return fmt.Errorf("set recipients: %w", err)
	}

	msg.Subject(fmt.Sprintf("Pipeline Failure Alert - %s", event.Repository.FullName))
	msg.SetBodyString(mail.TypeTextHTML, buildEmailBody(event))

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}

	return nil
}

func buildEmailBody(event model.FailureEvent) string {
	repo := event.Repository
	run := event.Run

	var b strings.Builder
	b.WriteString(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">`)
	b.WriteString(`<h2 style="color: #d32f2f;">CI/CD Pipeline Failure Alert</h2>`)
	b.WriteString(`<div style="background: #ffebee; padding: 20px; border-radius: 8px;">`)
	fmt.Fprintf(&b, `<p><strong>Repository:</strong> <a href="%s">%s</a></p>`, html.EscapeString(repo.URL), html.EscapeString(repo.FullName))
	fmt.Fprintf(&b, `<p><strong>Run ID:</strong> %s</p>`, html.EscapeString(run.RunID))
	fmt.Fprintf(&b, `<p><strong>Outcome:</strong> %s</p>`, run.Outcome)
	fmt.Fprintf(&b, `<p><strong>Branch:</strong> %s</p>`, html.EscapeString(valueOr(run.Branch, "Unknown")))
	fmt.Fprintf(&b, `<p><strong>Commit:</strong> %s</p>`, html.EscapeString(event.ShortSHA()))
	fmt.Fprintf(&b, `<p><strong>Author:</strong> %s</p>`, html.EscapeString(valueOr(run.Author, "Unknown")))
	fmt.Fprintf(&b, `<p><strong>Duration:</strong> %s</p>`, formatDuration(run.DurationSeconds))
	b.WriteString(`</div>`)
	b.WriteString(`<div style="background: #f5f5f5; padding: 15px; border-radius: 8px;">`)
	fmt.Fprintf(&b, `<h4 style="margin: 0 0 10px 0;">Commit Message:</h4><p style="margin: 0; font-style: italic;">%s</p>`,
		html.EscapeString(valueOr(run.CommitMessage, "No commit message")))
	b.WriteString(`</div>`)
	b.WriteString(`</div>`)

	return b.String()
}
