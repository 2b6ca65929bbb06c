package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pipeboard/pipeboard/internal/domain/model"
	"github.com/pipeboard/pipeboard/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AlertStore = (*AlertRepo)(nil)

// AlertRepo is the SQLite implementation of the AlertStore port interface.
// Dedupe lookups are equality matches on the structured
// (repository_id, run_id, channel) key; the unique index on that triple is
// the authoritative guard against duplicate rows.
type AlertRepo struct {
	db *DB
}

// NewAlertRepo creates a new AlertRepo backed by the given DB.
func NewAlertRepo(db *DB) *AlertRepo {
	return &AlertRepo{db: db}
}

// Exists reports whether any alert has been recorded for the run on any
// channel.
func (r *AlertRepo) Exists(ctx context.Context, repositoryID int64, runID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM alerts WHERE repository_id = ? AND run_id = ?)`

	var exists int
	if err := r.db.Reader.QueryRowContext(ctx, query, repositoryID, runID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check alert for run %s: %w", runID, err)
	}

	return exists != 0, nil
}

// ExistsForChannel reports whether an alert has been recorded for the run
// on the given channel.
func (r *AlertRepo) ExistsForChannel(ctx context.Context, repositoryID int64, runID string, channel model.AlertChannel) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM alerts WHERE repository_id = ? AND run_id = ? AND channel = ?)`

	var exists int
	if err := r.db.Reader.QueryRowContext(ctx, query, repositoryID, runID, string(channel)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check alert for run %s channel %s: %w", runID, channel, err)
	}

	return exists != 0, nil
}

// Record appends an alert row. The unique (repository_id, run_id, channel)
// index rejects duplicates, so a lost race between two writers surfaces
// here as an error rather than a second notification record.
func (r *AlertRepo) Record(ctx context.Context, alert model.Alert) error {
	const query = `INSERT INTO alerts (repository_id, run_id, channel, message, recipients, sent_at) VALUES (?, ?, ?, ?, ?, ?)`

	recipients := alert.Recipients
	if recipients == nil {
		recipients = []string{}
	}
	recipientsJSON, err := json.Marshal(recipients)
	if err != nil {
		return fmt.Errorf("marshal recipients: %w", err)
	}

	sentAt := alert.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}

	_, err = r.db.Writer.ExecContext(ctx, query,
		alert.RepositoryID, alert.RunID, string(alert.Channel), alert.Message, string(recipientsJSON), formatTime(sentAt),
	)
	if err != nil {
		return fmt.Errorf("record alert for run %s channel %s: %w", alert.RunID, alert.Channel, err)
	}

	return nil
}

// ListByRepository returns all alerts for the repository, newest first.
func (r *AlertRepo) ListByRepository(ctx context.Context, repositoryID int64) ([]model.Alert, error) {
	const query = `
		SELECT id, repository_id, run_id, channel, message, recipients, sent_at
		FROM alerts
		WHERE repository_id = ?
		ORDER BY sent_at DESC
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("list alerts for repository %d: %w", repositoryID, err)
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var alert model.Alert
		var channel, recipientsJSON, sentAt string

		err := rows.Scan(&alert.ID, &alert.RepositoryID, &alert.RunID, &channel, &alert.Message, &recipientsJSON, &sentAt)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}

		alert.Channel = model.AlertChannel(channel)

		if err := json.Unmarshal([]byte(recipientsJSON), &alert.Recipients); err != nil {
			return nil, fmt.Errorf("unmarshal recipients: %w", err)
		}

		alert.SentAt, err = parseTime(sentAt)
		if err != nil {
			return nil, fmt.Errorf("parse sent_at: %w", err)
		}

		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}

	return alerts, nil
}
