package model

import "time"

// Alert records a notification that has already been sent for a failed run.
// (RepositoryID, RunID, Channel) is unique: it is the dedupe key that keeps
// repeated reconciliation cycles from re-notifying the same failure.
type Alert struct {
	ID           int64
	RepositoryID int64
	RunID        string
	Channel      AlertChannel
	Message      string
	Recipients   []string
	SentAt       time.Time
}
