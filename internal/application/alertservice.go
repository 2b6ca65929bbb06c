package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pipeboard/pipeboard/internal/domain/model"
	"github.com/pipeboard/pipeboard/internal/domain/port/driven"
)

// AlertService deduplicates failure alerts and fans them out to the
// configured notification sinks. Each (repository, run, channel) triple
// is notified at most once; the alert store's unique index backs the
// guarantee across restarts.
type AlertService struct {
	store driven.AlertStore
	sinks []driven.Sink
}

// NewAlertService creates an AlertService dispatching to the given sinks.
// An empty sink slice is valid; alerts are then only recorded by callers
// that do so explicitly.
func NewAlertService(store driven.AlertStore, sinks []driven.Sink) *AlertService {
	return &AlertService{
		store: store,
		sinks: sinks,
	}
}

// HasAlert reports whether the run needs no further dispatch: every
// configured sink's channel already has a recorded alert. A channel
// whose dispatch failed last cycle has no row yet, so the run stays
// eligible and that channel catches up on the next pass. Without sinks
// the check falls back to any recorded alert.
func (s *AlertService) HasAlert(ctx context.Context, repoID int64, runID string) (bool, error) {
	if len(s.sinks) == 0 {
		return s.store.Exists(ctx, repoID, runID)
	}
	for _, sink := range s.sinks {
		sent, err := s.store.ExistsForChannel(ctx, repoID, runID, sink.Channel())
		if err != nil {
			return false, err
		}
		if !sent {
			return false, nil
		}
	}
	return true, nil
}

// NotifyFailure dispatches the failure event to every sink whose channel
// has not yet alerted on this run. Each sink gets a single attempt; a
// sink failure is logged and does not block the other sinks. The alert
// row is recorded only after the sink reports success, so a failed
// dispatch is retried on the next cycle.
func (s *AlertService) NotifyFailure(ctx context.Context, event model.FailureEvent) {
	for _, sink := range s.sinks {
		channel := sink.Channel()

		sent, err := s.store.ExistsForChannel(ctx, event.Repository.ID, event.Run.RunID, channel)
		if err != nil {
			slog.Error("alert dedupe check failed",
				"repo", event.Repository.FullName, "run", event.Run.RunID,
				"channel", string(channel), "error", err)
			continue
		}
		if sent {
			continue
		}

		if err := sink.Notify(ctx, event); err != nil {
			slog.Error("alert dispatch failed",
				"repo", event.Repository.FullName, "run", event.Run.RunID,
				"channel", string(channel), "error", err)
			continue
		}

		alert := model.Alert{
			RepositoryID: event.Repository.ID,
			RunID:        event.Run.RunID,
			Channel:      channel,
			Message:      FailureMessage(event.Run),
			Recipients:   sink.Recipients(),
			SentAt:       time.Now().UTC(),
		}
		if err := s.store.Record(ctx, alert); err != nil {
			slog.Error("alert record failed",
				"repo", event.Repository.FullName, "run", event.Run.RunID,
				"channel", string(channel), "error", err)
			continue
		}

		slog.Info("failure alert sent",
			"repo", event.Repository.FullName, "run", event.Run.RunID,
			"channel", string(channel))
	}
}

// FailureMessage renders the canonical alert message for a failed run.
func FailureMessage(run model.Run) string {
	return fmt.Sprintf("Pipeline failed (Run ID: %s): %s", run.RunID, string(run.Outcome))
}
