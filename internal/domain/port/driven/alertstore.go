package driven

import (
	"context"

	"github.com/pipeboard/pipeboard/internal/domain/model"
)

// AlertStore defines the driven port for alert history persistence.
//
// Existence checks are equality lookups on the structured
// (repository_id, run_id[, channel]) key, never substring matches on the
// message text: run id "1" must not match an alert recorded for run "10".
// Record relies on the store's unique (repository_id, run_id, channel)
// constraint as the authoritative duplicate guard.
type AlertStore interface {
	Exists(ctx context.Context, repositoryID int64, runID string) (bool, error)
	ExistsForChannel(ctx context.Context, repositoryID int64, runID string, channel model.AlertChannel) (bool, error)
	Record(ctx context.Context, alert model.Alert) error
	ListByRepository(ctx context.Context, repositoryID int64) ([]model.Alert, error)
}
