package driven

import (
	"context"
	"time"

	"github.com/pipeboard/pipeboard/internal/domain/model"
)

// RunStore defines the driven port for pipeline run persistence.
//
// Upsert is keyed by (repository_id, run_id) and must be idempotent:
// applying the same run twice yields the same stored state. On conflict
// only the mutable fields (status, outcome, completed_at, duration) are
// rewritten; identity and commit metadata are left untouched.
type RunStore interface {
	Upsert(ctx context.Context, run model.Run) error
	GetByRunID(ctx context.Context, repositoryID int64, runID string) (*model.Run, error)
	ListByRepository(ctx context.Context, repositoryID int64, limit int) ([]model.Run, error)
	ListRecent(ctx context.Context, limit int) ([]model.RunWithRepo, error)

	// Aggregate queries consumed by the metrics endpoint. They read the
	// same run table the reconciler writes; sinceStart bounds the trailing
	// window.
	SuccessRate(ctx context.Context, since time.Time) (int, error)
	AvgDurationSeconds(ctx context.Context, since time.Time) (int, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
}
