// Package application contains use-case orchestration services.
package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pipeboard/pipeboard/internal/domain/model"
	"github.com/pipeboard/pipeboard/internal/domain/port/driven"
)

// Reconciler performs the fetch-upsert-detect cycle for one repository:
// fetch recent runs from the provider, idempotently upsert them, and report
// which runs are newly observed as failed.
type Reconciler struct {
	provider driven.ProviderClient
	runStore driven.RunStore
	alerts   *AlertService
}

// NewReconciler creates a Reconciler for the given provider adapter.
func NewReconciler(provider driven.ProviderClient, runStore driven.RunStore, alerts *AlertService) *Reconciler {
	return &Reconciler{
		provider: provider,
		runStore: runStore,
		alerts:   alerts,
	}
}

// Reconcile fetches the repository's recent runs, upserts each one, and
// returns the runs newly observed as failed this cycle, in the order the
// provider returned them.
//
// A run is newly-observed-as-failed iff it is completed with a failure
// outcome and at least one configured channel has not alerted on it yet;
// the existence check is delegated to the AlertService, which dedupes per
// channel on dispatch. A storage failure for one run is logged
// and that run skipped; the rest of the batch proceeds.
func (r *Reconciler) Reconcile(ctx context.Context, repo model.Repository) ([]model.Run, error) {
	runs, err := r.provider.FetchRecentRuns(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", repo.FullName, err)
	}

	var newlyFailed []model.Run
	var writeErrors int

	for _, run := range runs {
		run.RepositoryID = repo.ID

		if err := r.runStore.Upsert(ctx, run); err != nil {
			slog.Error("run upsert failed", "repo", repo.FullName, "run", run.RunID, "error", err)
			writeErrors++
			continue
		}

		if !run.IsFailed() {
			continue
		}

		alerted, err := r.alerts.HasAlert(ctx, repo.ID, run.RunID)
		if err != nil {
			slog.Error("alert lookup failed", "repo", repo.FullName, "run", run.RunID, "error", err)
			continue
		}
		if alerted {
			continue
		}

		newlyFailed = append(newlyFailed, run)
	}

	slog.Info("repository reconciled",
		"repo", repo.FullName,
		"provider", string(repo.Provider),
		"fetched", len(runs),
		"newly_failed", len(newlyFailed),
		"write_errors", writeErrors,
	)

	return newlyFailed, nil
}
