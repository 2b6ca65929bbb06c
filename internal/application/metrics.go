package application

import (
	"context"
	"fmt"
	"time"

	"github.com/pipeboard/pipeboard/internal/domain/model"
	"github.com/pipeboard/pipeboard/internal/domain/port/driven"
)

// metricsWindow is the lookback window for rate and duration aggregates.
const metricsWindow = 30 * 24 * time.Hour

// MetricsService computes dashboard summary aggregates from stored runs.
type MetricsService struct {
	runStore driven.RunStore
}

// NewMetricsService creates a MetricsService backed by the given run store.
func NewMetricsService(runStore driven.RunStore) *MetricsService {
	return &MetricsService{runStore: runStore}
}

// Summary returns the success rate and average build duration over the
// last 30 days, the number of runs started today (UTC), and a bounded
// sample of the most recent runs.
func (s *MetricsService) Summary(ctx context.Context) (*model.MetricsSummary, error) {
	now := time.Now().UTC()
	since := now.Add(-metricsWindow)

	rate, err := s.runStore.SuccessRate(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("success rate: %w", err)
	}

	avg, err := s.runStore.AvgDurationSeconds(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("average duration: %w", err)
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	today, err := s.runStore.CountSince(ctx, midnight)
	if err != nil {
		return nil, fmt.Errorf("runs today: %w", err)
	}

	recent, err := s.runStore.ListRecent(ctx, recentRunsSample)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}

	return &model.MetricsSummary{
		SuccessRate:     rate,
		AvgBuildSeconds: avg,
		TotalRunsToday:  today,
		RecentRuns:      recent,
	}, nil
}
