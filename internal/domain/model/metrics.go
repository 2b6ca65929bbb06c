package model

// MetricsSummary is the aggregate health view served by the metrics
// endpoint. All figures are computed by the storage layer from the run
// table; nothing here is derived from live provider data.
type MetricsSummary struct {
	// SuccessRate is the percentage (0-100) of completed-successful runs
	// among all runs started in the trailing window.
	SuccessRate int
	// AvgBuildSeconds is the mean duration of runs with a known duration
	// in the trailing window, rounded to whole seconds.
	AvgBuildSeconds int
	// TotalRunsToday counts runs started since midnight UTC.
	TotalRunsToday int
	RecentRuns     []RunWithRepo
}
