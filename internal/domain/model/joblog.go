package model

import "time"

// RunJob is one job within a pipeline run, carrying its log output when the
// provider still has it. Log is a human-readable placeholder when the
// provider reports the logs as expired or inaccessible.
type RunJob struct {
	ID          int64
	Name        string
	Status      RunStatus
	Outcome     RunOutcome
	StartedAt   time.Time
	CompletedAt time.Time
	Log         string
	LogURL      string
}

// RunLogs is the full log breakdown for one run: the run itself, its jobs
// with their logs, and per-outcome job counts.
type RunLogs struct {
	Run     Run
	Jobs    []RunJob
	Summary JobSummary
}

// JobSummary counts a run's jobs by outcome.
type JobSummary struct {
	Total      int
	Successful int
	Failed     int
	Cancelled  int
}

// SummarizeJobs tallies jobs by outcome.
func SummarizeJobs(jobs []RunJob) JobSummary {
	s := JobSummary{Total: len(jobs)}
	for _, job := range jobs {
		switch job.Outcome {
		case RunOutcomeSuccess:
			s.Successful++
		case RunOutcomeFailure:
			s.Failed++
		case RunOutcomeCancelled:
			s.Cancelled++
		}
	}
	return s
}

// ConnectionStatus reports the outcome of probing an integration's
// endpoint: the remote version when the server exposes one and how many
// monitorable jobs it advertises.
type ConnectionStatus struct {
	URL      string
	Version  string
	JobCount int
}
