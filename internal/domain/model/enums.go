package model

// Provider identifies which upstream CI system a repository belongs to.
type Provider string

const (
	ProviderGitHub  Provider = "github"
	ProviderJenkins Provider = "jenkins"
)

// RunStatus represents the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
)

// RunOutcome represents the result of a completed pipeline run. It is
// meaningful only when the run's status is RunStatusCompleted.
type RunOutcome string

const (
	RunOutcomeSuccess   RunOutcome = "success"
	RunOutcomeFailure   RunOutcome = "failure"
	RunOutcomeCancelled RunOutcome = "cancelled"
	RunOutcomeUnknown   RunOutcome = "unknown"
)

// AlertChannel tags which notification sink delivered an alert.
type AlertChannel string

const (
	AlertChannelEmail AlertChannel = "email_failure"
	AlertChannelSlack AlertChannel = "slack_failure"
)
