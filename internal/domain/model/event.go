package model

// FailureEvent is the structured payload handed to notification sinks when a
// newly-failed run is detected.
type FailureEvent struct {
	Repository Repository
	Run        Run
}

// ShortSHA returns the first seven characters of the commit SHA, or
// "Unknown" when the provider reported none.
func (e FailureEvent) ShortSHA() string {
	if e.Run.CommitSHA == "" {
		return "Unknown"
	}
	if len(e.Run.CommitSHA) > 7 {
		return e.Run.CommitSHA[:7]
	}
	return e.Run.CommitSHA
}

// CycleEvent is broadcast to connected clients once per completed poll
// cycle. Runs is a bounded sample of the most recent runs across all
// repositories, newest first.
type CycleEvent struct {
	Repositories int
	Errors       int
	Runs         []RunWithRepo
}
