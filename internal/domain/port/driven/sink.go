package driven

import (
	"context"

	"github.com/pipeboard/pipeboard/internal/domain/model"
)

// Sink defines the driven port for a notification delivery channel.
// Implementations make a single dispatch attempt with a bounded timeout;
// retry policy is left to the channel's own infrastructure.
//
// Sinks are only constructed when their configuration is present, so a
// missing integration is simply absent from the fan-out slice rather than
// an error at dispatch time.
type Sink interface {
	// Channel returns the alert channel tag recorded for successful
	// dispatches through this sink.
	Channel() model.AlertChannel
	// Recipients returns the delivery targets recorded in the alert row.
	Recipients() []string
	Notify(ctx context.Context, event model.FailureEvent) error
}

// TestSender delivers a test message so the operator can confirm a channel
// is wired up without waiting for a real failure.
type TestSender interface {
	SendTest(ctx context.Context) error
}
