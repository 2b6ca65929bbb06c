package driven

import "github.com/pipeboard/pipeboard/internal/domain/model"

// Broadcaster defines the driven port for pushing live updates to connected
// clients. The poll scheduler emits at most one event per completed cycle;
// delivery is best-effort and must never block the caller.
type Broadcaster interface {
	BroadcastCycle(event model.CycleEvent)
}
