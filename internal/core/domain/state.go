package domain

// SupervisorState is the lifecycle state of the worker slot.
type SupervisorState uint8

const (
	// StateIdle means no worker is running; waiting for the watch-ready signal or a change.
	StateIdle SupervisorState = iota
	// StateStarting means a channel is allocated and a worker is being spawned.
	StateStarting
	// StateRunning means a worker is alive and serving bridge exchanges.
	StateRunning
	// StateStopping means the graceful signal was sent and exit is awaited.
	StateStopping
	// StateBlocked means compile errors exist and restarts are withheld.
	StateBlocked
)

// String returns a lowercase name for the state.
func (s SupervisorState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}
