package ports

import (
	"context"

	"go.trai.ch/respawn/internal/core/domain"
)

// WorkerProcess is a running worker as seen from the coordinator.
type WorkerProcess interface {
	// Handle identifies the process and its bridge channel.
	Handle() domain.WorkerHandle
	// Requests yields the paths the worker is about to load. It is closed
	// when the worker's control channel closes.
	Requests() <-chan string
	// Respond writes one bridge response. Empty code means "no artifact".
	// It returns an error wrapping domain.ErrWorkerGone if the worker exited.
	Respond(code, posMap []byte) error
	// Terminate sends the graceful termination signal.
	Terminate() error
	// Kill forcefully terminates the process.
	Kill() error
	// Done is closed once the process exit has been observed.
	Done() <-chan struct{}
	// Exit reports how the process ended. Valid after Done is closed.
	Exit() domain.WorkerExit
	// Release closes the channel endpoint and removes transient resources.
	Release() error
}

// Spawner starts worker processes.
//
//go:generate mockgen -source=spawner.go -destination=mocks/mock_spawner.go -package=mocks
type Spawner interface {
	// Spawn allocates a bridge channel, starts a worker and hands it the start
	// command. Errors wrap domain.ErrChannelAllocFailed or domain.ErrWorkerSpawnFailed.
	Spawn(ctx context.Context, cmd domain.StartCommand) (WorkerProcess, error)
}
