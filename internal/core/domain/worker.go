package domain

import "fmt"

// WorkerCommand is the hidden subcommand a worker process is started with.
const WorkerCommand = "worker"

// WorkerHandle identifies the single live worker owned by the supervisor.
type WorkerHandle struct {
	// PID is the worker's process id.
	PID int
	// Endpoint is the filesystem path of the worker's bridge channel.
	Endpoint string
	// Identity is a short name for the channel, unique per restart cycle.
	Identity string
	// Generation counts restarts; the first worker is generation 1.
	Generation int
}

// String renders the handle for log lines.
func (h WorkerHandle) String() string {
	return fmt.Sprintf("worker#%d pid=%d channel=%s", h.Generation, h.PID, h.Identity)
}

// StartCommand is the one-time message a worker receives before running the program.
type StartCommand struct {
	// Endpoint is the bridge channel the worker reads responses from.
	Endpoint string
	// Argv is the program's argument vector; Argv[0] is the script path.
	Argv []string
	// TranslateErrors attaches position maps so uncaught exceptions point at original sources.
	TranslateErrors bool
	// Extensions lists the file extensions the loader hook intercepts.
	Extensions []string
	// ExcludeDirs lists directory names whose files bypass the bridge.
	ExcludeDirs []string
	// ExitOnTerminate makes the worker interrupt the program on the graceful signal.
	ExitOnTerminate bool
}

// WorkerExit describes how a worker process ended.
type WorkerExit struct {
	Code   int
	Signal string
}

// String renders the exit for log lines.
func (e WorkerExit) String() string {
	if e.Signal != "" {
		return "signal " + e.Signal
	}
	return fmt.Sprintf("code %d", e.Code)
}

// WorkerExitError is returned by the worker runtime when the program ends with
// a non-zero code. The worker command mirrors it as its own exit status.
type WorkerExitError struct {
	Exit WorkerExit
}

func (e *WorkerExitError) Error() string {
	return "program exited with " + e.Exit.String()
}
