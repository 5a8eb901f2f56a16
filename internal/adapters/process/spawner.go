// Package process starts worker processes: the same executable re-run as a
// hidden subcommand, connected by a control socket and a bridge channel.
package process

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"

	"go.trai.ch/respawn/internal/bridge"
	"go.trai.ch/respawn/internal/core/domain"
	"go.trai.ch/respawn/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sys/unix"
)

var _ ports.Spawner = (*Spawner)(nil)

// Option configures a Spawner.
type Option func(*Spawner)

// WithCommand overrides the executable and arguments used to start workers.
func WithCommand(executable string, args ...string) Option {
	return func(s *Spawner) {
		s.executable = executable
		s.args = args
	}
}

// WithEnv appends environment variables to the worker's environment.
func WithEnv(env ...string) Option {
	return func(s *Spawner) {
		s.env = append(s.env, env...)
	}
}

// WithOutput redirects the worker's stdout and stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(s *Spawner) {
		s.stdout = stdout
		s.stderr = stderr
	}
}

// Spawner implements ports.Spawner with os/exec.
type Spawner struct {
	executable string
	args       []string
	env        []string
	stdout     io.Writer
	stderr     io.Writer
	logger     ports.Logger
	generation atomic.Int64
}

// NewSpawner creates a spawner that re-runs the current executable.
func NewSpawner(logger ports.Logger, opts ...Option) (*Spawner, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, zerr.Wrap(err, "failed to determine executable path")
	}
	s := &Spawner{
		executable: exe,
		args:       []string{domain.WorkerCommand},
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Spawn allocates a bridge channel, starts a worker, sends it the start
// command and waits until the worker has opened its end of the channel.
func (s *Spawner) Spawn(ctx context.Context, start domain.StartCommand) (ports.WorkerProcess, error) {
	generation := int(s.generation.Add(1))

	endpoint, err := bridge.Allocate(generation)
	if err != nil {
		return nil, err
	}

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		_ = endpoint.Release()
		return nil, errors.Join(domain.ErrChannelAllocFailed, zerr.Wrap(err, "failed to create control socket"))
	}
	control := os.NewFile(uintptr(fds[0]), "respawn-control")    //nolint:gosec // fd from socketpair
	childEnd := os.NewFile(uintptr(fds[1]), "respawn-control-w") //nolint:gosec // fd from socketpair

	//nolint:gosec // G204: executable is our own binary, args are fixed
	cmd := exec.Command(s.executable, s.args...)
	cmd.Stdout = s.stdout
	cmd.Stderr = s.stderr
	cmd.Env = append(os.Environ(), s.env...)
	// ExtraFiles[0] becomes descriptor 3 in the child.
	cmd.ExtraFiles = []*os.File{childEnd}
	// The worker gets its own process group so terminal signals reach the
	// coordinator only.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		_ = control.Close()
		_ = childEnd.Close()
		_ = endpoint.Release()
		return nil, errors.Join(domain.ErrWorkerSpawnFailed, err)
	}
	_ = childEnd.Close()

	proc := newProcess(cmd, control, endpoint, generation, s.logger)
	go proc.wait()
	go proc.readRequests()

	start.Endpoint = endpoint.Path()
	if err := proc.enc.Encode(bridge.StartCommand(start)); err != nil && !errors.Is(err, domain.ErrWorkerGone) {
		proc.abort()
		return nil, errors.Join(domain.ErrWorkerSpawnFailed, err)
	}

	switch err := endpoint.OpenWriter(ctx, proc.Done()); {
	case err == nil:
	case errors.Is(err, domain.ErrWorkerGone):
		// The worker died before opening the channel. Its exit is reported
		// through Done like any other.
		s.logger.Debug("worker exited before opening the bridge channel")
	case ctx.Err() != nil:
		proc.abort()
		return nil, ctx.Err()
	default:
		proc.abort()
		return nil, err
	}

	return proc, nil
}
