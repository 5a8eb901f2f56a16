// Package supervisor owns the single worker slot: it starts the worker, serves
// its bridge exchanges, and restarts it when watched sources change.
package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.trai.ch/respawn/internal/core/domain"
	"go.trai.ch/respawn/internal/core/ports"
)

const (
	// killGrace bounds the wait for a killed worker to be reaped.
	killGrace = 500 * time.Millisecond

	eventBuffer = 256
)

// Compiler is the compilation path the supervisor drives.
type Compiler interface {
	Resolve(ctx context.Context, path string) domain.Outcome
	Compile(ctx context.Context, path string) domain.Outcome
	Forget(path string, kind domain.ChangeKind)
	Failed(path string) bool
	HasFailures() bool
	Failures() map[string]error
}

// Config controls how the worker is started and restarted.
type Config struct {
	Script string
	Args   []string

	Extensions      []string
	ExcludeDirs     []string
	TranslateErrors bool
	ExitOnTerminate bool

	Debounce       time.Duration
	RestartTimeout time.Duration

	// Respawn keeps the coordinator alive after the program exits cleanly.
	Respawn bool
	// Clear clears the screen before every restart notice.
	Clear bool
}

// Deps are the collaborators of a Supervisor.
type Deps struct {
	Compiler  Compiler
	Spawner   ports.Spawner
	Watchlist ports.Watchlist
	Tracer    ports.Tracer
	Logger    ports.Logger
	// ClearScreen is called before a restart notice when Config.Clear is set.
	ClearScreen func()
}

type exitNotice struct {
	generation int
	exit       domain.WorkerExit
}

// Supervisor runs the restart state machine. All state transitions happen on
// the goroutine executing Run; the exported methods only enqueue work.
type Supervisor struct {
	cfg  Config
	deps Deps

	state     atomic.Uint32
	debouncer *Debouncer

	events    chan domain.ChangeEvent
	requests  chan domain.RestartRequest
	exits     chan exitNotice
	rechecked chan string
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}

	// Owned by Run.
	worker     ports.WorkerProcess
	generation int
	watchReady bool
	serving    sync.WaitGroup
}

// New creates a Supervisor in the Idle state.
func New(cfg Config, deps Deps) *Supervisor {
	if cfg.Debounce <= 0 {
		cfg.Debounce = domain.DefaultDebounce
	}
	if cfg.RestartTimeout <= 0 {
		cfg.RestartTimeout = domain.DefaultRestartTimeout
	}

	s := &Supervisor{
		cfg:       cfg,
		deps:      deps,
		events:    make(chan domain.ChangeEvent, eventBuffer),
		requests:  make(chan domain.RestartRequest),
		exits:     make(chan exitNotice),
		rechecked: make(chan string),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
	s.debouncer = NewDebouncer(cfg.Debounce, func(req domain.RestartRequest) {
		select {
		case s.requests <- req:
		case <-s.done:
		}
	})
	return s
}

// State returns the current state of the worker slot.
func (s *Supervisor) State() domain.SupervisorState {
	return domain.SupervisorState(s.state.Load())
}

// WatchReady signals that the initial watch set is registered. The first
// worker starts on this signal.
func (s *Supervisor) WatchReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// Notify feeds one change event into the state machine.
func (s *Supervisor) Notify(event domain.ChangeEvent) {
	select {
	case s.events <- event:
	case <-s.done:
	}
}

// Restart requests a manual restart. It is debounced and withheld while
// compile errors exist, like a change-triggered restart.
func (s *Supervisor) Restart() {
	s.debouncer.Trigger()
}

// Run processes events until ctx is canceled. It returns an error only for
// fatal conditions: the worker could not be spawned or its bridge channel
// could not be allocated. It returns nil when the program exits cleanly and
// respawning is disabled.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.done)
	defer s.shutdown()
	defer s.debouncer.Stop()

	ready := s.ready
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ready:
			ready = nil
			s.watchReady = true
			if err := s.start(ctx); err != nil {
				return err
			}

		case event := <-s.events:
			s.handleChange(ctx, event)

		case req := <-s.requests:
			if err := s.restart(ctx, req); err != nil {
				return err
			}

		case n := <-s.exits:
			if finished := s.handleExit(n); finished {
				return nil
			}

		case path := <-s.rechecked:
			// The fix is applied through the debounce window so that it
			// coalesces with the change that produced it.
			if s.State() == domain.StateBlocked && !s.deps.Compiler.HasFailures() {
				s.debouncer.Add(path)
			}
		}
	}
}

func (s *Supervisor) handleChange(ctx context.Context, event domain.ChangeEvent) {
	s.deps.Logger.Debug(fmt.Sprintf("%s %s", event.Kind, event.Path))

	wasFailed := event.Kind != domain.ChangeRemoved && s.deps.Compiler.Failed(event.Path)
	s.deps.Compiler.Forget(event.Path, event.Kind)
	if wasFailed {
		go s.recheck(ctx, event.Path)
	}

	// Any change restarts, loaded by the current run or not.
	s.debouncer.Add(event.Path)
}

// recheck recompiles a failing path eagerly, since no worker will ask for it
// while restarts are withheld.
func (s *Supervisor) recheck(ctx context.Context, path string) {
	outcome := s.deps.Compiler.Compile(context.WithoutCancel(ctx), path)
	if outcome.Kind == domain.OutcomeFailed {
		return
	}
	select {
	case s.rechecked <- path:
	case <-s.done:
	}
}

func (s *Supervisor) restart(ctx context.Context, req domain.RestartRequest) error {
	if !s.watchReady {
		return nil
	}
	if s.State() == domain.StateBlocked && s.deps.Compiler.HasFailures() {
		s.deps.Logger.Debug("restart withheld: compile errors present")
		return nil
	}

	ctx, span := s.deps.Tracer.Start(ctx, "restart",
		ports.WithAttribute("paths", len(req.Paths)),
		ports.WithAttribute("manual", req.Manual),
	)
	defer span.End()

	if !s.deps.Compiler.HasFailures() {
		s.notice(req)
	}
	if s.worker != nil {
		s.stop()
	}
	if err := s.start(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (s *Supervisor) start(ctx context.Context) error {
	if s.deps.Compiler.HasFailures() {
		s.setState(domain.StateBlocked)
		s.deps.Logger.Warn("compile errors in " + s.blockers() + "; waiting for a fix before starting")
		return nil
	}

	s.setState(domain.StateStarting)
	s.generation++

	argv := make([]string, 0, len(s.cfg.Args)+1)
	argv = append(argv, s.cfg.Script)
	argv = append(argv, s.cfg.Args...)

	proc, err := s.deps.Spawner.Spawn(ctx, domain.StartCommand{
		Argv:            argv,
		TranslateErrors: s.cfg.TranslateErrors,
		Extensions:      s.cfg.Extensions,
		ExcludeDirs:     s.cfg.ExcludeDirs,
		ExitOnTerminate: s.cfg.ExitOnTerminate,
	})
	if err != nil {
		s.setState(domain.StateIdle)
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	s.worker = proc
	s.setState(domain.StateRunning)
	s.deps.Logger.Debug(fmt.Sprintf("started %s", proc.Handle()))

	s.serving.Add(1)
	go func() {
		defer s.serving.Done()
		s.serve(ctx, proc)
	}()
	go s.watchExit(proc, s.generation)
	return nil
}

// stop terminates the live worker: graceful signal first, then a forced kill
// once RestartTimeout elapses.
func (s *Supervisor) stop() {
	proc := s.worker
	s.worker = nil
	s.setState(domain.StateStopping)

	if err := proc.Terminate(); err != nil {
		s.deps.Logger.Debug(fmt.Sprintf("could not signal %s: %v", proc.Handle(), err))
	}

	timer := time.NewTimer(s.cfg.RestartTimeout)
	defer timer.Stop()

	select {
	case <-proc.Done():
	case <-timer.C:
		s.deps.Logger.Warn(fmt.Sprintf("%s: %s", domain.ErrWorkerForceKilled.Error(), proc.Handle()))
		if err := proc.Kill(); err != nil {
			s.deps.Logger.Debug(fmt.Sprintf("could not kill %s: %v", proc.Handle(), err))
		}
		select {
		case <-proc.Done():
		case <-time.After(killGrace):
		}
	}

	s.release(proc)
	s.setState(domain.StateIdle)
}

// handleExit reacts to a worker that ended on its own. It reports whether
// the supervisor is finished.
func (s *Supervisor) handleExit(n exitNotice) bool {
	if s.worker == nil || n.generation != s.generation {
		return false
	}

	proc := s.worker
	s.worker = nil
	s.release(proc)

	clean := n.exit.Code == 0 && n.exit.Signal == ""
	switch {
	case s.deps.Compiler.HasFailures():
		s.setState(domain.StateBlocked)
		s.deps.Logger.Warn(fmt.Sprintf("program exited with %s; waiting for compile errors in %s to be fixed", n.exit, s.blockers()))
	case clean && !s.cfg.Respawn:
		s.setState(domain.StateIdle)
		s.deps.Logger.Info("program exited cleanly")
		return true
	case clean:
		s.setState(domain.StateIdle)
		s.deps.Logger.Info("program exited cleanly; waiting for changes before restart")
	default:
		s.setState(domain.StateIdle)
		s.deps.Logger.Warn(fmt.Sprintf("program exited with %s; waiting for changes before restart", n.exit))
	}
	return false
}

func (s *Supervisor) watchExit(proc ports.WorkerProcess, generation int) {
	<-proc.Done()
	select {
	case s.exits <- exitNotice{generation: generation, exit: proc.Exit()}:
	case <-s.done:
	}
}

// serve answers the worker's load requests in order until its control
// channel closes. Compiles are not canceled by a restart; their results stay
// cached for the next worker.
func (s *Supervisor) serve(ctx context.Context, proc ports.WorkerProcess) {
	ctx = context.WithoutCancel(ctx)
	for path := range proc.Requests() {
		s.exchange(ctx, proc, path)
	}
}

func (s *Supervisor) exchange(ctx context.Context, proc ports.WorkerProcess, path string) {
	if err := s.deps.Watchlist.Add(path); err != nil {
		s.deps.Logger.Debug(fmt.Sprintf("could not watch %s: %v", path, err))
	}

	start := time.Now()
	outcome := s.deps.Compiler.Resolve(ctx, path)

	var err error
	switch outcome.Kind {
	case domain.OutcomeCompiled:
		err = proc.Respond(outcome.Artifact.Code, outcome.Artifact.Map)
	case domain.OutcomeIgnored:
		err = proc.Respond(nil, nil)
	case domain.OutcomeFailed:
		err = proc.Respond(failureModule(outcome.Err), nil)
	}

	switch {
	case errors.Is(err, domain.ErrWorkerGone):
		s.deps.Logger.Debug(fmt.Sprintf("worker gone before %s was delivered", path))
	case err != nil:
		s.deps.Logger.Warn(fmt.Sprintf("bridge exchange for %s failed: %v", path, err))
	default:
		s.deps.Logger.Debug(fmt.Sprintf("served %s (%s) in %s", path, outcome.Kind, time.Since(start).Round(time.Microsecond)))
	}
}

// blockers lists the failing paths that withhold restarts.
func (s *Supervisor) blockers() string {
	return strings.Join(slices.Sorted(maps.Keys(s.deps.Compiler.Failures())), ", ")
}

// shutdown stops the live worker when Run returns.
func (s *Supervisor) shutdown() {
	if s.worker != nil {
		s.stop()
	}
	s.serving.Wait()
}

func (s *Supervisor) release(proc ports.WorkerProcess) {
	if err := proc.Release(); err != nil {
		s.deps.Logger.Debug(fmt.Sprintf("could not release %s: %v", proc.Handle(), err))
	}
}

func (s *Supervisor) notice(req domain.RestartRequest) {
	if s.cfg.Clear && s.deps.ClearScreen != nil {
		s.deps.ClearScreen()
	}
	switch {
	case req.Manual && len(req.Paths) == 0:
		s.deps.Logger.Info("restarting (manual)")
	case len(req.Paths) > 0:
		s.deps.Logger.Info("restarting: " + strings.Join(req.Paths, ", "))
	}
}

func (s *Supervisor) setState(state domain.SupervisorState) {
	s.state.Store(uint32(state))
}

// failureModule is served in place of a source that failed to compile, so the
// worker fails with the real diagnostic instead of loading the raw file.
func failureModule(cause error) []byte {
	msg, err := json.Marshal(cause.Error())
	if err != nil {
		msg = []byte(`"compile failed"`)
	}
	return []byte("throw new Error(" + string(msg) + ");\n")
}
