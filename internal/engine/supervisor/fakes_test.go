package supervisor_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.trai.ch/respawn/internal/core/domain"
	"go.trai.ch/respawn/internal/core/ports"
)

// response is one bridge response recorded by a fake worker.
type response struct {
	code   []byte
	posMap []byte
}

// fakeProcess is a worker whose lifecycle is driven by the test.
type fakeProcess struct {
	handle     domain.WorkerHandle
	cmd        domain.StartCommand
	ignoreTerm bool

	requests  chan string
	responses chan response
	done      chan struct{}

	mu         sync.Mutex
	exit       domain.WorkerExit
	terminated bool
	killed     bool
	released   bool
	once       sync.Once
}

var _ ports.WorkerProcess = (*fakeProcess)(nil)

func (p *fakeProcess) Handle() domain.WorkerHandle { return p.handle }
func (p *fakeProcess) Requests() <-chan string     { return p.requests }
func (p *fakeProcess) Done() <-chan struct{}       { return p.done }

func (p *fakeProcess) Exit() domain.WorkerExit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exit
}

func (p *fakeProcess) Respond(code, posMap []byte) error {
	select {
	case p.responses <- response{code: code, posMap: posMap}:
		return nil
	case <-p.done:
		return domain.ErrWorkerGone
	}
}

func (p *fakeProcess) Terminate() error {
	p.mu.Lock()
	p.terminated = true
	ignore := p.ignoreTerm
	p.mu.Unlock()
	if !ignore {
		p.die(domain.WorkerExit{Signal: "terminated"})
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.die(domain.WorkerExit{Signal: "killed"})
	return nil
}

func (p *fakeProcess) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = true
	return nil
}

// die ends the process as if it exited with exit.
func (p *fakeProcess) die(exit domain.WorkerExit) {
	p.once.Do(func() {
		p.mu.Lock()
		p.exit = exit
		p.mu.Unlock()
		close(p.requests)
		close(p.done)
	})
}

// load performs one bridge exchange from the worker's side.
func (p *fakeProcess) load(path string) response {
	p.requests <- path
	return <-p.responses
}

func (p *fakeProcess) status() (terminated, killed, released bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated, p.killed, p.released
}

func (p *fakeProcess) alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// fakeSpawner hands out fakeProcesses and checks that at most one is alive.
type fakeSpawner struct {
	mu         sync.Mutex
	procs      []*fakeProcess
	ignoreTerm bool
	err        error
	overlaps   int
}

var _ ports.Spawner = (*fakeSpawner)(nil)

func (s *fakeSpawner) Spawn(_ context.Context, cmd domain.StartCommand) (ports.WorkerProcess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	for _, p := range s.procs {
		if p.alive() {
			s.overlaps++
		}
	}

	gen := len(s.procs) + 1
	p := &fakeProcess{
		handle: domain.WorkerHandle{
			PID:        1000 + gen,
			Endpoint:   fmt.Sprintf("/tmp/bridge-%d.fifo", gen),
			Identity:   fmt.Sprintf("id%d", gen),
			Generation: gen,
		},
		cmd:        cmd,
		ignoreTerm: s.ignoreTerm,
		requests:   make(chan string),
		responses:  make(chan response),
		done:       make(chan struct{}),
	}
	s.procs = append(s.procs, p)
	return p, nil
}

func (s *fakeSpawner) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

func (s *fakeSpawner) proc(i int) *fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[i]
}

func (s *fakeSpawner) last() *fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[len(s.procs)-1]
}

func (s *fakeSpawner) setIgnoreTerm(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignoreTerm = v
}

func (s *fakeSpawner) overlapCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlaps
}

// fakeTransformer compiles by prefixing the path and counts calls per path.
type fakeTransformer struct {
	mu      sync.Mutex
	calls   map[string]int
	failing map[string]bool
	ignored map[string]bool
	empty   map[string]bool
}

var _ ports.Transformer = (*fakeTransformer)(nil)

func newFakeTransformer() *fakeTransformer {
	return &fakeTransformer{
		calls:   make(map[string]int),
		failing: make(map[string]bool),
		ignored: make(map[string]bool),
		empty:   make(map[string]bool),
	}
}

func (f *fakeTransformer) Transform(_ context.Context, path string) (ports.TransformOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[path]++
	switch {
	case f.ignored[path]:
		return ports.TransformOutput{}, domain.ErrIgnoredByPolicy
	case f.failing[path]:
		return ports.TransformOutput{}, errors.New(`Expected ";" but found "}"`)
	case f.empty[path]:
		// Type-only sources compile to nothing.
		return ports.TransformOutput{}, nil
	}
	return ports.TransformOutput{
		Code: []byte("compiled:" + path),
		Map:  []byte(`{"version":3}`),
	}, nil
}

func (f *fakeTransformer) setFailing(path string, failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[path] = failing
}

func (f *fakeTransformer) setIgnored(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ignored[path] = true
}

func (f *fakeTransformer) setEmpty(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.empty[path] = true
}

func (f *fakeTransformer) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

// clock is a controllable cache.StatFunc.
type clock struct {
	mu    sync.Mutex
	times map[string]int64
}

func newClock() *clock {
	return &clock{times: make(map[string]int64)}
}

func (c *clock) set(path string, t int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.times[path] = t
}

func (c *clock) stat(path string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.times[path]
	if !ok {
		return 0, errors.New("no such file")
	}
	return t, nil
}
