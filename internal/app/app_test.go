package app_test

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/respawn/internal/adapters/telemetry"
	"go.trai.ch/respawn/internal/app"
	"go.trai.ch/respawn/internal/core/domain"
	"go.trai.ch/respawn/internal/core/ports"
	"go.trai.ch/respawn/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

const runTimeout = 5 * time.Second

type fixture struct {
	ctrl    *gomock.Controller
	loader  *mocks.MockConfigLoader
	logger  *mocks.MockLogger
	watcher *mocks.MockWatcher
	spawner *mocks.MockSpawner
	app     *app.App
	events  chan domain.ChangeEvent
	script  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	f := &fixture{
		ctrl:    ctrl,
		loader:  mocks.NewMockConfigLoader(ctrl),
		logger:  mocks.NewMockLogger(ctrl),
		watcher: mocks.NewMockWatcher(ctrl),
		spawner: mocks.NewMockSpawner(ctrl),
		events:  make(chan domain.ChangeEvent),
	}
	f.logger.EXPECT().Debug(gomock.Any()).AnyTimes()
	f.logger.EXPECT().Info(gomock.Any()).AnyTimes()
	f.logger.EXPECT().Warn(gomock.Any()).AnyTimes()
	f.logger.EXPECT().Error(gomock.Any()).AnyTimes()

	dir := t.TempDir()
	f.script = filepath.Join(dir, "main.ts")
	require.NoError(t, os.WriteFile(f.script, []byte("console.log('hi')"), domain.FilePerm))

	f.app = app.New(f.loader, f.logger, f.watcher, f.spawner, telemetry.NewNoOpTracer()).
		WithStdin(nil).
		WithStdout(new(strings.Builder))
	return f
}

// expectWatch makes the watcher deliver f.events until the run ends.
func (f *fixture) expectWatch() {
	var once sync.Once
	f.watcher.EXPECT().Start(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _, _ []string) error {
			go func() {
				<-ctx.Done()
				once.Do(func() { close(f.events) })
			}()
			return nil
		})
	f.watcher.EXPECT().Events().Return(iter.Seq[domain.ChangeEvent](func(yield func(domain.ChangeEvent) bool) {
		for event := range f.events {
			if !yield(event) {
				return
			}
		}
	}))
	f.watcher.EXPECT().Stop().Return(nil)
	f.watcher.EXPECT().Add(gomock.Any()).Return(nil).AnyTimes()
}

func (f *fixture) options(t *testing.T) domain.Options {
	t.Helper()
	return domain.Options{
		Script:   f.script,
		Root:     filepath.Dir(f.script),
		CacheDir: filepath.Join(t.TempDir(), "cache"),
	}
}

// process builds a worker mock. Terminate ends it unless stubborn is set;
// exit ends it on its own with the given exit.
type process struct {
	mock     *mocks.MockWorkerProcess
	done     chan struct{}
	requests chan string
	once     sync.Once
	exit     domain.WorkerExit
}

func (f *fixture) newProcess(generation int) *process {
	p := &process{
		mock:     mocks.NewMockWorkerProcess(f.ctrl),
		done:     make(chan struct{}),
		requests: make(chan string),
	}
	p.mock.EXPECT().Handle().Return(domain.WorkerHandle{PID: 100 + generation, Generation: generation}).AnyTimes()
	p.mock.EXPECT().Requests().Return(p.requests).AnyTimes()
	p.mock.EXPECT().Done().Return(p.done).AnyTimes()
	p.mock.EXPECT().Exit().DoAndReturn(func() domain.WorkerExit { return p.exit }).AnyTimes()
	p.mock.EXPECT().Terminate().DoAndReturn(func() error {
		p.end(domain.WorkerExit{Signal: "terminated"})
		return nil
	}).AnyTimes()
	p.mock.EXPECT().Kill().Return(nil).AnyTimes()
	p.mock.EXPECT().Release().Return(nil).AnyTimes()
	return p
}

func (p *process) end(exit domain.WorkerExit) {
	p.once.Do(func() {
		p.exit = exit
		close(p.requests)
		close(p.done)
	})
}

func runAsync(ctx context.Context, a *app.App, opts domain.Options) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- a.Run(ctx, opts) }()
	return errc
}

func wait(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(runTimeout):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestApp_RunEndsWhenProgramExits(t *testing.T) {
	f := newFixture(t)
	f.expectWatch()

	proc := f.newProcess(1)
	f.spawner.EXPECT().Spawn(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cmd domain.StartCommand) (ports.WorkerProcess, error) {
			assert.Equal(t, []string{f.script, "--flag"}, cmd.Argv)
			assert.True(t, cmd.ExitOnTerminate)
			assert.Equal(t, domain.DefaultExtensions, cmd.Extensions)
			go proc.end(domain.WorkerExit{Code: 0})
			return proc.mock, nil
		})

	opts := f.options(t)
	opts.Args = []string{"--flag"}
	opts.ExitChild = true

	err := wait(t, runAsync(t.Context(), f.app, opts))
	assert.NoError(t, err)
}

func TestApp_RunRestartsOnChange(t *testing.T) {
	f := newFixture(t)
	f.expectWatch()

	first, second := f.newProcess(1), f.newProcess(2)
	gomock.InOrder(
		f.spawner.EXPECT().Spawn(gomock.Any(), gomock.Any()).Return(first.mock, nil),
		f.spawner.EXPECT().Spawn(gomock.Any(), gomock.Any()).Return(second.mock, nil),
	)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	errc := runAsync(ctx, f.app, f.options(t))

	f.events <- domain.ChangeEvent{Path: f.script, Kind: domain.ChangeModified}

	select {
	case <-first.done:
	case <-time.After(runTimeout):
		t.Fatal("first worker was not stopped")
	}

	cancel()
	require.NoError(t, wait(t, errc))

	select {
	case <-second.done:
	default:
		t.Fatal("second worker still running after shutdown")
	}
}

func TestApp_ManualRestartFromStdin(t *testing.T) {
	f := newFixture(t)
	f.expectWatch()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer func() { _ = w.Close() }()
	f.app.WithStdin(r)

	first, second := f.newProcess(1), f.newProcess(2)
	started, spawned := make(chan struct{}), make(chan struct{})
	gomock.InOrder(
		f.spawner.EXPECT().Spawn(gomock.Any(), gomock.Any()).
			DoAndReturn(func(context.Context, domain.StartCommand) (ports.WorkerProcess, error) {
				close(started)
				return first.mock, nil
			}),
		f.spawner.EXPECT().Spawn(gomock.Any(), gomock.Any()).
			DoAndReturn(func(context.Context, domain.StartCommand) (ports.WorkerProcess, error) {
				close(spawned)
				return second.mock, nil
			}),
	)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	errc := runAsync(ctx, f.app, f.options(t))

	select {
	case <-started:
	case <-time.After(runTimeout):
		t.Fatal("worker was not started")
	}

	_, err = w.WriteString("hello\n  rs  \n")
	require.NoError(t, err)

	select {
	case <-spawned:
	case <-time.After(runTimeout):
		t.Fatal("manual restart did not spawn a worker")
	}

	cancel()
	require.NoError(t, wait(t, errc))
	_ = r.Close()
}

func TestApp_RunSpawnFailure(t *testing.T) {
	f := newFixture(t)
	f.expectWatch()

	f.spawner.EXPECT().Spawn(gomock.Any(), gomock.Any()).
		Return(nil, errors.Join(domain.ErrWorkerSpawnFailed, errors.New("exec format error")))

	err := wait(t, runAsync(t.Context(), f.app, f.options(t)))
	require.ErrorIs(t, err, domain.ErrWorkerSpawnFailed)
}

func TestApp_RunWatchFailure(t *testing.T) {
	f := newFixture(t)
	f.watcher.EXPECT().Start(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("too many open files"))

	err := wait(t, runAsync(t.Context(), f.app, f.options(t)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many open files")
}

func TestApp_RunWithoutScript(t *testing.T) {
	f := newFixture(t)

	err := f.app.Run(t.Context(), domain.Options{})
	require.ErrorIs(t, err, domain.ErrNoScript)
}

func TestApp_RunInvalidTarget(t *testing.T) {
	f := newFixture(t)
	opts := f.options(t)
	opts.Target = "es1999"

	err := f.app.Run(t.Context(), opts)
	require.Error(t, err)
}

func TestApp_LoadOptions(t *testing.T) {
	f := newFixture(t)
	f.loader.EXPECT().Load("/project").Return(domain.Options{Clear: true}, "/project/respawn.yaml", nil)

	opts, err := f.app.LoadOptions("/project")
	require.NoError(t, err)
	assert.True(t, opts.Clear)
}

func TestApp_LoadOptionsError(t *testing.T) {
	f := newFixture(t)
	f.loader.EXPECT().Load(gomock.Any()).Return(domain.Options{}, "", domain.ErrConfigParseFailed)

	_, err := f.app.LoadOptions(".")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestApp_Clean(t *testing.T) {
	f := newFixture(t)
	dir := filepath.Join(t.TempDir(), "cache")
	require.NoError(t, os.MkdirAll(dir, domain.DirPerm))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.cbor"), nil, domain.FilePerm))

	require.NoError(t, f.app.Clean(t.Context(), dir))
	assert.NoDirExists(t, dir)
}
