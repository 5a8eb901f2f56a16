package process_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/respawn/internal/adapters/process"
	"go.trai.ch/respawn/internal/core/domain"
	"go.trai.ch/respawn/internal/core/ports"
	"go.trai.ch/respawn/internal/core/ports/mocks"
	"go.trai.ch/respawn/internal/worker"
	"go.uber.org/mock/gomock"
)

// helperEnv makes the test binary act as a worker.
const helperEnv = "RESPAWN_TEST_WORKER"

const exitTimeout = 10 * time.Second

func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		os.Exit(runWorker())
	}
	os.Exit(m.Run())
}

func runWorker() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	control := os.NewFile(worker.ControlFD, "control")
	err := worker.Run(ctx, control)
	var exitErr *domain.WorkerExitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exitErr):
		return exitErr.Exit.Code
	default:
		_, _ = fmt.Fprintln(os.Stderr, err)
		return 1
	}
}

// syncBuffer is a bytes.Buffer safe for the exec copy goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newSpawner(t *testing.T, stdout, stderr *syncBuffer) *process.Spawner {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Debug(gomock.Any()).AnyTimes()

	s, err := process.NewSpawner(log,
		process.WithCommand(os.Args[0], domain.WorkerCommand),
		process.WithEnv(helperEnv+"=1"),
		process.WithOutput(stdout, stderr),
	)
	require.NoError(t, err)
	return s
}

func writeScript(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), domain.FilePerm))
	return path
}

func waitExit(t *testing.T, proc ports.WorkerProcess) domain.WorkerExit {
	t.Helper()
	select {
	case <-proc.Done():
		return proc.Exit()
	case <-time.After(exitTimeout):
		t.Fatal("worker did not exit")
		return domain.WorkerExit{}
	}
}

func start(script string, args ...string) domain.StartCommand {
	return domain.StartCommand{
		Argv:        append([]string{script}, args...),
		Extensions:  []string{".ts", ".js"},
		ExcludeDirs: []string{"node_modules"},
	}
}

func TestSpawner_ServesBridgeExchanges(t *testing.T) {
	dir := t.TempDir()
	dep := writeScript(t, dir, "dep.ts", "export const value: number = 7;")
	main := writeScript(t, dir, "main.js", `
const dep = require("./dep.ts");
console.log("value", dep.value);
process.exit(dep.value);
`)

	var stdout, stderr syncBuffer
	s := newSpawner(t, &stdout, &stderr)

	proc, err := s.Spawn(t.Context(), start(main))
	require.NoError(t, err)
	defer func() { _ = proc.Release() }()

	handle := proc.Handle()
	assert.Equal(t, 1, handle.Generation)
	assert.NotZero(t, handle.PID)
	assert.FileExists(t, handle.Endpoint)

	// main.js is answered with "no artifact" and loaded natively.
	assert.Equal(t, main, <-proc.Requests())
	require.NoError(t, proc.Respond(nil, nil))

	assert.Equal(t, dep, <-proc.Requests())
	require.NoError(t, proc.Respond([]byte(`exports.value = 7;`), nil))

	exit := waitExit(t, proc)
	assert.Equal(t, 7, exit.Code, "stderr: %s", stderr.String())
	assert.Equal(t, "value 7\n", stdout.String())

	_, open := <-proc.Requests()
	assert.False(t, open)

	require.NoError(t, proc.Release())
	assert.NoFileExists(t, handle.Endpoint)
}

func TestSpawner_Terminate(t *testing.T) {
	dir := t.TempDir()
	main := writeScript(t, dir, "main.js", "setInterval(function () {}, 1000);")

	var stdout, stderr syncBuffer
	s := newSpawner(t, &stdout, &stderr)

	proc, err := s.Spawn(t.Context(), start(main))
	require.NoError(t, err)
	defer func() { _ = proc.Release() }()

	<-proc.Requests()
	require.NoError(t, proc.Respond(nil, nil))

	require.NoError(t, proc.Terminate())
	exit := waitExit(t, proc)
	assert.Equal(t, 143, exit.Code)
	assert.Empty(t, exit.Signal)

	// Signaling a reaped worker is not an error.
	assert.NoError(t, proc.Terminate())
}

func TestSpawner_KillBusyWorker(t *testing.T) {
	dir := t.TempDir()
	main := writeScript(t, dir, "main.js", "for (;;) {}")

	var stdout, stderr syncBuffer
	s := newSpawner(t, &stdout, &stderr)

	proc, err := s.Spawn(t.Context(), start(main))
	require.NoError(t, err)
	defer func() { _ = proc.Release() }()

	<-proc.Requests()
	require.NoError(t, proc.Respond(nil, nil))

	require.NoError(t, proc.Terminate())
	select {
	case <-proc.Done():
		t.Fatal("busy worker honored the graceful signal")
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, proc.Kill())
	exit := waitExit(t, proc)
	assert.Equal(t, syscall.SIGKILL.String(), exit.Signal)
	assert.Equal(t, 128+int(syscall.SIGKILL), exit.Code)
}

func TestSpawner_RespondAfterExit(t *testing.T) {
	dir := t.TempDir()
	main := writeScript(t, dir, "main.js", "")

	var stdout, stderr syncBuffer
	s := newSpawner(t, &stdout, &stderr)

	proc, err := s.Spawn(t.Context(), start(main))
	require.NoError(t, err)
	defer func() { _ = proc.Release() }()

	<-proc.Requests()
	require.NoError(t, proc.Respond(nil, nil))
	assert.Equal(t, 0, waitExit(t, proc).Code)

	require.NoError(t, proc.Release())
	assert.ErrorIs(t, proc.Respond([]byte("late"), nil), domain.ErrWorkerGone)
}

func TestSpawner_GenerationsIncrease(t *testing.T) {
	dir := t.TempDir()
	main := writeScript(t, dir, "main.js", "")

	var stdout, stderr syncBuffer
	s := newSpawner(t, &stdout, &stderr)

	var endpoints []string
	for want := 1; want <= 2; want++ {
		proc, err := s.Spawn(t.Context(), start(main))
		require.NoError(t, err)

		<-proc.Requests()
		require.NoError(t, proc.Respond(nil, nil))
		waitExit(t, proc)
		require.NoError(t, proc.Release())

		assert.Equal(t, want, proc.Handle().Generation)
		endpoints = append(endpoints, proc.Handle().Endpoint)
	}
	assert.NotEqual(t, endpoints[0], endpoints[1])
}

func TestSpawner_MissingExecutable(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)

	s, err := process.NewSpawner(log, process.WithCommand(filepath.Join(t.TempDir(), "missing")))
	require.NoError(t, err)

	_, err = s.Spawn(t.Context(), start("main.js"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrWorkerSpawnFailed)
}

func TestSpawner_ChannelAllocationFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	t.Setenv("TMPDIR", filepath.Join(t.TempDir(), "missing"))

	s, err := process.NewSpawner(log, process.WithCommand(os.Args[0], "worker"))
	require.NoError(t, err)

	_, err = s.Spawn(t.Context(), start("main.js"))
	require.ErrorIs(t, err, domain.ErrChannelAllocFailed)
}
