package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/process"
	"github.com/dop251/goja_nodejs/require"
	"go.trai.ch/respawn/internal/core/domain"
)

const (
	// exitUncaught is the exit code of a program that threw.
	exitUncaught = 1
	// exitTerminated is the exit code after the graceful termination signal.
	exitTerminated = 128 + 15
)

// exitRequest is the interrupt value used by process.exit.
type exitRequest struct {
	code int
}

// terminateRequest is the interrupt value used on the graceful signal.
type terminateRequest struct{}

// Runtime hosts the user's program in an embedded JavaScript engine whose
// require() reads sources through a Loader.
type Runtime struct {
	loader          Loader
	argv            []string
	stdout          io.Writer
	stderr          io.Writer
	exitOnTerminate bool

	mu          sync.Mutex
	vm          *goja.Runtime
	exitCode    *int
	terminating bool
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithStdout sets where console.log and console.info write.
func WithStdout(w io.Writer) RuntimeOption {
	return func(rt *Runtime) {
		rt.stdout = w
	}
}

// WithStderr sets where console.warn, console.error and uncaught exceptions
// are printed.
func WithStderr(w io.Writer) RuntimeOption {
	return func(rt *Runtime) {
		rt.stderr = w
	}
}

// WithExitOnTerminate makes the graceful signal interrupt running code
// instead of waiting for the program to yield to the event loop.
func WithExitOnTerminate(enable bool) RuntimeOption {
	return func(rt *Runtime) {
		rt.exitOnTerminate = enable
	}
}

// NewRuntime creates a runtime for argv, where argv[0] is the entry script.
func NewRuntime(loader Loader, argv []string, opts ...RuntimeOption) *Runtime {
	rt := &Runtime{
		loader: loader,
		argv:   argv,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Run executes the entry script and its event loop. It returns nil when the
// program finishes normally and *domain.WorkerExitError for any other exit
// code. Canceling ctx acts as the graceful termination signal.
func (rt *Runtime) Run(ctx context.Context) error {
	if len(rt.argv) == 0 {
		return domain.ErrNoScript
	}
	script, err := filepath.Abs(rt.argv[0])
	if err != nil {
		return err
	}

	registry := require.NewRegistry(require.WithLoader(rt.loader.Load))
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(printer{stdout: rt.stdout, stderr: rt.stderr}))
	loop := eventloop.NewEventLoop(eventloop.WithRegistry(registry))

	done := make(chan int, 1)
	go func() {
		code := 0
		loop.Run(func(vm *goja.Runtime) {
			rt.setVM(vm)
			console.Enable(vm)
			rt.installProcess(vm, loop, script)
			code = rt.runMain(vm, script)
		})
		done <- code
	}()

	var code int
	select {
	case code = <-done:
	case <-ctx.Done():
		rt.terminate(loop)
		code = <-done
		if code == 0 {
			code = exitTerminated
		}
	}

	if requested := rt.requestedExit(); requested != nil {
		code = *requested
	}
	if code == 0 {
		return nil
	}
	return &domain.WorkerExitError{Exit: domain.WorkerExit{Code: code}}
}

func (rt *Runtime) runMain(vm *goja.Runtime, script string) int {
	requireFn, ok := goja.AssertFunction(vm.Get("require"))
	if !ok {
		_, _ = fmt.Fprintln(rt.stderr, "require is not available")
		return exitUncaught
	}

	_, err := requireFn(goja.Undefined(), vm.ToValue(script))
	if err == nil {
		return 0
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		switch v := interrupted.Value().(type) {
		case exitRequest:
			return v.code
		case terminateRequest:
			return exitTerminated
		}
	}

	var exc *goja.Exception
	if errors.As(err, &exc) {
		_, _ = fmt.Fprintln(rt.stderr, exc.String())
	} else {
		_, _ = fmt.Fprintln(rt.stderr, err.Error())
	}
	return exitUncaught
}

func (rt *Runtime) installProcess(vm *goja.Runtime, loop *eventloop.EventLoop, script string) {
	process.Enable(vm)
	proc := vm.Get("process").ToObject(vm)

	exe, err := os.Executable()
	if err != nil {
		exe = "respawn"
	}
	argv := append([]string{exe, script}, rt.argv[1:]...)
	_ = proc.Set("argv", argv)
	_ = proc.Set("pid", os.Getpid())
	_ = proc.Set("platform", runtime.GOOS)
	_ = proc.Set("cwd", func() string {
		wd, _ := os.Getwd()
		return wd
	})
	_ = proc.Set("exit", func(call goja.FunctionCall) goja.Value {
		code := int(call.Argument(0).ToInteger())
		rt.mu.Lock()
		rt.exitCode = &code
		rt.mu.Unlock()

		loop.StopNoWait()
		vm.Interrupt(exitRequest{code: code})
		return goja.Undefined()
	})
}

// terminate ends the program on the graceful signal. Without exitOnTerminate
// the loop stops once the running job yields, so a busy program keeps running
// until it is force killed.
func (rt *Runtime) terminate(loop *eventloop.EventLoop) {
	loop.StopNoWait()
	if !rt.exitOnTerminate {
		return
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.terminating = true
	if rt.vm != nil {
		rt.vm.Interrupt(terminateRequest{})
	}
}

func (rt *Runtime) setVM(vm *goja.Runtime) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.vm = vm
	if rt.terminating {
		vm.Interrupt(terminateRequest{})
	}
}

func (rt *Runtime) requestedExit() *int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.exitCode
}

// printer routes console output to the runtime's writers.
type printer struct {
	stdout io.Writer
	stderr io.Writer
}

func (p printer) Log(s string)   { _, _ = fmt.Fprintln(p.stdout, s) }
func (p printer) Warn(s string)  { _, _ = fmt.Fprintln(p.stderr, s) }
func (p printer) Error(s string) { _, _ = fmt.Fprintln(p.stderr, s) }
