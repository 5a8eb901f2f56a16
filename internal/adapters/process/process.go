package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"go.trai.ch/respawn/internal/bridge"
	"go.trai.ch/respawn/internal/core/domain"
	"go.trai.ch/respawn/internal/core/ports"
)

// signalExitBase is added to the signal number of a signaled worker.
const signalExitBase = 128

var _ ports.WorkerProcess = (*Process)(nil)

// Process is a running worker.
type Process struct {
	cmd      *exec.Cmd
	control  *os.File
	enc      *bridge.Encoder
	endpoint *bridge.Endpoint
	handle   domain.WorkerHandle
	logger   ports.Logger

	requests chan string
	done     chan struct{}

	mu   sync.Mutex
	exit domain.WorkerExit
}

func newProcess(
	cmd *exec.Cmd,
	control *os.File,
	endpoint *bridge.Endpoint,
	generation int,
	logger ports.Logger,
) *Process {
	return &Process{
		cmd:      cmd,
		control:  control,
		enc:      bridge.NewEncoder(control),
		endpoint: endpoint,
		logger:   logger,
		handle: domain.WorkerHandle{
			PID:        cmd.Process.Pid,
			Endpoint:   endpoint.Path(),
			Identity:   endpoint.Identity(),
			Generation: generation,
		},
		requests: make(chan string),
		done:     make(chan struct{}),
	}
}

// Handle identifies the process and its bridge channel.
func (p *Process) Handle() domain.WorkerHandle {
	return p.handle
}

// Requests yields the paths the worker asks for, in order.
func (p *Process) Requests() <-chan string {
	return p.requests
}

// Respond writes one bridge response.
func (p *Process) Respond(code, posMap []byte) error {
	return p.endpoint.Write(code, posMap)
}

// Terminate sends SIGTERM.
func (p *Process) Terminate() error {
	return p.signal(syscall.SIGTERM)
}

// Kill sends SIGKILL.
func (p *Process) Kill() error {
	return p.signal(syscall.SIGKILL)
}

// Done is closed once the process has been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exit reports how the process ended.
func (p *Process) Exit() domain.WorkerExit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exit
}

// Release closes the bridge channel and removes it from disk.
func (p *Process) Release() error {
	return p.endpoint.Release()
}

func (p *Process) signal(sig os.Signal) error {
	err := p.cmd.Process.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// abort kills a worker that never became usable and frees its resources.
func (p *Process) abort() {
	_ = p.Kill()
	<-p.done
	_ = p.Release()
}

func (p *Process) wait() {
	err := p.cmd.Wait()

	exit := domain.WorkerExit{Code: p.cmd.ProcessState.ExitCode()}
	if status, ok := p.cmd.ProcessState.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		exit.Signal = status.Signal().String()
		exit.Code = signalExitBase + int(status.Signal())
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		p.logger.Debug(fmt.Sprintf("waiting for worker %d: %v", p.handle.PID, err))
	}

	p.mu.Lock()
	p.exit = exit
	p.mu.Unlock()
	close(p.done)
}

// readRequests decodes load requests until the control channel closes.
func (p *Process) readRequests() {
	defer close(p.requests)
	defer func() { _ = p.control.Close() }()

	dec := bridge.NewDecoder(p.control)
	for {
		msg, err := dec.Decode()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.logger.Debug(fmt.Sprintf("control channel of worker %d: %v", p.handle.PID, err))
			}
			return
		}
		if msg.Kind != bridge.KindLoadRequest {
			p.logger.Debug(fmt.Sprintf("ignoring %s from worker %d", msg.Kind, p.handle.PID))
			continue
		}
		select {
		case p.requests <- msg.Path:
		case <-p.done:
			return
		}
	}
}
