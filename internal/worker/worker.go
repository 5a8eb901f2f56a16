// Package worker is the disposable side of the dev loop: it receives a start
// command from the coordinator, installs the loader hook and runs the program.
package worker

import (
	"context"
	"io"
	"os"

	"go.trai.ch/respawn/internal/bridge"
	"go.trai.ch/respawn/internal/core/domain"
	"go.trai.ch/zerr"
)

// ControlFD is the descriptor the coordinator passes the control channel on.
const ControlFD = 3

// Run serves one worker lifetime over control. It waits for the start command,
// opens the bridge channel, installs the hook on every recognized extension
// and then runs the program until it ends or ctx is canceled.
func Run(ctx context.Context, control io.ReadWriter, opts ...RuntimeOption) error {
	msg, err := bridge.NewDecoder(control).Decode()
	if err != nil {
		return zerr.Wrap(err, "failed to read start command")
	}
	if msg.Kind != bridge.KindStartCommand {
		return zerr.With(domain.ErrUnexpectedMessage, "kind", msg.Kind.String())
	}
	start := msg.Start

	r, err := openReader(ctx, start.Endpoint)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	client := NewClient(bridge.NewEncoder(control), r)
	hook := NewHook(client, start.ExcludeDirs, start.TranslateErrors)

	registry := NewRegistry(NativeLoader{})
	for _, ext := range start.Extensions {
		registry.Register(ext, NativeLoader{})
	}
	registry.Wrap(func(_ string, l Loader) Loader {
		return hook.Wrap(l)
	})

	opts = append([]RuntimeOption{WithExitOnTerminate(start.ExitOnTerminate)}, opts...)
	return NewRuntime(registry, start.Argv, opts...).Run(ctx)
}

// openReader opens the bridge channel, giving up when ctx is canceled first.
func openReader(ctx context.Context, path string) (*os.File, error) {
	type result struct {
		f   *os.File
		err error
	}
	opened := make(chan result, 1)
	go func() {
		f, err := bridge.OpenReader(path)
		opened <- result{f: f, err: err}
	}()

	select {
	case res := <-opened:
		return res.f, res.err
	case <-ctx.Done():
		// Close the file if the open still completes before the process exits.
		go func() {
			if res := <-opened; res.f != nil {
				_ = res.f.Close()
			}
		}()
		return nil, ctx.Err()
	}
}
