// Package main is the entry point for the respawn dev runner.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/grindlemire/graft"
	"go.trai.ch/respawn/cmd/respawn/commands"
	"go.trai.ch/respawn/internal/adapters/logger"
	"go.trai.ch/respawn/internal/adapters/telemetry"
	"go.trai.ch/respawn/internal/app"
	"go.trai.ch/respawn/internal/core/domain"
	_ "go.trai.ch/respawn/internal/wiring"
)

// ComponentProvider is a function that returns the application components.
type ComponentProvider func(context.Context) (*app.Components, func(), error)

func main() {
	args := os.Args[1:]
	os.Exit(run(context.Background(), args, os.Stderr, providerFor(args)))
}

// providerFor resolves the full component graph for the coordinator. A worker
// only runs the program, so it gets a logger and an App without the watcher or
// spawner behind it.
func providerFor(args []string) ComponentProvider {
	if len(args) > 0 && args[0] == domain.WorkerCommand {
		return workerComponents
	}
	return func(ctx context.Context) (*app.Components, func(), error) {
		c, _, err := graft.ExecuteFor[*app.Components](ctx)
		return c, func() {}, err
	}
}

func workerComponents(_ context.Context) (*app.Components, func(), error) {
	log := logger.New()
	return &app.Components{
		App:    app.New(nil, log, nil, nil, telemetry.NewNoOpTracer()),
		Logger: log,
	}, func() {}, nil
}

func run(
	ctx context.Context,
	args []string,
	stderr io.Writer,
	provider ComponentProvider,
	opts ...func(*app.App),
) int {
	// 0. Context with signal handling
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 1. Initialize application components
	components, cleanup, err := provider(ctx)
	if err != nil {
		// Logger is not available yet if initialization failed
		_, _ = fmt.Fprintln(stderr, "Error: "+err.Error())
		return 1
	}
	defer cleanup()

	for _, opt := range opts {
		opt(components.App)
	}

	// 2. Interface - CLI
	cli := commands.New(components.App)
	cli.SetArgs(args)
	cli.SetOutput(os.Stdout, stderr)

	// 3. Execution
	if err := cli.Execute(ctx); err != nil {
		// A worker mirrors its program's exit status.
		var exitErr *domain.WorkerExitError
		if errors.As(err, &exitErr) {
			return exitErr.Exit.Code
		}
		components.Logger.Error(err)
		return 1
	}
	return 0
}
