// Package app implements the application layer for respawn.
package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/respawn/internal/adapters/esbuild" //nolint:depguard // Wired in app layer
	"go.trai.ch/respawn/internal/adapters/store"   //nolint:depguard // Wired in app layer
	"go.trai.ch/respawn/internal/core/domain"
	"go.trai.ch/respawn/internal/core/ports"
	"go.trai.ch/respawn/internal/engine/cache"
	"go.trai.ch/respawn/internal/engine/gateway"
	"go.trai.ch/respawn/internal/engine/supervisor"
	"go.trai.ch/respawn/internal/ui/output"
	"go.trai.ch/respawn/internal/worker"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// RestartCommand is the stdin line that triggers a manual restart.
const RestartCommand = "rs"

// logConfigurer is implemented by loggers whose output mode can change at runtime.
type logConfigurer interface {
	SetDebug(enable bool)
	SetJSON(enable bool)
}

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	logger       ports.Logger
	watcher      ports.Watcher
	spawner      ports.Spawner
	tracer       ports.Tracer
	stdin        io.Reader
	stdout       io.Writer
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	log ports.Logger,
	watcher ports.Watcher,
	spawner ports.Spawner,
	tracer ports.Tracer,
) *App {
	return &App{
		configLoader: loader,
		logger:       log,
		watcher:      watcher,
		spawner:      spawner,
		tracer:       tracer,
		stdin:        os.Stdin,
		stdout:       os.Stdout,
	}
}

// WithStdin sets the reader manual restart commands are read from.
// A nil reader disables manual restarts.
func (a *App) WithStdin(r io.Reader) *App {
	a.stdin = r
	return a
}

// WithStdout sets the terminal cleared before restart notices.
func (a *App) WithStdout(w io.Writer) *App {
	a.stdout = w
	return a
}

// LoadOptions returns the options declared by the nearest respawn.yaml.
func (a *App) LoadOptions(cwd string) (domain.Options, error) {
	opts, _, err := a.configLoader.Load(cwd)
	if err != nil {
		return domain.Options{}, zerr.Wrap(err, "failed to load configuration")
	}
	return opts, nil
}

// Run watches, compiles and supervises the program until ctx is canceled or
// the program exits cleanly without respawning.
func (a *App) Run(ctx context.Context, opts domain.Options) error {
	opts = opts.WithDefaults()
	a.configureLogger(opts)

	if opts.Script == "" {
		return domain.ErrNoScript
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return zerr.Wrap(err, "failed to resolve root")
	}

	transformer, err := esbuild.New(esbuild.Config{
		Root:       root,
		Extensions: opts.Extensions,
		Ignore:     opts.Ignore,
		Only:       opts.Only,
		Target:     opts.Target,
	})
	if err != nil {
		return err
	}

	var artifacts ports.ArtifactStore
	if !opts.NoCache {
		diskStore, openErr := store.Open(opts.CacheDir)
		if openErr != nil {
			return openErr
		}
		artifacts = diskStore
	}

	gw := gateway.New(cache.New(cache.ModTime), transformer, artifacts, a.tracer, a.logger)

	sup := supervisor.New(supervisor.Config{
		Script:          opts.Script,
		Args:            opts.Args,
		Extensions:      opts.Extensions,
		ExcludeDirs:     opts.ExcludeDirs,
		TranslateErrors: opts.TranslateErrors,
		ExitOnTerminate: opts.ExitChild,
		Debounce:        opts.Debounce,
		RestartTimeout:  opts.RestartTimeout,
		Respawn:         opts.Respawn,
		Clear:           opts.Clear,
	}, supervisor.Deps{
		Compiler:    gw,
		Spawner:     a.spawner,
		Watchlist:   a.watcher,
		Tracer:      a.tracer,
		Logger:      a.logger,
		ClearScreen: func() { output.ClearScreen(a.stdout) },
	})

	a.logger.Info(fmt.Sprintf("starting %s", opts.Script))
	a.logger.Debug(fmt.Sprintf("root %s, target %s, extensions %s", root, opts.Target, strings.Join(opts.Extensions, ",")))

	// The supervisor ending (clean program exit) ends the run.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return sup.Run(ctx)
	})
	g.Go(func() error {
		return a.watch(ctx, sup, opts)
	})
	if a.stdin != nil {
		commands := readCommands(a.stdin)
		g.Go(func() error {
			a.handleCommands(ctx, sup, commands)
			return nil
		})
	}
	return g.Wait()
}

// RunWorker runs the worker side of one restart cycle over the control channel.
func (a *App) RunWorker(ctx context.Context, control io.ReadWriter) error {
	return worker.Run(ctx, control)
}

// Clean removes the persistent artifact cache.
func (a *App) Clean(_ context.Context, cacheDir string) error {
	if cacheDir == "" {
		cacheDir = domain.DefaultCachePath()
	}
	if err := store.Clean(cacheDir); err != nil {
		return err
	}
	a.logger.Info("removed " + cacheDir)
	return nil
}

// watch feeds change events to the supervisor. The initial watch set is the
// entry script plus any extra paths; loaded files join it as they are served.
func (a *App) watch(ctx context.Context, sup *supervisor.Supervisor, opts domain.Options) error {
	paths := make([]string, 0, len(opts.Watch)+1)
	paths = append(paths, opts.Script)
	paths = append(paths, opts.Watch...)

	if err := a.watcher.Start(ctx, paths, opts.IgnoreWatch); err != nil {
		return err
	}
	defer func() { _ = a.watcher.Stop() }()

	sup.WatchReady()
	for event := range a.watcher.Events() {
		sup.Notify(event)
	}
	return nil
}

func (a *App) handleCommands(ctx context.Context, sup *supervisor.Supervisor, commands <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-commands:
			if !ok {
				return
			}
			if line == RestartCommand {
				sup.Restart()
			}
		}
	}
}

// readCommands scans r line by line. The goroutine ends when r does; a
// blocked terminal read cannot be interrupted.
func readCommands(r io.Reader) <-chan string {
	lines := make(chan string, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()
	return lines
}

func (a *App) configureLogger(opts domain.Options) {
	if cfg, ok := a.logger.(logConfigurer); ok {
		cfg.SetDebug(opts.Debug)
		cfg.SetJSON(opts.JSON)
	}
}
