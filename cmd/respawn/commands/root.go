// Package commands implements the CLI commands for respawn.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.trai.ch/respawn/internal/build"
	"go.trai.ch/respawn/internal/core/domain"
)

// CLI represents the command line interface for respawn.
type CLI struct {
	app     Application
	rootCmd *cobra.Command
}

// Application represents the application logic interface.
type Application interface {
	LoadOptions(cwd string) (domain.Options, error)
	Run(ctx context.Context, opts domain.Options) error
	RunWorker(ctx context.Context, control io.ReadWriter) error
	Clean(ctx context.Context, cacheDir string) error
}

// New creates a new CLI instance with the given app.
func New(a Application) *CLI {
	c := &CLI{app: a}

	rootCmd := &cobra.Command{
		Use:   "respawn [flags] script [args...]",
		Short: "Run a TypeScript program and restart it when its sources change",
		Long: `respawn runs a TypeScript or JavaScript program in a worker process,
compiling sources on demand and restarting the worker when a loaded file changes.
Type "rs" and Enter to restart manually.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
		RunE:          c.runRoot,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}} (commit: %s, date: %s)\n",
		build.Commit,
		build.Date,
	))
	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	// Everything after the script belongs to the program.
	rootCmd.Flags().SetInterspersed(false)
	addRunFlags(rootCmd)

	c.rootCmd = rootCmd

	rootCmd.AddCommand(c.newWorkerCmd())
	rootCmd.AddCommand(c.newCleanCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}
