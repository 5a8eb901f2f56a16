package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/respawn/internal/core/domain"
)

func addRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("root", "", "Base directory for compiler ignore/only globs")
	flags.StringSliceP("watch", "w", nil, "Extra paths to watch in addition to loaded files")
	flags.StringSlice("ignore-watch", nil, "Glob patterns excluded from the change feed")
	flags.StringSliceP("extensions", "e", nil, "File extensions compiled through the bridge")
	flags.StringSlice("exclude-dir", nil, "Directory names whose files bypass the bridge")
	flags.StringSlice("ignore", nil, "Glob patterns the compiler must not touch")
	flags.StringSlice("only", nil, "Glob patterns the compiler is restricted to")
	flags.String("target", "", "Language level sources are lowered to (e.g. es2020)")
	flags.Duration("debounce", domain.DefaultDebounce, "Window that coalesces bursts of changes")
	flags.Duration("restart-timeout", domain.DefaultRestartTimeout, "Grace period before a stopping worker is killed")
	flags.Bool("translate-errors", true, "Map stack traces back to original sources")
	flags.Bool("clear", false, "Clear the screen before each restart")
	flags.Bool("respawn", false, "Keep watching after the program exits cleanly")
	flags.Bool("exit-child", false, "Interrupt the program when the worker is asked to stop")
	flags.String("cache-directory", "", "Directory of the persistent compile cache")
	flags.Bool("no-cache", false, "Bypass the persistent compile cache")
	flags.Bool("debug", false, "Enable debug logging")
	flags.Bool("json", false, "Emit logs as JSON")
}

func (c *CLI) runRoot(cmd *cobra.Command, args []string) error {
	opts, err := c.app.LoadOptions(".")
	if err != nil {
		return err
	}
	opts.Script = args[0]
	opts.Args = args[1:]
	applyFlags(cmd, &opts)
	return c.app.Run(cmd.Context(), opts)
}

// applyFlags overrides file options with the flags the user set.
func applyFlags(cmd *cobra.Command, opts *domain.Options) {
	flags := cmd.Flags()
	changed := flags.Changed

	if changed("root") {
		opts.Root, _ = flags.GetString("root")
	}
	if changed("watch") {
		opts.Watch, _ = flags.GetStringSlice("watch")
	}
	if changed("ignore-watch") {
		opts.IgnoreWatch, _ = flags.GetStringSlice("ignore-watch")
	}
	if changed("extensions") {
		exts, _ := flags.GetStringSlice("extensions")
		opts.Extensions = domain.NormalizeExtensions(exts)
	}
	if changed("exclude-dir") {
		opts.ExcludeDirs, _ = flags.GetStringSlice("exclude-dir")
	}
	if changed("ignore") {
		opts.Ignore, _ = flags.GetStringSlice("ignore")
	}
	if changed("only") {
		opts.Only, _ = flags.GetStringSlice("only")
	}
	if changed("target") {
		opts.Target, _ = flags.GetString("target")
	}
	if changed("debounce") {
		opts.Debounce, _ = flags.GetDuration("debounce")
	}
	if changed("restart-timeout") {
		opts.RestartTimeout, _ = flags.GetDuration("restart-timeout")
	}
	if changed("translate-errors") {
		opts.TranslateErrors, _ = flags.GetBool("translate-errors")
	}
	if changed("clear") {
		opts.Clear, _ = flags.GetBool("clear")
	}
	if changed("respawn") {
		opts.Respawn, _ = flags.GetBool("respawn")
	}
	if changed("exit-child") {
		opts.ExitChild, _ = flags.GetBool("exit-child")
	}
	if changed("cache-directory") {
		opts.CacheDir, _ = flags.GetString("cache-directory")
	}
	if changed("no-cache") {
		opts.NoCache, _ = flags.GetBool("no-cache")
	}
	opts.Debug, _ = flags.GetBool("debug")
	opts.JSON, _ = flags.GetBool("json")
}
