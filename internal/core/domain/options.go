package domain

import (
	"strings"
	"time"
)

const (
	// DefaultDebounce is the window that coalesces bursts of changes into one restart.
	DefaultDebounce = 100 * time.Millisecond

	// DefaultRestartTimeout bounds the wait for a worker to honor the graceful signal.
	DefaultRestartTimeout = 2 * time.Second
)

// DefaultExtensions are the source extensions intercepted by the loader hook.
var DefaultExtensions = []string{".ts", ".tsx", ".mts", ".cts", ".js", ".jsx", ".mjs", ".cjs"}

// DefaultExcludeDirs are directory names whose files bypass the bridge.
var DefaultExcludeDirs = []string{"node_modules"}

// DefaultIgnore are the compiler exclude globs used when none are configured.
var DefaultIgnore = []string{"**/node_modules/**"}

// DefaultTarget is the language level compiled sources are lowered to.
const DefaultTarget = "es2017"

// Options is the normalized configuration for one coordinator run.
type Options struct {
	// Script is the entry program; Args follow it in the worker's argv.
	Script string
	Args   []string

	// Root is the base directory for the compiler ignore/only globs.
	Root string
	// Watch lists extra paths watched in addition to autowatched files.
	Watch []string
	// IgnoreWatch lists glob patterns excluded from the change feed.
	IgnoreWatch []string

	// Extensions are intercepted by the loader hook and accepted by the compiler.
	Extensions []string
	// ExcludeDirs are skipped by the loader hook's fast path.
	ExcludeDirs []string
	// Ignore and Only are compiler include/exclude globs.
	Ignore []string
	Only   []string
	// Target is the language level handed to the compiler (e.g. "es2020").
	Target string

	Debounce       time.Duration
	RestartTimeout time.Duration

	TranslateErrors bool
	Clear           bool
	Respawn         bool
	ExitChild       bool

	CacheDir string
	NoCache  bool

	Debug bool
	JSON  bool
}

// WithDefaults fills zero values with defaults.
func (o Options) WithDefaults() Options {
	if o.Root == "" {
		o.Root = "."
	}
	if len(o.Extensions) == 0 {
		o.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if o.ExcludeDirs == nil {
		o.ExcludeDirs = append([]string(nil), DefaultExcludeDirs...)
	}
	if o.Ignore == nil {
		o.Ignore = append([]string(nil), DefaultIgnore...)
	}
	if o.Target == "" {
		o.Target = DefaultTarget
	}
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.RestartTimeout <= 0 {
		o.RestartTimeout = DefaultRestartTimeout
	}
	if o.CacheDir == "" {
		o.CacheDir = DefaultCachePath()
	}
	return o
}

// NormalizeExtensions accepts extensions with or without the leading dot.
func NormalizeExtensions(exts []string) []string {
	if len(exts) == 0 {
		return nil
	}
	normalized := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	return normalized
}
