// Package esbuild implements ports.Transformer with the esbuild Go API.
package esbuild

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/evanw/esbuild/pkg/api"
	"go.trai.ch/respawn/internal/core/domain"
	"go.trai.ch/respawn/internal/core/ports"
	"go.trai.ch/zerr"
)

// Config selects which files are compiled and how.
type Config struct {
	// Root anchors the Ignore and Only globs.
	Root string
	// Extensions is the allow-list of compiled file extensions.
	Extensions []string
	// Ignore excludes matching paths. Only, when non-empty, excludes every
	// path that matches none of its patterns.
	Ignore []string
	Only   []string
	// Target is the language level, e.g. "es2017" or "esnext".
	Target string
}

// Transformer compiles TypeScript and modern JavaScript to CommonJS.
type Transformer struct {
	root       string
	extensions []string
	ignore     []string
	only       []string
	target     api.Target
}

var _ ports.Transformer = (*Transformer)(nil)

var targets = map[string]api.Target{
	"esnext": api.ESNext,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"es2023": api.ES2023,
	"es2024": api.ES2024,
}

var loaders = map[string]api.Loader{
	".ts":  api.LoaderTS,
	".mts": api.LoaderTS,
	".cts": api.LoaderTS,
	".tsx": api.LoaderTSX,
	".jsx": api.LoaderJSX,
	".js":  api.LoaderJS,
	".mjs": api.LoaderJS,
	".cjs": api.LoaderJS,
}

// New validates cfg and creates a Transformer.
func New(cfg Config) (*Transformer, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to resolve compiler root")
	}

	for _, pattern := range slices.Concat(cfg.Ignore, cfg.Only) {
		if !doublestar.ValidatePattern(pattern) {
			return nil, zerr.With(domain.ErrInvalidPattern, "pattern", pattern)
		}
	}

	target := api.ES2017
	if cfg.Target != "" {
		t, ok := targets[strings.ToLower(cfg.Target)]
		if !ok {
			return nil, zerr.With(zerr.New("unknown compile target"), "target", cfg.Target)
		}
		target = t
	}

	return &Transformer{
		root:       root,
		extensions: cfg.Extensions,
		ignore:     cfg.Ignore,
		only:       cfg.Only,
		target:     target,
	}, nil
}

// Transform compiles the file at path. Paths excluded by the configured
// policy return domain.ErrIgnoredByPolicy.
func (t *Transformer) Transform(ctx context.Context, path string) (ports.TransformOutput, error) {
	if err := ctx.Err(); err != nil {
		return ports.TransformOutput{}, err
	}

	loader, ok := t.loaderFor(path)
	if !ok || t.ignored(path) {
		return ports.TransformOutput{}, domain.ErrIgnoredByPolicy
	}

	//nolint:gosec // G304: path is a module the user's program asked to load
	src, err := os.ReadFile(path)
	if err != nil {
		return ports.TransformOutput{}, zerr.With(zerr.Wrap(err, "failed to read source"), "path", path)
	}

	result := api.Transform(string(src), api.TransformOptions{
		Loader:         loader,
		Format:         api.FormatCommonJS,
		Platform:       api.PlatformNode,
		Target:         t.target,
		Sourcemap:      api.SourceMapExternal,
		SourcesContent: api.SourcesContentExclude,
		Sourcefile:     path,
		LogLevel:       api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		msgs := api.FormatMessages(result.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage})
		return ports.TransformOutput{}, errors.New(strings.TrimSpace(strings.Join(msgs, "\n")))
	}

	return ports.TransformOutput{Code: result.Code, Map: result.Map}, nil
}

func (t *Transformer) loaderFor(path string) (api.Loader, bool) {
	ext := filepath.Ext(path)
	if !slices.Contains(t.extensions, ext) {
		return api.LoaderNone, false
	}
	loader, ok := loaders[ext]
	return loader, ok
}

func (t *Transformer) ignored(path string) bool {
	rel := filepath.ToSlash(path)
	if r, err := filepath.Rel(t.root, path); err == nil && !strings.HasPrefix(r, "..") {
		rel = filepath.ToSlash(r)
	}

	for _, pattern := range t.ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}

	if len(t.only) == 0 {
		return false
	}
	for _, pattern := range t.only {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return false
		}
	}
	return true
}
