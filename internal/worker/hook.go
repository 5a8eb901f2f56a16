package worker

import (
	"encoding/base64"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dop251/goja_nodejs/require"
	"go.trai.ch/respawn/internal/bridge"
)

// Loader reads the source text of one module by absolute path. A missing file
// is reported as require.ModuleFileDoesNotExistError so resolution can go on
// to the next candidate.
type Loader interface {
	Load(path string) ([]byte, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(path string) ([]byte, error)

// Load calls f(path).
func (f LoaderFunc) Load(path string) ([]byte, error) {
	return f(path)
}

// NativeLoader reads files from disk unmodified.
type NativeLoader struct{}

// Load reads path.
func (NativeLoader) Load(path string) ([]byte, error) {
	return require.DefaultSourceLoader(path)
}

// Source performs one bridge exchange for path.
type Source interface {
	Fetch(path string) (bridge.Response, error)
}

// Hook turns a loader into one that asks the coordinator first and falls back
// to the wrapped loader when no artifact comes back.
type Hook struct {
	source      Source
	excludeDirs []string
	translate   bool
}

// NewHook creates a hook over source. Files below any directory named in
// excludeDirs never reach the bridge. With translate set, returned position
// maps are attached to the code so stack traces point at original sources.
func NewHook(source Source, excludeDirs []string, translate bool) *Hook {
	return &Hook{
		source:      source,
		excludeDirs: excludeDirs,
		translate:   translate,
	}
}

// Wrap returns a loader that consults the bridge before next.
func (h *Hook) Wrap(next Loader) Loader {
	return LoaderFunc(func(path string) ([]byte, error) {
		return h.load(path, next)
	})
}

func (h *Hook) load(path string, next Loader) ([]byte, error) {
	if h.excluded(path) {
		return next.Load(path)
	}

	// Resolution probes paths that may not exist; only real files are worth
	// an exchange.
	if !isFile(path) {
		return nil, require.ModuleFileDoesNotExistError
	}

	resp, err := h.source.Fetch(path)
	if err != nil || !resp.Found {
		return next.Load(path)
	}

	if h.translate && len(resp.Map) > 0 {
		return attachMap(resp.Code, resp.Map), nil
	}
	return resp.Code, nil
}

func (h *Hook) excluded(path string) bool {
	if len(h.excludeDirs) == 0 {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(path)), "/") {
		if slices.Contains(h.excludeDirs, part) {
			return true
		}
	}
	return false
}

// attachMap appends the position map as an inline source map comment.
func attachMap(code, posMap []byte) []byte {
	const prefix = "\n//# sourceMappingURL=data:application/json;base64,"

	out := make([]byte, 0, len(code)+len(prefix)+base64.StdEncoding.EncodedLen(len(posMap))+1)
	out = append(out, code...)
	out = append(out, prefix...)
	out = base64.StdEncoding.AppendEncode(out, posMap)
	return append(out, '\n')
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Registry holds one loader per recognized extension.
type Registry struct {
	order    []string
	loaders  map[string]Loader
	fallback Loader
}

// NewRegistry creates a registry that hands unrecognized files to fallback.
func NewRegistry(fallback Loader) *Registry {
	return &Registry{
		loaders:  make(map[string]Loader),
		fallback: fallback,
	}
}

// Register sets the loader for ext. Extensions registered first win when an
// extensionless path matches more than one file.
func (r *Registry) Register(ext string, l Loader) {
	if _, ok := r.loaders[ext]; !ok {
		r.order = append(r.order, ext)
	}
	r.loaders[ext] = l
}

// Extensions returns the registered extensions in registration order.
func (r *Registry) Extensions() []string {
	return slices.Clone(r.order)
}

// Wrap replaces every registered loader with wrap(ext, loader).
func (r *Registry) Wrap(wrap func(ext string, l Loader) Loader) {
	for _, ext := range r.order {
		r.loaders[ext] = wrap(ext, r.loaders[ext])
	}
}

// Load dispatches path to the loader of its extension. A path whose file
// does not exist is retried with each registered extension, so "./util" and
// "./util.js" both find "util.ts".
func (r *Registry) Load(path string) ([]byte, error) {
	ext := filepath.Ext(path)
	l, known := r.loaders[ext]
	if known && isFile(path) {
		return l.Load(path)
	}

	stem := path
	if known {
		stem = strings.TrimSuffix(path, ext)
	}
	for _, candidateExt := range r.order {
		candidate := stem + candidateExt
		if isFile(candidate) {
			return r.loaders[candidateExt].Load(candidate)
		}
	}

	if known {
		return nil, require.ModuleFileDoesNotExistError
	}

	data, err := r.fallback.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, require.ModuleFileDoesNotExistError
	}
	return data, err
}
