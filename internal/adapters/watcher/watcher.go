// Package watcher implements the change feed with fsnotify.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unique"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.trai.ch/respawn/internal/core/domain"
	"go.trai.ch/respawn/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Watcher = (*Watcher)(nil)

// shouldSkipDirectories are directories that are never walked.
var shouldSkipDirectories = map[string]bool{
	".git":                true,
	".jj":                 true,
	"node_modules":        true,
	domain.RespawnDirName: true,
}

const eventChannelBuffer = 100

// Watcher watches directory trees recursively and single files added at
// runtime. fsnotify watches directories; single files are watched through
// their parent and filtered by name.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	logger    ports.Logger
	events    chan domain.ChangeEvent

	mu     sync.RWMutex
	base   string
	ignore []string
	roots  []string
	files  map[unique.Handle[string]]struct{}
	dirs   map[unique.Handle[string]]struct{}
}

// NewWatcher creates a new file system watcher.
func NewWatcher(logger ports.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrWatchFailed.Error())
	}
	return &Watcher{
		fsWatcher: w,
		logger:    logger,
		events:    make(chan domain.ChangeEvent, eventChannelBuffer),
		files:     make(map[unique.Handle[string]]struct{}),
		dirs:      make(map[unique.Handle[string]]struct{}),
	}, nil
}

// Start watches every given path: directories recursively, files on their own.
// Paths matching an ignore glob are skipped. Globs match paths relative to
// the working directory.
func (w *Watcher) Start(ctx context.Context, paths, ignore []string) error {
	for _, pattern := range ignore {
		if !doublestar.ValidatePattern(pattern) {
			return zerr.With(domain.ErrInvalidPattern, "pattern", pattern)
		}
	}

	base, err := os.Getwd()
	if err != nil {
		return zerr.Wrap(err, domain.ErrWatchFailed.Error())
	}

	w.mu.Lock()
	w.base = base
	w.ignore = ignore
	w.mu.Unlock()

	for _, p := range paths {
		if err := w.add(p); err != nil {
			return err
		}
	}

	go w.processEvents(ctx)
	return nil
}

// Add starts watching path at runtime. Paths already covered are a no-op.
func (w *Watcher) Add(path string) error {
	return w.add(path)
}

// Stop stops the watcher and releases all resources.
func (w *Watcher) Stop() error {
	return w.fsWatcher.Close()
}

// Events returns an iterator of change events. It ends when the watcher stops.
func (w *Watcher) Events() iter.Seq[domain.ChangeEvent] {
	return func(yield func(domain.ChangeEvent) bool) {
		for event := range w.events {
			if !yield(event) {
				return
			}
		}
	}
}

func (w *Watcher) add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrWatchFailed.Error()), "path", path)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrWatchFailed.Error()), "path", path)
	}

	if info.IsDir() {
		w.mu.Lock()
		w.roots = append(w.roots, abs)
		w.mu.Unlock()
		for dir := range w.watchRecursively(abs) {
			if err := w.watchDir(dir); err != nil {
				return err
			}
		}
		return nil
	}

	if w.covers(abs) || w.ignored(abs) {
		return nil
	}
	w.mu.Lock()
	w.files[unique.Make(abs)] = struct{}{}
	w.mu.Unlock()
	return w.watchDir(filepath.Dir(abs))
}

func (w *Watcher) watchDir(dir string) error {
	key := unique.Make(dir)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.dirs[key]; ok {
		return nil
	}
	if err := w.fsWatcher.Add(dir); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrWatchFailed.Error()), "path", dir)
	}
	w.dirs[key] = struct{}{}
	return nil
}

// watchRecursively walks the directory tree and yields all directories.
func (w *Watcher) watchRecursively(root string) iter.Seq[string] {
	return func(yield func(string) bool) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil //nolint:nilerr // unreadable directories are skipped
			}
			if !d.IsDir() {
				return nil
			}
			if path != root && (shouldSkipDirectories[d.Name()] || w.ignored(path)) {
				return fs.SkipDir
			}
			if !yield(path) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

// covers reports whether events for path are delivered.
func (w *Watcher) covers(path string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if _, ok := w.files[unique.Make(path)]; ok {
		return true
	}
	for _, root := range w.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *Watcher) ignored(path string) bool {
	w.mu.RLock()
	base, patterns := w.base, w.ignore
	w.mu.RUnlock()

	if len(patterns) == 0 {
		return false
	}

	rel := filepath.ToSlash(path)
	if r, err := filepath.Rel(base, path); err == nil && !strings.HasPrefix(r, "..") {
		rel = filepath.ToSlash(r)
	}
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// processEvents converts raw fsnotify events into change events.
//
//nolint:cyclop // one branch per fsnotify channel and event type
func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.events)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			change, ok := convertEvent(event)
			if !ok || !w.covers(change.Path) || w.ignored(change.Path) {
				continue
			}

			// New directories inside a watched tree are watched too.
			if change.Kind == domain.ChangeAdded {
				if info, err := os.Stat(change.Path); err == nil && info.IsDir() {
					if !shouldSkipDirectories[info.Name()] {
						for dir := range w.watchRecursively(change.Path) {
							_ = w.watchDir(dir)
						}
					}
					continue
				}
			}

			select {
			case w.events <- change:
			case <-ctx.Done():
				return
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("file watcher overflowed; some changes may be missed")
				continue
			}
			w.logger.Warn(fmt.Sprintf("file watcher error: %v", err))
		}
	}
}

// convertEvent maps an fsnotify event to a change event.
func convertEvent(event fsnotify.Event) (domain.ChangeEvent, bool) {
	switch {
	case event.Has(fsnotify.Create):
		return domain.ChangeEvent{Path: event.Name, Kind: domain.ChangeAdded}, true
	case event.Has(fsnotify.Write):
		return domain.ChangeEvent{Path: event.Name, Kind: domain.ChangeModified}, true
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return domain.ChangeEvent{Path: event.Name, Kind: domain.ChangeRemoved}, true
	default:
		return domain.ChangeEvent{}, false
	}
}
