// Package cache implements the in-memory compilation cache.
package cache

import (
	"os"
	"sync"
	"unique"

	"go.trai.ch/respawn/internal/core/domain"
	"go.trai.ch/zerr"
)

// StatFunc returns a file's modification time in unix nanoseconds.
type StatFunc func(path string) (int64, error)

// ModTime is the default StatFunc backed by os.Stat.
func ModTime(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, domain.ErrSourceStatFailed.Error()), "path", path)
	}
	return info.ModTime().UnixNano(), nil
}

// Cache memoizes compiled artifacts per absolute path.
// An entry is served only while its ModTime matches the file on disk.
// Alongside the artifacts it tracks the paths that failed to compile and
// the paths the compiler declined.
type Cache struct {
	mu      sync.Mutex
	stat    StatFunc
	entries map[unique.Handle[string]]*domain.Artifact
	failed  map[unique.Handle[string]]error
	ignored map[unique.Handle[string]]struct{}
}

// New creates an empty cache. A nil stat uses ModTime.
func New(stat StatFunc) *Cache {
	if stat == nil {
		stat = ModTime
	}
	return &Cache{
		stat:    stat,
		entries: make(map[unique.Handle[string]]*domain.Artifact),
		failed:  make(map[unique.Handle[string]]error),
		ignored: make(map[unique.Handle[string]]struct{}),
	}
}

// Stat exposes the cache's clock so callers stamp artifacts consistently.
func (c *Cache) Stat(path string) (int64, error) {
	return c.stat(path)
}

// Get returns the artifact for path if the file has not changed since it was built.
// A stale entry is dropped and reported as a miss.
func (c *Cache) Get(path string) (*domain.Artifact, bool) {
	key := unique.Make(path)

	c.mu.Lock()
	artifact, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}

	modTime, err := c.stat(path)
	if err != nil || modTime != artifact.ModTime {
		c.mu.Lock()
		// Only drop the entry we inspected; a concurrent Put may have replaced it.
		if c.entries[key] == artifact {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return artifact, true
}

// Put stores an artifact, replacing any previous one for the same path.
func (c *Cache) Put(artifact *domain.Artifact) {
	if artifact == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[unique.Make(artifact.Path)] = artifact
}

// Invalidate drops the artifact for path.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, unique.Make(path))
}

// InvalidateAll drops every artifact and forgets ignored paths.
// Recorded failures are kept: they still gate restarts.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[unique.Handle[string]]*domain.Artifact)
	c.ignored = make(map[unique.Handle[string]]struct{})
}

// Len returns the number of cached artifacts.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// MarkFailed records that path failed to compile.
func (c *Cache) MarkFailed(path string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed[unique.Make(path)] = err
}

// ClearFailed forgets a recorded failure. It reports whether one was recorded.
func (c *Cache) ClearFailed(path string) bool {
	key := unique.Make(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.failed[key]; !ok {
		return false
	}
	delete(c.failed, key)
	return true
}

// IsFailed reports whether path is in the error set.
func (c *Cache) IsFailed(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.failed[unique.Make(path)]
	return ok
}

// HasFailures reports whether the error set is non-empty.
func (c *Cache) HasFailures() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.failed) > 0
}

// Failures returns a copy of the error set.
func (c *Cache) Failures() map[string]error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]error, len(c.failed))
	for k, v := range c.failed {
		out[k.Value()] = v
	}
	return out
}

// MarkIgnored records that the compiler declined path.
func (c *Cache) MarkIgnored(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ignored[unique.Make(path)] = struct{}{}
}

// IsIgnored reports whether path is in the ignored set.
func (c *Cache) IsIgnored(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.ignored[unique.Make(path)]
	return ok
}
