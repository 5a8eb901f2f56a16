package ports

import (
	"context"
	"iter"

	"go.trai.ch/respawn/internal/core/domain"
)

// Watchlist accepts paths to add to the change feed at runtime.
type Watchlist interface {
	// Add starts watching path. Adding a path twice is a no-op.
	Add(path string) error
}

// Watcher defines the interface for watching file system changes.
//
//go:generate mockgen -source=watcher.go -destination=mocks/mock_watcher.go -package=mocks
type Watcher interface {
	Watchlist
	// Start begins watching the given paths, skipping anything matching an
	// ignore glob. It returns once the initial watch set is registered,
	// which is the watch-ready signal.
	Start(ctx context.Context, paths, ignore []string) error
	// Stop stops the watcher and releases all resources.
	Stop() error
	// Events returns an iterator of change events.
	Events() iter.Seq[domain.ChangeEvent]
}
