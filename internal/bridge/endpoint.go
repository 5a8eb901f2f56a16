package bridge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/respawn/internal/core/domain"
	"go.trai.ch/zerr"
	"golang.org/x/sys/unix"
)

const (
	pollInterval    = 5 * time.Millisecond
	maxOpenDuration = 10 * time.Second
)

// Endpoint is the coordinator's end of one worker's bridge channel: a named
// pipe inside a private temporary directory.
type Endpoint struct {
	dir      string
	path     string
	identity string

	mu       sync.Mutex
	w        *os.File
	released bool
}

// Allocate creates a fresh channel for the given restart generation.
func Allocate(generation int) (*Endpoint, error) {
	dir, err := os.MkdirTemp("", domain.BridgeDirPattern)
	if err != nil {
		return nil, errors.Join(domain.ErrChannelAllocFailed, zerr.Wrap(err, "failed to create channel directory"))
	}

	seed := strconv.Itoa(os.Getpid()) + "/" + strconv.Itoa(generation) + "/" +
		strconv.FormatInt(time.Now().UnixNano(), 10)
	identity := strconv.FormatUint(xxhash.Sum64String(seed), 16)
	path := filepath.Join(dir, identity+".fifo")

	if err := unix.Mkfifo(path, domain.PrivateFilePerm); err != nil {
		_ = os.RemoveAll(dir)
		return nil, errors.Join(domain.ErrChannelAllocFailed, zerr.With(zerr.Wrap(err, "failed to create named pipe"), "path", path))
	}

	return &Endpoint{dir: dir, path: path, identity: identity}, nil
}

// Path returns the filesystem path the worker opens for reading.
func (e *Endpoint) Path() string {
	return e.path
}

// Identity returns the short name of the channel.
func (e *Endpoint) Identity() string {
	return e.identity
}

// OpenWriter waits until the worker has opened its reading end, then opens the
// writing end. It gives up when ctx is canceled, when gone is closed, or after
// a fixed deadline.
func (e *Endpoint) OpenWriter(ctx context.Context, gone <-chan struct{}) error {
	start := time.Now()
	for {
		f, err := e.tryOpen()
		if err == nil {
			e.mu.Lock()
			defer e.mu.Unlock()
			if e.released {
				_ = f.Close()
				return zerr.Wrap(os.ErrClosed, domain.ErrChannelOpenFailed.Error())
			}
			e.w = f
			return nil
		}
		if !errors.Is(err, unix.ENXIO) {
			return zerr.With(zerr.Wrap(err, domain.ErrChannelOpenFailed.Error()), "path", e.path)
		}
		if time.Since(start) > maxOpenDuration {
			return zerr.With(domain.ErrChannelOpenFailed, "path", e.path)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-gone:
			return domain.ErrWorkerGone
		case <-time.After(pollInterval):
		}
	}
}

// tryOpen opens the pipe for writing without blocking. It fails with ENXIO
// while no reader has the pipe open.
func (e *Endpoint) tryOpen() (*os.File, error) {
	fd, err := unix.Open(e.path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), e.path), nil //nolint:gosec // fd is a valid descriptor
}

// Write delivers one response. It returns an error wrapping
// domain.ErrWorkerGone when the writing end was never opened or the worker
// has exited.
func (e *Endpoint) Write(code, posMap []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.w == nil {
		return domain.ErrWorkerGone
	}
	return WriteResponse(e.w, code, posMap)
}

// Release closes the writing end and removes the pipe. It is safe to call
// more than once.
func (e *Endpoint) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return nil
	}
	e.released = true

	var errs []error
	if e.w != nil {
		errs = append(errs, e.w.Close())
		e.w = nil
	}
	if err := os.RemoveAll(e.dir); err != nil {
		errs = append(errs, zerr.With(zerr.Wrap(err, "failed to remove bridge channel"), "path", e.dir))
	}
	return errors.Join(errs...)
}

// OpenReader opens the worker's reading end. It blocks until the coordinator
// opens the writing end.
func OpenReader(path string) (*os.File, error) {
	//nolint:gosec // path comes from the start command sent by the coordinator
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrChannelOpenFailed.Error()), "path", path)
	}
	return f, nil
}
