package supervisor

import (
	"sort"
	"sync"
	"time"
	"unique"

	"go.trai.ch/respawn/internal/core/domain"
)

// Debouncer coalesces bursts of change events and manual triggers into a
// single restart request.
type Debouncer struct {
	mu       sync.Mutex
	pending  map[unique.Handle[string]]struct{}
	manual   bool
	timer    *time.Timer
	window   time.Duration
	callback func(domain.RestartRequest)
}

// NewDebouncer creates a new debouncer with the given time window and callback.
func NewDebouncer(window time.Duration, callback func(domain.RestartRequest)) *Debouncer {
	return &Debouncer{
		pending:  make(map[unique.Handle[string]]struct{}),
		window:   window,
		callback: callback,
	}
}

// Add records a changed path and restarts the window.
func (d *Debouncer) Add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending[unique.Make(path)] = struct{}{}
	d.reset()
}

// Trigger records a manual restart and restarts the window.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.manual = true
	d.reset()
}

// Stop cancels a pending window without firing it.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = make(map[unique.Handle[string]]struct{})
	d.manual = false
}

func (d *Debouncer) reset() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

// fire is called when the debounce window expires.
func (d *Debouncer) fire() {
	d.mu.Lock()
	d.timer = nil
	req, ok := d.take()
	d.mu.Unlock()

	if ok && d.callback != nil {
		go d.callback(req)
	}
}

// take drains the pending set. The caller holds d.mu.
func (d *Debouncer) take() (domain.RestartRequest, bool) {
	if len(d.pending) == 0 && !d.manual {
		return domain.RestartRequest{}, false
	}

	paths := make([]string, 0, len(d.pending))
	for handle := range d.pending {
		paths = append(paths, handle.Value())
	}
	sort.Strings(paths)

	req := domain.RestartRequest{Paths: paths, Manual: d.manual}
	d.pending = make(map[unique.Handle[string]]struct{})
	d.manual = false
	return req, true
}
