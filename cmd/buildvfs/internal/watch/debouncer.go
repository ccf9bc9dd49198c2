// Package watch invalidates snapshot-store state when files change on disk.
package watch

import (
	"sync"
	"time"
)

// MaxPendingPaths is the maximum number of paths that can be pending. If
// this limit is reached, a flush is triggered immediately to prevent
// unbounded memory growth from rapid file creation.
const MaxPendingPaths = 1000

// Debouncer coalesces rapid file change events into batched invalidations.
// It groups events within a time window to avoid invalidating the cache once
// per event when files are saved rapidly (e.g. IDE autosave, formatter runs).
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]struct{} // set of pending paths
	timer   *time.Timer
	window  time.Duration
	onFlush func(paths []string)
	stopped bool
}

// NewDebouncer creates a debouncer with the given window duration. The
// onFlush callback is called with the affected paths after the window
// expires with no new events.
func NewDebouncer(window time.Duration, onFlush func(paths []string)) *Debouncer {
	return &Debouncer{
		pending: make(map[string]struct{}),
		window:  window,
		onFlush: onFlush,
	}
}

// Add records a changed path. Multiple calls with the same path within the
// window are coalesced.
func (d *Debouncer) Add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.pending[path] = struct{}{}

	if len(d.pending) >= MaxPendingPaths {
		if d.timer != nil {
			d.timer.Stop()
			d.timer = nil
		}
		d.flushLocked()
		return
	}

	// Reset or start the timer. timer.Stop() may return false if the timer
	// already fired, meaning flush() may already be queued; that is safe
	// because flush() exits early when nothing is pending.
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush is called when the timer expires.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flushLocked()
}

// flushLocked performs the flush. Caller must hold d.mu.
func (d *Debouncer) flushLocked() {
	if d.stopped || len(d.pending) == 0 {
		return
	}

	paths := make([]string, 0, len(d.pending))
	for path := range d.pending {
		paths = append(paths, path)
	}
	d.pending = make(map[string]struct{})

	// Call the handler outside the lock to prevent deadlocks.
	d.mu.Unlock()
	if d.onFlush != nil {
		d.onFlush(paths)
	}
	d.mu.Lock()
}

// FlushNow immediately flushes pending paths without waiting for the timer.
// Useful for graceful shutdown.
func (d *Debouncer) FlushNow() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.flushLocked()
}

// Stop flushes pending paths and stops the debouncer; further Add calls are
// ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.flushLocked()
	d.stopped = true
}
