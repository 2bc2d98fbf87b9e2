package requests

import (
	"context"
	"sync"
	"time"
)

// Debouncer coalesces bursts of edits by polling: a ticker with period
// window fires the callback only when an edit is pending and none landed in
// the last window. A tick that sees a recent edit is skipped.
type Debouncer struct {
	window time.Duration
	fire   func()
	now    func() time.Time

	mu       sync.Mutex
	lastEdit time.Time
	pending  bool
}

func NewDebouncer(window time.Duration, fire func()) *Debouncer {
	return &Debouncer{window: window, fire: fire, now: time.Now}
}

// WithClock replaces the time source.
func (d *Debouncer) WithClock(now func() time.Time) *Debouncer {
	d.now = now
	return d
}

// Touch records an edit.
func (d *Debouncer) Touch() {
	d.mu.Lock()
	d.lastEdit = d.now()
	d.pending = true
	d.mu.Unlock()
}

func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Tick runs one poll at now and reports whether the callback fired.
func (d *Debouncer) Tick(now time.Time) bool {
	d.mu.Lock()
	if !d.pending || now.Sub(d.lastEdit) < d.window {
		d.mu.Unlock()
		return false
	}
	d.pending = false
	d.mu.Unlock()

	d.fire()
	return true
}

// Run polls until ctx is done.
func (d *Debouncer) Run(ctx context.Context) {
	ticker := time.NewTicker(d.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick(d.now())
		}
	}
}
