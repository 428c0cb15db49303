// Package debounce delays work until input goes quiet.
//
// Each key owns at most one pending call. Triggering a key again cancels
// the pending call and restarts the delay.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs the last function triggered for a key once the key has
// been quiet for the configured delay.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*call
	stopped bool
}

type call struct {
	timer *time.Timer
	fn    func()
}

// New creates a debouncer with the given quiet period.
func New(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		pending: make(map[string]*call),
	}
}

// Delay returns the configured quiet period.
func (d *Debouncer) Delay() time.Duration { return d.delay }

// Trigger schedules fn for key, replacing any pending call for the same
// key. It reports false once the debouncer is stopped.
func (d *Debouncer) Trigger(key string, fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return false
	}
	if c, ok := d.pending[key]; ok {
		c.timer.Stop()
	}
	c := &call{fn: fn}
	c.timer = time.AfterFunc(d.delay, func() { d.fire(key, c) })
	d.pending[key] = c
	return true
}

// fire runs c if it is still the pending call for key.
func (d *Debouncer) fire(key string, c *call) {
	d.mu.Lock()
	if d.pending[key] != c {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()

	c.fn()
}

// Flush runs the pending call for key immediately, on the caller's
// goroutine. It reports whether there was one.
func (d *Debouncer) Flush(key string) bool {
	d.mu.Lock()
	c, ok := d.pending[key]
	if ok {
		c.timer.Stop()
		delete(d.pending, key)
	}
	d.mu.Unlock()

	if ok {
		c.fn()
	}
	return ok
}

// Cancel drops the pending call for key without running it.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.pending[key]
	if ok {
		c.timer.Stop()
		delete(d.pending, key)
	}
	return ok
}

// Pending reports whether key has a call waiting.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.pending[key]
	return ok
}

// Stop cancels every pending call. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for key, c := range d.pending {
		c.timer.Stop()
		delete(d.pending, key)
	}
}
