// Package debounce provides a trailing-edge debounced callback.
package debounce

import (
	"sync"
	"time"
)

// Debouncer delays fn until Trigger has not been called for wait. Only the
// last Trigger in a burst leads to a call and there is no leading-edge call.
// A Debouncer is meant to live as long as its owner so that its identity can
// be used to register and deregister it as a listener. It is safe for
// concurrent use.
type Debouncer struct {
	wait time.Duration
	fn   func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending bool
	stopped bool
}

// New returns a Debouncer that runs fn after wait of inactivity.
func New(wait time.Duration, fn func()) *Debouncer {
	return &Debouncer{wait: wait, fn: fn}
}

// Trigger (re)arms the timer.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopTimerLocked()
	d.gen++
	gen := d.gen
	d.pending = true
	d.timer = time.AfterFunc(d.wait, func() { d.fire(gen) })
}

// OnScroll implements a scroll listener by triggering the debouncer.
func (d *Debouncer) OnScroll() {
	d.Trigger()
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Cancel drops any scheduled call.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

// Flush runs a scheduled call immediately on the calling goroutine. It does
// nothing when no call is pending.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.stopped || !d.pending {
		d.mu.Unlock()
		return
	}
	d.cancelLocked()
	d.mu.Unlock()
	d.fn()
}

// Stop cancels any scheduled call and ignores every later Trigger.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
	d.stopped = true
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || !d.pending || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.timer = nil
	d.mu.Unlock()
	d.fn()
}

func (d *Debouncer) cancelLocked() {
	d.stopTimerLocked()
	// Invalidates a timer func that already started and is waiting on mu.
	d.gen++
	d.pending = false
}

func (d *Debouncer) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
