package gateway

import (
	"sync"
	"time"
)

// Debouncer runs the most recently triggered func once a quiet period of
// delay has passed since the last Trigger.
type Debouncer struct {
	clock   Clock
	delay   time.Duration
	mu      sync.Mutex
	timer   Timer
	pending func()
	gen     uint64
}

// NewDebouncer creates a debouncer. A nil clock means the wall clock.
func NewDebouncer(delay time.Duration, clock Clock) *Debouncer {
	if clock == nil {
		clock = RealClock{}
	}
	return &Debouncer{clock: clock, delay: delay}
}

// Trigger (re)arms the timer with fn, replacing any pending func
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	d.pending = fn
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.delay, func() {
		d.fire(gen)
	})
}

// Flush cancels the timer and runs the pending func now, if there is one.
// It reports whether a func ran.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	d.stopLocked()
	fn := d.pending
	d.pending = nil
	d.mu.Unlock()

	if fn == nil {
		return false
	}
	fn()
	return true
}

// Cancel drops the pending func without running it
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.pending = nil
}

// Pending reports whether a func is waiting for the timer
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.gen++
	d.mu.Unlock()

	fn()
}

// stopLocked stops the armed timer. Bumping the generation also disarms a
// timer that already fired and is waiting on the lock.
func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}
