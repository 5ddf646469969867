package hvac

import (
	"sync"
	"sync/atomic"
	"time"
)

// Correlator enforces at-most-one outstanding request against the unit.
// The frame-vs-timeout race is settled by whichever side flips the busy
// flag first; the loser is a no-op.
type Correlator struct {
	timeout   time.Duration
	onTimeout func()

	busy  atomic.Bool
	mu    sync.Mutex
	timer *time.Timer
}

func NewCorrelator(timeout time.Duration, onTimeout func()) *Correlator {
	return &Correlator{timeout: timeout, onTimeout: onTimeout}
}

// Begin claims the in-flight slot and arms the response timer.
// It reports false when a request is already outstanding.
func (c *Correlator) Begin() bool {
	if !c.busy.CompareAndSwap(false, true) {
		return false
	}
	c.mu.Lock()
	c.timer = time.AfterFunc(c.timeout, c.fire)
	c.mu.Unlock()
	return true
}

// Resolve marks the outstanding request as answered. It reports false when
// nothing was outstanding, meaning the caller saw an unsolicited status.
func (c *Correlator) Resolve() bool {
	if !c.busy.CompareAndSwap(true, false) {
		return false
	}
	c.stopTimer()
	return true
}

// Cancel clears an outstanding request without running the timeout
// callback. It reports whether a request was actually outstanding.
func (c *Correlator) Cancel() bool {
	if !c.busy.CompareAndSwap(true, false) {
		return false
	}
	c.stopTimer()
	return true
}

// Busy reports whether a request is outstanding.
func (c *Correlator) Busy() bool {
	return c.busy.Load()
}

func (c *Correlator) fire() {
	if !c.busy.CompareAndSwap(true, false) {
		return
	}
	c.mu.Lock()
	c.timer = nil
	c.mu.Unlock()
	if c.onTimeout != nil {
		c.onTimeout()
	}
}

func (c *Correlator) stopTimer() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()
}
