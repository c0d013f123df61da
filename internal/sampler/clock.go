// Package sampler decides when a reading is due, reads it from a sensor
// source and hands it to the store.
package sampler

import (
	"sync"
	"time"
)

// Clock produces a monotonic millisecond counter.
type Clock interface {
	NowMs() int64
}

// SystemClock counts milliseconds since it was created, using the
// monotonic clock.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a clock starting at zero.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// NowMs returns milliseconds since the clock was created.
func (c *SystemClock) NowMs() int64 {
	return time.Since(c.start).Milliseconds()
}

// ManualClock is advanced explicitly. Safe for concurrent use.
type ManualClock struct {
	mu  sync.Mutex
	now int64
}

// NowMs returns the current value.
func (c *ManualClock) NowMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d.Milliseconds()
	c.mu.Unlock()
}

// Set moves the clock to ms.
func (c *ManualClock) Set(ms int64) {
	c.mu.Lock()
	c.now = ms
	c.mu.Unlock()
}

// Ticker decides whether a sample is due.
type Ticker struct {
	interval time.Duration
	last     int64
	started  bool
}

// NewTicker returns a ticker that fires every interval.
func NewTicker(interval time.Duration) *Ticker {
	return &Ticker{interval: interval}
}

// Due reports whether a sample should be taken at nowMs: on the first call,
// and whenever at least one interval has elapsed since the last sample.
// A true result records nowMs as the last sample time.
func (t *Ticker) Due(nowMs int64) bool {
	if t.started && nowMs-t.last < t.interval.Milliseconds() {
		return false
	}
	t.started = true
	t.last = nowMs
	return true
}

// SetInterval changes the interval. The next sample is still measured from
// the last one.
func (t *Ticker) SetInterval(d time.Duration) {
	if d > 0 {
		t.interval = d
	}
}

// Interval returns the current interval.
func (t *Ticker) Interval() time.Duration {
	return t.interval
}
