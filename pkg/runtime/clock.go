package runtime

import (
	"sync"
	"time"
)

// Clock supplies the unix time handed to programs.
type Clock interface {
	Now() int64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current unix time in seconds.
func (SystemClock) Now() int64 { return time.Now().Unix() }

// ManualClock is a settable clock for tests and local simulations.
type ManualClock struct {
	mu  sync.Mutex
	now int64
}

// NewManualClock starts a clock at now.
func NewManualClock(now int64) *ManualClock {
	return &ManualClock{now: now}
}

// Now returns the current setting.
func (c *ManualClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to now.
func (c *ManualClock) Set(now int64) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Advance moves the clock forward by d, truncated to seconds.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += int64(d / time.Second)
	c.mu.Unlock()
}
