package trading

import (
	"sync"
	"time"
)

// Clock abstracts time so backtest mode can drive the identical component
// graph with simulated timestamps.
type Clock interface {
	Now() time.Time
}

// RealClock reads the wall clock.
type RealClock struct{}

// Now returns the current wall time.
func (RealClock) Now() time.Time { return time.Now() }

// SimClock is a manually advanced clock for backtests and tests.
type SimClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewSimClock creates a simulated clock starting at t.
func NewSimClock(t time.Time) *SimClock {
	return &SimClock{now: t}
}

// Now returns the simulated time.
func (c *SimClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set moves the simulated time.
func (c *SimClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
