package clock

import (
	"sync"
	"time"
)

// StoppedClock is a Clock that always returns the same time, until SetTime
// is called to move it.
type StoppedClock struct {
	mutex sync.Mutex
	time  time.Time
}

var _ Clock = (*StoppedClock)(nil)

// NewStoppedClock creates a StoppedClock fixed at the given time.
func NewStoppedClock(t time.Time) *StoppedClock {
	return &StoppedClock{time: t}
}

// SetTime moves the clock to a new fixed time.
func (c *StoppedClock) SetTime(t time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.time = t
}

// Advance moves the clock forward by d.
func (c *StoppedClock) Advance(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.time = c.time.Add(d)
}

// Now always returns the clock's current fixed time.
func (c *StoppedClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.time
}
