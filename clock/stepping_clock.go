package clock

import (
	"sync"
	"time"
)

// SteppingClock is a Clock that returns a given series of time values, one
// at a time. Useful in a test case that drives a timer through a sequence
// of ticks.
type SteppingClock struct {
	mutex    sync.Mutex
	nextTime int
	times    []time.Time
}

var _ Clock = (*SteppingClock)(nil)

// NewSteppingClock creates a SteppingClock that returns each of the given
// times in turn. Once exhausted, it keeps returning the last value.
func NewSteppingClock(times []time.Time) *SteppingClock {
	return &SteppingClock{times: times}
}

// SetTimes replaces the array of times to return.
func (c *SteppingClock) SetTimes(times []time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.times = times
	c.nextTime = 0
}

// Now returns the next time value from the given array. If previous calls
// have reached the end of the array, it returns the last value again. If
// the array is empty, it returns the UNIX epoch.
func (c *SteppingClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if len(c.times) == 0 {
		return time.Unix(0, 0).UTC()
	}
	if c.nextTime >= len(c.times) {
		return c.times[len(c.times)-1]
	}
	result := c.times[c.nextTime]
	c.nextTime++
	return result
}
