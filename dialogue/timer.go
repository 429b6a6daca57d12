package dialogue

import (
	"sync"
	"time"

	"github.com/goblimey/dockserver-relay/clock"
)

// Timer is an idle watchdog. It measures the time elapsed since the last
// Reset and, while active, reports timed-out once that exceeds the
// configured timeout. Timeout accounting is driven by an injected
// clock.Clock so tests can move time forward deterministically instead of
// sleeping for real.
type Timer struct {
	timeout time.Duration
	clk     clock.Clock

	mutex     sync.Mutex
	active    bool
	lastReset time.Time
}

// NewTimer creates a Timer with the given timeout, ticking against clk.
func NewTimer(timeout time.Duration, clk clock.Clock) *Timer {
	t := &Timer{
		timeout: timeout,
		clk:     clk,
	}
	t.Reset()
	return t
}

// Reset clears the elapsed time and marks the timer active.
func (t *Timer) Reset() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.lastReset = t.clk.Now()
	t.active = true
}

// DisableUntilReset stops the timer from ever reporting timed-out until the
// next Reset.
func (t *Timer) DisableUntilReset() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.active = false
}

// IsTimedOut reports whether the timer is active and its elapsed time
// exceeds the configured timeout.
func (t *Timer) IsTimedOut() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if !t.active {
		return false
	}
	elapsed := t.clk.Now().Sub(t.lastReset)
	return elapsed > t.timeout
}
