// Package clock provides a clock service as an alternative to using the
// standard time package directly. Production code takes a Clock and calls
// Now() on it; in production that's the system clock, in tests it can be a
// clock whose value is under the test's control. This lets time-driven
// components such as the dialogue idle Timer be tested without sleeping
// for real.
package clock

import "time"

// Clock yields the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock satisfies Clock by returning the real system time.
type SystemClock struct{}

// NewSystemClock creates a system clock and returns it as a Clock.
func NewSystemClock() Clock {
	return SystemClock{}
}

// Now returns the system time.
func (c SystemClock) Now() time.Time {
	return time.Now()
}
