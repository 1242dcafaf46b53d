// Package clock provides the timer capability used by pollster pollers.
//
// Pollers never call the time package directly. They schedule their next
// cycle through a [Clock], which lets tests substitute [Fake] and drive
// simulated time deterministically.
package clock

import "time"

// Timer is a pending callback created by [Clock.AfterFunc].
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer; it is safe to call on a fired or stopped timer.
	Stop() bool
}

// Clock schedules callbacks and reports the current time.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real returns a [Clock] backed by the time package.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
