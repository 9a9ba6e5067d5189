package calendar

import "time"

// Clock supplies the current instant. Only trigger boundaries read it; the
// matching code takes a Date.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant. Useful in tests and for
// replaying a past run date.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }
