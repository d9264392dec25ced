// Package clock provides an injectable time source so that reload, cooldown
// and round timers can run against simulated time in tests.
package clock

import "time"

// Timer is a one-shot timer armed via Clock.AfterFunc.
type Timer interface {
	// Stop prevents the timer from firing. It reports whether it stopped the
	// timer before it fired.
	Stop() bool
}

// Ticker delivers ticks at a fixed interval.
type Ticker interface {
	// Chan returns the channel the ticks are delivered on.
	Chan() <-chan time.Time
	// Stop turns off the ticker.
	Stop()
}

// Clock is the time source used by all timed operations.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// AfterFunc arms a one-shot Timer that calls fn after the given duration.
	AfterFunc(d time.Duration, fn func()) Timer
	// NewTicker creates a Ticker with the given interval.
	NewTicker(d time.Duration) Ticker
}

// System returns a Clock backed by package time.
func System() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

func (systemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{ticker: time.NewTicker(d)}
}

type systemTicker struct {
	ticker *time.Ticker
}

func (t systemTicker) Chan() <-chan time.Time {
	return t.ticker.C
}

func (t systemTicker) Stop() {
	t.ticker.Stop()
}
