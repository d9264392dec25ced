package gamesync

import (
	"sync"
	"time"

	"github.com/lefinal/spikematch/clock"
)

// DefaultMoveInterval is the minimum time between forwarded move intents,
// matching a 60 Hz input loop.
const DefaultMoveInterval = time.Second / 60

// IntentGate rate-limits repeated intents to a minimum interval. It keeps
// high-frequency input loops from flooding the connection: an intent arriving
// before the interval elapsed is simply not forwarded, the next one carries
// the latest state anyway.
type IntentGate struct {
	clock    clock.Clock
	interval time.Duration
	m        sync.Mutex
	last     time.Time
}

// NewIntentGate creates an IntentGate with the given minimum interval.
func NewIntentGate(clk clock.Clock, interval time.Duration) *IntentGate {
	return &IntentGate{
		clock:    clk,
		interval: interval,
	}
}

// Allow reports whether an intent may pass now and if so, consumes the
// interval.
func (gate *IntentGate) Allow() bool {
	gate.m.Lock()
	defer gate.m.Unlock()
	now := gate.clock.Now()
	if !gate.last.IsZero() && now.Sub(gate.last) < gate.interval {
		return false
	}
	gate.last = now
	return true
}
