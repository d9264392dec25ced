package clock

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Clock that only moves when Advance is called. Due timers fire
// synchronously within Advance, in deadline order. Intended for tests.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*manualTimer
	tickers []*manualTicker
}

// NewManual creates a Manual clock starting at the given time.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current simulated time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc arms a timer firing after d simulated time.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{
		clock:    m,
		deadline: m.now.Add(d),
		fn:       fn,
	}
	m.timers = append(m.timers, t)
	return t
}

// NewTicker creates a ticker delivering one tick per elapsed interval during
// Advance. The tick channel is buffered so that Advance never blocks when
// nobody is draining it yet.
func (m *Manual) NewTicker(d time.Duration) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTicker{
		clock:    m,
		interval: d,
		next:     m.now.Add(d),
		c:        make(chan time.Time, 64),
	}
	m.tickers = append(m.tickers, t)
	return t
}

// Advance moves the simulated time forward by d and fires everything that
// became due, in deadline order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	for {
		next, ok := m.nextDeadlineLocked(target)
		if !ok {
			break
		}
		m.now = next
		m.fireDueLocked()
	}
	m.now = target
	m.mu.Unlock()
}

// nextDeadlineLocked returns the earliest pending timer or ticker deadline
// that is not after the given limit.
func (m *Manual) nextDeadlineLocked(limit time.Time) (time.Time, bool) {
	var deadlines []time.Time
	for _, t := range m.timers {
		if !t.stopped && !t.fired && !t.deadline.After(limit) {
			deadlines = append(deadlines, t.deadline)
		}
	}
	for _, t := range m.tickers {
		if !t.stopped && !t.next.After(limit) {
			deadlines = append(deadlines, t.next)
		}
	}
	if len(deadlines) == 0 {
		return time.Time{}, false
	}
	sort.Slice(deadlines, func(i, j int) bool { return deadlines[i].Before(deadlines[j]) })
	return deadlines[0], true
}

// fireDueLocked fires all timers and tickers due at the current time. Timer
// functions run without the clock lock held so they may arm new timers.
func (m *Manual) fireDueLocked() {
	var due []func()
	for _, t := range m.timers {
		if !t.stopped && !t.fired && !t.deadline.After(m.now) {
			t.fired = true
			due = append(due, t.fn)
		}
	}
	for _, t := range m.tickers {
		for !t.stopped && !t.next.After(m.now) {
			select {
			case t.c <- t.next:
			default:
			}
			t.next = t.next.Add(t.interval)
		}
	}
	m.mu.Unlock()
	for _, fn := range due {
		fn()
	}
	m.mu.Lock()
}

type manualTimer struct {
	clock    *Manual
	deadline time.Time
	fn       func()
	fired    bool
	stopped  bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

type manualTicker struct {
	clock    *Manual
	interval time.Duration
	next     time.Time
	c        chan time.Time
	stopped  bool
}

func (t *manualTicker) Chan() <-chan time.Time {
	return t.c
}

func (t *manualTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}
