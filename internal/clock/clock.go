// Package clock abstracts the time operations the send loop depends on so
// tests can run without real waits.
package clock

import (
	"sync"
	"time"
)

// Clock is the subset of the time package used by the throttle.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Fake is a deterministic Clock. After never blocks: it advances the fake
// time by d and fires immediately, recording every wait for inspection.
type Fake struct {
	mu      sync.Mutex
	current time.Time
	waits   []time.Duration
}

// NewFake returns a Fake starting at initial.
func NewFake(initial time.Time) *Fake {
	return &Fake{current: initial}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d > 0 {
		f.current = f.current.Add(d)
	}
	f.waits = append(f.waits, d)
	ch := make(chan time.Time, 1)
	ch <- f.current
	return ch
}

// Advance moves the fake time forward without recording a wait.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

// Waits returns the durations passed to After, in call order.
func (f *Fake) Waits() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.waits...)
}
