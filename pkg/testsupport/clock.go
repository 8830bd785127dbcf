package testsupport

import (
	"context"
	"sync"
	"time"
)

// Clock is a manually advanced clock for tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a Clock starting at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Sleeper records requested sleeps instead of blocking.
// When Clock is set, each sleep advances it.
type Sleeper struct {
	mu    sync.Mutex
	calls []time.Duration
	Clock *Clock
	// OnSleep, when set, runs after a sleep is recorded.
	OnSleep func(n int)
}

// Sleep records d and returns the context error, if any.
func (s *Sleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.calls = append(s.calls, d)
	n := len(s.calls)
	hook := s.OnSleep
	s.mu.Unlock()

	if s.Clock != nil {
		s.Clock.Advance(d)
	}
	if hook != nil {
		hook(n)
	}
	return ctx.Err()
}

// Calls returns the recorded sleep durations.
func (s *Sleeper) Calls() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.calls...)
}
