package clock

import "time"

// FakeClock is a Clock pinned to a chosen instant. Tests move it with
// Advance to cross billing-day and session-expiry boundaries.
type FakeClock struct {
	now time.Time
}

// NewFakeClock pins the clock to t, normalized to UTC like the system
// clock.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
