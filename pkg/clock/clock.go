// Package clock supplies the time source for hold expiry and payment
// deadlines. Production code uses Real; tests drive a Fake.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// Real returns the wall clock in UTC.
func Real() Clock { return realClock{} }

// Fake is a manually advanced clock.
type Fake struct {
	mu      sync.Mutex
	current time.Time
}

// NewFake returns a clock fixed at start. A zero start uses a fixed
// reference instant so test output is stable.
func NewFake(start time.Time) *Fake {
	if start.IsZero() {
		start = time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	}
	return &Fake{current: start}
}

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward and returns the new time.
func (c *Fake) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}

func (c *Fake) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}
