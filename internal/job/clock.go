package job

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts wall time so the poll loop's interval schedule and timeout
// budget are testable with a fake.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock is the production clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FakeClock is a manually advanced clock for tests. Sleepers block until
// Advance moves the clock past their deadline.
type FakeClock struct {
	mu       sync.Mutex
	cond     *sync.Cond
	now      time.Time
	sleepers int
	entered  int
	sleeps   []time.Duration
}

func NewFakeClock(start time.Time) *FakeClock {
	c := &FakeClock{now: start}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	deadline := c.now.Add(d)
	c.sleepers++
	c.entered++
	c.sleeps = append(c.sleeps, d)
	c.cond.Broadcast()
	for c.now.Before(deadline) {
		if ctx.Err() != nil {
			break
		}
		c.cond.Wait()
	}
	c.sleepers--
	c.cond.Broadcast()
	c.mu.Unlock()
	return ctx.Err()
}

// Advance moves the clock forward and wakes any sleeper whose deadline has
// passed.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.cond.Broadcast()
	c.mu.Unlock()
}

// AwaitSleepers blocks until the clock has seen at least n Sleep calls in
// total. The cumulative count makes back-to-back await/advance sequences
// deterministic regardless of when earlier sleepers finish waking.
func (c *FakeClock) AwaitSleepers(n int) {
	c.mu.Lock()
	for c.entered < n {
		c.cond.Wait()
	}
	c.mu.Unlock()
}

// SleepDurations returns the duration requested by every Sleep call so far,
// in call order.
func (c *FakeClock) SleepDurations() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}
