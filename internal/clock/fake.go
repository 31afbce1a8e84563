package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a deterministic Clock. Time stands still until Advance is
// called; due callbacks then run synchronously in deadline order.
//
// Callbacks run without the clock's lock held, so they may schedule
// further callbacks, but they must not call Advance.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*fakeTimer
}

// Fake returns a FakeClock starting at initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

type fakeTimer struct {
	clock    *FakeClock
	deadline time.Time
	callback func()
	done     bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	timer := &fakeTimer{clock: c, deadline: c.current.Add(d), callback: f}
	if d > 0 {
		c.waiters = append(c.waiters, timer)
		c.mu.Unlock()
		return timer
	}
	timer.done = true
	c.mu.Unlock()
	f()
	return timer
}

// Advance moves the clock forward by d and fires every callback whose
// deadline is reached.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		sort.SliceStable(c.waiters, func(i, j int) bool {
			return c.waiters[i].deadline.Before(c.waiters[j].deadline)
		})
		var next *fakeTimer
		remaining := c.waiters[:0]
		for _, waiter := range c.waiters {
			if waiter.done {
				continue
			}
			if next == nil && !waiter.deadline.After(target) {
				next = waiter
				continue
			}
			remaining = append(remaining, waiter)
		}
		c.waiters = remaining
		if next == nil {
			c.current = target
			c.mu.Unlock()
			return
		}
		next.done = true
		c.current = next.deadline
		c.mu.Unlock()

		next.callback()
	}
}

// Pending reports how many callbacks are scheduled and not yet fired or
// stopped.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, waiter := range c.waiters {
		if !waiter.done {
			count++
		}
	}
	return count
}
