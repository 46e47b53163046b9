package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a deterministic Clock. Time only moves when Advance is
// called. AfterFunc callbacks run synchronously inside Advance, in
// deadline order; a callback must not call Advance itself.
//
// FakeClock is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*waiter
	changed *sync.Cond
}

type waiter struct {
	deadline time.Time
	fn       func()         // AfterFunc waiters
	ch       chan time.Time // ticker waiters
	every    time.Duration  // non-zero for tickers
	done     bool           // stopped or fired
}

// Fake returns a FakeClock set to start.
func Fake(start time.Time) *FakeClock {
	c := &FakeClock{now: start}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc registers f to run once the clock passes now+d. A
// non-positive d still waits for the next Advance.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	w := &waiter{fn: f}
	c.add(w, d)
	return &Timer{stop: func() bool { return c.cancel(w) }}
}

// NewTicker registers a periodic waiter. Panics if d <= 0.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	ch := make(chan time.Time, 1)
	w := &waiter{ch: ch, every: d}
	c.add(w, d)
	return &Ticker{C: ch, stop: func() { c.cancel(w) }}
}

func (c *FakeClock) add(w *waiter, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w.deadline = c.now.Add(d)
	c.pending = append(c.pending, w)
	c.changed.Broadcast()
}

func (c *FakeClock) cancel(w *waiter) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w.done {
		return false
	}
	w.done = true
	c.changed.Broadcast()
	return true
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline falls within the new time. A ticker spanning several
// intervals fires once per interval, dropping ticks its buffer cannot hold.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		due := c.expire(target)
		if len(due) == 0 {
			return
		}
		for _, w := range due {
			if w.fn != nil {
				w.fn()
				continue
			}
			select {
			case w.ch <- target:
			default:
			}
		}
	}
}

// expire removes due waiters from the pending list, reschedules tickers,
// and returns the waiters to fire sorted by deadline.
func (c *FakeClock) expire(target time.Time) []*waiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, keep []*waiter
	for _, w := range c.pending {
		switch {
		case w.done:
		case w.deadline.After(target):
			keep = append(keep, w)
		default:
			due = append(due, w)
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})

	for _, w := range due {
		if w.every > 0 {
			w.deadline = w.deadline.Add(w.every)
			keep = append(keep, w)
		} else {
			w.done = true
		}
	}

	c.pending = keep
	c.changed.Broadcast()
	return due
}

// PendingCount returns the number of armed timers and tickers.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

// WaitForTimers blocks until at least n timers or tickers are armed.
// It closes the race between a goroutine registering a timer and the
// test advancing past it.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.changed.Wait()
	}
}

func (c *FakeClock) pendingLocked() int {
	n := 0
	for _, w := range c.pending {
		if !w.done {
			n++
		}
	}
	return n
}
