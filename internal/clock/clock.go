// Package clock abstracts the timer operations the agent schedules
// (reversion timers, heartbeat tickers, reconnect backoff) so that tests
// can drive them deterministically.
//
// Production code injects Real(); tests inject Fake() and call Advance.
package clock

import "time"

// Clock is the subset of the time package the agent depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc waits for d, then calls f. The returned Timer cancels
	// the pending call with Stop.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker returns a Ticker delivering ticks every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Timer is a cancellable scheduled call.
type Timer struct {
	stop func() bool
}

// Stop prevents the Timer from firing. It reports whether the call
// stopped the timer (false if it had already fired or been stopped).
func (t *Timer) Stop() bool { return t.stop() }

// Ticker delivers periodic ticks on C. C has capacity 1; ticks are
// dropped when the consumer falls behind.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns off the ticker. C is not closed.
func (t *Ticker) Stop() { t.stop() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stop: t.Stop}
}

func (realClock) NewTicker(d time.Duration) *Ticker {
	t := time.NewTicker(d)
	return &Ticker{C: t.C, stop: t.Stop}
}
