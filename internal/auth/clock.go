package auth

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Clock abstracts time so the poll loop can run on simulated time in tests
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	NewTimer() backoff.Timer
}

type realClock struct{}

// SystemClock returns the wall clock
func SystemClock() Clock { return realClock{} }

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (realClock) NewTimer() backoff.Timer                { return &realTimer{} }

// realTimer implements backoff.Timer over time.Timer
type realTimer struct {
	timer *time.Timer
}

func (t *realTimer) C() <-chan time.Time {
	return t.timer.C
}

func (t *realTimer) Start(duration time.Duration) {
	if t.timer == nil {
		t.timer = time.NewTimer(duration)
	} else {
		t.timer.Reset(duration)
	}
}

func (t *realTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

// pollBackOff is a constant interval that only grows on slow_down
type pollBackOff struct {
	initial  time.Duration
	interval time.Duration
}

func newPollBackOff(interval time.Duration) *pollBackOff {
	return &pollBackOff{initial: interval, interval: interval}
}

func (b *pollBackOff) NextBackOff() time.Duration { return b.interval }

func (b *pollBackOff) Reset() { b.interval = b.initial }

func (b *pollBackOff) slowDown() { b.interval += SlowDownIncrement }
