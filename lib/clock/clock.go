// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts time for testability. Production code injects
// Real(); tests inject Fake().
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTimer returns a Timer that delivers the current time on C
	// once d has elapsed. If d <= 0 the timer fires immediately.
	NewTimer(d time.Duration) *Timer

	// NewTicker returns a Ticker delivering ticks every d. Panics if
	// d <= 0.
	NewTicker(d time.Duration) *Ticker

	// Sleep pauses the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Timer is a one-shot timer. Callers that stop waiting before the
// timer fires must call Stop so a fake clock does not keep counting
// the timer as pending.
type Timer struct {
	// C receives the fire time. Buffered with capacity 1.
	C <-chan time.Time

	stopFunc func() bool
}

// Stop prevents the timer from firing. Returns false if the timer had
// already fired or been stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }

// Ticker delivers periodic ticks on C. Ticks are dropped when the
// consumer falls behind, matching time.Ticker.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop turns off the ticker. C is not closed.
func (t *Ticker) Stop() { t.stopFunc() }
