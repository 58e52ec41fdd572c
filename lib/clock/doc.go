// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction.
//
// Every timeout in boxvisor (semaphore pends, mutex acquisition, the
// monitor's switch scheduler) runs on a Clock rather than on the time
// package directly. Production code uses Real(). Tests use Fake(),
// which only moves when Advance is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	semaphore := hostsync.NewSemaphore(c, 0, 1)
//	go func() { done <- semaphore.Pend(time.Second) }()
//	c.WaitForTimers(1)     // the pend has armed its timer
//	c.Advance(time.Second) // the pend times out deterministically
//
// WaitForTimers removes the race between a goroutine arming a timer and
// the test advancing time past it.
package clock
