// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hostsync

import (
	"time"

	"github.com/bureau-foundation/boxvisor/lib/clock"
)

// Mutex is a binary lock with timed and try acquisition. It is not
// reentrant and not owner-checked.
type Mutex struct {
	clock clock.Clock
	held  chan struct{}
}

// NewMutex returns an unlocked mutex.
func NewMutex(clk clock.Clock) *Mutex {
	mutex := &Mutex{clock: clk, held: make(chan struct{}, 1)}
	mutex.held <- struct{}{}
	return mutex
}

// Acquire locks the mutex, waiting up to timeout.
func (m *Mutex) Acquire(timeout time.Duration) error {
	return take(m.clock, m.held, timeout)
}

// TryAcquire locks the mutex if it is free.
func (m *Mutex) TryAcquire() bool {
	select {
	case <-m.held:
		return true
	default:
		return false
	}
}

// Release unlocks the mutex. Releasing an unlocked mutex panics.
func (m *Mutex) Release() {
	select {
	case m.held <- struct{}{}:
	default:
		panic("hostsync: release of unlocked mutex")
	}
}
