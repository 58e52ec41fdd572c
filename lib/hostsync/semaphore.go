// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hostsync

import (
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/boxvisor/lib/clock"
)

// WaitForever is the timeout that never expires.
const WaitForever time.Duration = -1

var (
	// ErrTimeout is returned when a pend or acquire gives up.
	ErrTimeout = errors.New("hostsync: timed out")

	// ErrOverflow is returned by Post on a semaphore already holding
	// its maximum count.
	ErrOverflow = errors.New("hostsync: semaphore count at maximum")
)

// Semaphore is a counting semaphore bounded by a maximum count.
type Semaphore struct {
	clock  clock.Clock
	tokens chan struct{}
}

// NewSemaphore returns a semaphore holding initial tokens out of max.
func NewSemaphore(clk clock.Clock, initial, max int) (*Semaphore, error) {
	if max <= 0 || initial < 0 || initial > max {
		return nil, fmt.Errorf("hostsync: invalid semaphore count %d/%d", initial, max)
	}
	semaphore := &Semaphore{clock: clk, tokens: make(chan struct{}, max)}
	for range initial {
		semaphore.tokens <- struct{}{}
	}
	return semaphore, nil
}

// Pend takes one token, waiting up to timeout for one to be posted.
func (s *Semaphore) Pend(timeout time.Duration) error {
	return take(s.clock, s.tokens, timeout)
}

// TryPend takes one token if one is available.
func (s *Semaphore) TryPend() bool {
	select {
	case <-s.tokens:
		return true
	default:
		return false
	}
}

// Post returns one token, waking a single pending waiter.
func (s *Semaphore) Post() error {
	select {
	case s.tokens <- struct{}{}:
		return nil
	default:
		return ErrOverflow
	}
}

// Count returns the number of tokens currently available.
func (s *Semaphore) Count() int {
	return len(s.tokens)
}

func take(clk clock.Clock, tokens <-chan struct{}, timeout time.Duration) error {
	// A ready token wins even when the timeout is zero.
	select {
	case <-tokens:
		return nil
	default:
	}

	switch {
	case timeout == 0:
		return ErrTimeout
	case timeout < 0:
		<-tokens
		return nil
	}

	timer := clk.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-tokens:
		return nil
	case <-timer.C:
		return ErrTimeout
	}
}
