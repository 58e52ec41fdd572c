// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/bureau-foundation/boxvisor/lib/hostsync"
	"github.com/bureau-foundation/boxvisor/lib/memmap"
	"github.com/bureau-foundation/boxvisor/lib/pool"
)

// syncPollInterval bounds each wait inside CallSyncContext so that
// cancellation is noticed.
const syncPollInterval = 10 * time.Millisecond

// send allocates an outgoing slot, fills it, and enqueues it.
func (b *Box) send(gateway memmap.Addr, args [4]uint32, timeout time.Duration) (Cookie, error) {
	slot := b.outgoing.Allocate(timeout)
	if slot == pool.SlotInvalid {
		return 0, ErrNoSlot
	}
	cookie := b.nextCookie(slot)
	b.outgoing.At(slot).reset(gateway, args, cookie)
	if got := b.outgoing.Enqueue(slot); got != slot {
		return 0, fmt.Errorf("rpc: enqueue of fresh slot %s returned %s", slot, got)
	}
	return cookie, nil
}

// nextCookie bumps the box's counter, skipping the zero value on wrap.
func (b *Box) nextCookie(slot pool.Slot) Cookie {
	for {
		if counter := b.counter.Add(CookieIncrement); counter != 0 {
			return NewCookie(counter, slot)
		}
	}
}

// CallSync calls the target behind gateway and returns its result. It
// cannot fail: a full outgoing queue is waited out and the result is
// waited for indefinitely.
func (b *Box) CallSync(gateway memmap.Addr, p0, p1, p2, p3 uint32) uint32 {
	result, _ := b.CallSyncContext(context.Background(), gateway, p0, p1, p2, p3)
	return result
}

// CallSyncContext is CallSync that gives up when ctx is done. A call
// abandoned after it was sent keeps its outgoing slot.
func (b *Box) CallSyncContext(ctx context.Context, gateway memmap.Addr, p0, p1, p2, p3 uint32) (uint32, error) {
	args := [4]uint32{p0, p1, p2, p3}
	timeout := hostsync.WaitForever
	if ctx.Done() != nil {
		timeout = syncPollInterval
	}

	var cookie Cookie
	for {
		var err error
		cookie, err = b.send(gateway, args, timeout)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
	}

	message := b.outgoing.At(cookie.Slot())
	message.consumeWaitCookie(cookie)
	for message.done.Pend(timeout) != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
	}

	result := message.Result()
	if err := b.freeOutgoing(cookie.Slot()); err != nil {
		return result, err
	}
	return result, nil
}

// CallAsync sends a call and returns its cookie without waiting. Fails
// with ErrNoSlot when the outgoing queue is full.
func (b *Box) CallAsync(gateway memmap.Addr, p0, p1, p2, p3 uint32) (Cookie, error) {
	return b.send(gateway, [4]uint32{p0, p1, p2, p3}, 0)
}

// Wait waits up to timeout for the result of the call named by cookie
// and frees its slot. Only the first Wait on a cookie may proceed;
// later ones fail with ErrAlreadyWaited at once. After a timeout the
// cookie stays consumed and the caller frees the slot with Release.
func (b *Box) Wait(cookie Cookie, timeout time.Duration) (uint32, error) {
	message := b.outgoing.At(cookie.Slot())
	if message == nil || !cookie.Valid() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidCookie, cookie)
	}
	if !message.consumeWaitCookie(cookie) {
		return 0, fmt.Errorf("%w: %s", ErrAlreadyWaited, cookie)
	}

	if err := message.done.Pend(timeout); err != nil {
		b.logger.Debug("wait timed out", "cookie", cookie, "timeout", timeout)
		return 0, fmt.Errorf("%w: call %s after %s", ErrTimeout, cookie, timeout)
	}

	result := message.Result()
	if err := b.freeOutgoing(cookie.Slot()); err != nil {
		return result, err
	}
	return result, nil
}

// Release frees the slot of a call whose Wait timed out. A call still
// in the outgoing queue is withdrawn. A call the monitor has picked up
// can be released only once its result has arrived; until then Release
// returns ErrInFlight and the caller tries again later.
//
// A result that arrives after the Wait gave up is not a fault: the
// monitor returns it to the still-Sent slot as usual and Release then
// frees the slot. Only the slot is held until then.
func (b *Box) Release(cookie Cookie) error {
	slot := cookie.Slot()
	message := b.outgoing.At(slot)
	if message == nil || !cookie.Valid() || message.MatchCookie() != cookie {
		return fmt.Errorf("%w: %s", ErrInvalidCookie, cookie)
	}
	if message.WaitCookie() == cookie {
		return fmt.Errorf("rpc: release of %s: cookie not yet waited on", cookie)
	}

	switch got := b.outgoing.Dequeue(slot); got {
	case slot:
		// Withdrawn before the monitor saw it.
		message.SetState(LifecycleIdle)
		b.outgoing.Free(slot)
		return nil
	case pool.SlotIsFree:
		return fmt.Errorf("%w: %s already released", ErrInvalidCookie, cookie)
	case pool.SlotIsDequeued:
	default:
		return fmt.Errorf("rpc: release of %s: dequeue returned %s", cookie, got)
	}

	if message.State() != LifecycleDone {
		return fmt.Errorf("%w: %s is %s", ErrInFlight, cookie, message.State())
	}
	return b.freeOutgoing(slot)
}

// freeOutgoing returns a completed call's slot. The monitor dequeued it
// when delivering, so it must be in the dequeued state.
func (b *Box) freeOutgoing(slot pool.Slot) error {
	state, ok := b.outgoing.Pool().State(slot)
	if !ok || state != pool.StateDequeued {
		return fmt.Errorf("%w: slot %s is %s", ErrNotDequeued, slot, state)
	}
	message := b.outgoing.At(slot)
	message.SetState(LifecycleIdle)
	// The completion that woke us, or one that arrived after a timeout.
	message.done.TryPend()
	b.outgoing.Free(slot)
	return nil
}
