// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/boxvisor/lib/hostsync"
	"github.com/bureau-foundation/boxvisor/lib/pool"
)

// RegisterTargets declares that the calling thread serves targets and
// returns the handle to pass to WaitForCall.
func (b *Box) RegisterTargets(targets []Target) (Handle, error) {
	if len(targets) == 0 {
		return Handle(pool.SlotInvalid), fmt.Errorf("rpc: register: no targets")
	}
	functions := make([]FunctionID, len(targets))
	handlers := make([]Handler, len(targets))
	for i, target := range targets {
		if target.Function == 0 || target.Handler == nil {
			return Handle(pool.SlotInvalid), fmt.Errorf("rpc: register: target %d needs a function id and a handler", i)
		}
		functions[i] = target.Function
		handlers[i] = target.Handler
	}

	slot := b.groups.Allocate(0)
	if slot == pool.SlotInvalid {
		return Handle(pool.SlotInvalid), ErrNoGroupSlot
	}
	group := b.groups.At(slot)
	group.Functions = functions
	group.handlers = handlers
	// Any wakeups left over from a previous registration are stale.
	for group.semaphore.TryPend() {
	}
	group.ready.Store(true)

	b.logger.Debug("registered function group", "handle", slot, "functions", functions)
	return Handle(slot), nil
}

// Unregister withdraws a function group.
func (b *Box) Unregister(handle Handle) error {
	group, err := b.group(handle)
	if err != nil {
		return err
	}
	group.ready.Store(false)
	b.groups.Free(pool.Slot(handle))
	return nil
}

func (b *Box) group(handle Handle) (*FnGroup, error) {
	slot := pool.Slot(handle)
	group := b.groups.At(slot)
	if group == nil {
		return nil, fmt.Errorf("%w: %d", ErrBadHandle, handle)
	}
	if state, _ := b.groups.State(slot); state == pool.StateFree || !group.Ready() {
		return nil, fmt.Errorf("%w: %d", ErrBadHandle, handle)
	}
	return group, nil
}

// WaitForCall serves one incoming call for the group named by handle,
// waiting up to timeout for one to arrive. A call already waiting in
// the to-do queue is served without blocking. Returns ErrTimeout when
// nothing arrived.
func (b *Box) WaitForCall(handle Handle, timeout time.Duration) error {
	group, err := b.group(handle)
	if err != nil {
		return err
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = b.clock.Now().Add(timeout)
	}
	for {
		if b.serveOne(group) {
			return nil
		}

		remaining := timeout
		if timeout > 0 {
			remaining = deadline.Sub(b.clock.Now())
			if remaining <= 0 {
				return ErrTimeout
			}
		}
		if timeout == 0 {
			return ErrTimeout
		}
		// Wakeups are broadcast to every group serving the function, so
		// being woken does not guarantee there is work left for us.
		if err := group.semaphore.Pend(remaining); err != nil {
			if errors.Is(err, hostsync.ErrTimeout) {
				// One last look: a call may have arrived with its wakeup
				// absorbed by an overflowing semaphore.
				if b.serveOne(group) {
					return nil
				}
				return ErrTimeout
			}
			return err
		}
	}
}

// serveOne takes the first to-do call the group serves, runs it, and
// puts it on the done queue. Reports whether a call was served.
func (b *Box) serveOne(group *FnGroup) bool {
	for {
		slot := b.todo.FindFirst(func(_ pool.Slot, message *Message) bool {
			return group.Serves(message.Function)
		})
		if slot == pool.SlotInvalid {
			return false
		}
		// Another thread serving the same function may take it between
		// the find and the dequeue; look again.
		if b.todo.Dequeue(slot) != slot {
			continue
		}

		message := b.todo.At(slot)
		handler := group.handler(message.Function)
		message.SetResult(handler(Call{
			Caller:   message.OtherBox(),
			Function: message.Function,
			Args:     message.Args,
		}))
		if got := b.done.Enqueue(slot); got != slot {
			b.logger.Error("done enqueue failed", "slot", slot, "returned", got)
		}
		return true
	}
}
