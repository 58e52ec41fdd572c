// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/boxvisor/lib/pool"
	"github.com/bureau-foundation/boxvisor/lib/tracelog"
	"github.com/bureau-foundation/boxvisor/rpc"
)

// MaxThreads is the capacity of the thread observer.
const MaxThreads = 20

// ErrNoThreadSlot is returned by ThreadCreate when MaxThreads threads
// are already known.
var ErrNoThreadSlot = errors.New("monitor: thread table full")

type threadContext struct {
	box    rpc.BoxID
	thread uint32
}

// ThreadCreate records a new thread of box and returns the handle the
// scheduler passes to ThreadSwitch.
func (m *Monitor) ThreadCreate(box rpc.BoxID, thread uint32) (pool.Slot, error) {
	if err := m.Err(); err != nil {
		return pool.SlotInvalid, err
	}
	if _, ok := m.box(box); !ok {
		return pool.SlotInvalid, fmt.Errorf("%w: %s", ErrUnknownBox, box)
	}
	handle := m.threads.Allocate(0)
	if handle == pool.SlotInvalid {
		return pool.SlotInvalid, fmt.Errorf("%w: %d threads", ErrNoThreadSlot, MaxThreads)
	}
	*m.threads.At(handle) = threadContext{box: box, thread: thread}

	m.logger.Debug("thread created", "box", box, "thread", thread, "handle", handle)
	m.record(tracelog.Entry{
		Kind:       tracelog.KindThreadCreate,
		Caller:     int32(box),
		Callee:     int32(rpc.NoBox),
		CallerSlot: uint8(handle),
		CalleeSlot: uint8(pool.SlotInvalid),
		Detail:     fmt.Sprintf("thread %d", thread),
	})
	return handle, nil
}

// ThreadDestroy forgets a thread. A thread ends from its own box, so
// handle must name a live thread of the active box. A handle that does
// not is a forged thread context and halts the monitor.
func (m *Monitor) ThreadDestroy(handle pool.Slot) error {
	if err := m.Err(); err != nil {
		return err
	}
	active := m.BoxIDSelf()
	thread, err := m.thread(active, handle)
	if err != nil {
		return m.halt(err)
	}
	if thread.box != active {
		return m.halt(newFault(FaultStructure, active, pool.SlotInvalid,
			"thread handle %s belongs to %s, not the active box", handle, thread.box))
	}
	if got := m.threads.Free(handle); got != handle {
		return m.halt(newFault(FaultStructure, active, pool.SlotInvalid,
			"thread handle %s: free returned %s", handle, got))
	}

	m.logger.Debug("thread destroyed", "box", active, "thread", thread.thread, "handle", handle)
	m.record(tracelog.Entry{
		Kind:       tracelog.KindThreadDestroy,
		Caller:     int32(active),
		Callee:     int32(rpc.NoBox),
		CallerSlot: uint8(handle),
		CalleeSlot: uint8(pool.SlotInvalid),
		Detail:     fmt.Sprintf("thread %d", thread.thread),
	})
	return nil
}

// ThreadSwitch makes the thread named by handle current: it switches
// the protection context to the thread's box and then drains that
// box's outgoing and done queues. A handle that names no live thread
// halts the monitor.
func (m *Monitor) ThreadSwitch(handle pool.Slot) error {
	if err := m.Err(); err != nil {
		return err
	}
	from := m.BoxIDSelf()
	thread, err := m.thread(from, handle)
	if err != nil {
		return m.halt(err)
	}

	if m.switcher != nil && from != thread.box {
		if err := m.switcher.Switch(from, thread.box); err != nil {
			return fmt.Errorf("monitor: switching %s to %s: %w", from, thread.box, err)
		}
	}
	m.active.Store(int32(thread.box))

	if err := m.DrainMessageQueue(thread.box); err != nil {
		return err
	}
	return m.DrainResultQueue(thread.box)
}

// thread returns the live context behind handle. The fault, if any, is
// charged to active, the box that presented the handle.
func (m *Monitor) thread(active rpc.BoxID, handle pool.Slot) (threadContext, *Fault) {
	context := m.threads.At(handle)
	if context == nil {
		return threadContext{}, newFault(FaultStructure, active, pool.SlotInvalid, "thread handle %s out of range", handle)
	}
	if state, _ := m.threads.State(handle); state == pool.StateFree {
		return threadContext{}, newFault(FaultStructure, active, pool.SlotInvalid, "thread handle %s is not live", handle)
	}
	return *context, nil
}

// Threads returns the number of live threads.
func (m *Monitor) Threads() int {
	return m.threads.NumAllocated()
}
