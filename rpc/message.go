// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"errors"
	"slices"
	"sync/atomic"

	"github.com/bureau-foundation/boxvisor/lib/hostsync"
	"github.com/bureau-foundation/boxvisor/lib/memmap"
	"github.com/bureau-foundation/boxvisor/lib/pool"
)

// Message is one call descriptor. The same type backs outgoing slots
// (written by the caller, read by the monitor) and incoming slots
// (written by the monitor, served by the callee).
//
// Args, Gateway, and Function change hands only through a queue
// operation, which orders the writes. The cross-reference fields, the
// cookies, the lifecycle, and the result are read by the monitor while
// the owning box may be acting on the same slot, so they are atomic.
type Message struct {
	Args [4]uint32

	// Gateway is the caller's claimed gateway address. Outgoing only.
	Gateway memmap.Addr

	// Function is the validated target. Incoming only.
	Function FunctionID

	otherBox    atomic.Int32
	otherSlot   atomic.Uint32
	waitCookie  atomic.Uint32
	matchCookie atomic.Uint32
	state       atomic.Uint32
	result      atomic.Uint32

	// done is posted by the monitor when the result is in. Outgoing only.
	done *hostsync.Semaphore
}

// OtherBox is the box on the far side of the call: the callee for an
// outgoing message, the caller for an incoming one.
func (m *Message) OtherBox() BoxID { return BoxID(m.otherBox.Load()) }

// SetOtherBox stores the far-side box.
func (m *Message) SetOtherBox(id BoxID) { m.otherBox.Store(int32(id)) }

// OtherSlot is the slot holding the far side's copy of the call.
func (m *Message) OtherSlot() pool.Slot { return pool.Slot(m.otherSlot.Load()) }

// SetOtherSlot stores the far side's slot.
func (m *Message) SetOtherSlot(slot pool.Slot) { m.otherSlot.Store(uint32(slot)) }

// MatchCookie is the cookie the call was issued under.
func (m *Message) MatchCookie() Cookie { return Cookie(m.matchCookie.Load()) }

// SetMatchCookie stores the call's cookie.
func (m *Message) SetMatchCookie(cookie Cookie) { m.matchCookie.Store(uint32(cookie)) }

// WaitCookie is the live cookie a waiter must present. It is the match
// cookie until the first waiter consumes it.
func (m *Message) WaitCookie() Cookie { return Cookie(m.waitCookie.Load()) }

// State returns the call's lifecycle.
func (m *Message) State() Lifecycle { return Lifecycle(m.state.Load()) }

// SetState stores the call's lifecycle.
func (m *Message) SetState(state Lifecycle) { m.state.Store(uint32(state)) }

// Result returns the callee's return value.
func (m *Message) Result() uint32 { return m.result.Load() }

// SetResult stores the callee's return value.
func (m *Message) SetResult(value uint32) { m.result.Store(value) }

// Signal posts the completion semaphore. Incoming messages have none
// and Signal is a no-op for them.
func (m *Message) Signal() error {
	if m.done == nil {
		return nil
	}
	return m.done.Post()
}

// consumeWaitCookie swaps the live cookie for its invalidated form.
// Only one caller ever wins for a given cookie.
func (m *Message) consumeWaitCookie(cookie Cookie) bool {
	return m.waitCookie.CompareAndSwap(uint32(cookie), uint32(cookie.Invalidated()))
}

// reset prepares an outgoing slot for a new call.
func (m *Message) reset(gateway memmap.Addr, args [4]uint32, cookie Cookie) {
	m.Args = args
	m.Gateway = gateway
	m.Function = 0
	m.SetOtherBox(NoBox)
	m.SetOtherSlot(pool.SlotInvalid)
	m.SetResult(0)
	m.SetState(LifecycleIdle)
	// A completion posted for a previous occupant of the slot must not
	// satisfy this call's wait.
	if m.done != nil {
		for m.done.TryPend() {
		}
	}
	m.SetMatchCookie(cookie)
	m.waitCookie.Store(uint32(cookie))
}

// Handler serves one call.
type Handler func(Call) uint32

// Call is what a handler sees of an incoming call.
type Call struct {
	Caller   BoxID
	Function FunctionID
	Args     [4]uint32
}

// Target binds a function id to the handler serving it.
type Target struct {
	Function FunctionID
	Handler  Handler
}

// Handle identifies a registered function group.
type Handle pool.Slot

// FnGroup is one thread's registration: the functions it serves and the
// semaphore it waits on. The monitor only looks at groups marked ready,
// and a group is marked ready after its function list is in place.
type FnGroup struct {
	Functions []FunctionID

	handlers  []Handler
	semaphore *hostsync.Semaphore
	ready     atomic.Bool
}

// Ready reports whether registration has completed.
func (g *FnGroup) Ready() bool { return g.ready.Load() }

// Serves reports whether function is in the group.
func (g *FnGroup) Serves(function FunctionID) bool {
	return slices.Contains(g.Functions, function)
}

// Wake posts the group's semaphore. A group already holding the maximum
// number of pending wakeups absorbs the post.
func (g *FnGroup) Wake() error {
	if g.semaphore == nil {
		return nil
	}
	if err := g.semaphore.Post(); err != nil && !errors.Is(err, hostsync.ErrOverflow) {
		return err
	}
	return nil
}

func (g *FnGroup) handler(function FunctionID) Handler {
	index := slices.Index(g.Functions, function)
	if index < 0 {
		return nil
	}
	return g.handlers[index]
}
