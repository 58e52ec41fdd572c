// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"github.com/bureau-foundation/boxvisor/lib/pool"
	"github.com/bureau-foundation/boxvisor/lib/tracelog"
	"github.com/bureau-foundation/boxvisor/rpc"
)

// DrainMessageQueue delivers the calls waiting in box id's outgoing
// queue. A call whose callee cannot take it right now goes back to the
// tail of the outgoing queue; the pass ends when the queue is empty,
// when it is busy, or when the first call that was put back comes
// round again.
func (m *Monitor) DrainMessageQueue(id rpc.BoxID) error {
	if err := m.Err(); err != nil {
		return err
	}
	m.drainMu.Lock()
	defer m.drainMu.Unlock()

	box, outgoing, err := m.resolveOutgoing(id)
	if err != nil {
		return m.haltOn(err)
	}
	if !m.settlePutBacks(box, outgoing) {
		return nil
	}

	firstBounced := pool.SlotInvalid
	// A box enqueuing while we drain could otherwise keep us here.
	for range 2 * outgoing.Pool().Num() {
		slot, ok := outgoing.TryDequeueFirst()
		if !ok || slot == pool.SlotInvalid {
			return nil
		}
		if slot == firstBounced {
			m.putBack(box, outgoing, slot)
			return nil
		}

		delivered, err := m.deliver(box, outgoing, slot)
		if err != nil {
			return m.haltOn(err)
		}
		if !delivered {
			if !m.putBack(box, outgoing, slot) {
				return nil
			}
			if firstBounced == pool.SlotInvalid {
				firstBounced = slot
			}
		}
	}
	return nil
}

// deliver copies the call in caller's outgoing slot into the callee.
// It reports false, with the caller's slot untouched, when the callee
// has no room or its queue is busy.
func (m *Monitor) deliver(caller BoxConfig, outgoing *pool.Queue[rpc.Message], slot pool.Slot) (bool, error) {
	message := outgoing.At(slot)
	gw, err := m.validateGateway(caller.ID, slot, message.Gateway)
	if err != nil {
		return false, err
	}
	dest, err := m.resolveCallee(gw.Box)
	if err != nil {
		return false, err
	}

	incoming, ok := dest.todo.TryAllocate()
	if !ok {
		m.bounce(caller.ID, gw.Box, slot, message, "callee queue busy")
		return false, nil
	}
	if incoming == pool.SlotInvalid {
		m.bounce(caller.ID, gw.Box, slot, message, "callee queue full")
		return false, nil
	}

	cookie := message.MatchCookie()
	copied := dest.todo.At(incoming)
	copied.Args = message.Args
	copied.Gateway = message.Gateway
	copied.Function = gw.Function
	copied.SetOtherBox(caller.ID)
	copied.SetOtherSlot(slot)
	copied.SetMatchCookie(cookie)
	copied.SetResult(0)
	copied.SetState(rpc.LifecycleSent)

	message.SetOtherBox(gw.Box)
	message.SetOtherSlot(incoming)
	message.SetState(rpc.LifecycleSent)

	enqueued := spin(func() bool {
		got, ok := dest.todo.TryEnqueue(incoming)
		return ok && got == incoming
	})
	if !enqueued {
		copied.SetState(rpc.LifecycleIdle)
		m.freeIncoming(dest, incoming)
		message.SetOtherBox(rpc.NoBox)
		message.SetOtherSlot(pool.SlotInvalid)
		message.SetState(rpc.LifecycleIdle)
		m.bounce(caller.ID, gw.Box, slot, message, "callee queue stayed busy")
		return false, nil
	}

	m.wakeHandlers(dest, gw.Function)

	m.delivered.Add(1)
	m.logger.Debug("call delivered",
		"caller", caller.ID,
		"callee", gw.Box,
		"caller_slot", slot,
		"callee_slot", incoming,
		"function", gw.Function,
		"cookie", cookie,
	)
	m.record(tracelog.Entry{
		Kind:       tracelog.KindDeliver,
		Caller:     int32(caller.ID),
		Callee:     int32(gw.Box),
		CallerSlot: uint8(slot),
		CalleeSlot: uint8(incoming),
		Cookie:     uint32(cookie),
		Function:   uint32(gw.Function),
	})
	return true, nil
}

func (m *Monitor) bounce(caller, callee rpc.BoxID, slot pool.Slot, message *rpc.Message, reason string) {
	m.bounced.Add(1)
	m.logger.Debug("call bounced", "caller", caller, "callee", callee, "caller_slot", slot, "reason", reason)
	m.record(tracelog.Entry{
		Kind:       tracelog.KindBounce,
		Caller:     int32(caller),
		Callee:     int32(callee),
		CallerSlot: uint8(slot),
		CalleeSlot: uint8(pool.SlotInvalid),
		Cookie:     uint32(message.MatchCookie()),
		Detail:     reason,
	})
}

// putBack returns a call the monitor just dequeued to the tail of the
// outgoing queue. The monitor never waits on a box-held lock: when the
// queue stays busy past the spin the slot is parked, still dequeued and
// owned by the monitor, and putBack reports false. The next pass over
// the box enqueues it before draining.
func (m *Monitor) putBack(box BoxConfig, outgoing *pool.Queue[rpc.Message], slot pool.Slot) bool {
	got := pool.SlotInvalid
	if spin(func() bool {
		var ok bool
		got, ok = outgoing.TryEnqueue(slot)
		return ok
	}) {
		if got != slot {
			m.logger.Error("put-back failed", "box", box.Name, "slot", slot, "returned", got)
		}
		return true
	}
	parked := m.parkedFor(box.ID)
	parked.putBacks = append(parked.putBacks, slot)
	m.logger.Debug("outgoing queue busy, put-back parked", "box", box.Name, "slot", slot)
	return false
}

// freeIncoming frees a slot of dest's incoming pool that the monitor
// holds in the dequeued state. Like putBack it parks the slot rather
// than wait for the box to unlock the pool.
func (m *Monitor) freeIncoming(dest callee, slot pool.Slot) {
	got := pool.SlotInvalid
	if spin(func() bool {
		var ok bool
		got, ok = dest.done.TryFree(slot)
		return ok
	}) {
		if got != slot {
			m.logger.Error("freeing incoming slot failed", "box", dest.box.Name, "slot", slot, "returned", got)
		}
		return
	}
	parked := m.parkedFor(dest.box.ID)
	parked.frees = append(parked.frees, slot)
	m.logger.Debug("incoming pool busy, free parked", "box", dest.box.Name, "slot", slot)
}

// parked are the slots of one box the monitor could not hand back
// during a pass. Guarded by drainMu.
type parked struct {
	putBacks []pool.Slot
	frees    []pool.Slot
}

func (m *Monitor) parkedFor(id rpc.BoxID) *parked {
	p := m.parked[id]
	if p == nil {
		p = &parked{}
		m.parked[id] = p
	}
	return p
}

// settlePutBacks enqueues the put-backs parked for box. It reports
// false while the outgoing queue is still busy.
func (m *Monitor) settlePutBacks(box BoxConfig, outgoing *pool.Queue[rpc.Message]) bool {
	p := m.parked[box.ID]
	if p == nil {
		return true
	}
	for len(p.putBacks) > 0 {
		slot := p.putBacks[0]
		got, ok := outgoing.TryEnqueue(slot)
		if !ok {
			return false
		}
		if got != slot {
			m.logger.Error("parked put-back failed", "box", box.Name, "slot", slot, "returned", got)
		}
		p.putBacks = p.putBacks[1:]
	}
	return true
}

// settleFrees frees the incoming slots parked for dest. It reports
// false while the incoming pool is still busy.
func (m *Monitor) settleFrees(dest callee) bool {
	p := m.parked[dest.box.ID]
	if p == nil {
		return true
	}
	for len(p.frees) > 0 {
		slot := p.frees[0]
		got, ok := dest.done.TryFree(slot)
		if !ok {
			return false
		}
		if got != slot {
			m.logger.Error("parked free failed", "box", dest.box.Name, "slot", slot, "returned", got)
		}
		p.frees = p.frees[1:]
	}
	return true
}

// Parked returns how many slots of box id the monitor holds for the
// next pass.
func (m *Monitor) Parked(id rpc.BoxID) int {
	m.drainMu.Lock()
	defer m.drainMu.Unlock()
	p := m.parked[id]
	if p == nil {
		return 0
	}
	return len(p.putBacks) + len(p.frees)
}

// wakeHandlers posts every ready function group in dest that serves
// function. If the group pool stays busy the wakeup is skipped; the call
// is already queued and the next WaitForCall in the callee finds it.
func (m *Monitor) wakeHandlers(dest callee, function rpc.FunctionID) {
	woken := 0
	swept := spin(func() bool {
		woken = 0
		return dest.groups.TryForEachAllocated(func(_ pool.Slot, group *rpc.FnGroup) {
			if !group.Ready() || !group.Serves(function) {
				return
			}
			if err := group.Wake(); err != nil {
				m.logger.Warn("waking function group failed", "box", dest.box.Name, "function", function, "error", err)
				return
			}
			woken++
		})
	})
	if !swept {
		m.logger.Debug("function groups busy, wakeup skipped", "box", dest.box.Name, "function", function)
		return
	}
	if woken == 0 {
		m.logger.Debug("no function group serves call", "box", dest.box.Name, "function", function)
	}
}

// DrainResultQueue returns the results in box id's done queue to their
// callers. Each result must match the caller slot waiting for it
// exactly: same callee, same slot pairing, same cookie, and a caller
// that is still waiting. Anything else halts the monitor.
func (m *Monitor) DrainResultQueue(id rpc.BoxID) error {
	if err := m.Err(); err != nil {
		return err
	}
	m.drainMu.Lock()
	defer m.drainMu.Unlock()

	dest, err := m.resolveCallee(id)
	if err != nil {
		return m.haltOn(err)
	}
	if !m.settleFrees(dest) {
		return nil
	}

	for range dest.done.Pool().Num() {
		slot, ok := dest.done.TryDequeueFirst()
		if !ok || slot == pool.SlotInvalid {
			return nil
		}
		if err := m.returnResult(dest, slot); err != nil {
			return m.haltOn(err)
		}
	}
	return nil
}

func (m *Monitor) returnResult(dest callee, slot pool.Slot) error {
	served := dest.done.At(slot)
	callerID := served.OtherBox()
	cookie := served.MatchCookie()
	if _, ok := m.box(callerID); !ok {
		return newFault(FaultResult, dest.box.ID, slot, "result names unregistered caller %s", callerID)
	}
	_, outgoing, err := m.resolveOutgoing(callerID)
	if err != nil {
		return err
	}
	callerSlot := served.OtherSlot()
	waiting := outgoing.At(callerSlot)
	if waiting == nil {
		return newFault(FaultResult, dest.box.ID, slot, "result names %s slot %s out of range", callerID, callerSlot)
	}

	switch {
	case waiting.OtherBox() != dest.box.ID:
		return newFault(FaultResult, dest.box.ID, slot,
			"%s slot %s is bound to %s, not the callee", callerID, callerSlot, waiting.OtherBox())
	case waiting.OtherSlot() != slot:
		return newFault(FaultResult, dest.box.ID, slot,
			"%s slot %s is paired with callee slot %s", callerID, callerSlot, waiting.OtherSlot())
	case waiting.State() != rpc.LifecycleSent:
		return newFault(FaultResult, dest.box.ID, slot,
			"%s slot %s is %s, not waiting", callerID, callerSlot, waiting.State())
	case waiting.MatchCookie() != cookie:
		return newFault(FaultResult, dest.box.ID, slot,
			"cookie %s does not match %s slot %s cookie %s", cookie, callerID, callerSlot, waiting.MatchCookie())
	}

	result := served.Result()
	waiting.SetResult(result)
	served.SetState(rpc.LifecycleIdle)
	waiting.SetState(rpc.LifecycleDone)
	m.freeIncoming(dest, slot)
	if err := waiting.Signal(); err != nil {
		m.logger.Warn("signalling caller failed", "caller", callerID, "slot", callerSlot, "error", err)
	}

	m.results.Add(1)
	m.logger.Debug("result returned",
		"caller", callerID,
		"callee", dest.box.ID,
		"caller_slot", callerSlot,
		"callee_slot", slot,
		"cookie", cookie,
	)
	m.record(tracelog.Entry{
		Kind:       tracelog.KindResult,
		Caller:     int32(callerID),
		Callee:     int32(dest.box.ID),
		CallerSlot: uint8(callerSlot),
		CalleeSlot: uint8(slot),
		Cookie:     uint32(cookie),
		Function:   uint32(served.Function),
		Result:     result,
	})
	return nil
}
