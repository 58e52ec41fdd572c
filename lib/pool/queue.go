// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pool

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/boxvisor/lib/memmap"
)

// Queue is a FIFO of slots from a Pool. Several queues may share one
// pool; they then share its mutex, and a slot moves between them by
// dequeue and enqueue without touching its payload.
//
// FIFO order is enqueue order, independent of slot index.
type Queue[T any] struct {
	// Addr is the queue header's claimed address in box memory.
	Addr memmap.Addr

	pool *Pool[T]
	id   uint8
	head Slot
	tail Slot
}

// NewQueue returns an empty queue over p.
func NewQueue[T any](p *Pool[T]) (*Queue[T], error) {
	p.lock()
	defer p.mutex.Release()
	if p.queues == 0xFF {
		return nil, fmt.Errorf("pool: too many queues over one pool")
	}
	p.queues++
	return &Queue[T]{pool: p, id: p.queues, head: SlotInvalid, tail: SlotInvalid}, nil
}

// Pool returns the pool the queue draws slots from.
func (q *Queue[T]) Pool() *Pool[T] { return q.pool }

// At returns the payload of slot, or nil when out of range.
func (q *Queue[T]) At(slot Slot) *T { return q.pool.At(slot) }

// Allocate takes a fresh, unqueued slot from the underlying pool.
func (q *Queue[T]) Allocate(timeout time.Duration) Slot {
	return q.pool.Allocate(timeout)
}

// TryAllocate is Allocate without waiting.
func (q *Queue[T]) TryAllocate() (Slot, bool) {
	return q.pool.TryAllocate()
}

// Enqueue appends a dequeued slot at the tail. Returns slot on success
// and SlotInvalid when slot is out of range or not in the dequeued
// state.
func (q *Queue[T]) Enqueue(slot Slot) Slot {
	if int(slot) >= q.pool.Num() {
		return SlotInvalid
	}
	q.pool.lock()
	defer q.pool.mutex.Release()
	return q.enqueueLocked(slot)
}

// TryEnqueue is Enqueue without waiting.
func (q *Queue[T]) TryEnqueue(slot Slot) (Slot, bool) {
	if int(slot) >= q.pool.Num() {
		return SlotInvalid, true
	}
	if !q.pool.mutex.TryAcquire() {
		return SlotInvalid, false
	}
	defer q.pool.mutex.Release()
	return q.enqueueLocked(slot), true
}

// Dequeue unlinks slot from wherever it sits in the queue. A slot that
// is already free or dequeued is left alone and its state sentinel is
// returned, so repeated dequeues are harmless. A slot queued on a
// different queue over the same pool returns SlotInvalid.
func (q *Queue[T]) Dequeue(slot Slot) Slot {
	if int(slot) >= q.pool.Num() {
		return SlotInvalid
	}
	q.pool.lock()
	defer q.pool.mutex.Release()
	return q.dequeueSlotLocked(slot)
}

// TryDequeue is Dequeue without waiting.
func (q *Queue[T]) TryDequeue(slot Slot) (Slot, bool) {
	if int(slot) >= q.pool.Num() {
		return SlotInvalid, true
	}
	if !q.pool.mutex.TryAcquire() {
		return SlotInvalid, false
	}
	defer q.pool.mutex.Release()
	return q.dequeueSlotLocked(slot), true
}

// DequeueFirst unlinks and returns the head, or SlotInvalid when empty.
func (q *Queue[T]) DequeueFirst() Slot {
	q.pool.lock()
	defer q.pool.mutex.Release()
	return q.dequeueFirstLocked()
}

// TryDequeueFirst is DequeueFirst without waiting.
func (q *Queue[T]) TryDequeueFirst() (Slot, bool) {
	if !q.pool.mutex.TryAcquire() {
		return SlotInvalid, false
	}
	defer q.pool.mutex.Release()
	return q.dequeueFirstLocked(), true
}

// FindFirst walks the queue from head to tail and returns the first
// slot for which match returns true, or SlotInvalid. match runs with
// the pool locked: it must be quick and must not call back into the
// pool or any queue over it.
func (q *Queue[T]) FindFirst(match func(Slot, *T) bool) Slot {
	q.pool.lock()
	defer q.pool.mutex.Release()
	return q.findFirstLocked(match)
}

// TryFindFirst is FindFirst without waiting.
func (q *Queue[T]) TryFindFirst(match func(Slot, *T) bool) (Slot, bool) {
	if !q.pool.mutex.TryAcquire() {
		return SlotInvalid, false
	}
	defer q.pool.mutex.Release()
	return q.findFirstLocked(match), true
}

// Free unlinks slot if it is queued here and returns it to the pool.
// Follows Pool.Free's return convention.
func (q *Queue[T]) Free(slot Slot) Slot {
	if int(slot) >= q.pool.Num() {
		return SlotInvalid
	}
	q.pool.lock()
	result := q.freeLocked(slot)
	q.pool.mutex.Release()
	q.pool.postIfFreed(slot, result)
	return result
}

// TryFree is Free without waiting.
func (q *Queue[T]) TryFree(slot Slot) (Slot, bool) {
	if int(slot) >= q.pool.Num() {
		return SlotInvalid, true
	}
	if !q.pool.mutex.TryAcquire() {
		return SlotInvalid, false
	}
	result := q.freeLocked(slot)
	q.pool.mutex.Release()
	q.pool.postIfFreed(slot, result)
	return result, true
}

// Head returns the first slot in queue order.
func (q *Queue[T]) Head() Slot {
	q.pool.lock()
	defer q.pool.mutex.Release()
	return q.head
}

// Tail returns the last slot in queue order.
func (q *Queue[T]) Tail() Slot {
	q.pool.lock()
	defer q.pool.mutex.Release()
	return q.tail
}

// Slots returns the queued slots in queue order.
func (q *Queue[T]) Slots() []Slot {
	q.pool.lock()
	defer q.pool.mutex.Release()
	var slots []Slot
	for slot := q.head; slot != SlotInvalid; slot = q.pool.entries[slot].Next {
		slots = append(slots, slot)
	}
	return slots
}

// QueueSnapshot is a Snapshot of the pool plus this queue's ends.
type QueueSnapshot struct {
	Pool Snapshot
	Head Slot
	Tail Slot
}

// Equal reports whether two snapshots describe identical state.
func (s QueueSnapshot) Equal(other QueueSnapshot) bool {
	return s.Head == other.Head && s.Tail == other.Tail && s.Pool.Equal(other.Pool)
}

// Snapshot captures pool and queue state atomically.
func (q *Queue[T]) Snapshot() QueueSnapshot {
	q.pool.lock()
	defer q.pool.mutex.Release()
	return QueueSnapshot{Pool: q.pool.snapshotLocked(), Head: q.head, Tail: q.tail}
}

// Extents returns the ranges the queue header and its pool claim.
func (q *Queue[T]) Extents() []Extent {
	extents := []Extent{{Name: "queue header", Region: memmap.Region{Base: q.Addr, Size: QueueHeaderSize}}}
	return append(extents, q.pool.Extents()...)
}

func (q *Queue[T]) enqueueLocked(slot Slot) Slot {
	entries := q.pool.entries
	entry := &entries[slot]
	if entry.State != StateDequeued {
		return SlotInvalid
	}

	*entry = Entry{State: StateQueued, Next: SlotInvalid, Prev: q.tail, Owner: q.id}
	if q.head == SlotInvalid {
		q.head = slot
	} else {
		entries[q.tail].Next = slot
	}
	q.tail = slot
	return slot
}

func (q *Queue[T]) dequeueSlotLocked(slot Slot) Slot {
	entry := &q.pool.entries[slot]
	switch entry.State {
	case StateFree:
		return SlotIsFree
	case StateDequeued:
		return SlotIsDequeued
	}
	if entry.Owner != q.id {
		return SlotInvalid
	}
	q.unlinkLocked(slot)
	return slot
}

func (q *Queue[T]) dequeueFirstLocked() Slot {
	slot := q.head
	if slot != SlotInvalid {
		q.unlinkLocked(slot)
	}
	return slot
}

// unlinkLocked removes a slot queued on q, patching its neighbours and
// the queue ends, and marks it dequeued.
func (q *Queue[T]) unlinkLocked(slot Slot) {
	entries := q.pool.entries
	entry := entries[slot]

	if entry.Prev == SlotInvalid {
		q.head = entry.Next
	} else {
		entries[entry.Prev].Next = entry.Next
	}
	if entry.Next == SlotInvalid {
		q.tail = entry.Prev
	} else {
		entries[entry.Next].Prev = entry.Prev
	}

	entries[slot] = Entry{State: StateDequeued, Next: SlotInvalid, Prev: SlotInvalid}
}

func (q *Queue[T]) findFirstLocked(match func(Slot, *T) bool) Slot {
	for slot := q.head; slot != SlotInvalid; slot = q.pool.entries[slot].Next {
		if match(slot, &q.pool.items[slot]) {
			return slot
		}
	}
	return SlotInvalid
}

func (q *Queue[T]) freeLocked(slot Slot) Slot {
	entry := &q.pool.entries[slot]
	if entry.State == StateQueued {
		if entry.Owner != q.id {
			return SlotInvalid
		}
		q.unlinkLocked(slot)
	}
	return q.pool.freeLocked(slot)
}
