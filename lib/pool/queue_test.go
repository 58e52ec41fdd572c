// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pool

import (
	"testing"
)

func newTestQueue(t *testing.T) *Queue[uint32] {
	t.Helper()
	q, err := NewQueue(newTestPool(t, false))
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	return q
}

// fillQueue allocates and enqueues every slot in index order.
func fillQueue(t *testing.T, q *Queue[uint32]) {
	t.Helper()
	for want := range testSlots {
		slot := q.Allocate(0)
		if slot != Slot(want) {
			t.Fatalf("Allocate = %s, want %d", slot, want)
		}
		if got := q.Enqueue(slot); got != slot {
			t.Fatalf("Enqueue(%s) = %s", slot, got)
		}
	}
}

func queuedEntry(prev, next Slot, owner uint8) Entry {
	return Entry{State: StateQueued, Prev: prev, Next: next, Owner: owner}
}

func requireEnds(t *testing.T, q *Queue[uint32], head, tail Slot) {
	t.Helper()
	if got := q.Head(); got != head {
		t.Errorf("head = %s, want %s", got, head)
	}
	if got := q.Tail(); got != tail {
		t.Errorf("tail = %s, want %s", got, tail)
	}
}

func TestQueueSaneAfterInit(t *testing.T) {
	q := newTestQueue(t)
	requireEnds(t, q, SlotInvalid, SlotInvalid)
	if slots := q.Slots(); len(slots) != 0 {
		t.Errorf("Slots = %v, want empty", slots)
	}
}

func TestQueueAllocateAndEnqueue(t *testing.T) {
	q := newTestQueue(t)
	id := q.id

	slot := q.Allocate(0)
	requireEnds(t, q, SlotInvalid, SlotInvalid)
	requireSnapshot(t, q.Pool().Snapshot(), 1, 1, dequeuedEntry())

	q.Enqueue(slot)
	requireEnds(t, q, 0, 0)
	requireSnapshot(t, q.Pool().Snapshot(), 1, 1, queuedEntry(SlotInvalid, SlotInvalid, id))

	q.Enqueue(q.Allocate(0))
	q.Enqueue(q.Allocate(0))
	requireEnds(t, q, 0, 2)
	requireSnapshot(t, q.Pool().Snapshot(), 3, 3,
		queuedEntry(SlotInvalid, 1, id), queuedEntry(0, 2, id), queuedEntry(1, SlotInvalid, id))

	q.Enqueue(q.Allocate(0))
	extra := q.Allocate(0)
	if extra != SlotInvalid {
		t.Fatalf("fifth Allocate = %s, want invalid", extra)
	}
	if got := q.Enqueue(extra); got != SlotInvalid {
		t.Errorf("Enqueue(invalid) = %s, want invalid", got)
	}
	requireEnds(t, q, 0, 3)
	requireSnapshot(t, q.Pool().Snapshot(), SlotInvalid, 4,
		queuedEntry(SlotInvalid, 1, id), queuedEntry(0, 2, id), queuedEntry(1, 3, id), queuedEntry(2, SlotInvalid, id))
}

func TestQueueEnqueueRejectsNonDequeued(t *testing.T) {
	q := newTestQueue(t)
	if got := q.Enqueue(0); got != SlotInvalid {
		t.Errorf("Enqueue of free slot = %s, want invalid", got)
	}
	slot := q.Allocate(0)
	q.Enqueue(slot)
	before := q.Snapshot()
	if got := q.Enqueue(slot); got != SlotInvalid {
		t.Errorf("second Enqueue = %s, want invalid", got)
	}
	if !q.Snapshot().Equal(before) {
		t.Error("double Enqueue changed queue state")
	}
}

func TestQueueDequeueTooMany(t *testing.T) {
	q := newTestQueue(t)
	initial := q.Snapshot()
	for slot := range 20 {
		want := SlotIsFree
		if slot >= testSlots {
			want = SlotInvalid
		}
		if got := q.Dequeue(Slot(slot)); got != want {
			t.Errorf("Dequeue(%d) = %s, want %s", slot, got, want)
		}
		if !q.Snapshot().Equal(initial) {
			t.Fatalf("Dequeue(%d) changed an empty queue", slot)
		}
	}
}

func TestQueueDoubleDequeueIsIdempotent(t *testing.T) {
	q := newTestQueue(t)
	fillQueue(t, q)

	if got := q.Dequeue(1); got != 1 {
		t.Fatalf("Dequeue(1) = %s", got)
	}
	after := q.Snapshot()
	for range 3 {
		if got := q.Dequeue(1); got != SlotIsDequeued {
			t.Errorf("repeated Dequeue = %s, want is-dequeued", got)
		}
		if !q.Snapshot().Equal(after) {
			t.Fatal("repeated Dequeue changed state")
		}
	}

	if got := q.Free(1); got != 1 {
		t.Fatalf("Free(1) = %s", got)
	}
	afterFree := q.Snapshot()
	for range 3 {
		if got := q.Dequeue(1); got != SlotIsFree {
			t.Errorf("Dequeue after free = %s, want is-free", got)
		}
		if got := q.Free(1); got != SlotIsFree {
			t.Errorf("Free after free = %s, want is-free", got)
		}
		if !q.Snapshot().Equal(afterFree) {
			t.Fatal("repeated Dequeue/Free changed state")
		}
	}
}

func TestQueueFreeForward(t *testing.T) {
	q := newTestQueue(t)
	fillQueue(t, q)
	id := q.id

	q.Dequeue(0)
	q.Free(0)
	requireEnds(t, q, 1, 3)
	requireSnapshot(t, q.Pool().Snapshot(), 0, 3,
		freeEntry(SlotInvalid), queuedEntry(SlotInvalid, 2, id), queuedEntry(1, 3, id), queuedEntry(2, SlotInvalid, id))

	q.Dequeue(1)
	q.Free(1)
	requireEnds(t, q, 2, 3)
	requireSnapshot(t, q.Pool().Snapshot(), 1, 2,
		freeEntry(SlotInvalid), freeEntry(0), queuedEntry(SlotInvalid, 3, id), queuedEntry(2, SlotInvalid, id))

	q.Dequeue(2)
	q.Free(2)
	requireEnds(t, q, 3, 3)
	requireSnapshot(t, q.Pool().Snapshot(), 2, 1,
		freeEntry(SlotInvalid), freeEntry(0), freeEntry(1), queuedEntry(SlotInvalid, SlotInvalid, id))

	q.Dequeue(3)
	q.Free(3)
	requireEnds(t, q, SlotInvalid, SlotInvalid)
	requireSnapshot(t, q.Pool().Snapshot(), 3, 0,
		freeEntry(SlotInvalid), freeEntry(0), freeEntry(1), freeEntry(2))
}

func TestQueueFreeBackward(t *testing.T) {
	q := newTestQueue(t)
	fillQueue(t, q)
	id := q.id

	q.Dequeue(3)
	q.Free(3)
	requireEnds(t, q, 0, 2)
	requireSnapshot(t, q.Pool().Snapshot(), 3, 3,
		queuedEntry(SlotInvalid, 1, id), queuedEntry(0, 2, id), queuedEntry(1, SlotInvalid, id), freeEntry(SlotInvalid))

	q.Dequeue(2)
	q.Free(2)
	requireEnds(t, q, 0, 1)
	requireSnapshot(t, q.Pool().Snapshot(), 2, 2,
		queuedEntry(SlotInvalid, 1, id), queuedEntry(0, SlotInvalid, id), freeEntry(3), freeEntry(SlotInvalid))

	q.Dequeue(1)
	q.Free(1)
	requireEnds(t, q, 0, 0)

	q.Dequeue(0)
	q.Free(0)
	requireEnds(t, q, SlotInvalid, SlotInvalid)
}

func TestQueueRoundTrip(t *testing.T) {
	t.Run("backward restores init", func(t *testing.T) {
		q := newTestQueue(t)
		initial := q.Snapshot()
		fillQueue(t, q)
		for slot := testSlots - 1; slot >= 0; slot-- {
			q.Dequeue(Slot(slot))
			q.Free(Slot(slot))
		}
		if got := q.Snapshot(); !got.Equal(initial) {
			t.Errorf("state after backward round trip = %+v, want %+v", got, initial)
		}
	})

	t.Run("forward frees every slot", func(t *testing.T) {
		q := newTestQueue(t)
		fillQueue(t, q)
		for slot := range testSlots {
			q.Dequeue(Slot(slot))
			q.Free(Slot(slot))
		}
		got := q.Snapshot()
		if got.Head != SlotInvalid || got.Tail != SlotInvalid || got.Pool.NumAllocated != 0 {
			t.Fatalf("state after forward round trip = %+v", got)
		}
		// The free list holds every slot exactly once; LIFO order
		// reverses it relative to init.
		seen := map[Slot]bool{}
		for slot := got.Pool.FirstFree; slot != SlotInvalid; slot = got.Pool.Entries[slot].Next {
			if seen[slot] {
				t.Fatalf("slot %s appears twice on the free list", slot)
			}
			if got.Pool.Entries[slot].State != StateFree {
				t.Fatalf("slot %s on free list in state %s", slot, got.Pool.Entries[slot].State)
			}
			seen[slot] = true
		}
		if len(seen) != testSlots {
			t.Errorf("free list holds %d slots, want %d", len(seen), testSlots)
		}

		// After one more full allocate/free cycle in allocation order
		// reversed, the init state is restored.
		var allocated []Slot
		for range testSlots {
			allocated = append(allocated, q.Allocate(0))
		}
		for i := len(allocated) - 1; i >= 0; i-- {
			q.Free(allocated[i])
		}
		if got := q.Snapshot().Pool.FirstFree; got != allocated[0] {
			t.Errorf("first free = %s, want %s", got, allocated[0])
		}
	})
}

func TestQueueDequeueFirstMany(t *testing.T) {
	q := newTestQueue(t)
	fillQueue(t, q)

	for want := range testSlots {
		if got := q.DequeueFirst(); got != Slot(want) {
			t.Fatalf("DequeueFirst = %s, want %d", got, want)
		}
		snapshot := q.Snapshot()
		if snapshot.Pool.FirstFree != SlotInvalid || snapshot.Pool.NumAllocated != testSlots {
			t.Errorf("after dequeue %d: first free %s, allocated %d", want, snapshot.Pool.FirstFree, snapshot.Pool.NumAllocated)
		}
		if snapshot.Pool.Entries[want] != dequeuedEntry() {
			t.Errorf("entry %d = %+v, want dequeued", want, snapshot.Pool.Entries[want])
		}
	}
	requireEnds(t, q, SlotInvalid, SlotInvalid)
	if got := q.DequeueFirst(); got != SlotInvalid {
		t.Errorf("DequeueFirst on empty = %s, want invalid", got)
	}
}

func TestQueueOrderIsEnqueueOrderNotIndexOrder(t *testing.T) {
	q := newTestQueue(t)
	a := q.Allocate(0)
	b := q.Allocate(0)
	c := q.Allocate(0)
	// Enqueue in an order unrelated to slot index.
	for _, slot := range []Slot{b, c, a} {
		q.Enqueue(slot)
	}
	*q.At(a) = 1

	if got := q.FindFirst(func(Slot, *uint32) bool { return true }); got != b {
		t.Errorf("FindFirst(any) = %s, want %s", got, b)
	}
	for _, want := range []Slot{b, c, a} {
		if got := q.DequeueFirst(); got != want {
			t.Errorf("DequeueFirst = %s, want %s", got, want)
		}
	}
}

func TestQueueDequeueMiddleReenqueue(t *testing.T) {
	q := newTestQueue(t)
	fillQueue(t, q)

	q.Dequeue(1)
	q.Enqueue(1)
	got := q.Slots()
	want := []Slot{0, 2, 3, 1}
	if len(got) != len(want) {
		t.Fatalf("Slots = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Slots = %v, want %v", got, want)
		}
	}
	requireEnds(t, q, 0, 1)
}

type deadbeefQuery struct {
	calls int
}

func (query *deadbeefQuery) match(_ Slot, value *uint32) bool {
	query.calls++
	return *value == 0xDEADBEEF
}

func TestQueueFindFirst(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		q := newTestQueue(t)
		var query deadbeefQuery
		if got := q.FindFirst(query.match); got != SlotInvalid {
			t.Errorf("FindFirst = %s, want invalid", got)
		}
		if query.calls != 0 {
			t.Errorf("predicate called %d times, want 0", query.calls)
		}
	})

	t.Run("no match", func(t *testing.T) {
		q := newTestQueue(t)
		fillQueue(t, q)
		var query deadbeefQuery
		if got := q.FindFirst(query.match); got != SlotInvalid {
			t.Errorf("FindFirst = %s, want invalid", got)
		}
		if query.calls != testSlots {
			t.Errorf("predicate called %d times, want %d", query.calls, testSlots)
		}
	})

	t.Run("match first in queue order", func(t *testing.T) {
		q := newTestQueue(t)
		fillQueue(t, q)
		q.Dequeue(0)
		*q.At(0) = 0xDEADBEEF // dequeued, must not be found
		*q.At(1) = 0xDEADBEEF
		var query deadbeefQuery
		if got := q.FindFirst(query.match); got != 1 {
			t.Errorf("FindFirst = %s, want 1", got)
		}
		if query.calls != 1 {
			t.Errorf("predicate called %d times, want 1", query.calls)
		}
	})

	t.Run("match middle after hole", func(t *testing.T) {
		q := newTestQueue(t)
		fillQueue(t, q)
		q.Dequeue(1)
		*q.At(1) = 0xDEADBEEF
		*q.At(2) = 0xDEADBEEF
		var query deadbeefQuery
		if got := q.FindFirst(query.match); got != 2 {
			t.Errorf("FindFirst = %s, want 2", got)
		}
		if query.calls != 2 {
			t.Errorf("predicate called %d times, want 2", query.calls)
		}
	})

	t.Run("match last", func(t *testing.T) {
		q := newTestQueue(t)
		fillQueue(t, q)
		*q.At(3) = 0xDEADBEEF
		var query deadbeefQuery
		if got := q.FindFirst(query.match); got != 3 {
			t.Errorf("FindFirst = %s, want 3", got)
		}
		if query.calls != testSlots {
			t.Errorf("predicate called %d times, want %d", query.calls, testSlots)
		}
	})
}

func TestQueueFourSlotScenario(t *testing.T) {
	q := newTestQueue(t)
	fillQueue(t, q)
	for want := range testSlots {
		if got := q.DequeueFirst(); got != Slot(want) {
			t.Fatalf("DequeueFirst = %s, want %d", got, want)
		}
	}
	requireEnds(t, q, SlotInvalid, SlotInvalid)
	if n := q.Pool().NumAllocated(); n != 4 {
		t.Errorf("NumAllocated = %d, want 4 (dequeued but not freed)", n)
	}
}

func TestQueuesSharingAPool(t *testing.T) {
	p := newTestPool(t, false)
	todo, err := NewQueue(p)
	if err != nil {
		t.Fatalf("NewQueue todo: %v", err)
	}
	done, err := NewQueue(p)
	if err != nil {
		t.Fatalf("NewQueue done: %v", err)
	}

	slot := todo.Allocate(0)
	todo.Enqueue(slot)

	if got := done.Dequeue(slot); got != SlotInvalid {
		t.Errorf("Dequeue through the wrong queue = %s, want invalid", got)
	}
	if got := done.Free(slot); got != SlotInvalid {
		t.Errorf("Free through the wrong queue = %s, want invalid", got)
	}
	if todo.Head() != slot {
		t.Fatal("wrong-queue operations disturbed the owning queue")
	}

	if got := todo.DequeueFirst(); got != slot {
		t.Fatalf("todo.DequeueFirst = %s", got)
	}
	if got := done.Enqueue(slot); got != slot {
		t.Fatalf("done.Enqueue = %s", got)
	}
	requireEnds(t, todo, SlotInvalid, SlotInvalid)
	requireEnds(t, done, slot, slot)
	if got := done.Free(slot); got != slot {
		t.Errorf("done.Free = %s, want %s", got, slot)
	}
	if p.NumAllocated() != 0 {
		t.Errorf("NumAllocated = %d, want 0", p.NumAllocated())
	}
}

func TestQueueTryVariantsReportBusy(t *testing.T) {
	q := newTestQueue(t)
	fillQueue(t, q)
	before := q.Snapshot()

	q.pool.lock()
	if _, ok := q.TryDequeueFirst(); ok {
		t.Error("TryDequeueFirst reported ok on a locked queue")
	}
	if _, ok := q.TryDequeue(2); ok {
		t.Error("TryDequeue reported ok on a locked queue")
	}
	if _, ok := q.TryEnqueue(2); ok {
		t.Error("TryEnqueue reported ok on a locked queue")
	}
	if _, ok := q.TryFindFirst(func(Slot, *uint32) bool { return true }); ok {
		t.Error("TryFindFirst reported ok on a locked queue")
	}
	if _, ok := q.TryFree(2); ok {
		t.Error("TryFree reported ok on a locked queue")
	}
	if _, ok := q.TryAllocate(); ok {
		t.Error("TryAllocate reported ok on a locked queue")
	}
	q.pool.mutex.Release()

	if !q.Snapshot().Equal(before) {
		t.Fatal("busy try operations changed state")
	}

	slot, ok := q.TryDequeueFirst()
	if !ok || slot != 0 {
		t.Fatalf("TryDequeueFirst = %s, %v; want 0, true", slot, ok)
	}
	if slot, ok := q.TryEnqueue(slot); !ok || slot != 0 {
		t.Fatalf("TryEnqueue = %s, %v; want 0, true", slot, ok)
	}
	if got := q.Slots(); got[len(got)-1] != 0 {
		t.Errorf("re-enqueued slot not at tail: %v", got)
	}
}
