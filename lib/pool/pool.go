// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pool

import (
	"fmt"
	"slices"
	"time"

	"github.com/bureau-foundation/boxvisor/lib/clock"
	"github.com/bureau-foundation/boxvisor/lib/hostsync"
)

// Pool is a fixed-capacity allocator of T-sized slots.
type Pool[T any] struct {
	// Layout holds the pool's address claims. It lives in the owning
	// box's memory and may be rewritten by that box at any time.
	Layout Layout

	items        []T
	entries      []Entry
	firstFree    Slot
	numAllocated int
	queues       uint8

	mutex     *hostsync.Mutex
	semaphore *hostsync.Semaphore
}

// New returns a pool of num slots with every slot free. A blocking
// pool bounds outstanding allocations with a counting semaphore so
// Allocate can wait for capacity instead of failing.
func New[T any](clk clock.Clock, num int, blocking bool) (*Pool[T], error) {
	if num <= 0 || num > MaxSlots {
		return nil, fmt.Errorf("pool: capacity %d out of range 1..%d", num, MaxSlots)
	}

	p := &Pool[T]{
		items:   make([]T, num),
		entries: make([]Entry, num),
		mutex:   hostsync.NewMutex(clk),
	}
	p.reset()

	if blocking {
		semaphore, err := hostsync.NewSemaphore(clk, num, num)
		if err != nil {
			return nil, err
		}
		p.semaphore = semaphore
	}
	return p, nil
}

func (p *Pool[T]) reset() {
	for i := range p.entries {
		p.entries[i] = Entry{State: StateFree, Next: Slot(i + 1), Prev: SlotInvalid}
	}
	p.entries[len(p.entries)-1].Next = SlotInvalid
	p.firstFree = 0
	p.numAllocated = 0
}

// Num returns the pool's capacity.
func (p *Pool[T]) Num() int { return len(p.entries) }

// Blocking reports whether Allocate waits for capacity.
func (p *Pool[T]) Blocking() bool { return p.semaphore != nil }

// At returns the payload of slot, or nil when slot is out of range.
func (p *Pool[T]) At(slot Slot) *T {
	if int(slot) >= len(p.items) {
		return nil
	}
	return &p.items[slot]
}

// Allocate takes a slot off the free list. A blocking pool first waits
// up to timeout for capacity. Returns SlotInvalid when no slot could be
// had.
func (p *Pool[T]) Allocate(timeout time.Duration) Slot {
	if p.semaphore != nil {
		if err := p.semaphore.Pend(timeout); err != nil {
			return SlotInvalid
		}
	}
	p.lock()
	defer p.mutex.Release()
	return p.allocLocked()
}

// TryAllocate is Allocate without waiting. ok is false when the pool
// was locked by someone else; an exhausted pool returns SlotInvalid
// with ok true.
func (p *Pool[T]) TryAllocate() (slot Slot, ok bool) {
	if p.semaphore != nil && !p.semaphore.TryPend() {
		return SlotInvalid, true
	}
	if !p.mutex.TryAcquire() {
		if p.semaphore != nil {
			_ = p.semaphore.Post()
		}
		return SlotInvalid, false
	}
	defer p.mutex.Release()
	return p.allocLocked(), true
}

// Free returns slot to the free list. Freeing a free slot is a no-op
// returning SlotIsFree. Unlike a bare free list, which takes back any
// slot it is handed, Free refuses a slot linked into a queue: the pool
// does not own the queue's ends, so freeing it would leave the queue
// pointing at a free slot. Use Queue.Free. A queued slot, like an
// out-of-range one, yields SlotInvalid.
func (p *Pool[T]) Free(slot Slot) Slot {
	if int(slot) >= len(p.entries) {
		return SlotInvalid
	}
	p.lock()
	result := p.freeLocked(slot)
	p.mutex.Release()
	p.postIfFreed(slot, result)
	return result
}

// TryFree is Free without waiting.
func (p *Pool[T]) TryFree(slot Slot) (Slot, bool) {
	if int(slot) >= len(p.entries) {
		return SlotInvalid, true
	}
	if !p.mutex.TryAcquire() {
		return SlotInvalid, false
	}
	result := p.freeLocked(slot)
	p.mutex.Release()
	p.postIfFreed(slot, result)
	return result, true
}

// State returns the current state of slot. The result is a snapshot
// and may be stale by the time the caller acts on it.
func (p *Pool[T]) State(slot Slot) (State, bool) {
	if int(slot) >= len(p.entries) {
		return 0, false
	}
	p.lock()
	defer p.mutex.Release()
	return p.entries[slot].State, true
}

// NumAllocated returns the number of slots not on the free list.
func (p *Pool[T]) NumAllocated() int {
	p.lock()
	defer p.mutex.Release()
	return p.numAllocated
}

// TryForEachAllocated calls fn for every slot that is not free, in
// index order, with the pool locked. Returns false without calling fn
// when the pool is locked elsewhere. fn must not call back into the
// pool.
func (p *Pool[T]) TryForEachAllocated(fn func(Slot, *T)) bool {
	if !p.mutex.TryAcquire() {
		return false
	}
	defer p.mutex.Release()
	for i := range p.entries {
		if p.entries[i].State != StateFree {
			fn(Slot(i), &p.items[i])
		}
	}
	return true
}

// Snapshot captures the allocator state for comparison.
type Snapshot struct {
	FirstFree    Slot
	NumAllocated int
	Entries      []Entry
}

// Equal reports whether two snapshots describe identical pool state.
func (s Snapshot) Equal(other Snapshot) bool {
	return s.FirstFree == other.FirstFree &&
		s.NumAllocated == other.NumAllocated &&
		slices.Equal(s.Entries, other.Entries)
}

// Snapshot returns a copy of the free list head, allocation count, and
// management array.
func (p *Pool[T]) Snapshot() Snapshot {
	p.lock()
	defer p.mutex.Release()
	return p.snapshotLocked()
}

func (p *Pool[T]) snapshotLocked() Snapshot {
	entries := make([]Entry, len(p.entries))
	copy(entries, p.entries)
	return Snapshot{FirstFree: p.firstFree, NumAllocated: p.numAllocated, Entries: entries}
}

// Extents returns the ranges this pool claims to occupy.
func (p *Pool[T]) Extents() []Extent {
	return p.Layout.Extents(len(p.entries))
}

// Consistent reports whether the pool's real storage matches its claimed
// capacity. A pool rebuilt with mismatched slices is a forged structure.
func (p *Pool[T]) Consistent() bool {
	return len(p.items) == len(p.entries) && len(p.entries) > 0 && len(p.entries) <= MaxSlots
}

func (p *Pool[T]) lock() {
	// A WaitForever acquire cannot time out.
	_ = p.mutex.Acquire(hostsync.WaitForever)
}

// allocLocked pops the head of the free list.
func (p *Pool[T]) allocLocked() Slot {
	fresh := p.firstFree
	if fresh == SlotInvalid {
		return SlotInvalid
	}
	entry := &p.entries[fresh]
	p.firstFree = entry.Next
	*entry = Entry{State: StateDequeued, Next: SlotInvalid, Prev: SlotInvalid}
	p.numAllocated++
	return fresh
}

func (p *Pool[T]) freeLocked(slot Slot) Slot {
	entry := &p.entries[slot]
	switch entry.State {
	case StateFree:
		return SlotIsFree
	case StateQueued:
		return SlotInvalid
	}
	p.pushFreeLocked(slot)
	return slot
}

// pushFreeLocked puts a dequeued slot on the head of the free list.
func (p *Pool[T]) pushFreeLocked(slot Slot) {
	p.entries[slot] = Entry{State: StateFree, Next: p.firstFree, Prev: SlotInvalid}
	p.firstFree = slot
	p.numAllocated--
}

func (p *Pool[T]) postIfFreed(slot, result Slot) {
	if p.semaphore != nil && result == slot {
		// The count cannot exceed num: every free matches an allocation.
		_ = p.semaphore.Post()
	}
}
