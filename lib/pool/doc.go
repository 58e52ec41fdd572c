// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pool implements the fixed-capacity slot allocator and the
// doubly linked FIFO that every shared RPC structure is built from.
//
// A [Pool] owns N payload slots and a management array with one [Entry]
// per slot. Each entry is tagged with the slot's state:
//
//   - [StateFree]: on the free list; Next links to the next free slot.
//   - [StateDequeued]: allocated and not linked into any queue.
//   - [StateQueued]: allocated and linked into a [Queue]; Prev and Next
//     are the neighbours in queue order and Owner names the queue.
//
// The free list and every queue over a pool share the management array,
// so a slot moves between them without copying its payload. Linkage is
// by slot index only; nothing points into the backing array.
//
// Operations come in two flavours. The plain forms lock the pool's
// mutex (and, for blocking pools, pend on its capacity semaphore) and
// may wait. The Try forms never wait: when the mutex is held elsewhere
// they return ok=false and leave every structure untouched. Privileged
// code uses only the Try forms.
//
// Slot-returning operations report outcomes with sentinel slots rather
// than errors so that repeated frees and dequeues are cheap no-ops:
// freeing a free slot returns [SlotIsFree], dequeuing a dequeued slot
// returns [SlotIsDequeued], and an out-of-range slot returns
// [SlotInvalid].
package pool
