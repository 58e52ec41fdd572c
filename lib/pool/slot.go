// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pool

import "fmt"

// Slot indexes a pool's backing array. Values at or above MaxSlots are
// sentinels.
type Slot uint8

const (
	// SlotInvalid means no slot: an empty queue end, an exhausted pool,
	// or an out-of-range argument.
	SlotInvalid Slot = 0xFF

	// SlotIsDequeued is returned by Dequeue for a slot that is
	// allocated but not queued.
	SlotIsDequeued Slot = 0xFE

	// SlotIsFree is returned by Free and Dequeue for a slot already on
	// the free list.
	SlotIsFree Slot = 0xFD

	// MaxSlots is the largest supported pool capacity.
	MaxSlots = int(SlotIsFree)
)

// Valid reports whether s is a real slot index rather than a sentinel.
func (s Slot) Valid() bool {
	return int(s) < MaxSlots
}

func (s Slot) String() string {
	switch s {
	case SlotInvalid:
		return "invalid"
	case SlotIsDequeued:
		return "is-dequeued"
	case SlotIsFree:
		return "is-free"
	default:
		return fmt.Sprintf("%d", uint8(s))
	}
}

// State is the tag of a management entry.
type State uint8

const (
	StateFree State = iota
	StateDequeued
	StateQueued
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateDequeued:
		return "dequeued"
	case StateQueued:
		return "queued"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Entry is one management-array element. Which link fields are
// meaningful depends on State; unused links hold SlotInvalid.
type Entry struct {
	State State
	Next  Slot
	Prev  Slot
	Owner uint8
}
