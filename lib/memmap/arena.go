// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memmap

import (
	"errors"
	"fmt"
	"sync"
)

// ErrArenaExhausted is returned when an allocation does not fit in the
// remaining space of an arena.
var ErrArenaExhausted = errors.New("memmap: arena exhausted")

// Arena hands out non-overlapping ranges of a region in increasing
// address order. Nothing is ever returned to it.
type Arena struct {
	mu     sync.Mutex
	region Region
	next   uint64
}

// NewArena returns an arena covering region.
func NewArena(region Region) *Arena {
	return &Arena{region: region, next: uint64(region.Base)}
}

// Alloc reserves size bytes aligned to align (a power of two; zero
// means 1) and returns the start address.
func (a *Arena) Alloc(size, align uint32) (Addr, error) {
	if align == 0 {
		align = 1
	}
	if align&(align-1) != 0 {
		return 0, fmt.Errorf("memmap: alignment %d is not a power of two", align)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	start := (a.next + uint64(align) - 1) &^ (uint64(align) - 1)
	end := start + uint64(size)
	if end > a.region.End() {
		return 0, fmt.Errorf("%w: %d bytes requested, %d free in %s",
			ErrArenaExhausted, size, a.region.End()-a.next, a.region)
	}
	a.next = end
	return Addr(start), nil
}

// Region returns the region the arena allocates from.
func (a *Arena) Region() Region {
	return a.region
}

// Used returns the number of bytes consumed, including alignment padding.
func (a *Arena) Used() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return uint32(a.next - uint64(a.region.Base))
}
