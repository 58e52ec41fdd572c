// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memmap

import "fmt"

// Addr is an address in the shared 32-bit address space.
type Addr uint32

// String formats the address as 0x-prefixed hex.
func (a Addr) String() string {
	return fmt.Sprintf("0x%08x", uint32(a))
}

// Region is a contiguous range of the address space.
type Region struct {
	Base Addr
	Size uint32
}

// End returns the first address past the region. Computed in 64 bits
// so a region ending at the top of the address space does not wrap.
func (r Region) End() uint64 {
	return uint64(r.Base) + uint64(r.Size)
}

// Contains reports whether [addr, addr+size) lies entirely inside r.
// The arithmetic is done in 64 bits: a claim whose end wraps past 2^32
// is never contained. A zero-size claim is contained when addr lies in
// [Base, End].
func (r Region) Contains(addr Addr, size uint32) bool {
	start := uint64(addr)
	end := start + uint64(size)
	return start >= uint64(r.Base) && end <= r.End()
}

// ContainsRegion reports whether other lies entirely inside r.
func (r Region) ContainsRegion(other Region) bool {
	return r.Contains(other.Base, other.Size)
}

// Overlaps reports whether the two regions share at least one address.
// Empty regions overlap nothing.
func (r Region) Overlaps(other Region) bool {
	if r.Size == 0 || other.Size == 0 {
		return false
	}
	return uint64(r.Base) < other.End() && uint64(other.Base) < r.End()
}

func (r Region) String() string {
	return fmt.Sprintf("[%s, 0x%08x)", r.Base, r.End())
}
