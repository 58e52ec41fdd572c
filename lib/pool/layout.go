// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pool

import (
	"math"

	"github.com/bureau-foundation/boxvisor/lib/memmap"
)

// Sizes of the fixed parts of a pool or queue as laid out in box
// memory.
const (
	HeaderSize      = 24
	QueueHeaderSize = 8
	EntrySize       = 4
)

// Layout records where a pool's parts claim to live. The box that owns
// the pool writes these claims; nothing in this package trusts them.
type Layout struct {
	Header  memmap.Addr
	Entries memmap.Addr
	Array   memmap.Addr
	Stride  uint32
}

// Extent is one named part of a structure and the range it claims.
type Extent struct {
	Name   string
	Region memmap.Region
}

// Extents returns the ranges a pool of num slots with this layout
// claims: header, management array, and backing array. A size that
// does not fit in 32 bits is clamped to the maximum so that no region
// contains it.
func (l Layout) Extents(num int) []Extent {
	return []Extent{
		{Name: "pool header", Region: memmap.Region{Base: l.Header, Size: HeaderSize}},
		{Name: "management array", Region: memmap.Region{Base: l.Entries, Size: clampSize(uint64(num) * EntrySize)}},
		{Name: "backing array", Region: memmap.Region{Base: l.Array, Size: clampSize(uint64(num) * uint64(l.Stride))}},
	}
}

func clampSize(size uint64) uint32 {
	if size > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(size)
}

// AllocLayout carves a header, management array, and backing array for
// num slots of stride bytes out of arena.
func AllocLayout(arena *memmap.Arena, num int, stride uint32) (Layout, error) {
	header, err := arena.Alloc(HeaderSize, 4)
	if err != nil {
		return Layout{}, err
	}
	entries, err := arena.Alloc(clampSize(uint64(num)*EntrySize), 4)
	if err != nil {
		return Layout{}, err
	}
	array, err := arena.Alloc(clampSize(uint64(num)*uint64(stride)), 4)
	if err != nil {
		return Layout{}, err
	}
	return Layout{Header: header, Entries: entries, Array: array, Stride: stride}, nil
}
