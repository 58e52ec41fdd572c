// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memmap

import (
	"errors"
	"testing"
)

func TestRegionContains(t *testing.T) {
	region := Region{Base: 0x2000_0000, Size: 0x1000}

	tests := []struct {
		name string
		addr Addr
		size uint32
		want bool
	}{
		{"whole region", 0x2000_0000, 0x1000, true},
		{"interior", 0x2000_0100, 0x10, true},
		{"last byte", 0x2000_0fff, 1, true},
		{"one past end", 0x2000_0fff, 2, false},
		{"before base", 0x1fff_ffff, 4, false},
		{"straddles base", 0x1fff_fffc, 8, false},
		{"zero size at end", 0x2000_1000, 0, true},
		{"zero size past end", 0x2000_1001, 0, false},
		{"huge size", 0x2000_0000, 0xffff_ffff, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := region.Contains(test.addr, test.size); got != test.want {
				t.Errorf("Contains(%s, %#x) = %v, want %v", test.addr, test.size, got, test.want)
			}
		})
	}
}

func TestRegionContainsDoesNotWrap(t *testing.T) {
	top := Region{Base: 0xffff_f000, Size: 0x1000}
	if !top.Contains(0xffff_fff0, 0x10) {
		t.Error("claim ending exactly at 2^32 should be contained")
	}
	// 0xffff_fff0 + 0x20 wraps to 0x10 in 32-bit arithmetic.
	if top.Contains(0xffff_fff0, 0x20) {
		t.Error("claim wrapping past 2^32 must not be contained")
	}
	low := Region{Base: 0, Size: 0x100}
	if low.Contains(0xffff_fff0, 0x20) {
		t.Error("wrapping claim must not appear to land in low memory")
	}
}

func TestRegionOverlaps(t *testing.T) {
	a := Region{Base: 0x100, Size: 0x100}
	tests := []struct {
		other Region
		want  bool
	}{
		{Region{Base: 0x000, Size: 0x100}, false},
		{Region{Base: 0x000, Size: 0x101}, true},
		{Region{Base: 0x1ff, Size: 0x10}, true},
		{Region{Base: 0x200, Size: 0x10}, false},
		{Region{Base: 0x150, Size: 0}, false},
	}
	for _, test := range tests {
		if got := a.Overlaps(test.other); got != test.want {
			t.Errorf("%s.Overlaps(%s) = %v, want %v", a, test.other, got, test.want)
		}
	}
}

func TestArenaAlloc(t *testing.T) {
	arena := NewArena(Region{Base: 0x1000, Size: 64})

	first, err := arena.Alloc(3, 1)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if first != 0x1000 {
		t.Errorf("first = %s, want 0x00001000", first)
	}

	second, err := arena.Alloc(8, 8)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if second != 0x1008 {
		t.Errorf("second = %s, want 0x00001008 (aligned)", second)
	}
	if arena.Used() != 16 {
		t.Errorf("Used = %d, want 16", arena.Used())
	}

	if _, err := arena.Alloc(49, 1); !errors.Is(err, ErrArenaExhausted) {
		t.Errorf("oversized Alloc error = %v, want ErrArenaExhausted", err)
	}
	if _, err := arena.Alloc(48, 1); err != nil {
		t.Errorf("exact-fit Alloc: %v", err)
	}
	if _, err := arena.Alloc(1, 3); err == nil {
		t.Error("non power-of-two alignment should fail")
	}
}

type queueHeader struct{ name string }
type poolHeader struct{ name string }

func TestSpaceMapLookup(t *testing.T) {
	space := NewSpace()
	queue := &queueHeader{name: "outgoing"}
	pool := &poolHeader{name: "outgoing pool"}

	if err := space.Map(Region{Base: 0x100, Size: 8}, queue); err != nil {
		t.Fatalf("Map queue: %v", err)
	}
	if err := space.Map(Region{Base: 0x108, Size: 24}, pool); err != nil {
		t.Fatalf("Map pool: %v", err)
	}
	if err := space.Map(Region{Base: 0x104, Size: 8}, pool); !errors.Is(err, ErrOverlap) {
		t.Errorf("overlapping Map error = %v, want ErrOverlap", err)
	}

	got, region, ok := Resolve[*queueHeader](space, 0x100)
	if !ok || got != queue {
		t.Fatalf("Resolve queue = %v, %v", got, ok)
	}
	if region.Size != 8 {
		t.Errorf("region = %s, want size 8", region)
	}

	if _, _, ok := Resolve[*queueHeader](space, 0x108); ok {
		t.Error("Resolve with the wrong type should fail")
	}
	if _, _, ok := space.Lookup(0x104); ok {
		t.Error("interior address should not resolve")
	}

	if err := space.Unmap(0x100); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	if _, _, ok := space.Lookup(0x100); ok {
		t.Error("unmapped address still resolves")
	}
	if err := space.Unmap(0x100); !errors.Is(err, ErrNotMapped) {
		t.Errorf("second Unmap error = %v, want ErrNotMapped", err)
	}
	if space.Len() != 1 {
		t.Errorf("Len = %d, want 1", space.Len())
	}
}
