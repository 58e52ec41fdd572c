// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memmap

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrOverlap is returned by Map when the new mapping intersects an
	// existing one.
	ErrOverlap = errors.New("memmap: mapping overlaps an existing mapping")

	// ErrNotMapped is returned by Unmap for an address with no mapping.
	ErrNotMapped = errors.New("memmap: address not mapped")
)

// Space records which object lives at which range of the address
// space. Only the start address of a mapping resolves: an address
// pointing into the middle of an object is not that object.
//
// Space is safe for concurrent use.
type Space struct {
	mu       sync.RWMutex
	mappings []mapping // sorted by region.Base
}

type mapping struct {
	region Region
	object any
}

// NewSpace returns an empty address space.
func NewSpace() *Space {
	return &Space{}
}

// Map places object at region. Zero-size mappings are rejected.
func (s *Space) Map(region Region, object any) error {
	if region.Size == 0 {
		return fmt.Errorf("memmap: empty mapping at %s", region.Base)
	}
	if region.End() > 1<<32 {
		return fmt.Errorf("memmap: mapping %s wraps the address space", region)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	index := sort.Search(len(s.mappings), func(i int) bool {
		return s.mappings[i].region.Base >= region.Base
	})
	if index > 0 && s.mappings[index-1].region.Overlaps(region) {
		return fmt.Errorf("%w: %s and %s", ErrOverlap, region, s.mappings[index-1].region)
	}
	if index < len(s.mappings) && s.mappings[index].region.Overlaps(region) {
		return fmt.Errorf("%w: %s and %s", ErrOverlap, region, s.mappings[index].region)
	}

	s.mappings = append(s.mappings, mapping{})
	copy(s.mappings[index+1:], s.mappings[index:])
	s.mappings[index] = mapping{region: region, object: object}
	return nil
}

// Unmap removes the mapping starting at addr.
func (s *Space) Unmap(addr Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, ok := s.findLocked(addr)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotMapped, addr)
	}
	s.mappings = append(s.mappings[:index], s.mappings[index+1:]...)
	return nil
}

// Lookup returns the object mapped at addr and the region it occupies.
func (s *Space) Lookup(addr Addr) (any, Region, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, ok := s.findLocked(addr)
	if !ok {
		return nil, Region{}, false
	}
	found := s.mappings[index]
	return found.object, found.region, true
}

// Len returns the number of mappings.
func (s *Space) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.mappings)
}

func (s *Space) findLocked(addr Addr) (int, bool) {
	index := sort.Search(len(s.mappings), func(i int) bool {
		return s.mappings[i].region.Base >= addr
	})
	if index < len(s.mappings) && s.mappings[index].region.Base == addr {
		return index, true
	}
	return 0, false
}

// Resolve looks up addr and asserts the mapped object to T. It fails
// when nothing is mapped there or when the object has a different
// type, which is how a forged pointer to the wrong kind of structure
// is caught.
func Resolve[T any](space *Space, addr Addr) (T, Region, bool) {
	var zero T
	object, region, ok := space.Lookup(addr)
	if !ok {
		return zero, Region{}, false
	}
	typed, ok := object.(T)
	if !ok {
		return zero, Region{}, false
	}
	return typed, region, true
}
