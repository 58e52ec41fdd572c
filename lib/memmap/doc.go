// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package memmap models the single flat address space that boxes share.
//
// Boxes describe their RPC structures to the monitor by address: a box
// index names the address of its outgoing queue, a queue names the
// address of its pool, a pool names the addresses of its management
// array and backing array. Those addresses are claims made by untrusted
// code. [Region.Contains] is the one predicate the monitor uses to decide
// whether a claimed range lies inside the memory a box legitimately
// owns, and [Space] is how the monitor dereferences an address to the
// object actually living there.
//
// Structures are carved out of a box's region by an [Arena], a bump
// allocator with no free operation: everything in the RPC core is sized
// once at configuration time.
package memmap
