// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tracelog is the monitor's append-only journal.
//
// A journal file is a six-byte header followed by a stream of CBOR
// entries:
//
//	"BXTR" | version (1 byte) | compression tag (1 byte) | stream
//
// The stream is raw, an LZ4 frame, or a zstd frame according to the
// tag. Each [Entry] carries a chain value: the BLAKE3 keyed hash of the
// previous entry's chain value followed by the entry's own encoding
// with the chain field empty. The first entry chains from 32 zero
// bytes. [Verify] recomputes the chain, so a journal edited after the
// fact (an entry dropped, reordered, or altered) is detected at the
// first entry that no longer links.
package tracelog
