// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package faultlog persists the reason the monitor halted.
//
// When the monitor detects an isolation violation it stops delivering
// calls and writes a single [Record] naming the offending box, the slot
// involved, and what was wrong. The record outlives the process, so an
// operator (or a supervisor restarting the system) can find out why the
// last run stopped:
//
//  1. The monitor halts and calls Write.
//  2. The process exits or is killed.
//  3. On the next start, Read finds the record; `boxvisor fault show`
//     prints it and `boxvisor fault clear` removes it.
//
// Write replaces the file atomically (temporary file, fsync, rename,
// directory fsync), so a reader sees either the previous record or the
// new one, never a torn write.
package faultlog
