// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rpc is the box-side half of cross-box calls.
//
// Every box carves four structures out of its own memory at creation
// and publishes their addresses in an [Index]:
//
//   - the outgoing queue, one [Message] per call this box has issued;
//   - the incoming to-do queue, copies of calls delivered to this box
//     and not yet served;
//   - the incoming done queue, served calls carrying a result, sharing
//     one pool with the to-do queue;
//   - the function-group pool, one [FnGroup] per thread that has
//     declared which functions it serves.
//
// A box never writes another box's memory. A call is a message in the
// caller's own outgoing queue; the privileged monitor copies it into
// the callee's to-do queue, and later copies the callee's result back
// into the caller's slot and posts the slot's completion semaphore.
//
// Each call is identified by a [Cookie] combining a per-box counter with
// the outgoing slot. A message carries two copies: the wait cookie,
// which the first waiter swaps out so no second waiter can read the
// result, and the match cookie, which stays fixed for the life of the
// call and is what the monitor compares when delivering a result.
package rpc
