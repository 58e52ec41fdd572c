// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hostsync provides the blocking primitives the RPC core
// borrows from the host scheduler: a counting [Semaphore] and a binary
// [Mutex], each with a timed blocking form and a non-blocking try form.
//
// Timeouts follow one convention everywhere: [WaitForever] blocks
// without limit, zero tries once without blocking, and a positive
// duration bounds the wait on the injected clock.
//
// Privileged monitor code only ever uses the try forms.
package hostsync
