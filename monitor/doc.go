// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package monitor is the privileged half of cross-box calls.
//
// The monitor is the only code that touches more than one box's
// memory. It runs at thread switches: [Monitor.ThreadSwitch] makes a
// box active and then drains it in two passes.
//
// [Monitor.DrainMessageQueue] takes calls from the active box's
// outgoing queue, resolves each call's gateway to a callee, copies the
// call into a fresh slot of the callee's to-do queue, and wakes every
// function group in the callee that serves the function. A callee with
// no free slot, or with its queue momentarily locked, does not get the
// call: it goes back into the caller's outgoing queue unchanged and is
// retried on a later switch.
//
// [Monitor.DrainResultQueue] takes served calls from the active box's
// done queue, checks that the caller's slot is still waiting for
// exactly this call, copies the result back, frees the callee's slot,
// and posts the caller's completion semaphore.
//
// Every address a box hands the monitor (its index, each queue header,
// each pool header, management array, and backing array) is checked by
// one containment predicate against the box's configured region before
// anything is read through it, and every gateway address is checked
// against the monitor's own gateway table. A structure that escapes its
// box, a forged gateway, or a result that does not match the waiting
// call is an isolation violation. The monitor halts on the first one:
// it records a [Fault], stops delivering, and returns the fault from
// every later operation.
//
// Drain passes never wait. They use only the pool and queue Try
// operations; a busy structure ends the pass early, and the few
// operations that must eventually succeed (putting a call back,
// freeing a slot the monitor just dequeued) retry a bounded number of
// times.
package monitor
