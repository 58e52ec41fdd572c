// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sim runs a configured set of boxes under one monitor.
//
// [Build] turns a [config.Config] into a [System]: one address space,
// one monitor with its gateway table, and one rpc.Box per configured
// box, each registered with the monitor. [System.Run] then plays the
// workload. Every server and caller thread is a goroutine, and a
// scheduler goroutine stands in for the kernel: on every tick of the
// switch interval it switches to each live thread in turn, which is
// when the monitor drains that thread's box. All of them run under one
// errgroup, so a halted monitor ends the run.
//
// Callers check every result against the builtin they called, run
// locally. The [Report] counts calls, mismatches, timeouts, and
// per-box traffic, and carries the monitor fault if the run halted.
package sim
