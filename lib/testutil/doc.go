// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for boxvisor packages.
//
// [RequireReceive], [RequireClosed], and [RequireNoReceive] wrap the
// select-with-timeout pattern used to synchronize with goroutines that
// block on semaphores and queues. They are the only place tests use
// real wall-clock timeouts; everything else runs on a fake clock.
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil
