// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the binary entrypoint helper for boxvisor:
// turning the error from run() into stderr output and an exit code.
// It is one of the few places outside the CLI that writes to stderr
// directly, since the structured logger may not exist yet.
package process
