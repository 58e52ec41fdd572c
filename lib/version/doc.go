// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for boxvisor.
//
// Release builds inject the values via -ldflags, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/boxvisor/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Builds without ldflags fall back to the VCS stamp the Go toolchain
// records in the binary, when there is one. The version string is
// stamped into fault records so a halt can be tied to the build that
// produced it.
package version
