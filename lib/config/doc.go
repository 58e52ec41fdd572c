// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for boxvisor.
//
// Configuration is loaded from a single file specified by either the
// BOXVISOR_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks and no automatic file
// search. [Example] returns a built-in demonstration system for
// commands run without a file.
//
// A file describes the boxes (their memory regions and slot counts),
// the gateways the monitor places in its own region, and a workload of
// server and caller threads. Boxes get ids in list order.
//
// The file supports environment-specific sections (development,
// staging, production) that override monitor settings when
// [Config].Environment matches. Production defaults write a fault
// record and a zstd-compressed journal under ${BOXVISOR_STATE}.
//
// ${VAR} and ${VAR:-default} patterns are expanded in the trace and
// fault file paths after loading.
//
// [Config.Validate] reports every problem at once with errors.Join.
//
// This package depends on no other boxvisor packages.
package config
