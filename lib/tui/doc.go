// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tui renders boxvisor's terminal output: the color theme and
// the bordered tables the layout, trace, and simulate commands print.
// Built on lipgloss. Colors degrade to plain text when the output is
// not a terminal, so the same rendering serves scripts and tests.
package tui
