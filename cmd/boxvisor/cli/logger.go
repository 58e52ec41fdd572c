// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// DebugEnvironment turns on debug logging when set to a non-empty
// value other than "0".
const DebugEnvironment = "BOXVISOR_DEBUG"

// NewCommandLogger creates a structured logger on stderr. When stderr
// is a terminal, uses slog.TextHandler for human-readable output. When
// stderr is piped or redirected (CI, scripts), uses slog.JSONHandler
// for machine-parseable output.
//
// Callers scope the logger with command-specific context via With():
//
//	logger := cli.NewCommandLogger().With("command", "simulate")
func NewCommandLogger() *slog.Logger {
	return newLogger(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), debugEnabled())
}

func newLogger(w io.Writer, terminal, debug bool) *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		options.Level = slog.LevelDebug
	}
	if terminal {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}

func debugEnabled() bool {
	value := os.Getenv(DebugEnvironment)
	return value != "" && value != "0"
}
