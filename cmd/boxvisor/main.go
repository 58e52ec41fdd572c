// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command boxvisor runs and inspects cross-box RPC workloads under the
// isolation monitor. Run "boxvisor --help" for the command list.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/boxvisor/cmd/boxvisor/commands"
	"github.com/bureau-foundation/boxvisor/lib/process"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return commands.Root(os.Stdout).Execute(ctx, os.Args[1:])
}
