// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/bureau-foundation/boxvisor/cmd/boxvisor/cli"
	"github.com/bureau-foundation/boxvisor/lib/config"
	"github.com/bureau-foundation/boxvisor/lib/faultlog"
)

func faultCommand(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "fault",
		Summary: "Inspect or clear the record of the last halt",
		Description: `The monitor writes a fault record when it halts and a fault file is
configured. The path is taken from the argument, or else from
monitor.fault_file in $BOXVISOR_CONFIG.`,
		Subcommands: []*cli.Command{
			{
				Name:    "show",
				Summary: "Print the fault record",
				Usage:   "boxvisor fault show [path]",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					path, err := faultPath(args)
					if err != nil {
						return err
					}
					record, err := faultlog.Read(path)
					if errors.Is(err, os.ErrNotExist) {
						fmt.Fprintf(stdout, "no fault recorded at %s\n", path)
						return nil
					}
					if err != nil {
						return err
					}
					printFault(stdout, record)
					return nil
				},
			},
			{
				Name:    "clear",
				Summary: "Remove the fault record",
				Usage:   "boxvisor fault clear [path]",
				Run: func(_ context.Context, args []string, logger *slog.Logger) error {
					path, err := faultPath(args)
					if err != nil {
						return err
					}
					if err := faultlog.Clear(path); err != nil {
						return err
					}
					logger.Info("fault record cleared", "path", path)
					return nil
				},
			},
		},
	}
}

func faultPath(args []string) (string, error) {
	switch len(args) {
	case 0:
	case 1:
		return args[0], nil
	default:
		return "", fmt.Errorf("expected at most one fault file path, got %d arguments", len(args))
	}
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	if cfg.Monitor.FaultFile == "" {
		return "", fmt.Errorf("no fault file configured: pass a path or set monitor.fault_file")
	}
	return cfg.Monitor.FaultFile, nil
}

func printFault(w io.Writer, record faultlog.Record) {
	fmt.Fprintf(w, "kind:    %s\n", record.Kind)
	if record.BoxName != "" {
		fmt.Fprintf(w, "box:     %d (%s)\n", record.Box, record.BoxName)
	} else {
		fmt.Fprintf(w, "box:     %d\n", record.Box)
	}
	if record.Slot != 0xFF {
		fmt.Fprintf(w, "slot:    %d\n", record.Slot)
	}
	fmt.Fprintf(w, "detail:  %s\n", record.Detail)
	fmt.Fprintf(w, "time:    %s\n", record.Timestamp.Format(time.RFC3339Nano))
	if record.Version != "" {
		fmt.Fprintf(w, "version: %s\n", record.Version)
	}
}
