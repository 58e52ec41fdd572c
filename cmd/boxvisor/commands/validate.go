// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/boxvisor/cmd/boxvisor/cli"
	"github.com/bureau-foundation/boxvisor/internal/sim"
	"github.com/bureau-foundation/boxvisor/lib/tui"
)

func validateCommand(stdout io.Writer, theme tui.Theme) *cli.Command {
	var source configSource
	return &cli.Command{
		Name:    "validate",
		Summary: "Check a configuration and the structures it lays out",
		Description: `Check the configuration file, build every box and gateway, and run the
monitor's structural checks over each box without halting: every queue
and pool must resolve, be consistent, and lie inside its box.

Exits 1 when any check fails.`,
		Usage: "boxvisor validate [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("validate", pflag.ContinueOnError)
			source.register(flagSet)
			return flagSet
		},
		Run: func(_ context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("validate takes no positional arguments, got %q", args[0])
			}
			cfg, err := source.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				fmt.Fprintln(stdout, theme.Outcome("invalid configuration:", false))
				fmt.Fprintln(stdout, err)
				return &cli.ExitError{Code: 1}
			}
			system, err := sim.Build(cfg, sim.Options{Logger: logger.With("command", "validate")})
			if err != nil {
				fmt.Fprintln(stdout, theme.Outcome("build failed:", false))
				fmt.Fprintln(stdout, err)
				return &cli.ExitError{Code: 1}
			}
			if err := system.Check(); err != nil {
				fmt.Fprintln(stdout, theme.Outcome("structural check failed:", false))
				fmt.Fprintln(stdout, err)
				return &cli.ExitError{Code: 1}
			}
			fmt.Fprintln(stdout, theme.Outcome(fmt.Sprintf("ok: %d boxes, %d gateways", len(cfg.Boxes), len(cfg.Gateways)), true))
			return nil
		},
	}
}
