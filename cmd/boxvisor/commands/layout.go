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

func layoutCommand(stdout io.Writer, theme tui.Theme) *cli.Command {
	var source configSource
	return &cli.Command{
		Name:    "layout",
		Summary: "Show where every box's RPC structures and gateways live",
		Description: `Build the configured boxes without running anything and print, per
box, the address range of its index, queues, and pools, followed by the
gateway table in monitor memory.`,
		Usage: "boxvisor layout [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("layout", pflag.ContinueOnError)
			source.register(flagSet)
			return flagSet
		},
		Run: func(_ context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("layout takes no positional arguments, got %q", args[0])
			}
			cfg, err := source.load()
			if err != nil {
				return err
			}
			system, err := sim.Build(cfg, sim.Options{Logger: logger.With("command", "layout")})
			if err != nil {
				return err
			}
			printLayout(stdout, theme, system)
			return nil
		},
	}
}

func printLayout(w io.Writer, theme tui.Theme, system *sim.System) {
	for _, box := range system.Layout() {
		fmt.Fprintln(w, theme.Heading(fmt.Sprintf("%s (%s) %s, %d of %d bytes used",
			box.Name, box.ID, box.Region, box.Used, box.Region.Size)))
		rows := make([][]string, 0, len(box.Extents))
		for _, extent := range box.Extents {
			rows = append(rows, []string{
				extent.Name,
				extent.Region.Base.String(),
				fmt.Sprintf("0x%08x", extent.Region.End()),
				fmt.Sprint(extent.Region.Size),
			})
		}
		fmt.Fprintln(w, tui.Table{Theme: theme, Headers: []string{"STRUCTURE", "BASE", "END", "SIZE"}, Rows: rows}.Render())
		fmt.Fprintln(w)
	}

	gateways := system.Gateways()
	fmt.Fprintln(w, theme.Heading(fmt.Sprintf("gateways (%d)", len(gateways))))
	rows := make([][]string, 0, len(gateways))
	for _, gw := range gateways {
		rows = append(rows, []string{gw.Name, gw.Addr.String(), gw.Box, gw.Function.String(), gw.Mode})
	}
	fmt.Fprintln(w, tui.Table{Theme: theme, Headers: []string{"GATEWAY", "ADDRESS", "BOX", "FUNCTION", "MODE"}, Rows: rows}.Render())
}
