// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the boxvisor command tree.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/boxvisor/cmd/boxvisor/cli"
	"github.com/bureau-foundation/boxvisor/lib/config"
	"github.com/bureau-foundation/boxvisor/lib/tui"
	"github.com/bureau-foundation/boxvisor/lib/version"
)

// Root builds the complete command tree. Command output goes to stdout;
// logs and help go to stderr.
func Root(stdout io.Writer) *cli.Command {
	theme := tui.DefaultTheme
	return &cli.Command{
		Name: "boxvisor",
		Description: `boxvisor: cross-box RPC under an isolation monitor.

Boxes are isolated regions of one address space. A box calls a function
in another box through a gateway the monitor issued; the monitor copies
the call and its result between the boxes' queues on every context
switch, after checking that every structure it touches lies inside the
box that claims it. The first violation halts the monitor.`,
		Subcommands: []*cli.Command{
			simulateCommand(stdout, theme),
			layoutCommand(stdout, theme),
			validateCommand(stdout, theme),
			traceCommand(stdout, theme),
			faultCommand(stdout),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
					fmt.Fprintf(stdout, "boxvisor %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Run the built-in two-box example",
				Command:     "boxvisor simulate --example",
			},
			{
				Description: "Run a workload and keep a compressed journal",
				Command:     "boxvisor simulate -c boxvisor.yaml --trace run.bxtr --compression zstd",
			},
			{
				Description: "Show where every queue and pool lives",
				Command:     "boxvisor layout -c boxvisor.yaml",
			},
		},
	}
}

// configSource is the --config/--example pair shared by the commands
// that need a configuration.
type configSource struct {
	path    string
	example bool
}

func (s *configSource) register(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&s.path, "config", "c", "", "configuration file (default $BOXVISOR_CONFIG)")
	flagSet.BoolVar(&s.example, "example", false, "use the built-in two-box example")
}

func (s *configSource) load() (*config.Config, error) {
	switch {
	case s.example && s.path != "":
		return nil, fmt.Errorf("--config and --example are mutually exclusive")
	case s.example:
		return config.Example(), nil
	case s.path != "":
		return config.LoadFile(s.path)
	default:
		return config.Load()
	}
}
