// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/boxvisor/cmd/boxvisor/cli"
	"github.com/bureau-foundation/boxvisor/internal/sim"
	"github.com/bureau-foundation/boxvisor/lib/tracelog"
	"github.com/bureau-foundation/boxvisor/lib/tui"
	"github.com/bureau-foundation/boxvisor/lib/version"
	"github.com/bureau-foundation/boxvisor/monitor"
)

// Exit codes of "boxvisor simulate" beyond 0 and 1.
const exitHalted = 2

type simulateParams struct {
	source         configSource
	duration       time.Duration
	trace          string
	compression    string
	faultFile      string
	switchInterval string
}

func simulateCommand(stdout io.Writer, theme tui.Theme) *cli.Command {
	var params simulateParams
	return &cli.Command{
		Name:    "simulate",
		Summary: "Run a configured workload under the monitor",
		Description: `Build every configured box and gateway, start the server and caller
threads, and switch between them on every tick of the switch interval
until the callers are done.

Every result is checked against the builtin it called. The run ends
early when the monitor halts on an isolation violation; the fault is
printed, written to the fault file when one is configured, and the
command exits 2. Wrong or missing results exit 1.`,
		Usage: "boxvisor simulate [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("simulate", pflag.ContinueOnError)
			params.source.register(flagSet)
			flagSet.DurationVar(&params.duration, "duration", 0, "stop the run after this long (0 means no limit)")
			flagSet.StringVar(&params.trace, "trace", "", "write the monitor journal to this file (overrides monitor.trace_file)")
			flagSet.StringVar(&params.compression, "compression", "", "journal compression: none, lz4, or zstd (overrides monitor.trace_compression)")
			flagSet.StringVar(&params.faultFile, "fault-file", "", "write a halt record to this file (overrides monitor.fault_file)")
			flagSet.StringVar(&params.switchInterval, "switch-interval", "", "time between context switches (overrides monitor.switch_interval)")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Run the built-in example for at most ten seconds",
				Command:     "boxvisor simulate --example --duration 10s",
			},
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("simulate takes no positional arguments, got %q", args[0])
			}
			return runSimulate(ctx, stdout, theme, logger.With("command", "simulate"), params)
		},
	}
}

func runSimulate(ctx context.Context, stdout io.Writer, theme tui.Theme, logger *slog.Logger, params simulateParams) error {
	cfg, err := params.source.load()
	if err != nil {
		return err
	}
	if params.trace != "" {
		cfg.Monitor.TraceFile = params.trace
	}
	if params.compression != "" {
		cfg.Monitor.TraceCompression = params.compression
	}
	if params.faultFile != "" {
		cfg.Monitor.FaultFile = params.faultFile
	}
	if params.switchInterval != "" {
		cfg.Monitor.SwitchInterval = params.switchInterval
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var journal monitor.Journal
	if cfg.Monitor.TraceFile != "" {
		tag, err := tracelog.ParseCompressionTag(cfg.Monitor.TraceCompression)
		if err != nil {
			return err
		}
		writer, err := tracelog.Create(cfg.Monitor.TraceFile, tag)
		if err != nil {
			return err
		}
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("closing journal failed", "path", cfg.Monitor.TraceFile, "error", err)
			}
		}()
		journal = writer
		logger.Info("writing journal", "path", cfg.Monitor.TraceFile, "compression", tag)
	}

	system, err := sim.Build(cfg, sim.Options{
		Logger:  logger,
		Journal: journal,
		Version: version.Info(),
	})
	if err != nil {
		return err
	}

	if params.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.duration)
		defer cancel()
	}
	report, err := system.Run(ctx)
	if err != nil {
		return err
	}

	printReport(stdout, theme, report)
	switch {
	case report.Fault != nil:
		return &cli.ExitError{Code: exitHalted}
	case !report.OK():
		return &cli.ExitError{Code: 1}
	}
	return nil
}

func printReport(w io.Writer, theme tui.Theme, report *sim.Report) {
	rows := make([][]string, 0, len(report.Boxes))
	for _, box := range report.Boxes {
		rows = append(rows, []string{
			box.Name,
			strconv.FormatUint(box.Sent, 10),
			strconv.FormatUint(box.Served, 10),
		})
	}
	fmt.Fprintln(w, tui.Table{Theme: theme, Headers: []string{"BOX", "SENT", "SERVED"}, Rows: rows}.Render())

	fmt.Fprintf(w, "calls %d, completed %d, mismatches %d, timeouts %d\n",
		report.Calls, report.Completed, report.Mismatches, report.Timeouts)
	fmt.Fprintf(w, "monitor delivered %d, bounced %d, returned %d\n",
		report.Monitor.Delivered, report.Monitor.Bounced, report.Monitor.Results)
	fmt.Fprintf(w, "elapsed %s\n", report.Elapsed.Round(time.Millisecond))

	switch {
	case report.Fault != nil:
		fmt.Fprintln(w, theme.Outcome("HALTED: "+report.Fault.Error(), false))
	case report.Incomplete:
		fmt.Fprintln(w, theme.Outcome("INCOMPLETE: run stopped before every call was made", false))
	case !report.OK():
		fmt.Fprintln(w, theme.Outcome("FAILED", false))
	default:
		fmt.Fprintln(w, theme.Outcome("OK", true))
	}
}
