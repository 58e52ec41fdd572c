// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/boxvisor/cmd/boxvisor/cli"
	"github.com/bureau-foundation/boxvisor/lib/codec"
	"github.com/bureau-foundation/boxvisor/lib/tracelog"
	"github.com/bureau-foundation/boxvisor/lib/tui"
)

// maxDetail bounds the detail column of "trace show".
const maxDetail = 60

func traceCommand(stdout io.Writer, theme tui.Theme) *cli.Command {
	return &cli.Command{
		Name:    "trace",
		Summary: "Inspect monitor journals",
		Description: `Read journals written by "boxvisor simulate --trace". A journal is a
header followed by a stream of CBOR entries, optionally compressed with
lz4 or zstd, each entry carrying a BLAKE3 hash chained to the one before.`,
		Subcommands: []*cli.Command{
			traceShowCommand(stdout, theme),
			traceVerifyCommand(stdout, theme),
		},
	}
}

func traceShowCommand(stdout io.Writer, theme tui.Theme) *cli.Command {
	var (
		diag  bool
		limit int
	)
	return &cli.Command{
		Name:    "show",
		Summary: "Print the entries of a journal",
		Description: `Print every entry of a journal as a table, or with --diag as one line
of CBOR diagnostic notation per entry.`,
		Usage: "boxvisor trace show [flags] <journal>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
			flagSet.BoolVar(&diag, "diag", false, "print CBOR diagnostic notation instead of a table")
			flagSet.IntVarP(&limit, "limit", "n", 0, "print at most this many entries (0 means all)")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Show the last run's halt in context",
				Command:     "boxvisor trace show run.bxtr",
			},
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("trace show takes exactly one journal path")
			}
			return showTrace(stdout, theme, args[0], diag, limit)
		},
	}
}

func showTrace(w io.Writer, theme tui.Theme, path string, diag bool, limit int) error {
	reader, err := tracelog.Open(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	var (
		rows  [][]string
		kinds []string
	)
	for count := 0; limit <= 0 || count < limit; count++ {
		entry, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		if diag {
			data, err := codec.Marshal(entry)
			if err != nil {
				return err
			}
			notation, err := codec.Diagnose(data)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, notation)
			continue
		}

		rows = append(rows, []string{
			strconv.FormatUint(entry.Sequence, 10),
			entry.Time.Format(time.TimeOnly + ".000000"),
			string(entry.Kind),
			endpoint(entry.Caller, entry.CallerSlot),
			endpoint(entry.Callee, entry.CalleeSlot),
			cookie(entry.Cookie),
			entryDetail(entry),
		})
		kinds = append(kinds, string(entry.Kind))
	}
	if diag {
		return nil
	}

	fmt.Fprintln(w, theme.Heading(fmt.Sprintf("%s (%s, %d entries)", path, reader.Compression(), len(rows))))
	fmt.Fprintln(w, tui.Table{
		Theme:   theme,
		Headers: []string{"SEQ", "TIME", "KIND", "CALLER", "CALLEE", "COOKIE", "DETAIL"},
		Rows:    rows,
		MaxCell: maxDetail,
		Color: func(row, column int) lipgloss.Color {
			if column == 2 && row >= 0 && row < len(kinds) {
				return theme.KindColor(kinds[row])
			}
			return ""
		},
	}.Render())
	return nil
}

func endpoint(box int32, slot uint8) string {
	if box < 0 {
		return "-"
	}
	if slot == 0xFF {
		return fmt.Sprintf("box%d", box)
	}
	return fmt.Sprintf("box%d/%d", box, slot)
}

func cookie(value uint32) string {
	if value == 0 {
		return "-"
	}
	return fmt.Sprintf("%#x", value)
}

func entryDetail(entry tracelog.Entry) string {
	switch entry.Kind {
	case tracelog.KindDeliver:
		return fmt.Sprintf("fn%#x", entry.Function)
	case tracelog.KindResult:
		return fmt.Sprintf("fn%#x = %d", entry.Function, entry.Result)
	}
	return entry.Detail
}

func traceVerifyCommand(stdout io.Writer, theme tui.Theme) *cli.Command {
	return &cli.Command{
		Name:    "verify",
		Summary: "Check a journal's sequence numbers and hash chain",
		Description: `Read every entry of a journal and recompute its hash chain. Exits 1
when an entry was altered, removed, or reordered, or the journal is cut
off mid-entry.`,
		Usage: "boxvisor trace verify <journal>",
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("trace verify takes exactly one journal path")
			}
			count, err := tracelog.VerifyFile(args[0])
			if err != nil {
				fmt.Fprintln(stdout, theme.Outcome(fmt.Sprintf("%s: broken after %d entries: %v", args[0], count, err), false))
				return &cli.ExitError{Code: 1}
			}
			fmt.Fprintln(stdout, theme.Outcome(fmt.Sprintf("%s: %d entries, chain intact", args[0], count), true))
			return nil
		},
	}
}
