// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/ansi"
)

// Table is a bordered table in the theme's colors.
type Table struct {
	Theme   Theme
	Headers []string
	Rows    [][]string

	// Color, when set, picks a foreground for a body cell. Returning ""
	// keeps NormalText.
	Color func(row, column int) lipgloss.Color

	// MaxCell truncates cells wider than this many columns. Zero means
	// no limit.
	MaxCell int
}

// Render returns the table as a string ending without a newline.
func (t Table) Render() string {
	rows := t.Rows
	if t.MaxCell > 0 {
		rows = make([][]string, len(t.Rows))
		for i, row := range t.Rows {
			rows[i] = make([]string, len(row))
			for j, cell := range row {
				rows[i][j] = Truncate(cell, t.MaxCell)
			}
		}
	}

	header := lipgloss.NewStyle().Foreground(t.Theme.HeaderForeground).Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Foreground(t.Theme.NormalText).Padding(0, 1)
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(t.Theme.BorderColor)).
		Headers(t.Headers...).
		Rows(rows...).
		StyleFunc(func(row, column int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			if t.Color != nil {
				if color := t.Color(row, column); color != "" {
					return cell.Foreground(color)
				}
			}
			return cell
		}).
		String()
}

// Truncate shortens s to at most width terminal columns, marking the
// cut with an ellipsis. Escape sequences do not count toward the width.
func Truncate(s string, width int) string {
	if ansi.StringWidth(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "…")
}
