// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color palette for boxvisor's terminal output. All
// colors use lipgloss ANSI 256-color codes for broad terminal
// compatibility.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color

	// Journal entry kinds.
	KindDeliver lipgloss.Color
	KindBounce  lipgloss.Color
	KindResult  lipgloss.Color
	KindHalt    lipgloss.Color
	KindThread  lipgloss.Color

	// Outcomes.
	Good lipgloss.Color
	Bad  lipgloss.Color
}

// KindColor returns the color for a journal entry kind, or FaintText
// for kinds it does not know.
func (theme Theme) KindColor(kind string) lipgloss.Color {
	switch kind {
	case "deliver":
		return theme.KindDeliver
	case "bounce":
		return theme.KindBounce
	case "result":
		return theme.KindResult
	case "halt":
		return theme.KindHalt
	case "thread_create", "thread_destroy":
		return theme.KindThread
	default:
		return theme.FaintText
	}
}

// Outcome renders text in Good or Bad.
func (theme Theme) Outcome(text string, ok bool) string {
	color := theme.Good
	if !ok {
		color = theme.Bad
	}
	return lipgloss.NewStyle().Foreground(color).Bold(!ok).Render(text)
}

// Heading renders a section title.
func (theme Theme) Heading(text string) string {
	return lipgloss.NewStyle().Foreground(theme.HeaderForeground).Bold(true).Render(text)
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),

	KindDeliver: lipgloss.Color("75"),  // blue
	KindBounce:  lipgloss.Color("220"), // amber
	KindResult:  lipgloss.Color("114"), // green
	KindHalt:    lipgloss.Color("196"), // red
	KindThread:  lipgloss.Color("141"), // light purple

	Good: lipgloss.Color("114"),
	Bad:  lipgloss.Color("196"),
}
