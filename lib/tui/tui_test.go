// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
)

func TestTableRender(t *testing.T) {
	output := Table{
		Theme:   DefaultTheme,
		Headers: []string{"EXTENT", "BASE"},
		Rows: [][]string{
			{"index", "0x20000000"},
			{"outgoing pool header", "0x20000010"},
		},
		MaxCell: 10,
	}.Render()

	plain := ansi.Strip(output)
	for _, want := range []string{"EXTENT", "BASE", "index", "0x20000000", "outgoing …"} {
		if !strings.Contains(plain, want) {
			t.Errorf("table missing %q:\n%s", want, plain)
		}
	}
	if strings.Contains(plain, "outgoing pool header") {
		t.Errorf("long cell not truncated:\n%s", plain)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"much longer than that", 8, "much lo…"},
	}
	for _, test := range tests {
		if got := Truncate(test.input, test.width); got != test.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", test.input, test.width, got, test.want)
		}
	}
}

func TestKindColor(t *testing.T) {
	theme := DefaultTheme
	if theme.KindColor("halt") != theme.KindHalt {
		t.Error("halt not colored as halt")
	}
	if theme.KindColor("thread_destroy") != theme.KindThread {
		t.Error("thread_destroy not colored as a thread event")
	}
	if theme.KindColor("mystery") != theme.FaintText {
		t.Error("unknown kind not faint")
	}
}
