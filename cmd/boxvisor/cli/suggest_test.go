// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"abc", "ab", 1},
		{"ab", "abc", 1},
		{"abc", "bac", 2},
		{"kitten", "sitting", 3},
		{"simulate", "simluate", 2},
		{"layout", "layot", 1},
	}

	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
		if got := levenshtein(test.b, test.a); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.b, test.a, got, test.want)
		}
	}
}

func TestSuggestCommand(t *testing.T) {
	commands := []*Command{
		{Name: "simulate"},
		{Name: "layout"},
		{Name: "validate"},
		{Name: "trace"},
		{Name: "fault"},
	}

	tests := []struct {
		input string
		want  string
	}{
		{"simluate", "simulate"},
		{"layot", "layout"},
		{"tarce", "trace"},
		{"faults", "fault"},
		{"zzzzzzzzz", ""},
	}

	for _, test := range tests {
		if got := suggestCommand(test.input, commands); got != test.want {
			t.Errorf("suggestCommand(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestSuggestFlag(t *testing.T) {
	newFlags := func() *pflag.FlagSet {
		flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flagSet.String("compression", "", "")
		flagSet.StringP("config", "c", "", "")
		flagSet.Bool("diag", false, "")
		return flagSet
	}

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--compresion=zstd"}, "--compression"},
		{[]string{"--confg", "x.yaml"}, "--config"},
		{[]string{"-c", "x.yaml", "--dag"}, "--diag"},
		{[]string{"--nothing-like-it"}, ""},
		{[]string{"positional"}, ""},
	}
	for _, test := range tests {
		if got := suggestFlag(test.args, newFlags()); got != test.want {
			t.Errorf("suggestFlag(%v) = %q, want %q", test.args, got, test.want)
		}
	}
}
