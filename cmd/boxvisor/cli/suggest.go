// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"

	"github.com/spf13/pflag"
)

// maxSuggestDistance is the largest edit distance still offered as a
// "did you mean".
const maxSuggestDistance = 3

// closest returns the candidate nearest to input, or "" when none is
// within maxSuggestDistance. Ties go to the earlier candidate.
func closest(input string, candidates []string) string {
	best, bestDistance := "", maxSuggestDistance+1
	for _, candidate := range candidates {
		if distance := levenshtein(input, candidate); distance < bestDistance {
			best, bestDistance = candidate, distance
		}
	}
	return best
}

// suggestCommand returns the subcommand name nearest to unknown.
func suggestCommand(unknown string, commands []*Command) string {
	names := make([]string, 0, len(commands))
	for _, command := range commands {
		names = append(names, command.Name)
	}
	return closest(unknown, names)
}

// suggestFlag finds the first flag in args the set does not define and
// returns the nearest defined long flag, "--" prefixed.
func suggestFlag(args []string, flagSet *pflag.FlagSet) string {
	var names []string
	flagSet.VisitAll(func(f *pflag.Flag) { names = append(names, f.Name) })

	for _, arg := range args {
		if arg == "--" {
			return ""
		}
		name, long, ok := flagName(arg)
		if !ok || defined(flagSet, name, long) {
			continue
		}
		if suggestion := closest(name, names); suggestion != "" {
			return "--" + suggestion
		}
		return ""
	}
	return ""
}

// flagName strips dashes and any "=value" from arg.
func flagName(arg string) (name string, long bool, ok bool) {
	switch {
	case strings.HasPrefix(arg, "--"):
		name, long = arg[2:], true
	case strings.HasPrefix(arg, "-") && len(arg) > 1:
		name = arg[1:]
	default:
		return "", false, false
	}
	name, _, _ = strings.Cut(name, "=")
	return name, long, true
}

func defined(flagSet *pflag.FlagSet, name string, long bool) bool {
	if long {
		return flagSet.Lookup(name) != nil
	}
	return len(name) == 1 && flagSet.ShorthandLookup(name) != nil
}

// levenshtein is the edit distance between a and b, computed over two
// rows of the distance matrix.
func levenshtein(a, b string) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	previous := make([]int, len(b)+1)
	current := make([]int, len(b)+1)
	for j := range previous {
		previous[j] = j
	}
	for i := 1; i <= len(a); i++ {
		current[0] = i
		for j := 1; j <= len(b); j++ {
			substitution := previous[j-1]
			if a[i-1] != b[j-1] {
				substitution++
			}
			current[j] = min(previous[j]+1, current[j-1]+1, substitution)
		}
		previous, current = current, previous
	}
	return previous[len(b)]
}
