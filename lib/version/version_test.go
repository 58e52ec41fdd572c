// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	info := Info()
	if !strings.HasPrefix(info, Version+" (") {
		t.Errorf("Info() = %q, want it to start with the version", info)
	}
	if GitDirty == "true" && !strings.Contains(info, "-dirty") {
		t.Errorf("Info() = %q, want a dirty marker", info)
	}
}

func TestFull(t *testing.T) {
	full := Full()
	for _, want := range []string{Info(), runtime.Version(), runtime.GOOS + "/" + runtime.GOARCH} {
		if !strings.Contains(full, want) {
			t.Errorf("Full() = %q, missing %q", full, want)
		}
	}
}
