// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"testing"
)

type exitCoder int

func (e exitCoder) Error() string { return "handled" }
func (e exitCoder) ExitCode() int { return int(e) }

func TestReport(t *testing.T) {
	var buffer bytes.Buffer
	if code := report(&buffer, errors.New("no such file")); code != 1 {
		t.Errorf("code = %d, want 1", code)
	}
	if got := buffer.String(); got != "error: no such file\n" {
		t.Errorf("output = %q", got)
	}

	buffer.Reset()
	if code := report(&buffer, exitCoder(2)); code != 2 {
		t.Errorf("code = %d, want 2", code)
	}
	if buffer.Len() != 0 {
		t.Errorf("an exit-coded error printed %q", buffer.String())
	}
}
