// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package faultlog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleRecord() Record {
	return Record{
		Kind:      "queue-extent",
		Box:       2,
		BoxName:   "beta",
		Slot:      255,
		Detail:    "outgoing backing array [0x20002000, 0x20002180) escapes box",
		Timestamp: time.Date(2026, 2, 10, 15, 30, 0, 0, time.UTC),
		Version:   "v0.1.0",
	}
}

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fault.cbor")
	want := sampleRecord()
	if err := Write(path, want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Kind != want.Kind || got.Box != want.Box || got.BoxName != want.BoxName ||
		got.Slot != want.Slot || got.Detail != want.Detail || got.Version != want.Version {
		t.Errorf("Read = %+v, want %+v", got, want)
	}
	if !got.Timestamp.Equal(want.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, want.Timestamp)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("mode = %o, want 600", perm)
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Error("temporary file left behind")
	}
}

func TestWriteReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fault.cbor")
	first := sampleRecord()
	if err := Write(path, first); err != nil {
		t.Fatalf("Write first: %v", err)
	}
	second := sampleRecord()
	second.Kind = "result-mismatch"
	second.Slot = 1
	if err := Write(path, second); err != nil {
		t.Fatalf("Write second: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Kind != "result-mismatch" || got.Slot != 1 {
		t.Errorf("Read = %+v, want the second record", got)
	}
}

func TestReadMissing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Read of missing file = %v, want os.ErrNotExist", err)
	}
}

func TestReadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fault.cbor")
	if err := os.WriteFile(path, []byte{0xFF, 0x00, 0x13}, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil || errors.Is(err, os.ErrNotExist) {
		t.Errorf("Read of corrupt file = %v, want a parse error", err)
	}
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fault.cbor")
	if err := Write(path, sampleRecord()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := Clear(path); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := Read(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Read after Clear = %v, want os.ErrNotExist", err)
	}
	if err := Clear(path); err != nil {
		t.Errorf("second Clear = %v, want nil", err)
	}
}

func TestWriteMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no", "such", "dir", "fault.cbor")
	if err := Write(path, sampleRecord()); err == nil {
		t.Error("Write into a missing directory succeeded")
	}
}

func TestRecordString(t *testing.T) {
	text := sampleRecord().String()
	for _, want := range []string{"queue-extent", "beta", "escapes box"} {
		if !strings.Contains(text, want) {
			t.Errorf("String() = %q, missing %q", text, want)
		}
	}
}
