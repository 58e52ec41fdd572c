// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package faultlog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/boxvisor/lib/codec"
)

// Record describes one halt.
type Record struct {
	// Kind classifies the violation, e.g. "extent" or
	// "gateway".
	Kind string `cbor:"kind"`

	// Box is the id of the box whose structures were at fault, or -1
	// when the fault is not attributable to one box.
	Box int32 `cbor:"box"`

	// BoxName is the configured name of Box.
	BoxName string `cbor:"box_name,omitempty"`

	// Slot is the slot involved, or 255 when none.
	Slot uint8 `cbor:"slot"`

	// Detail is a human-readable description.
	Detail string `cbor:"detail"`

	// Timestamp is when the monitor halted.
	Timestamp time.Time `cbor:"timestamp"`

	// Version is the build that wrote the record.
	Version string `cbor:"version,omitempty"`
}

func (r Record) String() string {
	box := fmt.Sprintf("box %d", r.Box)
	if r.BoxName != "" {
		box = fmt.Sprintf("box %d (%s)", r.Box, r.BoxName)
	}
	return fmt.Sprintf("%s: %s slot %d: %s", r.Kind, box, r.Slot, r.Detail)
}

// Write atomically replaces the record at path. The parent directory
// must exist. The file is created with mode 0600.
func Write(path string, record Record) error {
	data, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding fault record: %w", err)
	}

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating temporary fault file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary fault file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary fault file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary fault file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming fault file into place: %w", err)
	}

	// The rename is durable only once the directory entry is.
	if directory, err := os.Open(filepath.Dir(path)); err == nil {
		directory.Sync()
		directory.Close()
	}
	return nil
}

// Read returns the record at path. A missing file yields an error
// wrapping os.ErrNotExist.
func Read(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	var record Record
	if err := codec.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("parsing fault file %s: %w", path, err)
	}
	return record, nil
}

// Clear removes the record at path. Removing a missing record is not an
// error.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing fault file: %w", err)
	}
	return nil
}
