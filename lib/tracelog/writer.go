// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tracelog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/bureau-foundation/boxvisor/lib/codec"
)

// Version is the file format version written in the header.
const Version = 1

var magic = [4]byte{'B', 'X', 'T', 'R'}

const headerSize = 6

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("tracelog: writer closed")

// Writer appends entries to a journal. Safe for concurrent use.
type Writer struct {
	mu       sync.Mutex
	file     *os.File
	stream   streamWriter
	encoder  *codec.Encoder
	sequence uint64
	chain    [ChainSize]byte
	closed   bool
}

// Create creates (or truncates) a journal file at path.
func Create(path string, tag CompressionTag) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("tracelog: creating %s: %w", path, err)
	}
	writer, err := NewWriter(file, tag)
	if err != nil {
		file.Close()
		return nil, err
	}
	writer.file = file
	return writer, nil
}

// NewWriter writes a journal header to w and returns a Writer appending
// entries after it. Close does not close w.
func NewWriter(w io.Writer, tag CompressionTag) (*Writer, error) {
	if tag > CompressionZstd {
		return nil, fmt.Errorf("tracelog: unsupported compression tag %d", uint8(tag))
	}
	header := [headerSize]byte{magic[0], magic[1], magic[2], magic[3], Version, byte(tag)}
	if _, err := w.Write(header[:]); err != nil {
		return nil, fmt.Errorf("tracelog: writing header: %w", err)
	}
	stream, err := compressStream(w, tag)
	if err != nil {
		return nil, err
	}
	return &Writer{stream: stream, encoder: codec.NewEncoder(stream)}, nil
}

// Append assigns entry the next sequence number and its chain value,
// writes it, and returns the entry as written.
func (w *Writer) Append(entry Entry) (Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return Entry{}, ErrClosed
	}

	entry.Sequence = w.sequence
	chain, err := link(w.chain, entry)
	if err != nil {
		return Entry{}, err
	}
	entry.Chain = chain[:]
	if err := w.encoder.Encode(entry); err != nil {
		return Entry{}, fmt.Errorf("tracelog: writing entry %d: %w", entry.Sequence, err)
	}
	w.sequence++
	w.chain = chain
	return entry, nil
}

// Len returns the number of entries appended so far.
func (w *Writer) Len() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sequence
}

// Sync pushes buffered entries through the compressor and, for a
// journal opened with Create, to stable storage. A journal synced
// mid-stream is readable up to the last synced entry.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if err := w.stream.Flush(); err != nil {
		return fmt.Errorf("tracelog: flushing: %w", err)
	}
	if w.file != nil {
		return w.file.Sync()
	}
	return nil
}

// Close finishes the compressed stream and closes the file if the
// Writer opened it.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.stream.Close()
	if w.file != nil {
		err = errors.Join(err, w.file.Close())
	}
	if err != nil {
		return fmt.Errorf("tracelog: closing: %w", err)
	}
	return nil
}
