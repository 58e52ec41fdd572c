// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tracelog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bureau-foundation/boxvisor/lib/codec"
)

var (
	// ErrNotJournal is returned when a file does not start with the
	// journal magic.
	ErrNotJournal = errors.New("tracelog: not a journal")

	// ErrUnsupportedVersion is returned for a header version this
	// package does not read.
	ErrUnsupportedVersion = errors.New("tracelog: unsupported journal version")

	// ErrChainBroken is returned by Verify at the first entry whose
	// chain value or sequence number does not follow from its
	// predecessor.
	ErrChainBroken = errors.New("tracelog: hash chain broken")
)

// Reader reads entries from a journal in order.
type Reader struct {
	file    *os.File
	tag     CompressionTag
	decoder *codec.Decoder
	release func()
}

// Open opens the journal file at path.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	reader, err := NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	reader.file = file
	return reader, nil
}

// NewReader reads a journal header from r and returns a Reader over the
// entries after it.
func NewReader(r io.Reader) (*Reader, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: short header", ErrNotJournal)
		}
		return nil, fmt.Errorf("tracelog: reading header: %w", err)
	}
	if !bytes.Equal(header[:4], magic[:]) {
		return nil, fmt.Errorf("%w: magic %q", ErrNotJournal, header[:4])
	}
	if header[4] != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, header[4])
	}

	tag := CompressionTag(header[5])
	stream, release, err := decompressStream(r, tag)
	if err != nil {
		return nil, err
	}
	return &Reader{tag: tag, decoder: codec.NewDecoder(stream), release: release}, nil
}

// Compression returns the journal's compression tag.
func (r *Reader) Compression() CompressionTag { return r.tag }

// Next returns the next entry, or io.EOF after the last one. A journal
// cut off in the middle of an entry yields io.ErrUnexpectedEOF.
func (r *Reader) Next() (Entry, error) {
	var entry Entry
	if err := r.decoder.Decode(&entry); err != nil {
		if errors.Is(err, io.EOF) {
			return Entry{}, io.EOF
		}
		return Entry{}, fmt.Errorf("tracelog: reading entry: %w", err)
	}
	return entry, nil
}

// Close releases decoder resources and closes the file if the Reader
// opened it.
func (r *Reader) Close() error {
	r.release()
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Verify reads every entry from the journal in r and checks the
// sequence numbers and hash chain. Returns the number of entries
// verified; on failure the count covers the entries before the bad one.
func Verify(r io.Reader) (int, error) {
	reader, err := NewReader(r)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	var previous [ChainSize]byte
	count := 0
	for {
		entry, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, err
		}

		if entry.Sequence != uint64(count) {
			return count, fmt.Errorf("%w: entry %d has sequence %d", ErrChainBroken, count, entry.Sequence)
		}
		want, err := link(previous, entry)
		if err != nil {
			return count, err
		}
		if !bytes.Equal(entry.Chain, want[:]) {
			return count, fmt.Errorf("%w: at sequence %d", ErrChainBroken, entry.Sequence)
		}
		previous = want
		count++
	}
}

// VerifyFile is Verify over the journal file at path.
func VerifyFile(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()
	return Verify(file)
}
