// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tracelog

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies how the entry stream after the header is
// compressed. Stored in the file header; the values are part of the
// file format.
type CompressionTag uint8

const (
	CompressionNone CompressionTag = 0
	CompressionLZ4  CompressionTag = 1
	CompressionZstd CompressionTag = 2
)

// String returns the tag's name.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// ParseCompressionTag parses a tag name. The empty string means none.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none", "":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("tracelog: unknown compression %q (want none, lz4, or zstd)", name)
	}
}

// streamWriter is a compressing writer that can push buffered data
// through to the underlying file.
type streamWriter interface {
	io.WriteCloser
	Flush() error
}

type plainWriter struct{ io.Writer }

func (plainWriter) Flush() error { return nil }
func (plainWriter) Close() error { return nil }

func compressStream(w io.Writer, tag CompressionTag) (streamWriter, error) {
	switch tag {
	case CompressionNone:
		return plainWriter{w}, nil
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	case CompressionZstd:
		encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("tracelog: zstd writer: %w", err)
		}
		return encoder, nil
	default:
		return nil, fmt.Errorf("tracelog: unsupported compression tag %d", uint8(tag))
	}
}

// decompressStream returns a reader over the decompressed stream and a
// function releasing decoder resources.
func decompressStream(r io.Reader, tag CompressionTag) (io.Reader, func(), error) {
	switch tag {
	case CompressionNone:
		return r, func() {}, nil
	case CompressionLZ4:
		return lz4.NewReader(r), func() {}, nil
	case CompressionZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("tracelog: zstd reader: %w", err)
		}
		return decoder, decoder.Close, nil
	default:
		return nil, nil, fmt.Errorf("tracelog: unsupported compression tag %d", uint8(tag))
	}
}
