// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tracelog

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/boxvisor/lib/codec"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleEntries() []Entry {
	return []Entry{
		{Time: epoch, Kind: KindThreadCreate, Caller: 1, Callee: -1, CallerSlot: 0, CalleeSlot: 255},
		{Time: epoch.Add(time.Millisecond), Kind: KindDeliver, Caller: 1, Callee: 2, CallerSlot: 0, CalleeSlot: 1, Cookie: 0x100, Function: 0x10},
		{Time: epoch.Add(2 * time.Millisecond), Kind: KindBounce, Caller: 1, Callee: 2, CallerSlot: 1, CalleeSlot: 255, Detail: "callee full"},
		{Time: epoch.Add(3 * time.Millisecond), Kind: KindResult, Caller: 1, Callee: 2, CallerSlot: 0, CalleeSlot: 1, Cookie: 0x100, Result: 42},
		{Time: epoch.Add(4 * time.Millisecond), Kind: KindHalt, Caller: -1, Callee: 2, CallerSlot: 255, CalleeSlot: 3, Detail: "pool header escapes box"},
	}
}

func writeJournal(t *testing.T, tag CompressionTag, entries []Entry) []byte {
	t.Helper()
	var buffer bytes.Buffer
	writer, err := NewWriter(&buffer, tag)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for _, entry := range entries {
		if _, err := writer.Append(entry); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buffer.Bytes()
}

func readAll(t *testing.T, data []byte) []Entry {
	t.Helper()
	reader, err := NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer reader.Close()
	var entries []Entry
	for {
		entry, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return entries
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		entries = append(entries, entry)
	}
}

func TestRoundTripEveryCompression(t *testing.T) {
	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(tag.String(), func(t *testing.T) {
			want := sampleEntries()
			data := writeJournal(t, tag, want)
			if !bytes.Equal(data[:4], []byte("BXTR")) || data[4] != Version || CompressionTag(data[5]) != tag {
				t.Fatalf("header = %x", data[:6])
			}

			got := readAll(t, data)
			if len(got) != len(want) {
				t.Fatalf("read %d entries, want %d", len(got), len(want))
			}
			for i := range want {
				if got[i].Sequence != uint64(i) {
					t.Errorf("entry %d sequence = %d", i, got[i].Sequence)
				}
				if got[i].Kind != want[i].Kind || got[i].Detail != want[i].Detail || got[i].Result != want[i].Result {
					t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
				}
				if !got[i].Time.Equal(want[i].Time) {
					t.Errorf("entry %d time = %v, want %v", i, got[i].Time, want[i].Time)
				}
				if len(got[i].Chain) != ChainSize {
					t.Errorf("entry %d chain length = %d", i, len(got[i].Chain))
				}
			}

			count, err := Verify(bytes.NewReader(data))
			if err != nil || count != len(want) {
				t.Errorf("Verify = %d, %v; want %d, nil", count, err, len(want))
			}
		})
	}
}

// rewrite builds an uncompressed journal from already-chained entries,
// as someone editing a journal by hand would.
func rewrite(t *testing.T, entries []Entry) []byte {
	t.Helper()
	var buffer bytes.Buffer
	buffer.Write([]byte{'B', 'X', 'T', 'R', Version, byte(CompressionNone)})
	encoder := codec.NewEncoder(&buffer)
	for _, entry := range entries {
		if err := encoder.Encode(entry); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}
	return buffer.Bytes()
}

func TestVerifyDetectsTampering(t *testing.T) {
	original := readAll(t, writeJournal(t, CompressionNone, sampleEntries()))

	t.Run("altered result", func(t *testing.T) {
		entries := append([]Entry(nil), original...)
		entries[3].Result = 43
		count, err := Verify(bytes.NewReader(rewrite(t, entries)))
		if !errors.Is(err, ErrChainBroken) || count != 3 {
			t.Errorf("Verify = %d, %v; want 3, ErrChainBroken", count, err)
		}
	})

	t.Run("dropped entry", func(t *testing.T) {
		entries := append(append([]Entry(nil), original[:2]...), original[3:]...)
		count, err := Verify(bytes.NewReader(rewrite(t, entries)))
		if !errors.Is(err, ErrChainBroken) || count != 2 {
			t.Errorf("Verify = %d, %v; want 2, ErrChainBroken", count, err)
		}
	})

	t.Run("swapped entries", func(t *testing.T) {
		entries := append([]Entry(nil), original...)
		entries[1], entries[2] = entries[2], entries[1]
		entries[1].Sequence, entries[2].Sequence = 1, 2
		count, err := Verify(bytes.NewReader(rewrite(t, entries)))
		if !errors.Is(err, ErrChainBroken) || count != 1 {
			t.Errorf("Verify = %d, %v; want 1, ErrChainBroken", count, err)
		}
	})

	t.Run("untouched", func(t *testing.T) {
		count, err := Verify(bytes.NewReader(rewrite(t, original)))
		if err != nil || count != len(original) {
			t.Errorf("Verify = %d, %v", count, err)
		}
	})
}

func TestNewReaderRejectsBadHeaders(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrNotJournal},
		{"short", []byte("BXT"), ErrNotJournal},
		{"wrong magic", []byte{'J', 'U', 'N', 'K', Version, 0}, ErrNotJournal},
		{"future version", []byte{'B', 'X', 'T', 'R', Version + 1, 0}, ErrUnsupportedVersion},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := NewReader(bytes.NewReader(test.data)); !errors.Is(err, test.want) {
				t.Errorf("NewReader = %v, want %v", err, test.want)
			}
		})
	}
	if _, err := NewReader(bytes.NewReader([]byte{'B', 'X', 'T', 'R', Version, 9})); err == nil {
		t.Error("NewReader accepted an unknown compression tag")
	}
}

func TestTruncatedJournal(t *testing.T) {
	data := writeJournal(t, CompressionNone, sampleEntries())
	reader, err := NewReader(bytes.NewReader(data[:len(data)-3]))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	var lastErr error
	for range 10 {
		if _, lastErr = reader.Next(); lastErr != nil {
			break
		}
	}
	if lastErr == nil || errors.Is(lastErr, io.EOF) {
		t.Errorf("reading a truncated journal ended with %v, want a decode error", lastErr)
	}
}

func TestFileJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.bxtr")
	writer, err := Create(path, CompressionZstd)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, entry := range sampleEntries() {
		if _, err := writer.Append(entry); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := writer.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := writer.Append(Entry{Kind: KindHalt}); !errors.Is(err, ErrClosed) {
		t.Errorf("Append after Close = %v, want ErrClosed", err)
	}

	reader, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if reader.Compression() != CompressionZstd {
		t.Errorf("compression = %s, want zstd", reader.Compression())
	}
	first, err := reader.Next()
	if err != nil || first.Kind != KindThreadCreate {
		t.Errorf("first entry = %+v, %v", first, err)
	}
	reader.Close()

	count, err := VerifyFile(path)
	if err != nil || count != len(sampleEntries()) {
		t.Errorf("VerifyFile = %d, %v", count, err)
	}
}

func TestConcurrentAppend(t *testing.T) {
	var buffer bytes.Buffer
	writer, err := NewWriter(&buffer, CompressionLZ4)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	var wg sync.WaitGroup
	for worker := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 25 {
				if _, err := writer.Append(Entry{Time: epoch, Kind: KindDeliver, Caller: int32(worker)}); err != nil {
					t.Errorf("Append: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	if writer.Len() != 100 {
		t.Errorf("Len = %d, want 100", writer.Len())
	}
	writer.Close()

	count, err := Verify(bytes.NewReader(buffer.Bytes()))
	if err != nil || count != 100 {
		t.Errorf("Verify = %d, %v; want 100, nil", count, err)
	}
}

func TestParseCompressionTag(t *testing.T) {
	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		parsed, err := ParseCompressionTag(tag.String())
		if err != nil || parsed != tag {
			t.Errorf("ParseCompressionTag(%q) = %s, %v", tag.String(), parsed, err)
		}
	}
	if _, err := ParseCompressionTag("bzip2"); err == nil {
		t.Error("ParseCompressionTag accepted bzip2")
	}
}
