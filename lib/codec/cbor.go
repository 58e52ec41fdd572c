// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	options := cbor.CoreDetEncOptions()
	// Timestamps keep nanoseconds and their zone offset.
	options.Time = cbor.TimeRFC3339Nano
	encMode, err = options.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// A record with a repeated key was not written by us.
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
		// Journal entries are flat; anything deeper is corrupt input.
		MaxNestedLevels: 16,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encoder writes a sequence of CBOR items.
type Encoder = cbor.Encoder

// Decoder reads a sequence of CBOR items.
type Decoder = cbor.Decoder

// NewEncoder returns a deterministic encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}

// Diagnose renders data, which may hold several items, in CBOR
// diagnostic notation (RFC 8949 §8). Items are separated by ", ".
func Diagnose(data []byte) (string, error) {
	var items []string
	for len(data) > 0 {
		item, rest, err := cbor.DiagnoseFirst(data)
		if err != nil {
			return strings.Join(items, ", "), err
		}
		items = append(items, item)
		data = rest
	}
	return strings.Join(items, ", "), nil
}
