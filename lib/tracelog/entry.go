// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tracelog

import (
	"fmt"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/boxvisor/lib/codec"
)

// Kind names the monitor event an entry records.
type Kind string

const (
	// KindDeliver: a call was copied from the caller's outgoing queue
	// into the callee's to-do queue.
	KindDeliver Kind = "deliver"

	// KindBounce: a call was put back in the caller's outgoing queue
	// because the callee could not take it.
	KindBounce Kind = "bounce"

	// KindResult: a result was copied back to the caller.
	KindResult Kind = "result"

	// KindHalt: the monitor found an isolation violation and stopped.
	KindHalt Kind = "halt"

	KindThreadCreate  Kind = "thread_create"
	KindThreadDestroy Kind = "thread_destroy"
)

// Entry is one journal record. Box ids are -1 when not applicable and
// slots are 255 when not applicable.
type Entry struct {
	Sequence   uint64    `cbor:"seq"`
	Time       time.Time `cbor:"time"`
	Kind       Kind      `cbor:"kind"`
	Caller     int32     `cbor:"caller"`
	Callee     int32     `cbor:"callee"`
	CallerSlot uint8     `cbor:"caller_slot"`
	CalleeSlot uint8     `cbor:"callee_slot"`
	Cookie     uint32    `cbor:"cookie,omitempty"`
	Function   uint32    `cbor:"fn,omitempty"`
	Result     uint32    `cbor:"result,omitempty"`
	Detail     string    `cbor:"detail,omitempty"`

	// Chain links this entry to its predecessor. Set by Writer.Append.
	Chain []byte `cbor:"chain,omitempty"`
}

func (e Entry) String() string {
	return fmt.Sprintf("#%d %s %s caller=%d/%d callee=%d/%d",
		e.Sequence, e.Time.Format(time.RFC3339Nano), e.Kind,
		e.Caller, e.CallerSlot, e.Callee, e.CalleeSlot)
}

// ChainSize is the length of a chain value.
const ChainSize = 32

var chainDomainKey = [32]byte{
	'b', 'o', 'x', 'v', 'i', 's', 'o', 'r', '.', 't', 'r', 'a', 'c', 'e', '.',
	'c', 'h', 'a', 'i', 'n', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// link computes the chain value of entry given its predecessor's.
// entry.Chain is ignored.
func link(previous [ChainSize]byte, entry Entry) ([ChainSize]byte, error) {
	entry.Chain = nil
	data, err := codec.Marshal(entry)
	if err != nil {
		return [ChainSize]byte{}, fmt.Errorf("tracelog: encoding entry %d: %w", entry.Sequence, err)
	}

	hasher, err := blake3.NewKeyed(chainDomainKey[:])
	if err != nil {
		return [ChainSize]byte{}, err
	}
	hasher.Write(previous[:])
	hasher.Write(data)

	var chain [ChainSize]byte
	copy(chain[:], hasher.Sum(nil))
	return chain, nil
}
