// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds boxvisor's one CBOR configuration.
//
// Everything boxvisor writes to disk is CBOR: the monitor's trace
// journal is a sequence of CBOR entries and the fault record is a
// single CBOR map. Both are hashed or compared byte for byte, so the
// encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map
// keys, shortest integer forms, definite lengths only. Encoding the
// same value twice yields the same bytes, which the journal's hash
// chain depends on.
//
// Files:
//
//	data, err := codec.Marshal(record)
//	err = codec.Unmarshal(data, &record)
//
// Streams:
//
//	encoder := codec.NewEncoder(w)
//	decoder := codec.NewDecoder(r)
//
// Types serialized here carry `cbor` struct tags with short keys.
package codec
