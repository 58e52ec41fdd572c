// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sim

import (
	"encoding/binary"
	"runtime"

	"github.com/zeebo/blake3"
)

// Function is a builtin a server box runs for a call. Callers run the
// same function locally to check what came back.
type Function func(args [4]uint32) uint32

var builtins = map[string]Function{
	"add":  func(args [4]uint32) uint32 { return args[0] + args[1] },
	"sub":  func(args [4]uint32) uint32 { return args[0] - args[1] },
	"mul":  func(args [4]uint32) uint32 { return args[0] * args[1] },
	"xor":  func(args [4]uint32) uint32 { return args[0] ^ args[1] ^ args[2] ^ args[3] },
	"echo": func(args [4]uint32) uint32 { return args[0] },

	"checksum": checksum,
	"sleep":    sleep,
}

// Builtin returns the named function.
func Builtin(name string) (Function, bool) {
	function, ok := builtins[name]
	return function, ok
}

// checksum is the first word of the BLAKE3 digest of the arguments.
func checksum(args [4]uint32) uint32 {
	var buffer [16]byte
	for i, arg := range args {
		binary.LittleEndian.PutUint32(buffer[4*i:], arg)
	}
	digest := blake3.Sum256(buffer[:])
	return binary.LittleEndian.Uint32(digest[:4])
}

// sleep yields the processor args[0]%64 times, holding the serving
// thread busy without touching the clock.
func sleep(args [4]uint32) uint32 {
	for range args[0] % 64 {
		runtime.Gosched()
	}
	return args[0]
}
