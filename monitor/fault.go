// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/boxvisor/lib/pool"
	"github.com/bureau-foundation/boxvisor/rpc"
)

// ErrHalted matches every *Fault under errors.Is.
var ErrHalted = errors.New("monitor: halted")

// FaultKind classifies an isolation violation.
type FaultKind string

const (
	// FaultIndex: a box index is outside its box or not mapped.
	FaultIndex FaultKind = "index"

	// FaultExtent: a queue or pool claims memory outside its box.
	FaultExtent FaultKind = "extent"

	// FaultStructure: an address does not resolve to the structure it
	// should, or a pool's layout contradicts its contents.
	FaultStructure FaultKind = "structure"

	// FaultGateway: a call names a gateway the monitor did not issue.
	FaultGateway FaultKind = "gateway"

	// FaultResult: a result does not match the call waiting for it.
	FaultResult FaultKind = "result"
)

// Fault is the isolation violation that halted the monitor.
type Fault struct {
	Kind FaultKind
	Box  rpc.BoxID
	Slot pool.Slot

	// Detail says what was wrong in terms of addresses and values.
	Detail string
}

func (f *Fault) Error() string {
	if f.Slot == pool.SlotInvalid {
		return fmt.Sprintf("monitor halted: %s fault in %s: %s", f.Kind, f.Box, f.Detail)
	}
	return fmt.Sprintf("monitor halted: %s fault in %s slot %s: %s", f.Kind, f.Box, f.Slot, f.Detail)
}

// Is reports whether target is ErrHalted.
func (f *Fault) Is(target error) bool { return target == ErrHalted }

func newFault(kind FaultKind, box rpc.BoxID, slot pool.Slot, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Box: box, Slot: slot, Detail: fmt.Sprintf(format, args...)}
}
