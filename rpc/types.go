// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"fmt"

	"github.com/bureau-foundation/boxvisor/lib/memmap"
	"github.com/bureau-foundation/boxvisor/lib/pool"
)

// BoxID identifies a box. Box ids are assigned by configuration and are
// dense from zero.
type BoxID int32

// NoBox is the BoxID of an unset cross-reference.
const NoBox BoxID = -1

func (id BoxID) String() string {
	if id == NoBox {
		return "none"
	}
	return fmt.Sprintf("box%d", int32(id))
}

// FunctionID names an RPC target function. Zero is never a valid target.
type FunctionID uint32

func (f FunctionID) String() string {
	return fmt.Sprintf("fn%#x", uint32(f))
}

// Cookie identifies one call: the upper 24 bits are a counter, the low
// 8 bits the caller's outgoing slot. A zero counter marks a cookie that
// has been consumed or was never issued.
type Cookie uint32

// CookieIncrement is the step between successive counter values.
const CookieIncrement = 0x100

// NewCookie combines a counter value (a multiple of CookieIncrement) with
// a slot.
func NewCookie(counter uint32, slot pool.Slot) Cookie {
	return Cookie(counter&^0xFF | uint32(slot))
}

// Slot returns the outgoing slot the cookie refers to.
func (c Cookie) Slot() pool.Slot { return pool.Slot(c & 0xFF) }

// Counter returns the counter part, shifted down.
func (c Cookie) Counter() uint32 { return uint32(c) >> 8 }

// Valid reports whether the counter part is non-zero.
func (c Cookie) Valid() bool { return c.Counter() != 0 }

// Invalidated returns the consumed form of c: same slot, zero counter.
func (c Cookie) Invalidated() Cookie { return NewCookie(0, c.Slot()) }

func (c Cookie) String() string {
	return fmt.Sprintf("%d/%s", c.Counter(), c.Slot())
}

// Lifecycle is the progress of a call as recorded on both sides.
type Lifecycle uint32

const (
	// LifecycleIdle: not in flight. Outgoing slots start and end here;
	// the monitor returns callee copies here after result delivery.
	LifecycleIdle Lifecycle = iota

	// LifecycleSent: delivered to the callee, result pending.
	LifecycleSent

	// LifecycleDone: result copied back to the caller.
	LifecycleDone
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleIdle:
		return "idle"
	case LifecycleSent:
		return "sent"
	case LifecycleDone:
		return "done"
	default:
		return fmt.Sprintf("lifecycle(%d)", uint32(l))
	}
}

// GatewayMagic tags a gateway descriptor and records the calling
// convention it was declared for.
type GatewayMagic uint32

const (
	GatewayMagicSync  GatewayMagic = 0xB0C5_5C00
	GatewayMagicAsync GatewayMagic = 0xB0C5_A500
)

func (m GatewayMagic) String() string {
	switch m {
	case GatewayMagicSync:
		return "sync"
	case GatewayMagicAsync:
		return "async"
	default:
		return fmt.Sprintf("magic(%#x)", uint32(m))
	}
}

// ParseGatewayMagic maps "sync" and "async" to their magic values.
func ParseGatewayMagic(mode string) (GatewayMagic, error) {
	switch mode {
	case "sync", "":
		return GatewayMagicSync, nil
	case "async":
		return GatewayMagicAsync, nil
	default:
		return 0, fmt.Errorf("rpc: unknown gateway mode %q (want sync or async)", mode)
	}
}

// Gateway names an RPC target: the box that owns it and the function
// within that box. Gateways live in monitor-owned memory; callers refer
// to them by address and never construct them.
type Gateway struct {
	Magic    GatewayMagic
	Box      BoxID
	Function FunctionID
}

// Index is the table at the start of every box's memory that tells the
// monitor where the box's RPC structures are. The box owns it and can
// rewrite any field; the monitor validates every address it finds here.
type Index struct {
	Outgoing memmap.Addr
	Todo     memmap.Addr
	Done     memmap.Addr
	FnGroups memmap.Addr
}

// Sizes in bytes of the structures as laid out in box memory.
const (
	IndexSize   = 16
	GatewaySize = 12
	MessageSize = 48
	FnGroupSize = 16
)

// Default capacities.
const (
	DefaultOutgoingSlots = 8
	DefaultIncomingSlots = 4
	DefaultFnGroupSlots  = 8
)
