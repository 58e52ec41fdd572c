// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/bureau-foundation/boxvisor/lib/clock"
	"github.com/bureau-foundation/boxvisor/lib/hostsync"
	"github.com/bureau-foundation/boxvisor/lib/memmap"
	"github.com/bureau-foundation/boxvisor/lib/pool"
)

var (
	// ErrNoSlot is returned by CallAsync when the outgoing queue is full.
	ErrNoSlot = errors.New("rpc: no free outgoing slot")

	// ErrInvalidCookie is returned for a cookie that was never issued
	// by this box or names an out-of-range slot.
	ErrInvalidCookie = errors.New("rpc: invalid cookie")

	// ErrAlreadyWaited is returned by Wait when another waiter has
	// already consumed the cookie.
	ErrAlreadyWaited = errors.New("rpc: cookie already consumed by another wait")

	// ErrTimeout is returned when a wait gives up.
	ErrTimeout = errors.New("rpc: timed out")

	// ErrInFlight is returned by Release for a call the monitor has
	// picked up and not yet completed.
	ErrInFlight = errors.New("rpc: call still in flight")

	// ErrNotDequeued is returned when freeing an outgoing slot that is
	// not in the dequeued state.
	ErrNotDequeued = errors.New("rpc: outgoing slot not dequeued")

	// ErrNoGroupSlot is returned by RegisterTargets when every function
	// group slot is taken.
	ErrNoGroupSlot = errors.New("rpc: no free function group slot")

	// ErrBadHandle is returned for a handle that does not name a ready
	// function group.
	ErrBadHandle = errors.New("rpc: invalid function group handle")
)

// BoxSpec configures NewBox.
type BoxSpec struct {
	ID     BoxID
	Name   string
	Region memmap.Region

	// Space receives a mapping for the index and every queue and pool
	// header so the monitor can resolve them by address.
	Space *memmap.Space

	Clock  clock.Clock
	Logger *slog.Logger

	// Capacities. Zero selects the default.
	OutgoingSlots int
	IncomingSlots int
	FnGroupSlots  int
}

// Box is the RPC runtime of one box.
type Box struct {
	id     BoxID
	name   string
	region memmap.Region
	arena  *memmap.Arena
	clock  clock.Clock
	logger *slog.Logger

	index     *Index
	indexAddr memmap.Addr

	outgoing *pool.Queue[Message]
	todo     *pool.Queue[Message]
	done     *pool.Queue[Message]
	groups   *pool.Pool[FnGroup]

	counter atomic.Uint32
}

// NewBox lays out a box's RPC structures inside spec.Region, starting
// with the index at the region base, and maps them in spec.Space.
func NewBox(spec BoxSpec) (*Box, error) {
	if spec.Space == nil || spec.Clock == nil {
		return nil, fmt.Errorf("rpc: box %q: space and clock are required", spec.Name)
	}
	logger := spec.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	outgoingSlots := withDefault(spec.OutgoingSlots, DefaultOutgoingSlots)
	incomingSlots := withDefault(spec.IncomingSlots, DefaultIncomingSlots)
	groupSlots := withDefault(spec.FnGroupSlots, DefaultFnGroupSlots)

	box := &Box{
		id:     spec.ID,
		name:   spec.Name,
		region: spec.Region,
		arena:  memmap.NewArena(spec.Region),
		clock:  spec.Clock,
		logger: logger.With("box", spec.Name),
		index:  &Index{},
	}

	var err error
	if box.indexAddr, err = box.arena.Alloc(IndexSize, 4); err != nil {
		return nil, fmt.Errorf("rpc: box %q index: %w", spec.Name, err)
	}

	outgoingPool, err := box.newMessagePool(outgoingSlots, true)
	if err != nil {
		return nil, fmt.Errorf("rpc: box %q outgoing pool: %w", spec.Name, err)
	}
	if box.outgoing, err = box.newQueue(outgoingPool); err != nil {
		return nil, fmt.Errorf("rpc: box %q outgoing queue: %w", spec.Name, err)
	}
	for slot := range outgoingSlots {
		done, err := hostsync.NewSemaphore(spec.Clock, 0, 1)
		if err != nil {
			return nil, err
		}
		message := outgoingPool.At(pool.Slot(slot))
		message.done = done
		message.SetOtherBox(NoBox)
		message.SetOtherSlot(pool.SlotInvalid)
	}

	incomingPool, err := box.newMessagePool(incomingSlots, false)
	if err != nil {
		return nil, fmt.Errorf("rpc: box %q incoming pool: %w", spec.Name, err)
	}
	if box.todo, err = box.newQueue(incomingPool); err != nil {
		return nil, fmt.Errorf("rpc: box %q to-do queue: %w", spec.Name, err)
	}
	if box.done, err = box.newQueue(incomingPool); err != nil {
		return nil, fmt.Errorf("rpc: box %q done queue: %w", spec.Name, err)
	}

	if box.groups, err = pool.New[FnGroup](spec.Clock, groupSlots, false); err != nil {
		return nil, fmt.Errorf("rpc: box %q function groups: %w", spec.Name, err)
	}
	if box.groups.Layout, err = pool.AllocLayout(box.arena, groupSlots, FnGroupSize); err != nil {
		return nil, fmt.Errorf("rpc: box %q function groups: %w", spec.Name, err)
	}
	for slot := range groupSlots {
		semaphore, err := hostsync.NewSemaphore(spec.Clock, 0, incomingSlots)
		if err != nil {
			return nil, err
		}
		box.groups.At(pool.Slot(slot)).semaphore = semaphore
	}

	*box.index = Index{
		Outgoing: box.outgoing.Addr,
		Todo:     box.todo.Addr,
		Done:     box.done.Addr,
		FnGroups: box.groups.Layout.Header,
	}

	mappings := []struct {
		region memmap.Region
		object any
	}{
		{memmap.Region{Base: box.indexAddr, Size: IndexSize}, box.index},
		{memmap.Region{Base: box.outgoing.Addr, Size: pool.QueueHeaderSize}, box.outgoing},
		{memmap.Region{Base: box.todo.Addr, Size: pool.QueueHeaderSize}, box.todo},
		{memmap.Region{Base: box.done.Addr, Size: pool.QueueHeaderSize}, box.done},
		{memmap.Region{Base: box.groups.Layout.Header, Size: pool.HeaderSize}, box.groups},
	}
	for _, mapping := range mappings {
		if err := spec.Space.Map(mapping.region, mapping.object); err != nil {
			return nil, fmt.Errorf("rpc: box %q: %w", spec.Name, err)
		}
	}

	box.logger.Debug("box laid out",
		"index", box.indexAddr,
		"used", box.arena.Used(),
		"size", spec.Region.Size,
	)
	return box, nil
}

func withDefault(value, fallback int) int {
	if value == 0 {
		return fallback
	}
	return value
}

func (b *Box) newMessagePool(num int, blocking bool) (*pool.Pool[Message], error) {
	p, err := pool.New[Message](b.clock, num, blocking)
	if err != nil {
		return nil, err
	}
	if p.Layout, err = pool.AllocLayout(b.arena, num, MessageSize); err != nil {
		return nil, err
	}
	return p, nil
}

func (b *Box) newQueue(p *pool.Pool[Message]) (*pool.Queue[Message], error) {
	q, err := pool.NewQueue(p)
	if err != nil {
		return nil, err
	}
	if q.Addr, err = b.arena.Alloc(pool.QueueHeaderSize, 4); err != nil {
		return nil, err
	}
	return q, nil
}

// ID returns the box's id.
func (b *Box) ID() BoxID { return b.id }

// BoxIDSelf returns the id of the box the calling code runs in.
func (b *Box) BoxIDSelf() BoxID { return b.id }

// Name returns the box's configured name.
func (b *Box) Name() string { return b.name }

// Region returns the box's memory region.
func (b *Box) Region() memmap.Region { return b.region }

// Used returns how many bytes of the region the RPC structures occupy.
func (b *Box) Used() uint32 { return b.arena.Used() }

// IndexAddr returns the address of the box index.
func (b *Box) IndexAddr() memmap.Addr { return b.indexAddr }

// Index returns the box index. Code running in the box may rewrite it.
func (b *Box) Index() *Index { return b.index }

// Outgoing returns the outgoing message queue.
func (b *Box) Outgoing() *pool.Queue[Message] { return b.outgoing }

// Todo returns the incoming to-do queue.
func (b *Box) Todo() *pool.Queue[Message] { return b.todo }

// Done returns the incoming done queue.
func (b *Box) Done() *pool.Queue[Message] { return b.done }

// FnGroups returns the function-group pool.
func (b *Box) FnGroups() *pool.Pool[FnGroup] { return b.groups }
