// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"github.com/bureau-foundation/boxvisor/lib/memmap"
	"github.com/bureau-foundation/boxvisor/lib/pool"
	"github.com/bureau-foundation/boxvisor/rpc"
)

// checkContained is the one containment predicate. Every address claim
// read from box memory passes through it before it is dereferenced.
func checkContained(box BoxConfig, kind FaultKind, what string, region memmap.Region) error {
	if box.Region.ContainsRegion(region) {
		return nil
	}
	return newFault(kind, box.ID, pool.SlotInvalid, "%s %s escapes box region %s", what, region, box.Region)
}

func checkExtents(box BoxConfig, what string, extents []pool.Extent) error {
	for _, extent := range extents {
		if err := checkContained(box, FaultExtent, what+" "+extent.Name, extent.Region); err != nil {
			return err
		}
	}
	return nil
}

func (m *Monitor) resolveIndex(box BoxConfig) (*rpc.Index, error) {
	if err := checkContained(box, FaultIndex, "index", memmap.Region{Base: box.Index, Size: rpc.IndexSize}); err != nil {
		return nil, err
	}
	index, _, ok := memmap.Resolve[*rpc.Index](m.space, box.Index)
	if !ok {
		return nil, newFault(FaultIndex, box.ID, pool.SlotInvalid, "no index at %s", box.Index)
	}
	return index, nil
}

// resolveQueue validates the message queue a box's index points at.
// The header must be in the box, must really be a message queue whose
// own address is addr, and every part of its pool must be in the box.
func (m *Monitor) resolveQueue(box BoxConfig, what string, addr memmap.Addr) (*pool.Queue[rpc.Message], error) {
	header := memmap.Region{Base: addr, Size: pool.QueueHeaderSize}
	if err := checkContained(box, FaultIndex, what+" queue header", header); err != nil {
		return nil, err
	}
	queue, _, ok := memmap.Resolve[*pool.Queue[rpc.Message]](m.space, addr)
	if !ok || queue.Addr != addr {
		return nil, newFault(FaultStructure, box.ID, pool.SlotInvalid, "no %s queue at %s", what, addr)
	}
	p := queue.Pool()
	if !p.Consistent() {
		return nil, newFault(FaultStructure, box.ID, pool.SlotInvalid, "%s pool storage does not match its capacity", what)
	}
	if p.Layout.Stride != rpc.MessageSize {
		return nil, newFault(FaultStructure, box.ID, pool.SlotInvalid,
			"%s pool stride %d, want %d", what, p.Layout.Stride, rpc.MessageSize)
	}
	if err := checkExtents(box, what, queue.Extents()); err != nil {
		return nil, err
	}
	return queue, nil
}

func (m *Monitor) resolveFnGroups(box BoxConfig, addr memmap.Addr) (*pool.Pool[rpc.FnGroup], error) {
	header := memmap.Region{Base: addr, Size: pool.HeaderSize}
	if err := checkContained(box, FaultIndex, "function group pool header", header); err != nil {
		return nil, err
	}
	groups, _, ok := memmap.Resolve[*pool.Pool[rpc.FnGroup]](m.space, addr)
	if !ok || groups.Layout.Header != addr {
		return nil, newFault(FaultStructure, box.ID, pool.SlotInvalid, "no function group pool at %s", addr)
	}
	if !groups.Consistent() {
		return nil, newFault(FaultStructure, box.ID, pool.SlotInvalid, "function group storage does not match its capacity")
	}
	if groups.Layout.Stride != rpc.FnGroupSize {
		return nil, newFault(FaultStructure, box.ID, pool.SlotInvalid,
			"function group stride %d, want %d", groups.Layout.Stride, rpc.FnGroupSize)
	}
	if err := checkExtents(box, "function group", groups.Extents()); err != nil {
		return nil, err
	}
	return groups, nil
}

// callee bundles a validated callee's incoming structures.
type callee struct {
	box    BoxConfig
	todo   *pool.Queue[rpc.Message]
	done   *pool.Queue[rpc.Message]
	groups *pool.Pool[rpc.FnGroup]
}

func (m *Monitor) resolveBox(id rpc.BoxID) (*rpc.Index, BoxConfig, error) {
	box, ok := m.box(id)
	if !ok {
		return nil, BoxConfig{}, newFault(FaultStructure, id, pool.SlotInvalid, "%s is not registered", id)
	}
	index, err := m.resolveIndex(box)
	if err != nil {
		return nil, box, err
	}
	return index, box, nil
}

func (m *Monitor) resolveCallee(id rpc.BoxID) (callee, error) {
	index, box, err := m.resolveBox(id)
	if err != nil {
		return callee{}, err
	}
	// Read the index once; the box may rewrite it meanwhile.
	fields := *index
	todo, err := m.resolveQueue(box, "to-do", fields.Todo)
	if err != nil {
		return callee{}, err
	}
	done, err := m.resolveQueue(box, "done", fields.Done)
	if err != nil {
		return callee{}, err
	}
	groups, err := m.resolveFnGroups(box, fields.FnGroups)
	if err != nil {
		return callee{}, err
	}
	return callee{box: box, todo: todo, done: done, groups: groups}, nil
}

// resolveOutgoing returns the outgoing queue of a caller box.
func (m *Monitor) resolveOutgoing(id rpc.BoxID) (BoxConfig, *pool.Queue[rpc.Message], error) {
	index, box, err := m.resolveBox(id)
	if err != nil {
		return box, nil, err
	}
	fields := *index
	outgoing, err := m.resolveQueue(box, "outgoing", fields.Outgoing)
	if err != nil {
		return box, nil, err
	}
	return box, outgoing, nil
}

// ValidateBox runs every structural check the drain passes would run
// against box id, without delivering anything and without halting.
func (m *Monitor) ValidateBox(id rpc.BoxID) error {
	if _, _, err := m.resolveOutgoing(id); err != nil {
		return err
	}
	_, err := m.resolveCallee(id)
	return err
}
