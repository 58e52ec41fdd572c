// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"fmt"

	"github.com/bureau-foundation/boxvisor/lib/memmap"
	"github.com/bureau-foundation/boxvisor/lib/pool"
	"github.com/bureau-foundation/boxvisor/rpc"
)

// AddGateway places a gateway for gw.Function in gw.Box in the gateway
// region and returns its address. Boxes call through that address; the
// name is only for lookup by configuration.
func (m *Monitor) AddGateway(name string, gw rpc.Gateway) (memmap.Addr, error) {
	switch gw.Magic {
	case rpc.GatewayMagicSync, rpc.GatewayMagicAsync:
	default:
		return 0, fmt.Errorf("monitor: gateway %q: bad magic %s", name, gw.Magic)
	}
	if _, ok := m.box(gw.Box); !ok {
		return 0, fmt.Errorf("monitor: gateway %q: %w: %s", name, ErrUnknownBox, gw.Box)
	}
	if gw.Function == 0 {
		return 0, fmt.Errorf("monitor: gateway %q: function id 0 is reserved", name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.gateways[name]; exists {
		return 0, fmt.Errorf("monitor: gateway %q already defined", name)
	}
	addr, err := m.gatewayArena.Alloc(rpc.GatewaySize, 4)
	if err != nil {
		return 0, fmt.Errorf("monitor: gateway %q: %w", name, err)
	}
	descriptor := gw
	if err := m.space.Map(memmap.Region{Base: addr, Size: rpc.GatewaySize}, &descriptor); err != nil {
		return 0, fmt.Errorf("monitor: gateway %q: %w", name, err)
	}
	m.gateways[name] = addr
	m.logger.Debug("gateway added", "name", name, "addr", addr, "box", gw.Box, "function", gw.Function, "mode", gw.Magic)
	return addr, nil
}

// LookupGateway returns the address of the named gateway.
func (m *Monitor) LookupGateway(name string) (memmap.Addr, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	addr, ok := m.gateways[name]
	return addr, ok
}

// validateGateway checks a gateway address taken from caller's
// outgoing slot. Any failure is attributed to the caller.
func (m *Monitor) validateGateway(caller rpc.BoxID, slot pool.Slot, addr memmap.Addr) (rpc.Gateway, error) {
	if !m.gatewayRegion.Contains(addr, rpc.GatewaySize) {
		return rpc.Gateway{}, newFault(FaultGateway, caller, slot,
			"gateway %s outside gateway region %s", addr, m.gatewayRegion)
	}
	if uint32(addr-m.gatewayRegion.Base)%rpc.GatewaySize != 0 {
		return rpc.Gateway{}, newFault(FaultGateway, caller, slot,
			"gateway %s is not on a descriptor boundary", addr)
	}
	descriptor, _, ok := memmap.Resolve[*rpc.Gateway](m.space, addr)
	if !ok {
		return rpc.Gateway{}, newFault(FaultGateway, caller, slot,
			"no gateway at %s", addr)
	}
	gw := *descriptor
	switch gw.Magic {
	case rpc.GatewayMagicSync, rpc.GatewayMagicAsync:
	default:
		return rpc.Gateway{}, newFault(FaultGateway, caller, slot,
			"gateway %s has bad magic %s", addr, gw.Magic)
	}
	if _, ok := m.box(gw.Box); !ok {
		return rpc.Gateway{}, newFault(FaultGateway, caller, slot,
			"gateway %s names unregistered %s", addr, gw.Box)
	}
	if gw.Function == 0 {
		return rpc.Gateway{}, newFault(FaultGateway, caller, slot,
			"gateway %s names function 0", addr)
	}
	return gw, nil
}
