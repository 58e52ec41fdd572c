// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sim

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/boxvisor/lib/config"
	"github.com/bureau-foundation/boxvisor/lib/faultlog"
	"github.com/bureau-foundation/boxvisor/lib/tracelog"
	"github.com/bureau-foundation/boxvisor/monitor"
)

func exampleConfig() *config.Config {
	cfg := config.Example()
	cfg.Monitor.SwitchInterval = "200us"
	return cfg
}

func build(t *testing.T, cfg *config.Config, options Options) *System {
	t.Helper()
	system, err := Build(cfg, options)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return system
}

func run(t *testing.T, system *System) *Report {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	report, err := system.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return report
}

func TestRunExample(t *testing.T) {
	var journal bytes.Buffer
	writer, err := tracelog.NewWriter(&journal, tracelog.CompressionLZ4)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	system := build(t, exampleConfig(), Options{Journal: writer})

	report := run(t, system)
	if err := writer.Close(); err != nil {
		t.Fatalf("closing journal: %v", err)
	}

	if !report.OK() {
		t.Errorf("report not OK: %+v", report)
	}
	if report.Calls != 150 || report.Completed != 150 {
		t.Errorf("calls = %d completed = %d, want 150 each", report.Calls, report.Completed)
	}
	if report.Mismatches != 0 || report.Timeouts != 0 {
		t.Errorf("mismatches = %d timeouts = %d", report.Mismatches, report.Timeouts)
	}
	if report.Monitor.Delivered != 150 || report.Monitor.Results != 150 {
		t.Errorf("monitor stats = %+v, want 150 delivered and returned", report.Monitor)
	}
	if len(report.Boxes) != 2 {
		t.Fatalf("box reports = %+v", report.Boxes)
	}
	if client := report.Boxes[0]; client.Name != "client" || client.Sent != 150 || client.Served != 0 {
		t.Errorf("client report = %+v", client)
	}
	if server := report.Boxes[1]; server.Name != "server" || server.Sent != 0 || server.Served != 150 {
		t.Errorf("server report = %+v", server)
	}

	if n := system.Monitor().Threads(); n != 0 {
		t.Errorf("threads left after run = %d", n)
	}
	if n := system.Box("client").Outgoing().Pool().NumAllocated(); n != 0 {
		t.Errorf("client outgoing slots left allocated = %d", n)
	}
	if n := system.Box("server").Todo().Pool().NumAllocated(); n != 0 {
		t.Errorf("server incoming slots left allocated = %d", n)
	}
	if n := system.Box("server").FnGroups().NumAllocated(); n != 0 {
		t.Errorf("server function groups left registered = %d", n)
	}

	// Two server threads and three caller threads, created and destroyed,
	// plus a delivery and a result per call.
	count, err := tracelog.Verify(bytes.NewReader(journal.Bytes()))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if want := 5*2 + 150*2 + int(report.Monitor.Bounced); count != want {
		t.Errorf("journal entries = %d, want %d", count, want)
	}
}

func TestRunHaltsOnForgedStructure(t *testing.T) {
	faultPath := filepath.Join(t.TempDir(), "fault.cbor")
	system := build(t, exampleConfig(), Options{FaultPath: faultPath, Version: "test"})

	// The server's incoming backing array claims client memory.
	client := system.Box("client").Region()
	system.Box("server").Todo().Pool().Layout.Array = client.Base

	report := run(t, system)
	if report.Fault == nil {
		t.Fatal("run finished without a fault")
	}
	if report.Fault.Kind != monitor.FaultExtent || report.Fault.Box != system.Box("server").ID() {
		t.Errorf("fault = %v, want an extent fault in the server box", report.Fault)
	}
	if report.OK() {
		t.Error("report of a halted run is OK")
	}
	if report.Incomplete {
		t.Error("halted run reported as incomplete")
	}
	if !errors.Is(system.Monitor().Err(), monitor.ErrHalted) {
		t.Errorf("monitor Err = %v, want halted", system.Monitor().Err())
	}

	record, err := faultlog.Read(faultPath)
	if err != nil {
		t.Fatalf("reading fault record: %v", err)
	}
	if record.Kind != string(monitor.FaultExtent) || record.BoxName != "server" || record.Version != "test" {
		t.Errorf("fault record = %+v", record)
	}
}

func TestRunCancelled(t *testing.T) {
	cfg := exampleConfig()
	cfg.Workload.Callers[0].Calls = 1_000_000
	system := build(t, cfg, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	report, err := system.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Incomplete {
		t.Error("cancelled run not reported as incomplete")
	}
	if report.Fault != nil {
		t.Errorf("cancelled run faulted: %v", report.Fault)
	}
	if report.Mismatches != 0 {
		t.Errorf("mismatches = %d", report.Mismatches)
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := exampleConfig()
	cfg.Boxes = nil
	if _, err := Build(cfg, Options{}); err == nil {
		t.Fatal("Build accepted a config with no boxes")
	}
}

func TestLayout(t *testing.T) {
	system := build(t, exampleConfig(), Options{})

	layouts := system.Layout()
	if len(layouts) != 2 {
		t.Fatalf("layouts = %d, want 2", len(layouts))
	}
	for _, layout := range layouts {
		if layout.Used == 0 || layout.Used > layout.Region.Size {
			t.Errorf("%s: used %d of %d", layout.Name, layout.Used, layout.Region.Size)
		}
		if len(layout.Extents) == 0 || layout.Extents[0].Name != "index" || layout.Extents[0].Region.Base != layout.Region.Base {
			t.Errorf("%s: first extent = %+v, want the index at the region base", layout.Name, layout.Extents[0])
		}
		for _, extent := range layout.Extents {
			if !layout.Region.ContainsRegion(extent.Region) {
				t.Errorf("%s: %s %s outside %s", layout.Name, extent.Name, extent.Region, layout.Region)
			}
		}
		for i, a := range layout.Extents {
			for _, b := range layout.Extents[i+1:] {
				if a.Region.Overlaps(b.Region) {
					t.Errorf("%s: %s overlaps %s", layout.Name, a.Name, b.Name)
				}
			}
		}
	}

	gateways := system.Gateways()
	if len(gateways) != 2 {
		t.Fatalf("gateways = %+v", gateways)
	}
	if gateways[0].Name != "server.add" || gateways[0].Mode != "sync" || gateways[1].Mode != "async" {
		t.Errorf("gateways = %+v", gateways)
	}
	if gateways[1].Addr-gateways[0].Addr != 12 {
		t.Errorf("gateways at %s and %s, want adjacent", gateways[0].Addr, gateways[1].Addr)
	}
	if addr, ok := system.Gateway("server.add"); !ok || addr != gateways[0].Addr {
		t.Errorf("Gateway(server.add) = %s, %v", addr, ok)
	}
}

func TestCheck(t *testing.T) {
	system := build(t, exampleConfig(), Options{})
	if err := system.Check(); err != nil {
		t.Fatalf("Check on a fresh system: %v", err)
	}

	system.Box("client").Outgoing().Pool().Layout.Stride = 4
	if err := system.Check(); err == nil {
		t.Error("Check accepted a forged stride")
	}
	if err := system.Monitor().Err(); err != nil {
		t.Errorf("Check halted the monitor: %v", err)
	}
}

func TestBuiltins(t *testing.T) {
	for _, name := range config.Builtins {
		if _, ok := Builtin(name); !ok {
			t.Errorf("builtin %q has no implementation", name)
		}
	}
	if _, ok := Builtin("pow"); ok {
		t.Error(`Builtin("pow") found`)
	}

	tests := []struct {
		name string
		args [4]uint32
		want uint32
	}{
		{"add", [4]uint32{2, 3, 0, 0}, 5},
		{"sub", [4]uint32{2, 3, 0, 0}, 0xFFFF_FFFF},
		{"mul", [4]uint32{6, 7, 0, 0}, 42},
		{"xor", [4]uint32{1, 2, 4, 8}, 15},
		{"echo", [4]uint32{9, 1, 1, 1}, 9},
		{"sleep", [4]uint32{70, 0, 0, 0}, 70},
	}
	for _, test := range tests {
		function, _ := Builtin(test.name)
		if got := function(test.args); got != test.want {
			t.Errorf("%s(%v) = %d, want %d", test.name, test.args, got, test.want)
		}
	}

	sum, _ := Builtin("checksum")
	if sum([4]uint32{1, 2, 3, 4}) != sum([4]uint32{1, 2, 3, 4}) {
		t.Error("checksum is not deterministic")
	}
	if sum([4]uint32{1, 2, 3, 4}) == sum([4]uint32{1, 2, 3, 5}) {
		t.Error("checksum ignores the last argument")
	}
}
