// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/boxvisor/lib/clock"
	"github.com/bureau-foundation/boxvisor/lib/config"
	"github.com/bureau-foundation/boxvisor/lib/memmap"
	"github.com/bureau-foundation/boxvisor/lib/pool"
	"github.com/bureau-foundation/boxvisor/monitor"
	"github.com/bureau-foundation/boxvisor/rpc"
)

// Options are the runtime collaborators of a System.
type Options struct {
	Clock  clock.Clock
	Logger *slog.Logger

	// Journal, when set, records every monitor event.
	Journal monitor.Journal

	// FaultPath overrides the configured fault file.
	FaultPath string

	// Version is stamped into fault records.
	Version string
}

// System is a built but not yet running set of boxes.
type System struct {
	config   *config.Config
	clock    clock.Clock
	logger   *slog.Logger
	interval time.Duration

	space    *memmap.Space
	monitor  *monitor.Monitor
	boxes    []*rpc.Box
	gateways map[string]memmap.Addr

	halted chan struct{}
}

// Build validates cfg and lays out every box and gateway. Nothing runs
// until Run.
func Build(cfg *config.Config, options Options) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	interval, err := cfg.SwitchIntervalDuration()
	if err != nil {
		return nil, err
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	faultPath := options.FaultPath
	if faultPath == "" {
		faultPath = cfg.Monitor.FaultFile
	}

	system := &System{
		config:   cfg,
		clock:    options.Clock,
		logger:   logger,
		interval: interval,
		space:    memmap.NewSpace(),
		gateways: make(map[string]memmap.Addr),
		halted:   make(chan struct{}),
	}
	system.monitor, err = monitor.New(monitor.Config{
		Clock:         options.Clock,
		Logger:        logger.With("component", "monitor"),
		Space:         system.space,
		GatewayRegion: memmap.Region{Base: memmap.Addr(cfg.Monitor.GatewayBase), Size: cfg.Monitor.GatewaySize},
		Journal:       options.Journal,
		FaultPath:     faultPath,
		OnHalt:        func(*monitor.Fault) { close(system.halted) },
		Version:       options.Version,
	})
	if err != nil {
		return nil, err
	}

	for i, boxConfig := range cfg.Boxes {
		region := memmap.Region{Base: memmap.Addr(boxConfig.Base), Size: boxConfig.Size}
		box, err := rpc.NewBox(rpc.BoxSpec{
			ID:            rpc.BoxID(i),
			Name:          boxConfig.Name,
			Region:        region,
			Space:         system.space,
			Clock:         options.Clock,
			Logger:        logger,
			OutgoingSlots: boxConfig.OutgoingSlots,
			IncomingSlots: boxConfig.IncomingSlots,
			FnGroupSlots:  boxConfig.FnGroupSlots,
		})
		if err != nil {
			return nil, err
		}
		err = system.monitor.RegisterBox(monitor.BoxConfig{
			ID:     box.ID(),
			Name:   box.Name(),
			Region: region,
			Index:  box.IndexAddr(),
		})
		if err != nil {
			return nil, err
		}
		system.boxes = append(system.boxes, box)
	}

	for _, gw := range cfg.Gateways {
		magic, err := rpc.ParseGatewayMagic(gw.Mode)
		if err != nil {
			return nil, err
		}
		addr, err := system.monitor.AddGateway(gw.Name, rpc.Gateway{
			Magic:    magic,
			Box:      rpc.BoxID(cfg.BoxIndex(gw.Box)),
			Function: rpc.FunctionID(gw.Function),
		})
		if err != nil {
			return nil, err
		}
		system.gateways[gw.Name] = addr
	}

	logger.Info("system built",
		"boxes", len(system.boxes),
		"gateways", len(system.gateways),
		"switch_interval", interval,
	)
	return system, nil
}

// Monitor returns the system's monitor.
func (s *System) Monitor() *monitor.Monitor { return s.monitor }

// Box returns the box with the given name, or nil.
func (s *System) Box(name string) *rpc.Box {
	if index := s.config.BoxIndex(name); index >= 0 {
		return s.boxes[index]
	}
	return nil
}

// Gateway returns the address of the named gateway.
func (s *System) Gateway(name string) (memmap.Addr, bool) {
	addr, ok := s.gateways[name]
	return addr, ok
}

// Check runs the monitor's structural validation over every box.
func (s *System) Check() error {
	var errs []error
	for _, box := range s.boxes {
		if err := s.monitor.ValidateBox(box.ID()); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", box.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// BoxLayout describes where one box's RPC structures live.
type BoxLayout struct {
	ID      rpc.BoxID
	Name    string
	Region  memmap.Region
	Used    uint32
	Extents []pool.Extent
}

// GatewayLayout describes one placed gateway.
type GatewayLayout struct {
	Name     string
	Addr     memmap.Addr
	Box      string
	Function rpc.FunctionID
	Mode     string
}

// Layout returns every box's structures, in box id order.
func (s *System) Layout() []BoxLayout {
	layouts := make([]BoxLayout, 0, len(s.boxes))
	for _, box := range s.boxes {
		extents := []pool.Extent{{Name: "index", Region: memmap.Region{Base: box.IndexAddr(), Size: rpc.IndexSize}}}
		for _, part := range []struct {
			prefix string
			parts  []pool.Extent
		}{
			{"outgoing", box.Outgoing().Extents()},
			{"to-do", box.Todo().Extents()},
			{"done", box.Done().Extents()[:1]},
			{"fn groups", box.FnGroups().Extents()},
		} {
			for _, extent := range part.parts {
				extents = append(extents, pool.Extent{Name: part.prefix + " " + extent.Name, Region: extent.Region})
			}
		}
		layouts = append(layouts, BoxLayout{
			ID:      box.ID(),
			Name:    box.Name(),
			Region:  box.Region(),
			Used:    box.Used(),
			Extents: extents,
		})
	}
	return layouts
}

// Gateways returns the placed gateways in configuration order.
func (s *System) Gateways() []GatewayLayout {
	layouts := make([]GatewayLayout, 0, len(s.config.Gateways))
	for _, gw := range s.config.Gateways {
		mode := gw.Mode
		if mode == "" {
			mode = "sync"
		}
		layouts = append(layouts, GatewayLayout{
			Name:     gw.Name,
			Addr:     s.gateways[gw.Name],
			Box:      gw.Box,
			Function: rpc.FunctionID(gw.Function),
			Mode:     mode,
		})
	}
	return layouts
}
