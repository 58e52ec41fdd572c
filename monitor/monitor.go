// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/boxvisor/lib/clock"
	"github.com/bureau-foundation/boxvisor/lib/faultlog"
	"github.com/bureau-foundation/boxvisor/lib/memmap"
	"github.com/bureau-foundation/boxvisor/lib/pool"
	"github.com/bureau-foundation/boxvisor/lib/tracelog"
	"github.com/bureau-foundation/boxvisor/rpc"
)

var (
	// ErrUnknownBox is returned for a box id that was never registered.
	ErrUnknownBox = errors.New("monitor: unknown box")

	// ErrDuplicateBox is returned by RegisterBox for a repeated id or
	// name.
	ErrDuplicateBox = errors.New("monitor: box already registered")
)

// Switcher changes the active memory-protection context. It stands in
// for the MPU layer; a nil Switcher makes switches bookkeeping only.
type Switcher interface {
	Switch(from, to rpc.BoxID) error
}

// Journal records monitor events. *tracelog.Writer satisfies it.
type Journal interface {
	Append(tracelog.Entry) (tracelog.Entry, error)
	Sync() error
}

// Config configures New.
type Config struct {
	Clock  clock.Clock
	Logger *slog.Logger

	// Space resolves the addresses boxes publish. Boxes must map their
	// structures here.
	Space *memmap.Space

	// GatewayRegion is the monitor-owned memory gateways are placed
	// in. It must not overlap any box.
	GatewayRegion memmap.Region

	Switcher Switcher
	Journal  Journal

	// FaultPath, when set, receives a faultlog record on halt.
	FaultPath string

	// OnHalt runs once, after the fault is logged and recorded.
	OnHalt func(*Fault)

	// Version is stamped into fault records.
	Version string
}

// BoxConfig describes a box to the monitor.
type BoxConfig struct {
	ID     rpc.BoxID
	Name   string
	Region memmap.Region

	// Index is the address of the box's rpc.Index.
	Index memmap.Addr
}

// Stats counts drain outcomes since New.
type Stats struct {
	Delivered uint64
	Bounced   uint64
	Results   uint64
}

// Monitor owns the box table and the gateway table and performs every
// cross-box copy.
type Monitor struct {
	clock     clock.Clock
	logger    *slog.Logger
	space     *memmap.Space
	switcher  Switcher
	journal   Journal
	faultPath string
	onHalt    func(*Fault)
	version   string

	gatewayRegion memmap.Region
	gatewayArena  *memmap.Arena

	mu       sync.RWMutex
	boxes    map[rpc.BoxID]BoxConfig
	gateways map[string]memmap.Addr

	active  atomic.Int32
	threads *pool.Pool[threadContext]

	// drainMu serializes drain passes. The monitor is one privileged
	// context; two drains never interleave.
	drainMu sync.Mutex
	parked  map[rpc.BoxID]*parked

	haltOnce sync.Once
	fault    atomic.Pointer[Fault]

	delivered atomic.Uint64
	bounced   atomic.Uint64
	results   atomic.Uint64
}

// New returns a monitor with no boxes registered.
func New(config Config) (*Monitor, error) {
	if config.Clock == nil || config.Space == nil {
		return nil, fmt.Errorf("monitor: clock and space are required")
	}
	if config.GatewayRegion.Size < rpc.GatewaySize {
		return nil, fmt.Errorf("monitor: gateway region %s too small", config.GatewayRegion)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	threads, err := pool.New[threadContext](config.Clock, MaxThreads, false)
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		clock:         config.Clock,
		logger:        logger,
		space:         config.Space,
		switcher:      config.Switcher,
		journal:       config.Journal,
		faultPath:     config.FaultPath,
		onHalt:        config.OnHalt,
		version:       config.Version,
		gatewayRegion: config.GatewayRegion,
		gatewayArena:  memmap.NewArena(config.GatewayRegion),
		boxes:         make(map[rpc.BoxID]BoxConfig),
		gateways:      make(map[string]memmap.Addr),
		threads:       threads,
		parked:        make(map[rpc.BoxID]*parked),
	}
	m.active.Store(int32(rpc.NoBox))
	return m, nil
}

// RegisterBox adds a box to the box table. Regions must not overlap
// each other or the gateway region, and the index must lie in the box.
func (m *Monitor) RegisterBox(box BoxConfig) error {
	if box.ID < 0 {
		return fmt.Errorf("monitor: box %q: negative id %d", box.Name, box.ID)
	}
	if box.Region.Size == 0 || box.Region.End() > 1<<32 {
		return fmt.Errorf("monitor: box %q: invalid region %s", box.Name, box.Region)
	}
	if box.Region.Overlaps(m.gatewayRegion) {
		return fmt.Errorf("monitor: box %q region %s overlaps the gateway region %s", box.Name, box.Region, m.gatewayRegion)
	}
	if !box.Region.Contains(box.Index, rpc.IndexSize) {
		return fmt.Errorf("monitor: box %q index %s outside its region %s", box.Name, box.Index, box.Region)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.boxes {
		if other.ID == box.ID || other.Name == box.Name {
			return fmt.Errorf("%w: %s (%q)", ErrDuplicateBox, box.ID, box.Name)
		}
		if other.Region.Overlaps(box.Region) {
			return fmt.Errorf("monitor: box %q region %s overlaps box %q region %s", box.Name, box.Region, other.Name, other.Region)
		}
	}
	m.boxes[box.ID] = box
	m.logger.Info("box registered", "box", box.Name, "id", box.ID, "region", box.Region)
	return nil
}

func (m *Monitor) box(id rpc.BoxID) (BoxConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	box, ok := m.boxes[id]
	return box, ok
}

// Boxes returns the registered boxes ordered by id.
func (m *Monitor) Boxes() []BoxConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	boxes := make([]BoxConfig, 0, len(m.boxes))
	for _, box := range m.boxes {
		boxes = append(boxes, box)
	}
	slices.SortFunc(boxes, func(a, b BoxConfig) int { return int(a.ID) - int(b.ID) })
	return boxes
}

// BoxNamespace returns the configured name of box id.
func (m *Monitor) BoxNamespace(id rpc.BoxID) (string, error) {
	box, ok := m.box(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownBox, id)
	}
	return box.Name, nil
}

// BoxIDSelf returns the active box, or rpc.NoBox before the first
// switch.
func (m *Monitor) BoxIDSelf() rpc.BoxID {
	return rpc.BoxID(m.active.Load())
}

// BoxIDCaller returns the caller of the call held in slot of callee's
// incoming pool.
func (m *Monitor) BoxIDCaller(callee rpc.BoxID, slot pool.Slot) (rpc.BoxID, error) {
	box, ok := m.box(callee)
	if !ok {
		return rpc.NoBox, fmt.Errorf("%w: %s", ErrUnknownBox, callee)
	}
	index, err := m.resolveIndex(box)
	if err != nil {
		return rpc.NoBox, err
	}
	fields := *index
	todo, err := m.resolveQueue(box, "to-do", fields.Todo)
	if err != nil {
		return rpc.NoBox, err
	}
	message := todo.At(slot)
	if message == nil {
		return rpc.NoBox, fmt.Errorf("monitor: %s has no incoming slot %s", callee, slot)
	}
	if state, _ := todo.Pool().State(slot); state == pool.StateFree {
		return rpc.NoBox, fmt.Errorf("monitor: %s incoming slot %s is free", callee, slot)
	}
	return message.OtherBox(), nil
}

// Stats returns drain counters.
func (m *Monitor) Stats() Stats {
	return Stats{
		Delivered: m.delivered.Load(),
		Bounced:   m.bounced.Load(),
		Results:   m.results.Load(),
	}
}

// Err returns the fault the monitor halted on, or nil.
func (m *Monitor) Err() error {
	if fault := m.fault.Load(); fault != nil {
		return fault
	}
	return nil
}

// Fault returns the fault the monitor halted on, or nil.
func (m *Monitor) Fault() *Fault {
	return m.fault.Load()
}

// halt enters halted mode on the first fault and returns the fault that
// won. Later faults are logged at debug and otherwise dropped.
func (m *Monitor) halt(fault *Fault) error {
	m.haltOnce.Do(func() {
		m.fault.Store(fault)
		boxName, _ := m.BoxNamespace(fault.Box)
		m.logger.Error("isolation violation, monitor halted",
			"kind", fault.Kind,
			"box", boxName,
			"box_id", fault.Box,
			"slot", fault.Slot,
			"detail", fault.Detail,
		)

		if m.faultPath != "" {
			record := faultlog.Record{
				Kind:      string(fault.Kind),
				Box:       int32(fault.Box),
				BoxName:   boxName,
				Slot:      uint8(fault.Slot),
				Detail:    fault.Detail,
				Timestamp: m.clock.Now(),
				Version:   m.version,
			}
			if err := faultlog.Write(m.faultPath, record); err != nil {
				m.logger.Error("writing fault record failed", "path", m.faultPath, "error", err)
			}
		}

		m.record(tracelog.Entry{
			Kind:       tracelog.KindHalt,
			Caller:     int32(rpc.NoBox),
			Callee:     int32(fault.Box),
			CallerSlot: uint8(pool.SlotInvalid),
			CalleeSlot: uint8(fault.Slot),
			Detail:     fmt.Sprintf("%s: %s", fault.Kind, fault.Detail),
		})
		if m.journal != nil {
			if err := m.journal.Sync(); err != nil {
				m.logger.Warn("syncing journal after halt failed", "error", err)
			}
		}

		if m.onHalt != nil {
			m.onHalt(fault)
		}
	})
	if winner := m.fault.Load(); winner != fault {
		m.logger.Debug("fault after halt", "kind", fault.Kind, "box_id", fault.Box, "detail", fault.Detail)
	}
	return m.fault.Load()
}

// haltOn passes err through, halting first when it is a *Fault.
func (m *Monitor) haltOn(err error) error {
	var fault *Fault
	if errors.As(err, &fault) {
		return m.halt(fault)
	}
	return err
}

// record appends to the journal. A failing journal is logged and does
// not stop the monitor.
func (m *Monitor) record(entry tracelog.Entry) {
	if m.journal == nil {
		return
	}
	entry.Time = m.clock.Now()
	if _, err := m.journal.Append(entry); err != nil {
		m.logger.Warn("journal append failed", "kind", entry.Kind, "error", err)
	}
}

// spinLimit bounds the retries of a Try operation that is expected to
// succeed once a box thread releases a queue lock.
const spinLimit = 256

func spin(operation func() bool) bool {
	for range spinLimit {
		if operation() {
			return true
		}
		runtime.Gosched()
	}
	return false
}
