// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local experimentation.
	Development Environment = "development"
	// Staging is for pre-production runs.
	Staging Environment = "staging"
	// Production records every halt and journals every delivery.
	Production Environment = "production"
)

// Builtins are the function implementations a workload can bind a
// gateway to.
var Builtins = []string{"add", "sub", "mul", "xor", "echo", "checksum", "sleep"}

// maxSlots mirrors the pool capacity limit; slot fields outside
// 1..maxSlots (other than 0, meaning default) are rejected.
const maxSlots = 0xFD

// Config is the master configuration for a boxvisor system.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Monitor configures the privileged side.
	Monitor MonitorConfig `yaml:"monitor"`

	// Boxes are assigned ids in list order, starting at 0.
	Boxes []BoxConfig `yaml:"boxes"`

	// Gateways are placed in the gateway region in list order.
	Gateways []GatewayConfig `yaml:"gateways"`

	// Workload describes the threads a simulation runs.
	Workload Workload `yaml:"workload"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Monitor *MonitorConfig `yaml:"monitor,omitempty"`
}

// MonitorConfig configures the monitor.
type MonitorConfig struct {
	// SwitchInterval is the scheduler tick: one switch per live thread
	// per tick.
	// Default: 1ms
	SwitchInterval string `yaml:"switch_interval"`

	// TraceFile receives the delivery journal. Empty disables it.
	TraceFile string `yaml:"trace_file"`

	// TraceCompression is none, lz4, or zstd.
	// Default: none (development), zstd (production)
	TraceCompression string `yaml:"trace_compression"`

	// FaultFile receives the fault record on halt. Empty disables it.
	FaultFile string `yaml:"fault_file"`

	// GatewayBase and GatewaySize place the monitor's gateway region.
	// Default: 0x10000000, 0x1000
	GatewayBase uint32 `yaml:"gateway_base"`
	GatewaySize uint32 `yaml:"gateway_size"`
}

// BoxConfig places one box.
type BoxConfig struct {
	Name string `yaml:"name"`
	Base uint32 `yaml:"base"`
	Size uint32 `yaml:"size"`

	// Slot counts. Zero selects the runtime default.
	OutgoingSlots int `yaml:"outgoing_slots"`
	IncomingSlots int `yaml:"incoming_slots"`
	FnGroupSlots  int `yaml:"fn_group_slots"`
}

// GatewayConfig declares one callable target.
type GatewayConfig struct {
	Name string `yaml:"name"`

	// Box is the name of the box that serves the function.
	Box string `yaml:"box"`

	Function uint32 `yaml:"function"`

	// Builtin is the implementation the serving box runs.
	Builtin string `yaml:"builtin"`

	// Mode is sync or async. Callers of an async gateway use
	// call-then-wait; callers of a sync gateway block in the call.
	// Default: sync
	Mode string `yaml:"mode"`
}

// Workload describes simulated box threads.
type Workload struct {
	Servers []ServerConfig `yaml:"servers"`
	Callers []CallerConfig `yaml:"callers"`
}

// ServerConfig is a group of threads in Box serving the functions
// behind Gateways.
type ServerConfig struct {
	Box      string   `yaml:"box"`
	Threads  int      `yaml:"threads"`
	Gateways []string `yaml:"gateways"`
}

// CallerConfig is a group of threads in Box each making Calls calls
// through Gateway.
type CallerConfig struct {
	Box     string `yaml:"box"`
	Gateway string `yaml:"gateway"`
	Threads int    `yaml:"threads"`
	Calls   int    `yaml:"calls"`

	// WaitTimeout bounds each wait on an async gateway. Empty means
	// one second.
	WaitTimeout string `yaml:"wait_timeout"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file;
// a file that declares no boxes does not validate.
func Default() *Config {
	return &Config{
		Environment: Development,
		Monitor: MonitorConfig{
			SwitchInterval:   "1ms",
			TraceCompression: "none",
			GatewayBase:      0x1000_0000,
			GatewaySize:      0x1000,
		},
	}
}

// Example returns a complete two-box configuration: "client" calls
// "server" through one sync and one async gateway.
func Example() *Config {
	cfg := Default()
	cfg.Boxes = []BoxConfig{
		{Name: "client", Base: 0x2000_0000, Size: 0x1000},
		{Name: "server", Base: 0x2000_1000, Size: 0x1000},
	}
	cfg.Gateways = []GatewayConfig{
		{Name: "server.add", Box: "server", Function: 0x10, Builtin: "add", Mode: "sync"},
		{Name: "server.checksum", Box: "server", Function: 0x11, Builtin: "checksum", Mode: "async"},
	}
	cfg.Workload = Workload{
		Servers: []ServerConfig{{Box: "server", Threads: 2, Gateways: []string{"server.add", "server.checksum"}}},
		Callers: []CallerConfig{
			{Box: "client", Gateway: "server.add", Threads: 2, Calls: 50},
			{Box: "client", Gateway: "server.checksum", Threads: 1, Calls: 50, WaitTimeout: "1s"},
		},
	}
	return cfg
}

// Load loads configuration from BOXVISOR_CONFIG environment variable.
//
// There are no fallbacks or defaults - if BOXVISOR_CONFIG is not set,
// this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("BOXVISOR_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("BOXVISOR_CONFIG environment variable not set; " +
			"set it to the path of your boxvisor.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document over Default, applies the environment
// overrides, and expands variables. Unknown keys are errors.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: every halt leaves a record and a journal.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Monitor: &MonitorConfig{
					TraceFile:        "${BOXVISOR_STATE:-/var/lib/boxvisor}/trace.bxtr",
					TraceCompression: "zstd",
					FaultFile:        "${BOXVISOR_STATE:-/var/lib/boxvisor}/fault.cbor",
				},
			}
		}
	}

	if overrides == nil || overrides.Monitor == nil {
		return
	}
	monitor := overrides.Monitor
	if monitor.SwitchInterval != "" {
		c.Monitor.SwitchInterval = monitor.SwitchInterval
	}
	if monitor.TraceFile != "" {
		c.Monitor.TraceFile = monitor.TraceFile
	}
	if monitor.TraceCompression != "" {
		c.Monitor.TraceCompression = monitor.TraceCompression
	}
	if monitor.FaultFile != "" {
		c.Monitor.FaultFile = monitor.FaultFile
	}
	if monitor.GatewayBase != 0 {
		c.Monitor.GatewayBase = monitor.GatewayBase
	}
	if monitor.GatewaySize != 0 {
		c.Monitor.GatewaySize = monitor.GatewaySize
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Monitor.TraceFile = expandVars(c.Monitor.TraceFile, vars)
	c.Monitor.FaultFile = expandVars(c.Monitor.FaultFile, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// SwitchIntervalDuration returns the parsed scheduler tick.
func (c *Config) SwitchIntervalDuration() (time.Duration, error) {
	interval, err := time.ParseDuration(c.Monitor.SwitchInterval)
	if err != nil {
		return 0, fmt.Errorf("monitor.switch_interval: %w", err)
	}
	if interval <= 0 {
		return 0, fmt.Errorf("monitor.switch_interval must be positive, got %s", interval)
	}
	return interval, nil
}

// BoxIndex returns the position of the named box, which is its id.
func (c *Config) BoxIndex(name string) int {
	return slices.IndexFunc(c.Boxes, func(box BoxConfig) bool { return box.Name == name })
}

// Gateway returns the named gateway.
func (c *Config) Gateway(name string) (GatewayConfig, bool) {
	index := slices.IndexFunc(c.Gateways, func(gw GatewayConfig) bool { return gw.Name == name })
	if index < 0 {
		return GatewayConfig{}, false
	}
	return c.Gateways[index], true
}

type span struct {
	name       string
	start, end uint64
}

// Validate checks the configuration for errors and reports all of them.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if _, err := c.SwitchIntervalDuration(); err != nil {
		errs = append(errs, err)
	}
	compressions := []string{"none", "lz4", "zstd"}
	if !slices.Contains(compressions, c.Monitor.TraceCompression) {
		errs = append(errs, fmt.Errorf("monitor.trace_compression must be one of: %v", compressions))
	}

	gatewaySpan := span{
		name:  "gateway region",
		start: uint64(c.Monitor.GatewayBase),
		end:   uint64(c.Monitor.GatewayBase) + uint64(c.Monitor.GatewaySize),
	}
	if c.Monitor.GatewaySize < 12 {
		errs = append(errs, fmt.Errorf("monitor.gateway_size %d cannot hold a gateway", c.Monitor.GatewaySize))
	}
	if gatewaySpan.end > math.MaxUint32+1 {
		errs = append(errs, fmt.Errorf("gateway region wraps the address space"))
	}
	if len(c.Gateways)*12 > int(c.Monitor.GatewaySize) {
		errs = append(errs, fmt.Errorf("%d gateways do not fit in monitor.gateway_size %d", len(c.Gateways), c.Monitor.GatewaySize))
	}

	errs = append(errs, c.validateBoxes(gatewaySpan)...)
	errs = append(errs, c.validateGateways()...)
	errs = append(errs, c.validateWorkload()...)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (c *Config) validateBoxes(gatewaySpan span) []error {
	var errs []error
	if len(c.Boxes) == 0 {
		errs = append(errs, fmt.Errorf("boxes: at least one box is required"))
	}
	spans := []span{gatewaySpan}
	seen := make(map[string]bool)
	for i, box := range c.Boxes {
		label := fmt.Sprintf("boxes[%d] (%s)", i, box.Name)
		if box.Name == "" {
			errs = append(errs, fmt.Errorf("boxes[%d]: name is required", i))
		} else if seen[box.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate name", label))
		}
		seen[box.Name] = true

		for _, slots := range []struct {
			field string
			value int
		}{
			{"outgoing_slots", box.OutgoingSlots},
			{"incoming_slots", box.IncomingSlots},
			{"fn_group_slots", box.FnGroupSlots},
		} {
			if slots.value < 0 || slots.value > maxSlots {
				errs = append(errs, fmt.Errorf("%s: %s %d out of range 1..%d", label, slots.field, slots.value, maxSlots))
			}
		}

		if box.Size == 0 {
			errs = append(errs, fmt.Errorf("%s: size is required", label))
			continue
		}
		current := span{name: label, start: uint64(box.Base), end: uint64(box.Base) + uint64(box.Size)}
		if current.end > math.MaxUint32+1 {
			errs = append(errs, fmt.Errorf("%s: region wraps the address space", label))
			continue
		}
		for _, other := range spans {
			if current.start < other.end && other.start < current.end {
				errs = append(errs, fmt.Errorf("%s: region overlaps %s", label, other.name))
			}
		}
		spans = append(spans, current)
	}
	return errs
}

func (c *Config) validateGateways() []error {
	var errs []error
	seen := make(map[string]bool)
	type target struct {
		box      string
		function uint32
	}
	builtins := make(map[target]string)
	for i, gw := range c.Gateways {
		label := fmt.Sprintf("gateways[%d] (%s)", i, gw.Name)
		if gw.Name == "" {
			errs = append(errs, fmt.Errorf("gateways[%d]: name is required", i))
		} else if seen[gw.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate name", label))
		}
		seen[gw.Name] = true

		if c.BoxIndex(gw.Box) < 0 {
			errs = append(errs, fmt.Errorf("%s: unknown box %q", label, gw.Box))
		}
		if gw.Function == 0 {
			errs = append(errs, fmt.Errorf("%s: function 0 is reserved", label))
		}
		if !slices.Contains(Builtins, gw.Builtin) {
			errs = append(errs, fmt.Errorf("%s: builtin must be one of: %v", label, Builtins))
		}
		if gw.Mode != "" && gw.Mode != "sync" && gw.Mode != "async" {
			errs = append(errs, fmt.Errorf("%s: mode must be sync or async", label))
		}

		key := target{gw.Box, gw.Function}
		if previous, ok := builtins[key]; ok && previous != gw.Builtin {
			errs = append(errs, fmt.Errorf("%s: function %#x in %s is already bound to %s", label, gw.Function, gw.Box, previous))
		}
		builtins[key] = gw.Builtin
	}
	return errs
}

func (c *Config) validateWorkload() []error {
	var errs []error
	for i, server := range c.Workload.Servers {
		label := fmt.Sprintf("workload.servers[%d]", i)
		if c.BoxIndex(server.Box) < 0 {
			errs = append(errs, fmt.Errorf("%s: unknown box %q", label, server.Box))
		}
		if server.Threads < 1 {
			errs = append(errs, fmt.Errorf("%s: threads must be at least 1", label))
		}
		if len(server.Gateways) == 0 {
			errs = append(errs, fmt.Errorf("%s: no gateways to serve", label))
		}
		for _, name := range server.Gateways {
			gw, ok := c.Gateway(name)
			if !ok {
				errs = append(errs, fmt.Errorf("%s: unknown gateway %q", label, name))
				continue
			}
			if gw.Box != server.Box {
				errs = append(errs, fmt.Errorf("%s: gateway %q is served by %s, not %s", label, name, gw.Box, server.Box))
			}
		}
	}
	for i, caller := range c.Workload.Callers {
		label := fmt.Sprintf("workload.callers[%d]", i)
		if c.BoxIndex(caller.Box) < 0 {
			errs = append(errs, fmt.Errorf("%s: unknown box %q", label, caller.Box))
		}
		if _, ok := c.Gateway(caller.Gateway); !ok {
			errs = append(errs, fmt.Errorf("%s: unknown gateway %q", label, caller.Gateway))
		}
		if caller.Threads < 1 {
			errs = append(errs, fmt.Errorf("%s: threads must be at least 1", label))
		}
		if caller.Calls < 0 {
			errs = append(errs, fmt.Errorf("%s: calls must not be negative", label))
		}
		if caller.WaitTimeout != "" {
			if _, err := time.ParseDuration(caller.WaitTimeout); err != nil {
				errs = append(errs, fmt.Errorf("%s: wait_timeout: %w", label, err))
			}
		}
	}
	return errs
}
