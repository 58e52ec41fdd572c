// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/boxvisor/lib/config"
	"github.com/bureau-foundation/boxvisor/lib/memmap"
	"github.com/bureau-foundation/boxvisor/lib/pool"
	"github.com/bureau-foundation/boxvisor/monitor"
	"github.com/bureau-foundation/boxvisor/rpc"
)

// defaultWaitTimeout bounds waits on async gateways when the caller
// configuration sets none.
const defaultWaitTimeout = time.Second

// Report summarizes a run.
type Report struct {
	// Calls is how many calls were issued, Completed how many returned
	// a result.
	Calls     uint64
	Completed uint64

	// Mismatches counts results that differ from the local reference.
	Mismatches uint64

	// Timeouts counts async waits that gave up.
	Timeouts uint64

	Boxes   []BoxReport
	Monitor monitor.Stats

	// Fault is set when the monitor halted.
	Fault *monitor.Fault

	// Incomplete is set when the context ended before every caller
	// finished.
	Incomplete bool

	Elapsed time.Duration
}

// BoxReport is the traffic of one box.
type BoxReport struct {
	Name   string
	Sent   uint64
	Served uint64
}

// OK reports whether every call completed with the right result.
func (r *Report) OK() bool {
	return r.Fault == nil && !r.Incomplete && r.Mismatches == 0 && r.Completed == r.Calls
}

type counters struct {
	calls      atomic.Uint64
	completed  atomic.Uint64
	mismatches atomic.Uint64
	timeouts   atomic.Uint64
	sent       []atomic.Uint64
	served     []atomic.Uint64
}

type server struct {
	box    *rpc.Box
	handle rpc.Handle
}

type thread struct {
	box    rpc.BoxID
	handle pool.Slot
}

type caller struct {
	box         *rpc.Box
	thread      uint32
	gateway     memmap.Addr
	async       bool
	calls       int
	waitTimeout time.Duration
	reference   Function
}

// Run plays the workload until every caller has made its calls, the
// monitor halts, or ctx ends. A halt is reported in Report.Fault, not
// as an error.
func (s *System) Run(ctx context.Context) (*Report, error) {
	started := s.clock.Now()
	counts := &counters{
		sent:   make([]atomic.Uint64, len(s.boxes)),
		served: make([]atomic.Uint64, len(s.boxes)),
	}

	servers, callers, threads, err := s.spawn(counts)
	defer s.retire(servers, threads)
	if err != nil {
		return nil, err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(groupCtx)
	defer stopServing()

	group.Go(func() error { return s.schedule(serveCtx, threads) })
	for _, srv := range servers {
		group.Go(func() error { return s.serve(serveCtx, srv) })
	}
	var calling sync.WaitGroup
	for _, c := range callers {
		calling.Add(1)
		group.Go(func() error {
			defer calling.Done()
			return s.call(groupCtx, c, counts)
		})
	}
	group.Go(func() error {
		calling.Wait()
		stopServing()
		return nil
	})

	err = group.Wait()
	report := &Report{
		Calls:      counts.calls.Load(),
		Completed:  counts.completed.Load(),
		Mismatches: counts.mismatches.Load(),
		Timeouts:   counts.timeouts.Load(),
		Monitor:    s.monitor.Stats(),
		Fault:      s.monitor.Fault(),
		Elapsed:    s.clock.Now().Sub(started),
	}
	for i, box := range s.boxes {
		report.Boxes = append(report.Boxes, BoxReport{
			Name:   box.Name(),
			Sent:   counts.sent[i].Load(),
			Served: counts.served[i].Load(),
		})
	}
	if ctx.Err() != nil && report.Fault == nil {
		report.Incomplete = true
	}

	switch {
	case err == nil:
	case errors.Is(err, monitor.ErrHalted):
		s.logger.Error("run ended by monitor halt", "error", err)
	default:
		return report, err
	}
	s.logger.Info("run finished",
		"calls", report.Calls,
		"completed", report.Completed,
		"mismatches", report.Mismatches,
		"timeouts", report.Timeouts,
		"delivered", report.Monitor.Delivered,
		"bounced", report.Monitor.Bounced,
		"elapsed", report.Elapsed,
	)
	return report, nil
}

// spawn registers every server thread's function group and every
// thread with the monitor.
func (s *System) spawn(counts *counters) ([]server, []caller, []thread, error) {
	var (
		servers []server
		callers []caller
		threads []thread
	)
	nextThread := make([]uint32, len(s.boxes))
	newThread := func(box *rpc.Box) (uint32, error) {
		nextThread[box.ID()]++
		id := nextThread[box.ID()]
		handle, err := s.monitor.ThreadCreate(box.ID(), id)
		if err != nil {
			return 0, fmt.Errorf("%s thread %d: %w", box.Name(), id, err)
		}
		threads = append(threads, thread{box: box.ID(), handle: handle})
		return id, nil
	}

	for _, serverConfig := range s.config.Workload.Servers {
		box := s.Box(serverConfig.Box)
		targets := s.targets(box, serverConfig, counts)
		for range serverConfig.Threads {
			if _, err := newThread(box); err != nil {
				return servers, callers, threads, err
			}
			handle, err := box.RegisterTargets(targets)
			if err != nil {
				return servers, callers, threads, fmt.Errorf("%s: %w", box.Name(), err)
			}
			servers = append(servers, server{box: box, handle: handle})
		}
	}

	for _, callerConfig := range s.config.Workload.Callers {
		box := s.Box(callerConfig.Box)
		gw, _ := s.config.Gateway(callerConfig.Gateway)
		reference, _ := Builtin(gw.Builtin)
		waitTimeout := defaultWaitTimeout
		if callerConfig.WaitTimeout != "" {
			// Validated in Build.
			waitTimeout, _ = time.ParseDuration(callerConfig.WaitTimeout)
		}
		for range callerConfig.Threads {
			id, err := newThread(box)
			if err != nil {
				return servers, callers, threads, err
			}
			callers = append(callers, caller{
				box:         box,
				thread:      id,
				gateway:     s.gateways[gw.Name],
				async:       gw.Mode == "async",
				calls:       callerConfig.Calls,
				waitTimeout: waitTimeout,
				reference:   reference,
			})
		}
	}
	return servers, callers, threads, nil
}

func (s *System) targets(box *rpc.Box, serverConfig config.ServerConfig, counts *counters) []rpc.Target {
	var targets []rpc.Target
	for _, name := range serverConfig.Gateways {
		gw, _ := s.config.Gateway(name)
		function, _ := Builtin(gw.Builtin)
		served := &counts.served[box.ID()]
		targets = append(targets, rpc.Target{
			Function: rpc.FunctionID(gw.Function),
			Handler: func(call rpc.Call) uint32 {
				served.Add(1)
				return function(call.Args)
			},
		})
	}
	return targets
}

// retire unregisters server groups and forgets every thread. A thread
// ends from its own box, so each is switched to before it is destroyed.
// A halted monitor keeps its threads.
func (s *System) retire(servers []server, threads []thread) {
	for _, srv := range servers {
		if err := srv.box.Unregister(srv.handle); err != nil {
			s.logger.Debug("unregister failed", "box", srv.box.Name(), "error", err)
		}
	}
	for _, t := range threads {
		if err := s.monitor.ThreadSwitch(t.handle); err != nil {
			s.logger.Debug("switch before thread destroy failed", "box", t.box, "handle", t.handle, "error", err)
			continue
		}
		if err := s.monitor.ThreadDestroy(t.handle); err != nil {
			s.logger.Debug("thread destroy failed", "box", t.box, "handle", t.handle, "error", err)
		}
	}
}

// schedule switches to every thread once per tick. It is the only
// caller of ThreadSwitch, so drains follow thread order.
func (s *System) schedule(ctx context.Context, threads []thread) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.halted:
			return s.monitor.Err()
		case <-ticker.C:
		}
		for _, t := range threads {
			if err := s.monitor.ThreadSwitch(t.handle); err != nil {
				return err
			}
		}
	}
}

func (s *System) serve(ctx context.Context, srv server) error {
	timeout := 10 * s.interval
	for ctx.Err() == nil {
		err := srv.box.WaitForCall(srv.handle, timeout)
		if err != nil && !errors.Is(err, rpc.ErrTimeout) {
			return fmt.Errorf("%s: serving: %w", srv.box.Name(), err)
		}
	}
	return nil
}

func (s *System) call(ctx context.Context, c caller, counts *counters) error {
	for i := range c.calls {
		if ctx.Err() != nil {
			return nil
		}
		args := argsFor(c.thread, i)
		want := c.reference(args)

		var (
			got uint32
			err error
		)
		if c.async {
			got, err = s.callAsync(ctx, c, args, counts)
		} else {
			counts.calls.Add(1)
			got, err = c.box.CallSyncContext(ctx, c.gateway, args[0], args[1], args[2], args[3])
		}
		switch {
		case errors.Is(err, rpc.ErrTimeout):
			continue
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			return fmt.Errorf("%s thread %d call %d: %w", c.box.Name(), c.thread, i, err)
		}

		counts.completed.Add(1)
		counts.sent[c.box.ID()].Add(1)
		if got != want {
			counts.mismatches.Add(1)
			s.logger.Warn("result mismatch",
				"box", c.box.Name(),
				"thread", c.thread,
				"call", i,
				"got", got,
				"want", want,
			)
		}
	}
	return nil
}

func (s *System) callAsync(ctx context.Context, c caller, args [4]uint32, counts *counters) (uint32, error) {
	var cookie rpc.Cookie
	for {
		var err error
		cookie, err = c.box.CallAsync(c.gateway, args[0], args[1], args[2], args[3])
		if err == nil {
			break
		}
		if !errors.Is(err, rpc.ErrNoSlot) {
			return 0, err
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		s.clock.Sleep(s.interval)
	}
	counts.calls.Add(1)

	result, err := c.box.Wait(cookie, c.waitTimeout)
	if errors.Is(err, rpc.ErrTimeout) {
		counts.timeouts.Add(1)
		s.logger.Warn("async wait timed out", "box", c.box.Name(), "thread", c.thread, "cookie", cookie)
		s.release(ctx, c.box, cookie)
	}
	return result, err
}

// release frees a timed-out call's slot once its result is in. A run
// that ends first leaves the slot allocated.
func (s *System) release(ctx context.Context, box *rpc.Box, cookie rpc.Cookie) {
	for {
		err := box.Release(cookie)
		if !errors.Is(err, rpc.ErrInFlight) {
			if err != nil {
				s.logger.Warn("release failed", "box", box.Name(), "cookie", cookie, "error", err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.clock.Sleep(s.interval)
	}
}

func argsFor(thread uint32, call int) [4]uint32 {
	return [4]uint32{thread*1000 + uint32(call), uint32(call)*7 + 3, thread, uint32(call)}
}
