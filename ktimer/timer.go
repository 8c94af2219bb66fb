// Copyright 2017 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ktimer implements software timers dispatched by per-priority
// daemon threads: every timer created at a given priority shares that
// priority's single daemon, which sleeps until the nearest deadline,
// fires callbacks inline, and re-arms periodic timers or retires
// one-shot ones, exactly the way one dedicated thread per priority
// level would on a real board with no hardware timer to spare per
// software timer.
package ktimer

import (
	"fmt"

	"v.io/x/rtkernel/dlist"
	"v.io/x/rtkernel/kernel"
	"v.io/x/rtkernel/klog"
	"v.io/x/rtkernel/memheap"
)

// groupControlBlockSize and timerControlBlockSize are the heap charges
// backing a group's and a Timer's own bookkeeping.
const (
	groupControlBlockSize = 40
	timerControlBlockSize = 32
)

// Mode selects whether a timer re-arms itself after firing.
type Mode int

const (
	OneShot Mode = iota
	Periodic
)

// Callback is invoked by the timer's daemon thread when the timer
// fires. It runs with the kernel's critical section held, the same
// way the daemon's whole dispatch loop does, so it must not block.
type Callback func(arg interface{})

// group is the per-priority daemon and its two timer lists: active,
// ordered by absolute wakeup tick, and inactive, an unordered holding
// pen for timers that exist but have never been started or have been
// stopped.
type group struct {
	m        *Manager
	priority uint
	daemon   *kernel.Thread
	active   dlist.PriorityList
	inactive dlist.UnorderedList
	cb       *memheap.Block
}

// Timer is a one-shot or periodic callback belonging to a group. It
// is never backed by its own goroutine; its group's daemon serves
// every timer sharing that priority.
type Timer struct {
	group    *group
	mode     Mode
	period   uint64
	callback Callback
	arg      interface{}

	activeNode   dlist.PriorityItem
	inactiveNode dlist.UnorderedItem
	cb           *memheap.Block
}

// Manager owns one daemon thread per distinct priority that currently
// has at least one timer (created and not yet deleted). The reference implementation this is
// modeled on keeps this registry as a linear intrusive list searched
// by priority, a workaround for having no associative container; a
// map needs no such workaround and is the idiomatic replacement.
type Manager struct {
	k         *kernel.Kernel
	stackSize int
	groups    map[uint]*group
}

// NewManager creates a timer manager with no daemon threads yet; each
// is spawned lazily by a CreateTimer call at a priority that has no
// daemon at the time.
func NewManager(k *kernel.Kernel, daemonStackSize int) *Manager {
	return &Manager{k: k, stackSize: daemonStackSize, groups: make(map[uint]*group)}
}

func daemonName(priority uint) string {
	return fmt.Sprintf("timer-daemon-%d", priority)
}

// CreateTimer creates a new, inactive timer dispatched by priority's
// daemon (spawned now if no timer currently exists at that priority).
// Call Start to arm it.
func (m *Manager) CreateTimer(priority uint, mode Mode, callback Callback) *Timer {
	assert(priority != kernel.PrioLowest, "ktimer: timer requests reserved idle priority")
	m.k.EnterCritical()
	defer m.k.ExitCritical()

	g, exists := m.groups[priority]
	if !exists {
		gcb := m.k.Heap().Allocate(groupControlBlockSize)
		assert(gcb != nil, "ktimer: out of heap allocating control block for priority %d timer group", priority)
		m.k.KernelMemory().Insert(gcb)
		g = &group{m: m, priority: priority, cb: gcb}
		m.groups[priority] = g
	}

	tcb := m.k.Heap().Allocate(timerControlBlockSize)
	assert(tcb != nil, "ktimer: out of heap allocating timer control block")
	m.k.KernelMemory().Insert(tcb)
	t := &Timer{group: g, mode: mode, callback: callback, cb: tcb}
	t.inactiveNode.Init(t)
	g.inactive.Insert(&t.inactiveNode)

	// The timer has to already be registered before the daemon can
	// possibly run: thread creation preempts immediately, and the
	// daemon's very first pass through its loop checks whether it has
	// any work at all.
	if !exists {
		g.daemon = m.k.CreateThread(daemonName(priority), priority, m.stackSize, g.run, nil)
	}
	return t
}

// run is every group's daemon body: drain due timers from the active
// list, sleep until the next one is due, and park (suspended) once
// there is nothing active left but at least one inactive timer still
// exists. A group whose active and inactive lists are both empty has
// no reason to keep a thread around at all, so its daemon retires
// itself and the group is forgotten.
func (g *group) run(interface{}) {
	k := g.m.k
	k.EnterCritical()
	for {
		for !g.active.Empty() {
			item := g.active.First()
			if k.Now() < uint64(item.Value) {
				k.Delay(uint64(item.Value) - k.Now())
				continue
			}
			t := item.Container.(*Timer)
			if klog.V(2) {
				klog.Infof("ktimer: priority %d dispatching timer at tick %d", g.priority, k.Now())
			}
			t.callback(t.arg)
			item.Remove()
			if t.mode == Periodic {
				t.activeNode.Init(t, int64(k.Now()+t.period))
				g.active.Insert(&t.activeNode)
			} else {
				t.inactiveNode.Init(t)
				g.inactive.Insert(&t.inactiveNode)
			}
		}
		if g.inactive.Empty() {
			delete(g.m.groups, g.priority)
			k.KernelMemory().Remove(g.cb)
			k.Heap().Free(g.cb)
			k.ExitCritical()
			return
		}
		k.SuspendThread(k.Current())
	}
}

// Start arms t to fire after period ticks (and every period ticks
// thereafter, if periodic), resuming its daemon if the daemon had
// gone idle. It has no effect if t is already active.
func (t *Timer) Start(period uint64, arg interface{}) {
	g := t.group
	k := g.m.k
	k.EnterCritical()
	defer k.ExitCritical()
	if t.inactiveNode.List() == nil {
		return
	}
	t.arg = arg
	t.period = period
	t.inactiveNode.Remove()
	t.activeNode.Init(t, int64(k.Now()+period))
	g.active.Insert(&t.activeNode)
	if g.daemon.State() == kernel.Suspended {
		k.ResumeThread(g.daemon)
	}
}

// Stop disarms t, moving it back to the inactive list. It has no
// effect on an already-inactive timer.
func (t *Timer) Stop() {
	g := t.group
	k := g.m.k
	k.EnterCritical()
	defer k.ExitCritical()
	if t.activeNode.List() == nil {
		return
	}
	t.activeNode.Remove()
	t.inactiveNode.Init(t)
	g.inactive.Insert(&t.inactiveNode)
}

// Reset re-arms an active timer's next firing to period ticks from
// now. It has no effect on an inactive timer.
func (t *Timer) Reset() {
	g := t.group
	k := g.m.k
	k.EnterCritical()
	defer k.ExitCritical()
	if t.activeNode.List() == nil {
		return
	}
	t.activeNode.Remove()
	t.activeNode.Init(t, int64(k.Now()+t.period))
	g.active.Insert(&t.activeNode)
}

// SetPeriod changes the period used the next time t is re-armed, by
// Reset or by its daemon after a periodic firing; Start sets the
// period from its own argument. It does not affect a firing already
// scheduled.
func (t *Timer) SetPeriod(period uint64) { t.period = period }

// Period returns t's current period.
func (t *Timer) Period() uint64 { return t.period }

// Delete detaches t from whichever list holds it and frees its
// control block. Callers must not use t again afterward. If that
// leaves the group with no active and no inactive timers, the group's
// daemon has no further work and is retired immediately: its entry is
// dropped from the manager, its control block is freed, and the
// daemon thread itself is deleted, rather than leaving it parked
// Suspended until some future Start at that priority happens to wake
// it up and notice.
func (t *Timer) Delete() {
	g := t.group
	k := g.m.k
	k.EnterCritical()
	defer k.ExitCritical()
	if t.activeNode.List() != nil {
		t.activeNode.Remove()
	}
	if t.inactiveNode.List() != nil {
		t.inactiveNode.Remove()
	}
	k.KernelMemory().Remove(t.cb)
	k.Heap().Free(t.cb)
	t.cb = nil

	if g.active.Empty() && g.inactive.Empty() {
		delete(g.m.groups, g.priority)
		k.KernelMemory().Remove(g.cb)
		k.Heap().Free(g.cb)
		k.DeleteThread(g.daemon)
	}
}
