// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kernel implements the scheduler at the center of rtkernel: a
// priority-ordered, preemptive, single-CPU scheduler with round-robin
// among equal-priority threads, a critical section implemented as a
// nesting counter, and the thread lifecycle (create, delete, suspend,
// resume, set-priority, yield, delay) that every blocking primitive in
// ksync, kqueue, ksignal and ktimer is built on top of.
//
// kernel never touches real hardware or goroutines directly; it talks
// to whatever is running the threads through the Port interface, so
// the same scheduler logic backs both a real microcontroller binding
// and simport's cooperative goroutine simulation used for testing.
package kernel

import (
	"v.io/x/rtkernel/dlist"
	"v.io/x/rtkernel/klog"
	"v.io/x/rtkernel/memheap"
)

// PrioLowest is reserved for the idle thread; no application thread
// may run at this priority. It is deliberately far below any
// realistic application priority rather than the bit pattern of -1
// (which dlist.PriorityList would sort as the numerically smallest,
// i.e. highest-priority, value once cast to int64).
const PrioLowest = uint(1<<32 - 1)

// ThreadControlBlockSize is the heap charge backing a Thread's own
// control block, the same way stackBytes backs its stack. Exported so
// callers that size a heap tightly against a known set of threads and
// primitives (cmd/rtsim's allocator-coalescing scenario, for one) can
// compute the exact charge rather than guessing at it.
const ThreadControlBlockSize = 64

// State is a thread's cached scheduling state. The authoritative data
// is always list membership; State exists only for fast queries.
type State int

const (
	Ready State = iota
	Blocked
	Suspended
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Blocked:
		return "blocked"
	case Suspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Port is implemented by whatever is actually running the threads: a
// real port for a microcontroller, or simport for tests and the
// cmd/rtsim harness.
type Port interface {
	// Spawn starts the goroutine (or fabricates the stack frame, on a
	// real port) that will run entry(arg) when t is first scheduled.
	// It must not run entry before the kernel selects t.
	Spawn(t *Thread, entry func(arg interface{}), arg interface{})

	// Yield transfers control from "from" to "to" and does not return
	// to its caller until "from" is selected to run again. Called with
	// interrupts conceptually enabled (the kernel has already zeroed
	// its nesting counter for the duration of the call).
	Yield(from, to *Thread)

	// StartKernel never returns; it begins running "first".
	StartKernel(first *Thread)

	// Idle is the idle thread's body; it must not return.
	Idle()
}

// Thread is a task control block. Most fields mirror the C thread
// struct field for field; schedNode and timerNode replace the two
// separate cookies with typed dlist nodes, and waitDesc is a plain
// interface{} -- kernel never interprets it, it only carries whatever
// ksync/kqueue/ksignal published there back to whoever wakes the
// thread -- rather than an on-stack pointer, since there is no stack
// to place it on.
type Thread struct {
	name     string
	priority uint
	state    State

	schedNode dlist.PriorityItem // ready list or a waiter list; keyed by priority
	timerNode dlist.PriorityItem // timed-wait list; keyed by absolute wakeup tick

	stack      *memheap.Block
	cb         *memheap.Block
	local      memheap.MemoryList
	waitDesc   interface{}
	stackBytes int
}

// Name returns the thread's diagnostic name, as given to CreateThread.
func (t *Thread) Name() string { return t.name }

// Priority returns the thread's current priority; smaller is higher.
func (t *Thread) Priority() uint { return t.priority }

// State returns the thread's cached scheduling state.
func (t *Thread) State() State { return t.state }

// SchedNode exposes the thread's scheduler list node so that ksync,
// kqueue, ksignal and ktimer can insert it into their own
// priority-ordered waiter lists without kernel needing to know about
// those packages.
func (t *Thread) SchedNode() *dlist.PriorityItem { return &t.schedNode }

// WaitDescriptor returns the descriptor t published before blocking,
// or nil if t is not currently blocked on anything. Every blocking
// primitive's waker type-asserts this back to its own concrete
// descriptor type to fill in the result (and any primitive-specific
// fields) before readying the thread.
func (t *Thread) WaitDescriptor() interface{} { return t.waitDesc }

// Config bundles the kernel's build-time tunables. Every field is
// registrable as a command-line flag via internal/flagvar, so
// cmd/rtsim can drive them from a kernel.Config without bespoke
// flag-parsing glue.
type Config struct {
	HeapSize        int `flag:"heap-size,262144,total heap arena size in bytes"`
	IdleStackSize   int `flag:"idle-stack-size,4096,idle thread stack allocation in bytes"`
	DefaultStackSize int `flag:"default-stack-size,8192,default application thread stack allocation in bytes"`
}

// DefaultConfig returns the tunables used when a caller does not wire
// up its own flag set.
func DefaultConfig() Config {
	return Config{
		HeapSize:         262144,
		IdleStackSize:    4096,
		DefaultStackSize: 8192,
	}
}

// Kernel owns all of the scheduler's global state: the heap, the
// ready and timed-wait lists, the current/next thread pointers, the
// tick counter and the critical-section nesting counter.
type Kernel struct {
	cfg  Config
	port Port
	heap *memheap.Heap

	kernelMemory memheap.MemoryList // TCBs, stacks and primitive control blocks allocated by the kernel itself

	ready dlist.PriorityList // by priority
	timed dlist.PriorityList // by absolute wakeup tick

	current *Thread
	next    *Thread
	idle    *Thread

	systemTime uint64
	nesting    int
}

// New creates a kernel with its own heap arena and idle thread, but
// does not yet start running anything; call Start once the first
// application thread has been created.
func New(cfg Config, port Port) *Kernel {
	k := &Kernel{
		cfg:  cfg,
		port: port,
		heap: memheap.New(cfg.HeapSize),
	}
	k.idle = k.newThread("idle", PrioLowest, cfg.IdleStackSize, func(interface{}) { k.port.Idle() }, nil)
	k.readyThread(k.idle)
	k.next = k.idle
	return k
}

// Now returns the scheduler's monotonic tick counter.
func (k *Kernel) Now() uint64 { return k.systemTime }

// Current returns the thread presently selected to run.
func (k *Kernel) Current() *Thread { return k.current }

// EnterCritical disables interrupts (conceptually; simport's
// single-goroutine-at-a-time model makes this a pure counter, not a
// lock) and increments the nesting depth.
func (k *Kernel) EnterCritical() {
	k.nesting++
}

// ExitCritical decrements the nesting depth, or does nothing if it is
// already zero.
func (k *Kernel) ExitCritical() {
	if k.nesting > 0 {
		k.nesting--
	}
}

func (k *Kernel) newThread(name string, priority uint, stackBytes int, entry func(interface{}), arg interface{}) *Thread {
	t := &Thread{
		name:       name,
		priority:   priority,
		state:      Suspended,
		stackBytes: stackBytes,
	}
	t.schedNode.Init(t, int64(priority))
	t.timerNode.Init(t, 0)
	t.stack = k.heap.Allocate(stackBytes)
	assert(t.stack != nil, "kernel: out of heap allocating stack for %q", name)
	k.kernelMemory.Insert(t.stack)
	t.cb = k.heap.Allocate(ThreadControlBlockSize)
	assert(t.cb != nil, "kernel: out of heap allocating control block for %q", name)
	k.kernelMemory.Insert(t.cb)
	// trampoline stands in for the fabricated return address in a real
	// port's initial stack frame: when entry returns, control falls
	// through to thread deletion instead of off the end of a stack.
	trampoline := func(a interface{}) {
		entry(a)
		k.returnHook(t)
	}
	k.port.Spawn(t, trampoline, arg)
	return t
}

// readyThread detaches t from whatever list currently holds it,
// clears its wait descriptor, and inserts it into the ready list.
func (k *Kernel) readyThread(t *Thread) {
	if t.schedNode.List() != nil {
		t.schedNode.Remove()
	}
	if t.timerNode.List() != nil {
		t.timerNode.Remove()
	}
	t.waitDesc = nil
	t.schedNode.Init(t, int64(t.priority))
	k.ready.Insert(&t.schedNode)
	t.state = Ready
	if klog.V(1) {
		klog.Infof("kernel: thread %q ready", t.name)
	}
}

// readyAll readies every thread currently on l.
func (k *Kernel) readyAll(l *dlist.PriorityList) {
	for !l.Empty() {
		k.readyThread(l.First().Container.(*Thread))
	}
}

// schedulingDecision is the single place that picks the
// highest-priority runnable thread; k.next is only ever lowered
// toward the ready list's head, never raised, except by the explicit
// round-robin advance that precedes a call to this function.
func (k *Kernel) schedulingDecision() {
	head := k.ready.First().Container.(*Thread)
	if k.next.priority != head.priority {
		k.next = head
	}
}

// advanceNext moves k.next one step along the ready list, wrapping
// around; used both by the round-robin tick path and by the explicit
// Yield API.
func (k *Kernel) advanceNext() {
	k.next = k.next.schedNode.Next().Container.(*Thread)
}

// switchContext hands off from the current thread to k.next, carrying
// the critical-section nesting counter across the context switch the
// way every blocking call in spec.md's scheduler does: the nesting
// depth is per-thread while parked, even though the counter itself is
// a single shared field while running.
func (k *Kernel) switchContext() {
	from := k.current
	to := k.next
	nesting := k.nesting
	k.nesting = 0
	k.current = to
	k.port.Yield(from, to)
	k.nesting = nesting
	k.current = from
}

// reschedule generalizes the repeated pattern of "pick a new next
// thread, then yield if that changed who's running" used by semaphore
// post, mutex unlock/hand-off, signal send, queue solve and thread
// resume/create: schedulingDecision by itself only ever updates
// bookkeeping, so every caller that might have readied a
// higher-priority thread must follow it with a conditional yield.
func (k *Kernel) reschedule() {
	k.schedulingDecision()
	if k.current != k.next {
		k.switchContext()
	}
}

// Tick is the kernel's periodic timer entry point. There is no
// asynchronous interrupt in this model, so it is called synchronously
// by whatever thread's goroutine is standing in for the "interrupted"
// context, and carries its nesting across the switch exactly like any
// voluntary block.
func (k *Kernel) Tick() {
	k.EnterCritical()
	k.systemTime++
	for !k.timed.Empty() && k.timed.First().Value <= int64(k.systemTime) {
		k.readyThread(k.timed.First().Container.(*Thread))
	}
	k.advanceNext()
	k.schedulingDecision()
	if k.current != k.next {
		k.switchContext()
	}
	k.ExitCritical()
}

// BlockCurrent removes the current thread from the ready list,
// optionally parks it on waiterList (priority-ordered) and/or the
// timed list (if timeout != 0), attaches desc, and yields. It returns
// once the thread is readied again, by whatever woke it.
//
// timeout == 0 means wait indefinitely, per spec: a deliberate
// overload of the zero tick count rather than a separate bool.
func (k *Kernel) BlockCurrent(waiterList *dlist.PriorityList, timeout uint64, desc interface{}) {
	k.EnterCritical()
	t := k.current
	if klog.V(1) {
		klog.Infof("kernel: thread %q blocking (timeout=%d)", t.name, timeout)
	}
	if k.next == t {
		k.advanceNext()
	}
	t.schedNode.Remove()
	t.state = Blocked
	if waiterList != nil {
		t.schedNode.Init(t, int64(t.priority))
		waiterList.Insert(&t.schedNode)
	}
	if timeout != 0 {
		t.timerNode.Init(t, int64(k.systemTime+timeout))
		k.timed.Insert(&t.timerNode)
	}
	t.waitDesc = desc
	k.schedulingDecision()
	k.switchContext()
	k.ExitCritical()
}

// Delay blocks the current thread for exactly ticks system ticks, with
// no waiter list and no wait descriptor; it is BlockCurrent specialized
// the way spec.md describes thread_delay.
func (k *Kernel) Delay(ticks uint64) {
	if ticks == 0 {
		return
	}
	k.BlockCurrent(nil, ticks, nil)
}

// Yield voluntarily gives up the remainder of the current thread's
// time slice to the next thread at the same priority, or does nothing
// if no other thread at that priority is runnable.
func (k *Kernel) Yield() {
	k.EnterCritical()
	k.advanceNext()
	k.reschedule()
	k.ExitCritical()
}

// returnHook is installed as the trampoline every spawned goroutine
// calls when its entry function returns; it deletes the thread the
// same way an explicit self-delete would.
func (k *Kernel) returnHook(t *Thread) {
	k.DeleteThread(t)
}

// CreateThread allocates a stack from the heap, spawns the thread's
// goroutine (parked until scheduled) and makes it ready. If the new
// thread outranks the current one, it preempts immediately.
func (k *Kernel) CreateThread(name string, priority uint, stackBytes int, entry func(arg interface{}), arg interface{}) *Thread {
	assert(priority != PrioLowest, "kernel: %q requests reserved idle priority", name)
	k.EnterCritical()
	t := k.newThread(name, priority, stackBytes, entry, arg)
	k.readyThread(t)
	k.reschedule()
	k.ExitCritical()
	if klog.V(1) {
		klog.Infof("kernel: created thread %q at priority %d", name, priority)
	}
	return t
}

// DeleteThread detaches t from every list it could be on, bulk-frees
// its local allocations and its stack, and reschedules. Deleting the
// current thread yields away from it and never returns to the caller.
func (k *Kernel) DeleteThread(t *Thread) {
	assert(t != k.idle, "kernel: attempt to delete the idle thread")
	if klog.V(1) {
		klog.Infof("kernel: deleting thread %q", t.name)
	}
	k.EnterCritical()
	self := t == k.current
	// Advancing past t must happen before t's own scheduler node is
	// detached, or t.schedNode.Next() would just return t itself.
	if self && k.next == t {
		k.advanceNext()
	}
	if t.schedNode.List() != nil {
		t.schedNode.Remove()
	}
	if t.timerNode.List() != nil {
		t.timerNode.Remove()
	}
	memheap.ReclaimAll(k.heap, &t.local)
	k.kernelMemory.Remove(t.stack)
	k.heap.Free(t.stack)
	t.stack = nil
	k.kernelMemory.Remove(t.cb)
	k.heap.Free(t.cb)
	t.cb = nil

	if self {
		k.schedulingDecision()
		k.switchContext()
		// Never reached: switchContext only returns to a thread that
		// gets scheduled again, and a deleted thread never is.
	}
	k.ExitCritical()
}

// SuspendThread removes t from the ready or timed list and marks it
// Suspended; it stays suspended until a matching ResumeThread. If t is
// the current thread, it yields away and only returns once resumed.
func (k *Kernel) SuspendThread(t *Thread) {
	k.EnterCritical()
	self := t == k.current
	if self && k.next == t {
		k.advanceNext()
	}
	if t.schedNode.List() != nil {
		t.schedNode.Remove()
	}
	if t.timerNode.List() != nil {
		t.timerNode.Remove()
	}
	t.state = Suspended
	if self {
		k.schedulingDecision()
		k.switchContext()
	}
	k.ExitCritical()
}

// ResumeThread readies a Suspended thread, preempting immediately if
// it now outranks the current thread.
func (k *Kernel) ResumeThread(t *Thread) {
	k.EnterCritical()
	k.readyThread(t)
	k.reschedule()
	k.ExitCritical()
}

// SetPriority changes t's priority and re-inserts its scheduler node
// to restore ready-list ordering, preempting if t becomes the new
// highest-priority runnable thread.
func (k *Kernel) SetPriority(t *Thread, priority uint) {
	assert(priority != PrioLowest, "kernel: attempt to set reserved idle priority")
	k.EnterCritical()
	t.priority = priority
	if t.state == Ready {
		t.schedNode.Remove()
		t.schedNode.Init(t, int64(priority))
		k.ready.Insert(&t.schedNode)
		k.reschedule()
	}
	k.ExitCritical()
}

// Start launches the very first application thread. It bypasses the
// normal CreateThread preemption dance (which ends in switchContext)
// because the port has not begun running anything yet, so there is no
// "from" thread for a yield to return to; Start hands off to
// StartKernel directly instead.
func (k *Kernel) Start(name string, priority uint, stackBytes int, entry func(arg interface{}), arg interface{}) {
	assert(priority != PrioLowest, "kernel: %q requests reserved idle priority", name)
	first := k.newThread(name, priority, stackBytes, entry, arg)
	k.readyThread(first)
	k.next = first
	k.current = first
	k.port.StartKernel(first)
}

// Heap exposes the kernel's heap to ksync/kqueue/ktimer/ksignal so
// their Create operations can allocate control blocks the same way
// CreateThread allocates stacks, and to application code doing
// dynamic allocation.
func (k *Kernel) Heap() *memheap.Heap { return k.heap }

// Allocate reserves n bytes from the heap on behalf of owner, charging
// them against owner's local memory list so DeleteThread reclaims them
// automatically; it is the Go analogue of osMemoryAllocate. All heap
// mutations happen inside a critical section.
func (k *Kernel) Allocate(owner *Thread, n int) *memheap.Block {
	k.EnterCritical()
	defer k.ExitCritical()
	b := k.heap.Allocate(n)
	if b != nil {
		owner.local.Insert(b)
	}
	return b
}

// Free returns b, previously obtained from Allocate, to the heap.
func (k *Kernel) Free(owner *Thread, b *memheap.Block) {
	if b == nil {
		return
	}
	k.EnterCritical()
	defer k.ExitCritical()
	owner.local.Remove(b)
	k.heap.Free(b)
}

// Reallocate resizes b, previously obtained from Allocate, in place
// where possible.
func (k *Kernel) Reallocate(owner *Thread, b *memheap.Block, newSize int) *memheap.Block {
	k.EnterCritical()
	defer k.ExitCritical()
	if b != nil {
		owner.local.Remove(b)
	}
	nb := k.heap.Reallocate(b, newSize)
	if nb != nil {
		owner.local.Insert(nb)
	}
	return nb
}

// KernelMemory returns the kernel's own bookkeeping allocation list,
// used by blocking primitives that want their control block freed
// automatically if nothing else claims ownership of it.
func (k *Kernel) KernelMemory() *memheap.MemoryList { return &k.kernelMemory }

// ReadyAll readies every thread waiting on l, so higher-level packages'
// Delete operations (which must wake every waiter before freeing a
// primitive) can call ReadyAll without kernel needing to know about
// semaphores, mutexes, queues or signals.
func (k *Kernel) ReadyAll(l *dlist.PriorityList) { k.readyAll(l) }

// ReadyThread is the exported form of readyThread, used by every
// blocking primitive's wake-up path.
func (k *Kernel) ReadyThread(t *Thread) { k.readyThread(t) }

// Reschedule is the exported form of reschedule, used by every
// blocking primitive after it ready()s a thread that might now
// outrank the current one.
func (k *Kernel) Reschedule() { k.reschedule() }

// TimedList exposes the kernel's timed-wait list.
func (k *Kernel) TimedList() *dlist.PriorityList { return &k.timed }
