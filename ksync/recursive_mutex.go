// Copyright 2017 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ksync

import (
	"v.io/x/rtkernel/dlist"
	"v.io/x/rtkernel/kernel"
	"v.io/x/rtkernel/memheap"
)

// recursiveMutexControlBlockSize is the heap charge backing a
// RecursiveMutex's own bookkeeping.
const recursiveMutexControlBlockSize = 32

type recursiveMutexWait struct {
	result bool
}

// RecursiveMutex is a mutex that the owning thread may lock again
// without blocking on itself; it tracks an owner and a nesting count
// instead of a plain locked flag.
type RecursiveMutex struct {
	k       *kernel.Kernel
	owner   *kernel.Thread
	counter uint
	waiters dlist.PriorityList
	cb      *memheap.Block
}

// NewRecursiveMutex creates an unlocked recursive mutex, allocating
// its control block from the kernel heap.
func NewRecursiveMutex(k *kernel.Kernel) *RecursiveMutex {
	cb := k.Heap().Allocate(recursiveMutexControlBlockSize)
	assert(cb != nil, "ksync: out of heap allocating recursive mutex control block")
	k.KernelMemory().Insert(cb)
	return &RecursiveMutex{k: k, cb: cb}
}

// PeekLock reports whether Lock would currently succeed without
// blocking: true if the mutex is free or already owned by the calling
// thread.
func (m *RecursiveMutex) PeekLock() bool {
	return m.counter == 0 || m.owner == m.k.Current()
}

// IsLocked reports whether the mutex is held by anyone.
func (m *RecursiveMutex) IsLocked() bool {
	return m.counter != 0
}

// LockNonBlock locks m (incrementing the nesting count) if it is free
// or already owned by the calling thread, and returns true; otherwise
// it returns false without blocking. The ownership test is an
// equality comparison against the current thread -- a known defect in
// the reference implementation this is modeled on instead performs an
// assignment here, silently granting the lock to any caller.
func (m *RecursiveMutex) LockNonBlock() bool {
	m.k.EnterCritical()
	defer m.k.ExitCritical()
	if m.counter == 0 || m.owner == m.k.Current() {
		m.counter++
		m.owner = m.k.Current()
		return true
	}
	return false
}

// Lock acquires m, blocking for up to timeout ticks if it is held by
// another thread (timeout == 0 means wait indefinitely). It returns
// whether the lock was actually acquired.
func (m *RecursiveMutex) Lock(timeout uint64) bool {
	m.k.EnterCritical()
	if m.counter == 0 || m.owner == m.k.Current() {
		m.counter++
		m.owner = m.k.Current()
		m.k.ExitCritical()
		return true
	}
	wait := &recursiveMutexWait{}
	m.k.BlockCurrent(&m.waiters, timeout, wait)
	m.k.ExitCritical()
	return wait.result
}

// Unlock releases one level of nesting. Only the owning thread may
// call it; calling it from any other thread, or on an already-free
// mutex, does nothing. When the nesting count reaches zero and a
// thread is waiting, ownership transfers directly to the
// highest-priority one -- the mutex's owner is updated to that thread
// before it is readied, so the hand-off is never visible as
// momentarily unowned.
func (m *RecursiveMutex) Unlock() {
	m.k.EnterCritical()
	defer m.k.ExitCritical()
	if m.owner != m.k.Current() {
		return
	}
	switch {
	case m.counter > 1:
		m.counter--
	case m.counter == 1:
		if !m.waiters.Empty() {
			t := m.waiters.First().Container.(*kernel.Thread)
			m.owner = t
			t.WaitDescriptor().(*recursiveMutexWait).result = true
			m.k.ReadyThread(t)
			m.k.Reschedule()
		} else {
			m.counter = 0
			m.owner = nil
		}
	}
}

// Delete wakes every remaining waiter with a failed result and frees
// the control block. Callers must not use m again afterward.
func (m *RecursiveMutex) Delete() {
	m.k.EnterCritical()
	defer m.k.ExitCritical()
	m.k.ReadyAll(&m.waiters)
	m.k.Reschedule()
	m.k.KernelMemory().Remove(m.cb)
	m.k.Heap().Free(m.cb)
	m.cb = nil
}
