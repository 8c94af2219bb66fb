// Copyright 2017 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ksync

import (
	"v.io/x/rtkernel/dlist"
	"v.io/x/rtkernel/kernel"
	"v.io/x/rtkernel/memheap"
)

// mutexControlBlockSize is the heap charge backing a Mutex's own
// bookkeeping.
const mutexControlBlockSize = 24

type mutexWait struct {
	result bool
}

// Mutex is a non-recursive lock with hand-off semantics: unlocking
// with a thread already waiting transfers ownership directly to it
// rather than reopening the lock for anyone to grab, so there is no
// thundering herd.
type Mutex struct {
	k       *kernel.Kernel
	locked  bool
	waiters dlist.PriorityList
	cb      *memheap.Block
}

// NewMutex creates an unlocked mutex, allocating its control block
// from the kernel heap.
func NewMutex(k *kernel.Kernel) *Mutex {
	cb := k.Heap().Allocate(mutexControlBlockSize)
	assert(cb != nil, "ksync: out of heap allocating mutex control block")
	k.KernelMemory().Insert(cb)
	return &Mutex{k: k, cb: cb}
}

// PeekLock reports whether Lock would currently succeed without
// blocking, that is, whether the mutex is free.
func (m *Mutex) PeekLock() bool {
	return !m.locked
}

// LockNonBlock locks m and returns true if it was unlocked; otherwise
// it returns false without blocking.
func (m *Mutex) LockNonBlock() bool {
	m.k.EnterCritical()
	defer m.k.ExitCritical()
	if !m.locked {
		m.locked = true
		return true
	}
	return false
}

// Lock acquires m, blocking the current thread for up to timeout
// ticks if it is already held (timeout == 0 means wait indefinitely).
// It returns whether the lock was actually acquired.
func (m *Mutex) Lock(timeout uint64) bool {
	m.k.EnterCritical()
	if !m.locked {
		m.locked = true
		m.k.ExitCritical()
		return true
	}
	wait := &mutexWait{}
	m.k.BlockCurrent(&m.waiters, timeout, wait)
	m.k.ExitCritical()
	return wait.result
}

// Unlock releases m. If another thread is waiting, ownership transfers
// directly to the highest-priority one (it is handed result=true and
// readied, m.locked stays true); otherwise m becomes unlocked.
func (m *Mutex) Unlock() {
	m.k.EnterCritical()
	defer m.k.ExitCritical()
	if !m.locked {
		return
	}
	if !m.waiters.Empty() {
		t := m.waiters.First().Container.(*kernel.Thread)
		t.WaitDescriptor().(*mutexWait).result = true
		m.k.ReadyThread(t)
		m.k.Reschedule()
		return
	}
	m.locked = false
}

// Delete wakes every remaining waiter with a failed result and frees
// the control block. Callers must not use m again afterward.
func (m *Mutex) Delete() {
	m.k.EnterCritical()
	defer m.k.ExitCritical()
	m.k.ReadyAll(&m.waiters)
	m.k.Reschedule()
	m.k.KernelMemory().Remove(m.cb)
	m.k.Heap().Free(m.cb)
	m.cb = nil
}
