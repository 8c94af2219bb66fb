// Copyright 2017 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ksync implements the counting semaphore and the plain and
// recursive mutexes built on kernel's blocking primitive: a
// priority-ordered waiter list plus a wait descriptor that the waker
// fills in before readying the blocked thread.
package ksync

import (
	"v.io/x/rtkernel/dlist"
	"v.io/x/rtkernel/kernel"
	"v.io/x/rtkernel/memheap"
)

// semaphoreControlBlockSize is the heap charge backing a Semaphore's
// own bookkeeping, the way a thread's stack is charged against the
// kernel heap.
const semaphoreControlBlockSize = 24

type semaphoreWait struct {
	result bool
}

// Semaphore is a counting semaphore with priority-ordered wakeup: the
// highest-priority waiter (FIFO among equal priorities) is always the
// next one woken.
type Semaphore struct {
	k       *kernel.Kernel
	counter uint
	waiters dlist.PriorityList
	cb      *memheap.Block
}

// NewSemaphore creates a semaphore with the given initial counter
// value, allocating its control block from the kernel heap.
func NewSemaphore(k *kernel.Kernel, initial uint) *Semaphore {
	cb := k.Heap().Allocate(semaphoreControlBlockSize)
	assert(cb != nil, "ksync: out of heap allocating semaphore control block")
	k.KernelMemory().Insert(cb)
	return &Semaphore{k: k, counter: initial, cb: cb}
}

// Counter returns the semaphore's current counter value.
func (s *Semaphore) Counter() uint {
	return s.counter
}

// Post increments the semaphore, or, if a thread is already waiting,
// hands the count directly to the highest-priority waiter instead of
// ever letting the counter go positive.
func (s *Semaphore) Post() {
	s.k.EnterCritical()
	defer s.k.ExitCritical()

	if !s.waiters.Empty() {
		t := s.waiters.First().Container.(*kernel.Thread)
		t.WaitDescriptor().(*semaphoreWait).result = true
		s.k.ReadyThread(t)
		s.k.Reschedule()
		return
	}
	s.counter++
}

// PeekWait reports whether Wait would currently succeed without
// blocking, that is, whether the counter is non-zero.
func (s *Semaphore) PeekWait() bool {
	return s.counter != 0
}

// WaitNonBlock decrements the semaphore and returns true if the
// counter is currently positive; otherwise it returns false without
// blocking.
func (s *Semaphore) WaitNonBlock() bool {
	s.k.EnterCritical()
	defer s.k.ExitCritical()

	if s.counter != 0 {
		s.counter--
		return true
	}
	return false
}

// Wait decrements the semaphore, blocking the current thread for up
// to timeout ticks if the counter is zero (timeout == 0 means wait
// indefinitely). It returns whether the semaphore was actually
// acquired.
func (s *Semaphore) Wait(timeout uint64) bool {
	s.k.EnterCritical()

	if s.counter != 0 {
		s.counter--
		s.k.ExitCritical()
		return true
	}

	wait := &semaphoreWait{}
	s.k.BlockCurrent(&s.waiters, timeout, wait)
	s.k.ExitCritical()
	return wait.result
}

// Reset wakes up to initial of the highest-priority waiters (in
// priority/FIFO order), each with a successful result, and sets the
// counter to whatever of initial is left over.
func (s *Semaphore) Reset(initial uint) {
	s.k.EnterCritical()
	defer s.k.ExitCritical()

	for !s.waiters.Empty() && initial > 0 {
		t := s.waiters.First().Container.(*kernel.Thread)
		t.WaitDescriptor().(*semaphoreWait).result = true
		s.k.ReadyThread(t)
		initial--
	}
	s.counter = initial
	s.k.Reschedule()
}

// Delete wakes every remaining waiter with a failed result and frees
// the control block. Callers must not use s again afterward.
func (s *Semaphore) Delete() {
	s.k.EnterCritical()
	defer s.k.ExitCritical()
	s.k.ReadyAll(&s.waiters)
	s.k.Reschedule()
	s.k.KernelMemory().Remove(s.cb)
	s.k.Heap().Free(s.cb)
	s.cb = nil
}
