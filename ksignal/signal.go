// Copyright 2017 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ksignal implements a rendezvous primitive: a thread waits
// for a specific signal value, and a sender wakes every waiter
// currently blocked on that value, handing each of them a copy of an
// arbitrary payload.
package ksignal

import (
	"v.io/x/rtkernel/dlist"
	"v.io/x/rtkernel/kernel"
	"v.io/x/rtkernel/memheap"
)

// controlBlockSize is the heap charge backing a Signal's own
// bookkeeping.
const controlBlockSize = 24

// Value identifies which signal a waiter is interested in; Send only
// wakes waiters whose Value matches exactly.
type Value int

type signalWait struct {
	value  Value
	info   interface{}
	result bool
}

// Signal is a rendezvous point. Unlike ksync's primitives it has no
// stored state between calls -- Send either finds matching waiters
// right now or the signal is lost, exactly like the reference
// implementation this is modeled on.
type Signal struct {
	k       *kernel.Kernel
	waiters dlist.PriorityList
	cb      *memheap.Block
}

// New creates a signal with no waiters, allocating its control block
// from the kernel heap.
func New(k *kernel.Kernel) *Signal {
	cb := k.Heap().Allocate(controlBlockSize)
	assert(cb != nil, "ksignal: out of heap allocating control block")
	k.KernelMemory().Insert(cb)
	return &Signal{k: k, cb: cb}
}

// Wait blocks the current thread until a Send with a matching value
// arrives, for up to timeout ticks (timeout == 0 means wait
// indefinitely). It returns the info payload handed to it by Send and
// whether the wait actually matched (false on timeout or Delete).
func (s *Signal) Wait(value Value, timeout uint64) (info interface{}, ok bool) {
	s.k.EnterCritical()
	wait := &signalWait{value: value}
	s.k.BlockCurrent(&s.waiters, timeout, wait)
	s.k.ExitCritical()
	return wait.info, wait.result
}

// Send wakes every thread currently waiting on value, handing each of
// them info, and reschedules if any of them outranks the current
// thread. Threads waiting on a different value are left blocked; a
// Send with no matching waiters has no effect.
func (s *Signal) Send(value Value, info interface{}) {
	s.k.EnterCritical()
	defer s.k.ExitCritical()

	if s.waiters.Empty() {
		return
	}
	// Matches are collected in a first pass and readied in a second:
	// readying a waiter detaches it from this very list and can move
	// the list's head, which would corrupt an iteration that tried to
	// walk and remove at the same time.
	var matched []*kernel.Thread
	first := s.waiters.First()
	for item := first; ; {
		t := item.Container.(*kernel.Thread)
		if t.WaitDescriptor().(*signalWait).value == value {
			matched = append(matched, t)
		}
		item = item.Next()
		if item == first {
			break
		}
	}
	for _, t := range matched {
		wait := t.WaitDescriptor().(*signalWait)
		wait.info = info
		wait.result = true
		s.k.ReadyThread(t)
	}
	s.k.Reschedule()
}

// Delete wakes every remaining waiter with a failed result and frees
// the control block. Callers must not use s again afterward.
func (s *Signal) Delete() {
	s.k.EnterCritical()
	defer s.k.ExitCritical()
	s.k.ReadyAll(&s.waiters)
	s.k.Reschedule()
	s.k.KernelMemory().Remove(s.cb)
	s.k.Heap().Free(s.cb)
	s.cb = nil
}
