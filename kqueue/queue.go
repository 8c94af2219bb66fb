// Copyright 2017 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kqueue implements a fixed-capacity byte ring buffer with four
// priority-ordered waiter lists -- regular read, read-behind, regular
// write and write-ahead -- and the equation solver that drains them
// against each other whenever the buffer's occupancy changes.
package kqueue

import (
	"v.io/x/rtkernel/dlist"
	"v.io/x/rtkernel/kernel"
	"v.io/x/rtkernel/memheap"
)

// ControlBlockSize is the heap charge backing a Queue's own
// bookkeeping, separate from the ring buffer itself. Exported so
// callers that size a heap tightly against a known set of queues
// (cmd/rtsim's allocator-coalescing scenario, for one) can compute the
// exact charge rather than guessing at it.
const ControlBlockSize = 32

type readWait struct {
	data   []byte
	result bool
}

type writeWait struct {
	data   []byte
	result bool
}

// Queue is a byte ring buffer whose backing array is one byte longer
// than the usable capacity given to New (one slot is always left empty
// so that read == write is unambiguously "empty"). Send and
// SendAhead write from opposite ends of the free region; Receive and
// ReceiveBehind read from opposite ends of the used region.
type Queue struct {
	k *kernel.Kernel

	memory []byte
	mem    *memheap.Block
	cb     *memheap.Block
	read   int
	write  int

	readingThreads       dlist.PriorityList
	readingBehindThreads dlist.PriorityList
	writingThreads       dlist.PriorityList
	writingAheadThreads  dlist.PriorityList
}

// New creates a queue with the given usable capacity in bytes. The
// underlying buffer is allocated from the kernel heap, one byte larger
// than size to keep the empty/full indices distinct; the heap may hand
// back a larger block than requested, so memory is sliced down to
// exactly size+1 bytes to keep Size()'s contract exact.
func New(k *kernel.Kernel, size int) *Queue {
	assert(size > 0, "kqueue: non-positive queue size %d", size)
	mem := k.Heap().Allocate(size + 1)
	assert(mem != nil, "kqueue: out of heap allocating %d-byte ring buffer", size+1)
	k.KernelMemory().Insert(mem)
	cb := k.Heap().Allocate(ControlBlockSize)
	assert(cb != nil, "kqueue: out of heap allocating queue control block")
	k.KernelMemory().Insert(cb)
	return &Queue{k: k, memory: mem.Payload()[:size+1], mem: mem, cb: cb}
}

// Size returns the queue's usable capacity in bytes.
func (q *Queue) Size() int { return len(q.memory) - 1 }

// UsedSize returns the number of bytes currently stored in the queue.
func (q *Queue) UsedSize() int {
	if q.write >= q.read {
		return q.write - q.read
	}
	return len(q.memory) - (q.read - q.write)
}

// FreeSize returns the number of bytes that can currently be written
// without blocking.
func (q *Queue) FreeSize() int {
	return q.Size() - q.UsedSize()
}

func (q *Queue) write_(data []byte) {
	for _, b := range data {
		q.memory[q.write] = b
		q.write++
		if q.write > q.Size() {
			q.write = 0
		}
	}
}

func (q *Queue) writeAhead(data []byte) {
	for _, b := range data {
		if q.read > 0 {
			q.read--
		} else {
			q.read = q.Size()
		}
		q.memory[q.read] = b
	}
}

func (q *Queue) read_(data []byte) {
	for i := range data {
		data[i] = q.memory[q.read]
		q.read++
		if q.read > q.Size() {
			q.read = 0
		}
	}
}

func (q *Queue) readBehind(data []byte) {
	for i := range data {
		if q.write > 0 {
			q.write--
		} else {
			q.write = q.Size()
		}
		data[i] = q.memory[q.write]
	}
}

// solveEquation drains the four waiter lists against the buffer's
// current occupancy until neither side can make further progress. For
// each side it picks whichever of that side's two waiter lists has the
// higher-priority (lower priority value) head, mirroring the four-list
// arbitration in the reference implementation this is modeled on.
func (q *Queue) solveEquation() {
	canRead, canWrite := true, true

	for canRead || canWrite {
		if canWrite {
			canWrite = q.tryWrite()
			if canWrite {
				canRead = true
			}
		}
		if canRead {
			canRead = q.tryRead()
			if canRead {
				canWrite = true
			}
		}
		if !q.anyWaiters() {
			break
		}
	}

	q.k.Reschedule()
}

func (q *Queue) anyWaiters() bool {
	return !q.readingThreads.Empty() || !q.readingBehindThreads.Empty() ||
		!q.writingThreads.Empty() || !q.writingAheadThreads.Empty()
}

// tryWrite performs at most one write hand-off and reports whether it
// made progress (in which case the caller should give tryRead another
// pass, since free space just shrank and used space just grew).
func (q *Queue) tryWrite() bool {
	ahead := false
	switch {
	case q.writingThreads.Empty() && q.writingAheadThreads.Empty():
		return false
	case q.writingThreads.Empty():
		ahead = true
	case q.writingAheadThreads.Empty():
		ahead = false
	default:
		ahead = q.writingAheadThreads.First().Value < q.writingThreads.First().Value
	}

	list := &q.writingThreads
	if ahead {
		list = &q.writingAheadThreads
	}
	t := list.First().Container.(*kernel.Thread)
	w := t.WaitDescriptor().(*writeWait)
	if len(w.data) > q.FreeSize() {
		return false
	}
	if ahead {
		q.writeAhead(w.data)
	} else {
		q.write_(w.data)
	}
	w.result = true
	q.k.ReadyThread(t)
	return true
}

// tryRead performs at most one read hand-off and reports whether it
// made progress.
func (q *Queue) tryRead() bool {
	behind := false
	switch {
	case q.readingThreads.Empty() && q.readingBehindThreads.Empty():
		return false
	case q.readingThreads.Empty():
		behind = true
	case q.readingBehindThreads.Empty():
		behind = false
	default:
		behind = q.readingBehindThreads.First().Value < q.readingThreads.First().Value
	}

	list := &q.readingThreads
	if behind {
		list = &q.readingBehindThreads
	}
	t := list.First().Container.(*kernel.Thread)
	r := t.WaitDescriptor().(*readWait)
	if len(r.data) > q.UsedSize() {
		return false
	}
	if behind {
		q.readBehind(r.data)
	} else {
		q.read_(r.data)
	}
	r.result = true
	q.k.ReadyThread(t)
	return true
}

// PeekSend reports whether a send of n bytes would currently succeed
// without blocking.
func (q *Queue) PeekSend(n int) bool { return n <= q.FreeSize() }

// PeekReceive reports whether a receive of n bytes would currently
// succeed without blocking.
func (q *Queue) PeekReceive(n int) bool { return n <= q.UsedSize() }

// SendNonBlock writes data to the back of the queue without blocking,
// reporting whether there was enough free space to do so.
func (q *Queue) SendNonBlock(data []byte) bool {
	q.k.EnterCritical()
	defer q.k.ExitCritical()
	if !q.PeekSend(len(data)) {
		return false
	}
	q.write_(data)
	q.solveEquation()
	return true
}

// SendAheadNonBlock writes data to the front of the queue (so it is
// read before anything already buffered) without blocking.
func (q *Queue) SendAheadNonBlock(data []byte) bool {
	q.k.EnterCritical()
	defer q.k.ExitCritical()
	if !q.PeekSend(len(data)) {
		return false
	}
	q.writeAhead(data)
	q.solveEquation()
	return true
}

// ReceiveNonBlock reads len(data) bytes from the front of the queue
// into data without blocking.
func (q *Queue) ReceiveNonBlock(data []byte) bool {
	q.k.EnterCritical()
	defer q.k.ExitCritical()
	if !q.PeekReceive(len(data)) {
		return false
	}
	q.read_(data)
	q.solveEquation()
	return true
}

// ReceiveBehindNonBlock reads len(data) bytes off the back of the
// queue (the most recently written bytes) into data without blocking.
func (q *Queue) ReceiveBehindNonBlock(data []byte) bool {
	q.k.EnterCritical()
	defer q.k.ExitCritical()
	if !q.PeekReceive(len(data)) {
		return false
	}
	q.readBehind(data)
	q.solveEquation()
	return true
}

// Send writes data to the back of the queue, blocking the current
// thread for up to timeout ticks if there is not enough free space
// (timeout == 0 means wait indefinitely). It returns whether the bytes
// were actually written.
func (q *Queue) Send(data []byte, timeout uint64) bool {
	q.k.EnterCritical()
	if q.PeekSend(len(data)) {
		q.write_(data)
		q.solveEquation()
		q.k.ExitCritical()
		return true
	}
	wait := &writeWait{data: data}
	q.k.BlockCurrent(&q.writingThreads, timeout, wait)
	q.k.ExitCritical()
	return wait.result
}

// SendAhead writes data to the front of the queue, blocking the
// current thread for up to timeout ticks if there is not enough free
// space (timeout == 0 means wait indefinitely).
func (q *Queue) SendAhead(data []byte, timeout uint64) bool {
	q.k.EnterCritical()
	if q.PeekSend(len(data)) {
		q.writeAhead(data)
		q.solveEquation()
		q.k.ExitCritical()
		return true
	}
	wait := &writeWait{data: data}
	q.k.BlockCurrent(&q.writingAheadThreads, timeout, wait)
	q.k.ExitCritical()
	return wait.result
}

// Receive reads len(data) bytes from the front of the queue into data,
// blocking the current thread for up to timeout ticks if there are not
// enough bytes buffered (timeout == 0 means wait indefinitely).
func (q *Queue) Receive(data []byte, timeout uint64) bool {
	q.k.EnterCritical()
	if q.PeekReceive(len(data)) {
		q.read_(data)
		q.solveEquation()
		q.k.ExitCritical()
		return true
	}
	wait := &readWait{data: data}
	q.k.BlockCurrent(&q.readingThreads, timeout, wait)
	q.k.ExitCritical()
	return wait.result
}

// ReceiveBehind reads len(data) bytes off the back of the queue into
// data, blocking the current thread for up to timeout ticks if there
// are not enough bytes buffered (timeout == 0 means wait
// indefinitely).
func (q *Queue) ReceiveBehind(data []byte, timeout uint64) bool {
	q.k.EnterCritical()
	if q.PeekReceive(len(data)) {
		q.readBehind(data)
		q.solveEquation()
		q.k.ExitCritical()
		return true
	}
	wait := &readWait{data: data}
	q.k.BlockCurrent(&q.readingBehindThreads, timeout, wait)
	q.k.ExitCritical()
	return wait.result
}

// Reset empties the queue and re-solves the waiter equation, since
// clearing it may free up room for blocked writers or strand blocked
// readers who were waiting on bytes that no longer exist.
func (q *Queue) Reset() {
	q.k.EnterCritical()
	defer q.k.ExitCritical()
	q.read = 0
	q.write = 0
	q.solveEquation()
}

// Delete wakes every remaining waiter, on any of the four lists, with
// a failed result, and frees the ring buffer and control block.
// Callers must not use q again afterward.
func (q *Queue) Delete() {
	q.k.EnterCritical()
	defer q.k.ExitCritical()
	q.k.ReadyAll(&q.readingThreads)
	q.k.ReadyAll(&q.readingBehindThreads)
	q.k.ReadyAll(&q.writingThreads)
	q.k.ReadyAll(&q.writingAheadThreads)
	q.k.Reschedule()
	q.k.KernelMemory().Remove(q.mem)
	q.k.Heap().Free(q.mem)
	q.k.KernelMemory().Remove(q.cb)
	q.k.Heap().Free(q.cb)
	q.memory, q.mem, q.cb = nil, nil, nil
}
