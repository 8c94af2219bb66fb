// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package simport implements kernel.Port on top of goroutines instead
// of a real microcontroller. Each kernel.Thread gets one goroutine and
// one token (a binary semaphore, adapted from the nsync package's
// binarySemaphore); scheduling a thread means signalling its token,
// and a context switch is simply signalling the next thread's token
// and then waiting on the outgoing thread's own token. Exactly one
// token is ever held at a time, so simport reproduces the single-CPU
// assumption the scheduler is built on without any extra locking: the
// goroutines are cooperative, not actually concurrent.
//
// simport is meant for tests and for cmd/rtsim's interactive
// simulator; it is not a real-time port of anything.
package simport

import (
	"runtime"

	"v.io/x/rtkernel/kernel"
)

// Port is a kernel.Port backed by goroutines and channel batons.
type Port struct {
	tokens map[*kernel.Thread]*token
}

// New creates a simulated port with no threads registered yet.
func New() *Port {
	return &Port{tokens: make(map[*kernel.Thread]*token)}
}

// Spawn starts t's goroutine parked on a fresh token; it will run
// entry(arg) only once something calls Yield or StartKernel naming t
// as the destination.
func (p *Port) Spawn(t *kernel.Thread, entry func(arg interface{}), arg interface{}) {
	tok := &token{}
	tok.init()
	p.tokens[t] = tok
	go func() {
		tok.wait()
		entry(arg)
	}()
}

// Yield passes the baton from "from" to "to" and parks the calling
// goroutine until "from" is handed the baton again. A thread that
// deletes itself never hands its own token back out, so this call
// simply never returns for that goroutine -- it leaks, harmlessly,
// for the remaining lifetime of the process.
func (p *Port) Yield(from, to *kernel.Thread) {
	p.tokens[to].signal()
	p.tokens[from].wait()
}

// StartKernel hands the baton to first and then blocks forever: on
// real hardware, start_kernel loads a register set and never returns
// to its caller either.
func (p *Port) StartKernel(first *kernel.Thread) {
	p.tokens[first].signal()
	select {}
}

// Idle spins, yielding the host OS thread, standing in for a
// wait-for-interrupt instruction. It is never scheduled away from
// except by another thread becoming ready, at which point the
// scheduler's tick or wake path will Yield away from it.
func (p *Port) Idle() {
	for {
		runtime.Gosched()
	}
}
