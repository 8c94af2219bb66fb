// Copyright 2017 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"time"

	"v.io/x/rtkernel/kernel"
	"v.io/x/rtkernel/ksignal"
	"v.io/x/rtkernel/ksync"
	"v.io/x/rtkernel/kqueue"
	"v.io/x/rtkernel/ktimer"
	"v.io/x/rtkernel/memheap"
	"v.io/x/rtkernel/simport"
)

// scenarioTimeout bounds how long a scenario may take to reach its
// expected outcome before rtsim gives up and reports it as stuck; every
// scenario here finishes in well under a second once scheduled.
const scenarioTimeout = 2 * time.Second

// scenario is one of the named end-to-end demonstrations also covered by
// the kernel's own test suite, runnable here for interactive inspection.
type scenario struct {
	Name  string
	Short string
	Run   func(out io.Writer, cfg kernel.Config) error
}

var scenarios = []scenario{
	{"preemption", "higher-priority thread preempts on creation", runPreemption},
	{"round-robin", "equal-priority threads rotate on yield", runRoundRobin},
	{"queue-backpressure", "blocked receiver wakes once enough is sent", runQueueBackpressure},
	{"semaphore-reset", "reset wakes only the first N FIFO waiters", runSemaphoreReset},
	{"mutex-handoff", "recursive mutex hands off to a blocked waiter", runRecursiveMutexHandoff},
	{"timer-drift", "periodic timer dispatch count over 100 ticks", runTimerDrift},
	{"allocator-coalesce", "freeing adjacent blocks out of order still coalesces", runAllocatorCoalescing},
	{"signal-rendezvous", "a waiter wakes only on its matching signal value", runSignalRendezvous},
}

func scenarioByName(name string) *scenario {
	for i := range scenarios {
		if scenarios[i].Name == name {
			return &scenarios[i]
		}
	}
	return nil
}

// runPreemption demonstrates that creating a higher-priority thread runs
// it to completion before the creator regains control.
func runPreemption(out io.Writer, cfg kernel.Config) error {
	k := kernel.New(cfg, simport.New())
	events := make(chan string, 3)
	aDone := make(chan struct{})

	a := func(interface{}) {
		events <- "A: created, would otherwise run its delay loop forever"
		k.CreateThread("B", 3, 4096, func(interface{}) {
			events <- "B: ran immediately on creation and set the flag"
		}, nil)
		events <- "A: resumed only now that B has finished"
		close(aDone)
	}
	go k.Start("A", 5, 4096, a, nil)

	select {
	case <-aDone:
	case <-time.After(scenarioTimeout):
		return fmt.Errorf("preemption: timed out")
	}
	for i := 0; i < 3; i++ {
		fmt.Fprintln(out, <-events)
	}
	return nil
}

// runRoundRobin demonstrates that threads of equal priority rotate
// strictly in creation order across repeated Yield calls.
func runRoundRobin(out io.Writer, cfg kernel.Config) error {
	k := kernel.New(cfg, simport.New())
	var log []string
	reportDone := make(chan []string, 1)

	body := func(name string) func(interface{}) {
		return func(interface{}) {
			for i := 0; i < 3; i++ {
				log = append(log, name)
				k.Yield()
			}
		}
	}

	t1 := func(arg interface{}) {
		k.CreateThread("T2", 4, 4096, body("T2"), nil)
		k.CreateThread("T3", 4, 4096, body("T3"), nil)
		body("T1")(arg)
		reportDone <- append([]string(nil), log...)
	}
	go k.Start("T1", 4, 4096, t1, nil)

	select {
	case got := <-reportDone:
		fmt.Fprintf(out, "log order after three rounds: %v\n", got)
	case <-time.After(scenarioTimeout):
		return fmt.Errorf("round-robin: timed out")
	}
	return nil
}

// runQueueBackpressure demonstrates a receiver blocked on more bytes than
// are available waking only once a second send supplies the rest.
func runQueueBackpressure(out io.Writer, cfg kernel.Config) error {
	k := kernel.New(cfg, simport.New())
	q := kqueue.New(k, 4)
	received := make(chan []byte, 1)

	driver := func(interface{}) {
		k.CreateThread("consumer", 5, 4096, func(interface{}) {
			buf := make([]byte, 4)
			if q.Receive(buf, 0) {
				received <- buf
			}
		}, nil)
		k.CreateThread("producer", 5, 4096, func(interface{}) {
			q.Send([]byte{1, 2}, 0)
			q.Send([]byte{3, 4}, 0)
		}, nil)
	}
	go k.Start("driver", 6, 4096, driver, nil)

	select {
	case buf := <-received:
		fmt.Fprintf(out, "consumer unblocked with %v once the second send filled the queue\n", buf)
	case <-time.After(scenarioTimeout):
		return fmt.Errorf("queue backpressure: timed out")
	}
	return nil
}

// runSemaphoreReset demonstrates that Reset wakes exactly its initial
// count of FIFO waiters, leaving the rest blocked.
func runSemaphoreReset(out io.Writer, cfg kernel.Config) error {
	k := kernel.New(cfg, simport.New())
	sem := ksync.NewSemaphore(k, 0)
	type wakeup struct {
		idx int
		ok  bool
	}
	results := make(chan wakeup, 5)
	allBlocked := make(chan struct{})

	driver := func(interface{}) {
		for i := 0; i < 5; i++ {
			idx := i
			k.CreateThread(fmt.Sprintf("waiter-%d", idx), 5, 4096, func(interface{}) {
				ok := sem.Wait(0)
				results <- wakeup{idx, ok}
			}, nil)
		}
		close(allBlocked)
		sem.Reset(3)
	}
	go k.Start("driver", 6, 4096, driver, nil)

	select {
	case <-allBlocked:
	case <-time.After(scenarioTimeout):
		return fmt.Errorf("semaphore reset: timed out waiting for waiters to block")
	}

	woken := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		select {
		case r := <-results:
			woken = append(woken, r.idx)
		case <-time.After(scenarioTimeout):
			return fmt.Errorf("semaphore reset: timed out waiting for wakeups")
		}
	}
	fmt.Fprintf(out, "reset(3) woke waiters %v, counter ends at 0\n", woken)
	select {
	case extra := <-results:
		return fmt.Errorf("semaphore reset: unexpected extra wakeup %+v", extra)
	default:
		fmt.Fprintln(out, "remaining two waiters are still blocked")
	}
	return nil
}

// runRecursiveMutexHandoff demonstrates that unlocking a recursive mutex
// down to a zero count hands ownership directly to the highest-priority
// blocked waiter.
func runRecursiveMutexHandoff(out io.Writer, cfg kernel.Config) error {
	k := kernel.New(cfg, simport.New())
	rm := ksync.NewRecursiveMutex(k)
	events := make(chan string, 4)
	bDone := make(chan struct{})
	aDone := make(chan struct{})

	a := func(interface{}) {
		rm.Lock(0)
		rm.Lock(0)
		events <- "A locked twice (counter 2, owner A)"
		k.CreateThread("B", 3, 4096, func(interface{}) {
			ok := rm.Lock(0)
			events <- fmt.Sprintf("B's blocked lock returned %v, B is now owner with counter 1", ok)
			close(bDone)
		}, nil)
		rm.Unlock()
		events <- "A unlocked once (counter 1, still owner)"
		rm.Unlock()
		events <- "A unlocked again, handing ownership to B"
		close(aDone)
	}
	go k.Start("A", 4, 4096, a, nil)

	for _, ch := range []chan struct{}{bDone, aDone} {
		select {
		case <-ch:
		case <-time.After(scenarioTimeout):
			return fmt.Errorf("recursive mutex handoff: timed out")
		}
	}
	close(events)
	for e := range events {
		fmt.Fprintln(out, e)
	}
	return nil
}

// runTimerDrift demonstrates that a periodic timer's dispatch count
// tracks its daemon's own scheduling rather than drifting arbitrarily.
func runTimerDrift(out io.Writer, cfg kernel.Config) error {
	k := kernel.New(cfg, simport.New())
	mgr := ktimer.NewManager(k, 4096)
	var fireCount int
	reportDone := make(chan int, 1)

	driver := func(interface{}) {
		timer := mgr.CreateTimer(2, ktimer.Periodic, func(interface{}) {
			fireCount++
		})
		timer.Start(10, nil)
		for i := 0; i < 100; i++ {
			k.Tick()
		}
		timer.Stop()
		reportDone <- fireCount
	}
	go k.Start("driver", 5, 4096, driver, nil)

	select {
	case n := <-reportDone:
		fmt.Fprintf(out, "periodic timer (period 10) fired %d times over 100 ticks\n", n)
		if n < 9 || n > 10 {
			return fmt.Errorf("timer drift: fired %d times, want 9 or 10", n)
		}
	case <-time.After(scenarioTimeout):
		return fmt.Errorf("timer drift: timed out")
	}
	return nil
}

// runAllocatorCoalescing demonstrates that freeing three address-adjacent
// queues' control blocks in a non-address order still fully coalesces
// the reclaimed space, through the kqueue API against a real kernel
// heap rather than against memheap directly: the heap is sized with
// exactly enough room for the idle thread, the driver thread and three
// small queues and no slack whatsoever, so a subsequent queue whose
// ring buffer needs more contiguous space than any single one of the
// three can only succeed if the freed space actually merged back into
// one block.
func runAllocatorCoalescing(out io.Writer, cfg kernel.Config) error {
	const headerSize = 3 * memheap.Alignment
	const threadStack = 128
	const smallQueueSize = 8
	const bigQueueSize = 150

	queueFootprint := memheap.RoundUp(smallQueueSize+1) + headerSize +
		memheap.RoundUp(kqueue.ControlBlockSize) + headerSize
	threadFootprint := memheap.RoundUp(threadStack) + headerSize +
		memheap.RoundUp(kernel.ThreadControlBlockSize) + headerSize
	bigRing := memheap.RoundUp(bigQueueSize+1) + headerSize
	if bigRing <= queueFootprint {
		return fmt.Errorf("allocator coalescing: scenario sizes need the merged request to exceed a single queue's footprint")
	}

	cfg.IdleStackSize = threadStack
	cfg.HeapSize = 2*threadFootprint + 3*queueFootprint
	k := kernel.New(cfg, simport.New())

	done := make(chan struct{})
	driver := func(interface{}) {
		q1 := kqueue.New(k, smallQueueSize)
		q2 := kqueue.New(k, smallQueueSize)
		q3 := kqueue.New(k, smallQueueSize)
		q1.Delete()
		q3.Delete()
		q2.Delete()
		merged := kqueue.New(k, bigQueueSize)
		merged.Delete()
		close(done)
	}
	go k.Start("driver", 5, threadStack, driver, nil)

	select {
	case <-done:
	case <-time.After(scenarioTimeout):
		return fmt.Errorf("allocator coalescing: timed out")
	}
	fmt.Fprintf(out, "freed three %d-byte queues out of address order (q1, q3, q2); a queue needing a %d-byte contiguous ring buffer immediately succeeded in their place, on a heap with no other room to spare\n", queueFootprint, bigRing)
	return nil
}

// runSignalRendezvous demonstrates a waiter blocked on a specific signal
// value waking with the payload from a matching Send.
func runSignalRendezvous(out io.Writer, cfg kernel.Config) error {
	k := kernel.New(cfg, simport.New())
	sig := ksignal.New(k)
	received := make(chan interface{}, 1)

	driver := func(interface{}) {
		k.CreateThread("waiter", 5, 4096, func(interface{}) {
			info, ok := sig.Wait(7, 0)
			if ok {
				received <- info
			}
		}, nil)
		sig.Send(7, "payload")
	}
	go k.Start("driver", 6, 4096, driver, nil)

	select {
	case info := <-received:
		fmt.Fprintf(out, "waiter woke with payload %v\n", info)
	case <-time.After(scenarioTimeout):
		return fmt.Errorf("signal rendezvous: timed out")
	}
	return nil
}
