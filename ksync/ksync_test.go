// Copyright 2017 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ksync_test

import (
	"fmt"
	"testing"
	"time"

	"v.io/x/rtkernel/kernel"
	"v.io/x/rtkernel/ksync"
	"v.io/x/rtkernel/simport"
)

func newTestKernel() *kernel.Kernel {
	return kernel.New(kernel.DefaultConfig(), simport.New())
}

// TestSemaphoreHandoff checks that Post hands the count directly to a
// waiting higher-priority thread rather than ever incrementing the
// counter while someone is blocked.
func TestSemaphoreHandoff(t *testing.T) {
	k := newTestKernel()
	sem := ksync.NewSemaphore(k, 0)
	acquired := make(chan bool, 1)

	low := func(arg interface{}) {
		k.CreateThread("high", 1, 4096, func(interface{}) {
			acquired <- sem.Wait(0)
		}, nil)
		sem.Post()
	}

	go k.Start("low", 2, 4096, low, nil)

	select {
	case ok := <-acquired:
		if !ok {
			t.Fatal("waiter did not acquire the semaphore")
		}
		if sem.Counter() != 0 {
			t.Fatalf("counter = %d, want 0 after direct handoff", sem.Counter())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

// TestMutexHandoffKeepsLocked checks that Unlock with a waiter present
// transfers ownership without ever observing the mutex as unlocked.
func TestMutexHandoffKeepsLocked(t *testing.T) {
	k := newTestKernel()
	mu := ksync.NewMutex(k)
	result := make(chan bool, 1)

	low := func(arg interface{}) {
		mu.Lock(0)
		k.CreateThread("high", 1, 4096, func(interface{}) {
			ok := mu.Lock(0)
			if mu.PeekLock() {
				t.Error("mutex observed unlocked after hand-off")
			}
			result <- ok
		}, nil)
		mu.Unlock()
	}

	go k.Start("low", 2, 4096, low, nil)

	select {
	case ok := <-result:
		if !ok {
			t.Fatal("high-priority waiter did not acquire the mutex")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

// TestRecursiveMutexReentry checks that the owning thread can lock
// again without blocking on itself, and that the mutex only releases
// once the nesting count returns to zero.
func TestRecursiveMutexReentry(t *testing.T) {
	k := newTestKernel()
	mu := ksync.NewRecursiveMutex(k)
	done := make(chan struct{})

	body := func(arg interface{}) {
		if !mu.Lock(0) {
			t.Error("first lock failed")
		}
		if !mu.Lock(0) {
			t.Error("reentrant lock failed")
		}
		if mu.IsLocked() != true {
			t.Error("expected mutex to report locked")
		}
		mu.Unlock()
		if !mu.IsLocked() {
			t.Error("expected mutex to still be locked after one unlock of two locks")
		}
		mu.Unlock()
		if mu.IsLocked() {
			t.Error("expected mutex to be free after matching unlocks")
		}
		close(done)
	}

	go k.Start("solo", 1, 4096, body, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

// TestSemaphoreResetWakesOnlyCount checks that Reset wakes exactly its
// given count of FIFO waiters with a successful result, leaving the
// rest blocked and the counter at zero.
func TestSemaphoreResetWakesOnlyCount(t *testing.T) {
	k := newTestKernel()
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
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for waiters to block")
	}

	woken := make(map[int]bool, 3)
	for i := 0; i < 3; i++ {
		select {
		case r := <-results:
			if !r.ok {
				t.Errorf("waiter %d woke with a failed result", r.idx)
			}
			woken[r.idx] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for wakeups")
		}
	}
	if len(woken) != 3 {
		t.Fatalf("woke %d distinct waiters, want 3: %v", len(woken), woken)
	}
	if sem.Counter() != 0 {
		t.Errorf("counter = %d, want 0 after Reset(3) handed off all 3", sem.Counter())
	}
	select {
	case extra := <-results:
		t.Fatalf("unexpected extra wakeup %+v", extra)
	default:
	}
}

// TestRecursiveMutexHandoffToWaiter checks that unlocking a recursive
// mutex down to a zero nesting count hands ownership directly to the
// highest-priority blocked waiter rather than freeing the lock for
// anyone to grab.
func TestRecursiveMutexHandoffToWaiter(t *testing.T) {
	k := newTestKernel()
	rm := ksync.NewRecursiveMutex(k)
	bAcquired := make(chan bool, 1)
	aDone := make(chan struct{})

	a := func(interface{}) {
		if !rm.Lock(0) {
			t.Error("A's first lock failed")
		}
		if !rm.Lock(0) {
			t.Error("A's second lock failed")
		}
		k.CreateThread("B", 3, 4096, func(interface{}) {
			bAcquired <- rm.Lock(0)
		}, nil)
		rm.Unlock()
		if !rm.IsLocked() {
			t.Error("expected mutex to still be locked after one of two unlocks")
		}
		rm.Unlock()
		close(aDone)
	}
	go k.Start("A", 4, 4096, a, nil)

	select {
	case <-aDone:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for A to finish")
	}
	select {
	case ok := <-bAcquired:
		if !ok {
			t.Fatal("B did not acquire the mutex on hand-off")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for B's hand-off")
	}
}
