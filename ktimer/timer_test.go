// Copyright 2017 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ktimer_test

import (
	"testing"
	"time"

	"v.io/x/rtkernel/kernel"
	"v.io/x/rtkernel/ktimer"
	"v.io/x/rtkernel/simport"
)

func newTestKernel() *kernel.Kernel {
	return kernel.New(kernel.DefaultConfig(), simport.New())
}

// TestOneShotFiresOnce checks that a one-shot timer dispatches exactly
// one callback at the expected tick and then goes quiet.
func TestOneShotFiresOnce(t *testing.T) {
	k := newTestKernel()
	mgr := ktimer.NewManager(k, 4096)
	fired := make(chan uint64, 4)

	body := func(interface{}) {
		timer := mgr.CreateTimer(2, ktimer.OneShot, func(interface{}) {
			fired <- k.Now()
		})
		timer.Start(5, nil)
		for i := 0; i < 10; i++ {
			k.Tick()
		}
		close(fired)
	}

	go k.Start("driver", 5, 4096, body, nil)

	var ticks []uint64
	timeout := time.After(time.Second)
drain:
	for {
		select {
		case v, ok := <-fired:
			if !ok {
				break drain
			}
			ticks = append(ticks, v)
		case <-timeout:
			t.Fatal("timed out")
		}
	}
	if len(ticks) != 1 {
		t.Fatalf("fired %d times, want 1: %v", len(ticks), ticks)
	}
	if ticks[0] != 5 {
		t.Errorf("fired at tick %d, want 5", ticks[0])
	}
}

// TestPeriodicFiresRepeatedly checks that a periodic timer re-arms
// itself after every firing.
func TestPeriodicFiresRepeatedly(t *testing.T) {
	k := newTestKernel()
	mgr := ktimer.NewManager(k, 4096)
	var fireCount int
	done := make(chan int, 1)

	body := func(interface{}) {
		timer := mgr.CreateTimer(2, ktimer.Periodic, func(interface{}) {
			fireCount++
		})
		timer.Start(4, nil)
		for i := 0; i < 20; i++ {
			k.Tick()
		}
		timer.Stop()
		done <- fireCount
	}

	go k.Start("driver", 5, 4096, body, nil)

	select {
	case n := <-done:
		if n != 5 {
			t.Errorf("fired %d times over 20 ticks at period 4, want 5", n)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

// TestStopPreventsFiring checks that stopping a timer before its
// deadline keeps its callback from ever running.
func TestStopPreventsFiring(t *testing.T) {
	k := newTestKernel()
	mgr := ktimer.NewManager(k, 4096)
	fired := false
	done := make(chan struct{})

	body := func(interface{}) {
		timer := mgr.CreateTimer(2, ktimer.OneShot, func(interface{}) {
			fired = true
		})
		timer.Start(5, nil)
		for i := 0; i < 3; i++ {
			k.Tick()
		}
		timer.Stop()
		for i := 0; i < 10; i++ {
			k.Tick()
		}
		close(done)
	}

	go k.Start("driver", 5, 4096, body, nil)

	select {
	case <-done:
		if fired {
			t.Error("stopped timer fired anyway")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

// TestPeriodicDispatchCountBoundedOver100Ticks checks that a periodic
// timer's dispatch count over a long run stays within one firing
// short of the exact count (10 at period 10 over 100 ticks), rather
// than accumulating unbounded skew.
func TestPeriodicDispatchCountBoundedOver100Ticks(t *testing.T) {
	k := newTestKernel()
	mgr := ktimer.NewManager(k, 4096)
	var fireCount int
	done := make(chan int, 1)

	body := func(interface{}) {
		timer := mgr.CreateTimer(2, ktimer.Periodic, func(interface{}) {
			fireCount++
		})
		timer.Start(10, nil)
		for i := 0; i < 100; i++ {
			k.Tick()
		}
		timer.Stop()
		done <- fireCount
	}

	go k.Start("driver", 5, 4096, body, nil)

	select {
	case n := <-done:
		if n < 9 || n > 10 {
			t.Errorf("fired %d times over 100 ticks at period 10, want 9 or 10", n)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}
