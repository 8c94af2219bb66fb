// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel_test

import (
	"testing"
	"time"

	"v.io/x/rtkernel/kernel"
	"v.io/x/rtkernel/simport"
)

func newTestKernel() (*kernel.Kernel, *simport.Port) {
	port := simport.New()
	k := kernel.New(kernel.DefaultConfig(), port)
	return k, port
}

// TestCreatePreempts checks that creating a higher-priority thread
// preempts the thread that created it.
func TestCreatePreempts(t *testing.T) {
	k, _ := newTestKernel()

	order := make(chan string, 8)
	done := make(chan struct{})

	main := func(arg interface{}) {
		order <- "main-start"
		k.CreateThread("high", 1, 4096, func(interface{}) {
			order <- "high-run"
			close(done)
		}, nil)
		// Control should not reach here until "high" has run to
		// completion and deleted itself, since it outranks "main".
		order <- "main-resume"
	}

	go k.Start("main", 5, 4096, main, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for high-priority thread to run")
	}

	got := []string{<-order, <-order}
	want := []string{"main-start", "high-run"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want prefix %v", got, want)
		}
	}
}

// TestDelayWakesOnTick checks that a delayed thread is readied once
// enough ticks have elapsed, and not before. There is no asynchronous
// timer interrupt in this simulation, so the lower-priority thread
// left runnable once the delayed thread blocks plays the role of the
// tick ISR, calling Tick on its behalf.
func TestDelayWakesOnTick(t *testing.T) {
	k, _ := newTestKernel()

	woke := make(chan uint64, 1)
	tooEarly := make(chan struct{})

	high := func(arg interface{}) {
		k.Delay(3)
		woke <- k.Now()
	}

	low := func(arg interface{}) {
		k.CreateThread("high", 1, 4096, high, nil)
		// high just ran and blocked on Delay(3); two ticks must not be
		// enough to wake it.
		k.Tick()
		k.Tick()
		select {
		case <-woke:
			close(tooEarly)
		default:
		}
		k.Tick()
	}

	go k.Start("low", 2, 4096, low, nil)

	select {
	case now := <-woke:
		if now != 3 {
			t.Fatalf("woke at tick %d, want 3", now)
		}
	case <-tooEarly:
		t.Fatal("delayed thread woke before its timeout elapsed")
	case <-time.After(time.Second):
		t.Fatal("delayed thread never woke")
	}
}

// TestYieldRoundRobin checks that two equal-priority threads alternate
// on explicit Yield calls rather than either one starving the other.
func TestYieldRoundRobin(t *testing.T) {
	k, _ := newTestKernel()

	var order []string
	record := make(chan struct{})
	proceed := make(chan struct{})

	body := func(name string) func(interface{}) {
		return func(interface{}) {
			for i := 0; i < 2; i++ {
				order = append(order, name)
				record <- struct{}{}
				<-proceed
				k.Yield()
			}
		}
	}

	a := func(arg interface{}) {
		k.CreateThread("b", 2, 4096, body("b"), nil)
		body("a")(arg)
	}

	go k.Start("a", 2, 4096, a, nil)

	for i := 0; i < 4; i++ {
		select {
		case <-record:
		case <-time.After(time.Second):
			t.Fatalf("step %d: timed out", i)
		}
		proceed <- struct{}{}
	}

	if len(order) < 2 || order[0] == order[1] {
		t.Fatalf("expected alternation between threads, got %v", order)
	}
}
