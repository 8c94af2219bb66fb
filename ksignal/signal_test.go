// Copyright 2017 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ksignal_test

import (
	"testing"
	"time"

	"v.io/x/rtkernel/kernel"
	"v.io/x/rtkernel/ksignal"
	"v.io/x/rtkernel/simport"
)

func newTestKernel() *kernel.Kernel {
	return kernel.New(kernel.DefaultConfig(), simport.New())
}

// TestSendWakesOnlyMatchingValue checks that Send wakes every waiter
// blocked on the matching value and leaves waiters on other values
// parked.
func TestSendWakesOnlyMatchingValue(t *testing.T) {
	k := newTestKernel()
	sig := ksignal.New(k)
	const wanted ksignal.Value = 7
	const other ksignal.Value = 8

	matched := make(chan interface{}, 2)
	unmatched := make(chan bool, 1)

	low := func(interface{}) {
		k.CreateThread("waiter-a", 1, 4096, func(interface{}) {
			info, ok := sig.Wait(wanted, 0)
			if !ok {
				t.Error("waiter-a expected a successful wait")
			}
			matched <- info
		}, nil)
		k.CreateThread("waiter-b", 1, 4096, func(interface{}) {
			info, ok := sig.Wait(wanted, 0)
			if !ok {
				t.Error("waiter-b expected a successful wait")
			}
			matched <- info
		}, nil)
		k.CreateThread("waiter-other", 1, 4096, func(interface{}) {
			_, ok := sig.Wait(other, 0)
			unmatched <- ok
		}, nil)
		sig.Send(wanted, "payload")
	}

	go k.Start("low", 2, 4096, low, nil)

	seen := 0
	timeout := time.After(time.Second)
	for seen < 2 {
		select {
		case info := <-matched:
			if info != "payload" {
				t.Errorf("got info %v, want %q", info, "payload")
			}
			seen++
		case <-timeout:
			t.Fatal("timed out waiting for matched waiters")
		}
	}
	select {
	case <-unmatched:
		t.Fatal("waiter on a different value woke before a matching Send")
	case <-time.After(10 * time.Millisecond):
	}
}

// TestDeleteWakesWaiterWithFailure checks that Delete releases a
// blocked waiter with ok == false.
func TestDeleteWakesWaiterWithFailure(t *testing.T) {
	k := newTestKernel()
	sig := ksignal.New(k)
	result := make(chan bool, 1)

	low := func(interface{}) {
		k.CreateThread("waiter", 1, 4096, func(interface{}) {
			_, ok := sig.Wait(1, 0)
			result <- ok
		}, nil)
		sig.Delete()
	}

	go k.Start("low", 2, 4096, low, nil)

	select {
	case ok := <-result:
		if ok {
			t.Fatal("wait should report failure after Delete")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}
