// Copyright 2017 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kqueue_test

import (
	"testing"
	"time"

	"v.io/x/rtkernel/kernel"
	"v.io/x/rtkernel/kqueue"
	"v.io/x/rtkernel/simport"
)

func newTestKernel() *kernel.Kernel {
	return kernel.New(kernel.DefaultConfig(), simport.New())
}

// TestSendReceiveNonBlock exercises the ring buffer's wrap-around
// without involving the scheduler at all.
func TestSendReceiveNonBlock(t *testing.T) {
	k := newTestKernel()
	q := kqueue.New(k, 4)
	done := make(chan struct{})

	body := func(interface{}) {
		if !q.SendNonBlock([]byte{1, 2, 3}) {
			t.Error("send of 3 into a 4-byte queue should fit")
		}
		if q.SendNonBlock([]byte{4, 5}) {
			t.Error("send of 2 more should not fit (1 byte free)")
		}
		out := make([]byte, 2)
		if !q.ReceiveNonBlock(out) {
			t.Error("receive of 2 buffered bytes should succeed")
		}
		if out[0] != 1 || out[1] != 2 {
			t.Errorf("got %v, want [1 2]", out)
		}
		if !q.SendNonBlock([]byte{6, 7}) {
			t.Error("send of 2 after freeing 2 bytes should now fit")
		}
		if q.UsedSize() != 3 {
			t.Errorf("used size = %d, want 3", q.UsedSize())
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

// TestSendAheadReceiveBehind exercises the priority/undo ends of the
// ring separately from the regular ends.
func TestSendAheadReceiveBehind(t *testing.T) {
	k := newTestKernel()
	q := kqueue.New(k, 8)
	done := make(chan struct{})

	body := func(interface{}) {
		q.SendNonBlock([]byte{1, 2, 3})
		q.SendAheadNonBlock([]byte{9})

		out := make([]byte, 1)
		q.ReceiveNonBlock(out)
		if out[0] != 9 {
			t.Errorf("regular receive after SendAhead got %d, want 9 (urgent byte should be read first)", out[0])
		}

		behind := make([]byte, 1)
		q.ReceiveBehindNonBlock(behind)
		if behind[0] != 3 {
			t.Errorf("receive-behind got %d, want 3 (most recently written)", behind[0])
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

// TestBlockingReceiveWakesOnSend checks that a blocked reader is woken
// and handed its bytes as soon as a writer supplies enough of them.
func TestBlockingReceiveWakesOnSend(t *testing.T) {
	k := newTestKernel()
	q := kqueue.New(k, 4)
	received := make(chan byte, 1)

	low := func(interface{}) {
		k.CreateThread("reader", 1, 4096, func(interface{}) {
			buf := make([]byte, 1)
			if !q.Receive(buf, 0) {
				t.Error("blocking receive should succeed once a byte arrives")
			}
			received <- buf[0]
		}, nil)
		q.SendNonBlock([]byte{42})
	}

	go k.Start("low", 2, 4096, low, nil)

	select {
	case b := <-received:
		if b != 42 {
			t.Errorf("got %d, want 42", b)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

// TestBlockingSendWakesOnReceive checks the opposite hand-off: a
// writer blocked on a full queue is woken once a reader frees room.
func TestBlockingSendWakesOnReceive(t *testing.T) {
	k := newTestKernel()
	q := kqueue.New(k, 1)
	sent := make(chan bool, 1)

	low := func(interface{}) {
		q.SendNonBlock([]byte{1})
		k.CreateThread("writer", 1, 4096, func(interface{}) {
			sent <- q.Send([]byte{2}, 0)
		}, nil)
		out := make([]byte, 1)
		q.ReceiveNonBlock(out)
	}

	go k.Start("low", 2, 4096, low, nil)

	select {
	case ok := <-sent:
		if !ok {
			t.Fatal("blocked writer should have succeeded once space freed")
		}
		if q.UsedSize() != 1 {
			t.Errorf("used size = %d, want 1", q.UsedSize())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

// TestDeleteWakesWaitersWithFailure checks that Delete releases a
// blocked receiver with a false result rather than leaving it parked
// forever.
func TestDeleteWakesWaitersWithFailure(t *testing.T) {
	k := newTestKernel()
	q := kqueue.New(k, 4)
	result := make(chan bool, 1)

	low := func(interface{}) {
		k.CreateThread("reader", 1, 4096, func(interface{}) {
			buf := make([]byte, 1)
			result <- q.Receive(buf, 0)
		}, nil)
		q.Delete()
	}

	go k.Start("low", 2, 4096, low, nil)

	select {
	case ok := <-result:
		if ok {
			t.Fatal("receive should report failure after Delete")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}
