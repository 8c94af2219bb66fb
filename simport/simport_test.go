// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simport_test

import (
	"testing"
	"time"

	"v.io/x/rtkernel/kernel"
	"v.io/x/rtkernel/simport"
)

// TestStartKernelRunsFirstThread checks that StartKernel hands the
// baton to the first thread and that the call itself never returns to
// its caller, matching start_kernel's one-way hardware contract.
func TestStartKernelRunsFirstThread(t *testing.T) {
	port := simport.New()
	k := kernel.New(kernel.DefaultConfig(), port)

	ran := make(chan struct{})
	returned := make(chan struct{})

	go func() {
		k.Start("first", 5, 4096, func(interface{}) {
			close(ran)
		}, nil)
		close(returned)
	}()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the first thread to run")
	}

	select {
	case <-returned:
		t.Fatal("Start returned to its caller")
	case <-time.After(10 * time.Millisecond):
	}
}

// TestSpawnParksUntilScheduled checks that Spawn does not run entry
// until something actually yields the token to the new thread.
func TestSpawnParksUntilScheduled(t *testing.T) {
	port := simport.New()
	k := kernel.New(kernel.DefaultConfig(), port)

	var order []string
	done := make(chan struct{})

	main := func(arg interface{}) {
		order = append(order, "main")
		k.CreateThread("other", 5, 4096, func(interface{}) {
			order = append(order, "other")
			close(done)
		}, nil)
	}

	go k.Start("main", 5, 4096, main, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the created thread to run")
	}

	if len(order) != 2 || order[0] != "main" || order[1] != "other" {
		t.Fatalf("order = %v, want [main other]", order)
	}
}
