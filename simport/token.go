// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simport

// A token is a binary semaphore: it has values 0 and 1. Each
// goroutine standing in for a kernel.Thread owns exactly one token;
// holding it (value 1) is the goroutine's permission to run kernel
// and application code. Port.Yield passes the token from one
// goroutine to another, which is simport's entire context switch.
type token struct {
	ch chan struct{}
}

// init brings the token to its initial value of 0: not runnable.
func (s *token) init() {
	s.ch = make(chan struct{}, 1)
}

// wait blocks until the token is 1, then resets it to 0.
func (s *token) wait() {
	<-s.ch
}

// signal ensures the token's value is 1, waking whoever is waiting on
// it. Signalling a token that is already 1 is a no-op, matching a
// true binary (not counting) semaphore.
func (s *token) signal() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}
