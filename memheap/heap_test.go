// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memheap

import (
	"bytes"
	"testing"
)

func TestRoundUp(t *testing.T) {
	cases := []struct{ n, want int }{
		{0, 0}, {1, 8}, {7, 8}, {8, 8}, {9, 16}, {64, 64}, {65, 72},
	}
	for _, c := range cases {
		if got := RoundUp(c.n); got != c.want {
			t.Errorf("RoundUp(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}

func TestAllocateFreeRoundTrip(t *testing.T) {
	h := New(4096)
	before := h.free.First().Value

	b := h.Allocate(64)
	if b == nil {
		t.Fatal("Allocate failed")
	}
	if got := b.Size(); got < 64 {
		t.Fatalf("Size() = %d, want >= 64", got)
	}
	h.Free(b)

	if h.free.Empty() {
		t.Fatal("heap should have one free block after round trip")
	}
	if h.free.First().Next() != h.free.First() {
		t.Fatal("expected exactly one free block after coalescing round trip")
	}
	if h.free.First().Value != before {
		t.Fatal("free block should have re-coalesced back to the original extent")
	}
}

func TestAllocateExhaustion(t *testing.T) {
	h := New(256)
	if b := h.Allocate(1024); b != nil {
		t.Fatal("expected allocation larger than the heap to fail")
	}
}

func TestWriteReadPayload(t *testing.T) {
	h := New(1024)
	b := h.Allocate(16)
	if b == nil {
		t.Fatal("Allocate failed")
	}
	want := []byte("0123456789abcdef")
	copy(b.Payload(), want)
	if !bytes.Equal(b.Payload()[:len(want)], want) {
		t.Fatal("payload did not retain written bytes")
	}
}

func TestCoalescingScenario(t *testing.T) {
	// Mirrors the three-consecutive-allocations coalescing scenario:
	// allocate A, B, C; free A, then C, then B; end with one free block.
	h := New(4096)

	a := h.Allocate(64)
	b := h.Allocate(64)
	c := h.Allocate(64)
	if a == nil || b == nil || c == nil {
		t.Fatal("allocations failed")
	}

	freeBlocksBefore := countFree(h)

	h.Free(a)
	h.Free(c)
	h.Free(b)

	if got := countFree(h); got != freeBlocksBefore {
		t.Fatalf("expected coalescing to merge back down to %d free blocks, got %d", freeBlocksBefore, got)
	}
}

func TestReallocateGrowInPlace(t *testing.T) {
	h := New(4096)
	a := h.Allocate(32)
	// Allocate and free a spacer right after a; it merges back into
	// the free space that begins exactly where a ends, so a can be
	// extended in place.
	spacer := h.Allocate(32)
	h.Free(spacer)

	grown := h.Reallocate(a, 48)
	if grown == nil {
		t.Fatal("Reallocate failed")
	}
	if grown != a {
		t.Fatal("expected a to be extended in place")
	}
	if grown.Size() < 48 {
		t.Fatalf("Size() = %d, want >= 48", grown.Size())
	}
}

func TestReallocateShrink(t *testing.T) {
	h := New(4096)
	a := h.Allocate(256)
	copy(a.Payload(), []byte("hello"))

	shrunk := h.Reallocate(a, 8)
	if shrunk == nil {
		t.Fatal("Reallocate failed")
	}
	if shrunk.Size() >= 256 {
		t.Fatalf("expected shrink to reduce size, got %d", shrunk.Size())
	}
	if !bytes.Equal(shrunk.Payload()[:5], []byte("hello")) {
		t.Fatal("shrink should preserve leading bytes")
	}
}

func TestReallocateToZeroFrees(t *testing.T) {
	h := New(1024)
	a := h.Allocate(16)
	before := countFree(h)

	if got := h.Reallocate(a, 0); got != nil {
		t.Fatal("Reallocate(.., 0) should return nil")
	}
	if got := countFree(h); got != before {
		t.Fatalf("expected the freed block to merge in, got %d free blocks", got)
	}
}

func countFree(h *Heap) int {
	if h.free.Empty() {
		return 0
	}
	n := 1
	first := h.free.First()
	for i := first.Next(); i != first; i = i.Next() {
		n++
	}
	return n
}
