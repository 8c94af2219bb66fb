// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memheap implements a next-fit allocator over a single,
// fixed-size backing arena, in the style of the kernel's own dynamic
// memory manager: callers get back an opaque *Block rather than a raw
// pointer, free blocks are kept on an address-ordered list, and
// adjacent free blocks are coalesced the instant they touch.
//
// The arena is a plain []byte; a Block's Payload is always a
// sub-slice of that same backing array, so two blocks are physically
// adjacent exactly when one's payload ends where the other's begins
// -- the same address arithmetic the allocator this package is
// modeled on performs on raw pointers.
package memheap

import "v.io/x/rtkernel/dlist"

// Alignment is the allocator's alignment unit. All block sizes and
// the arena's total size are multiples of it.
const Alignment = 8

// headerSize is the bookkeeping overhead charged against every
// block, whether free or allocated. It is already Alignment-aligned.
const headerSize = 3 * Alignment

// RoundUp returns the smallest multiple of Alignment that is >= n.
func RoundUp(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + Alignment - 1) &^ (Alignment - 1)
}

// Block is a region of the heap, either free (on the heap's own
// address-ordered list) or allocated (on the UnorderedList of
// whichever owner holds it, via useItem). A Block's address never
// changes; its size changes only through Heap.split, Heap.merge and
// Heap.Reallocate.
type Block struct {
	heap *Heap

	freeItem dlist.PriorityItem   // membership in Heap.free, keyed by addr
	useItem  dlist.UnorderedItem  // membership in an owner's in-use MemoryList

	addr int // offset into heap.arena
	size int // total bytes reserved, including headerSize
}

// Payload returns the portion of the block available to the caller.
func (b *Block) Payload() []byte {
	return b.heap.arena[b.addr+headerSize : b.addr+b.size]
}

// Size returns the number of usable payload bytes in the block; it
// may exceed what was originally requested because of rounding.
func (b *Block) Size() int {
	return b.size - headerSize
}

// MemoryList is a list of Blocks currently allocated to one owner
// (kernel bookkeeping or a single thread's local allocations), used
// only for bulk reclamation when the owner goes away.
type MemoryList struct {
	items dlist.UnorderedList
}

// Insert records that b is now owned by l.
func (l *MemoryList) Insert(b *Block) {
	b.useItem.Init(b)
	l.items.Insert(&b.useItem)
}

// Remove takes b off of l. b must currently be a member of l.
func (l *MemoryList) Remove(b *Block) {
	b.useItem.Remove()
}

// ReclaimAll frees every block on l back to heap and empties l.
func ReclaimAll(heap *Heap, l *MemoryList) {
	for !l.items.Empty() {
		b := l.items.First().Container.(*Block)
		b.useItem.Remove()
		heap.returnToFreeList(b)
	}
}

// Heap is a fixed-size arena managed by a next-fit free-block search.
type Heap struct {
	arena   []byte
	free    dlist.PriorityList  // free blocks, ordered by addr
	current *dlist.PriorityItem // next-fit search cursor; nil iff free is empty
}

// New creates a heap backed by an arena of size bytes, rounded up to
// Alignment. The entire arena starts out as one free block.
func New(size int) *Heap {
	h := &Heap{arena: make([]byte, RoundUp(size))}
	b := &Block{heap: h, addr: 0, size: len(h.arena)}
	h.insertFree(b)
	return h
}

// Capacity returns the total arena size in bytes.
func (h *Heap) Capacity() int {
	return len(h.arena)
}

func (h *Heap) insertFree(b *Block) {
	wasEmpty := h.free.Empty()
	b.freeItem.Init(b, int64(b.addr))
	h.free.Insert(&b.freeItem)
	if wasEmpty {
		h.current = &b.freeItem
	}
}

func (h *Heap) removeFree(b *Block) {
	item := &b.freeItem
	switch {
	case item.Next() == item:
		h.current = nil
	case item == h.current:
		h.current = item.Next()
	}
	item.Remove()
}

// split shrinks b to size and returns a new free block covering the
// remainder. Requires b.size > size and both pieces to be
// header-sized or larger.
func (h *Heap) split(b *Block, size int) *Block {
	nb := &Block{heap: h, addr: b.addr + size, size: b.size - size}
	b.size = size
	return nb
}

// merge absorbs b's address-adjacent free neighbors into it,
// returning whichever block survives (b itself, or its predecessor if
// the predecessor absorbed b).
func (h *Heap) merge(b *Block) *Block {
	if next := b.freeItem.Next(); next != &b.freeItem {
		nb := next.Container.(*Block)
		if b.addr+b.size == nb.addr {
			if h.current == next {
				h.current = &b.freeItem
			}
			b.size += nb.size
			next.Remove()
		}
	}
	if prev := b.freeItem.Prev(); prev != &b.freeItem {
		pb := prev.Container.(*Block)
		if pb.addr+pb.size == b.addr {
			if h.current == &b.freeItem {
				h.current = prev
			}
			pb.size += b.size
			b.freeItem.Remove()
			return pb
		}
	}
	return b
}

func (h *Heap) returnToFreeList(b *Block) {
	h.insertFree(b)
	h.merge(b)
}

// findFreeAt returns the free block starting exactly at addr, or nil.
// The free list is address-ordered, so the scan can stop as soon as
// it passes addr.
func (h *Heap) findFreeAt(addr int) *Block {
	if h.free.Empty() {
		return nil
	}
	first := h.free.First()
	for i := first; ; i = i.Next() {
		if i.Value == int64(addr) {
			return i.Container.(*Block)
		}
		if i.Value > int64(addr) {
			return nil
		}
		if i.Next() == first {
			return nil
		}
	}
}

// Allocate reserves a block able to hold n payload bytes, using a
// next-fit search of the free list starting at the cursor left by the
// previous allocation. It returns nil if no block is large enough.
func (h *Heap) Allocate(n int) *Block {
	if h.free.Empty() {
		return nil
	}
	need := RoundUp(n) + headerSize
	start := h.current
	for item := start; ; item = item.Next() {
		b := item.Container.(*Block)
		if need <= b.size {
			remaining := b.size - need
			if remaining >= headerSize {
				nb := h.split(b, need)
				h.insertFree(nb)
				h.current = &nb.freeItem
			}
			h.removeFree(b)
			return b
		}
		if item.Next() == start {
			return nil
		}
	}
}

// Free returns b to the heap, coalescing it with any address-adjacent
// free neighbors. b must have come from Allocate on this heap and
// must not already be free.
func (h *Heap) Free(b *Block) {
	h.returnToFreeList(b)
}

// Reallocate resizes b to hold newSize payload bytes, preferring to
// extend or shrink b in place and falling back to allocate-copy-free
// only when no contiguous free space is available to extend into.
// A nil b behaves like Allocate; a newSize of zero behaves like Free
// and returns nil.
func (h *Heap) Reallocate(b *Block, newSize int) *Block {
	if b == nil {
		return h.Allocate(newSize)
	}
	if newSize == 0 {
		h.Free(b)
		return nil
	}

	target := RoundUp(newSize) + headerSize
	current := b.size

	switch {
	case target == current:
		return b

	case target > current:
		need := target - current
		if next := h.findFreeAt(b.addr + b.size); next != nil && next.size >= need {
			if next.size-need >= headerSize {
				nb := h.split(next, need)
				h.removeFree(next)
				h.insertFree(nb)
			} else {
				h.removeFree(next)
			}
			b.size = target
			return b
		}
		nb := h.Allocate(newSize)
		if nb == nil {
			return nil
		}
		copy(nb.Payload(), b.Payload())
		h.Free(b)
		return nb

	default: // target < current
		tail := current - target
		if tail >= headerSize {
			nb := h.split(b, target)
			h.returnToFreeList(nb)
		}
		return b
	}
}
