// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dlist implements the two flavors of intrusive, circular,
// doubly-linked list used throughout the kernel to track threads and
// other blocked-on-able objects without a separate allocation per list
// membership.
//
// An UnorderedList holds its items in insertion order. A PriorityList
// keeps its items sorted ascending by Value, with equal values kept in
// FIFO order among themselves; the scheduler's ready and timed-wait
// lists, and every blocking primitive's waiter list, are PriorityLists.
//
// Both list kinds are circular: the last item's next pointer is the
// first item, and the first item's prev pointer is the last. A list
// with one item points to itself in both directions. This means any
// item can be reached from any other by repeated iteration, so list
// code never needs a nil check while walking -- only a comparison
// against the starting point to detect a full traversal.
package dlist

// UnorderedItem is one element of an UnorderedList. Container is the
// address of the struct this item is embedded in; callers set it at
// Init time and use it to recover that struct from a list item found
// by iteration.
type UnorderedItem struct {
	prev, next *UnorderedItem
	list       *UnorderedList
	Container  interface{}
}

// UnorderedList is the head of a list of UnorderedItems. The zero
// value is an empty list.
type UnorderedList struct {
	first *UnorderedItem
}

// Init prepares item for insertion, associating it with container.
// Init must be called exactly once before an item is first inserted,
// and may be called again once the item has been removed.
func (item *UnorderedItem) Init(container interface{}) {
	item.prev = item
	item.next = item
	item.list = nil
	item.Container = container
}

// List returns the list item is currently a member of, or nil.
func (item *UnorderedItem) List() *UnorderedList {
	return item.list
}

// Empty reports whether the list has no items.
func (l *UnorderedList) Empty() bool {
	return l.first == nil
}

// First returns the list's first item, or nil if the list is empty.
func (l *UnorderedList) First() *UnorderedItem {
	return l.first
}

// Next returns the item following item within its list, wrapping to
// the first item. item must currently be in a list.
func (item *UnorderedItem) Next() *UnorderedItem {
	return item.next
}

// Prev returns the item preceding item within its list, wrapping to
// the last item. item must currently be in a list.
func (item *UnorderedItem) Prev() *UnorderedItem {
	return item.prev
}

// insertUnorderedBefore splices item into the ring immediately before position.
func insertUnorderedBefore(item, position *UnorderedItem) {
	item.prev = position.prev
	item.next = position
	position.prev.next = item
	position.prev = item
}

// Insert adds item to the end of l. item must have been Init'd and
// must not currently be in a list.
func (l *UnorderedList) Insert(item *UnorderedItem) {
	if l.first == nil {
		l.first = item
		item.prev = item
		item.next = item
	} else {
		insertUnorderedBefore(item, l.first)
	}
	item.list = l
}

// Remove takes item out of whatever list it is currently in. item
// must currently be in a list.
func (item *UnorderedItem) Remove() {
	l := item.list
	if item == l.first {
		l.first = l.first.next
		if item == l.first {
			l.first = nil
		}
	}
	item.prev.next = item.next
	item.next.prev = item.prev
	item.next = item
	item.prev = item
	item.list = nil
}

// FindContainer scans l for an item whose Container equals container
// and returns it, or nil if none is found.
func (l *UnorderedList) FindContainer(container interface{}) *UnorderedItem {
	if l.first == nil {
		return nil
	}
	i := l.first
	for {
		if i.Container == container {
			return i
		}
		i = i.next
		if i == l.first {
			return nil
		}
	}
}

// PriorityItem is one element of a PriorityList. Items are kept
// sorted ascending by Value; lower values sit closer to First. Equal
// values are kept in the order they were inserted.
type PriorityItem struct {
	prev, next *PriorityItem
	list       *PriorityList
	Container  interface{}
	Value      int64
}

// PriorityList is the head of a priority-ordered list of
// PriorityItems. The zero value is an empty list.
type PriorityList struct {
	first *PriorityItem
}

// Init prepares item for insertion with the given container and sort
// value. Init must be called before an item's first insertion and may
// be called again once it has been removed.
func (item *PriorityItem) Init(container interface{}, value int64) {
	item.prev = item
	item.next = item
	item.list = nil
	item.Container = container
	item.Value = value
}

// List returns the list item is currently a member of, or nil.
func (item *PriorityItem) List() *PriorityList {
	return item.list
}

// Empty reports whether the list has no items.
func (l *PriorityList) Empty() bool {
	return l.first == nil
}

// First returns the lowest-value item in the list, or nil if the list
// is empty.
func (l *PriorityList) First() *PriorityItem {
	return l.first
}

// Next returns the item following item within its list, wrapping to
// the first (lowest-value) item. item must currently be in a list.
func (item *PriorityItem) Next() *PriorityItem {
	return item.next
}

// Prev returns the item preceding item within its list, wrapping to
// the last (highest-value) item. item must currently be in a list.
func (item *PriorityItem) Prev() *PriorityItem {
	return item.prev
}

func insertPriorityBefore(item, position *PriorityItem) {
	item.prev = position.prev
	item.next = position
	position.prev.next = item
	position.prev = item
}

// Insert places item into l, keeping the list sorted ascending by
// Value with ties broken in insertion order. item must have been
// Init'd and must not currently be in a list.
func (l *PriorityList) Insert(item *PriorityItem) {
	switch {
	case l.first == nil:
		l.first = item
		item.prev = item
		item.next = item

	case item.Value >= l.first.prev.Value:
		// item sorts at or after the current last item.
		insertPriorityBefore(item, l.first)

	case item.Value < l.first.Value:
		// item sorts before the current first item.
		insertPriorityBefore(item, l.first)
		l.first = item

	default:
		i := l.first.next
		for item.Value >= i.Value {
			i = i.next
		}
		insertPriorityBefore(item, i)
	}
	item.list = l
}

// Remove takes item out of whatever list it is currently in. item
// must currently be in a list.
func (item *PriorityItem) Remove() {
	l := item.list
	if item == l.first {
		l.first = l.first.next
		if item == l.first {
			l.first = nil
		}
	}
	item.prev.next = item.next
	item.next.prev = item.prev
	item.next = item
	item.prev = item
	item.list = nil
}

// FindContainer scans l for an item whose Container equals container
// and returns it, or nil if none is found.
func (l *PriorityList) FindContainer(container interface{}) *PriorityItem {
	if l.first == nil {
		return nil
	}
	i := l.first
	for {
		if i.Container == container {
			return i
		}
		i = i.next
		if i == l.first {
			return nil
		}
	}
}
