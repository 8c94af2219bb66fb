// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dlist

import "testing"

func TestUnorderedInsertRemove(t *testing.T) {
	var l UnorderedList
	if !l.Empty() {
		t.Fatal("new list should be empty")
	}

	var a, b, c UnorderedItem
	a.Init("a")
	b.Init("b")
	c.Init("c")

	l.Insert(&a)
	l.Insert(&b)
	l.Insert(&c)

	if l.Empty() {
		t.Fatal("list should not be empty")
	}

	var got []string
	i := l.First()
	for n := 0; n < 3; n++ {
		got = append(got, i.Container.(string))
		i = i.Next()
	}
	want := []string{"a", "b", "c"}
	for n := range want {
		if got[n] != want[n] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	if i != l.First() {
		t.Fatal("list did not wrap back to first")
	}

	b.Remove()
	if b.List() != nil {
		t.Fatal("removed item should have nil List()")
	}
	if l.FindContainer("b") != nil {
		t.Fatal("b should no longer be found")
	}
	if found := l.FindContainer("c"); found != &c {
		t.Fatal("c should still be found")
	}

	a.Remove()
	c.Remove()
	if !l.Empty() {
		t.Fatal("list should be empty after removing all items")
	}
}

func TestPriorityInsertOrder(t *testing.T) {
	var l PriorityList

	items := []struct {
		item  PriorityItem
		value int64
		name  string
	}{
		{value: 5, name: "five"},
		{value: 1, name: "one"},
		{value: 3, name: "three-a"},
		{value: 3, name: "three-b"},
		{value: 0, name: "zero"},
	}
	for n := range items {
		items[n].item.Init(items[n].name, items[n].value)
		l.Insert(&items[n].item)
	}

	want := []string{"zero", "one", "three-a", "three-b", "five"}
	i := l.First()
	for n, w := range want {
		if i.Container.(string) != w {
			t.Fatalf("position %d = %v, want %v", n, i.Container, w)
		}
		i = i.Next()
	}
	if i != l.First() {
		t.Fatal("priority list did not wrap around")
	}

	// Walking backwards from First should reach the highest value last.
	if l.First().Prev().Container.(string) != "five" {
		t.Fatal("Prev() of First() should be the highest-value item")
	}
}

func TestPriorityRemoveFirstRebinds(t *testing.T) {
	var l PriorityList
	var a, b PriorityItem
	a.Init("a", 1)
	b.Init("b", 2)
	l.Insert(&a)
	l.Insert(&b)

	a.Remove()
	if l.First() != &b {
		t.Fatal("removing the head item should leave the next item as First()")
	}
	b.Remove()
	if !l.Empty() {
		t.Fatal("list should be empty")
	}
}

func TestPriorityFindContainer(t *testing.T) {
	var l PriorityList
	var a, b PriorityItem
	a.Init(42, 1)
	b.Init(43, 2)
	l.Insert(&a)
	l.Insert(&b)

	if l.FindContainer(43) != &b {
		t.Fatal("expected to find container 43")
	}
	if l.FindContainer(99) != nil {
		t.Fatal("expected not to find missing container")
	}
}
