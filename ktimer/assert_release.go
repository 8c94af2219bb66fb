// Copyright 2017 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// +build release

package ktimer

// assert is a no-op in release builds; see assert.go.
func assert(cond bool, format string, args ...interface{}) {}
