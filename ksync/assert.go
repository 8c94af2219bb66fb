// Copyright 2017 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// +build !release

package ksync

import "v.io/x/rtkernel/klog"

// assert reports a precondition violation, such as running out of
// heap while allocating a control block. Debug builds fail loudly;
// release builds (tag: release) compile this out entirely.
func assert(cond bool, format string, args ...interface{}) {
	if !cond {
		klog.Fatalf(format, args...)
	}
}
