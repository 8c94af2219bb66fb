// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// +build !release

package kernel

import "v.io/x/rtkernel/klog"

// assert reports a precondition violation: invalid handle, unlocking
// a mutex the caller doesn't own, freeing an unknown pointer, blocking
// from a context that must not block. These are programmer errors,
// not runtime conditions, so debug builds fail loudly and release
// builds (tag: release) compile them out entirely.
func assert(cond bool, format string, args ...interface{}) {
	if !cond {
		klog.Fatalf(format, args...)
	}
}
