// Copyright 2017 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// +build !release

package ktimer

import "v.io/x/rtkernel/klog"

// assert reports a precondition violation, such as requesting the
// reserved idle priority for a timer's daemon. Debug builds fail
// loudly; release builds (tag: release) compile this out entirely.
func assert(cond bool, format string, args ...interface{}) {
	if !cond {
		klog.Fatalf(format, args...)
	}
}
