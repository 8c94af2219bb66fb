// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package klog is the kernel's internal tracing log: thread
// create/delete, block/wake events and timer dispatch are all logged
// through it at a verbosity level
// that is silent by default, so the calls can stay compiled into
// release builds without costing anything at the default verbosity.
//
// It is a much smaller cousin of vlog: same severity levels and V-gated
// verbosity built on the same glog-style backend, without vlog's
// configurable destinations and rotation -- the kernel only ever logs
// to one place.
package klog

import (
	"fmt"

	"github.com/cosmosnicolaou/llog"
)

const stackSkip = 1

var backend = llog.NewLogger("rtkernel", stackSkip)

// SetVerbosity sets the global V-gate threshold. Calls to V(n) for
// n <= level report true; V(n) for n > level reports false.
func SetVerbosity(level int) {
	backend.SetV(llog.Level(level))
}

// V reports whether verbosity level is currently enabled, for
// call-sites that want to skip building an expensive argument list
// when tracing is off:
//
//	if klog.V(2) {
//	        klog.Infof("heap state: %+v", heap.Snapshot())
//	}
func V(level int) bool {
	return backend.V(llog.Level(level))
}

// Info logs a tracing line at the default verbosity.
func Info(args ...interface{}) {
	backend.Print(llog.InfoLog, args...)
}

// Infof logs a tracing line at the default verbosity.
func Infof(format string, args ...interface{}) {
	backend.Printf(llog.InfoLog, format, args...)
}

// Warning logs a condition worth noticing but not fatal.
func Warning(args ...interface{}) {
	backend.Print(llog.WarningLog, args...)
}

// Warningf logs a condition worth noticing but not fatal.
func Warningf(format string, args ...interface{}) {
	backend.Printf(llog.WarningLog, format, args...)
}

// Error logs a recovered error condition.
func Error(args ...interface{}) {
	backend.Print(llog.ErrorLog, args...)
}

// Errorf logs a recovered error condition.
func Errorf(format string, args ...interface{}) {
	backend.Printf(llog.ErrorLog, format, args...)
}

// Fatal logs a precondition violation and then panics. Unlike vlog's
// Fatal (which calls os.Exit), the kernel panics so that a test
// harness driving the scheduler can recover and report the violated
// invariant rather than terminating the whole test binary.
func Fatal(args ...interface{}) {
	backend.Print(llog.FatalLog, args...)
	panic(fmt.Sprint(args...))
}

// Fatalf logs a precondition violation and then panics.
func Fatalf(format string, args ...interface{}) {
	backend.Printf(llog.FatalLog, format, args...)
	panic(fmt.Sprintf(format, args...))
}
