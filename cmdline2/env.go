// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmdline2

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Env represents the environment that a Runner runs in. It is threaded
// through the command tree explicitly, rather than read from ambient
// process state, so that Runners are easy to drive from tests.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Vars   map[string]string

	// Usage, if set, prints the usage of the command currently being run to
	// the given writer. It is set by Parse before a Runner is invoked.
	Usage func(io.Writer)
}

// NewEnv returns a new Env initialized from the underlying operating system:
// standard streams and the process environment.
func NewEnv() *Env {
	return &Env{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Vars:   envSliceToMap(os.Environ()),
	}
}

func envSliceToMap(vars []string) map[string]string {
	m := make(map[string]string, len(vars))
	for _, v := range vars {
		if i := strings.IndexByte(v, '='); i >= 0 {
			m[v[:i]] = v[i+1:]
		}
	}
	return m
}

// UsageErrorf formats an error, writes it to env.Stderr followed by the
// usage of the command currently being run, and returns ErrUsage.
func (env *Env) UsageErrorf(format string, args ...interface{}) error {
	return usageErrorf(env.Stderr, env.Usage, format, args...)
}

func usageErrorf(w io.Writer, usage func(io.Writer), format string, args ...interface{}) error {
	err := fmt.Errorf(format, args...)
	fmt.Fprintf(w, "ERROR: %v\n\n", err)
	if usage != nil {
		usage(w)
	}
	return ErrUsage
}

const defaultWidth = 80

// style controls the formatting of usage output.
type style int

const (
	styleCompact style = iota
	styleFull
	styleGoDoc
)

// String implements the flag.Value interface method.
func (s *style) String() string {
	switch *s {
	case styleCompact:
		return "compact"
	case styleFull:
		return "full"
	case styleGoDoc:
		return "godoc"
	}
	return "unknown"
}

// Set implements the flag.Value interface method.
func (s *style) Set(v string) error {
	switch v {
	case "compact":
		*s = styleCompact
	case "full":
		*s = styleFull
	case "godoc":
		*s = styleGoDoc
	default:
		return fmt.Errorf("unknown style %q, must be one of compact, full or godoc", v)
	}
	return nil
}

// style returns the default help style, taken from the CMDLINE_STYLE
// environment variable if set, or compact otherwise.
func (env *Env) style() style {
	var s style
	if v, ok := env.Vars["CMDLINE_STYLE"]; ok {
		if err := s.Set(v); err != nil {
			s = styleCompact
		}
	}
	return s
}

// width returns the default help width, taken from the CMDLINE_WIDTH
// environment variable if set, or a fixed default otherwise. A single CPU
// target has no controlling terminal to query, so unlike the desktop
// original there is no further fallback to a terminal size probe.
func (env *Env) width() int {
	if v, ok := env.Vars["CMDLINE_WIDTH"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultWidth
}

// globalFlags is the flag set whose flags are shown as "global flags" in
// help output. It tracks whichever flag set Parse most recently merged
// command-specific flags against.
var globalFlags = flag.CommandLine
