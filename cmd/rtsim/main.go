// Copyright 2017 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command rtsim drives the real-time kernel through the same named
// end-to-end scenarios exercised by its test suite, for interactive or
// scripted inspection outside of "go test".
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	"v.io/x/rtkernel/cmdline2"
	"v.io/x/rtkernel/internal/flagvar"
	"v.io/x/rtkernel/kernel"
	"v.io/x/rtkernel/klog"
)

// cfg holds the kernel tunables used to build the kernel a scenario runs
// against; registered as flags on the root command so they can be set
// from the command line.
var cfg = kernel.DefaultConfig()

func main() {
	root := &cmdline2.Command{
		Name:  "rtsim",
		Short: "Drive the kernel through its named end-to-end scenarios",
		Long: `
Command rtsim drives the real-time kernel through the same named
end-to-end scenarios exercised by its test suite, for interactive or
scripted inspection.
`,
		Children: []*cmdline2.Command{cmdRun, cmdList, cmdTrace, cmdConfig},
	}
	if err := flagvar.RegisterStruct(&root.Flags, &cfg); err != nil {
		fmt.Fprintln(os.Stderr, "rtsim:", err)
		os.Exit(1)
	}
	cmdline2.Main(root)
}

var cmdRun = &cmdline2.Command{
	Name:     "run",
	Short:    "Run a named scenario once and print its outcome",
	ArgsName: "<scenario>",
	ArgsLong: `
<scenario> is one of the names printed by "rtsim list-scenarios".
`,
	Runner: cmdline2.RunnerFunc(runRunner),
}

func runRunner(env *cmdline2.Env, args []string) error {
	if len(args) != 1 {
		return env.UsageErrorf("run takes exactly one scenario name")
	}
	s := scenarioByName(args[0])
	if s == nil {
		return env.UsageErrorf("unknown scenario %q", args[0])
	}
	fmt.Fprintf(env.Stdout, "running %s: %s\n", s.Name, s.Short)
	if err := s.Run(env.Stdout, cfg); err != nil {
		return err
	}
	fmt.Fprintln(env.Stdout, "ok")
	return nil
}

var cmdList = &cmdline2.Command{
	Name:   "list-scenarios",
	Short:  "List the available named scenarios",
	Runner: cmdline2.RunnerFunc(listRunner),
}

func listRunner(env *cmdline2.Env, args []string) error {
	names := make([]string, len(scenarios))
	width := 0
	for i, s := range scenarios {
		names[i] = s.Name
		if len(s.Name) > width {
			width = len(s.Name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		s := scenarioByName(name)
		fmt.Fprintf(env.Stdout, "%-*s %s\n", width, s.Name, s.Short)
	}
	return nil
}

var cmdTrace = &cmdline2.Command{
	Name:     "trace",
	Short:    "Run a scenario with kernel-internal tracing turned on",
	ArgsName: "<scenario>",
	Runner:   cmdline2.RunnerFunc(traceRunner),
}

func traceRunner(env *cmdline2.Env, args []string) error {
	klog.SetVerbosity(2)
	defer klog.SetVerbosity(0)
	return runRunner(env, args)
}

var cmdConfig = &cmdline2.Command{
	Name:  "config",
	Short: "Parse kernel tunables from key=value args and print them",
	Long: `
Config registers kernel.Config's struct-tagged fields onto a
pflag.FlagSet and parses them from a list of key=value arguments,
independent of the rtsim command tree's own flags, demonstrating the
GNU-style flag path cmd/rtsim's supporting packages exist to serve.
`,
	ArgsName: "[key=value ...]",
	ArgsLong: `
[key=value ...] sets kernel.Config fields by their flag name, e.g.
heap-size=131072.
`,
	Runner: cmdline2.RunnerFunc(configRunner),
}

func configRunner(env *cmdline2.Env, args []string) error {
	pfs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	c := kernel.DefaultConfig()
	if err := flagvar.RegisterStructPflag(pfs, &c); err != nil {
		return err
	}
	converted := make([]string, len(args))
	for i, a := range args {
		if !strings.HasPrefix(a, "-") {
			a = "--" + a
		}
		converted[i] = a
	}
	if err := pfs.Parse(converted); err != nil {
		return env.UsageErrorf("%v", err)
	}
	fmt.Fprintf(env.Stdout, "heap-size=%d idle-stack-size=%d default-stack-size=%d\n",
		c.HeapSize, c.IdleStackSize, c.DefaultStackSize)
	return nil
}
