// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flagvar

import (
	"flag"

	"github.com/spf13/pflag"
)

// RegisterStructPflag is RegisterStruct bridged onto a pflag.FlagSet,
// so cmd/rtsim's POSIX/GNU-style --long-flag command line can carry
// kernel.Config tunables without duplicating their registration.
func RegisterStructPflag(pfs *pflag.FlagSet, structWithFlags interface{}) error {
	gofs := flag.NewFlagSet("", flag.ContinueOnError)
	if err := RegisterStruct(gofs, structWithFlags); err != nil {
		return err
	}
	pfs.AddGoFlagSet(gofs)
	return nil
}
