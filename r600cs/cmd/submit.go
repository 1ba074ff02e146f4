// Copyright 2024 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/r600cs/r600cs/pkg/capture"
	"github.com/r600cs/r600cs/pkg/cs"
	"github.com/r600cs/r600cs/pkg/drm"
	"github.com/r600cs/r600cs/r600cs/cmd/util"
	"github.com/r600cs/r600cs/r600cs/config"
)

// Submit implements subcommands.Command for the "submit" command.
type Submit struct {
	dryRun bool
}

// Name implements subcommands.Command.
func (*Submit) Name() string {
	return "submit"
}

// Synopsis implements subcommands.Command.
func (*Submit) Synopsis() string {
	return "submits a captured indirect buffer to the radeon kernel driver"
}

// Usage implements subcommands.Command.
func (*Submit) Usage() string {
	return `submit [flags] <capture> - submits the capture as the indirect buffer of
one command submission on the device given by the global -device flag.

Relocations stored with the capture are submitted in their recorded order.
`
}

// SetFlags implements subcommands.Command.
func (s *Submit) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&s.dryRun, "dry-run", false, "assemble the submission and print its chunks without submitting.")
}

// Execute implements subcommands.Command.Execute.
func (s *Submit) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	c, err := capture.Load(f.Arg(0))
	if err != nil {
		return util.Errorf("error loading capture: %v", err)
	}
	sub := cs.Assemble(c.Stream())
	if s.dryRun {
		fmt.Println(sub)
		return subcommands.ExitSuccess
	}

	dev, err := drm.Open(conf.Device)
	if err != nil {
		return util.Errorf("error opening device: %v", err)
	}
	defer dev.Close()
	limits, err := sub.Submit(dev)
	if err != nil {
		return util.Errorf("error submitting %q: %v", f.Arg(0), err)
	}
	fmt.Fprintf(os.Stdout, "submitted %v: gart_limit=%#x vram_limit=%#x\n", sub, limits.GARTLimit, limits.VRAMLimit)
	return subcommands.ExitSuccess
}
