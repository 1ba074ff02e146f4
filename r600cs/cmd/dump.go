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
	"os"

	"github.com/google/subcommands"
	"github.com/r600cs/r600cs/pkg/capture"
	"github.com/r600cs/r600cs/pkg/cs"
	"github.com/r600cs/r600cs/r600cs/cmd/util"
)

// Dump implements subcommands.Command for the "dump" command.
type Dump struct {
	output string
}

// Name implements subcommands.Command.
func (*Dump) Name() string {
	return "dump"
}

// Synopsis implements subcommands.Command.
func (*Dump) Synopsis() string {
	return "prints every word of a capture, or converts between capture formats"
}

// Usage implements subcommands.Command.
func (*Dump) Usage() string {
	return `dump [flags] <capture> - prints one line per word with labels and packet headers.

With -output, the capture is instead written to the given file, in the format
selected by its extension (.txt and .hex are text, anything else binary).
`
}

// SetFlags implements subcommands.Command.
func (d *Dump) SetFlags(f *flag.FlagSet) {
	f.StringVar(&d.output, "output", "", "write the capture to this file instead of printing it.")
}

// Execute implements subcommands.Command.Execute.
func (d *Dump) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	c, err := capture.Load(f.Arg(0))
	if err != nil {
		return util.Errorf("error loading capture: %v", err)
	}
	if d.output != "" {
		if err := capture.Save(d.output, c); err != nil {
			return util.Errorf("error saving capture: %v", err)
		}
		return subcommands.ExitSuccess
	}
	if err := cs.DumpWords(os.Stdout, c.Words, c.Labels); err != nil {
		return util.Errorf("error printing capture: %v", err)
	}
	return subcommands.ExitSuccess
}
