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
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/subcommands"
	"github.com/r600cs/r600cs/pkg/cs"
	"github.com/r600cs/r600cs/pkg/pm4"
	"github.com/r600cs/r600cs/r600cs/cmd/util"
)

// Regs implements subcommands.Command for the "regs" command.
type Regs struct{}

// Name implements subcommands.Command.
func (*Regs) Name() string {
	return "regs"
}

// Synopsis implements subcommands.Command.
func (*Regs) Synopsis() string {
	return "shows the register windows and how addresses are written"
}

// Usage implements subcommands.Command.
func (*Regs) Usage() string {
	return `regs [<address>...] - without arguments, prints the register windows.

For each address, prints the window it falls in and the words a single
register write produces.
`
}

// SetFlags implements subcommands.Command.
func (*Regs) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Regs) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		printWindows(os.Stdout)
		return subcommands.ExitSuccess
	}
	for _, arg := range f.Args() {
		reg, err := strconv.ParseUint(arg, 0, 32)
		if err != nil {
			return util.Errorf("invalid register address %q: %v", arg, err)
		}
		printRoute(os.Stdout, uint32(reg))
	}
	return subcommands.ExitSuccess
}

func printWindows(w io.Writer) {
	for _, win := range pm4.Windows() {
		fmt.Fprintf(w, "%-10s %#05x %#05x %v\n", win.Name, win.Start, win.End, win.Op)
	}
}

func printRoute(w io.Writer, reg uint32) {
	var s cs.Stream
	s.SetReg(reg, 0)
	if win, ok := pm4.Route(reg); ok {
		fmt.Fprintf(w, "%#05x: %s index %#x, writes %s\n", reg, win.Name, win.Index(reg), hexWords(s.Words()))
		return
	}
	fmt.Fprintf(w, "%#05x: no window, legacy write %s\n", reg, hexWords(s.Words()))
}

func hexWords(words []uint32) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = fmt.Sprintf("0x%08x", w)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
