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

// Package cmd holds implementations of the r600cs commands.
package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"github.com/r600cs/r600cs/pkg/capture"
	"github.com/r600cs/r600cs/pkg/pm4"
	"github.com/r600cs/r600cs/r600cs/cmd/util"
)

// Decode implements subcommands.Command for the "decode" command.
type Decode struct {
	summary bool
}

// Name implements subcommands.Command.
func (*Decode) Name() string {
	return "decode"
}

// Synopsis implements subcommands.Command.
func (*Decode) Synopsis() string {
	return "splits a captured indirect buffer into PM4 packets"
}

// Usage implements subcommands.Command.
func (*Decode) Usage() string {
	return `decode [flags] <capture> - prints one line per packet.

Exits with an error at the first header that is not a complete type-3 packet.
`
}

// SetFlags implements subcommands.Command.
func (d *Decode) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&d.summary, "summary", false, "print packet counts per opcode instead of every packet.")
}

// Execute implements subcommands.Command.Execute.
func (d *Decode) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	c, err := capture.Load(f.Arg(0))
	if err != nil {
		return util.Errorf("error loading capture: %v", err)
	}
	if d.summary {
		err = printSummary(os.Stdout, c.Words)
	} else {
		err = printPackets(os.Stdout, c)
	}
	if err != nil {
		return util.Errorf("error decoding %q: %v", f.Arg(0), err)
	}
	return subcommands.ExitSuccess
}

// printPackets prints every packet of c. Packets that are printed before a
// decoding error stay in the output.
func printPackets(w io.Writer, c capture.Capture) error {
	d := pm4.NewDecoder(c.Words)
	for {
		off := d.Offset()
		p, err := d.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		line := fmt.Sprintf("%05d: %v", off, p.Header)
		if reg, ok := p.Register(); ok {
			line += fmt.Sprintf(" reg=%#05x", reg)
		}
		line += fmt.Sprintf(" %#x", p.Body)
		if l, ok := c.Labels[off]; ok {
			line += "  # " + l
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
}

// printSummary prints how many packets use each opcode, in opcode order.
func printSummary(w io.Writer, words []uint32) error {
	var counts [256]int
	total := 0
	for p, err := range pm4.All(words) {
		if err != nil {
			return err
		}
		counts[p.Header.Op()]++
		total++
	}
	for op, n := range counts {
		if n > 0 {
			fmt.Fprintf(w, "%-24v %d\n", pm4.Opcode(op), n)
		}
	}
	_, err := fmt.Fprintf(w, "%-24s %d\n", "total", total)
	return err
}

// countPackets returns the number of packets before the first decoding error.
func countPackets(words []uint32) int {
	pkts, _ := pm4.Decode(words)
	return len(pkts)
}
