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
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/google/subcommands"
	"github.com/r600cs/r600cs/pkg/capture"
	"github.com/r600cs/r600cs/pkg/log"
	"github.com/r600cs/r600cs/pkg/minimize"
	"github.com/r600cs/r600cs/r600cs/cmd/util"
	"github.com/r600cs/r600cs/r600cs/config"
	"golang.org/x/sys/unix"
)

// Minimize implements subcommands.Command for the "minimize" command.
type Minimize struct {
	configFile  string
	oracle      string
	timeout     time.Duration
	parallelism int
	keep        string
	captureExt  string
	tempDir     string
}

// Name implements subcommands.Command.
func (*Minimize) Name() string {
	return "minimize"
}

// Synopsis implements subcommands.Command.
func (*Minimize) Synopsis() string {
	return "removes packets from a capture while an oracle command still succeeds"
}

// Usage implements subcommands.Command.
func (*Minimize) Usage() string {
	return `minimize [flags] <input capture> <output capture>

The oracle command is run on each trial with the trial capture path in place
of a "{}" argument, or appended if there is none. Exit status 0 means the
trial still reproduces. Settings come from -config (TOML or YAML), and flags
override it.
`
}

// SetFlags implements subcommands.Command.
func (m *Minimize) SetFlags(f *flag.FlagSet) {
	f.StringVar(&m.configFile, "config", "", "minimizer configuration file (.toml, .yaml or .yml).")
	f.StringVar(&m.oracle, "oracle", "", "oracle command line, split on spaces.")
	f.DurationVar(&m.timeout, "timeout", 0, "time limit for each oracle run, 0 for none.")
	f.IntVar(&m.parallelism, "j", 0, "maximum concurrent oracle runs, 0 for one per CPU.")
	f.StringVar(&m.keep, "keep", "", "comma-separated packet indices that are never removed.")
	f.StringVar(&m.captureExt, "capture-ext", "", "extension of trial captures, which selects their format.")
	f.StringVar(&m.tempDir, "temp-dir", "", "directory for trial captures.")
}

// settings merges the configuration file with the flags that were set.
func (m *Minimize) settings(f *flag.FlagSet) (*config.Minimize, error) {
	conf := &config.Minimize{}
	if m.configFile != "" {
		var err error
		if conf, err = config.LoadMinimize(m.configFile); err != nil {
			return nil, err
		}
	}
	var err error
	f.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "oracle":
			conf.Oracle = strings.Fields(m.oracle)
		case "timeout":
			conf.Timeout = m.timeout
		case "j":
			conf.Parallelism = m.parallelism
		case "keep":
			conf.Keep, err = parseIndices(m.keep)
		case "capture-ext":
			conf.CaptureExt = m.captureExt
		case "temp-dir":
			conf.TempDir = m.tempDir
		}
	})
	if err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func parseIndices(s string) ([]int, error) {
	var out []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		i, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid packet index %q: %w", field, err)
		}
		out = append(out, i)
	}
	return out, nil
}

// Execute implements subcommands.Command.Execute.
func (m *Minimize) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf, err := m.settings(f)
	if err != nil {
		return util.Errorf("error in minimizer settings: %v", err)
	}
	in, err := capture.Load(f.Arg(0))
	if err != nil {
		return util.Errorf("error loading capture: %v", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, unix.SIGTERM)
	defer stop()

	oracle := &minimize.CommandOracle{
		Argv:    conf.Oracle,
		Dir:     conf.TempDir,
		Ext:     conf.CaptureExt,
		Timeout: conf.Timeout,
		Relocs:  in.Relocs,
	}
	log.Infof("Minimizing %q (%d words) with oracle %q", f.Arg(0), len(in.Words), conf.Oracle)
	res, err := minimize.Minimize(ctx, in.Words, oracle, minimize.Options{
		Parallelism: conf.Parallelism,
		Keep:        conf.Keep,
	})
	if err != nil {
		return util.Errorf("error minimizing %q: %v", f.Arg(0), err)
	}
	if err := capture.Save(f.Arg(1), capture.Capture{Words: res.Words, Relocs: in.Relocs}); err != nil {
		return util.Errorf("error saving capture: %v", err)
	}
	fmt.Printf("%d words (%d packets) -> %d words (%d packets) in %d trials\n", len(in.Words), countPackets(in.Words), len(res.Words), res.Packets, res.Trials)
	return subcommands.ExitSuccess
}
