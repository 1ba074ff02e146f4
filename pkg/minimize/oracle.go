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

package minimize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/r600cs/r600cs/pkg/abi/radeon"
	"github.com/r600cs/r600cs/pkg/capture"
	"github.com/r600cs/r600cs/pkg/log"
)

// CapturePlaceholder is replaced by the trial capture's path in
// CommandOracle.Argv.
const CapturePlaceholder = "{}"

// CommandOracle runs an external command on each trial. The trial is written
// to a temporary capture file; exit status 0 means interesting. A command
// that times out is not interesting.
type CommandOracle struct {
	// Argv is the command line. Each argument equal to CapturePlaceholder is
	// replaced by the capture path. If there is none, the path is appended.
	Argv []string

	// Dir holds the temporary captures. Empty means os.TempDir.
	Dir string

	// Ext is the capture file extension, which selects its format. Empty
	// means ".bin".
	Ext string

	// Timeout bounds each trial. Zero means no limit.
	Timeout time.Duration

	// Relocs is the relocation table saved with every trial. Trials only
	// drop packets, so the relocation offsets they keep stay valid.
	Relocs []radeon.Reloc
}

// Interesting implements Oracle.Interesting.
func (o *CommandOracle) Interesting(ctx context.Context, words []uint32) (bool, error) {
	if len(o.Argv) == 0 {
		return false, errors.New("empty oracle command")
	}
	path, err := o.writeTrial(words)
	if err != nil {
		return false, err
	}
	defer o.removeTrial(path)

	tctx := ctx
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}
	argv := o.args(path)
	cmd := exec.CommandContext(tctx, argv[0], argv[1:]...)
	// Children of a killed command may hold the output pipe open.
	cmd.WaitDelay = time.Second
	out, err := cmd.CombinedOutput()
	if err == nil {
		log.Debugf("Oracle %q: interesting (%d words)", path, len(words))
		return true, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if tctx.Err() != nil {
		log.Debugf("Oracle %q: timed out after %v", path, o.Timeout)
		return false, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		log.Debugf("Oracle %q: exit status %d, output: %s", path, exitErr.ExitCode(), out)
		return false, nil
	}
	return false, fmt.Errorf("running %q: %w", argv, err)
}

func (o *CommandOracle) writeTrial(words []uint32) (string, error) {
	ext := o.Ext
	if ext == "" {
		ext = ".bin"
	}
	f, err := os.CreateTemp(o.Dir, "trial-*"+ext)
	if err != nil {
		return "", err
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	if err := capture.Save(path, capture.Capture{Words: words, Relocs: o.Relocs}); err != nil {
		o.removeTrial(path)
		return "", err
	}
	return path, nil
}

func (o *CommandOracle) removeTrial(path string) {
	os.Remove(path)
	if !capture.IsText(path) {
		os.Remove(capture.RelocsPath(path))
	}
}

func (o *CommandOracle) args(path string) []string {
	argv := make([]string, 0, len(o.Argv)+1)
	replaced := false
	for _, a := range o.Argv {
		if a == CapturePlaceholder {
			a = path
			replaced = true
		}
		argv = append(argv, a)
	}
	if !replaced {
		argv = append(argv, path)
	}
	return argv
}
