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
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/r600cs/r600cs/pkg/abi/radeon"
	"github.com/r600cs/r600cs/pkg/capture"
	"github.com/r600cs/r600cs/pkg/cs"
	"github.com/r600cs/r600cs/pkg/pm4"
)

// testStream returns a stream of n register writes. Packet i writes value i.
func testStream(n int) []uint32 {
	var s cs.Stream
	for i := 0; i < n; i++ {
		s.SetReg(0x28000+4*uint32(i), uint32(i))
	}
	return s.Words()
}

// values returns the value written by each packet of words.
func values(t *testing.T, words []uint32) []uint32 {
	t.Helper()
	pkts, err := pm4.Decode(words)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	var vs []uint32
	for _, p := range pkts {
		vs = append(vs, p.Body[1])
	}
	return vs
}

// needs returns an oracle that is interesting when every value in want is
// written.
func needs(want ...uint32) OracleFunc {
	return func(_ context.Context, words []uint32) (bool, error) {
		pkts, err := pm4.Decode(words)
		if err != nil {
			return false, err
		}
		found := 0
		for _, p := range pkts {
			if slices.Contains(want, p.Body[1]) {
				found++
			}
		}
		return found == len(want), nil
	}
}

func TestMinimize(t *testing.T) {
	for _, tc := range []struct {
		name string
		n    int
		need []uint32
		opts Options
		want []uint32
	}{
		{name: "single", n: 16, need: []uint32{11}, want: []uint32{11}},
		{name: "pair", n: 20, need: []uint32{3, 17}, want: []uint32{3, 17}},
		{name: "adjacent", n: 9, need: []uint32{4, 5}, want: []uint32{4, 5}},
		{name: "nothing needed", n: 8, want: nil},
		{name: "keep", n: 12, need: []uint32{7}, opts: Options{Keep: []int{0, 10}}, want: []uint32{0, 7, 10}},
		{name: "serial", n: 13, need: []uint32{1, 12}, opts: Options{Parallelism: 1}, want: []uint32{1, 12}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Minimize(context.Background(), testStream(tc.n), needs(tc.need...), tc.opts)
			if err != nil {
				t.Fatalf("Minimize failed: %v", err)
			}
			if diff := cmp.Diff(tc.want, values(t, res.Words)); diff != "" {
				t.Errorf("minimized values mismatch (-want +got):\n%s", diff)
			}
			if res.Packets != len(tc.want) {
				t.Errorf("Packets = %d, want %d", res.Packets, len(tc.want))
			}
			if res.Trials < 1 {
				t.Errorf("Trials = %d", res.Trials)
			}
		})
	}
}

func TestMinimizeNotInteresting(t *testing.T) {
	never := OracleFunc(func(context.Context, []uint32) (bool, error) { return false, nil })
	if _, err := Minimize(context.Background(), testStream(4), never, Options{}); !errors.Is(err, ErrNotInteresting) {
		t.Errorf("Minimize error = %v, want ErrNotInteresting", err)
	}
}

func TestMinimizeOracleError(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32
	o := OracleFunc(func(context.Context, []uint32) (bool, error) {
		if calls.Add(1) > 1 {
			return false, boom
		}
		return true, nil
	})
	if _, err := Minimize(context.Background(), testStream(8), o, Options{}); !errors.Is(err, boom) {
		t.Errorf("Minimize error = %v, want %v", err, boom)
	}
}

func TestMinimizeRejectsBadInput(t *testing.T) {
	words := append(testStream(2), 0x00001000)
	if _, err := Minimize(context.Background(), words, needs(), Options{}); !errors.Is(err, pm4.ErrUnsupportedType) {
		t.Errorf("Minimize error = %v, want ErrUnsupportedType", err)
	}
	if _, err := Minimize(context.Background(), testStream(2), needs(), Options{Keep: []int{2}}); err == nil {
		t.Errorf("Minimize accepted an out of range Keep index")
	}
}

func TestMinimizeTrialsDecode(t *testing.T) {
	o := OracleFunc(func(_ context.Context, words []uint32) (bool, error) {
		if _, err := pm4.Decode(words); err != nil {
			t.Errorf("oracle got a malformed trial: %v", err)
		}
		return true, nil
	})
	var s cs.Stream
	s.SetRegs(0x28000, 1, 2, 3)
	s.Packet3(pm4.SURFACE_SYNC, 0x02000040, 0x100, 0, 10)
	s.EmitReloc(1, 2, 0, 0)
	s.Packet3(pm4.EVENT_WRITE, 0x16)
	if _, err := Minimize(context.Background(), s.Words(), o, Options{}); err != nil {
		t.Errorf("Minimize failed: %v", err)
	}
}

func TestMinimizeKeepsRelocWithPacket(t *testing.T) {
	const cbColor0Base, cbTargetMask = 0x28c60, 0x28238
	var s cs.Stream
	s.SetReg(cbColor0Base, 0)
	s.EmitReloc(1, 0, 4, 0)
	s.SetReg(cbTargetMask, 15)
	s.EmitReloc(1, 0, 4, 0)
	s.Packet3(pm4.DRAW_INDEX_AUTO, 3, 2)

	baseIndex := uint32(cbColor0Base-0x28000) >> 2
	o := OracleFunc(func(_ context.Context, words []uint32) (bool, error) {
		pkts, err := pm4.Decode(words)
		if err != nil {
			return false, err
		}
		found := false
		for i, p := range pkts {
			if p.Header.Op() != pm4.SET_CONTEXT_REG {
				continue
			}
			if i+1 == len(pkts) || pkts[i+1].Header.Op() != pm4.NOP {
				t.Errorf("trial keeps %v without its relocation", p)
			}
			if p.Body[0] == baseIndex {
				found = true
			}
		}
		return found, nil
	})

	for _, tc := range []struct {
		name string
		keep []int
		want []pm4.Packet
	}{
		{
			name: "no keep",
			want: []pm4.Packet{
				{Header: pm4.MakeHeader(pm4.SET_CONTEXT_REG, 1), Body: []uint32{baseIndex, 0}},
				{Header: pm4.MakeHeader(pm4.NOP, 0), Body: []uint32{0}},
			},
		},
		{
			// Keeping a relocation NOP keeps the packet it belongs to.
			name: "keep nop",
			keep: []int{3},
			want: []pm4.Packet{
				{Header: pm4.MakeHeader(pm4.SET_CONTEXT_REG, 1), Body: []uint32{baseIndex, 0}},
				{Header: pm4.MakeHeader(pm4.NOP, 0), Body: []uint32{0}},
				{Header: pm4.MakeHeader(pm4.SET_CONTEXT_REG, 1), Body: []uint32{(cbTargetMask - 0x28000) >> 2, 15}},
				{Header: pm4.MakeHeader(pm4.NOP, 0), Body: []uint32{4}},
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Minimize(context.Background(), s.Words(), o, Options{Keep: tc.keep})
			if err != nil {
				t.Fatalf("Minimize failed: %v", err)
			}
			got, err := pm4.Decode(res.Words)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("minimized packets mismatch (-want +got):\n%s", diff)
			}
			if res.Packets != len(tc.want) {
				t.Errorf("Packets = %d, want %d", res.Packets, len(tc.want))
			}
		})
	}
}

func TestUnits(t *testing.T) {
	nop := pm4.Packet{Header: pm4.MakeHeader(pm4.NOP, 0), Body: []uint32{0}}
	reg := pm4.Packet{Header: pm4.MakeHeader(pm4.SET_CONTEXT_REG, 1), Body: []uint32{0, 0}}
	pkts := []pm4.Packet{nop, nop, reg, nop, nop, reg, reg, nop}
	want := [][]int{{0, 1}, {2, 3, 4}, {5}, {6, 7}}
	if diff := cmp.Diff(want, units(pkts)); diff != "" {
		t.Errorf("units mismatch (-want +got):\n%s", diff)
	}
}

func TestSplit(t *testing.T) {
	got := split([]int{0, 1, 2, 3, 4}, 3)
	want := [][]int{{0}, {1, 2}, {3, 4}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("split mismatch (-want +got):\n%s", diff)
	}
}

func TestCommandOracle(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("no shell: %v", err)
	}
	dir := t.TempDir()
	words := testStream(2)

	for _, tc := range []struct {
		name    string
		oracle  CommandOracle
		want    bool
		wantErr bool
	}{
		{
			name:   "exit zero",
			oracle: CommandOracle{Argv: []string{sh, "-c", "test -s \"$0\"", CapturePlaceholder}},
			want:   true,
		},
		{
			name:   "exit nonzero",
			oracle: CommandOracle{Argv: []string{sh, "-c", "exit 3"}},
			want:   false,
		},
		{
			name:   "text capture",
			oracle: CommandOracle{Argv: []string{sh, "-c", "grep -q 0xc0016900 \"$0\"", CapturePlaceholder}, Ext: ".txt"},
			want:   true,
		},
		{
			name:   "timeout",
			oracle: CommandOracle{Argv: []string{sh, "-c", "sleep 10"}, Timeout: 50 * time.Millisecond},
			want:   false,
		},
		{
			name:    "missing command",
			oracle:  CommandOracle{Argv: []string{filepath.Join(dir, "missing")}},
			wantErr: true,
		},
		{
			name:    "empty command",
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tc.oracle.Dir = dir
			got, err := tc.oracle.Interesting(context.Background(), words)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Interesting error = %v, wantErr %t", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("Interesting = %t, want %t", got, tc.want)
			}
		})
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("%d trial captures left behind", len(entries))
	}
}

func TestCommandOracleWritesRelocs(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "relocs.bin")
	relocs := []radeon.Reloc{{Handle: 2, WriteDomain: radeon.RADEON_GEM_DOMAIN_VRAM}}
	o := &CommandOracle{Argv: []string{"sh", "-c", "cp \"$0.relocs\" \"$1\"", CapturePlaceholder, out}, Dir: dir, Relocs: relocs}
	if _, err := o.Interesting(context.Background(), testStream(1)); err != nil {
		t.Fatalf("Interesting failed: %v", err)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()
	got, err := capture.ReadRelocs(f)
	if err != nil {
		t.Fatalf("ReadRelocs failed: %v", err)
	}
	if diff := cmp.Diff(relocs, got); diff != "" {
		t.Errorf("trial relocations mismatch (-want +got):\n%s", diff)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("got %d files in the trial directory, want only %q", len(entries), out)
	}
}

func TestCommandOracleWritesCapture(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "copy.bin")
	o := &CommandOracle{Argv: []string{"cp", CapturePlaceholder, out}, Dir: dir}
	words := testStream(3)
	if _, err := o.Interesting(context.Background(), words); err != nil {
		t.Fatalf("Interesting failed: %v", err)
	}
	c, err := capture.Load(out)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(words, c.Words); diff != "" {
		t.Errorf("trial capture mismatch (-want +got):\n%s", diff)
	}
}
