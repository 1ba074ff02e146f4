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

package cs

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/r600cs/r600cs/pkg/abi/radeon"
	"github.com/r600cs/r600cs/pkg/pm4"
)

// Evergreen register addresses, from drivers/gpu/drm/radeon/evergreend.h.
const (
	cbColor0Base        = 0x28c60
	paScScreenScissorTL = 0x28030
	sqConfig            = 0x8c00
	vgtPrimitiveType    = 0x8958
	cbColorControl      = 0x28808
)

func TestSetRegContext(t *testing.T) {
	var s Stream
	s.SetReg(0x28800, 0)
	want := []uint32{0xC0016900, 0x200, 0}
	if diff := cmp.Diff(want, s.Words()); diff != "" {
		t.Errorf("SetReg mismatch (-want +got):\n%s", diff)
	}
}

func TestSetRegRoutes(t *testing.T) {
	for _, tc := range []struct {
		reg  uint32
		want []uint32
	}{
		{sqConfig, []uint32{uint32(pm4.MakeHeader(pm4.SET_CONFIG_REG, 1)), (sqConfig - 0x8000) >> 2, 5}},
		{vgtPrimitiveType, []uint32{uint32(pm4.MakeHeader(pm4.SET_CONFIG_REG, 1)), (vgtPrimitiveType - 0x8000) >> 2, 5}},
		{cbColorControl, []uint32{uint32(pm4.MakeHeader(pm4.SET_CONTEXT_REG, 1)), (cbColorControl - 0x28000) >> 2, 5}},
		{0x31600, []uint32{uint32(pm4.MakeHeader(pm4.SET_RESOURCE, 1)), 0x580, 5}},
		{0x3c00c, []uint32{uint32(pm4.MakeHeader(pm4.SET_SAMPLER, 1)), 3, 5}},
		{0x3cff4, []uint32{uint32(pm4.MakeHeader(pm4.SET_CTL_CONST, 1)), 1, 5}},
		{0x3a200, []uint32{uint32(pm4.MakeHeader(pm4.SET_LOOP_CONST, 1)), 0, 5}},
		{0x3a500, []uint32{uint32(pm4.MakeHeader(pm4.SET_BOOL_CONST, 1)), 0, 5}},
		// Outside every window: one legacy word, no index word.
		{0x3c600, []uint32{1<<8 | 0x3c600>>2, 5}},
	} {
		var s Stream
		s.SetReg(tc.reg, 5)
		if diff := cmp.Diff(tc.want, s.Words()); diff != "" {
			t.Errorf("SetReg(%#x) mismatch (-want +got):\n%s", tc.reg, diff)
		}
	}
}

func TestSetRegNRoundTrip(t *testing.T) {
	for n := 0; n <= 64; n++ {
		var s Stream
		s.SetRegN(cbColor0Base, n)
		for i := 0; i < n; i++ {
			s.Emit(uint32(i) + 100)
		}
		pkts, err := pm4.Decode(s.Words())
		if err != nil {
			t.Fatalf("n=%d: Decode failed: %v", n, err)
		}
		if len(pkts) != 1 {
			t.Fatalf("n=%d: got %d packets, want 1", n, len(pkts))
		}
		p := pkts[0]
		if p.Header.Count() != n {
			t.Errorf("n=%d: count field = %d", n, p.Header.Count())
		}
		if len(p.Body) != n+1 {
			t.Errorf("n=%d: body has %d words, want %d", n, len(p.Body), n+1)
		}
		if p.Body[0] != (cbColor0Base-0x28000)>>2 {
			t.Errorf("n=%d: index = %#x", n, p.Body[0])
		}
	}
}

func TestBuilderDecodesBitIdentical(t *testing.T) {
	var s Stream
	s.SetRegs(paScScreenScissorTL, 0, 0x20002000)
	s.SetReg(sqConfig, 0xe400000c)
	s.Packet3(pm4.SURFACE_SYNC, 0x02000040, 0x100, 0, 10)
	s.EmitReloc(3, radeon.RADEON_GEM_DOMAIN_VRAM, radeon.RADEON_GEM_DOMAIN_VRAM, 0)
	s.Packet3(pm4.DRAW_INDEX_AUTO, 3, 2)
	s.Packet3(pm4.EVENT_WRITE, 0x16)

	want := []pm4.Packet{
		{Header: pm4.MakeHeader(pm4.SET_CONTEXT_REG, 2), Body: []uint32{0xc, 0, 0x20002000}},
		{Header: pm4.MakeHeader(pm4.SET_CONFIG_REG, 1), Body: []uint32{0x300, 0xe400000c}},
		{Header: pm4.MakeHeader(pm4.SURFACE_SYNC, 3), Body: []uint32{0x02000040, 0x100, 0, 10}},
		{Header: pm4.MakeHeader(pm4.NOP, 0), Body: []uint32{0}},
		{Header: pm4.MakeHeader(pm4.DRAW_INDEX_AUTO, 1), Body: []uint32{3, 2}},
		{Header: pm4.MakeHeader(pm4.EVENT_WRITE, 0), Body: []uint32{0x16}},
	}
	got, err := pm4.Decode(s.Words())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decoded packets mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(s.Words(), pm4.Encode(got)); diff != "" {
		t.Errorf("re-encoded words mismatch (-want +got):\n%s", diff)
	}
}

func TestEmitRelocOffsets(t *testing.T) {
	var s Stream
	s.EmitReloc(1, radeon.RADEON_GEM_DOMAIN_GTT, 0, 0)
	s.EmitReloc(2, radeon.RADEON_GEM_DOMAIN_VRAM, radeon.RADEON_GEM_DOMAIN_VRAM, 0)
	nop := uint32(pm4.MakeHeader(pm4.NOP, 0))
	if diff := cmp.Diff([]uint32{nop, 0, nop, 4}, s.Words()); diff != "" {
		t.Errorf("EmitReloc words mismatch (-want +got):\n%s", diff)
	}
	want := []radeon.Reloc{
		{Handle: 1, ReadDomains: radeon.RADEON_GEM_DOMAIN_GTT},
		{Handle: 2, ReadDomains: radeon.RADEON_GEM_DOMAIN_VRAM, WriteDomain: radeon.RADEON_GEM_DOMAIN_VRAM},
	}
	if diff := cmp.Diff(want, s.Relocs()); diff != "" {
		t.Errorf("relocs mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteRelocEmitsNothing(t *testing.T) {
	var s Stream
	s.WriteReloc(9, 2, 0, 0)
	if s.Len() != 0 {
		t.Errorf("WriteReloc emitted %d words", s.Len())
	}
	if len(s.Relocs()) != 1 {
		t.Errorf("got %d relocs, want 1", len(s.Relocs()))
	}
}

func TestLabels(t *testing.T) {
	s := NewStream()
	s.WriteLabel("first")
	s.WriteLabel("scissor")
	s.SetReg(paScScreenScissorTL, 0)
	s.WriteLabel("tail")
	if l, ok := s.Label(0); !ok || l != "scissor" {
		t.Errorf("Label(0) = %q, %t, want scissor", l, ok)
	}
	if _, ok := s.Label(1); ok {
		t.Errorf("Label(1) is set")
	}
	if l, ok := s.Label(3); !ok || l != "tail" {
		t.Errorf("Label(3) = %q, %t, want tail", l, ok)
	}
}

func TestDump(t *testing.T) {
	var s Stream
	s.WriteLabel("cb_color_control")
	s.SetReg(cbColorControl, 0xcc0000)
	s.Emit(0x00001000) // not a type-3 header
	var b strings.Builder
	if err := s.Dump(&b); err != nil {
		t.Fatalf("Dump failed: %v", err)
	}
	want := "00000: 0xc0016900  SET_CONTEXT_REG count=1  # cb_color_control\n" +
		"00001: 0x00000202\n" +
		"00002: 0x00cc0000\n" +
		"00003: 0x00001000\n"
	if diff := cmp.Diff(want, b.String()); diff != "" {
		t.Errorf("Dump mismatch (-want +got):\n%s", diff)
	}
}

func TestPacket3RejectsEmptyBody(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("Packet3 without body did not panic")
		}
	}()
	var s Stream
	s.Packet3(pm4.NOP)
}

func TestSetRegNRejectsBadCount(t *testing.T) {
	for _, n := range []int{-1, pm4.MaxBodyLen} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("SetRegN(%#x, %d) did not panic", cbColor0Base, n)
				}
			}()
			var s Stream
			s.SetRegN(cbColor0Base, n)
		}()
	}
}

func TestSetRegNLargestCount(t *testing.T) {
	var s Stream
	n := pm4.MaxBodyLen - 1
	s.SetRegN(0x28000, n)
	s.Write(make([]uint32, n)...)
	pkts, err := pm4.Decode(s.Words())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(pkts) != 1 || pkts[0].Header.Count() != n || len(pkts[0].Body) != pm4.MaxBodyLen {
		t.Errorf("got %d packets, first with count %d", len(pkts), pkts[0].Header.Count())
	}
}
