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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/r600cs/r600cs/pkg/abi/radeon"
	"golang.org/x/sys/unix"
)

// fakeSubmitter records what it is given.
type fakeSubmitter struct {
	calls  int
	chunks []Chunk
	limits Limits
	err    error
}

func (f *fakeSubmitter) SubmitCS(chunks []Chunk) (Limits, error) {
	f.calls++
	f.chunks = chunks
	return f.limits, f.err
}

func TestAssembleChunkOrder(t *testing.T) {
	var s Stream
	s.SetReg(0x28800, 0)
	s.EmitReloc(5, radeon.RADEON_GEM_DOMAIN_GTT, 0, 0)
	s.EmitReloc(6, radeon.RADEON_GEM_DOMAIN_VRAM, radeon.RADEON_GEM_DOMAIN_VRAM, 1)
	sub := Assemble(&s)

	chunks := sub.Chunks()
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	wantIDs := []radeon.ChunkID{radeon.RADEON_CHUNK_ID_IB, radeon.RADEON_CHUNK_ID_RELOCS, radeon.RADEON_CHUNK_ID_FLAGS}
	for i, c := range chunks {
		if c.ID != wantIDs[i] {
			t.Errorf("chunk %d is %v, want %v", i, c.ID, wantIDs[i])
		}
	}
	if diff := cmp.Diff(s.Words(), chunks[0].Data); diff != "" {
		t.Errorf("IB chunk mismatch (-want +got):\n%s", diff)
	}
	if got := sub.Relocs().LengthDW(); got != 8 {
		t.Errorf("relocation chunk length = %d, want 8", got)
	}
	wantRelocs := []uint32{5, 2, 0, 0, 6, 4, 4, 1}
	if diff := cmp.Diff(wantRelocs, sub.Relocs().Data); diff != "" {
		t.Errorf("relocation chunk mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint32{0, 0}, sub.Flags().Data); diff != "" {
		t.Errorf("flags chunk mismatch (-want +got):\n%s", diff)
	}
	if got := sub.String(); got != "ib[5] relocs[8] flags[2]" {
		t.Errorf("String() = %q", got)
	}
}

func TestAssembleEmptyRelocs(t *testing.T) {
	var s Stream
	s.SetReg(0x8c00, 1)
	sub := Assemble(&s)
	if got := sub.Relocs().LengthDW(); got != 0 {
		t.Errorf("relocation chunk length = %d, want 0", got)
	}
}

func TestAssembleSeals(t *testing.T) {
	var s Stream
	s.SetReg(0x28800, 0)
	Assemble(&s)
	if !s.Sealed() {
		t.Fatalf("stream not sealed after Assemble")
	}
	for name, f := range map[string]func(){
		"Emit":       func() { s.Emit(0) },
		"Write":      func() { s.Write(0, 1) },
		"WriteLabel": func() { s.WriteLabel("x") },
		"WriteReloc": func() { s.WriteReloc(1, 2, 0, 0) },
		"SetReg":     func() { s.SetReg(0x28800, 0) },
		"Assemble":   func() { Assemble(&s) },
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("%s on a sealed stream did not panic", name)
				}
			}()
			f()
		}()
	}
}

func TestSubmit(t *testing.T) {
	var s Stream
	s.SetReg(0x28800, 0)
	s.EmitReloc(5, radeon.RADEON_GEM_DOMAIN_GTT, 0, 0)
	sub := Assemble(&s)

	f := &fakeSubmitter{limits: Limits{GARTLimit: 1 << 20, VRAMLimit: 1 << 28}}
	limits, err := sub.Submit(f)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if f.calls != 1 {
		t.Errorf("SubmitCS called %d times, want 1", f.calls)
	}
	if limits != f.limits {
		t.Errorf("Submit returned %+v, want %+v", limits, f.limits)
	}
	if diff := cmp.Diff(sub.Chunks(), f.chunks); diff != "" {
		t.Errorf("submitted chunks mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitError(t *testing.T) {
	var s Stream
	s.SetReg(0x28800, 0)
	sub := Assemble(&s)

	f := &fakeSubmitter{err: unix.EINVAL}
	_, err := sub.Submit(f)
	if !errors.Is(err, ErrSubmit) || !errors.Is(err, unix.EINVAL) {
		t.Errorf("Submit error = %v, want ErrSubmit wrapping EINVAL", err)
	}
	if f.calls != 1 {
		t.Errorf("SubmitCS called %d times, want 1 (no retries)", f.calls)
	}
}
