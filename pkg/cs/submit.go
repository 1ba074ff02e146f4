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
	"fmt"
	"io"
	"strings"

	"github.com/r600cs/r600cs/pkg/abi/radeon"
	"github.com/r600cs/r600cs/pkg/log"
)

// ErrSubmit wraps every failure reported by a Submitter.
var ErrSubmit = errors.New("command submission failed")

// Chunk is one section of a submission.
type Chunk struct {
	ID   radeon.ChunkID
	Data []uint32
}

// LengthDW returns the chunk length in 32-bit words.
func (c Chunk) LengthDW() uint32 {
	return uint32(len(c.Data))
}

// String implements fmt.Stringer.String.
func (c Chunk) String() string {
	return fmt.Sprintf("%v[%d]", c.ID, c.LengthDW())
}

// Limits are the memory limits reported by the kernel after a submission.
type Limits struct {
	GARTLimit uint64
	VRAMLimit uint64
}

// Submitter is the kernel submission entry point. SubmitCS receives the
// chunks in submission order and must not retain or modify them.
type Submitter interface {
	SubmitCS(chunks []Chunk) (Limits, error)
}

// Submission is an assembled, immutable command submission.
type Submission struct {
	chunks [3]Chunk
	labels map[int]string
}

// Assemble seals s and packages it as a submission. s must not be modified
// afterwards.
//
// The chunks are, in order: the indirect buffer, the relocation list (four
// words per relocation) and the flags record (two reserved zero words).
func Assemble(s *Stream) *Submission {
	s.checkOpen()
	s.sealed = true

	relocs := make([]uint32, 0, radeon.RelocDW*len(s.relocs))
	for _, r := range s.relocs {
		relocs = r.AppendWords(relocs)
	}
	sub := &Submission{
		chunks: [3]Chunk{
			{ID: radeon.RADEON_CHUNK_ID_IB, Data: s.words},
			{ID: radeon.RADEON_CHUNK_ID_RELOCS, Data: relocs},
			{ID: radeon.RADEON_CHUNK_ID_FLAGS, Data: make([]uint32, radeon.FlagsDW)},
		},
		labels: s.labels,
	}
	log.Debugf("Assembled submission: %v", sub)
	return sub
}

// Chunks returns the chunks in submission order. The returned slice is a copy;
// the chunk data is shared and must not be modified.
func (sub *Submission) Chunks() []Chunk {
	return append([]Chunk(nil), sub.chunks[:]...)
}

// IB returns the indirect buffer chunk.
func (sub *Submission) IB() Chunk {
	return sub.chunks[0]
}

// Relocs returns the relocation chunk.
func (sub *Submission) Relocs() Chunk {
	return sub.chunks[1]
}

// Flags returns the flags chunk.
func (sub *Submission) Flags() Chunk {
	return sub.chunks[2]
}

// String implements fmt.Stringer.String.
func (sub *Submission) String() string {
	parts := make([]string, len(sub.chunks))
	for i, c := range sub.chunks {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

// Dump prints every word of the indirect buffer with its label.
func (sub *Submission) Dump(w io.Writer) error {
	return DumpWords(w, sub.chunks[0].Data, sub.labels)
}

// Submit hands the chunks to s exactly once. Failures are wrapped in
// ErrSubmit and are not retried.
func (sub *Submission) Submit(s Submitter) (Limits, error) {
	if log.IsLogging(log.Debug) {
		var b strings.Builder
		sub.Dump(&b)
		log.Debugf("Submitting %v:\n%s", sub, b.String())
	}
	limits, err := s.SubmitCS(sub.Chunks())
	if err != nil {
		return Limits{}, fmt.Errorf("%w: %w", ErrSubmit, err)
	}
	log.Debugf("Submission complete: gart_limit=%#x vram_limit=%#x", limits.GARTLimit, limits.VRAMLimit)
	return limits, nil
}
