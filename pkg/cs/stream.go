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

// Package cs builds radeon command submissions: an indirect buffer of PM4
// words, the relocations it refers to, and the chunk payload handed to the
// kernel.
package cs

import (
	"fmt"
	"io"

	"github.com/r600cs/r600cs/pkg/abi/radeon"
	"github.com/r600cs/r600cs/pkg/pm4"
)

// Stream accumulates one indirect buffer. It is append-only and owned by a
// single builder. Once passed to Assemble it is sealed, and further
// mutation panics.
//
// The zero value is an empty stream ready for use.
type Stream struct {
	words  []uint32
	labels map[int]string
	relocs []radeon.Reloc
	sealed bool
}

// NewStream returns an empty stream.
func NewStream() *Stream {
	return &Stream{}
}

func (s *Stream) checkOpen() {
	if s.sealed {
		panic("cs: stream modified after submission")
	}
}

// Len returns the number of words in the stream, which is also the position
// of the next word.
func (s *Stream) Len() int {
	return len(s.words)
}

// Words returns a copy of the stream's words.
func (s *Stream) Words() []uint32 {
	return append([]uint32(nil), s.words...)
}

// Label returns the label attached to word i, if any.
func (s *Stream) Label(i int) (string, bool) {
	l, ok := s.labels[i]
	return l, ok
}

// Relocs returns a copy of the stream's relocations, in emission order.
func (s *Stream) Relocs() []radeon.Reloc {
	return append([]radeon.Reloc(nil), s.relocs...)
}

// Sealed returns true once the stream has been assembled for submission.
func (s *Stream) Sealed() bool {
	return s.sealed
}

// Emit appends one word.
func (s *Stream) Emit(w uint32) {
	s.checkOpen()
	s.words = append(s.words, w)
}

// Write appends words in order.
func (s *Stream) Write(ws ...uint32) {
	s.checkOpen()
	s.words = append(s.words, ws...)
}

// WriteLabel attaches text to the next word to be written. A later label at
// the same position replaces it.
func (s *Stream) WriteLabel(text string) {
	s.checkOpen()
	if s.labels == nil {
		s.labels = make(map[int]string)
	}
	s.labels[len(s.words)] = text
}

// WriteReloc records a relocation. It emits no words: the caller is
// responsible for the address-bearing words the relocation patches. See
// EmitReloc for the usual placeholder.
func (s *Stream) WriteReloc(handle, readDomains, writeDomain, flags uint32) {
	s.checkOpen()
	s.relocs = append(s.relocs, radeon.Reloc{
		Handle:      handle,
		ReadDomains: readDomains,
		WriteDomain: writeDomain,
		Flags:       flags,
	})
}

// EmitReloc emits a NOP packet whose body is the dword offset of a new
// relocation in the relocation chunk, and records that relocation. The kernel
// resolves the address-bearing packet preceding the NOP through it.
func (s *Stream) EmitReloc(handle, readDomains, writeDomain, flags uint32) {
	s.Emit(uint32(pm4.MakeHeader(pm4.NOP, 0)))
	s.Emit(uint32(len(s.relocs) * radeon.RelocDW))
	s.WriteReloc(handle, readDomains, writeDomain, flags)
}

// SetReg writes value to the register at byte address reg.
func (s *Stream) SetReg(reg, value uint32) {
	s.SetRegN(reg, 1)
	s.Emit(value)
}

// SetRegN writes the header for n consecutive registers starting at reg. The
// caller must follow with exactly n calls to Emit (or one Write of n words).
//
// Registers in a known window get a type-3 SET_* packet with count n: the
// index word plus n values. Registers outside every window get the single
// legacy word from pm4.LegacyWrite and no index word.
//
// n must be between 0 and pm4.MaxBodyLen-1.
func (s *Stream) SetRegN(reg uint32, n int) {
	if n < 0 || n > pm4.MaxBodyLen-1 {
		panic(fmt.Sprintf("cs: invalid register count %d", n))
	}
	w, ok := pm4.Route(reg)
	if !ok {
		s.Emit(pm4.LegacyWrite(reg, n))
		return
	}
	s.Emit(uint32(pm4.MakeHeader(w.Op, n)))
	s.Emit(w.Index(reg))
}

// SetRegs writes values to consecutive registers starting at reg.
func (s *Stream) SetRegs(reg uint32, values ...uint32) {
	s.SetRegN(reg, len(values))
	s.Write(values...)
}

// Packet3 emits a complete type-3 packet. body must not be empty.
func (s *Stream) Packet3(op pm4.Opcode, body ...uint32) {
	s.Emit(uint32(pm4.HeaderFor(op, len(body))))
	s.Write(body...)
}

// Dump prints every word of the stream, one per line, with its label and,
// where a type-3 header starts, the decoded header.
func (s *Stream) Dump(w io.Writer) error {
	return DumpWords(w, s.words, s.labels)
}

// DumpWords prints words in the format of Stream.Dump. labels maps word
// offsets to text and may be nil.
func DumpWords(w io.Writer, words []uint32, labels map[int]string) error {
	next := 0 // offset of the next expected header
	for i, word := range words {
		var note string
		if i == next {
			h := pm4.Header(word)
			if h.Type() == pm4.Type3 {
				note = h.String()
				next = i + 1 + h.BodyLen()
			} else {
				// Not a packet we understand; treat the next word as a
				// potential header.
				next = i + 1
			}
		}
		line := fmt.Sprintf("%05d: 0x%08x", i, word)
		if note != "" {
			line += "  " + note
		}
		if l, ok := labels[i]; ok {
			line += "  # " + l
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
