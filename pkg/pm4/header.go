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

// Package pm4 implements the PM4 packet format consumed by the command
// processor of R600-class Radeon GPUs: type-3 packet headers, the opcode
// space, the register aperture table used to route register writes, and a
// decoder that splits a raw word stream back into packets.
//
// A type-3 header is laid out as:
//
//	[31:30] packet type, always 3
//	[29:16] count: number of body words minus one
//	[15:8]  opcode
//	[0]     predicate
//
// All other bits are zero.
package pm4

import "fmt"

// Packet types, from the [31:30] field of a header.
const (
	Type0 = 0
	Type2 = 2
	Type3 = 3
)

const (
	typeShift  = 30
	countShift = 16
	countMask  = 0x3FFF
	opShift    = 8
	opMask     = 0xFF
	predicate  = 1

	// MaxBodyLen is the largest body a single header can declare.
	MaxBodyLen = countMask + 1
)

// Header is the first word of a packet.
type Header uint32

// MakeHeader returns a type-3 header for op whose count field is count,
// i.e. a header followed by count+1 body words.
func MakeHeader(op Opcode, count int) Header {
	return Header(Type3<<typeShift | (uint32(count)&countMask)<<countShift | uint32(op)<<opShift)
}

// HeaderFor returns the header for a packet carrying bodyLen words. bodyLen
// must be between 1 and MaxBodyLen.
func HeaderFor(op Opcode, bodyLen int) Header {
	if bodyLen < 1 || bodyLen > MaxBodyLen {
		panic(fmt.Sprintf("invalid type-3 body length %d", bodyLen))
	}
	return MakeHeader(op, bodyLen-1)
}

// Type returns the packet type.
func (h Header) Type() uint32 {
	return uint32(h) >> typeShift
}

// Op returns the opcode. Only meaningful for type-3 headers.
func (h Header) Op() Opcode {
	return Opcode((uint32(h) >> opShift) & opMask)
}

// Count returns the raw count field, one less than the body length.
func (h Header) Count() int {
	return int((uint32(h) >> countShift) & countMask)
}

// BodyLen returns the number of words following the header.
func (h Header) BodyLen() int {
	return h.Count() + 1
}

// Predicate returns true if the predicate bit is set.
func (h Header) Predicate() bool {
	return uint32(h)&predicate != 0
}

// WithPredicate returns h with the predicate bit set.
func (h Header) WithPredicate() Header {
	return h | predicate
}

// String implements fmt.Stringer.String.
func (h Header) String() string {
	if h.Type() != Type3 {
		return fmt.Sprintf("type%d(0x%08x)", h.Type(), uint32(h))
	}
	s := fmt.Sprintf("%v count=%d", h.Op(), h.Count())
	if h.Predicate() {
		s += " pred"
	}
	return s
}
