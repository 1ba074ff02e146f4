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

package pm4

import "fmt"

// Window is a register aperture addressed through a single SET_* opcode.
// Registers within it are addressed by their dword offset from Start.
type Window struct {
	Name  string
	Start uint32 // inclusive
	End   uint32 // exclusive
	Op    Opcode
}

// Contains returns true if reg lies in [w.Start, w.End).
func (w Window) Contains(reg uint32) bool {
	return w.Start <= reg && reg < w.End
}

// Index returns the index word for reg. reg must be in w.
func (w Window) Index(reg uint32) uint32 {
	return (reg - w.Start) >> 2
}

// Address returns the byte address of the register at index. It is the
// inverse of Index.
func (w Window) Address(index uint32) uint32 {
	return w.Start + index<<2
}

// String implements fmt.Stringer.String.
func (w Window) String() string {
	return fmt.Sprintf("%s [%#05x, %#05x) %v", w.Name, w.Start, w.End, w.Op)
}

// Register apertures of the Evergreen command processor, in routing order.
// loop_const and bool_const share one contiguous range split at 0x3a500.
var windows = [...]Window{
	{Name: "config", Start: 0x08000, End: 0x0ac00, Op: SET_CONFIG_REG},
	{Name: "context", Start: 0x28000, End: 0x29000, Op: SET_CONTEXT_REG},
	{Name: "resource", Start: 0x30000, End: 0x38000, Op: SET_RESOURCE},
	{Name: "sampler", Start: 0x3c000, End: 0x3c600, Op: SET_SAMPLER},
	{Name: "ctl_const", Start: 0x3cff0, End: 0x3ff0c, Op: SET_CTL_CONST},
	{Name: "loop_const", Start: 0x3a200, End: 0x3a500, Op: SET_LOOP_CONST},
	{Name: "bool_const", Start: 0x3a500, End: 0x3a518, Op: SET_BOOL_CONST},
}

// Windows returns a copy of the aperture table in routing order.
func Windows() []Window {
	return append([]Window(nil), windows[:]...)
}

// Route returns the window that addresses reg. If none does, ok is false and
// the register must be written with LegacyWrite.
func Route(reg uint32) (w Window, ok bool) {
	for _, w := range windows {
		if w.Contains(reg) {
			return w, true
		}
	}
	return Window{}, false
}

// WindowFor returns the window written by op, if op is a SET_* opcode.
func WindowFor(op Opcode) (Window, bool) {
	for _, w := range windows {
		if w.Op == op {
			return w, true
		}
	}
	return Window{}, false
}

// LegacyWrite returns the single word that introduces n data words for a
// register outside every window. No index word follows it.
//
// This form has not been verified against current hardware and does not
// produce a type-3 packet; Decode rejects it.
func LegacyWrite(reg uint32, n int) uint32 {
	return uint32(n)<<8 | reg>>2
}
