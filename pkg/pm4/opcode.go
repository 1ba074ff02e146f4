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

// Opcode is the IT_OPCODE field of a type-3 packet header.
type Opcode uint8

// Type-3 opcodes understood by the Evergreen command processor.
const (
	NOP                      Opcode = 0x10
	SET_BASE                 Opcode = 0x11
	CLEAR_STATE              Opcode = 0x12
	INDEX_BUFFER_SIZE        Opcode = 0x13
	DISPATCH_DIRECT          Opcode = 0x15
	DISPATCH_INDIRECT        Opcode = 0x16
	INDIRECT_BUFFER_END      Opcode = 0x17
	MODE_CONTROL             Opcode = 0x18
	SET_PREDICATION          Opcode = 0x20
	REG_RMW                  Opcode = 0x21
	COND_EXEC                Opcode = 0x22
	PRED_EXEC                Opcode = 0x23
	DRAW_INDIRECT            Opcode = 0x24
	DRAW_INDEX_INDIRECT      Opcode = 0x25
	INDEX_BASE               Opcode = 0x26
	DRAW_INDEX_2             Opcode = 0x27
	CONTEXT_CONTROL          Opcode = 0x28
	DRAW_INDEX_OFFSET        Opcode = 0x29
	INDEX_TYPE               Opcode = 0x2A
	DRAW_INDEX               Opcode = 0x2B
	DRAW_INDEX_AUTO          Opcode = 0x2D
	DRAW_INDEX_IMMD          Opcode = 0x2E
	NUM_INSTANCES            Opcode = 0x2F
	DRAW_INDEX_MULTI_AUTO    Opcode = 0x30
	INDIRECT_BUFFER          Opcode = 0x32
	STRMOUT_BUFFER_UPDATE    Opcode = 0x34
	DRAW_INDEX_OFFSET_2      Opcode = 0x35
	DRAW_INDEX_MULTI_ELEMENT Opcode = 0x36
	MEM_SEMAPHORE            Opcode = 0x39
	MPEG_INDEX               Opcode = 0x3A
	COPY_DW                  Opcode = 0x3B
	WAIT_REG_MEM             Opcode = 0x3C
	MEM_WRITE                Opcode = 0x3D
	CP_DMA                   Opcode = 0x41
	PFP_SYNC_ME              Opcode = 0x42
	SURFACE_SYNC             Opcode = 0x43
	ME_INITIALIZE            Opcode = 0x44
	COND_WRITE               Opcode = 0x45
	EVENT_WRITE              Opcode = 0x46
	EVENT_WRITE_EOP          Opcode = 0x47
	EVENT_WRITE_EOS          Opcode = 0x48
	PREAMBLE_CNTL            Opcode = 0x4A
	RB_OFFSET                Opcode = 0x4B
	ALU_PS_CONST_BUFFER_COPY Opcode = 0x4C
	ALU_VS_CONST_BUFFER_COPY Opcode = 0x4D
	ALU_PS_CONST_UPDATE      Opcode = 0x4E
	ALU_VS_CONST_UPDATE      Opcode = 0x4F
	ONE_REG_WRITE            Opcode = 0x57
	SET_CONFIG_REG           Opcode = 0x68
	SET_CONTEXT_REG          Opcode = 0x69
	SET_ALU_CONST            Opcode = 0x6A
	SET_BOOL_CONST           Opcode = 0x6B
	SET_LOOP_CONST           Opcode = 0x6C
	SET_RESOURCE             Opcode = 0x6D
	SET_SAMPLER              Opcode = 0x6E
	SET_CTL_CONST            Opcode = 0x6F
	SET_RESOURCE_OFFSET      Opcode = 0x70
	SET_ALU_CONST_VS         Opcode = 0x71
	SET_ALU_CONST_DI         Opcode = 0x72
	SET_CONTEXT_REG_INDIRECT Opcode = 0x73
	SET_RESOURCE_INDIRECT    Opcode = 0x74
	SET_APPEND_CNT           Opcode = 0x75
	EVENT_WRITE_7E           Opcode = 0x7E
)

var opcodeNames = map[Opcode]string{
	NOP:                      "NOP",
	SET_BASE:                 "SET_BASE",
	CLEAR_STATE:              "CLEAR_STATE",
	INDEX_BUFFER_SIZE:        "INDEX_BUFFER_SIZE",
	DISPATCH_DIRECT:          "DISPATCH_DIRECT",
	DISPATCH_INDIRECT:        "DISPATCH_INDIRECT",
	INDIRECT_BUFFER_END:      "INDIRECT_BUFFER_END",
	MODE_CONTROL:             "MODE_CONTROL",
	SET_PREDICATION:          "SET_PREDICATION",
	REG_RMW:                  "REG_RMW",
	COND_EXEC:                "COND_EXEC",
	PRED_EXEC:                "PRED_EXEC",
	DRAW_INDIRECT:            "DRAW_INDIRECT",
	DRAW_INDEX_INDIRECT:      "DRAW_INDEX_INDIRECT",
	INDEX_BASE:               "INDEX_BASE",
	DRAW_INDEX_2:             "DRAW_INDEX_2",
	CONTEXT_CONTROL:          "CONTEXT_CONTROL",
	DRAW_INDEX_OFFSET:        "DRAW_INDEX_OFFSET",
	INDEX_TYPE:               "INDEX_TYPE",
	DRAW_INDEX:               "DRAW_INDEX",
	DRAW_INDEX_AUTO:          "DRAW_INDEX_AUTO",
	DRAW_INDEX_IMMD:          "DRAW_INDEX_IMMD",
	NUM_INSTANCES:            "NUM_INSTANCES",
	DRAW_INDEX_MULTI_AUTO:    "DRAW_INDEX_MULTI_AUTO",
	INDIRECT_BUFFER:          "INDIRECT_BUFFER",
	STRMOUT_BUFFER_UPDATE:    "STRMOUT_BUFFER_UPDATE",
	DRAW_INDEX_OFFSET_2:      "DRAW_INDEX_OFFSET_2",
	DRAW_INDEX_MULTI_ELEMENT: "DRAW_INDEX_MULTI_ELEMENT",
	MEM_SEMAPHORE:            "MEM_SEMAPHORE",
	MPEG_INDEX:               "MPEG_INDEX",
	COPY_DW:                  "COPY_DW",
	WAIT_REG_MEM:             "WAIT_REG_MEM",
	MEM_WRITE:                "MEM_WRITE",
	CP_DMA:                   "CP_DMA",
	PFP_SYNC_ME:              "PFP_SYNC_ME",
	SURFACE_SYNC:             "SURFACE_SYNC",
	ME_INITIALIZE:            "ME_INITIALIZE",
	COND_WRITE:               "COND_WRITE",
	EVENT_WRITE:              "EVENT_WRITE",
	EVENT_WRITE_EOP:          "EVENT_WRITE_EOP",
	EVENT_WRITE_EOS:          "EVENT_WRITE_EOS",
	PREAMBLE_CNTL:            "PREAMBLE_CNTL",
	RB_OFFSET:                "RB_OFFSET",
	ALU_PS_CONST_BUFFER_COPY: "ALU_PS_CONST_BUFFER_COPY",
	ALU_VS_CONST_BUFFER_COPY: "ALU_VS_CONST_BUFFER_COPY",
	ALU_PS_CONST_UPDATE:      "ALU_PS_CONST_UPDATE",
	ALU_VS_CONST_UPDATE:      "ALU_VS_CONST_UPDATE",
	ONE_REG_WRITE:            "ONE_REG_WRITE",
	SET_CONFIG_REG:           "SET_CONFIG_REG",
	SET_CONTEXT_REG:          "SET_CONTEXT_REG",
	SET_ALU_CONST:            "SET_ALU_CONST",
	SET_BOOL_CONST:           "SET_BOOL_CONST",
	SET_LOOP_CONST:           "SET_LOOP_CONST",
	SET_RESOURCE:             "SET_RESOURCE",
	SET_SAMPLER:              "SET_SAMPLER",
	SET_CTL_CONST:            "SET_CTL_CONST",
	SET_RESOURCE_OFFSET:      "SET_RESOURCE_OFFSET",
	SET_ALU_CONST_VS:         "SET_ALU_CONST_VS",
	SET_ALU_CONST_DI:         "SET_ALU_CONST_DI",
	SET_CONTEXT_REG_INDIRECT: "SET_CONTEXT_REG_INDIRECT",
	SET_RESOURCE_INDIRECT:    "SET_RESOURCE_INDIRECT",
	SET_APPEND_CNT:           "SET_APPEND_CNT",
	EVENT_WRITE_7E:           "EVENT_WRITE_7E",
}

// Known returns true if op is one of the opcodes named in this package. The
// hardware accepts many more; an unknown opcode is not a decode error.
func (op Opcode) Known() bool {
	_, ok := opcodeNames[op]
	return ok
}

// String implements fmt.Stringer.String.
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(op))
}

// LookupOpcode returns the opcode with the given name.
func LookupOpcode(name string) (Opcode, bool) {
	for op, n := range opcodeNames {
		if n == name {
			return op, true
		}
	}
	return 0, false
}
