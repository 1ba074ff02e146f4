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

// Package radeon defines the radeon DRM command submission ABI, from
// include/uapi/drm/radeon_drm.h and include/uapi/drm/drm.h.
package radeon

import (
	"fmt"

	"github.com/r600cs/r600cs/pkg/abi/linux"
)

// DRM_IOCTL_BASE is the IOC_TYPE of every DRM ioctl.
const DRM_IOCTL_BASE = uint32('d')

// Driver-private ioctl numbers start at DRM_COMMAND_BASE.
const (
	DRM_COMMAND_BASE = 0x40
	DRM_RADEON_CS    = 0x26
)

// DRM_IOCTL_RADEON_CS is the command submission request.
var DRM_IOCTL_RADEON_CS = linux.IOWR(DRM_IOCTL_BASE, DRM_COMMAND_BASE+DRM_RADEON_CS, SizeofCS)

// ChunkID identifies the contents of a command submission chunk.
type ChunkID uint32

// Chunk IDs.
const (
	RADEON_CHUNK_ID_RELOCS ChunkID = 0x01
	RADEON_CHUNK_ID_IB     ChunkID = 0x02
	RADEON_CHUNK_ID_FLAGS  ChunkID = 0x03
)

// String implements fmt.Stringer.String.
func (id ChunkID) String() string {
	switch id {
	case RADEON_CHUNK_ID_RELOCS:
		return "relocs"
	case RADEON_CHUNK_ID_IB:
		return "ib"
	case RADEON_CHUNK_ID_FLAGS:
		return "flags"
	default:
		return fmt.Sprintf("chunk(%d)", uint32(id))
	}
}

// GEM memory domains, used in the domain masks of a Reloc.
const (
	RADEON_GEM_DOMAIN_CPU  = 0x1
	RADEON_GEM_DOMAIN_GTT  = 0x2
	RADEON_GEM_DOMAIN_VRAM = 0x4
)

// Bits of the first word of the flags chunk.
const (
	RADEON_CS_KEEP_TILING_FLAGS = 0x01
	RADEON_CS_USE_VM            = 0x02
	RADEON_CS_END_OF_FRAME      = 0x04
)

// Rings selected by the second word of the flags chunk.
const (
	RADEON_CS_RING_GFX = 0
)

// FlagsDW is the length of the flags chunk.
const FlagsDW = 2

// CS is struct drm_radeon_cs.
type CS struct {
	NumChunks uint32
	CSID      uint32
	Chunks    uint64 // pointer to an array of NumChunks pointers to CSChunk
	GARTLimit uint64
	VRAMLimit uint64
}

// SizeofCS is the size of CS in bytes.
const SizeofCS = 32

// CSChunk is struct drm_radeon_cs_chunk.
type CSChunk struct {
	ChunkID   uint32
	LengthDW  uint32
	ChunkData uint64 // pointer to LengthDW words
}

// SizeofCSChunk is the size of CSChunk in bytes.
const SizeofCSChunk = 16

// Reloc is struct drm_radeon_cs_reloc.
type Reloc struct {
	Handle      uint32
	ReadDomains uint32
	WriteDomain uint32
	Flags       uint32
}

// RelocDW is the number of words a Reloc occupies in the relocation chunk.
const RelocDW = 4

// AppendWords appends r to words in wire order.
func (r Reloc) AppendWords(words []uint32) []uint32 {
	return append(words, r.Handle, r.ReadDomains, r.WriteDomain, r.Flags)
}

// String implements fmt.Stringer.String.
func (r Reloc) String() string {
	return fmt.Sprintf("handle=%d read=%s write=%s flags=%#x", r.Handle, DomainString(r.ReadDomains), DomainString(r.WriteDomain), r.Flags)
}

// DomainString renders a domain mask.
func DomainString(mask uint32) string {
	if mask == 0 {
		return "none"
	}
	var s string
	for _, d := range []struct {
		bit  uint32
		name string
	}{
		{RADEON_GEM_DOMAIN_CPU, "cpu"},
		{RADEON_GEM_DOMAIN_GTT, "gtt"},
		{RADEON_GEM_DOMAIN_VRAM, "vram"},
	} {
		if mask&d.bit == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += d.name
		mask &^= d.bit
	}
	if mask != 0 {
		if s != "" {
			s += "|"
		}
		s += fmt.Sprintf("%#x", mask)
	}
	return s
}
