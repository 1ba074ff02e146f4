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

package drm

import (
	"runtime"
	"unsafe"

	"github.com/r600cs/r600cs/pkg/abi/radeon"
	"github.com/r600cs/r600cs/pkg/cs"
	"golang.org/x/sys/unix"
)

// csArgs holds everything DRM_IOCTL_RADEON_CS dereferences. It must stay
// reachable until the ioctl returns.
type csArgs struct {
	cs     radeon.CS
	chunks []radeon.CSChunk
	ptrs   []uint64
	data   [][]uint32
}

func newCSArgs(chunks []cs.Chunk) *csArgs {
	a := &csArgs{
		chunks: make([]radeon.CSChunk, len(chunks)),
		ptrs:   make([]uint64, len(chunks)),
		data:   make([][]uint32, len(chunks)),
	}
	for i, c := range chunks {
		a.data[i] = c.Data
		a.chunks[i] = radeon.CSChunk{
			ChunkID:  uint32(c.ID),
			LengthDW: c.LengthDW(),
		}
		if len(c.Data) > 0 {
			a.chunks[i].ChunkData = uint64(uintptr(unsafe.Pointer(&c.Data[0])))
		}
		a.ptrs[i] = uint64(uintptr(unsafe.Pointer(&a.chunks[i])))
	}
	a.cs.NumChunks = uint32(len(chunks))
	if len(chunks) > 0 {
		a.cs.Chunks = uint64(uintptr(unsafe.Pointer(&a.ptrs[0])))
	}
	return a
}

func submit(fd int, chunks []cs.Chunk) (cs.Limits, error) {
	a := newCSArgs(chunks)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(radeon.DRM_IOCTL_RADEON_CS), uintptr(unsafe.Pointer(&a.cs)))
	runtime.KeepAlive(a)
	if errno != 0 {
		return cs.Limits{}, errno
	}
	return cs.Limits{GARTLimit: a.cs.GARTLimit, VRAMLimit: a.cs.VRAMLimit}, nil
}
