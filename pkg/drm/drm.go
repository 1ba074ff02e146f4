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

// Package drm submits command streams to the radeon DRM driver.
package drm

import (
	"fmt"

	"github.com/r600cs/r600cs/pkg/cs"
	"github.com/r600cs/r600cs/pkg/log"
	"golang.org/x/sys/unix"
)

// DefaultPath is the first DRM card node.
const DefaultPath = "/dev/dri/card0"

// Device is an open DRM device file. It implements cs.Submitter.
type Device struct {
	fd   int
	path string
}

var _ cs.Submitter = (*Device)(nil)

// Open opens the DRM device at path.
func Open(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", path, err)
	}
	log.Debugf("Opened DRM device %q as FD %d", path, fd)
	return &Device{fd: fd, path: path}, nil
}

// FD returns the device's file descriptor. Buffer objects referenced by
// relocations must have been created on this FD.
func (d *Device) FD() int {
	return d.fd
}

// Close closes the device.
func (d *Device) Close() error {
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}

// SubmitCS implements cs.Submitter.SubmitCS.
func (d *Device) SubmitCS(chunks []cs.Chunk) (cs.Limits, error) {
	if d.fd < 0 {
		return cs.Limits{}, unix.EBADF
	}
	for {
		limits, err := submit(d.fd, chunks)
		// Interrupted ioctls are restarted, as drmCommandWriteRead does.
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		}
		if err != nil {
			log.Warningf("DRM_IOCTL_RADEON_CS on %q failed: %v", d.path, err)
			return cs.Limits{}, err
		}
		return limits, nil
	}
}
