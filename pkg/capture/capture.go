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

// Package capture reads and writes captured indirect buffers.
//
// Two formats are supported. The binary format is the raw indirect buffer:
// little-endian 32-bit words with no header. Its relocations, if any, are
// stored next to it in a file named by RelocsPath, four words per
// relocation. The text format has one word per line in hexadecimal:
//
//	# comment lines are ignored
//	# reloc 1 0x0 0x4 0x0
//	0xc0016900  # cb_color_control
//	0x00000202
//
// A comment following a word on the same line is that word's label. A comment
// line starting with "reloc" declares the next relocation: handle, read
// domains, write domain and flags.
package capture

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/r600cs/r600cs/pkg/abi/radeon"
	"github.com/r600cs/r600cs/pkg/binary"
	"github.com/r600cs/r600cs/pkg/cs"
)

// Capture is a captured indirect buffer.
type Capture struct {
	Words []uint32

	// Labels maps word offsets to text. It may be nil.
	Labels map[int]string

	// Relocs is the relocation table the words refer to, in order.
	Relocs []radeon.Reloc
}

// FromStream captures the words, labels and relocations of s.
func FromStream(s *cs.Stream) Capture {
	c := Capture{Words: s.Words(), Relocs: s.Relocs()}
	for i := 0; i < s.Len(); i++ {
		if l, ok := s.Label(i); ok {
			if c.Labels == nil {
				c.Labels = make(map[int]string)
			}
			c.Labels[i] = l
		}
	}
	return c
}

// Stream rebuilds a stream from c: its words, labels and relocations.
func (c Capture) Stream() *cs.Stream {
	s := cs.NewStream()
	for i, w := range c.Words {
		if l, ok := c.Labels[i]; ok {
			s.WriteLabel(l)
		}
		s.Emit(w)
	}
	for _, r := range c.Relocs {
		s.WriteReloc(r.Handle, r.ReadDomains, r.WriteDomain, r.Flags)
	}
	return s
}

// ReadBinary reads words until EOF.
func ReadBinary(r io.Reader) ([]uint32, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return binary.Words(buf, binary.LittleEndian)
}

// WriteBinary writes words in the binary format.
func WriteBinary(w io.Writer, words []uint32) error {
	return binary.WriteWords(w, binary.LittleEndian, words)
}

// RelocsPath returns the path of the relocation table of the binary capture
// at path.
func RelocsPath(path string) string {
	return path + ".relocs"
}

// ReadRelocs reads a relocation table in the binary format.
func ReadRelocs(r io.Reader) ([]radeon.Reloc, error) {
	words, err := ReadBinary(r)
	if err != nil {
		return nil, err
	}
	if len(words)%radeon.RelocDW != 0 {
		return nil, fmt.Errorf("relocation table of %d words is not a multiple of %d", len(words), radeon.RelocDW)
	}
	var relocs []radeon.Reloc
	for i := 0; i < len(words); i += radeon.RelocDW {
		relocs = append(relocs, radeon.Reloc{
			Handle:      words[i],
			ReadDomains: words[i+1],
			WriteDomain: words[i+2],
			Flags:       words[i+3],
		})
	}
	return relocs, nil
}

// WriteRelocs writes relocs in the binary format.
func WriteRelocs(w io.Writer, relocs []radeon.Reloc) error {
	words := make([]uint32, 0, len(relocs)*radeon.RelocDW)
	for _, r := range relocs {
		words = r.AppendWords(words)
	}
	return WriteBinary(w, words)
}

// ReadText reads the text format.
func ReadText(r io.Reader) (Capture, error) {
	var c Capture
	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		text, comment, hasComment := strings.Cut(scanner.Text(), "#")
		text = strings.TrimSpace(text)
		if text == "" {
			if fields := strings.Fields(comment); len(fields) > 0 && fields[0] == "reloc" {
				reloc, err := parseReloc(fields[1:])
				if err != nil {
					return Capture{}, fmt.Errorf("line %d: %w", line, err)
				}
				c.Relocs = append(c.Relocs, reloc)
			}
			continue
		}
		w, err := parseWord(text)
		if err != nil {
			return Capture{}, fmt.Errorf("line %d: %w", line, err)
		}
		if comment = strings.TrimSpace(comment); hasComment && comment != "" {
			if c.Labels == nil {
				c.Labels = make(map[int]string)
			}
			c.Labels[len(c.Words)] = comment
		}
		c.Words = append(c.Words, w)
	}
	if err := scanner.Err(); err != nil {
		return Capture{}, err
	}
	return c, nil
}

func parseWord(s string) (uint32, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid word %q: %w", s, err)
	}
	return uint32(v), nil
}

func parseReloc(fields []string) (radeon.Reloc, error) {
	if len(fields) != radeon.RelocDW {
		return radeon.Reloc{}, fmt.Errorf("relocation has %d fields, want %d", len(fields), radeon.RelocDW)
	}
	var v [radeon.RelocDW]uint32
	for i, f := range fields {
		n, err := strconv.ParseUint(f, 0, 32)
		if err != nil {
			return radeon.Reloc{}, fmt.Errorf("invalid relocation field %q: %w", f, err)
		}
		v[i] = uint32(n)
	}
	return radeon.Reloc{Handle: v[0], ReadDomains: v[1], WriteDomain: v[2], Flags: v[3]}, nil
}

// WriteText writes c in the text format.
func WriteText(w io.Writer, c Capture) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# %d words\n", len(c.Words))
	for _, r := range c.Relocs {
		fmt.Fprintf(bw, "# reloc %d %#x %#x %#x\n", r.Handle, r.ReadDomains, r.WriteDomain, r.Flags)
	}
	for i, word := range c.Words {
		if l, ok := c.Labels[i]; ok {
			fmt.Fprintf(bw, "0x%08x  # %s\n", word, strings.ReplaceAll(l, "\n", " "))
		} else {
			fmt.Fprintf(bw, "0x%08x\n", word)
		}
	}
	return bw.Flush()
}

// IsText returns true if path names a text capture.
func IsText(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".hex":
		return true
	}
	return false
}

// Load reads the capture at path. The format is chosen by IsText.
func Load(path string) (Capture, error) {
	f, err := os.Open(path)
	if err != nil {
		return Capture{}, err
	}
	defer f.Close()

	if IsText(path) {
		c, err := ReadText(f)
		if err != nil {
			return Capture{}, fmt.Errorf("reading %q: %w", path, err)
		}
		return c, nil
	}
	words, err := ReadBinary(f)
	if err != nil {
		return Capture{}, fmt.Errorf("reading %q: %w", path, err)
	}
	relocs, err := loadRelocs(RelocsPath(path))
	if err != nil {
		return Capture{}, err
	}
	return Capture{Words: words, Relocs: relocs}, nil
}

func loadRelocs(path string) ([]radeon.Reloc, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	relocs, err := ReadRelocs(f)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}
	return relocs, nil
}

// Save writes c to path. The format is chosen by IsText; labels are dropped
// from binary captures. A binary capture without relocations removes any
// stale relocation table at RelocsPath.
func Save(path string, c Capture) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if IsText(path) {
		err = WriteText(f, c)
	} else {
		err = WriteBinary(f, c.Words)
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("writing %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	if IsText(path) {
		return nil
	}
	return saveRelocs(RelocsPath(path), c.Relocs)
}

func saveRelocs(path string, relocs []radeon.Reloc) error {
	if len(relocs) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteRelocs(f, relocs); err != nil {
		f.Close()
		return fmt.Errorf("writing %q: %w", path, err)
	}
	return f.Close()
}
