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

import (
	"errors"
	"fmt"
	"io"
	"iter"
)

var (
	// ErrUnsupportedType is returned when a header is not type 3.
	ErrUnsupportedType = errors.New("unsupported packet type")

	// ErrTruncated is returned when a header declares more body words than
	// remain in the stream.
	ErrTruncated = errors.New("truncated packet")
)

// DecodeError describes where decoding stopped.
type DecodeError struct {
	// Offset is the word offset of the offending header.
	Offset int
	Header Header
	Err    error
}

// Error implements error.Error.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("word %d (header 0x%08x): %v", e.Offset, uint32(e.Header), e.Err)
}

// Unwrap returns the underlying sentinel error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Packet is a decoded type-3 packet.
type Packet struct {
	Header Header
	Body   []uint32
}

// Len returns the number of words the packet occupies in a stream.
func (p Packet) Len() int {
	return 1 + len(p.Body)
}

// String implements fmt.Stringer.String.
func (p Packet) String() string {
	return fmt.Sprintf("%v %#x", p.Header, p.Body)
}

// Register returns the byte address of the first register written by a SET_*
// packet. ok is false for other packets.
func (p Packet) Register() (reg uint32, ok bool) {
	w, ok := WindowFor(p.Header.Op())
	if !ok || len(p.Body) == 0 {
		return 0, false
	}
	return w.Address(p.Body[0]), true
}

// Decoder splits a word stream into packets. The input slice is never
// modified and decoded bodies never alias it.
type Decoder struct {
	words []uint32
	off   int
	err   error
}

// NewDecoder returns a Decoder over words.
func NewDecoder(words []uint32) *Decoder {
	return &Decoder{words: words}
}

// Reset rewinds the decoder to the start of its input.
func (d *Decoder) Reset() {
	d.off = 0
	d.err = nil
}

// Offset returns the word offset of the next header.
func (d *Decoder) Offset() int {
	return d.off
}

// Next returns the next packet. It returns io.EOF once the input is
// exhausted. After any other error, the same error is returned until Reset.
func (d *Decoder) Next() (Packet, error) {
	if d.err != nil {
		return Packet{}, d.err
	}
	if d.off >= len(d.words) {
		return Packet{}, io.EOF
	}
	h := Header(d.words[d.off])
	if h.Type() != Type3 {
		d.err = &DecodeError{Offset: d.off, Header: h, Err: ErrUnsupportedType}
		return Packet{}, d.err
	}
	start := d.off + 1
	end := start + h.BodyLen()
	if end > len(d.words) {
		d.err = &DecodeError{Offset: d.off, Header: h, Err: fmt.Errorf("%w: need %d body words, have %d", ErrTruncated, h.BodyLen(), len(d.words)-start)}
		return Packet{}, d.err
	}
	body := make([]uint32, end-start)
	copy(body, d.words[start:end])
	d.off = end
	return Packet{Header: h, Body: body}, nil
}

// Decode returns every packet in words. On error, the packets decoded before
// the failing header are returned along with the error.
func Decode(words []uint32) ([]Packet, error) {
	d := NewDecoder(words)
	var pkts []Packet
	for {
		p, err := d.Next()
		if err == io.EOF {
			return pkts, nil
		}
		if err != nil {
			return pkts, err
		}
		pkts = append(pkts, p)
	}
}

// All returns an iterator over the packets in words. Iteration stops after
// the first error is yielded.
func All(words []uint32) iter.Seq2[Packet, error] {
	return func(yield func(Packet, error) bool) {
		d := NewDecoder(words)
		for {
			p, err := d.Next()
			if err == io.EOF {
				return
			}
			if !yield(p, err) || err != nil {
				return
			}
		}
	}
}

// Encode flattens packets back into a word stream.
func Encode(pkts []Packet) []uint32 {
	n := 0
	for _, p := range pkts {
		n += p.Len()
	}
	words := make([]uint32, 0, n)
	for _, p := range pkts {
		words = append(words, uint32(p.Header))
		words = append(words, p.Body...)
	}
	return words
}
