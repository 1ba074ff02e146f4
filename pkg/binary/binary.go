// Copyright 2018 Google LLC
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

// Package binary translates between streams of 32-bit command words and their
// byte representation.
package binary

import (
	"encoding/binary"
	"fmt"
	"io"
)

// LittleEndian is the same as encoding/binary.LittleEndian.
//
// It is included here as a convenience. Command words are little endian on
// every platform the radeon driver runs on.
var LittleEndian = binary.LittleEndian

// ByteOrder is satisfied by binary.LittleEndian and binary.BigEndian.
type ByteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// AppendUint32 appends the binary representation of a uint32 to buf.
func AppendUint32(buf []byte, order ByteOrder, num uint32) []byte {
	return order.AppendUint32(buf, num)
}

// AppendWords appends the binary representation of words to buf.
func AppendWords(buf []byte, order ByteOrder, words []uint32) []byte {
	for _, w := range words {
		buf = order.AppendUint32(buf, w)
	}
	return buf
}

// Words converts buf into words. len(buf) must be a multiple of four.
func Words(buf []byte, order ByteOrder) ([]uint32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("buffer length %d is not a multiple of 4", len(buf))
	}
	words := make([]uint32, len(buf)/4)
	for i := range words {
		words[i] = order.Uint32(buf[4*i:])
	}
	return words, nil
}

// ReadUint32 reads a uint32 from r.
func ReadUint32(r io.Reader, order ByteOrder) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return order.Uint32(buf[:]), nil
}

// WriteUint32 writes a uint32 to w.
func WriteUint32(w io.Writer, order ByteOrder, num uint32) error {
	var buf [4]byte
	order.PutUint32(buf[:], num)
	_, err := w.Write(buf[:])
	return err
}

// WriteWords writes words to w in a single write.
func WriteWords(w io.Writer, order ByteOrder, words []uint32) error {
	_, err := w.Write(AppendWords(make([]byte, 0, 4*len(words)), order, words))
	return err
}
