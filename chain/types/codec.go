// Copyright 2024 The Erigon Authors
// (modifications)
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package types defines the entity records of spec.md §3: pure value types
// with an IsNull tombstone predicate, plus a small deterministic binary
// codec used both for on-disk storage (kv) and — per spec.md §6 — for
// block hashing. Determinism here matters more than compactness: the same
// struct must always serialize to the same bytes.
package types

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrShortBuffer is returned by decoders when the input is truncated.
var ErrShortBuffer = errors.New("types: short buffer")

// encoder accumulates a deterministic little-endian encoding.
type encoder struct{ buf []byte }

func newEncoder() *encoder { return &encoder{buf: make([]byte, 0, 64)} }

func (e *encoder) bytes() []byte { return e.buf }

func (e *encoder) putUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) putInt64(v int64) { e.putUint64(uint64(v)) }

func (e *encoder) putByte(b byte) { e.buf = append(e.buf, b) }

func (e *encoder) putBool(b bool) {
	if b {
		e.putByte(1)
	} else {
		e.putByte(0)
	}
}

func (e *encoder) putBytes(b []byte) {
	e.putUint64(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) putString(s string) { e.putBytes([]byte(s)) }

// decoder reads back what encoder wrote.
type decoder struct {
	buf []byte
	pos int
}

func newDecoder(buf []byte) *decoder { return &decoder{buf: buf} }

func (d *decoder) remaining() int { return len(d.buf) - d.pos }

func (d *decoder) getUint64() (uint64, error) {
	if d.remaining() < 8 {
		return 0, ErrShortBuffer
	}
	v := binary.LittleEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *decoder) getInt64() (int64, error) {
	v, err := d.getUint64()
	return int64(v), err
}

func (d *decoder) getByte() (byte, error) {
	if d.remaining() < 1 {
		return 0, ErrShortBuffer
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) getBool() (bool, error) {
	b, err := d.getByte()
	return b != 0, err
}

func (d *decoder) getBytes() ([]byte, error) {
	n, err := d.getUint64()
	if err != nil {
		return nil, err
	}
	if uint64(d.remaining()) < n {
		return nil, ErrShortBuffer
	}
	out := append([]byte(nil), d.buf[d.pos:d.pos+int(n)]...)
	d.pos += int(n)
	return out, nil
}

func (d *decoder) getString() (string, error) {
	b, err := d.getBytes()
	return string(b), err
}

func (d *decoder) done() error {
	if d.remaining() != 0 {
		return errors.New("types: trailing bytes after decode")
	}
	return nil
}
