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

package types

// TriState mirrors original_source's block_fork_data::is_valid, which is
// either unset (not yet verified), or set to true/false. A plain bool can't
// represent "not yet known" without a sentinel, so this gets its own type.
type TriState uint8

const (
	Unknown TriState = iota
	Valid
	Invalid
)

// ForkNode is the per-block bookkeeping record the fork tree (C5) stores
// under kv.Fork, grounded on original_source's block_fork_data.
type ForkNode struct {
	BlockID      BlockID
	BlockNum     uint64
	NextBlocks   []BlockID
	IsLinked     bool
	IsValid      TriState
	IsIncluded   bool
	InvalidReason string
}

func (n ForkNode) Encode() []byte {
	e := newEncoder()
	e.buf = append(e.buf, n.BlockID[:]...)
	e.putUint64(n.BlockNum)
	e.putUint64(uint64(len(n.NextBlocks)))
	for _, id := range n.NextBlocks {
		e.buf = append(e.buf, id[:]...)
	}
	e.putBool(n.IsLinked)
	e.putByte(byte(n.IsValid))
	e.putBool(n.IsIncluded)
	e.putString(n.InvalidReason)
	return e.bytes()
}

func DecodeForkNode(b []byte) (ForkNode, error) {
	d := newDecoder(b)
	var n ForkNode
	if d.remaining() < len(n.BlockID) {
		return ForkNode{}, ErrShortBuffer
	}
	copy(n.BlockID[:], d.buf[d.pos:d.pos+len(n.BlockID)])
	d.pos += len(n.BlockID)

	blockNum, err := d.getUint64()
	if err != nil {
		return ForkNode{}, err
	}
	n.BlockNum = blockNum

	count, err := d.getUint64()
	if err != nil {
		return ForkNode{}, err
	}
	n.NextBlocks = make([]BlockID, count)
	for i := range n.NextBlocks {
		if d.remaining() < len(n.NextBlocks[i]) {
			return ForkNode{}, ErrShortBuffer
		}
		copy(n.NextBlocks[i][:], d.buf[d.pos:d.pos+len(n.NextBlocks[i])])
		d.pos += len(n.NextBlocks[i])
	}

	linked, err := d.getBool()
	if err != nil {
		return ForkNode{}, err
	}
	n.IsLinked = linked

	validByte, err := d.getByte()
	if err != nil {
		return ForkNode{}, err
	}
	n.IsValid = TriState(validByte)

	included, err := d.getBool()
	if err != nil {
		return ForkNode{}, err
	}
	n.IsIncluded = included

	reason, err := d.getString()
	if err != nil {
		return ForkNode{}, err
	}
	n.InvalidReason = reason

	if err := d.done(); err != nil {
		return ForkNode{}, err
	}
	return n, nil
}
