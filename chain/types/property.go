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

import "encoding/binary"

// PropertyID names the chain-wide singleton values stored under kv.Property,
// grounded on original_source's chain_property_enum.
type PropertyID uint32

const (
	PropChainID PropertyID = iota
	PropHeadBlockNum
	PropHeadBlockID
	PropActiveDelegateList
	PropRandomSeed
	PropLastAsset
	PropLastAccount
	PropLastProposal
	PropAccumulatedFees
)

// PropertyKey is the fixed-width big-endian encoding of a PropertyID, used
// as the key in kv.Property so entries sort by id.
func PropertyKey(id PropertyID) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(id))
	return b[:]
}

// ActiveDelegateList is the value stored under PropActiveDelegateList: the
// ordered set of delegate account ids eligible to produce in the current
// round, per spec.md §4.6 step "active-set rotation".
type ActiveDelegateList struct {
	Delegates []AccountID
}

func (l ActiveDelegateList) Encode() []byte {
	e := newEncoder()
	e.putUint64(uint64(len(l.Delegates)))
	for _, id := range l.Delegates {
		e.putUint64(uint64(id))
	}
	return e.bytes()
}

func DecodeActiveDelegateList(b []byte) (ActiveDelegateList, error) {
	d := newDecoder(b)
	n, err := d.getUint64()
	if err != nil {
		return ActiveDelegateList{}, err
	}
	out := ActiveDelegateList{Delegates: make([]AccountID, n)}
	for i := range out.Delegates {
		v, err := d.getUint64()
		if err != nil {
			return ActiveDelegateList{}, err
		}
		out.Delegates[i] = AccountID(v)
	}
	if err := d.done(); err != nil {
		return ActiveDelegateList{}, err
	}
	return out, nil
}
