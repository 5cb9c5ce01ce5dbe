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

import (
	"encoding/binary"

	"github.com/erigontech/dpos-engine/chainhash"
)

// AccountID, AssetID and ProposalID index their respective record tables.
// Account id 0 is reserved for the synthetic genesis issuer ("god") account,
// per original_source's initialize_genesis.
type (
	AccountID  uint64
	AssetID    uint64
	ProposalID uint64
)

// Address is the human-readable rendering of a withdraw condition's owner,
// prefixed with chainconfig.AddressPrefix. It is carried as a fixed-size
// hash so that it sorts and compares cheaply in the AddressToAccount index.
type Address chainhash.Hash160

// BlockID identifies a block by the hash of its header, per spec.md §3.
type BlockID chainhash.Hash256

// NullBlockID is the zero block id, used as FullBlock.Header.Previous for
// the genesis block.
var NullBlockID BlockID

func (id BlockID) IsNull() bool { return id == NullBlockID }

// BeUint64Key encodes n big-endian, so that lexicographic key order on the
// resulting bytes matches numeric order — required for the BlockNumToID and
// ForkNumber range scans in spec.md §6.
func BeUint64Key(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}

func BeUint64FromKey(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
