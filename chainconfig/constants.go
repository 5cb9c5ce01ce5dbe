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

// Package chainconfig holds the consensus-critical constants. These values
// are bit-exact requirements: a reimplementation that changes them produces
// a different chain.
package chainconfig

const (
	// BlockIntervalSec is the fixed wall-clock period between consecutive
	// valid block timestamps.
	BlockIntervalSec int64 = 30

	// NDelegates is the length of the active delegate list.
	NDelegates = 101

	// InitialShares is the maximum share supply fixed at genesis.
	InitialShares int64 = 2_000_000_000 * 1000

	// MaxBlockSize is the serialized size ceiling for a produced block.
	MaxBlockSize = 2 * 1024 * 1024

	// AddressPrefix is prepended to the human-readable rendering of an
	// address and is baked into the base asset's symbol at genesis.
	AddressPrefix = "XTS"

	// SignatureSize is the fixed byte length every block signature must
	// have. Block signing is an external collaborator's concern (spec.md
	// §1), but fee_rate is derived from the serialized block size and must
	// be computed before the signature exists — fixing its length lets the
	// producer and the validator agree on that size without a
	// chicken-and-egg recompute.
	SignatureSize = 64
)
