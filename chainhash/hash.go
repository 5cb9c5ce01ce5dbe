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

// Package chainhash wraps the three digest algorithms the chain engine is
// defined over: ripemd160 for the secret-reveal commit scheme, sha256 for
// chain-id derivation and random-seed shuffling, and sha512 for the random
// seed mix step. The evaluator and block/transaction codecs are external
// collaborators (spec.md §1) and are expected to use these same helpers so
// that hashing is consistent across the engine.
package chainhash

import (
	"crypto/sha256"
	"crypto/sha512"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // consensus-critical digest, not a TLS primitive
)

// Hash160 is a 160-bit digest: block ids' secret commitments and the
// chain-wide random seed.
type Hash160 [20]byte

// Hash256 is a 256-bit digest: chain ids and shuffle seeds.
type Hash256 [32]byte

func (h Hash160) Bytes() []byte { return h[:] }
func (h Hash256) Bytes() []byte { return h[:] }

func (h Hash160) IsZero() bool { return h == Hash160{} }

// RIPEMD160 returns ripemd160(data).
func RIPEMD160(data []byte) Hash160 {
	d := ripemd160.New()
	d.Write(data)
	var out Hash160
	copy(out[:], d.Sum(nil))
	return out
}

// SHA256 returns sha256(data).
func SHA256(data []byte) Hash256 {
	return sha256.Sum256(data)
}

// SHA512 returns sha512(data).
func SHA512(data []byte) [64]byte {
	return sha512.Sum512(data)
}

// MixRandomSeed implements the per-block random seed update from spec.md
// §4.6 step 5: ripemd160(sha512(previous_secret ∥ current_seed)).
func MixRandomSeed(previousSecret Hash160, currentSeed Hash160) Hash160 {
	buf := make([]byte, 0, 40)
	buf = append(buf, previousSecret[:]...)
	buf = append(buf, currentSeed[:]...)
	digest := SHA512(buf)
	return RIPEMD160(digest[:])
}

// ShuffleSeedBytes produces an endless stream of pseudo-random index bytes
// for the active-set shuffle (spec.md §4.6 step 4): sha256(seed), then
// sha256 of that, and so on. Only the first four bytes of each hash are
// ever used before re-hashing, matching original_source's
// update_active_delegate_list (chain_database.cpp:522-537), which indexes
// rand_seed._hash[0..3] and then re-hashes the whole 32 bytes.
type ShuffleSeedBytes struct {
	cur Hash256
	pos int
}

// NewShuffleSeedBytes seeds the stream from the chain-wide random seed.
func NewShuffleSeedBytes(seed Hash160) *ShuffleSeedBytes {
	return &ShuffleSeedBytes{cur: SHA256(seed.Bytes())}
}

// Next returns the next byte in the stream, re-hashing every 4 bytes.
func (s *ShuffleSeedBytes) Next() byte {
	if s.pos == 4 {
		s.cur = SHA256(s.cur[:])
		s.pos = 0
	}
	b := s.cur[s.pos]
	s.pos++
	return b
}
