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

package chainhash

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRIPEMD160Deterministic(t *testing.T) {
	a := RIPEMD160([]byte("hello"))
	b := RIPEMD160([]byte("hello"))
	require.Equal(t, a, b)
	require.NotEqual(t, a, RIPEMD160([]byte("world")))
}

func TestSHA256Deterministic(t *testing.T) {
	a := SHA256([]byte("hello"))
	b := SHA256([]byte("hello"))
	require.Equal(t, a, b)
}

func TestMixRandomSeedChangesWithEitherInput(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		var secret, seed, otherSecret Hash160
		copy(secret[:], rapid.SliceOfN(rapid.Byte(), 20, 20).Draw(rt, "secret"))
		copy(seed[:], rapid.SliceOfN(rapid.Byte(), 20, 20).Draw(rt, "seed"))
		copy(otherSecret[:], rapid.SliceOfN(rapid.Byte(), 20, 20).Draw(rt, "otherSecret"))

		mixed := MixRandomSeed(secret, seed)
		require.NotEqual(t, Hash160{}, mixed)

		if otherSecret != secret {
			require.NotEqual(t, mixed, MixRandomSeed(otherSecret, seed))
		}
	})
}

func TestShuffleSeedBytesIsAnEndlessDeterministicStream(t *testing.T) {
	seed := RIPEMD160([]byte("genesis"))
	a := NewShuffleSeedBytes(seed)
	b := NewShuffleSeedBytes(seed)
	for i := 0; i < 256; i++ {
		require.Equal(t, a.Next(), b.Next(), "stream position %d diverged", i)
	}
}
