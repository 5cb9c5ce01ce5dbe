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

package chainconfig

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSafeMulUint64DetectsOverflow(t *testing.T) {
	v, overflow := SafeMulUint64(math.MaxUint64, 2)
	require.True(t, overflow)
	_ = v

	v, overflow = SafeMulUint64(3, 4)
	require.False(t, overflow)
	require.Equal(t, uint64(12), v)
}

func TestSafeAddUint64DetectsOverflow(t *testing.T) {
	_, overflow := SafeAddUint64(math.MaxUint64, 1)
	require.True(t, overflow)

	v, overflow := SafeAddUint64(3, 4)
	require.False(t, overflow)
	require.Equal(t, uint64(7), v)
}

func TestCeilDiv(t *testing.T) {
	require.Equal(t, 0, CeilDiv(5, 0))
	require.Equal(t, 2, CeilDiv(3, 2))
	require.Equal(t, 3, CeilDiv(4, 2))
}
