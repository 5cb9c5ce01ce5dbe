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

package state

import (
	"testing"

	"github.com/erigontech/dpos-engine/kv"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func withMemTx(t *testing.T, fn func(kv.RwTx)) {
	t.Helper()
	db := kv.NewMemDB()
	require.NoError(t, db.Update(func(tx kv.RwTx) error {
		fn(tx)
		return nil
	}))
}

func TestOverlayReadsFallThroughToCommitted(t *testing.T) {
	withMemTx(t, func(tx kv.RwTx) {
		committed := NewCommittedRwState(tx)
		require.NoError(t, committed.Put("t", []byte("k"), []byte("v0")))

		overlay := NewOverlay(committed)
		v, ok, err := overlay.Get("t", []byte("k"))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("v0"), v)

		require.NoError(t, overlay.Put("t", []byte("k"), []byte("v1")))
		v, ok, err = overlay.Get("t", []byte("k"))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("v1"), v)

		// committed is untouched until ApplyChanges flattens the overlay.
		v, ok, err = committed.Get("t", []byte("k"))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("v0"), v)
	})
}

func TestOverlayDeleteHidesCommittedValue(t *testing.T) {
	withMemTx(t, func(tx kv.RwTx) {
		committed := NewCommittedRwState(tx)
		require.NoError(t, committed.Put("t", []byte("k"), []byte("v0")))

		overlay := NewOverlay(committed)
		require.NoError(t, overlay.Delete("t", []byte("k")))
		_, ok, err := overlay.Get("t", []byte("k"))
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestApplyChangesFlattenIsIdempotent(t *testing.T) {
	withMemTx(t, func(tx kv.RwTx) {
		committed := NewCommittedRwState(tx)
		overlay := NewOverlay(committed)
		require.NoError(t, overlay.Put("t", []byte("k"), []byte("v1")))
		require.NoError(t, overlay.ApplyChanges())

		v, ok, err := committed.Get("t", []byte("k"))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("v1"), v)

		// A second flatten has nothing left to apply and must not error.
		require.NoError(t, overlay.ApplyChanges())
		v, ok, err = committed.Get("t", []byte("k"))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("v1"), v)
	})
}

func TestUndoStateRoundTripsThroughEncoding(t *testing.T) {
	withMemTx(t, func(tx kv.RwTx) {
		committed := NewCommittedRwState(tx)
		require.NoError(t, committed.Put("t", []byte("existing"), []byte("orig")))

		overlay := NewOverlay(committed)
		require.NoError(t, overlay.Put("t", []byte("existing"), []byte("new")))
		require.NoError(t, overlay.Put("t", []byte("fresh"), []byte("added")))
		require.NoError(t, overlay.Delete("t", []byte("doesnotexist")))

		undo := overlay.GetUndoState()
		encoded := undo.Encode()
		decoded, err := DecodeUndoState(encoded)
		require.NoError(t, err)

		require.NoError(t, overlay.ApplyChanges())

		require.NoError(t, decoded.Apply(committed))

		v, ok, err := committed.Get("t", []byte("existing"))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("orig"), v)

		_, ok, err = committed.Get("t", []byte("fresh"))
		require.NoError(t, err)
		require.False(t, ok, "undo must remove a key the overlay introduced")
	})
}

func TestUndoApplyIsExactInverseProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		db := kv.NewMemDB()
		key := []byte(rapid.StringMatching(`[a-z]{1,8}`).Draw(rt, "key"))
		before := []byte(rapid.StringMatching(`[a-z]{0,8}`).Draw(rt, "before"))
		after := []byte(rapid.StringMatching(`[a-z]{0,8}`).Draw(rt, "after"))
		hadBefore := rapid.Bool().Draw(rt, "hadBefore")

		err := db.Update(func(tx kv.RwTx) error {
			committed := NewCommittedRwState(tx)
			if hadBefore {
				if err := committed.Put("t", key, before); err != nil {
					return err
				}
			}

			overlay := NewOverlay(committed)
			if err := overlay.Put("t", key, after); err != nil {
				return err
			}
			undo := overlay.GetUndoState()
			if err := overlay.ApplyChanges(); err != nil {
				return err
			}
			return undo.Apply(committed)
		})
		require.NoError(rt, err)

		require.NoError(rt, db.View(func(tx kv.Tx) error {
			v, ok, err := tx.Get("t", key)
			require.NoError(rt, err)
			if !hadBefore {
				require.False(rt, ok)
				return nil
			}
			require.True(rt, ok)
			require.Equal(rt, before, v)
			return nil
		}))
	})
}
