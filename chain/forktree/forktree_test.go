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

package forktree

import (
	"testing"

	"github.com/erigontech/dpos-engine/chain/state"
	"github.com/erigontech/dpos-engine/chain/types"
	"github.com/erigontech/dpos-engine/kv"
	"github.com/stretchr/testify/require"
)

func header(num uint64, prev types.BlockID, nonce byte) types.BlockHeader {
	h := types.BlockHeader{BlockNum: num, Previous: prev, Timestamp: int64(num)}
	h.Secret[0] = nonce
	return h
}

func withTree(t *testing.T, fn func(kv.RwTx, *Tree, state.Reader)) {
	t.Helper()
	db := kv.NewMemDB()
	require.NoError(t, db.Update(func(tx kv.RwTx) error {
		st := state.View(state.NewCommittedRwState(tx))
		tree, err := New(st, 64)
		require.NoError(t, err)
		fn(tx, tree, st)
		return nil
	}))
}

func TestStoreAndIndexLinksGenesisChild(t *testing.T) {
	withTree(t, func(tx kv.RwTx, tree *Tree, st state.Reader) {
		genesisHeader := header(0, types.BlockID{}, 1)
		genesisID := genesisHeader.ID()
		require.NoError(t, tree.StoreAndIndex(genesisID, genesisHeader))

		node, ok, err := tree.Get(genesisID)
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, node.IsLinked, "a block whose previous is null must be linked immediately")
	})
}

func TestStoreAndIndexPropagatesLinkedOnceParentArrives(t *testing.T) {
	withTree(t, func(tx kv.RwTx, tree *Tree, st state.Reader) {
		genesisHeader := header(0, types.BlockID{}, 1)
		genesisID := genesisHeader.ID()

		childHeader := header(1, genesisID, 2)
		childID := childHeader.ID()

		grandchildHeader := header(2, childID, 3)
		grandchildID := grandchildHeader.ID()

		// Store grandchild and child before genesis: neither can be linked yet.
		require.NoError(t, tree.StoreAndIndex(grandchildID, grandchildHeader))
		require.NoError(t, tree.StoreAndIndex(childID, childHeader))

		node, ok, err := tree.Get(childID)
		require.NoError(t, err)
		require.True(t, ok)
		require.False(t, node.IsLinked)

		// Once genesis arrives, both descendants should become linked via BFS
		// propagation.
		require.NoError(t, tree.StoreAndIndex(genesisID, genesisHeader))

		childNode, ok, err := tree.Get(childID)
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, childNode.IsLinked)

		grandchildNode, ok, err := tree.Get(grandchildID)
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, grandchildNode.IsLinked)
	})
}

func TestMarkInvalidPropagatesToDescendants(t *testing.T) {
	withTree(t, func(tx kv.RwTx, tree *Tree, st state.Reader) {
		genesisHeader := header(0, types.BlockID{}, 1)
		genesisID := genesisHeader.ID()
		childHeader := header(1, genesisID, 2)
		childID := childHeader.ID()
		grandchildHeader := header(2, childID, 3)
		grandchildID := grandchildHeader.ID()

		require.NoError(t, tree.StoreAndIndex(genesisID, genesisHeader))
		require.NoError(t, tree.StoreAndIndex(childID, childHeader))
		require.NoError(t, tree.StoreAndIndex(grandchildID, grandchildHeader))

		require.NoError(t, tree.MarkInvalid(childID, "bad signature"))

		childNode, ok, err := tree.Get(childID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, types.Invalid, childNode.IsValid)

		grandchildNode, ok, err := tree.Get(grandchildID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, types.Invalid, grandchildNode.IsValid, "invalidity must propagate to descendants")
	})
}

func TestMarkIncludedSetsValid(t *testing.T) {
	withTree(t, func(tx kv.RwTx, tree *Tree, st state.Reader) {
		genesisHeader := header(0, types.BlockID{}, 1)
		genesisID := genesisHeader.ID()
		require.NoError(t, tree.StoreAndIndex(genesisID, genesisHeader))

		require.NoError(t, tree.MarkIncluded(genesisID, true))
		node, ok, err := tree.Get(genesisID)
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, node.IsIncluded)
		require.Equal(t, types.Valid, node.IsValid, "including a block must also mark it valid")
	})
}

func TestGetForkHistoryWalksToIncludedAncestor(t *testing.T) {
	withTree(t, func(tx kv.RwTx, tree *Tree, st state.Reader) {
		genesisHeader := header(0, types.BlockID{}, 1)
		genesisID := genesisHeader.ID()
		childHeader := header(1, genesisID, 2)
		childID := childHeader.ID()
		grandchildHeader := header(2, childID, 3)
		grandchildID := grandchildHeader.ID()

		require.NoError(t, st.PutBlock(genesisID, types.FullBlock{Header: genesisHeader}))
		require.NoError(t, st.PutBlock(childID, types.FullBlock{Header: childHeader}))
		require.NoError(t, st.PutBlock(grandchildID, types.FullBlock{Header: grandchildHeader}))

		require.NoError(t, tree.StoreAndIndex(genesisID, genesisHeader))
		require.NoError(t, tree.StoreAndIndex(childID, childHeader))
		require.NoError(t, tree.StoreAndIndex(grandchildID, grandchildHeader))
		require.NoError(t, tree.MarkIncluded(genesisID, true))

		path, err := tree.GetForkHistory(grandchildID)
		require.NoError(t, err)
		require.Equal(t, []types.BlockID{genesisID, childID, grandchildID}, path)
	})
}

func TestGetForkHistoryRejectsNonLinkedBlock(t *testing.T) {
	withTree(t, func(tx kv.RwTx, tree *Tree, st state.Reader) {
		var missingParent types.BlockID
		missingParent[0] = 0xaa

		orphanHeader := header(5, missingParent, 7)
		orphanID := orphanHeader.ID()
		require.NoError(t, st.PutBlock(orphanID, types.FullBlock{Header: orphanHeader}))
		require.NoError(t, tree.StoreAndIndex(orphanID, orphanHeader))

		_, err := tree.GetForkHistory(orphanID)
		require.Error(t, err, "a block whose parent was never seen must not be linked")
	})
}
