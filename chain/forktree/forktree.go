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

// Package forktree maintains the DAG of every known block, linked or not,
// valid or not (spec.md §4.5, C5), grounded on original_source's
// block_fork_data and chain_database's store_and_index / mark_invalid /
// mark_included / get_fork_history.
package forktree

import (
	"github.com/erigontech/dpos-engine/chain/state"
	"github.com/erigontech/dpos-engine/chain/types"
	"github.com/erigontech/dpos-engine/chainerr"
	"github.com/erigontech/dpos-engine/kv"
	lru "github.com/hashicorp/golang-lru/v2"
	mapset "github.com/deckarep/golang-set/v2"
)

// Tree reads and writes ForkNode records through a state.Reader, backed by
// an LRU of recently touched nodes so hot reorg paths (walking a fork back
// to the common ancestor) don't round-trip kv for every hop.
type Tree struct {
	st    state.Reader
	cache *lru.Cache[types.BlockID, types.ForkNode]
}

// New builds a Tree over st with a bounded node cache of size cacheSize.
func New(st state.Reader, cacheSize int) (*Tree, error) {
	c, err := lru.New[types.BlockID, types.ForkNode](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Tree{st: st, cache: c}, nil
}

func (t *Tree) get(id types.BlockID) (types.ForkNode, bool, error) {
	if n, ok := t.cache.Get(id); ok {
		return n, true, nil
	}
	v, ok, err := t.st.Raw().Get(kv.Fork, id[:])
	if err != nil || !ok {
		return types.ForkNode{}, ok, err
	}
	n, err := types.DecodeForkNode(v)
	if err != nil {
		return types.ForkNode{}, false, err
	}
	t.cache.Add(id, n)
	return n, true, nil
}

func (t *Tree) put(n types.ForkNode) error {
	t.cache.Add(n.BlockID, n)
	return t.st.Raw().Put(kv.Fork, n.BlockID[:], n.Encode())
}

// Get returns the fork node for id.
func (t *Tree) Get(id types.BlockID) (types.ForkNode, bool, error) { return t.get(id) }

// StoreAndIndex records a newly seen block header in the fork tree: it
// creates (or updates) id's own node, appends id to its previous block's
// next_blocks set, and marks id linked iff its previous block is itself
// linked (or is the null block, i.e. genesis). Grounded on
// original_source's chain_database::store_and_index.
func (t *Tree) StoreAndIndex(id types.BlockID, header types.BlockHeader) error {
	linked := header.Previous.IsNull()
	if !linked {
		prevNode, ok, err := t.get(header.Previous)
		if err != nil {
			return err
		}
		linked = ok && prevNode.IsLinked
	}

	node, ok, err := t.get(id)
	if err != nil {
		return err
	}
	if !ok {
		node = types.ForkNode{BlockID: id, BlockNum: header.BlockNum}
	}
	node.IsLinked = linked
	if err := t.put(node); err != nil {
		return err
	}

	if !header.Previous.IsNull() {
		prevNode, ok, err := t.get(header.Previous)
		if err != nil {
			return err
		}
		if !ok {
			prevNode = types.ForkNode{BlockID: header.Previous, BlockNum: header.BlockNum - 1}
		}
		if !containsBlockID(prevNode.NextBlocks, id) {
			prevNode.NextBlocks = append(prevNode.NextBlocks, id)
		}
		if err := t.put(prevNode); err != nil {
			return err
		}
	}

	if err := t.st.Raw().Put(kv.ForkNumber, types.BeUint64Key(header.BlockNum), id[:]); err != nil {
		return err
	}

	if linked {
		return t.propagateLinked(id)
	}
	return nil
}

func containsBlockID(ids []types.BlockID, target types.BlockID) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

// propagateLinked runs a BFS over next_blocks marking every descendant of a
// newly-linked block as linked too, since a block can only become linked
// once its previous block is — mirroring chain_database's recursive
// link-fixup when a missing parent finally arrives.
func (t *Tree) propagateLinked(root types.BlockID) error {
	queue := []types.BlockID{root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		node, ok, err := t.get(id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		for _, next := range node.NextBlocks {
			nextNode, ok, err := t.get(next)
			if err != nil {
				return err
			}
			if !ok || nextNode.IsLinked {
				continue
			}
			nextNode.IsLinked = true
			if err := t.put(nextNode); err != nil {
				return err
			}
			queue = append(queue, next)
		}
	}
	return nil
}

// MarkInvalid sets id's is_valid to Invalid with reason, then BFS-propagates
// Invalid to every descendant — an invalid block can never produce a valid
// chain on top of it. Grounded on original_source's mark_invalid.
func (t *Tree) MarkInvalid(id types.BlockID, reason string) error {
	node, ok, err := t.get(id)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.NotFound, "forktree: unknown block")
	}
	node.IsValid = types.Invalid
	node.InvalidReason = reason
	if err := t.put(node); err != nil {
		return err
	}

	queue := append([]types.BlockID(nil), node.NextBlocks...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n, ok, err := t.get(id)
		if err != nil {
			return err
		}
		if !ok || n.IsValid == types.Invalid {
			continue
		}
		n.IsValid = types.Invalid
		n.InvalidReason = "ancestor invalid: " + reason
		if err := t.put(n); err != nil {
			return err
		}
		queue = append(queue, n.NextBlocks...)
	}
	return nil
}

// MarkValid sets id's is_valid to Valid without touching descendants —
// validity only propagates downward as Invalid; a descendant of a valid
// block must still pass its own header/evaluator checks.
func (t *Tree) MarkValid(id types.BlockID) error {
	node, ok, err := t.get(id)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.NotFound, "forktree: unknown block")
	}
	node.IsValid = types.Valid
	return t.put(node)
}

// MarkIncluded records that id is on the canonical chain. Setting included
// to true also marks the node valid, per spec.md §4.5.
func (t *Tree) MarkIncluded(id types.BlockID, included bool) error {
	node, ok, err := t.get(id)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.NotFound, "forktree: unknown block")
	}
	node.IsIncluded = included
	if included {
		node.IsValid = types.Valid
	}
	return t.put(node)
}

// GetForkHistory walks backward from id to the first included (canonical)
// ancestor, or to the null genesis sentinel when no ancestor is included,
// and returns the path from there to id, oldest first.
// Grounded on original_source's get_fork_history.
func (t *Tree) GetForkHistory(id types.BlockID) ([]types.BlockID, error) {
	var path []types.BlockID
	cur := id
	for {
		node, ok, err := t.get(cur)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, chainerr.New(chainerr.NotFound, "forktree: unknown block in history walk")
		}
		if !node.IsLinked {
			return nil, chainerr.New(chainerr.Corruption, "forktree: history walk hit a non-linked block")
		}
		path = append(path, cur)
		if node.IsIncluded {
			break
		}
		if cur == (types.BlockID{}) {
			return nil, chainerr.New(chainerr.Corruption, "forktree: history walk reached null without an included ancestor")
		}
		prev, err := t.previousOf(cur)
		if err != nil {
			return nil, err
		}
		if prev.IsNull() {
			// The genesis sentinel has no fork node of its own.
			path = append(path, prev)
			break
		}
		cur = prev
	}
	// reverse path to oldest-first
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

func (t *Tree) previousOf(id types.BlockID) (types.BlockID, error) {
	b, ok, err := t.st.GetBlock(id)
	if err != nil {
		return types.BlockID{}, err
	}
	if !ok {
		return types.BlockID{}, chainerr.New(chainerr.NotFound, "forktree: block body missing for history walk")
	}
	return b.Header.Previous, nil
}

// NextBlocksSet returns id's children as a set, for callers that need
// membership tests rather than ordered iteration (e.g. the reorg manager
// choosing among competing tips).
func NextBlocksSet(n types.ForkNode) mapset.Set[types.BlockID] {
	return mapset.NewSet(n.NextBlocks...)
}
