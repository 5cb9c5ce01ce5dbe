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

package engine

import (
	"github.com/erigontech/dpos-engine/chain/state"
	"github.com/erigontech/dpos-engine/chain/types"
	"github.com/erigontech/dpos-engine/chainerr"
	"github.com/erigontech/dpos-engine/kv"
)

// PushBlock is the public entry point for a newly received block: it
// stores the block body and records the block in the fork tree regardless
// of validity, applies it
// immediately if it extends the current head, and otherwise evaluates
// whether the fork it belongs to should become the new head. Grounded on
// original_source's chain_database::push_block.
func (e *Engine) PushBlock(block types.FullBlock) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	blockID := block.Header.ID()

	return e.db.Update(func(tx kv.RwTx) error {
		committed := state.View(state.NewCommittedRwState(tx))
		tree, err := newForkTree(committed)
		if err != nil {
			return err
		}
		if err := committed.PutBlock(blockID, block); err != nil {
			return err
		}
		if err := tree.StoreAndIndex(blockID, block.Header); err != nil {
			return err
		}

		headNum, err := committed.GetHeadBlockNum()
		if err != nil {
			return err
		}
		headID, _, err := committed.GetBlockIDAtHeight(headNum)
		if err != nil {
			return err
		}

		if headNum == 0 || block.Header.Previous == headID {
			if err := e.ExtendChain(tx, block); err != nil {
				_ = tree.MarkInvalid(blockID, err.Error())
				return err
			}
			return nil
		}

		// A fork block: compare its claimed height against the current
		// head. A strictly taller fork wins ties go to whichever chain is
		// already canonical, matching original_source's preference for
		// the incumbent on equal length.
		if block.Header.BlockNum > headNum {
			return e.switchToFork(tx, blockID)
		}
		return nil
	})
}

// switchToFork walks newHead's fork history back to the common ancestor
// with the current head, pops the current chain down to that ancestor, and
// re-extends up through newHead's path. If any block along the new path
// fails to apply, it rolls back to the common ancestor and re-extends the
// original chain instead, so a bad fork candidate never leaves the store
// stuck mid-reorg. Grounded on original_source's switch_to_fork.
func (e *Engine) switchToFork(tx kv.RwTx, newHead types.BlockID) error {
	committed := state.View(state.NewCommittedRwState(tx))
	tree, err := newForkTree(committed)
	if err != nil {
		return err
	}

	newPath, err := tree.GetForkHistory(newHead)
	if err != nil {
		return err
	}
	if len(newPath) == 0 {
		return chainerr.New(chainerr.Corruption, "engine: empty fork history")
	}
	commonAncestor := newPath[0]

	headNum, err := committed.GetHeadBlockNum()
	if err != nil {
		return err
	}
	oldPath := make([]types.FullBlock, 0, headNum)
	var poppedIDs []types.BlockID
	for {
		headID, ok, err := committed.GetBlockIDAtHeight(headNum)
		if err != nil {
			return err
		}
		if !ok || headID == commonAncestor {
			break
		}
		block, ok, err := committed.GetBlock(headID)
		if err != nil {
			return err
		}
		if !ok {
			return chainerr.New(chainerr.Corruption, "engine: missing block body during reorg")
		}
		oldPath = append(oldPath, block)
		if err := e.popBlock(tx); err != nil {
			return err
		}
		poppedIDs = append(poppedIDs, headID)
		headNum--
	}

	applyErr := e.applyForkPath(tx, newPath[1:])
	if applyErr == nil {
		for _, id := range poppedIDs {
			_ = tree.MarkIncluded(id, false)
		}
		return nil
	}

	// Roll back: pop whatever of the new path did apply, then restore the
	// original chain we just popped, oldest first.
	for {
		num, err := committed.GetHeadBlockNum()
		if err != nil {
			return err
		}
		id, ok, err := committed.GetBlockIDAtHeight(num)
		if err != nil {
			return err
		}
		if !ok || id == commonAncestor {
			break
		}
		if err := e.popBlock(tx); err != nil {
			return chainerr.Wrap(chainerr.Corruption, err, "engine: failed to pop partial fork after failed reorg")
		}
	}
	for i := len(oldPath) - 1; i >= 0; i-- {
		if err := e.ExtendChain(tx, oldPath[i]); err != nil {
			return chainerr.Wrap(chainerr.Corruption, err, "engine: failed to restore original chain after failed reorg")
		}
	}
	return applyErr
}

func (e *Engine) applyForkPath(tx kv.RwTx, path []types.BlockID) error {
	committed := state.View(state.NewCommittedRwState(tx))
	for _, id := range path {
		block, ok, err := committed.GetBlock(id)
		if err != nil {
			return err
		}
		if !ok {
			return chainerr.New(chainerr.Corruption, "engine: fork path references unknown block body")
		}
		if err := e.ExtendChain(tx, block); err != nil {
			return err
		}
	}
	return nil
}

// PopBlock removes the current head block, reverting its undo state and
// returning its transactions to the pending pool. Grounded on
// original_source's pop_block.
func (e *Engine) PopBlock() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.db.Update(func(tx kv.RwTx) error {
		return e.popBlock(tx)
	})
}

func (e *Engine) popBlock(tx kv.RwTx) error {
	committed := state.NewCommittedRwState(tx)
	st := state.View(committed)

	headNum, err := st.GetHeadBlockNum()
	if err != nil {
		return err
	}
	if headNum == 0 {
		return chainerr.New(chainerr.InvalidArgument, "engine: cannot pop the genesis block")
	}
	headID, ok, err := st.GetBlockIDAtHeight(headNum)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.Corruption, "engine: missing head block id")
	}
	block, ok, err := st.GetBlock(headID)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.Corruption, "engine: missing head block body")
	}

	undoBytes, ok, err := tx.Get(kv.UndoState, headID[:])
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.Corruption, "engine: missing undo state for head block")
	}
	undo, err := state.DecodeUndoState(undoBytes)
	if err != nil {
		return err
	}
	if err := undo.Apply(committed); err != nil {
		return err
	}

	if err := st.PutHeadBlockNum(headNum - 1); err != nil {
		return err
	}
	if err := st.RemoveBlockIDAtHeight(headNum); err != nil {
		return err
	}

	tree, err := newForkTree(st)
	if err != nil {
		return err
	}
	if err := tree.MarkIncluded(headID, false); err != nil {
		return err
	}

	// undo.Apply above already restored each transaction's pending-pool entry
	// and removed its processed-index entry (both are captured in the
	// overlay's undo log at ExtendChain time), so the store itself needs no
	// further repair here — only the in-memory fee index needs readmitting.
	if err := e.pool.readmitFromTx(tx, headNum-1, block.Transactions); err != nil {
		return err
	}

	e.observer.StateChanged()
	return nil
}
