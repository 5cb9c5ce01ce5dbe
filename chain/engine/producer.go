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
	"github.com/erigontech/dpos-engine/chain/evaluator"
	"github.com/erigontech/dpos-engine/chain/state"
	"github.com/erigontech/dpos-engine/chain/types"
	"github.com/erigontech/dpos-engine/chainconfig"
	"github.com/erigontech/dpos-engine/chainerr"
	"github.com/erigontech/dpos-engine/chainhash"
	"github.com/erigontech/dpos-engine/kv"
)

// GenerateBlock builds a candidate block for timestamp from the current
// committed head and the pending pool's fee-ranked transactions, skipping
// any candidate that would push the summed transaction size past the size
// limit (chainconfig.MaxBlockSize unless SetMaxBlockSize overrides it) and
// going on with the next one. It does not sign or
// commit the result — the caller (typically a delegate's signing key
// holder) signs BlockHeader.Signature and then calls PushBlock. Grounded
// on original_source's chain_database::generate_block.
func (e *Engine) GenerateBlock(timestamp int64, secret, nextSecretHash chainhash.Hash160) (types.FullBlock, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var block types.FullBlock
	err := e.db.View(func(tx kv.Tx) error {
		committed := state.NewCommittedState(tx)
		head := state.View(committed)

		headNum, err := head.GetHeadBlockNum()
		if err != nil {
			return err
		}
		headID, ok, err := head.GetBlockIDAtHeight(headNum)
		if err != nil {
			return err
		}
		var headHeader types.BlockHeader
		if ok {
			headBlock, ok2, err := head.GetBlock(headID)
			if err != nil {
				return err
			}
			if ok2 {
				headHeader = headBlock.Header
			}
		}

		activeList, ok, err := head.GetActiveDelegateList()
		if err != nil {
			return err
		}
		if !ok || len(activeList.Delegates) == 0 {
			return chainerr.New(chainerr.Corruption, "engine: no active delegate list")
		}
		slot := (timestamp / chainconfig.BlockIntervalSec) % int64(len(activeList.Delegates))
		signingDelegate := activeList.Delegates[slot]

		outer := state.NewOverlay(committed)

		var (
			txs        []types.RawTransaction
			totalFees  int64
			cumSize    int
		)
		for _, candidate := range e.pool.FeeRanked() {
			nested := state.NewOverlay(outer)
			nestedReader := state.View(nested)
			evalState := &evaluator.EvaluationState{State: nestedReader, BlockNum: headNum + 1}

			if err := e.registry.ApplyTransaction(evalState, candidate); err != nil {
				continue // candidate does not apply against this speculative state
			}

			size := len(candidate.Encode())
			if cumSize+size > e.maxBlockSize() {
				continue
			}
			if err := nested.ApplyChanges(); err != nil {
				return chainerr.Wrap(chainerr.Io, err, "engine: flatten nested overlay")
			}
			txs = append(txs, candidate)
			totalFees += evalState.TotalFees
			cumSize += size
		}

		ids := make([]chainhash.Hash256, len(txs))
		for i, t := range txs {
			ids[i] = t.ID
		}

		header := types.BlockHeader{
			BlockNum:          headNum + 1,
			Previous:          headID,
			Timestamp:         timestamp,
			SigningDelegateID: signingDelegate,
			Secret:            secret,
			NextSecretHash:    nextSecretHash,
			TransactionDigest: transactionDigest(headNum+1, ids),
		}
		header.DelegatePayRate = uint32(nextDelegatePay(int64(headHeader.DelegatePayRate), totalFees))

		// fee_rate must be derived from the same serialized size ExtendChain
		// will recompute at validation time (spec.md §4.6): block.Encode()
		// of the full block, not just the summed candidate tx sizes. FeeRate
		// is fixed-width and Signature is chainconfig.SignatureSize bytes by
		// convention (see its doc comment), so encoding with a placeholder
		// signature of that length gives the same size the final, signed
		// block will have.
		header.Signature = make([]byte, chainconfig.SignatureSize)
		candidate := types.FullBlock{Header: header, Transactions: txs}
		header.FeeRate = nextFee(headHeader.FeeRate, len(candidate.Encode()))
		header.Signature = nil

		// outer is speculative admission state only; it is discarded here and
		// never flattened into the committed store. ExtendChain rebuilds its
		// own overlay from scratch once the caller signs and pushes.
		block = types.FullBlock{Header: header, Transactions: txs}
		return nil
	})
	return block, err
}
