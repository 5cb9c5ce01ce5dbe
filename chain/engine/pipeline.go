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
	"time"

	"github.com/erigontech/dpos-engine/chain/evaluator"
	"github.com/erigontech/dpos-engine/chain/state"
	"github.com/erigontech/dpos-engine/chain/types"
	"github.com/erigontech/dpos-engine/chainconfig"
	"github.com/erigontech/dpos-engine/chainerr"
	"github.com/erigontech/dpos-engine/chainhash"
	"github.com/erigontech/dpos-engine/kv"
)

// ExtendChain applies block on top of the current committed head inside one
// kv write transaction: verify header, run the ordered apply steps, then
// commit (undo snapshot, flatten, fork bookkeeping, sanity check). Grounded
// end-to-end on original_source's chain_database::extend_chain.
//
// ExtendChain assumes block.Header.Previous is the current head; PushBlock
// and switchToFork are responsible for arranging that (popping/switching) before
// calling it, the same division of labor chain_database keeps between
// extend_chain and push_block/switch_to_fork.
func (e *Engine) ExtendChain(tx kv.RwTx, block types.FullBlock) error {
	committed := state.NewCommittedRwState(tx)
	headReader := state.View(committed)

	headNum, err := headReader.GetHeadBlockNum()
	if err != nil {
		return err
	}
	headID, ok, err := headReader.GetBlockIDAtHeight(headNum)
	if err != nil {
		return err
	}
	if headNum != 0 && !ok {
		return chainerr.New(chainerr.Corruption, "engine: missing head block id")
	}

	if err := e.verifyHeader(headReader, headNum, headID, block.Header); err != nil {
		return err
	}

	overlay := state.NewOverlay(committed)
	st := state.View(overlay)

	if err := e.runApplySteps(tx, st, block); err != nil {
		return err
	}

	// The processed-transaction/location index and the pending-pool removal
	// must land in the overlay, not directly on the committed tx, so that
	// GetUndoState below captures them and popBlock can reverse them — spec.md
	// §4.6 step 2's "record in the overlay's location index."
	for i, rawTx := range block.Transactions {
		if err := st.MarkTransactionProcessed(rawTx.ID, types.TransactionLocation{
			BlockNum:       block.Header.BlockNum,
			TransactionIdx: uint32(i),
		}); err != nil {
			return err
		}
		if err := st.RemovePendingTransaction(rawTx.ID); err != nil {
			return err
		}
	}

	undo := overlay.GetUndoState()
	if err := overlay.ApplyChanges(); err != nil {
		return chainerr.Wrap(chainerr.Io, err, "engine: flatten overlay")
	}

	blockID := block.Header.ID()
	if err := tx.Put(kv.UndoState, blockID[:], undo.Encode()); err != nil {
		return chainerr.Wrap(chainerr.Io, err, "engine: persist undo state")
	}

	tree, err := newForkTree(headReader)
	if err != nil {
		return err
	}
	if err := tree.StoreAndIndex(blockID, block.Header); err != nil {
		return err
	}
	if err := tree.MarkValid(blockID); err != nil {
		return err
	}
	if err := tree.MarkIncluded(blockID, true); err != nil {
		return err
	}

	if err := headReader.PutBlock(blockID, block); err != nil {
		return err
	}
	if err := headReader.PutBlockIDAtHeight(block.Header.BlockNum, blockID); err != nil {
		return err
	}
	if err := headReader.PutHeadBlockNum(block.Header.BlockNum); err != nil {
		return err
	}

	if err := e.sanityCheck(tx, headReader); err != nil {
		return err
	}

	e.pool.dropIncluded(block.Transactions)
	e.observer.BlockApplied(block)
	e.observer.StateChanged()
	return nil
}

// verifyHeader checks every field spec.md §4.6 names, grounded on
// original_source's verify_header. The clock-skew check compares against
// wall-clock time; historical blocks replayed during a reorg are always in
// the past and so never trip it.
func (e *Engine) verifyHeader(st state.Reader, headNum uint64, headID types.BlockID, h types.BlockHeader) error {
	if h.BlockNum != headNum+1 {
		return chainerr.New(chainerr.ConsensusViolation, "engine: block_num is not head+1")
	}
	if headNum > 0 && h.Previous != headID {
		return chainerr.New(chainerr.ConsensusViolation, "engine: previous does not match head")
	}
	if len(h.Signature) != chainconfig.SignatureSize {
		return chainerr.New(chainerr.ConsensusViolation, "engine: signature has the wrong length")
	}

	if h.Timestamp%chainconfig.BlockIntervalSec != 0 {
		return chainerr.New(chainerr.ConsensusViolation, "engine: timestamp not aligned to block interval")
	}
	if now := time.Now().Unix(); h.Timestamp > now+chainconfig.BlockIntervalSec/2 {
		return chainerr.New(chainerr.ConsensusViolation, "engine: timestamp too far in the future")
	}
	var headBlock types.FullBlock
	if headNum > 0 {
		var ok bool
		var err error
		headBlock, ok, err = st.GetBlock(headID)
		if err != nil {
			return err
		}
		if !ok {
			return chainerr.New(chainerr.Corruption, "engine: head block body missing")
		}
		if h.Timestamp <= headBlock.Header.Timestamp {
			return chainerr.New(chainerr.ConsensusViolation, "engine: timestamp does not advance")
		}
	}
	activeList, ok, err := st.GetActiveDelegateList()
	if err != nil {
		return err
	}
	if !ok || len(activeList.Delegates) == 0 {
		return chainerr.New(chainerr.Corruption, "engine: no active delegate list")
	}
	expected := signingDelegateForTimestamp(activeList, h.Timestamp)
	if h.SigningDelegateID != expected {
		return chainerr.New(chainerr.ConsensusViolation, "engine: signing delegate does not match its slot")
	}

	signer, ok, err := st.GetAccount(h.SigningDelegateID)
	if err != nil {
		return err
	}
	if !ok || signer.Delegate == nil {
		return chainerr.New(chainerr.ConsensusViolation, "engine: signing account is not a delegate")
	}

	// The transaction digest can only be checked once the block's own
	// transaction list is available, which runApplySteps does first thing.
	return nil
}

// transactionDigest hashes the ordered list of transaction ids, spec.md §6's
// merkle-ish tx digest. A flat sha256-of-concatenation stands in for a full
// merkle tree, which buys nothing extra since this engine doesn't serve
// merkle proofs to light clients (out of scope per spec.md §1).
func transactionDigest(blockNum uint64, ids []chainhash.Hash256) chainhash.Hash256 {
	buf := make([]byte, 0, 32*len(ids)+8)
	buf = append(buf, types.BeUint64Key(blockNum)...)
	for _, id := range ids {
		buf = append(buf, id[:]...)
	}
	return chainhash.SHA256(buf)
}

// runApplySteps executes the ordered steps of spec.md §4.6 over overlay st:
// delegate production accounting, transaction evaluation, delegate payout,
// active-set rotation, random-seed mix. tx is the underlying committed
// transaction, used only by the rotation step to range-scan the vote index
// (state.Overlay does not support cursor iteration — see rotation.go).
func (e *Engine) runApplySteps(tx kv.RwTx, st state.Reader, block types.FullBlock) error {
	ids := make([]chainhash.Hash256, len(block.Transactions))
	for i, tx := range block.Transactions {
		ids[i] = tx.ID
	}
	wantDigest := transactionDigest(block.Header.BlockNum, ids)
	if block.Header.TransactionDigest != wantDigest {
		return chainerr.New(chainerr.ConsensusViolation, "engine: transaction digest mismatch")
	}

	prevRate, err := previousFeeRate(st, block.Header)
	if err != nil {
		return err
	}
	if block.Header.FeeRate != nextFee(prevRate, len(block.Encode())) {
		return chainerr.New(chainerr.ConsensusViolation, "engine: fee_rate does not match next_fee")
	}

	if err := e.updateDelegateProductionInfo(st, block.Header); err != nil {
		return err
	}

	evalState := &evaluator.EvaluationState{State: st, BlockNum: block.Header.BlockNum}
	for _, tx := range block.Transactions {
		known, err := st.IsKnownTransaction(tx.ID)
		if err != nil {
			return err
		}
		if known {
			return chainerr.New(chainerr.ConsensusViolation, "engine: duplicate transaction")
		}
		if err := e.registry.ApplyTransaction(evalState, tx); err != nil {
			return err
		}
	}

	if err := e.payDelegate(st, block.Header, evalState.TotalFees); err != nil {
		return err
	}

	if block.Header.BlockNum%uint64(chainconfig.NDelegates) == 0 {
		if err := e.updateActiveDelegateList(tx, st); err != nil {
			return err
		}
	}

	return e.updateRandomSeed(st, block.Header)
}

// previousFeeRate returns the fee_rate carried by the block directly below
// block.BlockNum, or 0 at genesis.
func previousFeeRate(st state.Reader, h types.BlockHeader) (int64, error) {
	if h.BlockNum <= 1 {
		return 0, nil
	}
	prevID, ok, err := st.GetBlockIDAtHeight(h.BlockNum - 1)
	if err != nil || !ok {
		return 0, err
	}
	prev, ok, err := st.GetBlock(prevID)
	if err != nil || !ok {
		return 0, err
	}
	return prev.Header.FeeRate, nil
}

// signingDelegateForTimestamp returns the delegate scheduled for timestamp
// under the active set's round-robin slot assignment (spec.md §4.6 step 1),
// grounded on original_source's get_signing_delegate_id.
func signingDelegateForTimestamp(activeList types.ActiveDelegateList, timestamp int64) types.AccountID {
	slot := (timestamp / chainconfig.BlockIntervalSec) % int64(len(activeList.Delegates))
	return activeList.Delegates[slot]
}

// updateDelegateProductionInfo checks the producing delegate's secret
// reveal against its previous commitment and records the new commitment,
// then walks every BLOCK_INTERVAL_SEC slot between the previous block's
// timestamp and this one, crediting blocks_missed to whichever delegate was
// scheduled at each skipped slot and blocks_produced to the one that
// actually signed. Grounded on original_source's
// update_delegate_production_info (chain_database.cpp:462-509) — the two
// steps are independent there too (a scoped block for the secret check,
// then a separate do-while walking timestamps).
func (e *Engine) updateDelegateProductionInfo(st state.Reader, h types.BlockHeader) error {
	activeList, ok, err := st.GetActiveDelegateList()
	if err != nil {
		return err
	}
	if !ok || len(activeList.Delegates) == 0 {
		return chainerr.New(chainerr.Corruption, "engine: no active delegate list")
	}

	signingID := signingDelegateForTimestamp(activeList, h.Timestamp)
	rec, ok, err := st.GetAccount(signingID)
	if err != nil {
		return err
	}
	if !ok || rec.Delegate == nil {
		return chainerr.New(chainerr.ConsensusViolation, "engine: unknown signing delegate")
	}
	if rec.Delegate.BlocksProduced > 0 {
		if rec.Delegate.SecretHashCommit != chainhash.RIPEMD160(h.Secret[:]) {
			return chainerr.New(chainerr.ConsensusViolation, "engine: secret does not match prior commitment")
		}
	}
	rec.Delegate.SecretHashCommit = h.NextSecretHash
	rec.Delegate.LastBlockNum = h.BlockNum
	if err := st.PutAccount(rec); err != nil {
		return err
	}

	var prevTimestamp int64
	if h.BlockNum <= 1 {
		prevTimestamp = h.Timestamp - chainconfig.BlockIntervalSec
	} else {
		prevID, ok, err := st.GetBlockIDAtHeight(h.BlockNum - 1)
		if err != nil {
			return err
		}
		if !ok {
			return chainerr.New(chainerr.Corruption, "engine: missing previous block id")
		}
		prevBlock, ok, err := st.GetBlock(prevID)
		if err != nil {
			return err
		}
		if !ok {
			return chainerr.New(chainerr.Corruption, "engine: missing previous block body")
		}
		prevTimestamp = prevBlock.Header.Timestamp
	}

	ts := prevTimestamp
	for {
		ts += chainconfig.BlockIntervalSec

		scheduledID := signingDelegateForTimestamp(activeList, ts)
		scheduled, ok, err := st.GetAccount(scheduledID)
		if err != nil {
			return err
		}
		if !ok || scheduled.Delegate == nil {
			return chainerr.New(chainerr.Corruption, "engine: scheduled delegate missing")
		}
		if ts != h.Timestamp {
			scheduled.Delegate.BlocksMissed++
		} else {
			scheduled.Delegate.BlocksProduced++
		}
		if err := st.PutAccount(scheduled); err != nil {
			return err
		}

		if ts == h.Timestamp {
			break
		}
	}

	return nil
}

// payDelegate credits block.delegate_pay_rate to the producing delegate's
// pay_balance and to its votes_for, and adds it to the base asset's
// current_share_supply — spec.md §4.6 step 3, grounded exactly on
// original_source's pay_delegate (pay_balance and votes_for are fields on
// delegate_info, not a separate balance_record).
func (e *Engine) payDelegate(st state.Reader, h types.BlockHeader, fees int64) error {
	rec, ok, err := st.GetAccount(h.SigningDelegateID)
	if err != nil {
		return err
	}
	if !ok || rec.Delegate == nil {
		return chainerr.New(chainerr.Corruption, "engine: signing delegate vanished mid-apply")
	}

	pay := int64(h.DelegatePayRate)
	if pay <= 0 {
		return nil
	}

	if err := st.RemoveDelegateVoteIndex(rec.NetVotes(), rec.ID); err != nil {
		return err
	}
	rec.Delegate.PayBalance += pay
	rec.Delegate.VotesFor += pay
	if err := st.PutAccount(rec); err != nil {
		return err
	}
	if err := st.IndexDelegateVote(rec.NetVotes(), rec.ID); err != nil {
		return err
	}

	asset, ok, err := st.GetAsset(0)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.Corruption, "engine: base asset missing")
	}
	asset.CurrentShareSupply += pay
	return st.PutAsset(asset)
}

// sanityCheck re-derives the total share supply and vote totals by scanning
// the balance and account tables and checks them against the asset record,
// grounded exactly on original_source's chain_database::sanity_check — the
// supply/vote conservation laws of spec.md §8. It runs over tx directly
// (not through an overlay) since the overlay has already been flattened by
// the time ExtendChain calls this.
func (e *Engine) sanityCheck(tx kv.RwTx, st state.Reader) error {
	asset, ok, err := st.GetAsset(0)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.Corruption, "engine: base asset missing")
	}
	if asset.CurrentShareSupply > asset.MaximumShareSupply {
		return chainerr.New(chainerr.Corruption, "engine: share supply exceeds maximum")
	}

	var totalBaseShares int64
	bc, err := tx.Cursor(kv.Balance)
	if err != nil {
		return err
	}
	defer bc.Close()
	if err := bc.Seek(nil); err != nil {
		return err
	}
	for bc.Valid() {
		rec, err := types.DecodeBalanceRecord(bc.Value())
		if err != nil {
			return chainerr.Wrap(chainerr.Corruption, err, "engine: sanity check decode balance")
		}
		if rec.AssetID == 0 {
			if rec.Amount < 0 {
				return chainerr.New(chainerr.Corruption, "engine: negative balance")
			}
			totalBaseShares += rec.Amount
		}
		if err := bc.Next(); err != nil {
			return err
		}
	}

	var totalVotes int64
	ac, err := tx.Cursor(kv.Account)
	if err != nil {
		return err
	}
	defer ac.Close()
	if err := ac.Seek(nil); err != nil {
		return err
	}
	for ac.Valid() {
		rec, err := types.DecodeAccountRecord(ac.Value())
		if err != nil {
			return chainerr.Wrap(chainerr.Corruption, err, "engine: sanity check decode account")
		}
		if rec.Delegate != nil {
			totalBaseShares += rec.Delegate.PayBalance
			totalVotes += rec.Delegate.VotesFor + rec.Delegate.VotesAgainst
		}
		if err := ac.Next(); err != nil {
			return err
		}
	}

	if totalVotes != totalBaseShares {
		return chainerr.New(chainerr.Corruption, "engine: total delegate votes does not match total base shares")
	}
	if asset.CurrentShareSupply != totalBaseShares {
		return chainerr.New(chainerr.Corruption, "engine: current_share_supply does not match total base shares")
	}
	return nil
}
