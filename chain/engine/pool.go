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
	"sync"

	"github.com/erigontech/dpos-engine/chain/evaluator"
	"github.com/erigontech/dpos-engine/chain/state"
	"github.com/erigontech/dpos-engine/chain/types"
	"github.com/erigontech/dpos-engine/chainerr"
	"github.com/erigontech/dpos-engine/chainhash"
	"github.com/erigontech/dpos-engine/kv"
	"github.com/google/btree"
)

// feeIndexEntry is the in-memory fee-ranked key: total_fee desc, trx_id asc
// — ties broken by id so the order is total. Grounded on original_source's
// fee_index / pending_fee_index.
type feeIndexEntry struct {
	fee int64
	id  chainhash.Hash256
}

func lessFeeEntry(a, b feeIndexEntry) bool {
	if a.fee != b.fee {
		return a.fee > b.fee
	}
	for i := range a.id {
		if a.id[i] != b.id[i] {
			return a.id[i] < b.id[i]
		}
	}
	return false
}

// PendingTxPool is the in-memory fee-ranked index of speculatively
// evaluated pending transactions (C8). Admission re-evaluates the
// transaction against a throwaway overlay on top of the current committed
// state; only transactions that evaluate cleanly are admitted, matching
// original_source's store_pending_transaction.
type PendingTxPool struct {
	mu     sync.Mutex
	e      *Engine
	index  *btree.BTreeG[feeIndexEntry]
	txByID map[chainhash.Hash256]types.RawTransaction
}

func NewPendingTxPool(e *Engine) *PendingTxPool {
	return &PendingTxPool{
		e:      e,
		index:  btree.NewG[feeIndexEntry](32, lessFeeEntry),
		txByID: make(map[chainhash.Hash256]types.RawTransaction),
	}
}

// SubmitTransaction is the control-surface entry point for spec.md §4.8's
// store_pending_transaction: it runs under the engine's single-writer lock
// alongside PushBlock/GenerateBlock/PopBlock, then delegates to the pool's
// speculative-admission check.
func (e *Engine) SubmitTransaction(tx types.RawTransaction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.Submit(tx)
}

// Submit speculatively evaluates tx against the current committed head and,
// if it applies cleanly, admits it to the pool.
func (p *PendingTxPool) Submit(tx types.RawTransaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.txByID[tx.ID]; exists {
		return chainerr.New(chainerr.ConsensusViolation, "pool: transaction already pending")
	}

	var known bool
	err := p.e.readState(func(st state.Reader) error {
		var err error
		known, err = st.IsKnownTransaction(tx.ID)
		return err
	})
	if err != nil {
		return err
	}
	if known {
		return chainerr.New(chainerr.ConsensusViolation, "pool: transaction already included")
	}

	if err := p.e.db.View(func(kvTx kv.Tx) error {
		committed := state.NewCommittedState(kvTx)
		overlay := state.NewOverlay(committed)
		head, err := state.View(committed).GetHeadBlockNum()
		if err != nil {
			return err
		}
		evalState := &evaluator.EvaluationState{State: state.View(overlay), BlockNum: head + 1}
		return p.e.registry.ApplyTransaction(evalState, tx)
	}); err != nil {
		return err
	}

	p.index.ReplaceOrInsert(feeIndexEntry{fee: tx.TotalFee, id: tx.ID})
	p.txByID[tx.ID] = tx

	return p.e.db.Update(func(kvTx kv.RwTx) error {
		return state.View(state.NewCommittedRwState(kvTx)).StorePendingTransaction(tx.ID, tx.Encode())
	})
}

// dropIncluded removes every transaction in txs from the pool — called
// after a block including them commits.
func (p *PendingTxPool) dropIncluded(txs []types.RawTransaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, tx := range txs {
		p.remove(tx.ID, tx.TotalFee)
	}
}

func (p *PendingTxPool) remove(id chainhash.Hash256, fee int64) {
	p.index.Delete(feeIndexEntry{fee: fee, id: id})
	delete(p.txByID, id)
}

// PendingTransactions returns the pool's current fee-ranked candidates, the
// control surface's get_pending_transactions (spec.md §8 scenario 6).
func (e *Engine) PendingTransactions() []types.RawTransaction {
	return e.pool.FeeRanked()
}

// FeeRanked returns the pool's transactions in fee-ranked order (total_fee
// desc, trx_id asc), for the block producer's candidate walk.
func (p *PendingTxPool) FeeRanked() []types.RawTransaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.RawTransaction, 0, p.index.Len())
	p.index.Ascend(func(e feeIndexEntry) bool {
		out = append(out, p.txByID[e.id])
		return true
	})
	return out
}

// LoadFromStore scans kv.PendingTransaction and re-evaluates every
// persisted pending transaction against the current committed head. Those
// that still apply are admitted to the in-memory fee index; those that no
// longer apply are logged and left in storage untouched, just absent from
// the index — spec.md §4.8's "re-evaluated on open" rule, grounded on
// original_source's reload of _pending_transaction_db at chain_database
// construction time.
func (p *PendingTxPool) LoadFromStore() error {
	return p.e.db.View(func(kvTx kv.Tx) error {
		committed := state.NewCommittedState(kvTx)
		head, err := state.View(committed).GetHeadBlockNum()
		if err != nil {
			return err
		}

		c, err := kvTx.Cursor(kv.PendingTransaction)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Seek(nil); err != nil {
			return err
		}
		for c.Valid() {
			raw := append([]byte(nil), c.Value()...)
			tx, err := types.DecodeRawTransaction(raw)
			if err != nil {
				return chainerr.Wrap(chainerr.Corruption, err, "pool: decode persisted pending transaction")
			}

			overlay := state.NewOverlay(committed)
			evalState := &evaluator.EvaluationState{State: state.View(overlay), BlockNum: head + 1}
			if err := p.e.registry.ApplyTransaction(evalState, tx); err == nil {
				p.mu.Lock()
				p.txByID[tx.ID] = tx
				p.index.ReplaceOrInsert(feeIndexEntry{fee: tx.TotalFee, id: tx.ID})
				p.mu.Unlock()
			} else if p.e.log != nil {
				p.e.log.Infow("dropping stale pending transaction on reload", "tx", tx.ID, "err", err)
			}

			if err := c.Next(); err != nil {
				return err
			}
		}
		return nil
	})
}

// readmitFromTx re-evaluates txs against the state visible through tx and
// admits any that still apply to the in-memory fee index. Unlike Reopen, it
// takes an already-open write transaction instead of starting a new one —
// popBlock calls this while still holding the transaction it used to undo
// the popped block, so opening a fresh db.View here would deadlock against
// that write lock. Grounded on original_source's requeue of a popped
// block's transactions back into the pending pool.
func (p *PendingTxPool) readmitFromTx(tx kv.RwTx, head uint64, txs []types.RawTransaction) error {
	committed := state.NewCommittedState(tx)
	for _, rtx := range txs {
		overlay := state.NewOverlay(committed)
		evalState := &evaluator.EvaluationState{State: state.View(overlay), BlockNum: head + 1}
		if err := p.e.registry.ApplyTransaction(evalState, rtx); err != nil {
			if p.e.log != nil {
				p.e.log.Infow("dropping popped transaction that no longer applies", "tx", rtx.ID, "err", err)
			}
			continue
		}
		p.mu.Lock()
		p.txByID[rtx.ID] = rtx
		p.index.ReplaceOrInsert(feeIndexEntry{fee: rtx.TotalFee, id: rtx.ID})
		p.mu.Unlock()
	}
	return nil
}

// Reopen re-evaluates every pending transaction against the current
// committed head, dropping any that no longer apply — e.g. because a
// reorg popped the block that funded a now-spent balance. Grounded on
// original_source's re-evaluation of the pending pool on chain_database
// reopen/reorg.
func (p *PendingTxPool) Reopen() error {
	p.mu.Lock()
	txs := make([]types.RawTransaction, 0, len(p.txByID))
	for _, tx := range p.txByID {
		txs = append(txs, tx)
	}
	p.mu.Unlock()

	var stillValid []types.RawTransaction
	err := p.e.db.View(func(kvTx kv.Tx) error {
		committed := state.NewCommittedState(kvTx)
		head, err := state.View(committed).GetHeadBlockNum()
		if err != nil {
			return err
		}
		for _, tx := range txs {
			overlay := state.NewOverlay(committed)
			evalState := &evaluator.EvaluationState{State: state.View(overlay), BlockNum: head + 1}
			if err := p.e.registry.ApplyTransaction(evalState, tx); err == nil {
				stillValid = append(stillValid, tx)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	stale := make(map[chainhash.Hash256]int64, len(p.txByID))
	for _, tx := range txs {
		stale[tx.ID] = tx.TotalFee
	}
	for _, tx := range stillValid {
		delete(stale, tx.ID)
	}
	for id, fee := range stale {
		p.remove(id, fee)
	}
	return nil
}
