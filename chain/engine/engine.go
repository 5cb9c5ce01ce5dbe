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

// Package engine implements the block pipeline (C6), reorg manager (C7),
// pending transaction pool (C8) and block producer (C9) of spec.md §4, plus
// the control surface (Open/Close/SetObserver/ExportForkGraph) of spec.md
// §6. It is the one package that wires chain/state, chain/evaluator,
// chain/forktree and chain/genesis together, grounded throughout on
// original_source's chain_database.cpp/.hpp.
package engine

import (
	"sync"

	"github.com/erigontech/dpos-engine/chain/evaluator"
	"github.com/erigontech/dpos-engine/chain/forktree"
	"github.com/erigontech/dpos-engine/chain/genesis"
	"github.com/erigontech/dpos-engine/chain/state"
	"github.com/erigontech/dpos-engine/chain/types"
	"github.com/erigontech/dpos-engine/chainconfig"
	"github.com/erigontech/dpos-engine/chainerr"
	"github.com/erigontech/dpos-engine/chainhash"
	"github.com/erigontech/dpos-engine/kv"
	"go.uber.org/zap"
)

// Observer receives the same two callbacks original_source's chain_observer
// interface exposes: a notification that the head state advanced, and a
// notification for each individual block applied (including blocks that
// are later popped during a reorg and reapplied from a different fork).
type Observer interface {
	StateChanged()
	BlockApplied(block types.FullBlock)
}

type nopObserver struct{}

func (nopObserver) StateChanged()                    {}
func (nopObserver) BlockApplied(_ types.FullBlock) {}

// Engine is the single entry point a host process opens. All mutating
// operations (PushBlock, GenerateBlock, PopBlock) run under one exclusive
// lock — spec.md §5's single-writer model — so overlays never observe a
// concurrent write underneath them. Reads may run concurrently against the
// last committed snapshot via db.View.
type Engine struct {
	mu sync.Mutex

	db       kv.RwDB
	registry *evaluator.Registry
	log      *zap.SugaredLogger
	observer Observer

	chainID      chainhash.Hash256
	pool         *PendingTxPool
	maxBlockSizeOverride int
}

// Open applies genesisCfg to db if the store is fresh and returns a ready
// Engine. db is already open and
// provisioned (see kv.OpenMdbx / kv.NewMemDB); Open takes ownership of it
// and will Close it.
func Open(db kv.RwDB, genesisCfg genesis.Config, logger *zap.SugaredLogger) (*Engine, error) {
	e := &Engine{
		db:       db,
		registry: evaluator.NewRegistry(),
		log:      logger,
		observer: nopObserver{},
	}
	e.pool = NewPendingTxPool(e)

	err := db.Update(func(tx kv.RwTx) error {
		st := state.View(state.NewCommittedRwState(tx))
		chainID, err := genesis.Apply(st, genesisCfg)
		if err != nil {
			return err
		}
		e.chainID = chainID
		return nil
	})
	if err != nil {
		return nil, chainerr.Wrap(chainerr.Io, err, "engine: open")
	}
	if err := e.pool.LoadFromStore(); err != nil {
		return nil, chainerr.Wrap(chainerr.Io, err, "engine: reload pending pool")
	}
	return e, nil
}

func (e *Engine) Close() error { return e.db.Close() }

func (e *Engine) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observer = o
}

func (e *Engine) ChainID() chainhash.Hash256 { return e.chainID }

// SetMaxBlockSize overrides chainconfig.MaxBlockSize for blocks this engine
// produces (it has no bearing on validating blocks from elsewhere — those
// are bound by the consensus constant). A zero size restores the default.
func (e *Engine) SetMaxBlockSize(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxBlockSizeOverride = n
}

func (e *Engine) maxBlockSize() int {
	if e.maxBlockSizeOverride > 0 {
		return e.maxBlockSizeOverride
	}
	return chainconfig.MaxBlockSize
}

// HeadBlockNum returns the current canonical head height.
func (e *Engine) HeadBlockNum() (uint64, error) {
	var n uint64
	err := e.db.View(func(tx kv.Tx) error {
		var err error
		n, err = state.View(state.NewCommittedState(tx)).GetHeadBlockNum()
		return err
	})
	return n, err
}

// readState opens a read-only view for queries (CLI inspection commands,
// tests) without taking the writer lock.
func (e *Engine) readState(fn func(state.Reader) error) error {
	return e.db.View(func(tx kv.Tx) error {
		return fn(state.View(state.NewCommittedState(tx)))
	})
}

// newForkTree builds a forktree.Tree bound to the given reader's lifetime.
func newForkTree(st state.Reader) (*forktree.Tree, error) {
	return forktree.New(st, 4096)
}
