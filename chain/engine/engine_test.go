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
	"encoding/binary"
	"testing"

	"github.com/erigontech/dpos-engine/chain/evaluator"
	"github.com/erigontech/dpos-engine/chain/genesis"
	"github.com/erigontech/dpos-engine/chain/state"
	"github.com/erigontech/dpos-engine/chain/types"
	"github.com/erigontech/dpos-engine/chainconfig"
	"github.com/erigontech/dpos-engine/chainerr"
	"github.com/erigontech/dpos-engine/chainhash"
	"github.com/erigontech/dpos-engine/kv"
	"github.com/erigontech/dpos-engine/log"
	"github.com/stretchr/testify/require"
)

func testGenesisConfig() genesis.Config {
	return genesis.Config{
		Symbol: "XTS",
		Name:   "engine test chain",
		Delegates: []genesis.DelegateConfig{
			{Name: "delegate-a", OwnerAddress: "owner-a"},
			{Name: "delegate-b", OwnerAddress: "owner-b"},
			{Name: "delegate-c", OwnerAddress: "owner-c"},
		},
		Balances: []genesis.BalanceConfig{
			{OwnerAddress: "alice", Shares: 100},
		},
	}
}

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(kv.NewMemDB(), testGenesisConfig(), log.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// sign fills in a placeholder signature of the fixed consensus length; block
// signing itself is an external collaborator's concern (spec.md §1), so
// tests only need a value that satisfies verifyHeader's length check.
func sign(b *types.FullBlock) {
	b.Header.Signature = make([]byte, chainconfig.SignatureSize)
}

func TestEngineGenesisBootstrap(t *testing.T) {
	e := openTestEngine(t)
	head, err := e.HeadBlockNum()
	require.NoError(t, err)
	require.Equal(t, uint64(0), head)
	require.NotEqual(t, chainhash.Hash256{}, e.ChainID())
}

func TestEngineSingleValidBlockAdvancesHead(t *testing.T) {
	e := openTestEngine(t)

	secret := chainhash.Hash160{1}
	nextHash := chainhash.RIPEMD160([]byte("round-2-secret"))
	block, err := e.GenerateBlock(0, secret, nextHash)
	require.NoError(t, err)
	require.Equal(t, uint64(1), block.Header.BlockNum)

	sign(&block)
	require.NoError(t, e.PushBlock(block))

	head, err := e.HeadBlockNum()
	require.NoError(t, err)
	require.Equal(t, uint64(1), head)
}

func TestEngineSecretRevealMismatchRejected(t *testing.T) {
	e := openTestEngine(t)

	firstSecret := chainhash.Hash160{1}
	secondSecretHash := chainhash.RIPEMD160([]byte("round-2-secret"))

	block1, err := e.GenerateBlock(0, firstSecret, secondSecretHash)
	require.NoError(t, err)
	sign(&block1)
	require.NoError(t, e.PushBlock(block1))

	// Block 1's signer is delegate index 0 (timestamp 0). Timestamp 90 maps
	// back to slot 0 too (90/30=3, 3%3=0), so the same delegate signs again
	// and must reveal the preimage of round-2-secret. Feed the wrong one
	// instead.
	wrongSecret := chainhash.Hash160{0xff}
	block2, err := e.GenerateBlock(90, wrongSecret, chainhash.Hash160{2})
	require.NoError(t, err)
	sign(&block2)

	err = e.PushBlock(block2)
	require.Error(t, err)
	require.True(t, chainerr.Is(err, chainerr.ConsensusViolation))

	// The bad block must not have advanced the head.
	head, err := e.HeadBlockNum()
	require.NoError(t, err)
	require.Equal(t, uint64(1), head)
}

func TestEngineCorrectSecretRevealAdvancesSecondBlock(t *testing.T) {
	e := openTestEngine(t)

	firstSecret := chainhash.Hash160{1}
	// The commitment checked on block 2 is ripemd160 of the full 20-byte
	// Secret field block 2 carries, so the hash published in block 1 must be
	// computed over that same padded form, not over an arbitrary preimage of
	// a different length.
	var secondSecret chainhash.Hash160
	copy(secondSecret[:], []byte("round-2-secret"))
	secondSecretHash := chainhash.RIPEMD160(secondSecret[:])

	block1, err := e.GenerateBlock(0, firstSecret, secondSecretHash)
	require.NoError(t, err)
	sign(&block1)
	require.NoError(t, e.PushBlock(block1))

	block2, err := e.GenerateBlock(90, secondSecret, chainhash.Hash160{2})
	require.NoError(t, err)
	sign(&block2)
	require.NoError(t, e.PushBlock(block2))

	head, err := e.HeadBlockNum()
	require.NoError(t, err)
	require.Equal(t, uint64(2), head)
}

func TestEnginePopBlockRevertsHead(t *testing.T) {
	e := openTestEngine(t)

	block, err := e.GenerateBlock(0, chainhash.Hash160{1}, chainhash.Hash160{2})
	require.NoError(t, err)
	sign(&block)
	require.NoError(t, e.PushBlock(block))

	head, err := e.HeadBlockNum()
	require.NoError(t, err)
	require.Equal(t, uint64(1), head)

	require.NoError(t, e.PopBlock())
	head, err = e.HeadBlockNum()
	require.NoError(t, err)
	require.Equal(t, uint64(0), head)
}

func TestEnginePopBlockRejectsPoppingGenesis(t *testing.T) {
	e := openTestEngine(t)
	err := e.PopBlock()
	require.Error(t, err)
}

// TestEnginePendingTxDropsOnInclusion exercises spec.md §8 scenario 6: a
// submitted transaction must leave the pending pool once a block including
// it commits, and become visible through the processed-transaction index.
func TestEnginePendingTxDropsOnInclusion(t *testing.T) {
	e := openTestEngine(t)

	owner := types.Address{9}
	depositPayload := buildDepositPayload(owner, 0, 0, 0, 500)
	tx := types.RawTransaction{
		ID:       chainhash.SHA256([]byte("tx-1")),
		TotalFee: 5,
		Ops:      []types.Operation{{Tag: evaluator.TagDeposit, Payload: depositPayload}},
	}
	require.NoError(t, e.SubmitTransaction(tx))
	require.Len(t, e.PendingTransactions(), 1)

	block, err := e.GenerateBlock(0, chainhash.Hash160{1}, chainhash.Hash160{2})
	require.NoError(t, err)
	require.Len(t, block.Transactions, 1)
	sign(&block)
	require.NoError(t, e.PushBlock(block))

	require.Empty(t, e.PendingTransactions())

	var known bool
	require.NoError(t, e.readState(func(st state.Reader) error {
		var err error
		known, err = st.IsKnownTransaction(tx.ID)
		return err
	}))
	require.True(t, known)
}

// TestEngineReorgSwitchesToTallerFork exercises spec.md §8's "reorg A→B"
// scenario. A second engine on its own store but identical genesis config
// produces a two-block fork rooted at the same (zero-value) genesis
// previous id; feeding its blocks into the first engine, which already
// committed a shorter one-block chain, must trigger switchToFork's
// pop-then-reapply path and make the taller fork canonical.
func TestEngineReorgSwitchesToTallerFork(t *testing.T) {
	e := openTestEngine(t)

	blockA1, err := e.GenerateBlock(0, chainhash.Hash160{1}, chainhash.Hash160{2})
	require.NoError(t, err)
	sign(&blockA1)
	require.NoError(t, e.PushBlock(blockA1))

	head, err := e.HeadBlockNum()
	require.NoError(t, err)
	require.Equal(t, uint64(1), head)

	// A second, independent engine with the same genesis config builds the
	// competing fork. Its blocks' Previous fields chain from the same
	// zero-value genesis id e's own blockA1 chained from, so they are valid
	// fork candidates against e once e is popped back to genesis.
	f := openTestEngine(t)
	blockB1, err := f.GenerateBlock(30, chainhash.Hash160{3}, chainhash.Hash160{4})
	require.NoError(t, err)
	sign(&blockB1)
	require.NoError(t, f.PushBlock(blockB1))

	blockB2, err := f.GenerateBlock(60, chainhash.Hash160{5}, chainhash.Hash160{6})
	require.NoError(t, err)
	sign(&blockB2)
	require.NoError(t, f.PushBlock(blockB2))

	// B1 alone does not outweigh A1 (equal height); the incumbent must
	// survive this first push untouched.
	require.NoError(t, e.PushBlock(blockB1))
	head, err = e.HeadBlockNum()
	require.NoError(t, err)
	require.Equal(t, uint64(1), head)

	// B2 is strictly taller than the current head and must trigger a reorg.
	require.NoError(t, e.PushBlock(blockB2))
	head, err = e.HeadBlockNum()
	require.NoError(t, err)
	require.Equal(t, uint64(2), head)

	var canonicalAt1 types.BlockID
	require.NoError(t, e.readState(func(st state.Reader) error {
		var ok bool
		var err error
		canonicalAt1, ok, err = st.GetBlockIDAtHeight(1)
		if err != nil {
			return err
		}
		require.True(t, ok)
		return nil
	}))
	require.Equal(t, blockB1.Header.ID(), canonicalAt1, "height 1 must now resolve to the fork's block, not the popped incumbent")
}

// buildDepositPayload matches the wire layout applyDeposit (chain/evaluator)
// expects: owner address, vote delegate id, withdraw-after block, asset id,
// amount — all as big-endian uint64s after the fixed-width address.
func buildDepositPayload(owner types.Address, voteDelegate, withdrawAfter, assetID uint64, amount int64) []byte {
	b := make([]byte, 0, len(owner)+4*8)
	b = append(b, owner[:]...)
	b = appendUint64(b, voteDelegate)
	b = appendUint64(b, withdrawAfter)
	b = appendUint64(b, assetID)
	b = appendUint64(b, uint64(amount))
	return b
}

func appendUint64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}
