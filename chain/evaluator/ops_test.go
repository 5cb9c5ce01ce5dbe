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

package evaluator

import (
	"encoding/binary"
	"testing"

	"github.com/erigontech/dpos-engine/chain/state"
	"github.com/erigontech/dpos-engine/chain/types"
	"github.com/erigontech/dpos-engine/chainerr"
	"github.com/erigontech/dpos-engine/kv"
	"github.com/stretchr/testify/require"
)

func withEvalState(t *testing.T, blockNum uint64, fn func(*EvaluationState, state.Reader)) {
	t.Helper()
	db := kv.NewMemDB()
	require.NoError(t, db.Update(func(tx kv.RwTx) error {
		st := state.View(state.NewCommittedRwState(tx))
		evalState := &EvaluationState{State: st, BlockNum: blockNum}
		fn(evalState, st)
		return nil
	}))
}

func encodeUint64Payload(parts ...uint64) []byte {
	b := make([]byte, 8*len(parts))
	for i, p := range parts {
		binary.BigEndian.PutUint64(b[i*8:i*8+8], p)
	}
	return b
}

func TestApplyWithdrawDebitsBalance(t *testing.T) {
	withEvalState(t, 1, func(es *EvaluationState, st state.Reader) {
		cond := types.WithdrawCondition{OwnerAddress: types.Address{1}}
		id := types.ComputeBalanceID(cond, 0)
		require.NoError(t, st.PutBalance(types.BalanceRecord{ID: id, Condition: cond, AssetID: 0, Amount: 100}))

		var payload []byte
		payload = append(payload, id[:]...)
		payload = append(payload, encodeUint64Payload(uint64(40))...)
		require.NoError(t, applyWithdraw(es, payload))

		rec, ok, err := st.GetBalance(id)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, int64(60), rec.Amount)
	})
}

func TestApplyWithdrawRejectsOverdraft(t *testing.T) {
	withEvalState(t, 1, func(es *EvaluationState, st state.Reader) {
		cond := types.WithdrawCondition{OwnerAddress: types.Address{1}}
		id := types.ComputeBalanceID(cond, 0)
		require.NoError(t, st.PutBalance(types.BalanceRecord{ID: id, Condition: cond, AssetID: 0, Amount: 10}))

		var payload []byte
		payload = append(payload, id[:]...)
		payload = append(payload, encodeUint64Payload(uint64(40))...)
		err := applyWithdraw(es, payload)
		require.Error(t, err)
		require.True(t, chainerr.Is(err, chainerr.ConsensusViolation))
	})
}

func TestApplyDepositCreatesBalanceOnFirstUse(t *testing.T) {
	withEvalState(t, 3, func(es *EvaluationState, st state.Reader) {
		owner := types.Address{2}
		var payload []byte
		payload = append(payload, owner[:]...)
		payload = append(payload, encodeUint64Payload(0, 0, 0)...)
		payload = append(payload, encodeUint64Payload(uint64(77))...)
		require.NoError(t, applyDeposit(es, payload))

		cond := types.WithdrawCondition{OwnerAddress: owner}
		id := types.ComputeBalanceID(cond, 0)
		rec, ok, err := st.GetBalance(id)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, int64(77), rec.Amount)
	})
}

func TestApplyRegisterAccountAssignsSequentialIDs(t *testing.T) {
	withEvalState(t, 1, func(es *EvaluationState, st state.Reader) {
		owner := types.Address{3}
		var payload []byte
		payload = append(payload, encodeUint64Payload(uint64(len("alice")))...)
		payload = append(payload, []byte("alice")...)
		payload = append(payload, owner[:]...)
		require.NoError(t, applyRegisterAccount(es, payload))

		id, ok, err := st.GetAccountIDByName("alice")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, types.AccountID(1), id)
	})
}

// TestApplyRegisterAccountDoesNotCollideWithGenesisDelegates is a regression
// test for the PropLastAccount bug: a register_account evaluated right
// after genesis must not reissue an id genesis already gave a delegate.
func TestApplyRegisterAccountDoesNotCollideWithGenesisDelegates(t *testing.T) {
	withEvalState(t, 1, func(es *EvaluationState, st state.Reader) {
		// Simulate what genesis.Apply now does: register delegate 1, then
		// persist PropLastAccount = 1.
		require.NoError(t, st.PutAccount(types.AccountRecord{ID: 1, Name: "delegate-one", Delegate: &types.DelegateInfo{}}))
		var lastAccount [8]byte
		binary.BigEndian.PutUint64(lastAccount[:], 1)
		require.NoError(t, st.PutProperty(types.PropLastAccount, lastAccount[:]))

		owner := types.Address{9}
		var payload []byte
		payload = append(payload, encodeUint64Payload(uint64(len("bob")))...)
		payload = append(payload, []byte("bob")...)
		payload = append(payload, owner[:]...)
		require.NoError(t, applyRegisterAccount(es, payload))

		id, ok, err := st.GetAccountIDByName("bob")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, types.AccountID(2), id, "must not collide with delegate account id 1")
	})
}

func TestApplyUpdateVoteMovesWeightBetweenDelegates(t *testing.T) {
	withEvalState(t, 5, func(es *EvaluationState, st state.Reader) {
		delegateA := types.AccountRecord{ID: 10, Name: "a", Delegate: &types.DelegateInfo{VotesFor: 50}}
		delegateB := types.AccountRecord{ID: 11, Name: "b", Delegate: &types.DelegateInfo{}}
		require.NoError(t, st.PutAccount(delegateA))
		require.NoError(t, st.PutAccount(delegateB))
		require.NoError(t, st.IndexDelegateVote(delegateA.NetVotes(), delegateA.ID))
		require.NoError(t, st.IndexDelegateVote(delegateB.NetVotes(), delegateB.ID))

		cond := types.WithdrawCondition{OwnerAddress: types.Address{4}, VoteDelegateID: delegateA.ID}
		balID := types.ComputeBalanceID(cond, 0)
		require.NoError(t, st.PutBalance(types.BalanceRecord{ID: balID, Condition: cond, AssetID: 0, Amount: 50}))

		var payload []byte
		payload = append(payload, balID[:]...)
		payload = append(payload, encodeUint64Payload(uint64(delegateB.ID))...)
		require.NoError(t, applyUpdateVote(es, payload))

		a, ok, err := st.GetAccount(delegateA.ID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, int64(0), a.Delegate.VotesFor)

		b, ok, err := st.GetAccount(delegateB.ID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, int64(50), b.Delegate.VotesFor)
	})
}

func TestApplyWithdrawPayMovesVestedPayToLiquidBalance(t *testing.T) {
	withEvalState(t, 2, func(es *EvaluationState, st state.Reader) {
		owner := types.Address{6}
		delegate := types.AccountRecord{ID: 20, Name: "d", OwnerAddress: owner, Delegate: &types.DelegateInfo{PayBalance: 30}}
		require.NoError(t, st.PutAccount(delegate))

		var payload []byte
		payload = append(payload, encodeUint64Payload(uint64(delegate.ID))...)
		payload = append(payload, encodeUint64Payload(uint64(20))...)
		require.NoError(t, applyWithdrawPay(es, payload))

		rec, ok, err := st.GetAccount(delegate.ID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, int64(10), rec.Delegate.PayBalance)

		liquidCond := types.WithdrawCondition{OwnerAddress: owner}
		liquidID := types.ComputeBalanceID(liquidCond, 0)
		bal, ok, err := st.GetBalance(liquidID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, int64(20), bal.Amount)
	})
}

func TestRegistryApplyTransactionShortCircuitsOnFirstFailure(t *testing.T) {
	withEvalState(t, 1, func(es *EvaluationState, st state.Reader) {
		r := NewRegistry()

		cond := types.WithdrawCondition{OwnerAddress: types.Address{7}}
		id := types.ComputeBalanceID(cond, 0)
		require.NoError(t, st.PutBalance(types.BalanceRecord{ID: id, Condition: cond, AssetID: 0, Amount: 5}))

		var badWithdraw []byte
		badWithdraw = append(badWithdraw, id[:]...)
		badWithdraw = append(badWithdraw, encodeUint64Payload(uint64(999))...)

		var goodWithdraw []byte
		goodWithdraw = append(goodWithdraw, id[:]...)
		goodWithdraw = append(goodWithdraw, encodeUint64Payload(uint64(1))...)

		tx := types.RawTransaction{
			TotalFee: 10,
			Ops: []types.Operation{
				{Tag: TagWithdraw, Payload: badWithdraw},
				{Tag: TagWithdraw, Payload: goodWithdraw},
			},
		}
		err := r.ApplyTransaction(es, tx)
		require.Error(t, err)
		require.Equal(t, int64(0), es.TotalFees, "fee must not accumulate for a rejected transaction")

		rec, ok, err := st.GetBalance(id)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, int64(5), rec.Amount, "second op must never run once the first failed")
	})
}

func TestRegistryApplyUnknownTagIsRejected(t *testing.T) {
	withEvalState(t, 1, func(es *EvaluationState, st state.Reader) {
		r := NewRegistry()
		err := r.Apply(es, types.Operation{Tag: 250})
		require.Error(t, err)
		require.True(t, chainerr.Is(err, chainerr.InvalidArgument))
	})
}
