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

	"github.com/erigontech/dpos-engine/chain/types"
	"github.com/erigontech/dpos-engine/chainerr"
)

// Payload wire formats below are this engine's own operation envelope, a
// much flatter stand-in for original_source's operations.cpp hierarchy
// (withdraw_operation, deposit_operation, register_account_operation,
// update_account_operation, ...). Each is validated, then applied directly
// against the state overlay.

func readUint64(b []byte, off int) (uint64, int, error) {
	if len(b) < off+8 {
		return 0, off, chainerr.New(chainerr.InvalidArgument, "evaluator: truncated operation payload")
	}
	return binary.BigEndian.Uint64(b[off:]), off + 8, nil
}

func readInt64(b []byte, off int) (int64, int, error) {
	v, next, err := readUint64(b, off)
	return int64(v), next, err
}

func readBalanceID(b []byte, off int) (types.BalanceID, int, error) {
	var id types.BalanceID
	if len(b) < off+len(id) {
		return id, off, chainerr.New(chainerr.InvalidArgument, "evaluator: truncated balance id")
	}
	copy(id[:], b[off:off+len(id)])
	return id, off + len(id), nil
}

func readAddress(b []byte, off int) (types.Address, int, error) {
	var a types.Address
	if len(b) < off+len(a) {
		return a, off, chainerr.New(chainerr.InvalidArgument, "evaluator: truncated address")
	}
	copy(a[:], b[off:off+len(a)])
	return a, off + len(a), nil
}

func readString(b []byte, off int) (string, int, error) {
	n, next, err := readUint64(b, off)
	if err != nil {
		return "", off, err
	}
	if len(b) < next+int(n) {
		return "", off, chainerr.New(chainerr.InvalidArgument, "evaluator: truncated string")
	}
	return string(b[next : next+int(n)]), next + int(n), nil
}

// applyWithdraw debits Amount from BalanceID. A balance debited to zero
// stays stored with Amount 0, since it keeps its owner and is not the null
// form PutBalance deletes. Grounded on original_source's withdraw_operation,
// which rejects an overdraft as a consensus violation rather than clamping.
func applyWithdraw(st *EvaluationState, payload []byte) error {
	balanceID, off, err := readBalanceID(payload, 0)
	if err != nil {
		return err
	}
	amount, _, err := readInt64(payload, off)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return chainerr.New(chainerr.InvalidArgument, "evaluator: withdraw amount must be positive")
	}

	rec, ok, err := st.State.GetBalance(balanceID)
	if err != nil {
		return err
	}
	if !ok || rec.Amount < amount {
		return chainerr.New(chainerr.ConsensusViolation, "evaluator: insufficient balance")
	}
	rec.Amount -= amount
	rec.LastUpdateBlock = st.BlockNum
	return st.State.PutBalance(rec)
}

// applyDeposit credits Amount into the balance identified by Condition and
// AssetID, creating it if absent. Grounded on original_source's
// deposit_operation.
func applyDeposit(st *EvaluationState, payload []byte) error {
	owner, off, err := readAddress(payload, 0)
	if err != nil {
		return err
	}
	voteDelegate, off, err := readUint64(payload, off)
	if err != nil {
		return err
	}
	withdrawAfter, off, err := readUint64(payload, off)
	if err != nil {
		return err
	}
	assetID, off, err := readUint64(payload, off)
	if err != nil {
		return err
	}
	amount, _, err := readInt64(payload, off)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return chainerr.New(chainerr.InvalidArgument, "evaluator: deposit amount must be positive")
	}

	cond := types.WithdrawCondition{
		OwnerAddress:       owner,
		VoteDelegateID:      types.AccountID(voteDelegate),
		WithdrawAfterBlock: withdrawAfter,
	}
	id := types.ComputeBalanceID(cond, types.AssetID(assetID))

	rec, ok, err := st.State.GetBalance(id)
	if err != nil {
		return err
	}
	if !ok {
		rec = types.BalanceRecord{ID: id, Condition: cond, AssetID: types.AssetID(assetID)}
	}
	rec.Amount += amount
	rec.LastUpdateBlock = st.BlockNum
	return st.State.PutBalance(rec)
}

// applyRegisterAccount creates a new account record under the next free
// AccountID, grounded on original_source's register_account_operation.
func applyRegisterAccount(st *EvaluationState, payload []byte) error {
	name, off, err := readString(payload, 0)
	if err != nil {
		return err
	}
	owner, _, err := readAddress(payload, off)
	if err != nil {
		return err
	}
	if name == "" {
		return chainerr.New(chainerr.InvalidArgument, "evaluator: empty account name")
	}

	if _, exists, err := st.State.GetAccountIDByName(name); err != nil {
		return err
	} else if exists {
		return chainerr.New(chainerr.ConsensusViolation, "evaluator: account name already registered")
	}

	nextID, err := nextAccountID(st)
	if err != nil {
		return err
	}

	rec := types.AccountRecord{
		ID:                nextID,
		Name:              name,
		OwnerAddress:      owner,
		ActiveKeys:        []types.ActiveKeyEntry{{Address: owner, ValidFromBlock: st.BlockNum}},
		RegistrationBlock: st.BlockNum,
		LastUpdateBlock:   st.BlockNum,
	}
	if err := st.State.PutAccount(rec); err != nil {
		return err
	}
	return st.State.IndexAddress(owner, nextID)
}

func nextAccountID(st *EvaluationState) (types.AccountID, error) {
	v, ok, err := st.State.GetProperty(types.PropLastAccount)
	if err != nil {
		return 0, err
	}
	var last uint64
	if ok {
		last = binary.BigEndian.Uint64(v)
	}
	next := last + 1
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], next)
	if err := st.State.PutProperty(types.PropLastAccount, b[:]); err != nil {
		return 0, err
	}
	return types.AccountID(next), nil
}

// applyUpdateAccount rotates an account's active key, grounded on
// original_source's update_account_operation.
func applyUpdateAccount(st *EvaluationState, payload []byte) error {
	accountID, off, err := readUint64(payload, 0)
	if err != nil {
		return err
	}
	newAddr, _, err := readAddress(payload, off)
	if err != nil {
		return err
	}

	rec, ok, err := st.State.GetAccount(types.AccountID(accountID))
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.NotFound, "evaluator: unknown account")
	}
	rec.ActiveKeys = append(rec.ActiveKeys, types.ActiveKeyEntry{Address: newAddr, ValidFromBlock: st.BlockNum})
	rec.LastUpdateBlock = st.BlockNum
	if err := st.State.PutAccount(rec); err != nil {
		return err
	}
	return st.State.IndexAddress(newAddr, rec.ID)
}

// applyUpdateVote changes which delegate a balance's weight counts toward,
// grounded on original_source's withdraw_condition's vote slot plus
// update_delegate_votes bookkeeping: the old delegate's votes_for loses the
// balance's amount, the new one gains it. This reference evaluator only
// ever casts a "for" vote through a balance's vote slate — nothing here
// drives votes_against (see DESIGN.md).
func applyUpdateVote(st *EvaluationState, payload []byte) error {
	balanceID, off, err := readBalanceID(payload, 0)
	if err != nil {
		return err
	}
	newDelegate, _, err := readUint64(payload, off)
	if err != nil {
		return err
	}

	bal, ok, err := st.State.GetBalance(balanceID)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.NotFound, "evaluator: unknown balance")
	}

	if oldID := bal.Condition.VoteDelegateID; oldID != 0 {
		if err := adjustVotesFor(st, oldID, -bal.Amount); err != nil {
			return err
		}
	}
	bal.Condition.VoteDelegateID = types.AccountID(newDelegate)
	bal.LastUpdateBlock = st.BlockNum
	if newDelegate != 0 {
		if err := adjustVotesFor(st, types.AccountID(newDelegate), bal.Amount); err != nil {
			return err
		}
	}
	return st.State.PutBalance(bal)
}

// adjustVotesFor applies delta to delegate's votes_for, maintaining the
// (net_votes desc, account_id asc) rank index transactionally: remove the
// old row, then insert the new one — never anything else, per spec.md §9's
// resolution of the "dead iterator traversal" open question.
func adjustVotesFor(st *EvaluationState, delegate types.AccountID, delta int64) error {
	rec, ok, err := st.State.GetAccount(delegate)
	if err != nil {
		return err
	}
	if !ok || rec.Delegate == nil {
		return chainerr.New(chainerr.ConsensusViolation, "evaluator: vote target is not a delegate")
	}
	if err := st.State.RemoveDelegateVoteIndex(rec.NetVotes(), delegate); err != nil {
		return err
	}
	rec.Delegate.VotesFor += delta
	if err := st.State.PutAccount(rec); err != nil {
		return err
	}
	return st.State.IndexDelegateVote(rec.NetVotes(), delegate)
}

// applyWithdrawPay moves a delegate's vested pay_balance field into a
// liquid balance under the same owner address, grounded on
// original_source's withdraw_pay_operation (delegate_info::pay_balance
// decremented directly, not a balance_record keyed entry).
func applyWithdrawPay(st *EvaluationState, payload []byte) error {
	delegateID, off, err := readUint64(payload, 0)
	if err != nil {
		return err
	}
	amount, _, err := readInt64(payload, off)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return chainerr.New(chainerr.InvalidArgument, "evaluator: withdraw-pay amount must be positive")
	}

	rec, ok, err := st.State.GetAccount(types.AccountID(delegateID))
	if err != nil {
		return err
	}
	if !ok || rec.Delegate == nil {
		return chainerr.New(chainerr.ConsensusViolation, "evaluator: not a delegate")
	}
	if rec.Delegate.PayBalance < amount {
		return chainerr.New(chainerr.ConsensusViolation, "evaluator: insufficient vested pay")
	}
	rec.Delegate.PayBalance -= amount
	if err := st.State.PutAccount(rec); err != nil {
		return err
	}

	liquidCond := types.WithdrawCondition{OwnerAddress: rec.OwnerAddress}
	liquidID := types.ComputeBalanceID(liquidCond, 0)
	liquidBal, ok, err := st.State.GetBalance(liquidID)
	if err != nil {
		return err
	}
	if !ok {
		liquidBal = types.BalanceRecord{ID: liquidID, Condition: liquidCond, AssetID: 0}
	}
	liquidBal.Amount += amount
	liquidBal.LastUpdateBlock = st.BlockNum
	return st.State.PutBalance(liquidBal)
}
