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

package types

import "github.com/erigontech/dpos-engine/chainhash"

// BalanceID identifies a balance by the ripemd160 digest of its withdraw
// condition, grounded on original_source's withdraw_condition::get_address
// / balance_id() convention — the same digest used to render Address.
type BalanceID chainhash.Hash160

// WithdrawCondition names who may spend a balance and, for a delegate's
// vested pay, how early withdrawal is restricted. VoteDelegateID is the
// delegate the balance's voting weight counts toward (0 means abstain).
type WithdrawCondition struct {
	OwnerAddress   Address
	VoteDelegateID AccountID
	// WithdrawAfterBlock is nonzero only for delegate-pay balances, which
	// vest over time per original_source's pay_delegate.
	WithdrawAfterBlock uint64
}

// BalanceRecord is the entity of spec.md §3 "balance": an amount of one
// asset locked under a withdraw condition.
type BalanceRecord struct {
	ID        BalanceID
	Condition WithdrawCondition
	AssetID   AssetID
	Amount    int64
	LastUpdateBlock uint64
}

func (b BalanceRecord) IsNull() bool { return b.Amount == 0 && b.Condition.OwnerAddress == (Address{}) }

func (c WithdrawCondition) Encode(e *encoder) {
	e.buf = append(e.buf, c.OwnerAddress[:]...)
	e.putUint64(uint64(c.VoteDelegateID))
	e.putUint64(c.WithdrawAfterBlock)
}

func decodeWithdrawCondition(d *decoder) (WithdrawCondition, error) {
	var c WithdrawCondition
	if d.remaining() < len(c.OwnerAddress) {
		return c, ErrShortBuffer
	}
	copy(c.OwnerAddress[:], d.buf[d.pos:d.pos+len(c.OwnerAddress)])
	d.pos += len(c.OwnerAddress)

	v, err := d.getUint64()
	if err != nil {
		return c, err
	}
	c.VoteDelegateID = AccountID(v)

	w, err := d.getUint64()
	if err != nil {
		return c, err
	}
	c.WithdrawAfterBlock = w
	return c, nil
}

// ComputeBalanceID derives the storage key for a balance from its withdraw
// condition plus the asset it denominates, so the same owner/vote/vesting
// tuple under different assets lands at distinct balances.
func ComputeBalanceID(cond WithdrawCondition, assetID AssetID) BalanceID {
	e := newEncoder()
	cond.Encode(e)
	e.putUint64(uint64(assetID))
	return BalanceID(chainhash.RIPEMD160(e.bytes()))
}

func (b BalanceRecord) Encode() []byte {
	e := newEncoder()
	e.buf = append(e.buf, b.ID[:]...)
	b.Condition.Encode(e)
	e.putUint64(uint64(b.AssetID))
	e.putInt64(b.Amount)
	e.putUint64(b.LastUpdateBlock)
	return e.bytes()
}

func DecodeBalanceRecord(buf []byte) (BalanceRecord, error) {
	d := newDecoder(buf)
	var b BalanceRecord
	if d.remaining() < len(b.ID) {
		return BalanceRecord{}, ErrShortBuffer
	}
	copy(b.ID[:], d.buf[d.pos:d.pos+len(b.ID)])
	d.pos += len(b.ID)

	cond, err := decodeWithdrawCondition(d)
	if err != nil {
		return BalanceRecord{}, err
	}
	b.Condition = cond

	assetID, err := d.getUint64()
	if err != nil {
		return BalanceRecord{}, err
	}
	b.AssetID = AssetID(assetID)

	amount, err := d.getInt64()
	if err != nil {
		return BalanceRecord{}, err
	}
	b.Amount = amount

	last, err := d.getUint64()
	if err != nil {
		return BalanceRecord{}, err
	}
	b.LastUpdateBlock = last

	if err := d.done(); err != nil {
		return BalanceRecord{}, err
	}
	return b, nil
}
