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

package state

import (
	"encoding/binary"

	"github.com/erigontech/dpos-engine/chain/types"
	"github.com/erigontech/dpos-engine/chainerr"
	"github.com/erigontech/dpos-engine/chainhash"
	"github.com/erigontech/dpos-engine/kv"
	"github.com/klauspost/compress/s2"
)

// Reader is the typed view chain/evaluator and chain/engine program
// against. Both *CommittedState and *Overlay values satisfy it once
// wrapped by View.
type Reader struct{ s State }

func View(s State) Reader { return Reader{s: s} }

// Raw exposes the underlying State for packages (forktree) that need
// direct table access beyond the typed accessors below.
func (r Reader) Raw() State { return r.s }

func idKey(id uint64) []byte { return types.BeUint64Key(id) }

// --- accounts ---

func (r Reader) GetAccount(id types.AccountID) (types.AccountRecord, bool, error) {
	v, ok, err := r.s.Get(kv.Account, idKey(uint64(id)))
	if err != nil || !ok {
		return types.AccountRecord{}, ok, err
	}
	rec, err := types.DecodeAccountRecord(v)
	return rec, true, err
}

func (r Reader) PutAccount(rec types.AccountRecord) error {
	if err := r.s.Put(kv.Account, idKey(uint64(rec.ID)), rec.Encode()); err != nil {
		return err
	}
	return r.s.Put(kv.AccountIndex, []byte(rec.Name), idKey(uint64(rec.ID)))
}

func (r Reader) GetAccountIDByName(name string) (types.AccountID, bool, error) {
	v, ok, err := r.s.Get(kv.AccountIndex, []byte(name))
	if err != nil || !ok {
		return 0, ok, err
	}
	return types.AccountID(binary.BigEndian.Uint64(v)), true, nil
}

func (r Reader) IndexAddress(addr types.Address, id types.AccountID) error {
	return r.s.Put(kv.AddressToAccount, addr[:], idKey(uint64(id)))
}

func (r Reader) GetAccountIDByAddress(addr types.Address) (types.AccountID, bool, error) {
	v, ok, err := r.s.Get(kv.AddressToAccount, addr[:])
	if err != nil || !ok {
		return 0, ok, err
	}
	return types.AccountID(binary.BigEndian.Uint64(v)), true, nil
}

// DelegateVoteIndexKey encodes (net_votes desc, account_id asc): votes are
// stored as their two's-complement negation so ascending byte order on the
// key gives descending vote order, matching original_source's
// delegate_vote_index sort.
func DelegateVoteIndexKey(netVotes int64, id types.AccountID) []byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], uint64(-netVotes))
	binary.BigEndian.PutUint64(b[8:16], uint64(id))
	return b[:]
}

func (r Reader) IndexDelegateVote(netVotes int64, id types.AccountID) error {
	return r.s.Put(kv.DelegateVoteIndex, DelegateVoteIndexKey(netVotes, id), idKey(uint64(id)))
}

func (r Reader) RemoveDelegateVoteIndex(netVotes int64, id types.AccountID) error {
	return r.s.Delete(kv.DelegateVoteIndex, DelegateVoteIndexKey(netVotes, id))
}

// --- assets ---

func (r Reader) GetAsset(id types.AssetID) (types.AssetRecord, bool, error) {
	v, ok, err := r.s.Get(kv.Asset, idKey(uint64(id)))
	if err != nil || !ok {
		return types.AssetRecord{}, ok, err
	}
	rec, err := types.DecodeAssetRecord(v)
	return rec, true, err
}

func (r Reader) PutAsset(rec types.AssetRecord) error {
	if err := r.s.Put(kv.Asset, idKey(uint64(rec.ID)), rec.Encode()); err != nil {
		return err
	}
	return r.s.Put(kv.SymbolIndex, []byte(rec.Symbol), idKey(uint64(rec.ID)))
}

func (r Reader) GetAssetIDBySymbol(symbol string) (types.AssetID, bool, error) {
	v, ok, err := r.s.Get(kv.SymbolIndex, []byte(symbol))
	if err != nil || !ok {
		return 0, ok, err
	}
	return types.AssetID(binary.BigEndian.Uint64(v)), true, nil
}

// --- balances ---

func (r Reader) GetBalance(id types.BalanceID) (types.BalanceRecord, bool, error) {
	v, ok, err := r.s.Get(kv.Balance, id[:])
	if err != nil || !ok {
		return types.BalanceRecord{}, ok, err
	}
	rec, err := types.DecodeBalanceRecord(v)
	return rec, true, err
}

func (r Reader) PutBalance(rec types.BalanceRecord) error {
	if rec.IsNull() {
		return r.s.Delete(kv.Balance, rec.ID[:])
	}
	return r.s.Put(kv.Balance, rec.ID[:], rec.Encode())
}

// --- properties ---

func (r Reader) GetProperty(id types.PropertyID) ([]byte, bool, error) {
	return r.s.Get(kv.Property, types.PropertyKey(id))
}

func (r Reader) PutProperty(id types.PropertyID, value []byte) error {
	return r.s.Put(kv.Property, types.PropertyKey(id), value)
}

func (r Reader) GetChainID() (chainhash.Hash256, bool, error) {
	v, ok, err := r.GetProperty(types.PropChainID)
	if err != nil || !ok || len(v) != 32 {
		return chainhash.Hash256{}, ok, err
	}
	var out chainhash.Hash256
	copy(out[:], v)
	return out, true, nil
}

func (r Reader) PutChainID(id chainhash.Hash256) error {
	return r.PutProperty(types.PropChainID, id[:])
}

func (r Reader) GetHeadBlockNum() (uint64, error) {
	v, ok, err := r.GetProperty(types.PropHeadBlockNum)
	if err != nil || !ok {
		return 0, err
	}
	return binary.LittleEndian.Uint64(v), nil
}

func (r Reader) PutHeadBlockNum(n uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], n)
	return r.PutProperty(types.PropHeadBlockNum, b[:])
}

func (r Reader) GetActiveDelegateList() (types.ActiveDelegateList, bool, error) {
	v, ok, err := r.GetProperty(types.PropActiveDelegateList)
	if err != nil || !ok {
		return types.ActiveDelegateList{}, ok, err
	}
	l, err := types.DecodeActiveDelegateList(v)
	return l, true, err
}

func (r Reader) PutActiveDelegateList(l types.ActiveDelegateList) error {
	return r.PutProperty(types.PropActiveDelegateList, l.Encode())
}

// --- blocks ---

func (r Reader) GetBlockIDAtHeight(num uint64) (types.BlockID, bool, error) {
	v, ok, err := r.s.Get(kv.BlockNumToID, types.BeUint64Key(num))
	if err != nil || !ok || len(v) != 32 {
		return types.BlockID{}, ok, err
	}
	var id types.BlockID
	copy(id[:], v)
	return id, true, nil
}

func (r Reader) PutBlockIDAtHeight(num uint64, id types.BlockID) error {
	return r.s.Put(kv.BlockNumToID, types.BeUint64Key(num), id[:])
}

func (r Reader) RemoveBlockIDAtHeight(num uint64) error {
	return r.s.Delete(kv.BlockNumToID, types.BeUint64Key(num))
}

func (r Reader) GetBlock(id types.BlockID) (types.FullBlock, bool, error) {
	v, ok, err := r.s.Get(kv.BlockIDToBlock, id[:])
	if err != nil || !ok {
		return types.FullBlock{}, ok, err
	}
	raw, err := s2.Decode(nil, v)
	if err != nil {
		return types.FullBlock{}, false, chainerr.Wrap(chainerr.Corruption, err, "state: decompress block body")
	}
	b, err := types.DecodeFullBlock(raw)
	return b, true, err
}

// PutBlock stores the block body s2-compressed: bodies are the largest
// blobs this store keeps, and s2's byte-for-byte decode makes it a safe win
// over storing the raw encoding.
func (r Reader) PutBlock(id types.BlockID, b types.FullBlock) error {
	raw := b.Encode()
	return r.s.Put(kv.BlockIDToBlock, id[:], s2.Encode(nil, raw))
}

// --- processed transactions ---

func (r Reader) IsKnownTransaction(id [32]byte) (bool, error) {
	_, ok, err := r.s.Get(kv.ProcessedTransactionID, id[:])
	return ok, err
}

func (r Reader) MarkTransactionProcessed(id [32]byte, loc types.TransactionLocation) error {
	return r.s.Put(kv.ProcessedTransactionID, id[:], loc.Encode())
}

// --- pending transactions ---

func (r Reader) StorePendingTransaction(id [32]byte, raw []byte) error {
	return r.s.Put(kv.PendingTransaction, id[:], raw)
}

func (r Reader) RemovePendingTransaction(id [32]byte) error {
	return r.s.Delete(kv.PendingTransaction, id[:])
}
