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

// Package genesis loads the genesis configuration and applies it to a fresh
// state, grounded on original_source's chain_database::initialize_genesis.
// Loading is idempotent: if chain_id is already set in the store, Apply
// only sanity-checks that the loaded config still hashes to that id instead
// of re-initializing.
package genesis

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"sort"

	"github.com/erigontech/dpos-engine/chain/state"
	"github.com/erigontech/dpos-engine/chain/types"
	"github.com/erigontech/dpos-engine/chainconfig"
	"github.com/erigontech/dpos-engine/chainerr"
	"github.com/erigontech/dpos-engine/chainhash"
)

// Config is the genesis file shape: a list of delegate candidates and a
// list of pre-funded balances, plus the base asset's descriptive fields.
// original_source reads this from a packed binary "genesis block" or a
// JSON snapshot depending on build flags; this engine only supports the
// JSON form, the more common one across the rest of the example pack's
// config loaders.
type Config struct {
	Symbol      string            `json:"symbol"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Timestamp   int64             `json:"timestamp"`
	Delegates   []DelegateConfig  `json:"delegates"`
	Balances    []BalanceConfig   `json:"balances"`
}

type DelegateConfig struct {
	Name          string `json:"name"`
	OwnerAddress  string `json:"owner_address"`
}

type BalanceConfig struct {
	OwnerAddress string `json:"owner_address"`
	Shares       int64  `json:"shares"`
}

// Load reads and parses a JSON genesis config from path.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, chainerr.Wrap(chainerr.Io, err, "genesis: read config")
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, chainerr.Wrap(chainerr.InvalidArgument, err, "genesis: parse config")
	}
	return cfg, nil
}

// parseAddress turns a config's address string into a types.Address by
// hashing it with ripemd160 — a stand-in for the real base58-and-checksum
// decode a wallet would do, which is out of scope here since address wire
// encoding belongs to the external transaction codec (spec.md §1).
func parseAddress(s string) types.Address {
	return types.Address(chainhash.RIPEMD160([]byte(s)))
}

// Apply initializes st from cfg. If PropChainID is already set, Apply
// verifies cfg still hashes to that id and returns without reinitializing —
// original_source's initialize_genesis is deliberately safe to call on
// every startup.
func Apply(st state.Reader, cfg Config) (chainhash.Hash256, error) {
	chainID := computeChainID(cfg)

	if existing, ok, err := st.GetChainID(); err != nil {
		return chainhash.Hash256{}, err
	} else if ok {
		if existing != chainID {
			return chainhash.Hash256{}, chainerr.New(chainerr.Corruption, "genesis: store chain_id does not match genesis config")
		}
		return chainID, nil
	}

	if len(cfg.Delegates) == 0 {
		return chainhash.Hash256{}, chainerr.New(chainerr.InvalidArgument, "genesis: at least one delegate is required")
	}

	// god/issuer account, id 0, per original_source's reserved "god" account.
	god := types.AccountRecord{
		ID:                0,
		Name:              "god",
		RegistrationBlock: 0,
		LastUpdateBlock:   0,
	}
	if err := st.PutAccount(god); err != nil {
		return chainhash.Hash256{}, err
	}

	// Rescale each configured balance in proportion to
	// chainconfig.InitialShares, matching initialize_genesis's share
	// normalization pass (it never trusts the config file's raw numbers to
	// already sum correctly). Each rescaled amount is rounded down, so the
	// combined allocation can fall short of InitialShares.
	balances := append([]BalanceConfig(nil), cfg.Balances...)
	var rawTotal int64
	for _, b := range balances {
		rawTotal += b.Shares
	}
	if rawTotal == 0 {
		rawTotal = 1
	}

	var accountID uint64 = 1
	var delegateIDs []types.AccountID
	for _, d := range cfg.Delegates {
		owner := parseAddress(d.OwnerAddress)
		rec := types.AccountRecord{
			ID:                types.AccountID(accountID),
			Name:              d.Name,
			OwnerAddress:      owner,
			ActiveKeys:        []types.ActiveKeyEntry{{Address: owner, ValidFromBlock: 0}},
			RegistrationBlock: 0,
			LastUpdateBlock:   0,
			Delegate:          &types.DelegateInfo{},
		}
		if err := st.PutAccount(rec); err != nil {
			return chainhash.Hash256{}, err
		}
		if err := st.IndexAddress(owner, rec.ID); err != nil {
			return chainhash.Hash256{}, err
		}
		if err := st.IndexDelegateVote(0, rec.ID); err != nil {
			return chainhash.Hash256{}, err
		}
		delegateIDs = append(delegateIDs, rec.ID)
		accountID++
	}
	sort.Slice(delegateIDs, func(i, j int) bool { return delegateIDs[i] < delegateIDs[j] })
	if err := st.PutActiveDelegateList(types.ActiveDelegateList{Delegates: delegateIDs}); err != nil {
		return chainhash.Hash256{}, err
	}

	// PropLastAccount must reflect the delegate accounts just registered, or
	// the first register_account evaluated after genesis would reissue
	// account id 1 and collide with the first delegate.
	var lastAccountBytes [8]byte
	binary.BigEndian.PutUint64(lastAccountBytes[:], accountID-1)
	if err := st.PutProperty(types.PropLastAccount, lastAccountBytes[:]); err != nil {
		return chainhash.Hash256{}, err
	}

	// Each pre-funded balance is split evenly across every delegate and
	// vote-assigned to it, so every issued share counts toward some
	// delegate's votes_for from genesis onward — grounded exactly on
	// initialize_genesis's per-name balance split in
	// original_source/libraries/blockchain/chain_database.cpp, which is the
	// only way the votes_for+votes_against == current_share_supply invariant
	// (spec.md §8) can hold from block zero. The remainder of an uneven
	// split goes one-per-delegate to the first delegates in id order, so
	// scaled is always issued in full regardless of divisibility.
	numDelegates := int64(len(delegateIDs))
	var issued int64
	for _, b := range balances {
		scaled := rescale(b.Shares, rawTotal, chainconfig.InitialShares)
		owner := parseAddress(b.OwnerAddress)
		baseShare := scaled / numDelegates
		remainder := scaled % numDelegates
		for idx, delegateID := range delegateIDs {
			share := baseShare
			if int64(idx) < remainder {
				share++
			}
			cond := types.WithdrawCondition{OwnerAddress: owner, VoteDelegateID: delegateID}
			id := types.ComputeBalanceID(cond, 0)
			rec, ok, err := st.GetBalance(id)
			if err != nil {
				return chainhash.Hash256{}, err
			}
			if !ok {
				rec = types.BalanceRecord{ID: id, Condition: cond, AssetID: 0}
			}
			rec.Amount += share
			if err := st.PutBalance(rec); err != nil {
				return chainhash.Hash256{}, err
			}
			issued += share

			drec, ok, err := st.GetAccount(delegateID)
			if err != nil {
				return chainhash.Hash256{}, err
			}
			if !ok || drec.Delegate == nil {
				return chainhash.Hash256{}, chainerr.New(chainerr.Corruption, "genesis: delegate account missing mid-init")
			}
			if err := st.RemoveDelegateVoteIndex(drec.NetVotes(), delegateID); err != nil {
				return chainhash.Hash256{}, err
			}
			drec.Delegate.VotesFor += share
			if err := st.PutAccount(drec); err != nil {
				return chainhash.Hash256{}, err
			}
			if err := st.IndexDelegateVote(drec.NetVotes(), delegateID); err != nil {
				return chainhash.Hash256{}, err
			}
		}
	}

	asset := types.AssetRecord{
		ID:                 0,
		Symbol:             chainconfig.AddressPrefix,
		Name:               cfg.Name,
		Description:        cfg.Description,
		IssuerAccountID:    0,
		CurrentShareSupply: issued,
		MaximumShareSupply: chainconfig.InitialShares,
	}
	if err := st.PutAsset(asset); err != nil {
		return chainhash.Hash256{}, err
	}

	if err := st.PutChainID(chainID); err != nil {
		return chainhash.Hash256{}, err
	}
	if err := st.PutHeadBlockNum(0); err != nil {
		return chainhash.Hash256{}, err
	}
	if err := st.PutProperty(types.PropRandomSeed, make([]byte, 20)); err != nil {
		return chainhash.Hash256{}, err
	}

	return chainID, nil
}

// rescale computes shares * target / total without overflow for the
// magnitudes involved here (total and target both fit comfortably in
// int64, and this only ever runs once at genesis).
func rescale(shares, total, target int64) int64 {
	if total == 0 {
		return 0
	}
	product, overflow := chainconfig.SafeMulUint64(uint64(shares), uint64(target))
	if overflow {
		// shares/target exceed 64 bits multiplied together: fall back to the
		// mathematically equivalent but overflow-safe divide-first order,
		// which loses a little precision but never wraps.
		return (shares / total) * target
	}
	return int64(product / uint64(total))
}

// computeChainID hashes the canonical JSON encoding of cfg — the exact
// canonicalization scheme is this engine's own choice (spec.md leaves the
// byte format of the genesis file out of scope), but it must be
// deterministic across re-opens, which a struct-to-JSON round trip is.
func computeChainID(cfg Config) chainhash.Hash256 {
	b, _ := json.Marshal(cfg)
	return chainhash.SHA256(b)
}
