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

package genesis

import (
	"encoding/binary"
	"testing"

	"github.com/erigontech/dpos-engine/chain/state"
	"github.com/erigontech/dpos-engine/chain/types"
	"github.com/erigontech/dpos-engine/kv"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Symbol:      "XTS",
		Name:        "test chain",
		Description: "a chain for tests",
		Delegates: []DelegateConfig{
			{Name: "delegate-a", OwnerAddress: "owner-a"},
			{Name: "delegate-b", OwnerAddress: "owner-b"},
			{Name: "delegate-c", OwnerAddress: "owner-c"},
		},
		Balances: []BalanceConfig{
			{OwnerAddress: "alice", Shares: 60},
			{OwnerAddress: "bob", Shares: 40},
		},
	}
}

func TestApplyConservesVotesAgainstShareSupply(t *testing.T) {
	db := kv.NewMemDB()
	require.NoError(t, db.Update(func(tx kv.RwTx) error {
		st := state.View(state.NewCommittedRwState(tx))
		_, err := Apply(st, testConfig())
		require.NoError(t, err)

		asset, ok, err := st.GetAsset(0)
		require.NoError(t, err)
		require.True(t, ok)

		activeList, ok, err := st.GetActiveDelegateList()
		require.NoError(t, err)
		require.True(t, ok)

		var totalVotes int64
		for _, id := range activeList.Delegates {
			rec, ok, err := st.GetAccount(id)
			require.NoError(t, err)
			require.True(t, ok)
			totalVotes += rec.NetVotes()
		}
		require.Equal(t, asset.CurrentShareSupply, totalVotes, "every issued share must count toward exactly one delegate's votes_for")
		return nil
	}))
}

func TestApplyIsIdempotentOnReopen(t *testing.T) {
	db := kv.NewMemDB()
	cfg := testConfig()
	require.NoError(t, db.Update(func(tx kv.RwTx) error {
		st := state.View(state.NewCommittedRwState(tx))
		first, err := Apply(st, cfg)
		require.NoError(t, err)

		second, err := Apply(st, cfg)
		require.NoError(t, err)
		require.Equal(t, first, second)

		// A second Apply must not re-register the delegates or bump
		// PropLastAccount again.
		v, ok, err := st.GetProperty(types.PropLastAccount)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, uint64(len(cfg.Delegates)), binary.BigEndian.Uint64(v))
		return nil
	}))
}

func TestApplyRejectsMismatchedChainID(t *testing.T) {
	db := kv.NewMemDB()
	require.NoError(t, db.Update(func(tx kv.RwTx) error {
		st := state.View(state.NewCommittedRwState(tx))
		_, err := Apply(st, testConfig())
		require.NoError(t, err)

		other := testConfig()
		other.Name = "a different chain"
		_, err = Apply(st, other)
		require.Error(t, err)
		return nil
	}))
}

func TestApplyRejectsEmptyDelegateList(t *testing.T) {
	db := kv.NewMemDB()
	require.NoError(t, db.Update(func(tx kv.RwTx) error {
		st := state.View(state.NewCommittedRwState(tx))
		cfg := testConfig()
		cfg.Delegates = nil
		_, err := Apply(st, cfg)
		require.Error(t, err)
		return nil
	}))
}

// TestApplySeedsPropLastAccountPastDelegateIDs is a direct regression test
// for the account-id collision bug: the next account registered after
// genesis must not reuse an id genesis already gave a delegate.
func TestApplySeedsPropLastAccountPastDelegateIDs(t *testing.T) {
	db := kv.NewMemDB()
	cfg := testConfig()
	require.NoError(t, db.Update(func(tx kv.RwTx) error {
		st := state.View(state.NewCommittedRwState(tx))
		_, err := Apply(st, cfg)
		require.NoError(t, err)

		v, ok, err := st.GetProperty(types.PropLastAccount)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, uint64(len(cfg.Delegates)), binary.BigEndian.Uint64(v))

		activeList, ok, err := st.GetActiveDelegateList()
		require.NoError(t, err)
		require.True(t, ok)
		for _, id := range activeList.Delegates {
			require.LessOrEqual(t, uint64(id), uint64(len(cfg.Delegates)))
		}
		return nil
	}))
}
