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

	"github.com/erigontech/dpos-engine/chain/state"
	"github.com/erigontech/dpos-engine/chain/types"
	"github.com/erigontech/dpos-engine/chainconfig"
	"github.com/erigontech/dpos-engine/chainerr"
	"github.com/erigontech/dpos-engine/chainhash"
	"github.com/erigontech/dpos-engine/kv"
)

// updateActiveDelegateList rebuilds the active set from the top
// chainconfig.NDelegates accounts by net vote (kv.DelegateVoteIndex is
// already sorted net_votes desc, account_id asc), then shuffles it with the
// chain's random seed. Grounded on original_source's
// update_active_delegate_list: for each position i, swap with whatever
// position the next seed byte mod n names (not bounded to the remaining
// suffix, and not excluding i itself), re-hashing the seed every 4 bytes.
//
// The ranking is read directly from tx rather than through the block's
// overlay, since state.Overlay has no merged cursor view — so a vote cast
// earlier in this same block is not reflected until the next round's
// rotation. This is a deliberate, documented simplification (see
// DESIGN.md); it does not affect determinism, since every node rotates
// from the same pre-block snapshot.
func (e *Engine) updateActiveDelegateList(tx kv.RwTx, st state.Reader) error {
	ranked, err := topDelegatesByVote(tx, chainconfig.NDelegates)
	if err != nil {
		return err
	}
	if len(ranked) == 0 {
		return chainerr.New(chainerr.Corruption, "engine: no delegates to rotate in")
	}

	seedVal, ok, err := st.GetProperty(types.PropRandomSeed)
	if err != nil {
		return err
	}
	var seed chainhash.Hash160
	if ok {
		copy(seed[:], seedVal)
	}

	stream := chainhash.NewShuffleSeedBytes(seed)
	n := len(ranked)
	for i := 0; i < n; i++ {
		j := int(stream.Next()) % n
		ranked[i], ranked[j] = ranked[j], ranked[i]
	}

	return st.PutActiveDelegateList(types.ActiveDelegateList{Delegates: ranked})
}

// topDelegatesByVote range-scans kv.DelegateVoteIndex (keyed net_votes
// desc, account_id asc) and takes the first limit entries.
func topDelegatesByVote(tx kv.RwTx, limit int) ([]types.AccountID, error) {
	c, err := tx.Cursor(kv.DelegateVoteIndex)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	out := make([]types.AccountID, 0, limit)
	if err := c.Seek(nil); err != nil {
		return nil, err
	}
	for c.Valid() && len(out) < limit {
		v := c.Value()
		out = append(out, types.AccountID(binary.BigEndian.Uint64(v)))
		if err := c.Next(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// updateRandomSeed mixes the signing delegate's revealed secret into the
// chain-wide seed: ripemd160(sha512(secret ∥ current_seed)), per spec.md
// §4.6 step 5 and original_source's update_random_seed.
func (e *Engine) updateRandomSeed(st state.Reader, h types.BlockHeader) error {
	cur, ok, err := st.GetProperty(types.PropRandomSeed)
	if err != nil {
		return err
	}
	var seed chainhash.Hash160
	if ok {
		copy(seed[:], cur)
	}
	next := chainhash.MixRandomSeed(h.Secret, seed)
	return st.PutProperty(types.PropRandomSeed, next[:])
}
