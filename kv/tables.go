// Copyright 2021 The Erigon Authors
// (original work)
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

package kv

// SchemaVersion tracks the on-disk layout. Bump the patch component for a
// backwards compatible addition, the minor for a new table, the major for a
// layout change that requires a re-sync.
type schemaVersion struct{ Major, Minor, Patch uint32 }

var DBSchemaVersion = schemaVersion{Major: 1, Minor: 0, Patch: 0}

// Table names. One sub-database per logical map, per spec.md §6. Each value
// stored under these tables is the deterministic binary encoding defined by
// chain/types — the same encoding used for block hashing and (out of scope)
// network transport.
const (
	// ForkNumber maps fork_number -> [block_id, ...]: every known block at
	// that height, across all forks.
	ForkNumber = "ForkNumber"

	// Fork maps block_id -> block_fork_data (next_blocks, is_linked,
	// is_valid, is_included).
	Fork = "Fork"

	// Property is the singleton map keyed by chain_property_enum.
	Property = "Property"

	Proposal     = "Proposal"
	ProposalVote = "ProposalVote"

	// UndoState maps block_id -> the serialized overlay that, applied to
	// the post-block committed state, restores the pre-block state.
	UndoState = "UndoState"

	// BlockNumToID maps block_num -> block_id, but only for blocks
	// currently on the canonical chain.
	BlockNumToID = "BlockNumToID"

	// BlockIDToBlock maps block_id -> full_block, for every block ever
	// seen regardless of which fork it belongs to.
	BlockIDToBlock = "BlockIDToBlock"

	// PendingTransaction maps transaction_id -> raw signed transaction,
	// for everything submitted via StorePendingTransaction.
	PendingTransaction = "PendingTransaction"

	Asset   = "Asset"
	Balance = "Balance"
	Account = "Account"

	// AddressToAccount maps every historical active key's address to the
	// account id that registered it.
	AddressToAccount = "AddressToAccount"

	// AccountIndex maps account name -> account id.
	AccountIndex = "AccountIndex"

	// SymbolIndex maps asset symbol -> asset id.
	SymbolIndex = "SymbolIndex"

	// DelegateVoteIndex maps the composite key
	// (net_votes desc, account_id asc) -> account id, enabling top-N scans.
	DelegateVoteIndex = "DelegateVoteIndex"

	Ask        = "Ask"
	Bid        = "Bid"
	Short      = "Short"
	Collateral = "Collateral"

	// ProcessedTransactionID maps transaction_id -> transaction_location,
	// used for dedup and the is_known_transaction accessor.
	ProcessedTransactionID = "ProcessedTransactionID"
)

// AllTables lists every logical map the store must provision at open time.
// The mdbx backend opens one DBI per entry; the in-memory backend allocates
// one ordered map per entry.
func AllTables() []string {
	return []string{
		ForkNumber, Fork, Property, Proposal, ProposalVote, UndoState,
		BlockNumToID, BlockIDToBlock, PendingTransaction, Asset, Balance,
		Account, AddressToAccount, AccountIndex, SymbolIndex,
		DelegateVoteIndex, Ask, Bid, Short, Collateral, ProcessedTransactionID,
	}
}
