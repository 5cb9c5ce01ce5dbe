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

// Package kv provides the persistent ordered store abstraction (spec.md
// §4.1): typed maps with get/put/remove/contains/first/last/lower_bound and
// forward iteration, one sub-store per logical map, batched per block so
// that either all of a block's writes are visible after a restart or none
// are.
//
// Mutation of a table while a Cursor over that table is open is not
// permitted — see the Cursor docs.
package kv

import "errors"

// ErrKeyNotFound is the error value for a key absent from a table. Tx.Get
// does not return it: Get reports absence through its ok result.
var ErrKeyNotFound = errors.New("kv: key not found")

// Cursor encapsulates a range scan over one table. It must not be used
// after the Tx it was opened from is closed. The underlying table must not
// be mutated while any cursor over it is alive.
type Cursor interface {
	// Seek positions the cursor at the first key >= seek (lower_bound).
	// A nil/empty seek positions at First.
	Seek(seek []byte) error
	// Next advances the cursor by one entry.
	Next() error
	// Key returns the key at the current position, or nil if !Valid().
	Key() []byte
	// Value returns the value at the current position, or nil if !Valid().
	Value() []byte
	// Valid reports whether the cursor is positioned on an entry.
	Valid() bool
	Close()
}

// Tx is a read-only view into the store, stable for its lifetime: every
// read inside one Tx sees a single consistent snapshot at some committed
// block height (spec.md §5).
type Tx interface {
	// Get returns the value stored under key in table, or
	// (nil, false, nil) if absent.
	Get(table string, key []byte) (value []byte, ok bool, err error)
	Has(table string, key []byte) (bool, error)
	// First returns the lowest key/value pair in table.
	First(table string) (key, value []byte, ok bool, err error)
	// Last returns the highest key/value pair in table.
	Last(table string) (key, value []byte, ok bool, err error)
	// Cursor opens a forward-iterating cursor over table.
	Cursor(table string) (Cursor, error)
}

// RwTx additionally allows mutation. All writes made through one RwTx are
// applied as a single atomic batch when the enclosing RwDB.Update commits.
type RwTx interface {
	Tx
	Put(table string, key, value []byte) error
	Delete(table string, key []byte) error
}

// RoDB opens read-only views.
type RoDB interface {
	View(fn func(tx Tx) error) error
}

// RwDB is the full store: a directory holding one sub-store per table from
// AllTables, opened once at startup.
type RwDB interface {
	RoDB
	// Update runs fn inside a single read-write transaction and commits
	// its batch atomically iff fn returns nil.
	Update(fn func(tx RwTx) error) error
	Close() error
}
