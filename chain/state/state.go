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

// Package state implements the copy-on-write pending-state overlay of
// spec.md §4.3 (C3): a chain of Overlay values can be pushed on top of the
// committed store, reads resolve own-overrides first then fall through to
// prev, and apply_changes flattens one layer into the next. Grounded on
// original_source's pending_chain_state, which plays the identical role
// over bts_blockchain's committed chain_database.
package state

import (
	"github.com/erigontech/dpos-engine/kv"
	"github.com/pkg/errors"
)

// State is the read/write surface every layer (committed store or overlay)
// presents. A read-only committed view rejects Put/Delete.
type State interface {
	Get(table string, key []byte) (value []byte, ok bool, err error)
	Put(table string, key, value []byte) error
	Delete(table string, key []byte) error
}

// CommittedState adapts a kv.Tx/kv.RwTx to State. A kv.Tx opened via RoDB.View
// only supports Get; Put/Delete return an error.
type CommittedState struct {
	tx   kv.Tx
	rwTx kv.RwTx
}

func NewCommittedState(tx kv.Tx) *CommittedState { return &CommittedState{tx: tx} }

func NewCommittedRwState(tx kv.RwTx) *CommittedState { return &CommittedState{tx: tx, rwTx: tx} }

func (c *CommittedState) Get(table string, key []byte) ([]byte, bool, error) {
	return c.tx.Get(table, key)
}

func (c *CommittedState) Put(table string, key, value []byte) error {
	if c.rwTx == nil {
		return errors.New("state: write to read-only committed state")
	}
	return c.rwTx.Put(table, key, value)
}

func (c *CommittedState) Delete(table string, key []byte) error {
	if c.rwTx == nil {
		return errors.New("state: write to read-only committed state")
	}
	return c.rwTx.Delete(table, key)
}

type tableKey struct{ table, key string }

type overrideEntry struct {
	value   []byte
	deleted bool
}

// Overlay is a single copy-on-write layer over prev. Multiple overlays can
// be nested (the block producer's speculative walk opens one overlay per
// candidate transaction on top of the pool's overlay, itself on top of the
// committed state — spec.md §4.9).
type Overlay struct {
	prev      State
	overrides map[tableKey]overrideEntry
	// original remembers, for every key touched for the first time, its
	// pre-overlay value, so GetUndoState can produce the exact inverse.
	original map[tableKey]overrideEntry
}

func NewOverlay(prev State) *Overlay {
	return &Overlay{
		prev:      prev,
		overrides: make(map[tableKey]overrideEntry),
		original:  make(map[tableKey]overrideEntry),
	}
}

func (o *Overlay) Get(table string, key []byte) ([]byte, bool, error) {
	tk := tableKey{table, string(key)}
	if e, ok := o.overrides[tk]; ok {
		if e.deleted {
			return nil, false, nil
		}
		return e.value, true, nil
	}
	return o.prev.Get(table, key)
}

func (o *Overlay) captureOriginal(tk tableKey) error {
	if _, ok := o.original[tk]; ok {
		return nil
	}
	v, ok, err := o.prev.Get(tk.table, []byte(tk.key))
	if err != nil {
		return err
	}
	o.original[tk] = overrideEntry{value: v, deleted: !ok}
	return nil
}

func (o *Overlay) Put(table string, key, value []byte) error {
	tk := tableKey{table, string(key)}
	if err := o.captureOriginal(tk); err != nil {
		return err
	}
	cp := append([]byte(nil), value...)
	o.overrides[tk] = overrideEntry{value: cp}
	return nil
}

func (o *Overlay) Delete(table string, key []byte) error {
	tk := tableKey{table, string(key)}
	if err := o.captureOriginal(tk); err != nil {
		return err
	}
	o.overrides[tk] = overrideEntry{deleted: true}
	return nil
}

// ApplyChanges flattens this overlay's overrides into prev and clears its
// own override set. Calling it twice in a row is a no-op the second time,
// since the override set is empty by then (spec.md §8 "apply
// idempotence"). ExtendChain calls it once per block and does not retry a
// failed flatten.
func (o *Overlay) ApplyChanges() error {
	for tk, e := range o.overrides {
		if e.deleted {
			if err := o.prev.Delete(tk.table, []byte(tk.key)); err != nil {
				return errors.Wrap(err, "state: flatten delete")
			}
			continue
		}
		if err := o.prev.Put(tk.table, []byte(tk.key), e.value); err != nil {
			return errors.Wrap(err, "state: flatten put")
		}
	}
	o.overrides = make(map[tableKey]overrideEntry)
	o.original = make(map[tableKey]overrideEntry)
	return nil
}

// UndoOp is one inverse mutation: re-applying it restores a key to its
// pre-overlay value.
type UndoOp struct {
	Table   string
	Key     []byte
	Value   []byte
	Deleted bool
}

// UndoState is the full inverse of an overlay's accumulated writes, stored
// under kv.UndoState so that Engine.PopBlock can roll a block back
// without replaying the whole chain (spec.md §4.7).
type UndoState struct {
	Ops []UndoOp
}

// GetUndoState captures the current overlay's inverse mutations. It must be
// called before ApplyChanges clears the original map.
func (o *Overlay) GetUndoState() UndoState {
	u := UndoState{Ops: make([]UndoOp, 0, len(o.original))}
	for tk, e := range o.original {
		u.Ops = append(u.Ops, UndoOp{
			Table:   tk.table,
			Key:     []byte(tk.key),
			Value:   e.value,
			Deleted: e.deleted,
		})
	}
	return u
}

// Apply re-applies the inverse mutations onto s, rolling it back to the
// pre-overlay state.
func (u UndoState) Apply(s State) error {
	for _, op := range u.Ops {
		if op.Deleted {
			if err := s.Delete(op.Table, op.Key); err != nil {
				return err
			}
			continue
		}
		if err := s.Put(op.Table, op.Key, op.Value); err != nil {
			return err
		}
	}
	return nil
}

func (u UndoState) Encode() []byte {
	e := newEncoder()
	e.putUint64(uint64(len(u.Ops)))
	for _, op := range u.Ops {
		e.putString(op.Table)
		e.putBytes(op.Key)
		e.putBool(op.Deleted)
		e.putBytes(op.Value)
	}
	return e.bytes()
}

func DecodeUndoState(b []byte) (UndoState, error) {
	d := newDecoder(b)
	n, err := d.getUint64()
	if err != nil {
		return UndoState{}, err
	}
	u := UndoState{Ops: make([]UndoOp, n)}
	for i := range u.Ops {
		table, err := d.getString()
		if err != nil {
			return UndoState{}, err
		}
		key, err := d.getBytes()
		if err != nil {
			return UndoState{}, err
		}
		deleted, err := d.getBool()
		if err != nil {
			return UndoState{}, err
		}
		value, err := d.getBytes()
		if err != nil {
			return UndoState{}, err
		}
		u.Ops[i] = UndoOp{Table: table, Key: key, Deleted: deleted, Value: value}
	}
	if err := d.done(); err != nil {
		return UndoState{}, err
	}
	return u, nil
}
