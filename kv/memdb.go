// Copyright 2018 The go-ethereum Authors
// (original work: ethdb/memorydb)
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

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

// MemDB is an in-process, ordered implementation of RwDB backed by one
// google/btree per table. It has no durability guarantees and exists for
// unit and property-based tests that would otherwise need a real mdbx
// environment on disk, mirroring the role ethdb/memorydb plays for
// go-ethereum's leveldb-backed store.
type MemDB struct {
	mu     sync.RWMutex
	tables map[string]*btree.BTreeG[kvItem]
}

type kvItem struct {
	key, value []byte
}

func lessItem(a, b kvItem) bool { return bytes.Compare(a.key, b.key) < 0 }

// NewMemDB allocates one ordered tree per table in AllTables.
func NewMemDB() *MemDB {
	db := &MemDB{tables: make(map[string]*btree.BTreeG[kvItem], len(AllTables()))}
	for _, t := range AllTables() {
		db.tables[t] = btree.NewG[kvItem](32, lessItem)
	}
	return db
}

func (db *MemDB) tree(table string) *btree.BTreeG[kvItem] {
	t, ok := db.tables[table]
	if !ok {
		// Tables outside AllTables are still allowed, lazily, so tests can
		// exercise scratch tables without touching the schema list.
		t = btree.NewG[kvItem](32, lessItem)
		db.tables[table] = t
	}
	return t
}

func (db *MemDB) View(fn func(tx Tx) error) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return fn(&memTx{db: db})
}

// Update snapshots every table (btree clones are copy-on-write) and restores
// the snapshot if fn fails, so a failed Update leaves no writes behind.
func (db *MemDB) Update(fn func(tx RwTx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	saved := make(map[string]*btree.BTreeG[kvItem], len(db.tables))
	for name, t := range db.tables {
		saved[name] = t.Clone()
	}
	if err := fn(&memTx{db: db}); err != nil {
		db.tables = saved
		return err
	}
	return nil
}

func (db *MemDB) Close() error { return nil }

type memTx struct{ db *MemDB }

func (tx *memTx) Get(table string, key []byte) ([]byte, bool, error) {
	item, ok := tx.db.tree(table).Get(kvItem{key: key})
	if !ok {
		return nil, false, nil
	}
	return item.value, true, nil
}

func (tx *memTx) Has(table string, key []byte) (bool, error) {
	_, ok, err := tx.Get(table, key)
	return ok, err
}

func (tx *memTx) First(table string) (key, value []byte, ok bool, err error) {
	var found kvItem
	tx.db.tree(table).Ascend(func(item kvItem) bool {
		found = item
		ok = true
		return false
	})
	if !ok {
		return nil, nil, false, nil
	}
	return found.key, found.value, true, nil
}

func (tx *memTx) Last(table string) (key, value []byte, ok bool, err error) {
	var found kvItem
	tx.db.tree(table).Descend(func(item kvItem) bool {
		found = item
		ok = true
		return false
	})
	if !ok {
		return nil, nil, false, nil
	}
	return found.key, found.value, true, nil
}

func (tx *memTx) Cursor(table string) (Cursor, error) {
	return &memCursor{tree: tx.db.tree(table)}, nil
}

func (tx *memTx) Put(table string, key, value []byte) error {
	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)
	tx.db.tree(table).ReplaceOrInsert(kvItem{key: k, value: v})
	return nil
}

func (tx *memTx) Delete(table string, key []byte) error {
	tx.db.tree(table).Delete(kvItem{key: key})
	return nil
}

// memCursor buffers the full ascending key range under a Seek into a slice
// up front. MemDB is a test backend, not a performance-sensitive one, so
// trading memory for a trivially correct Next/Valid is the right call here.
type memCursor struct {
	tree    *btree.BTreeG[kvItem]
	items   []kvItem
	pos     int
	started bool
}

func (c *memCursor) Seek(seek []byte) error {
	c.items = c.items[:0]
	c.tree.AscendGreaterOrEqual(kvItem{key: seek}, func(item kvItem) bool {
		c.items = append(c.items, item)
		return true
	})
	c.pos = 0
	c.started = true
	return nil
}

func (c *memCursor) Next() error {
	if !c.started {
		return c.Seek(nil)
	}
	c.pos++
	return nil
}

func (c *memCursor) Key() []byte {
	if !c.Valid() {
		return nil
	}
	return c.items[c.pos].key
}

func (c *memCursor) Value() []byte {
	if !c.Valid() {
		return nil
	}
	return c.items[c.pos].value
}

func (c *memCursor) Valid() bool {
	if !c.started {
		return false
	}
	return c.pos >= 0 && c.pos < len(c.items)
}

func (c *memCursor) Close() {}
