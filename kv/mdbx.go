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
	"os"

	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// MdbxDB is the production RwDB: one MDBX environment holding one DBI per
// table in AllTables, under a single data directory. A block's writes are
// made inside one mdbx write transaction, which MDBX commits as a single
// atomic batch — so a crash mid-block leaves no partial state visible on
// reopen, satisfying the durability contract in spec.md §4.1.
type MdbxDB struct {
	env  *mdbx.Env
	dbis map[string]mdbx.DBI
	lock *flock.Flock
}

// OpenMdbx opens (creating if absent) the data directory at dir and
// provisions every table. It takes an advisory file lock on the directory
// for the lifetime of the process, enforcing the single-writer model of
// spec.md §5: a second engine process pointed at the same directory fails
// fast instead of corrupting the store.
func OpenMdbx(dir string) (*MdbxDB, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "kv: create data dir %s", dir)
	}

	lock := flock.New(dir + "/LOCK")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, "kv: lock data dir %s", dir)
	}
	if !locked {
		return nil, errors.Errorf("kv: data dir %s is already open by another process", dir)
	}

	env, err := mdbx.NewEnv()
	if err != nil {
		_ = lock.Unlock()
		return nil, errors.Wrap(err, "kv: new mdbx env")
	}
	if err := env.SetOption(mdbx.OptMaxDB, uint64(len(AllTables())+4)); err != nil {
		_ = lock.Unlock()
		return nil, errors.Wrap(err, "kv: set max dbs")
	}
	if err := env.Open(dir, mdbx.Coalesce|mdbx.LifoReclaim, 0o640); err != nil {
		_ = lock.Unlock()
		return nil, errors.Wrapf(err, "kv: open mdbx env at %s", dir)
	}

	db := &MdbxDB{env: env, dbis: make(map[string]mdbx.DBI, len(AllTables())), lock: lock}
	err = env.Update(func(txn *mdbx.Txn) error {
		for _, table := range AllTables() {
			dbi, err := txn.OpenDBISimple(table, mdbx.Create)
			if err != nil {
				return errors.Wrapf(err, "kv: open table %s", table)
			}
			db.dbis[table] = dbi
		}
		return nil
	})
	if err != nil {
		env.Close()
		_ = lock.Unlock()
		return nil, err
	}
	return db, nil
}

func (db *MdbxDB) Close() error {
	db.env.Close()
	return db.lock.Unlock()
}

func (db *MdbxDB) View(fn func(tx Tx) error) error {
	return db.env.View(func(txn *mdbx.Txn) error {
		return fn(&mdbxTx{db: db, txn: txn})
	})
}

func (db *MdbxDB) Update(fn func(tx RwTx) error) error {
	return db.env.Update(func(txn *mdbx.Txn) error {
		return fn(&mdbxTx{db: db, txn: txn})
	})
}

type mdbxTx struct {
	db  *MdbxDB
	txn *mdbx.Txn
}

func (tx *mdbxTx) dbi(table string) (mdbx.DBI, error) {
	dbi, ok := tx.db.dbis[table]
	if !ok {
		return 0, errors.Errorf("kv: unknown table %s", table)
	}
	return dbi, nil
}

func (tx *mdbxTx) Get(table string, key []byte) ([]byte, bool, error) {
	dbi, err := tx.dbi(table)
	if err != nil {
		return nil, false, err
	}
	v, err := tx.txn.Get(dbi, key)
	if mdbx.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "kv: get %s", table)
	}
	return v, true, nil
}

func (tx *mdbxTx) Has(table string, key []byte) (bool, error) {
	_, ok, err := tx.Get(table, key)
	return ok, err
}

func (tx *mdbxTx) First(table string) (key, value []byte, ok bool, err error) {
	c, err := tx.Cursor(table)
	if err != nil {
		return nil, nil, false, err
	}
	defer c.Close()
	if err := c.Seek(nil); err != nil {
		return nil, nil, false, err
	}
	if !c.Valid() {
		return nil, nil, false, nil
	}
	return c.Key(), c.Value(), true, nil
}

func (tx *mdbxTx) Last(table string) (key, value []byte, ok bool, err error) {
	dbi, err := tx.dbi(table)
	if err != nil {
		return nil, nil, false, err
	}
	cur, err := tx.txn.OpenCursor(dbi)
	if err != nil {
		return nil, nil, false, errors.Wrapf(err, "kv: open cursor %s", table)
	}
	defer cur.Close()
	k, v, err := cur.Get(nil, nil, mdbx.Last)
	if mdbx.IsNotFound(err) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, errors.Wrapf(err, "kv: last %s", table)
	}
	return k, v, true, nil
}

func (tx *mdbxTx) Cursor(table string) (Cursor, error) {
	dbi, err := tx.dbi(table)
	if err != nil {
		return nil, err
	}
	cur, err := tx.txn.OpenCursor(dbi)
	if err != nil {
		return nil, errors.Wrapf(err, "kv: open cursor %s", table)
	}
	return &mdbxCursor{cur: cur}, nil
}

func (tx *mdbxTx) Put(table string, key, value []byte) error {
	dbi, err := tx.dbi(table)
	if err != nil {
		return err
	}
	if err := tx.txn.Put(dbi, key, value, 0); err != nil {
		return errors.Wrapf(err, "kv: put %s", table)
	}
	return nil
}

func (tx *mdbxTx) Delete(table string, key []byte) error {
	dbi, err := tx.dbi(table)
	if err != nil {
		return err
	}
	if err := tx.txn.Del(dbi, key, nil); err != nil && !mdbx.IsNotFound(err) {
		return errors.Wrapf(err, "kv: delete %s", table)
	}
	return nil
}

// mdbxCursor adapts *mdbx.Cursor to the Cursor interface: seek, then next,
// mutation of the underlying table forbidden while alive (spec.md §9).
type mdbxCursor struct {
	cur     *mdbx.Cursor
	key     []byte
	value   []byte
	valid   bool
	started bool
}

func (c *mdbxCursor) Seek(seek []byte) error {
	var k, v []byte
	var err error
	if len(seek) == 0 {
		k, v, err = c.cur.Get(nil, nil, mdbx.First)
	} else {
		k, v, err = c.cur.Get(seek, nil, mdbx.SetRange)
	}
	c.started = true
	if mdbx.IsNotFound(err) {
		c.valid = false
		return nil
	}
	if err != nil {
		c.valid = false
		return errors.Wrap(err, "kv: cursor seek")
	}
	c.key, c.value, c.valid = k, v, true
	return nil
}

func (c *mdbxCursor) Next() error {
	if !c.started {
		return c.Seek(nil)
	}
	k, v, err := c.cur.Get(nil, nil, mdbx.Next)
	if mdbx.IsNotFound(err) {
		c.valid = false
		return nil
	}
	if err != nil {
		c.valid = false
		return errors.Wrap(err, "kv: cursor next")
	}
	c.key, c.value, c.valid = k, v, true
	return nil
}

func (c *mdbxCursor) Key() []byte {
	if !c.valid {
		return nil
	}
	return c.key
}

func (c *mdbxCursor) Value() []byte {
	if !c.valid {
		return nil
	}
	return c.value
}

func (c *mdbxCursor) Valid() bool { return c.valid }

func (c *mdbxCursor) Close() { c.cur.Close() }
