// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package journaldb

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/synapsenet/miner/internal/minerlog"
)

const (
	defaultCacheSizeMB = 16
	defaultHandles     = 16
)

type goLevelDB struct {
	dir string
	db  *leveldb.DB
	log minerlog.Logger
}

func getLDBOptions() *opt.Options {
	return &opt.Options{
		OpenFilesCacheCapacity: defaultHandles,
		BlockCacheCapacity:     defaultCacheSizeMB / 2 * opt.MiB,
		WriteBuffer:            defaultCacheSizeMB / 4 * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
	}
}

func newLevelDB(dir string) (*goLevelDB, error) {
	log := minerlog.Module("journaldb").With("dir", dir, "engine", "leveldb")

	db, err := leveldb.OpenFile(dir, getLDBOptions())
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		log.Warn("recovering corrupted journal")
		db, err = leveldb.RecoverFile(dir, nil)
	}
	if err != nil {
		return nil, err
	}
	return &goLevelDB{dir: dir, db: db, log: log}, nil
}

func (db *goLevelDB) Type() DBType { return LevelDB }

func (db *goLevelDB) Put(key, value []byte) error {
	return db.db.Put(key, value, nil)
}

func (db *goLevelDB) Has(key []byte) (bool, error) {
	return db.db.Has(key, nil)
}

func (db *goLevelDB) Get(key []byte) ([]byte, error) {
	v, err := db.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, err
	}
	return v, err
}

func (db *goLevelDB) Delete(key []byte) error {
	return db.db.Delete(key, nil)
}

func (db *goLevelDB) NewIterator() Iterator {
	return &levelIterator{it: db.db.NewIterator(new(util.Range), nil)}
}

func (db *goLevelDB) Close() {
	if err := db.db.Close(); err != nil {
		db.log.Error("close failed", "err", err)
		return
	}
	db.log.Info("closed")
}

type levelIterator struct {
	it iterator.Iterator
}

func (i *levelIterator) Next() bool    { return i.it.Next() }
func (i *levelIterator) Key() []byte   { return i.it.Key() }
func (i *levelIterator) Value() []byte { return i.it.Value() }
func (i *levelIterator) Release()      { i.it.Release() }
