// Copyright 2018 The klaytn Authors
// This file is part of the klaytn library.
//
// The klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the klaytn library. If not, see <http://www.gnu.org/licenses/>.

package journaldb

import (
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger"

	"github.com/synapsenet/miner/internal/minerlog"
)

const gcThreshold = int64(1 << 30)
const sizeGCTickerTime = 1 * time.Minute

type badgerDB struct {
	dir      string
	db       *badger.DB
	gcTicker *time.Ticker
	log      minerlog.Logger
	stop     chan struct{}
}

func newBadgerDB(dir string) (*badgerDB, error) {
	if fi, err := os.Stat(dir); err == nil {
		if !fi.IsDir() {
			return nil, fmt.Errorf("journaldb: %s is not a directory", dir)
		}
	} else if os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("journaldb: mkdir %s: %w", dir, err)
		}
	} else {
		return nil, err
	}

	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("journaldb: open badger at %s: %w", dir, err)
	}

	bg := &badgerDB{
		dir:      dir,
		db:       db,
		log:      minerlog.Module("journaldb").With("dir", dir, "engine", "badger"),
		gcTicker: time.NewTicker(sizeGCTickerTime),
		stop:     make(chan struct{}),
	}
	go bg.runValueLogGC()
	return bg, nil
}

func (bg *badgerDB) runValueLogGC() {
	_, lastSize := bg.db.Size()
	for {
		select {
		case <-bg.gcTicker.C:
			_, curr := bg.db.Size()
			if curr-lastSize < gcThreshold {
				continue
			}
			if err := bg.db.RunValueLogGC(0.5); err != nil {
				bg.log.Warn("value log gc failed", "err", err)
				continue
			}
			_, lastSize = bg.db.Size()
		case <-bg.stop:
			return
		}
	}
}

func (bg *badgerDB) Type() DBType { return BadgerDB }

func (bg *badgerDB) Put(key, value []byte) error {
	txn := bg.db.NewTransaction(true)
	defer txn.Discard()
	if err := txn.Set(key, value); err != nil {
		return err
	}
	return txn.Commit(nil)
}

func (bg *badgerDB) Has(key []byte) (bool, error) {
	txn := bg.db.NewTransaction(false)
	defer txn.Discard()
	_, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (bg *badgerDB) Get(key []byte) ([]byte, error) {
	txn := bg.db.NewTransaction(false)
	defer txn.Discard()
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	return item.Value()
}

func (bg *badgerDB) Delete(key []byte) error {
	txn := bg.db.NewTransaction(true)
	defer txn.Discard()
	if err := txn.Delete(key); err != nil {
		return err
	}
	return txn.Commit(nil)
}

func (bg *badgerDB) NewIterator() Iterator {
	txn := bg.db.NewTransaction(false)
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	it.Rewind()
	return &badgerIterator{txn: txn, it: it, first: true}
}

func (bg *badgerDB) Close() {
	close(bg.stop)
	bg.gcTicker.Stop()
	if err := bg.db.Close(); err != nil {
		bg.log.Error("close failed", "err", err)
		return
	}
	bg.log.Info("closed")
}

type badgerIterator struct {
	txn   *badger.Txn
	it    *badger.Iterator
	first bool
}

func (i *badgerIterator) Next() bool {
	if i.first {
		i.first = false
	} else {
		i.it.Next()
	}
	return i.it.Valid()
}

func (i *badgerIterator) Key() []byte {
	return i.it.Item().KeyCopy(nil)
}

func (i *badgerIterator) Value() []byte {
	v, _ := i.it.Item().ValueCopy(nil)
	return v
}

func (i *badgerIterator) Release() {
	i.it.Close()
	i.txn.Discard()
}
