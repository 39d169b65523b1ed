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

// Package journaldb provides the pluggable key-value store backing the
// transaction queue's observability journal (spec §4.2). It is not a resume
// mechanism — queued entries hold Go closures that cannot be serialized —
// it exists so an operator can inspect what the queue has dispatched after
// the fact, and so a crash leaves a forensic trail of in-flight vs
// completed entries.
package journaldb

// DBType selects the on-disk engine, mirroring the teacher's pluggable
// storage/database abstraction.
type DBType int

const (
	BadgerDB DBType = iota
	LevelDB
)

func (t DBType) String() string {
	switch t {
	case BadgerDB:
		return "BadgerDB"
	case LevelDB:
		return "LevelDB"
	default:
		return "Unknown"
	}
}

// Database is the minimal key-value interface the transaction queue journal
// needs; both backends implement it.
type Database interface {
	Type() DBType
	Put(key, value []byte) error
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	NewIterator() Iterator
	Close()
}

// Iterator walks key/value pairs in key order. Implementations wrap the
// underlying engine's native iterator.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
}

// New opens a journal database of the given type under dir.
func New(dbType DBType, dir string) (Database, error) {
	switch dbType {
	case BadgerDB:
		return newBadgerDB(dir)
	case LevelDB:
		return newLevelDB(dir)
	default:
		return newLevelDB(dir)
	}
}
