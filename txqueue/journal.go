package txqueue

import (
	"github.com/synapsenet/miner/internal/journaldb"
)

// OpenJournal opens the queue's durable write-ahead journal under dir
// using the given backend (spec §4.2 added). The journal records pending
// item ids so an operator can see what was in flight at the moment of a
// crash; it is not consulted at startup to resume anything (closures
// cannot be serialized across a restart).
func OpenJournal(dbType journaldb.DBType, dir string) (journaldb.Database, error) {
	return journaldb.New(dbType, dir)
}
