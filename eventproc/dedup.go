package eventproc

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/synapsenet/miner/chain"
)

// Dedup suppresses double-dispatch of the same (event kind, task, block)
// triple. A reconnect-and-replay after a dropped subscription can redeliver
// a block the processor already handled; without this, a redelivered
// TaskScheduled would re-run the whole prepare-and-serve sequence (spec §4.6
// "added" note on idempotent dispatch).
type Dedup struct {
	cache *lru.Cache
}

// NewDedup builds a Dedup bounded to size recent entries.
func NewDedup(size int) *Dedup {
	c, err := lru.New(size)
	if err != nil {
		// size is always a positive literal supplied by New's caller;
		// lru.New only errors on size <= 0.
		panic(err)
	}
	return &Dedup{cache: c}
}

// SeenAndMark reports whether (kind, taskID, blockHash) was already
// dispatched, recording it if not. blockHash is typically a
// gsrpctypes.Hash; it is accepted as interface{} so this package does not
// need to import the substrate types package directly.
func (d *Dedup) SeenAndMark(kind chain.EventKind, taskID uint64, blockHash interface{}) bool {
	key := fmt.Sprintf("%d:%d:%x", kind, taskID, blockHash)
	if d.cache.Contains(key) {
		return true
	}
	d.cache.Add(key, struct{}{})
	return false
}
