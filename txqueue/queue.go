// Package txqueue implements the Transaction Queue (C2): a single-writer
// FIFO for chain-mutating calls, with bounded exponential-backoff retry
// and acceptable-error suppression (spec §4.2). At most one executor runs
// at a time across the whole process — the nonce-safety invariant the
// controller relies on.
package txqueue

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/synapsenet/miner/chain"
	"github.com/synapsenet/miner/internal/journaldb"
	"github.com/synapsenet/miner/internal/minerlog"
)

const (
	retryCap      = 500
	backoffBase   = 1 * time.Second
	backoffCapLog = 10 // 2^10 s
)

// Executor is the chain-mutating call a caller wants serialized through
// the queue.
type Executor func(ctx context.Context) (chain.Outcome, error)

// Result is delivered to the caller exactly once via Enqueue's channel.
type Result struct {
	Outcome chain.Outcome
	Err     error
}

type item struct {
	id         string
	ctx        context.Context
	executor   Executor
	respond    chan Result
	retryCount int
}

// Queue is the process-wide single-writer FIFO.
type Queue struct {
	mu    sync.Mutex
	items *list.List
	wake  chan struct{}

	processing int32 // atomic: 0 = idle, 1 = processing

	journal journaldb.Database
	log     minerlog.Logger

	seq uint64
}

// New creates a Queue backed by journal for write-ahead observability
// (spec §4.2 added). journal may be nil to run without a durability
// journal (tests).
func New(journal journaldb.Database) *Queue {
	q := &Queue{
		items:   list.New(),
		wake:    make(chan struct{}, 1),
		journal: journal,
		log:     minerlog.Module("txqueue"),
	}
	go q.run()
	return q
}

// Len reports the number of items currently waiting in the FIFO; an item
// whose executor is running (or sleeping before a retry) is not counted.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Enqueue submits executor and returns a channel that receives exactly one
// Result once the executor either succeeds or exhausts its retry budget.
// The call returns immediately; the executor runs on the background
// worker goroutine.
func (q *Queue) Enqueue(ctx context.Context, executor Executor) <-chan Result {
	ch := make(chan Result, 1)

	q.mu.Lock()
	q.seq++
	it := &item{
		id:       nextItemID(q.seq),
		ctx:      ctx,
		executor: executor,
		respond:  ch,
	}
	if q.journal != nil {
		if err := q.journal.Put([]byte(it.id), []byte("pending")); err != nil {
			q.log.Warn("journal write failed", "id", it.id, "err", err)
		}
	}
	q.items.PushBack(it)
	q.mu.Unlock()

	if atomic.CompareAndSwapInt32(&q.processing, 0, 1) {
		q.log.Info("queue transitioned idle to processing")
	}

	select {
	case q.wake <- struct{}{}:
	default:
	}

	return ch
}

func nextItemID(seq uint64) string {
	return time.Now().UTC().Format("20060102T150405.000000000") + "-" + itoa(seq)
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// run is the single worker goroutine draining the FIFO. It is the only
// goroutine that ever calls an Executor, guaranteeing the process-wide
// single-writer invariant.
func (q *Queue) run() {
	for range q.wake {
		for {
			it, ok := q.pop()
			if !ok {
				atomic.StoreInt32(&q.processing, 0)
				q.log.Info("queue transitioned processing to idle")
				break
			}
			q.execute(it)
		}
	}
}

func (q *Queue) pop() (*item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.items.Front()
	if front == nil {
		return nil, false
	}
	q.items.Remove(front)
	return front.Value.(*item), true
}

func (q *Queue) pushFront(it *item) {
	q.mu.Lock()
	q.items.PushFront(it)
	q.mu.Unlock()
}

func (q *Queue) execute(it *item) {
	outcome, err := it.executor(it.ctx)
	if err == nil {
		q.deliver(it, Result{Outcome: outcome})
		return
	}

	if it.retryCount >= retryCap {
		q.log.Error("retry cap exhausted", "id", it.id, "retries", it.retryCount, "err", err)
		q.deliver(it, Result{Err: err})
		return
	}

	it.retryCount++
	delay := backoffDelay(it.retryCount)
	q.log.Warn("executor failed, retrying", "id", it.id, "retry", it.retryCount, "delay", delay, "err", err)

	select {
	case <-time.After(delay):
	case <-it.ctx.Done():
		q.deliver(it, Result{Err: it.ctx.Err()})
		return
	}

	q.pushFront(it)
}

// backoffDelay returns 2^(retryCount-1) seconds, capped at 2^backoffCapLog:
// the first retry sleeps ~1s, the second ~2s, matching the spec's worked
// retry example.
func backoffDelay(retryCount int) time.Duration {
	shift := retryCount - 1
	if shift > backoffCapLog {
		shift = backoffCapLog
	}
	if shift < 0 {
		shift = 0
	}
	return backoffBase * time.Duration(uint64(1)<<uint(shift))
}

func (q *Queue) deliver(it *item, res Result) {
	if q.journal != nil {
		if err := q.journal.Delete([]byte(it.id)); err != nil {
			q.log.Warn("journal delete failed", "id", it.id, "err", err)
		}
	}
	it.respond <- res
}
