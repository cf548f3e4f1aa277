package replicator

import (
	"context"
	"sync"
	"time"

	"github.com/codetrek/litesync/internal/revstore"
	"github.com/codetrek/litesync/pkg/model"
)

// InsertResult reports the outcome of inserting one buffered revision.
type InsertResult struct {
	Rev      model.RevToInsert
	Conflict bool
	Err      error
}

// InsertBatcher coalesces incoming revisions into batched transactions,
// implementing spec §4.1's batched-insert algorithm: drain, open one
// transaction, insert each with history (forcing on conflict), commit
// once, then mark remote-synced markers for what succeeded.
type InsertBatcher struct {
	store       *revstore.Store
	highWater   int
	interval    time.Duration
	remote      string

	mu      sync.Mutex
	queue    []model.RevToInsert
	timer    *time.Timer
	resultFn func(InsertResult)

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewInsertBatcher builds a batcher flushing after highWater queued
// revisions or interval elapsed, whichever comes first. remote identifies
// the peer for the per-remote synced marker (spec §4.1 step 5).
func NewInsertBatcher(store *revstore.Store, highWater int, interval time.Duration, remote string, resultFn func(InsertResult)) *InsertBatcher {
	if highWater <= 0 {
		highWater = 100
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &InsertBatcher{
		store:     store,
		highWater: highWater,
		interval:  interval,
		remote:    remote,
		resultFn:  resultFn,
		stopCh:    make(chan struct{}),
	}
}

// Add enqueues rev for the next flush. Callable from any actor, guarded by
// the internal mutex (spec §4.1 insert_revision: "callable from any
// actor").
func (b *InsertBatcher) Add(rev model.RevToInsert) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.queue = append(b.queue, rev)
	if len(b.queue) >= b.highWater {
		b.flushLocked()
		return
	}
	if b.timer == nil {
		b.timer = time.AfterFunc(b.interval, b.onTimer)
	}
}

func (b *InsertBatcher) onTimer() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

// flushLocked drains the queue and commits; must be called with mu held.
func (b *InsertBatcher) flushLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if len(b.queue) == 0 {
		return
	}
	batch := b.queue
	b.queue = nil

	ctx := context.Background()
	results, err := b.store.InsertRevisionBatch(ctx, batch)
	if err != nil {
		// The whole transaction failed to commit; every rev in it is
		// unresolved and must be reported back rather than silently dropped.
		for _, rev := range batch {
			if b.resultFn != nil {
				b.resultFn(InsertResult{Rev: rev, Err: err})
			}
		}
		return
	}

	for _, res := range results {
		if res.Err == nil {
			_ = b.store.MarkRemoteSynced(ctx, res.Rev.DocID, b.remote, res.Rev.RevID)
		}
		if b.resultFn != nil {
			b.resultFn(InsertResult{Rev: res.Rev, Conflict: res.Conflict, Err: res.Err})
		}
	}
}

// Flush forces an immediate drain, used on shutdown (spec §5's
// "cancellation... flushes the insert queue (best-effort commit)").
func (b *InsertBatcher) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

// Close stops the pending timer without flushing.
func (b *InsertBatcher) Close() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
		b.mu.Lock()
		if b.timer != nil {
			b.timer.Stop()
		}
		b.mu.Unlock()
	})
}

// Pending returns the number of revisions currently queued, for tests and
// status reporting.
func (b *InsertBatcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
