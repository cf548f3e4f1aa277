package replicator

import (
	"container/heap"
	"strconv"
)

// pendingRev tracks a revision the puller has asked for but not yet
// received a body for, mirroring original_source/Replicator/IncomingRev.hh's
// per-document pull worker without the full actor: the state that matters
// here is small enough to be a map entry rather than a goroutine.
type pendingRev struct {
	sequence uint64
}

// seqHeap is a min-heap of completed sequence numbers awaiting their turn
// to advance the contiguous pull cursor (spec §4.3 "advances the pull
// checkpoint cursor only after the inserting transaction... commits" —
// sequences complete out of order, because unwanted changes complete as
// soon as they are announced while wanted ones wait for their rev and its
// batch commit, so the cursor must track the low-water contiguous mark,
// not just the latest completion).
type seqHeap []uint64

func (h seqHeap) Len() int            { return len(h) }
func (h seqHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h seqHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *seqHeap) Push(x interface{}) { *h = append(*h, x.(uint64)) }
func (h *seqHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// cursorTracker advances a monotonic "pull cursor" (spec §3's checkpoint
// pull cursor, an opaque string) as out-of-order sequence completions
// arrive, only ever moving forward through a contiguous run starting at
// the current cursor.
type cursorTracker struct {
	next      uint64
	completed seqHeap
}

func newCursorTracker(startAfter uint64) *cursorTracker {
	return &cursorTracker{next: startAfter + 1}
}

// Complete records sequence as done and returns the new cursor value if it
// advanced, or advanced=false if seq is buffered awaiting an earlier gap to
// close.
func (c *cursorTracker) Complete(seq uint64) (cursor uint64, advanced bool) {
	heap.Push(&c.completed, seq)
	advanced = false
	for len(c.completed) > 0 && c.completed[0] == c.next {
		heap.Pop(&c.completed)
		c.next++
		advanced = true
	}
	if advanced {
		cursor = c.next - 1
	}
	return
}

func formatCursor(seq uint64) string {
	return strconv.FormatUint(seq, 10)
}

func parseCursor(s string) uint64 {
	n, _ := strconv.ParseUint(s, 10, 64)
	return n
}
