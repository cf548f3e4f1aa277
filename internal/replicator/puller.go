package replicator

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/codetrek/litesync/internal/transport"
	"github.com/codetrek/litesync/pkg/model"
)

// Puller drives remote→local revision flow, the mirror image of Pusher
// (spec §4.3).
type Puller struct {
	db   *DBActor
	conn *transport.Connection
	ckpt *CheckpointStore
	opts model.Options

	state atomic.Int32

	mu      sync.Mutex
	pending map[string]pendingRev
	cursor  *cursorTracker

	onStatus func(ActivityLevel, error)
}

// NewPuller builds a puller bound to db and conn; Start resolves the
// checkpoint through ckpt and resumes from its pull cursor.
func NewPuller(db *DBActor, conn *transport.Connection, ckpt *CheckpointStore, opts model.Options, onStatus func(ActivityLevel, error)) *Puller {
	return &Puller{
		db:       db,
		conn:     conn,
		ckpt:     ckpt,
		opts:     opts,
		pending:  make(map[string]pendingRev),
		onStatus: onStatus,
	}
}

func (p *Puller) setState(s ActivityLevel, err error) {
	p.state.Store(int32(s))
	if p.onStatus != nil {
		p.onStatus(s, err)
	}
}

// State returns the puller's current activity level.
func (p *Puller) State() ActivityLevel { return ActivityLevel(p.state.Load()) }

// Start subscribes to the peer's change feed at the resolved checkpoint
// cursor.
func (p *Puller) Start(ctx context.Context) error {
	cp, err := p.ckpt.Resolve(ctx)
	if err != nil {
		p.setState(Stopped, err)
		return err
	}
	since := parseCursor(cp.PullCursor)
	p.mu.Lock()
	p.cursor = newCursorTracker(since)
	p.mu.Unlock()

	batch := p.opts.PushBatchSize
	if batch <= 0 {
		batch = 200
	}
	msg := BuildSubChanges(since, batch, p.opts.Pull == model.ModeContinuous, p.opts.Filter)
	_, err = p.conn.Request(ctx, msg)
	if err != nil {
		p.setState(Stopped, &model.TransientError{Err: err})
		return err
	}
	p.setState(Idle, nil)
	return nil
}

func revKey(docID string, revID model.RevID) string {
	return docID + "\x00" + revID.String()
}

// HandleChanges responds to an incoming "changes" or "proposedChanges"
// announcement, computing the wanted-mask via DBActor.FindOrRequestRevs
// (spec §4.3 "calls find_or_request_revs to compute a wanted-mask").
func (p *Puller) HandleChanges(msg *transport.Message) (*transport.Message, error) {
	p.setState(Busy, nil)
	entries, err := ParseChanges(msg)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		p.setState(CaughtUp, nil)
		return BuildChangesReply(msg, nil), nil
	}

	wants := make([]WantedEntry, len(entries))
	for i, e := range entries {
		wanted, ancestors, err := p.db.FindOrRequestRevs(e.DocID, e.RevID, nil)
		if err != nil {
			return nil, err
		}
		wants[i] = WantedEntry{Wanted: wanted, Ancestors: ancestors}
		if wanted {
			p.mu.Lock()
			p.pending[revKey(e.DocID, e.RevID)] = pendingRev{sequence: e.Sequence}
			p.mu.Unlock()
		} else {
			// Not wanted: this sequence needs no rev body, so it can
			// immediately count toward cursor advancement.
			p.completeSequence(e.Sequence)
		}
	}
	return BuildChangesReply(msg, wants), nil
}

// HandleProposedChanges mirrors HandleChanges for the proposeChanges
// profile, consulting FindProposedChange's 0/403/409 status instead of the
// ancestor-based wanted-mask.
func (p *Puller) HandleProposedChanges(msg *transport.Message) (*transport.Message, error) {
	entries, parents, err := ParseProposedChanges(msg)
	if err != nil {
		return nil, err
	}
	wants := make([]WantedEntry, len(entries))
	for i, e := range entries {
		status, err := p.db.FindProposedChange(e.DocID, e.RevID, parents[i])
		if err != nil {
			return nil, err
		}
		wants[i] = WantedEntry{Wanted: status == 0}
		if status == 0 {
			p.mu.Lock()
			p.pending[revKey(e.DocID, e.RevID)] = pendingRev{sequence: e.Sequence}
			p.mu.Unlock()
		}
	}
	return BuildChangesReply(msg, wants), nil
}

// HandleRev processes an inbound "rev" message body, handing the parsed
// revision to DBActor's insert batcher (spec §4.3 "receives a 'rev'
// message; parses, constructs a RevToInsert, hands to DBActor").
func (p *Puller) HandleRev(msg *transport.Message) error {
	rev, err := ParseRev(msg)
	if err != nil {
		return err
	}

	p.mu.Lock()
	pr, ok := p.pending[revKey(rev.DocID, rev.RevID)]
	delete(p.pending, revKey(rev.DocID, rev.RevID))
	p.mu.Unlock()
	if ok {
		rev.Sequence = formatCursor(pr.sequence)
	}
	p.db.InsertRevision(rev)
	return nil
}

// HandleNoRev processes the sender's notice that a requested revision
// could not be produced, still advancing the cursor so a single missing
// rev never wedges the pull.
func (p *Puller) HandleNoRev(msg *transport.Message) {
	docID := msg.Property("id")
	revID, err := model.ParseRevID(msg.Property("rev"))
	if err != nil {
		return
	}
	p.mu.Lock()
	pr, ok := p.pending[revKey(docID, revID)]
	delete(p.pending, revKey(docID, revID))
	p.mu.Unlock()
	if ok {
		p.completeSequence(pr.sequence)
	}
}

// OnInserted is the InsertBatcher's completion callback for
// foreign-origin revisions, advancing the pull cursor once a contiguous
// run of sequences has committed.
func (p *Puller) OnInserted(result InsertResult) {
	if result.Rev.Sequence == "" {
		return
	}
	p.completeSequence(parseCursor(result.Rev.Sequence))
}

func (p *Puller) completeSequence(seq uint64) {
	p.mu.Lock()
	tracker := p.cursor
	p.mu.Unlock()
	if tracker == nil {
		return
	}
	cursor, advanced := tracker.Complete(seq)
	if !advanced {
		return
	}
	if err := p.ckpt.Save(context.Background(), model.Checkpoint{PullCursor: formatCursor(cursor)}); err != nil && p.onStatus != nil {
		p.onStatus(p.State(), err)
	}
}
