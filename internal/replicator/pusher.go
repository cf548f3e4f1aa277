package replicator

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/codetrek/litesync/internal/transport"
	"github.com/codetrek/litesync/pkg/model"
)

// Pusher drives local→remote revision flow (spec §4.2). State machine:
// Idle → Busy → CaughtUp → (Idle | Stopped). In continuous mode it parks
// in CaughtUp awaiting a change notification instead of stopping.
type Pusher struct {
	db      *DBActor
	conn    *transport.Connection
	ckpt    *CheckpointStore
	opts    model.Options

	state      atomic.Int32 // ActivityLevel
	window     chan struct{}
	notifyCh   chan struct{}
	stopCh     chan struct{}
	wg         sync.WaitGroup

	onStatus func(ActivityLevel, error)
}

// NewPusher builds a pusher bound to db and conn, using ckpt for resume
// position and opts for batch size/window/continuous-mode configuration.
func NewPusher(db *DBActor, conn *transport.Connection, ckpt *CheckpointStore, opts model.Options, onStatus func(ActivityLevel, error)) *Pusher {
	window := opts.PushWindow
	if window <= 0 {
		window = 20
	}
	return &Pusher{
		db:       db,
		conn:     conn,
		ckpt:     ckpt,
		opts:     opts,
		window:   make(chan struct{}, window),
		notifyCh: make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		onStatus: onStatus,
	}
}

// Notify wakes a continuous pusher parked in CaughtUp, e.g. after a local
// write (spec §4.2 "registers a DB change observer and re-enters Busy").
func (p *Pusher) Notify() {
	select {
	case p.notifyCh <- struct{}{}:
	default:
	}
}

// Stop requests the push loop to exit after its current batch.
func (p *Pusher) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

// State returns the pusher's current activity level.
func (p *Pusher) State() ActivityLevel { return ActivityLevel(p.state.Load()) }

func (p *Pusher) setState(s ActivityLevel, err error) {
	p.state.Store(int32(s))
	if p.onStatus != nil {
		p.onStatus(s, err)
	}
}

// Run drives the push loop until Stop is called or a fatal error occurs.
// continuous mode keeps looping after CaughtUp instead of returning.
func (p *Pusher) Run(ctx context.Context) error {
	p.wg.Add(1)
	defer p.wg.Done()

	cp, err := p.ckpt.Resolve(ctx)
	if err != nil {
		p.setState(Stopped, err)
		return err
	}
	since := cp.LastPushed
	batchSize := p.opts.PushBatchSize
	if batchSize <= 0 {
		batchSize = 200
	}

	for {
		p.setState(Busy, nil)
		progressed, newSince, err := p.pushOneBatch(ctx, since, batchSize)
		if err != nil {
			p.setState(Stopped, err)
			return err
		}
		since = newSince

		if progressed {
			if err := p.ckpt.Save(ctx, model.Checkpoint{LastPushed: since}); err != nil {
				p.setState(Stopped, err)
				return err
			}
			continue
		}

		p.setState(CaughtUp, nil)
		if p.opts.Push != model.ModeContinuous {
			return nil
		}
		select {
		case <-p.notifyCh:
			continue
		case <-p.stopCh:
			p.setState(Stopped, nil)
			return nil
		case <-ctx.Done():
			p.setState(Stopped, ctx.Err())
			return ctx.Err()
		}
	}
}

// pushOneBatch fetches up to batchSize changes after since, announces
// them, and sends every wanted revision. Returns whether any changes were
// found and the new high-water sequence.
func (p *Pusher) pushOneBatch(ctx context.Context, since uint64, batchSize int) (bool, uint64, error) {
	entries, err := p.db.GetChanges(GetChangesParams{Since: since, DocIDs: p.opts.DocIDs, Limit: batchSize})
	if err != nil {
		return false, since, err
	}
	if len(entries) == 0 {
		return false, since, nil
	}

	msg, err := BuildChanges(entries)
	if err != nil {
		return false, since, err
	}
	resp, err := p.conn.Request(ctx, msg)
	if err != nil {
		return false, since, &model.TransientError{Err: err}
	}
	wants, err := ParseChangesReply(resp)
	if err != nil {
		return false, since, err
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(entries))
	for i, entry := range entries {
		if i >= len(wants) || !wants[i].Wanted {
			continue
		}
		entry := entry
		select {
		case p.window <- struct{}{}:
		case <-ctx.Done():
			return false, since, ctx.Err()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-p.window }()
			if err := p.sendOne(ctx, entry); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		return false, since, err
	}

	newSince := entries[len(entries)-1].Sequence
	return true, newSince, nil
}

func (p *Pusher) sendOne(ctx context.Context, entry model.ChangeEntry) error {
	body, history, deleted, err := p.db.SendRevision(entry.DocID, entry.RevID, nil)
	if err != nil {
		return err
	}
	msg := BuildRev(entry.DocID, entry.RevID, deleted, history, "", body)
	_, err = p.conn.Request(ctx, msg)
	if err != nil {
		return &model.TransientError{Err: err}
	}
	return nil
}
