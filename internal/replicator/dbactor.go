package replicator

import (
	"context"
	"fmt"
	"sync"

	"github.com/codetrek/litesync/internal/blobstore"
	"github.com/codetrek/litesync/internal/revstore"
	"github.com/codetrek/litesync/pkg/model"
)

// dbCommand is a message dispatched through DBActor's mailbox; it carries
// a single closure that the dispatch loop runs. This stands in for the source's per-operation virtual method
// (spec §9 "implement as tagged message variants per actor plus a
// dispatch loop").
type dbCommand struct {
	run func(ctx context.Context, a *DBActor)
}

// DBActor serializes the replicator's change-feed, checkpoint, send and
// proposed-change reads through a single mailbox goroutine (spec §3
// Ownership, §4.1): those exported methods enqueue a command and wait for
// it to run. InsertRevision and SetCookie do not go through the mailbox,
// and the store is not owned exclusively by it: the InsertBatcher writes
// batches from the caller's or its timer's goroutine, and CheckpointStore
// and Replicator.New call the store directly. revstore's single pooled
// connection is what serializes those callers against each other.
type DBActor struct {
	store   *revstore.Store
	blobs   *blobstore.Store
	batcher *InsertBatcher
	cookies *CookieStore

	pendingMu sync.Mutex
	pending   map[string]struct{}

	mailbox chan dbCommand
	done    chan struct{}
}

// NewDBActor starts the actor's dispatch loop and returns a handle to it.
func NewDBActor(store *revstore.Store, blobs *blobstore.Store, batcher *InsertBatcher, cookies *CookieStore) *DBActor {
	a := &DBActor{
		store:   store,
		blobs:   blobs,
		batcher: batcher,
		cookies: cookies,
		pending: make(map[string]struct{}),
		mailbox: make(chan dbCommand, 64),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *DBActor) run() {
	defer close(a.done)
	ctx := context.Background()
	for cmd := range a.mailbox {
		cmd.run(ctx, a)
	}
}

// Stop closes the mailbox and waits for the dispatch loop to drain.
func (a *DBActor) Stop() {
	close(a.mailbox)
	<-a.done
}

func (a *DBActor) enqueue(run func(ctx context.Context, a *DBActor)) {
	done := make(chan struct{})
	a.mailbox <- dbCommand{run: func(ctx context.Context, a *DBActor) {
		defer close(done)
		run(ctx, a)
	}}
	<-done
}

// GetCheckpoint computes checkpointID, reads the local checkpoint doc, and
// reports whether the database is currently empty (spec §4.1
// get_checkpoint).
func (a *DBActor) GetCheckpoint(checkpointID string) (data []byte, dbIsEmpty bool, err error) {
	a.enqueue(func(ctx context.Context, a *DBActor) {
		data, err = a.store.GetCheckpoint(ctx, checkpointID)
		if err != nil {
			return
		}
		dbIsEmpty, err = a.store.IsEmpty(ctx)
	})
	return
}

// SetCheckpoint persists data under checkpointID atomically.
func (a *DBActor) SetCheckpoint(checkpointID string, data []byte) error {
	var err error
	a.enqueue(func(ctx context.Context, a *DBActor) {
		err = a.store.SetCheckpoint(ctx, checkpointID, data)
	})
	return err
}

// GetChangesParams bundles get_changes' filter options (spec §4.1).
type GetChangesParams struct {
	Since       uint64
	DocIDs      map[string]struct{}
	Limit       int
	SkipDeleted bool
	SkipForeign bool
}

// GetChanges enumerates local changes after params.Since under the given
// filters.
func (a *DBActor) GetChanges(params GetChangesParams) ([]model.ChangeEntry, error) {
	var (
		entries []model.ChangeEntry
		err     error
	)
	a.enqueue(func(ctx context.Context, a *DBActor) {
		entries, err = a.store.EnumerateChanges(ctx, params.Since, params.DocIDs, params.Limit, params.SkipDeleted, params.SkipForeign)
	})
	return entries, err
}

// FindOrRequestRevs computes the wanted-mask for an incoming changes/
// proposedChanges announcement (spec §4.1 find_or_request_revs). Revisions
// already recorded as pending (requested but not yet inserted) are
// reported not-wanted to suppress duplicate announcements.
func (a *DBActor) FindOrRequestRevs(docID string, revID model.RevID, ancestors []model.RevID) (wanted bool, knownAncestors []model.RevID, err error) {
	a.enqueue(func(ctx context.Context, a *DBActor) {
		key := docID + "\x00" + revID.String()

		a.pendingMu.Lock()
		_, alreadyPending := a.pending[key]
		a.pendingMu.Unlock()
		if alreadyPending {
			return
		}

		exists, existsErr := a.store.RevisionExists(ctx, docID, revID)
		if existsErr != nil {
			err = existsErr
			return
		}
		if exists {
			return
		}

		tip, found, tipErr := a.store.GetDocument(ctx, docID)
		if tipErr != nil {
			err = tipErr
			return
		}
		if found && !tip.RevID.Less(revID) {
			// Local tip is already at or ahead of the announced revision.
			return
		}

		knownAncestors, err = a.store.FindAncestors(ctx, docID, revID)
		if err != nil {
			return
		}
		wanted = true
		a.pendingMu.Lock()
		a.pending[key] = struct{}{}
		a.pendingMu.Unlock()
	})
	return
}

// clearPending removes a (docID, revID) pair from the pending-request set
// once its insert has been attempted, regardless of outcome.
func (a *DBActor) clearPending(docID string, revID model.RevID) {
	key := docID + "\x00" + revID.String()
	a.pendingMu.Lock()
	delete(a.pending, key)
	a.pendingMu.Unlock()
}

// SendRevision reads a revision's body for outbound transfer, rewriting
// any legacy inline attachment references into content-addressed blob
// digests (spec §4.1 send_revision). onProgress is invoked once with the
// final byte count; the transport layer above streams the body itself.
func (a *DBActor) SendRevision(docID string, revID model.RevID, onProgress func(bytesSent int)) (body []byte, history []model.RevID, deleted bool, err error) {
	a.enqueue(func(ctx context.Context, a *DBActor) {
		doc, found, dErr := a.store.GetDocument(ctx, docID)
		if dErr != nil {
			err = dErr
			return
		}
		if !found {
			err = fmt.Errorf("replicator: %w: %s", model.ErrNotFound, docID)
			return
		}
		body = doc.Body
		deleted = doc.Deleted
		if a.blobs != nil {
			body, err = rewriteInlineAttachments(body, a.blobs)
			if err != nil {
				return
			}
		}
		history, err = a.store.FindAncestors(ctx, docID, revID)
		if err != nil {
			return
		}
		if onProgress != nil {
			onProgress(len(body))
		}
	})
	return
}

// InsertRevision enqueues rev into the batch queue and notifies the
// pending-request set that the request has been resolved (spec §4.1
// insert_revision).
func (a *DBActor) InsertRevision(rev model.RevToInsert) {
	a.clearPending(rev.DocID, rev.RevID)
	a.batcher.Add(rev)
}

// SetCookie parses a Set-Cookie header as seen from fromHost and inserts
// it into the cookie store.
func (a *DBActor) SetCookie(header, fromHost string) bool {
	return a.cookies.SetCookie(header, fromHost)
}

// FindProposedChange reports the proposeChanges status for (docID, revID,
// parentRevID): 0 acceptable, 403 already present/diverged, 409 stale
// parent (spec §4.1 find_proposed_change).
func (a *DBActor) FindProposedChange(docID string, revID, parentRevID model.RevID) (int, error) {
	var (
		status int
		err    error
	)
	a.enqueue(func(ctx context.Context, a *DBActor) {
		status, err = a.store.FindProposedChange(ctx, docID, revID, parentRevID)
	})
	return status, err
}
