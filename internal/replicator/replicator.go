package replicator

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codetrek/litesync/internal/blobstore"
	"github.com/codetrek/litesync/internal/revstore"
	"github.com/codetrek/litesync/internal/transport"
	"github.com/codetrek/litesync/pkg/model"
)

// Replicator is the top-level coordinator: it owns the sub-actors, drives
// their lifecycle, and rolls up their status into one externally visible
// Status (spec §2's "Replicator" row, §9's cyclic-ownership note broken by
// one-way status callbacks into this type instead of a strong back-edge).
type Replicator struct {
	store  *revstore.Store
	blobs  *blobstore.Store
	conn   *transport.Connection
	opts   model.Options
	remote string
	log    *logrus.Entry

	dbActor *DBActor
	batcher *InsertBatcher
	cookies *CookieStore
	pusher  *Pusher
	puller  *Puller

	mu     sync.Mutex
	status Status

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a replicator for one channel: store is the local database,
// conn an already-established transport connection to remote, and opts
// the push/pull configuration (spec §6 "configuration options recognized
// by the replicator").
func New(store *revstore.Store, blobs *blobstore.Store, conn *transport.Connection, remote string, opts model.Options) *Replicator {
	log := logrus.WithField("component", "replicator").WithField("remote", remote)
	cookies := NewCookieStore()
	r := &Replicator{
		store:   store,
		blobs:   blobs,
		conn:    conn,
		opts:    opts,
		remote:  remote,
		log:     log,
		cookies: cookies,
	}

	r.batcher = NewInsertBatcher(store, opts.InsertBatchHighWater, time.Duration(opts.InsertBatchInterval)*time.Millisecond, remote, r.onInsertResult)
	r.dbActor = NewDBActor(store, blobs, r.batcher, cookies)

	checkpointID := checkpointIDFor(store, remote, opts)
	pushCkpt := NewCheckpointStore(store, checkpointID, r.roundTrip)
	pullCkpt := NewCheckpointStore(store, checkpointID, r.roundTrip)

	if opts.Push.Active() {
		r.pusher = NewPusher(r.dbActor, conn, pushCkpt, opts, r.onPushStatus)
	}
	if opts.Pull.Active() {
		r.puller = NewPuller(r.dbActor, conn, pullCkpt, opts, r.onPullStatus)
	}

	conn.Handler = r.dispatch
	return r
}

func checkpointIDFor(store *revstore.Store, remote string, opts model.Options) string {
	uuid, err := store.LocalUUID(context.Background())
	if err != nil {
		uuid = ""
	}
	return model.CheckpointKey(uuid, remote, opts.FilterOptionsKey(), opts.ProtocolVersion)
}

// roundTrip is the CheckpointStore's remote request function.
func (r *Replicator) roundTrip(ctx context.Context, msg *transport.Message) (*transport.Message, error) {
	return r.conn.Request(ctx, msg)
}

// dispatch routes an unsolicited incoming request by profile to the
// puller (spec §6's profile table drives this switch directly).
func (r *Replicator) dispatch(msg *transport.Message) {
	var (
		reply *transport.Message
		err   error
	)
	switch msg.Profile {
	case ProfileChanges:
		if r.puller != nil {
			reply, err = r.puller.HandleChanges(msg)
		}
	case ProfileProposedChanges:
		if r.puller != nil {
			reply, err = r.puller.HandleProposedChanges(msg)
		}
	case ProfileRev:
		if r.puller != nil {
			err = r.puller.HandleRev(msg)
			if err == nil {
				reply = msg.Reply(nil, nil)
			}
		}
	case ProfileNoRev:
		if r.puller != nil {
			r.puller.HandleNoRev(msg)
		}
	case ProfileGetCheckpoint:
		reply, err = r.handleGetCheckpoint(msg)
	case ProfileSetCheckpoint:
		reply, err = r.handleSetCheckpoint(msg)
	case ProfileSubChanges:
		// A peer subscribing to us plays the role of our Pusher's remote
		// counterpart; a full server-side responder is outside this
		// replicator's client-oriented scope.
		reply = msg.Reply(nil, nil)
	default:
		err = fmt.Errorf("%w: unknown profile %q", model.ErrMalformedMessage, msg.Profile)
	}

	if err != nil {
		r.log.WithError(err).WithField("profile", msg.Profile).Warn("request failed")
		if !msg.NoReply() {
			_ = r.conn.Send(msg.ReplyWithError(statusForError(err), err.Error()))
		}
		return
	}
	if reply != nil && !msg.NoReply() {
		_ = r.conn.Send(reply)
	}
}

func statusForError(err error) int {
	switch Classify(err) {
	case ClassDocumentConflict:
		return 409
	case ClassAuthentication:
		return 401
	case ClassMalformedMessage:
		return 400
	default:
		return 500
	}
}

func (r *Replicator) handleGetCheckpoint(msg *transport.Message) (*transport.Message, error) {
	data, _, err := r.dbActor.GetCheckpoint(msg.Property("client"))
	if err != nil {
		return nil, err
	}
	return msg.Reply(nil, data), nil
}

func (r *Replicator) handleSetCheckpoint(msg *transport.Message) (*transport.Message, error) {
	if err := r.dbActor.SetCheckpoint(msg.Property("client"), msg.Body); err != nil {
		return nil, err
	}
	return msg.Reply(nil, nil), nil
}

func (r *Replicator) onInsertResult(result InsertResult) {
	if r.puller != nil {
		r.puller.OnInserted(result)
	}
	r.mu.Lock()
	if result.Err != nil {
		r.status.Progress.LastError = result.Err
	} else if result.Conflict {
		r.status.Progress.Conflicts++
	} else {
		r.status.Progress.DocsPulled++
	}
	r.mu.Unlock()
}

func (r *Replicator) onPushStatus(level ActivityLevel, err error) {
	r.mu.Lock()
	r.status.Push = level
	if err != nil {
		r.status.Err = err
	}
	r.mu.Unlock()
}

func (r *Replicator) onPullStatus(level ActivityLevel, err error) {
	r.mu.Lock()
	r.status.Pull = level
	if err != nil {
		r.status.Err = err
	}
	r.mu.Unlock()
}

// Start launches the pusher and/or puller loops as configured.
func (r *Replicator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	if r.puller != nil {
		if err := r.puller.Start(ctx); err != nil {
			cancel()
			return err
		}
	}
	if r.pusher != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.pusher.Run(ctx); err != nil {
				r.log.WithError(err).Warn("pusher exited")
			}
		}()
	}
	return nil
}

// Stop cancels all outstanding work, flushes the insert queue, and waits
// for sub-actors to quiesce (spec §5 "Cancellation").
func (r *Replicator) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.pusher != nil {
		r.pusher.Stop()
	}
	r.wg.Wait()
	r.batcher.Flush()
	r.dbActor.Stop()
	r.batcher.Close()
}

// Status returns a snapshot of the replicator's current state.
func (r *Replicator) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// ServeUpgrade accepts an inbound websocket connection and returns it
// wrapped as a transport.Connection ready to be passed to New, for the
// server side of a replication channel.
func ServeUpgrade(w http.ResponseWriter, req *http.Request) (*transport.Connection, error) {
	return transport.Accept(w, req)
}
