package replicator

import (
	"context"
	"fmt"

	"github.com/codetrek/litesync/internal/revstore"
	"github.com/codetrek/litesync/internal/transport"
	"github.com/codetrek/litesync/pkg/model"
)

// CheckpointStore mediates the local and remote copies of a replication
// channel's checkpoint, resolving disagreement by resetting to zero (spec
// §4.4). It never talks to the wire directly — a caller-supplied request
// function performs the getCheckpoint/setCheckpoint round trip, keeping
// this type free of a transport dependency for testing.
type CheckpointStore struct {
	store     *revstore.Store
	key       string
	requestFn func(ctx context.Context, msg *transport.Message) (*transport.Message, error)
}

// NewCheckpointStore builds a store for the channel identified by key
// (CheckpointKey's output), performing remote round trips via requestFn.
func NewCheckpointStore(store *revstore.Store, key string, requestFn func(context.Context, *transport.Message) (*transport.Message, error)) *CheckpointStore {
	return &CheckpointStore{store: store, key: key, requestFn: requestFn}
}

// Resolve fetches both the local and remote checkpoints, reconciling a
// mismatch by resetting the returned checkpoint to zero (push resumes
// from scratch; the revision tree's insert is idempotent, so this never
// loses data — spec §4.4's safety argument).
func (c *CheckpointStore) Resolve(ctx context.Context) (model.Checkpoint, error) {
	localData, err := c.store.GetCheckpoint(ctx, c.key)
	if err != nil {
		return model.Checkpoint{}, fmt.Errorf("replicator: local checkpoint: %w", err)
	}
	var local model.Checkpoint
	if localData != nil {
		local, err = model.DecodeCheckpoint(localData)
		if err != nil {
			return model.Checkpoint{}, err
		}
	}

	if c.requestFn == nil {
		return local, nil
	}

	resp, err := c.requestFn(ctx, BuildGetCheckpoint(c.key))
	if err != nil {
		return model.Checkpoint{}, &model.TransientError{Err: err}
	}
	if len(resp.Body) == 0 {
		// Peer has no checkpoint of its own; local value (possibly zero) stands.
		return local, nil
	}
	remote, err := model.DecodeCheckpoint(resp.Body)
	if err != nil {
		return model.Checkpoint{}, err
	}
	if remote != local {
		return model.Checkpoint{}, nil
	}
	return local, nil
}

// Save persists a new checkpoint value locally and, if a remote round trip
// is configured, on the peer.
func (c *CheckpointStore) Save(ctx context.Context, cp model.Checkpoint) error {
	data := cp.Encode()
	if err := c.store.SetCheckpoint(ctx, c.key, data); err != nil {
		return err
	}
	if c.requestFn == nil {
		return nil
	}
	_, err := c.requestFn(ctx, BuildSetCheckpoint(c.key, "", data))
	return err
}
