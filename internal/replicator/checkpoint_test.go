package replicator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codetrek/litesync/internal/transport"
	"github.com/codetrek/litesync/pkg/model"
)

func TestCheckpointStore_ResolveEmptyBothSides(t *testing.T) {
	store := openStore(t)
	ckpt := NewCheckpointStore(store, "ck-1", func(ctx context.Context, msg *transport.Message) (*transport.Message, error) {
		return msg.Reply(nil, nil), nil
	})
	cp, err := ckpt.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), cp.LastPushed)
}

func TestCheckpointStore_SaveThenResolveAgrees(t *testing.T) {
	store := openStore(t)
	var remoteData []byte
	requestFn := func(ctx context.Context, msg *transport.Message) (*transport.Message, error) {
		switch msg.Profile {
		case ProfileGetCheckpoint:
			return msg.Reply(nil, remoteData), nil
		case ProfileSetCheckpoint:
			remoteData = msg.Body
			return msg.Reply(nil, nil), nil
		}
		return msg.Reply(nil, nil), nil
	}
	ckpt := NewCheckpointStore(store, "ck-1", requestFn)

	require.NoError(t, ckpt.Save(context.Background(), model.Checkpoint{LastPushed: 5}))

	cp, err := ckpt.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), cp.LastPushed)
}

func TestCheckpointStore_MismatchResetsToZero(t *testing.T) {
	store := openStore(t)
	require.NoError(t, store.SetCheckpoint(context.Background(), "ck-1", model.Checkpoint{LastPushed: 1}.Encode()))

	requestFn := func(ctx context.Context, msg *transport.Message) (*transport.Message, error) {
		return msg.Reply(nil, model.Checkpoint{LastPushed: 99}.Encode()), nil
	}
	ckpt := NewCheckpointStore(store, "ck-1", requestFn)

	cp, err := ckpt.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Checkpoint{}, cp)
}
