package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRoundTrip(t *testing.T) {
	c := Checkpoint{LastPushed: 42, PullCursor: "seq:99"}

	data := c.Encode()
	require.NotEmpty(t, data)

	decoded, err := DecodeCheckpoint(data)
	require.NoError(t, err)
	assert.Equal(t, c, decoded)
}

func TestDecodeCheckpoint_Empty(t *testing.T) {
	decoded, err := DecodeCheckpoint(nil)
	require.NoError(t, err)
	assert.Equal(t, Checkpoint{}, decoded)
}

func TestCheckpointKey_StableAndSensitiveToInputs(t *testing.T) {
	k1 := CheckpointKey("uuid-a", "wss://peer/db", nil, "litesync/1")
	k2 := CheckpointKey("uuid-a", "wss://peer/db", nil, "litesync/1")
	assert.Equal(t, k1, k2, "same inputs must hash identically")

	k3 := CheckpointKey("uuid-b", "wss://peer/db", nil, "litesync/1")
	assert.NotEqual(t, k1, k3, "different local UUID must change the key")

	k4 := CheckpointKey("uuid-a", "wss://other/db", nil, "litesync/1")
	assert.NotEqual(t, k1, k4, "different remote URL must change the key")
}
