package model

import (
	"bytes"
	"encoding/hex"

	"github.com/ugorji/go/codec"
	"github.com/zeebo/blake3"
)

// Checkpoint is the resumption marker for a (local, remote, options)
// replication channel (spec §3, §4.4). It exists in two mirrored copies —
// one in the local DB, one on the peer — which must agree.
type Checkpoint struct {
	// LastPushed is the last local sequence successfully pushed.
	LastPushed uint64 `codec:"push"`
	// PullCursor is an opaque cursor describing the last revision pulled,
	// meaningful only to the peer that issued it.
	PullCursor string `codec:"pull"`
}

var cborHandle = &codec.CborHandle{}

// Encode serializes a checkpoint to the opaque binary form persisted in the
// local DB's reserved table and in the peer's checkpoint document.
func (c Checkpoint) Encode() []byte {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, cborHandle)
	_ = enc.Encode(c)
	return buf.Bytes()
}

// DecodeCheckpoint is the inverse of Encode. An empty slice decodes to the
// zero Checkpoint (fresh replication).
func DecodeCheckpoint(data []byte) (Checkpoint, error) {
	var c Checkpoint
	if len(data) == 0 {
		return c, nil
	}
	dec := codec.NewDecoderBytes(data, cborHandle)
	if err := dec.Decode(&c); err != nil {
		return Checkpoint{}, err
	}
	return c, nil
}

// CheckpointKey computes the stable digest spec §4.4 requires: a hash over
// (local DB UUID, remote URL, filter options, protocol version), hex
// encoded so it can be used directly as a document ID / wire property.
func CheckpointKey(localUUID, remoteURL string, filterOptionsJSON []byte, protocolVersion string) string {
	h := blake3.New()
	h.Write([]byte(localUUID))
	h.Write([]byte{0})
	h.Write([]byte(remoteURL))
	h.Write([]byte{0})
	h.Write(filterOptionsJSON)
	h.Write([]byte{0})
	h.Write([]byte(protocolVersion))
	sum := h.Sum(nil)
	return "checkpoint-" + hex.EncodeToString(sum[:16])
}
