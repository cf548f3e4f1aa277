// Package blobstore implements the content-addressed blob store spec.md §1
// treats as an out-of-scope external collaborator, "thread-safe, used only
// by reference." DBActor uses it to rewrite legacy inline attachments into
// blob references (spec §4.1 send_revision).
package blobstore

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/zeebo/blake3"
)

// Digest identifies a blob by its content hash, in the "sha256-<hex>"-style
// form the wire protocol uses for legacy attachment metadata, but backed by
// blake3 (already in the teacher's import graph via codetrek-syntrix).
type Digest string

// ErrNotFound is returned by Get for an unknown digest.
var ErrNotFound = fmt.Errorf("blobstore: not found")

// Store is a thread-safe, in-memory content-addressed blob store. A real
// deployment would back this with the disk-backed store spec §1 excludes
// from scope; this satisfies the same narrow interface (put/get by digest).
type Store struct {
	mu    sync.RWMutex
	blobs map[Digest][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{blobs: make(map[Digest][]byte)}
}

// ComputeDigest hashes data the same way Put does, without storing it —
// used by callers that need to know a blob's digest before deciding
// whether to write it (e.g. dedup checks during attachment rewriting).
func ComputeDigest(data []byte) Digest {
	sum := blake3.Sum256(data)
	return Digest("blake3-" + hex.EncodeToString(sum[:]))
}

// Put stores data and returns its digest. Idempotent: storing the same
// bytes twice returns the same digest and does not duplicate storage.
func (s *Store) Put(data []byte) Digest {
	digest := ComputeDigest(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blobs[digest]; !exists {
		cp := make([]byte, len(data))
		copy(cp, data)
		s.blobs[digest] = cp
	}
	return digest
}

// Get retrieves a blob by digest.
func (s *Store) Get(digest Digest) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[digest]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

// Has reports whether digest is already stored, without copying the blob.
func (s *Store) Has(digest Digest) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[digest]
	return ok
}
