package blobstore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PutGet(t *testing.T) {
	s := New()
	digest := s.Put([]byte("hello world"))

	data, err := s.Get(digest)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestStore_PutIdempotent(t *testing.T) {
	s := New()
	d1 := s.Put([]byte("same"))
	d2 := s.Put([]byte("same"))
	assert.Equal(t, d1, d2)
}

func TestStore_GetMissing(t *testing.T) {
	s := New()
	_, err := s.Get("blake3-deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.Put([]byte{byte(n)})
		}(i)
	}
	wg.Wait()
}
