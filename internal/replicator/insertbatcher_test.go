package replicator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codetrek/litesync/internal/revstore"
	"github.com/codetrek/litesync/pkg/model"
)

func openStore(t *testing.T) *revstore.Store {
	t.Helper()
	s, err := revstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertBatcher_FlushesAtHighWater(t *testing.T) {
	store := openStore(t)
	var mu sync.Mutex
	var results []InsertResult
	b := NewInsertBatcher(store, 2, time.Hour, "peer", func(r InsertResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	})
	defer b.Close()

	b.Add(model.RevToInsert{DocID: "a", RevID: model.RevID{Generation: 1, Digest: "x"}, Body: []byte("1")})
	b.Add(model.RevToInsert{DocID: "b", RevID: model.RevID{Generation: 1, Digest: "y"}, Body: []byte("2")})

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(results)
		mu.Unlock()
		if n == 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
}

func TestInsertBatcher_FlushOnTimer(t *testing.T) {
	store := openStore(t)
	done := make(chan InsertResult, 1)
	b := NewInsertBatcher(store, 100, 20*time.Millisecond, "peer", func(r InsertResult) {
		done <- r
	})
	defer b.Close()

	b.Add(model.RevToInsert{DocID: "a", RevID: model.RevID{Generation: 1, Digest: "x"}, Body: []byte("1")})

	select {
	case r := <-done:
		assert.NoError(t, r.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for timer flush")
	}
}

func TestInsertBatcher_MarksRemoteSynced(t *testing.T) {
	store := openStore(t)
	done := make(chan struct{})
	b := NewInsertBatcher(store, 1, time.Hour, "http://peer", func(r InsertResult) {
		close(done)
	})
	defer b.Close()

	rev := model.RevID{Generation: 1, Digest: "x"}
	b.Add(model.RevToInsert{DocID: "a", RevID: rev, Body: []byte("1")})
	<-done

	got, found, err := store.GetRemoteSynced(context.Background(), "a", "http://peer")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rev, got)
}
