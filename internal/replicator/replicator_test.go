package replicator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codetrek/litesync/internal/blobstore"
	"github.com/codetrek/litesync/internal/transport"
	"github.com/codetrek/litesync/pkg/model"
)

// TestReplicator_FreshOneShotPush exercises spec's end-to-end scenario 1:
// a local DB with one document pushed to an empty peer ends with the peer
// holding that document and the checkpoint advanced past it.
func TestReplicator_FreshOneShotPush(t *testing.T) {
	serverStore := openStore(t)
	serverBlobs := blobstore.New()

	var serverRepl *Replicator
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := transport.Accept(w, r)
		require.NoError(t, err)
		serverRepl = New(serverStore, serverBlobs, conn, "client", model.Options{Pull: model.ModeOneShot}.WithDefaults())
		<-conn.Done()
	}))
	defer server.Close()

	clientStore := openStore(t)
	clientBlobs := blobstore.New()
	rev := model.RevID{Generation: 1, Digest: "abc"}
	require.NoError(t, clientStore.CreateLocal(context.Background(), "a", rev, []byte(`{"hello":"world"}`)))

	addr := "ws" + strings.TrimPrefix(server.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := transport.Dial(ctx, addr, nil)
	require.NoError(t, err)
	defer conn.Close()

	clientRepl := New(clientStore, clientBlobs, conn, "server", model.Options{Push: model.ModeOneShot}.WithDefaults())
	require.NoError(t, clientRepl.Start(ctx))
	clientRepl.wg.Wait()

	deadline := time.Now().Add(3 * time.Second)
	for {
		doc, found, err := serverStore.GetDocument(context.Background(), "a")
		require.NoError(t, err)
		if found && doc.RevID == rev {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("peer never received document a")
		}
		time.Sleep(20 * time.Millisecond)
	}

	doc, found, err := serverStore.GetDocument(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rev, doc.RevID)
	assert.Equal(t, []byte(`{"hello":"world"}`), doc.Body)

	status := clientRepl.Status()
	assert.Equal(t, CaughtUp, status.Push)

	_ = serverRepl
}

func TestReplicator_EmptyChangesGoesCaughtUpImmediately(t *testing.T) {
	serverStore := openStore(t)
	serverBlobs := blobstore.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := transport.Accept(w, r)
		require.NoError(t, err)
		New(serverStore, serverBlobs, conn, "client", model.Options{Pull: model.ModeOneShot}.WithDefaults())
		<-conn.Done()
	}))
	defer server.Close()

	clientStore := openStore(t)
	clientBlobs := blobstore.New()

	addr := "ws" + strings.TrimPrefix(server.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := transport.Dial(ctx, addr, nil)
	require.NoError(t, err)
	defer conn.Close()

	clientRepl := New(clientStore, clientBlobs, conn, "server", model.Options{Push: model.ModeOneShot}.WithDefaults())
	require.NoError(t, clientRepl.Start(ctx))
	clientRepl.wg.Wait()

	assert.Equal(t, CaughtUp, clientRepl.Status().Push)
}
