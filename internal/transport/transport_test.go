package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_EncodeDecodeRoundTrip(t *testing.T) {
	m := &Message{
		Number:     7,
		Type:       TypeRequest,
		Profile:    "getCheckpoint",
		Properties: map[string]string{"client": "litesync/1"},
		Body:       []byte(`{"id":"cp-1"}`),
	}
	data, err := m.Encode()
	require.NoError(t, err)

	back, err := DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, m.Number, back.Number)
	assert.Equal(t, m.Type, back.Type)
	assert.Equal(t, m.Profile, back.Profile)
	assert.Equal(t, m.Body, back.Body)
	assert.Equal(t, "litesync/1", back.Property("client"))
}

func TestConnection_RequestResponseLoopback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Accept(w, r)
		require.NoError(t, err)
		conn.Handler = func(msg *Message) {
			reply := msg.Reply(nil, []byte("pong"))
			_ = conn.Send(reply)
		}
		<-conn.Done()
	}))
	defer server.Close()

	addr := "ws" + strings.TrimPrefix(server.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, addr, nil)
	require.NoError(t, err)
	defer client.Close()

	resp, err := client.Request(ctx, &Message{Type: TypeRequest, Profile: "ping", Body: []byte("ping")})
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), resp.Body)
}

func TestMessage_ErrorReply(t *testing.T) {
	req := &Message{Number: 3, Type: TypeRequest, Profile: "rev"}
	errMsg := req.ReplyWithError(409, "conflict")
	assert.Equal(t, TypeError, errMsg.Type)
	assert.Equal(t, "409", errMsg.Property("Error-Code"))
	assert.Equal(t, "conflict", errMsg.Property("Error"))
}
