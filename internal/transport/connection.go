package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Connection is a full-duplex, framed message channel over a websocket.
// It multiplexes concurrent requests by message number the way BLIP does,
// and dispatches unsolicited incoming requests to Handler.
type Connection struct {
	log  *logrus.Entry
	ws   *websocket.Conn
	seq  atomic.Uint64

	Handler func(*Message)

	mu      sync.Mutex
	pending map[uint64]chan *Message
	writeMu sync.Mutex
	closed  bool
	closeCh chan struct{}
}

// Dial opens a websocket connection to addr (ws:// or wss://), sending
// header (which may be nil) with the handshake request.
func Dial(ctx context.Context, addr string, header http.Header) (*Connection, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("transport: parse address: %w", err)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	ws, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("transport: dial: %w", err)
	}
	return newConnection(ws, "client"), nil
}

// Accept upgrades an inbound HTTP request to a websocket connection.
func Accept(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: upgrade: %w", err)
	}
	return newConnection(ws, "server"), nil
}

func newConnection(ws *websocket.Conn, role string) *Connection {
	c := &Connection{
		log:     logrus.WithField("component", "transport").WithField("role", role),
		ws:      ws,
		pending: make(map[uint64]chan *Message),
		closeCh: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Send writes msg to the wire without waiting for a reply. Use for
// one-way messages and for replies built from Message.Reply.
func (c *Connection) Send(msg *Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

// Request sends msg and blocks until its correlated response arrives or
// ctx is done.
func (c *Connection) Request(ctx context.Context, msg *Message) (*Message, error) {
	if msg.Number == 0 {
		msg.Number = c.seq.Add(1)
	}
	reply := make(chan *Message, 1)
	c.mu.Lock()
	c.pending[msg.Number] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.Number)
		c.mu.Unlock()
	}()

	if err := c.Send(msg); err != nil {
		return nil, err
	}

	select {
	case resp := <-reply:
		if resp.Type == TypeError {
			return resp, fmt.Errorf("transport: peer error %s: %s", resp.Property("Error-Code"), resp.Property("Error"))
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closeCh:
		return nil, fmt.Errorf("transport: connection closed")
	}
}

func (c *Connection) readLoop() {
	defer close(c.closeCh)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.log.WithError(err).Debug("read loop exiting")
			return
		}
		msg, err := DecodeMessage(data)
		if err != nil {
			c.log.WithError(err).Warn("dropping malformed frame")
			continue
		}
		if msg.Type == TypeRequest {
			if c.Handler != nil {
				c.Handler(msg)
			}
			continue
		}
		c.mu.Lock()
		reply, ok := c.pending[msg.Number]
		c.mu.Unlock()
		if ok {
			reply <- msg
		}
	}
}

// Close shuts down the underlying websocket connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.ws.Close()
}

// Done reports a channel closed when the read loop exits (peer closed or
// Close was called).
func (c *Connection) Done() <-chan struct{} { return c.closeCh }
