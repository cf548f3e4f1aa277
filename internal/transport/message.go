// Package transport is the concrete framed message transport collaborator
// spec.md §1 treats abstractly ("the real wire protocol is out of scope;
// the replicator speaks to it through request/response and one-way
// messages with a property dict and a body"). It pairs gorilla/websocket
// for full-duplex framing with ugorji/go/codec's MsgpackHandle for the
// property dictionary, following CovenantSQL's utils/msgpack.go pattern.
package transport

import (
	"bytes"
	"fmt"
	"sync/atomic"

	"github.com/ugorji/go/codec"
)

var msgpackHandle = newMsgpackHandle()

func newMsgpackHandle() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{WriteExt: true}
	h.RawToString = true
	return h
}

// MessageType distinguishes a request awaiting a reply from a one-way
// response/error frame (spec §6's profile table).
type MessageType uint8

const (
	TypeRequest MessageType = iota
	TypeResponse
	TypeError
)

// Message is one frame of the replication wire protocol: a named profile
// (e.g. "getCheckpoint", "changes", "rev"), a property dict carrying
// protocol-specific headers, and an opaque body (typically Fleece-encoded
// JSON or raw blob bytes).
type Message struct {
	Number     uint64
	Type       MessageType
	Profile    string
	Properties map[string]string
	Body       []byte
	urgent     bool
	noReply    bool
}

// Property returns a header value, or "" if absent.
func (m *Message) Property(key string) string {
	if m.Properties == nil {
		return ""
	}
	return m.Properties[key]
}

// SetProperty sets a header value, allocating Properties on first use.
func (m *Message) SetProperty(key, value string) {
	if m.Properties == nil {
		m.Properties = make(map[string]string)
	}
	m.Properties[key] = value
}

// Urgent reports the message's urgent flag. The flag is local to the
// Message: Connection.Send writes frames in call order whatever its value.
func (m *Message) Urgent() bool { return m.urgent }
func (m *Message) SetUrgent(u bool) { m.urgent = u }

// NoReply marks a one-way message that expects no response frame.
func (m *Message) NoReply() bool { return m.noReply }
func (m *Message) SetNoReply(n bool) { m.noReply = n }

// wireFrame is the on-the-wire envelope, msgpack-encoded as a single
// binary websocket frame.
type wireFrame struct {
	Number     uint64            `codec:"n"`
	Type       uint8             `codec:"t"`
	Profile    string            `codec:"p,omitempty"`
	Properties map[string]string `codec:"h,omitempty"`
	Body       []byte            `codec:"b,omitempty"`
}

// Encode serializes m into a single binary frame.
func (m *Message) Encode() ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	enc := codec.NewEncoder(buf, msgpackHandle)
	frame := wireFrame{
		Number:     m.Number,
		Type:       uint8(m.Type),
		Profile:    m.Profile,
		Properties: m.Properties,
		Body:       m.Body,
	}
	if err := enc.Encode(frame); err != nil {
		return nil, fmt.Errorf("transport: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeMessage parses a single binary frame produced by Encode.
func DecodeMessage(data []byte) (*Message, error) {
	var frame wireFrame
	dec := codec.NewDecoder(bytes.NewReader(data), msgpackHandle)
	if err := dec.Decode(&frame); err != nil {
		return nil, fmt.Errorf("transport: decode: %w", err)
	}
	return &Message{
		Number:     frame.Number,
		Type:       MessageType(frame.Type),
		Profile:    frame.Profile,
		Properties: frame.Properties,
		Body:       frame.Body,
	}, nil
}

// NewRequest builds an outgoing request frame with the next message
// number from seq.
func NewRequest(seq *atomic.Uint64, profile string, properties map[string]string, body []byte) *Message {
	return &Message{
		Number:     seq.Add(1),
		Type:       TypeRequest,
		Profile:    profile,
		Properties: properties,
		Body:       body,
	}
}

// Reply builds a response frame correlated to req by message number.
func (m *Message) Reply(properties map[string]string, body []byte) *Message {
	return &Message{
		Number:     m.Number,
		Type:       TypeResponse,
		Properties: properties,
		Body:       body,
	}
}

// ReplyWithError builds an error response frame correlated to req,
// mirroring spec §6's "no-rev with status" pattern generalized to any
// request.
func (m *Message) ReplyWithError(status int, errMessage string) *Message {
	props := map[string]string{
		"Error-Code": fmt.Sprintf("%d", status),
		"Error":      errMessage,
	}
	return &Message{
		Number:     m.Number,
		Type:       TypeError,
		Properties: props,
	}
}
