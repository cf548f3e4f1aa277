package replicator

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/codetrek/litesync/internal/transport"
	"github.com/codetrek/litesync/pkg/model"
)

// Wire profile names, spec §6's table.
const (
	ProfileGetCheckpoint    = "getCheckpoint"
	ProfileSetCheckpoint    = "setCheckpoint"
	ProfileSubChanges       = "subChanges"
	ProfileChanges          = "changes"
	ProfileProposedChanges  = "proposedChanges"
	ProfileRev              = "rev"
	ProfileNoRev            = "noRev"
)

func revIDString(r model.RevID) string {
	if r.IsZero() {
		return ""
	}
	return r.String()
}

// BuildGetCheckpoint builds the request the CheckpointStore sends on
// startup, keyed by the stable digest checkpointID.
func BuildGetCheckpoint(checkpointID string) *transport.Message {
	return &transport.Message{
		Type:       transport.TypeRequest,
		Profile:    ProfileGetCheckpoint,
		Properties: map[string]string{"client": checkpointID},
	}
}

// BuildSetCheckpoint builds the request persisting data under checkpointID,
// carrying the prior revision for optimistic-concurrency checks.
func BuildSetCheckpoint(checkpointID, priorRev string, data []byte) *transport.Message {
	props := map[string]string{"client": checkpointID}
	if priorRev != "" {
		props["rev"] = priorRev
	}
	return &transport.Message{
		Type:       transport.TypeRequest,
		Profile:    ProfileSetCheckpoint,
		Properties: props,
		Body:       data,
	}
}

// BuildSubChanges builds the puller's subscription request.
func BuildSubChanges(since uint64, batch int, continuous bool, filter string) *transport.Message {
	props := map[string]string{
		"since": strconv.FormatUint(since, 10),
		"batch": strconv.Itoa(batch),
	}
	if continuous {
		props["continuous"] = "true"
	}
	if filter != "" {
		props["filter"] = filter
	}
	return &transport.Message{
		Type:       transport.TypeRequest,
		Profile:    ProfileSubChanges,
		Properties: props,
	}
}

// changeEntryWire is the JSON-array-of-arrays shape spec §6 specifies for
// the "changes" body: [seq, docID, revID, deleted?, bodySize].
type changeEntryWire [5]interface{}

func encodeChangeEntry(e model.ChangeEntry) changeEntryWire {
	return changeEntryWire{e.Sequence, e.DocID, e.RevID.String(), e.Deleted, e.BodySize}
}

// BuildChanges builds a "changes" announcement from a batch of change-feed
// entries (pusher's outbound direction, or a peer's incoming direction).
func BuildChanges(entries []model.ChangeEntry) (*transport.Message, error) {
	wire := make([]changeEntryWire, len(entries))
	for i, e := range entries {
		wire[i] = encodeChangeEntry(e)
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("replicator: encode changes: %w", err)
	}
	return &transport.Message{Type: transport.TypeRequest, Profile: ProfileChanges, Body: body}, nil
}

// ParseChanges decodes a "changes" message body back into change entries.
func ParseChanges(msg *transport.Message) ([]model.ChangeEntry, error) {
	var wire []changeEntryWire
	if err := json.Unmarshal(msg.Body, &wire); err != nil {
		return nil, fmt.Errorf("%w: changes body: %v", model.ErrMalformedMessage, err)
	}
	out := make([]model.ChangeEntry, 0, len(wire))
	for _, w := range wire {
		seq, ok := w[0].(float64)
		if !ok {
			return nil, fmt.Errorf("%w: changes[0] not a number", model.ErrMalformedMessage)
		}
		docID, _ := w[1].(string)
		revStr, _ := w[2].(string)
		rev, err := model.ParseRevID(revStr)
		if err != nil {
			return nil, err
		}
		deleted, _ := w[3].(bool)
		bodySize, _ := w[4].(float64)
		out = append(out, model.ChangeEntry{
			Sequence: uint64(seq),
			DocID:    docID,
			RevID:    rev,
			Deleted:  deleted,
			BodySize: int(bodySize),
		})
	}
	return out, nil
}

// proposedChangeWire is [docID, revID, parentRevID].
type proposedChangeWire [3]string

// BuildProposedChanges builds a "proposedChanges" announcement (used when
// the peer supports rejecting a revision without transferring its body).
func BuildProposedChanges(entries []model.ChangeEntry, parents map[string]model.RevID) (*transport.Message, error) {
	wire := make([]proposedChangeWire, len(entries))
	for i, e := range entries {
		wire[i] = proposedChangeWire{e.DocID, e.RevID.String(), revIDString(parents[e.DocID])}
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("replicator: encode proposedChanges: %w", err)
	}
	return &transport.Message{Type: transport.TypeRequest, Profile: ProfileProposedChanges, Body: body}, nil
}

// ParseProposedChanges decodes a "proposedChanges" body.
func ParseProposedChanges(msg *transport.Message) ([]model.ChangeEntry, []model.RevID, error) {
	var wire []proposedChangeWire
	if err := json.Unmarshal(msg.Body, &wire); err != nil {
		return nil, nil, fmt.Errorf("%w: proposedChanges body: %v", model.ErrMalformedMessage, err)
	}
	entries := make([]model.ChangeEntry, 0, len(wire))
	parents := make([]model.RevID, 0, len(wire))
	for _, w := range wire {
		rev, err := model.ParseRevID(w[1])
		if err != nil {
			return nil, nil, err
		}
		var parent model.RevID
		if w[2] != "" {
			parent, err = model.ParseRevID(w[2])
			if err != nil {
				return nil, nil, err
			}
		}
		entries = append(entries, model.ChangeEntry{DocID: w[0], RevID: rev})
		parents = append(parents, parent)
	}
	return entries, parents, nil
}

// WantedEntry is one element of a "changes" reply: NotWanted, or Wanted
// with zero or more ancestor revIDs already known locally.
type WantedEntry struct {
	Wanted    bool
	Ancestors []model.RevID
}

// BuildChangesReply encodes the reply body: each element is 0 (not
// wanted), [] (wanted, no ancestors), or [ancestor, …].
func BuildChangesReply(msg *transport.Message, wants []WantedEntry) *transport.Message {
	wire := make([]interface{}, len(wants))
	for i, w := range wants {
		if !w.Wanted {
			wire[i] = 0
			continue
		}
		anc := make([]string, len(w.Ancestors))
		for j, a := range w.Ancestors {
			anc[j] = a.String()
		}
		wire[i] = anc
	}
	body, _ := json.Marshal(wire)
	return msg.Reply(nil, body)
}

// ParseChangesReply decodes a "changes" reply body into wanted entries.
func ParseChangesReply(msg *transport.Message) ([]WantedEntry, error) {
	var wire []json.RawMessage
	if err := json.Unmarshal(msg.Body, &wire); err != nil {
		return nil, fmt.Errorf("%w: changes reply: %v", model.ErrMalformedMessage, err)
	}
	out := make([]WantedEntry, len(wire))
	for i, raw := range wire {
		trimmed := strings.TrimSpace(string(raw))
		if trimmed == "0" {
			out[i] = WantedEntry{Wanted: false}
			continue
		}
		var ancStrs []string
		if err := json.Unmarshal(raw, &ancStrs); err != nil {
			return nil, fmt.Errorf("%w: changes reply entry: %v", model.ErrMalformedMessage, err)
		}
		ancestors := make([]model.RevID, 0, len(ancStrs))
		for _, s := range ancStrs {
			rev, err := model.ParseRevID(s)
			if err != nil {
				return nil, err
			}
			ancestors = append(ancestors, rev)
		}
		out[i] = WantedEntry{Wanted: true, Ancestors: ancestors}
	}
	return out, nil
}

// BuildRev builds the body transfer message for one revision.
func BuildRev(docID string, revID model.RevID, deleted bool, history []model.RevID, sequence string, body []byte) *transport.Message {
	props := map[string]string{
		"id":  docID,
		"rev": revID.String(),
	}
	if deleted {
		props["deleted"] = "true"
	}
	if len(history) > 0 {
		hist := make([]string, len(history))
		for i, h := range history {
			hist[i] = h.String()
		}
		props["history"] = strings.Join(hist, ",")
	}
	if sequence != "" {
		props["sequence"] = sequence
	}
	return &transport.Message{
		Type:       transport.TypeRequest,
		Profile:    ProfileRev,
		Properties: props,
		Body:       body,
	}
}

// ParseRev decodes an incoming "rev" message into a RevToInsert.
func ParseRev(msg *transport.Message) (model.RevToInsert, error) {
	rev, err := model.ParseRevID(msg.Property("rev"))
	if err != nil {
		return model.RevToInsert{}, err
	}
	var history []model.RevID
	if h := msg.Property("history"); h != "" {
		for _, s := range strings.Split(h, ",") {
			r, err := model.ParseRevID(s)
			if err != nil {
				return model.RevToInsert{}, err
			}
			history = append(history, r)
		}
	}
	return model.RevToInsert{
		DocID:    msg.Property("id"),
		RevID:    rev,
		Body:     msg.Body,
		History:  history,
		Flags:    model.RevFlags{Deleted: msg.Property("deleted") == "true"},
		Sequence: msg.Property("sequence"),
	}, nil
}

// BuildNoRev builds the sender's notice that a requested revision cannot
// be sent.
func BuildNoRev(docID string, revID model.RevID, errMessage string) *transport.Message {
	return &transport.Message{
		Type:    transport.TypeRequest,
		Profile: ProfileNoRev,
		Properties: map[string]string{
			"id":    docID,
			"rev":   revID.String(),
			"error": errMessage,
		},
	}
}
