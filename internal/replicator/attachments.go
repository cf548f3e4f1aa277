package replicator

import (
	"encoding/base64"

	"github.com/codetrek/litesync/internal/blobstore"
	"github.com/codetrek/litesync/internal/fleece"
)

// attachmentsKey is the reserved dict key legacy document bodies use to
// carry attachment metadata, mirroring CouchDB/Couchbase Lite's
// "_attachments" convention.
const attachmentsKey = "_attachments"

// rewriteInlineAttachments implements spec §4.1 send_revision's "rewrite
// any legacy inline attachments into content-addressed blob references": a
// legacy attachment dict carries its bytes inline as a base64 "data"
// field; this walks _attachments, stores each inline blob in blobs, and
// replaces "data" with a "digest" reference. Bodies that are not
// Fleece-encoded, documents with no _attachments dict, or whose
// attachments are already digest references, pass through unchanged (body
// is returned as-is, sharing the input slice).
func rewriteInlineAttachments(body []byte, blobs *blobstore.Store) ([]byte, error) {
	if len(body) == 0 {
		return body, nil
	}
	root, err := fleece.Parse(body, nil)
	if err != nil {
		return body, nil
	}
	docDict, ok := root.AsDict()
	if !ok {
		return body, nil
	}
	attachments, ok := docDict.Get(attachmentsKey).AsDict()
	if !ok {
		return body, nil
	}

	rewrote := false
	newAttachments := make([]fleece.Value, 0, attachments.Len())
	attachmentKeys := attachments.Keys()
	attachments.Iterate(func(name string, v fleece.Value) bool {
		entry, isDict := v.AsDict()
		if !isDict {
			newAttachments = append(newAttachments, v)
			return true
		}
		data, hasInline := entry.Get("data").AsString()
		if !hasInline {
			newAttachments = append(newAttachments, v)
			return true
		}
		raw, decErr := base64.StdEncoding.DecodeString(data)
		if decErr != nil {
			err = decErr
			return false
		}
		digest := blobs.Put(raw)
		newAttachments = append(newAttachments, fleece.DictValue(rebuildAttachmentEntry(entry, digest, len(raw))))
		rewrote = true
		return true
	})
	if err != nil {
		return nil, err
	}
	if !rewrote {
		return body, nil
	}

	newDoc := fleece.DictValue(replaceDictEntry(docDict, attachmentsKey,
		fleece.DictValue(fleece.NewDict(attachmentKeys, newAttachments))))
	return fleece.EncodeValue(newDoc, nil), nil
}

// rebuildAttachmentEntry copies entry's fields other than "data", adding
// "digest" and "length" in its place.
func rebuildAttachmentEntry(entry *fleece.Dict, digest blobstore.Digest, length int) *fleece.Dict {
	keys := make([]string, 0, entry.Len()+1)
	values := make([]fleece.Value, 0, entry.Len()+1)
	entry.Iterate(func(key string, v fleece.Value) bool {
		if key == "data" {
			return true
		}
		keys = append(keys, key)
		values = append(values, v)
		return true
	})
	keys = append(keys, "digest", "length")
	values = append(values, fleece.StringValue(string(digest)), fleece.IntValue(int64(length)))
	return fleece.NewDict(keys, values)
}

// replaceDictEntry returns a new Dict equal to d but with key's value set
// to replacement, preserving key order (inserting at the end if key was
// absent).
func replaceDictEntry(d *fleece.Dict, key string, replacement fleece.Value) *fleece.Dict {
	keys := append([]string{}, d.Keys()...)
	values := make([]fleece.Value, 0, len(keys))
	found := false
	d.Iterate(func(k string, v fleece.Value) bool {
		if k == key {
			values = append(values, replacement)
			found = true
		} else {
			values = append(values, v)
		}
		return true
	})
	if !found {
		keys = append(keys, key)
		values = append(values, replacement)
	}
	return fleece.NewDict(keys, values)
}
