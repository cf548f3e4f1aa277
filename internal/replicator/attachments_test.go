package replicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codetrek/litesync/internal/blobstore"
	"github.com/codetrek/litesync/internal/fleece"
)

func TestRewriteInlineAttachments_NoAttachments(t *testing.T) {
	body := fleece.EncodeValue(fleece.DictValue(fleece.NewDict(
		[]string{"x"}, []fleece.Value{fleece.IntValue(1)},
	)), nil)

	blobs := blobstore.New()
	out, err := rewriteInlineAttachments(body, blobs)
	require.NoError(t, err)
	assert.Equal(t, body, out)
}

func TestRewriteInlineAttachments_AlreadyDigestReference(t *testing.T) {
	attEntry := fleece.DictValue(fleece.NewDict(
		[]string{"digest", "length"},
		[]fleece.Value{fleece.StringValue("blake3-deadbeef"), fleece.IntValue(4)},
	))
	attachments := fleece.DictValue(fleece.NewDict([]string{"photo.jpg"}, []fleece.Value{attEntry}))
	body := fleece.EncodeValue(fleece.DictValue(fleece.NewDict(
		[]string{"_attachments"}, []fleece.Value{attachments},
	)), nil)

	blobs := blobstore.New()
	out, err := rewriteInlineAttachments(body, blobs)
	require.NoError(t, err)
	assert.Equal(t, body, out)
}

func TestRewriteInlineAttachments_InlineDataRewritten(t *testing.T) {
	raw := []byte("hello attachment")
	inline := "aGVsbG8gYXR0YWNobWVudA==" // base64(raw)

	attEntry := fleece.DictValue(fleece.NewDict(
		[]string{"content_type", "data"},
		[]fleece.Value{fleece.StringValue("text/plain"), fleece.StringValue(inline)},
	))
	attachments := fleece.DictValue(fleece.NewDict([]string{"note.txt"}, []fleece.Value{attEntry}))
	body := fleece.EncodeValue(fleece.DictValue(fleece.NewDict(
		[]string{"_attachments"}, []fleece.Value{attachments},
	)), nil)

	blobs := blobstore.New()
	out, err := rewriteInlineAttachments(body, blobs)
	require.NoError(t, err)
	assert.NotEqual(t, body, out)

	root, err := fleece.Parse(out, nil)
	require.NoError(t, err)
	doc, ok := root.AsDict()
	require.True(t, ok)

	atts, ok := doc.Get("_attachments").AsDict()
	require.True(t, ok)
	entry, ok := atts.Get("note.txt").AsDict()
	require.True(t, ok)

	_, hasData := entry.Get("data").AsString()
	assert.False(t, hasData, "inline data must be removed after rewrite")

	ct, ok := entry.Get("content_type").AsString()
	require.True(t, ok)
	assert.Equal(t, "text/plain", ct)

	digest, ok := entry.Get("digest").AsString()
	require.True(t, ok)

	length, ok := entry.Get("length").AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(len(raw)), length)

	stored, err := blobs.Get(blobstore.Digest(digest))
	require.NoError(t, err)
	assert.Equal(t, raw, stored)
	assert.Equal(t, blobstore.ComputeDigest(raw), blobstore.Digest(digest))
}
