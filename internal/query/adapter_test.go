package query

import (
	"database/sql/driver"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codetrek/litesync/internal/fleece"
)

// TestFlValue_NullVsMissing pins spec's "Query null distinction" example
// directly: for {"x": null, "y": 1}, fl_value(body, "x") is a zero-length
// blob (Fleece null) and fl_value(body, "z") is SQL NULL.
func TestFlValue_NullVsMissing(t *testing.T) {
	doc := fleece.DictValue(fleece.NewDict(
		[]string{"x", "y"},
		[]fleece.Value{fleece.NullValue, fleece.IntValue(1)},
	))
	body := fleece.EncodeValue(doc, nil)

	r := newTestRegistry()

	out, err := r.flValue(nil, []driver.Value{body, ".x"})
	require.NoError(t, err)
	assert.Equal(t, []byte{}, out)

	out, err = r.flValue(nil, []driver.Value{body, ".z"})
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = r.flValue(nil, []driver.Value{body, ".y"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), out)
}

func TestParamAdapter_ExtractNilArgIsMissing(t *testing.T) {
	a := &paramAdapter{}
	v, err := a.extract(nil)
	require.NoError(t, err)
	assert.True(t, v.IsMissing())
}

func TestParamAdapter_ExtractEmptyBlobIsEmptyDict(t *testing.T) {
	a := &paramAdapter{}
	v, err := a.extract([]byte{})
	require.NoError(t, err)
	d, ok := v.AsDict()
	require.True(t, ok)
	assert.Equal(t, 0, d.Len())
}

func TestParamAdapter_AccessorHook(t *testing.T) {
	doc := fleece.DictValue(fleece.NewDict([]string{"k"}, []fleece.Value{fleece.StringValue("v")}))
	encoded := fleece.EncodeValue(doc, nil)

	a := &paramAdapter{accessor: func(row []byte) []byte {
		// Simulate a row format that wraps the Fleece body with a prefix.
		return row[4:]
	}}
	wrapped := append([]byte{0, 0, 0, 0}, encoded...)

	v, err := a.extract(wrapped)
	require.NoError(t, err)
	d, ok := v.AsDict()
	require.True(t, ok)
	s, ok := d.Get("k").AsString()
	require.True(t, ok)
	assert.Equal(t, "v", s)
}
