package fleece

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeParseRoundTrip(t *testing.T) {
	sk := NewSharedKeys()
	doc := DictValue(NewDict(
		[]string{"a", "y"},
		[]Value{NullValue, IntValue(1)},
	))

	data := EncodeValue(doc, sk)
	back, err := Parse(data, sk)
	require.NoError(t, err)

	d, ok := back.AsDict()
	require.True(t, ok)
	assert.True(t, d.Get("a").IsNull())
	i, ok := d.Get("y").AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(1), i)
	assert.True(t, d.Get("z").IsMissing())
}

func TestPath_NullVsMissing(t *testing.T) {
	doc := DictValue(NewDict([]string{"a"}, []Value{NullValue}))

	assert.True(t, EvaluatePath(".a", nil, doc).IsNull())
	assert.True(t, EvaluatePath(".b", nil, doc).IsMissing())
}

func TestPath_ArrayIndexing(t *testing.T) {
	arr := ArrayValue([]Value{IntValue(10), IntValue(20), IntValue(30)})
	doc := DictValue(NewDict([]string{"items"}, []Value{arr}))

	v := EvaluatePath(".items[1]", nil, doc)
	i, ok := v.AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(20), i)

	assert.True(t, EvaluatePath(".items[9]", nil, doc).IsMissing())
}

func TestValue_Count(t *testing.T) {
	arr := ArrayValue([]Value{IntValue(1), IntValue(2)})
	n, ok := arr.Count()
	require.True(t, ok)
	assert.Equal(t, 2, n)

	_, ok = StringValue("x").Count()
	assert.False(t, ok)
}
