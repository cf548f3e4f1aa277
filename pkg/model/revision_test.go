package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRevID(t *testing.T) {
	r, err := ParseRevID("3-af09c1")
	require.NoError(t, err)
	assert.Equal(t, RevID{Generation: 3, Digest: "af09c1"}, r)
	assert.Equal(t, "3-af09c1", r.String())
}

func TestParseRevID_Malformed(t *testing.T) {
	for _, s := range []string{"", "nodash", "-abc", "3-", "0-abc", "x-abc"} {
		_, err := ParseRevID(s)
		assert.Error(t, err, s)
		assert.True(t, errors.Is(err, ErrMalformedMessage), s)
	}
}

func TestRevID_Less(t *testing.T) {
	a := RevID{Generation: 1, Digest: "b"}
	b := RevID{Generation: 2, Digest: "a"}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))

	c := RevID{Generation: 1, Digest: "a"}
	assert.True(t, c.Less(a))
}
