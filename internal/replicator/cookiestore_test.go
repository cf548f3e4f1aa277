package replicator

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookieStore_SetAndRequest(t *testing.T) {
	s := NewCookieStore()
	ok := s.SetCookie("sid=42; Path=/; Max-Age=3600", "db.example.com")
	require.True(t, ok)

	addr, err := url.Parse("https://db.example.com/foo")
	require.NoError(t, err)
	assert.Equal(t, "sid=42", s.CookiesForRequest(addr))
}

func TestCookieStore_InvalidRejected(t *testing.T) {
	s := NewCookieStore()
	ok := s.SetCookie("=novalue", "db.example.com")
	assert.False(t, ok)
	assert.Empty(t, s.Cookies())
}

func TestCookieStore_ReplacesSameKey(t *testing.T) {
	s := NewCookieStore()
	require.True(t, s.SetCookie("sid=1; Path=/", "host"))
	require.True(t, s.SetCookie("sid=2; Path=/", "host"))
	cookies := s.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "2", cookies[0].Value)
}

func TestCookieStore_EncodeDecodeRoundTrip(t *testing.T) {
	s := NewCookieStore()
	require.True(t, s.SetCookie("sid=42; Path=/; Max-Age=3600", "db.example.com"))
	data := s.Encode()

	restored, err := LoadCookieStore(data)
	require.NoError(t, err)
	addr, _ := url.Parse("https://db.example.com/foo")
	assert.Equal(t, "sid=42", restored.CookiesForRequest(addr))
}

func TestCookieStore_ChangedFlag(t *testing.T) {
	s := NewCookieStore()
	assert.False(t, s.Changed())
	s.SetCookie("sid=1; Path=/", "host")
	assert.True(t, s.Changed())
	s.ClearChanged()
	assert.False(t, s.Changed())
}
