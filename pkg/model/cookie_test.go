package model

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookieRoundTrip(t *testing.T) {
	cookies := []Cookie{
		{Name: "sid", Value: "42", Domain: "db.example.com", Path: "/", Created: 1000, Expires: 1000 + 3600, Secure: false},
		{Name: "session-only", Value: "ignored", Domain: "db.example.com", Path: "/", Created: 1000, Expires: 0},
	}

	data := EncodeCookies(cookies)
	decoded, err := DecodeCookies(data)
	require.NoError(t, err)

	// Session cookie (Expires == 0) is dropped on encode, per CookieStore::encode().
	require.Len(t, decoded, 1)
	assert.Equal(t, cookies[0], decoded[0])
}

func TestCookie_MatchesRequest(t *testing.T) {
	now := time.Unix(2000, 0)
	c := Cookie{Name: "sid", Value: "42", Domain: "example.com", Path: "/foo", Expires: 3000}

	u, _ := url.Parse("https://sub.example.com/foo/bar")
	assert.True(t, c.MatchesRequest(u, now))

	u2, _ := url.Parse("https://other.com/foo")
	assert.False(t, c.MatchesRequest(u2, now))

	u3, _ := url.Parse("https://example.com/other")
	assert.False(t, c.MatchesRequest(u3, now))
}

func TestCookie_SecureRequiresSecureScheme(t *testing.T) {
	now := time.Unix(2000, 0)
	c := Cookie{Name: "sid", Value: "x", Domain: "example.com", Path: "/", Expires: 3000, Secure: true}

	httpURL, _ := url.Parse("http://example.com/")
	assert.False(t, c.MatchesRequest(httpURL, now))

	httpsURL, _ := url.Parse("https://example.com/")
	assert.True(t, c.MatchesRequest(httpsURL, now))
}

func TestCookie_Expired(t *testing.T) {
	now := time.Unix(5000, 0)
	expired := Cookie{Name: "a", Expires: 4000}
	session := Cookie{Name: "b", Expires: 0}
	future := Cookie{Name: "c", Expires: 6000}

	assert.True(t, expired.Expired(now))
	assert.False(t, session.Expired(now))
	assert.False(t, future.Expired(now))
}
