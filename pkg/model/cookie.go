package model

import (
	"bytes"
	"net/url"
	"strings"
	"time"

	"github.com/ugorji/go/codec"
)

// Cookie mirrors original_source/Replicator/CookieStore.hh's Cookie struct.
// Expires == 0 means a session cookie (not persisted across encode/decode).
type Cookie struct {
	Name    string `codec:"n"`
	Value   string `codec:"v"`
	Domain  string `codec:"d"`
	Path    string `codec:"p"`
	Created int64  `codec:"c"` // unix seconds
	Expires int64  `codec:"e"` // unix seconds, 0 = session
	Secure  bool   `codec:"s"`
}

// Valid reports whether the cookie has a name, per spec §3.
func (c Cookie) Valid() bool { return c.Name != "" }

// Persistent reports whether the cookie survives encode/decode.
func (c Cookie) Persistent() bool { return c.Expires > 0 }

// Expired reports whether the cookie has passed its expiry.
func (c Cookie) Expired(now time.Time) bool {
	return c.Expires > 0 && c.Expires < now.Unix()
}

// SameKey reports whether two cookies share the (name, domain, path) key
// that the CookieStore invariants (spec §3) treat as unique.
func (c Cookie) SameKey(other Cookie) bool {
	return c.Name == other.Name && c.Domain == other.Domain && c.Path == other.Path
}

// domainMatches implements RFC 6265 §5.1.3: exact match, or the request
// host is a subdomain of the cookie domain with a dot boundary.
func domainMatches(cookieDomain, requestHost string) bool {
	cookieDomain = strings.ToLower(cookieDomain)
	requestHost = strings.ToLower(requestHost)
	if cookieDomain == requestHost {
		return true
	}
	return strings.HasSuffix(requestHost, "."+cookieDomain)
}

// pathMatches implements RFC 6265 §5.1.4's "prefix" rule.
func pathMatches(cookiePath, requestPath string) bool {
	if requestPath == "" {
		requestPath = "/"
	}
	if cookiePath == requestPath {
		return true
	}
	if strings.HasPrefix(requestPath, cookiePath) {
		if strings.HasSuffix(cookiePath, "/") {
			return true
		}
		return len(requestPath) > len(cookiePath) && requestPath[len(cookiePath)] == '/'
	}
	return false
}

// MatchesRequest reports whether c should be sent on a request to addr, per
// spec §3's "Matching an outbound request" rule.
func (c Cookie) MatchesRequest(addr *url.URL, now time.Time) bool {
	if c.Expired(now) {
		return false
	}
	if !domainMatches(c.Domain, addr.Hostname()) {
		return false
	}
	if !pathMatches(c.Path, addr.Path) {
		return false
	}
	if c.Secure && addr.Scheme != "https" && addr.Scheme != "wss" {
		return false
	}
	return true
}

// persistedCookie is the wire shape written by EncodeCookies: only the
// persistent subset, matching CookieStore::encode()'s C++ behaviour of
// dropping session cookies.
type persistedCookie struct {
	Name    string `codec:"n"`
	Value   string `codec:"v"`
	Domain  string `codec:"d"`
	Path    string `codec:"p"`
	Created int64  `codec:"c"`
	Expires int64  `codec:"e"`
	Secure  bool   `codec:"s"`
}

// EncodeCookies serializes the persistent subset of cookies (Expires > 0)
// into the compact binary form spec §4.5 requires.
func EncodeCookies(cookies []Cookie) []byte {
	persisted := make([]persistedCookie, 0, len(cookies))
	for _, c := range cookies {
		if !c.Persistent() {
			continue
		}
		persisted = append(persisted, persistedCookie{
			Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path,
			Created: c.Created, Expires: c.Expires, Secure: c.Secure,
		})
	}
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, cborHandle)
	_ = enc.Encode(persisted)
	return buf.Bytes()
}

// DecodeCookies is the inverse of EncodeCookies.
func DecodeCookies(data []byte) ([]Cookie, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var persisted []persistedCookie
	dec := codec.NewDecoderBytes(data, cborHandle)
	if err := dec.Decode(&persisted); err != nil {
		return nil, err
	}
	cookies := make([]Cookie, 0, len(persisted))
	for _, p := range persisted {
		cookies = append(cookies, Cookie{
			Name: p.Name, Value: p.Value, Domain: p.Domain, Path: p.Path,
			Created: p.Created, Expires: p.Expires, Secure: p.Secure,
		})
	}
	return cookies, nil
}
