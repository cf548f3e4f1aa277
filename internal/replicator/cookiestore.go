package replicator

import (
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/codetrek/litesync/pkg/model"
)

// CookieStore is a thread-safe cookie jar: Set-Cookie parsing, domain/path
// matching, and persistence of the non-session subset. Grounded on
// original_source/Replicator/CookieStore.hh's method set (setCookie,
// cookiesForRequest, encode/merge, changed/clearChanged), reimplemented
// around pkg/model's Cookie type instead of a Fleece dict.
type CookieStore struct {
	mu      sync.Mutex
	cookies []model.Cookie
	changed bool
	now     func() time.Time
}

// NewCookieStore returns an empty store.
func NewCookieStore() *CookieStore {
	return &CookieStore{now: time.Now}
}

// LoadCookieStore rebuilds a store from previously encoded bytes.
func LoadCookieStore(data []byte) (*CookieStore, error) {
	s := NewCookieStore()
	if len(data) == 0 {
		return s, nil
	}
	cookies, err := model.DecodeCookies(data)
	if err != nil {
		return nil, err
	}
	s.cookies = cookies
	return s, nil
}

// ParseSetCookie parses a Set-Cookie header value as seen from fromHost,
// returning the resulting Cookie and whether it is valid. Unlike
// CookieStore::Cookie's constructor (which never throws but may return an
// invalid cookie), this also applies fromHost's default domain/path.
func ParseSetCookie(header, fromHost string) (model.Cookie, bool) {
	parts := strings.Split(header, ";")
	if len(parts) == 0 {
		return model.Cookie{}, false
	}
	nameValue := strings.SplitN(strings.TrimSpace(parts[0]), "=", 2)
	if len(nameValue) != 2 {
		return model.Cookie{}, false
	}
	c := model.Cookie{
		Name:    strings.TrimSpace(nameValue[0]),
		Value:   strings.TrimSpace(nameValue[1]),
		Domain:  fromHost,
		Path:    "/",
		Created: time.Now().Unix(),
	}
	if c.Name == "" {
		return model.Cookie{}, false
	}

	for _, attr := range parts[1:] {
		attr = strings.TrimSpace(attr)
		kv := strings.SplitN(attr, "=", 2)
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		var value string
		if len(kv) == 2 {
			value = strings.TrimSpace(kv[1])
		}
		switch key {
		case "domain":
			if value != "" {
				c.Domain = strings.TrimPrefix(value, ".")
			}
		case "path":
			if value != "" {
				c.Path = value
			}
		case "expires":
			if t, err := time.Parse(time.RFC1123, value); err == nil {
				c.Expires = t.Unix()
			}
		case "max-age":
			if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
				c.Expires = time.Now().Unix() + secs
			}
		case "secure":
			c.Secure = true
		}
	}
	return c, c.Valid()
}

// SetCookie parses header as seen from fromHost and inserts the result,
// returning false if the cookie was invalid (it is then discarded, not
// stored).
func (s *CookieStore) SetCookie(header, fromHost string) bool {
	c, ok := ParseSetCookie(header, fromHost)
	if !ok {
		return false
	}
	s.Insert(c)
	return true
}

// Insert replaces any cookie sharing (name, domain, path); inserting with
// an empty value and a past expiry deletes the slot instead (spec §3
// CookieStore invariants).
func (s *CookieStore) Insert(c model.Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, existing := range s.cookies {
		if existing.SameKey(c) {
			idx = i
			break
		}
	}

	deleting := c.Value == "" && c.Expires > 0 && c.Expires < s.now().Unix()
	switch {
	case deleting && idx >= 0:
		s.cookies = append(s.cookies[:idx], s.cookies[idx+1:]...)
	case deleting:
		// Nothing to delete; no-op.
	case idx >= 0:
		s.cookies[idx] = c
	default:
		s.cookies = append(s.cookies, c)
	}
	s.changed = true
}

// CookiesForRequest concatenates "name=value; …" for every matching,
// unexpired cookie.
func (s *CookieStore) CookiesForRequest(addr *url.URL) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var parts []string
	for _, c := range s.cookies {
		if c.MatchesRequest(addr, now) {
			parts = append(parts, c.Name+"="+c.Value)
		}
	}
	return strings.Join(parts, "; ")
}

// Cookies returns a snapshot of all stored cookies.
func (s *CookieStore) Cookies() []model.Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Cookie, len(s.cookies))
	copy(out, s.cookies)
	return out
}

// Encode serializes the persistent subset (expires > 0).
func (s *CookieStore) Encode() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.EncodeCookies(s.cookies)
}

// Merge folds previously encoded cookies into this store, as when a peer
// returns an updated Set-Cookie set.
func (s *CookieStore) Merge(data []byte) error {
	cookies, err := model.DecodeCookies(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range cookies {
		s.insertLocked(c)
	}
	return nil
}

func (s *CookieStore) insertLocked(c model.Cookie) {
	for i, existing := range s.cookies {
		if existing.SameKey(c) {
			s.cookies[i] = c
			s.changed = true
			return
		}
	}
	s.cookies = append(s.cookies, c)
	s.changed = true
}

// Changed reports whether any mutation has occurred since the last
// ClearChanged.
func (s *CookieStore) Changed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// ClearChanged resets the dirty flag, called by the consumer after it has
// persisted the store.
func (s *CookieStore) ClearChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changed = false
}
