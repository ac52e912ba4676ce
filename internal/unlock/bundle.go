package unlock

import (
	"maps"
	"net/http"
	"slices"
	"strings"
)

// Bundle is the header and cookie state threaded through one negotiation.
// With returns a new Bundle; a Bundle is never modified after creation.
type Bundle struct {
	userAgent string
	cookies   map[string]string
}

func newBundle(userAgent string) Bundle {
	return Bundle{userAgent: userAgent, cookies: map[string]string{}}
}

// With returns a copy of b carrying cookies on top of its own.
func (b Bundle) With(cookies []*http.Cookie) Bundle {
	if len(cookies) == 0 {
		return b
	}
	next := Bundle{userAgent: b.userAgent, cookies: maps.Clone(b.cookies)}
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		next.cookies[c.Name] = c.Value
	}
	return next
}

// Len is the number of cookies held.
func (b Bundle) Len() int {
	return len(b.cookies)
}

// CookieString renders the forwarded cookies as a Cookie header value.
func (b Bundle) CookieString() string {
	names := make([]string, 0, len(b.cookies))
	for name := range b.cookies {
		if forwarded(name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+b.cookies[name])
	}
	return strings.Join(parts, "; ")
}

// Header builds request headers. referer may be empty.
func (b Bundle) Header(referer string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", b.userAgent)
	h.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	if cookie := b.CookieString(); cookie != "" {
		h.Set("Cookie", cookie)
	}
	if referer != "" {
		h.Set("Referer", referer)
	}
	return h
}

func forwarded(name string) bool {
	for _, prefix := range CookiePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
