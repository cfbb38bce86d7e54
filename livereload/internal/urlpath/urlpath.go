// Package urlpath canonicalises page paths and builds cache-busted URLs.
// Both operations resolve their input against the page origin first, so
// relative paths, absolute paths and full URLs compare alike.
package urlpath

import (
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// FreshnessParam is the query parameter carrying the cache-busting token.
const FreshnessParam = "_v"

var indexFiles = []string{"index.html", "index.htm"}

// Resolve resolves ref against the origin of base. Only scheme and host of
// base are used, so a ref without a leading slash is rooted at "/".
func Resolve(base *url.URL, ref string) *url.URL {
	origin := &url.URL{Path: "/"}
	if base != nil {
		origin.Scheme = base.Scheme
		origin.Host = base.Host
	}
	u, err := url.Parse(ref)
	if err != nil {
		// Unparseable refs are treated as raw paths.
		u = &url.URL{Path: ref}
	}
	return origin.ResolveReference(u)
}

// Pathname returns the escaped path component of ref resolved against base.
func Pathname(base *url.URL, ref string) string {
	p := Resolve(base, ref).EscapedPath()
	if p == "" {
		return "/"
	}
	return p
}

// Normalize returns the comparable form of a page path: trailing
// index.html/index.htm segments and trailing slashes removed, a single
// leading slash, "/" for the root. Normalize is idempotent.
func Normalize(base *url.URL, ref string) string {
	p := Pathname(base, ref)
	for {
		prev := p
		p = trimTrailingSlash(p)
		for _, idx := range indexFiles {
			if p == "/"+idx || strings.HasSuffix(p, "/"+idx) {
				p = strings.TrimSuffix(p, idx)
				break
			}
		}
		if p == prev {
			break
		}
	}
	p = "/" + strings.TrimLeft(p, "/")
	return p
}

func trimTrailingSlash(p string) string {
	trimmed := strings.TrimRight(p, "/")
	if trimmed == "" {
		return "/"
	}
	return trimmed
}

// Freshness issues cache-busting tokens derived from the wall clock in
// epoch milliseconds. Tokens never decrease, even if the clock steps back.
// The zero value is ready to use.
type Freshness struct {
	last atomic.Int64
	now  func() time.Time
}

// NewFreshness returns a Freshness reading time from now. A nil now uses
// time.Now.
func NewFreshness(now func() time.Time) *Freshness {
	return &Freshness{now: now}
}

// Token returns the next token.
func (f *Freshness) Token() string {
	now := time.Now
	if f.now != nil {
		now = f.now
	}
	ms := now().UnixMilli()
	for {
		last := f.last.Load()
		if ms <= last {
			ms = last
			break
		}
		if f.last.CompareAndSwap(last, ms) {
			break
		}
	}
	return strconv.FormatInt(ms, 10)
}

// CacheBust resolves ref against the origin of base and sets (or
// overwrites) the freshness parameter. It returns the absolute URL.
func (f *Freshness) CacheBust(base *url.URL, ref string) string {
	return f.Bust(Resolve(base, ref))
}

// Bust sets (or overwrites) the freshness parameter on a copy of u. Other
// query parameters and the fragment are kept.
func (f *Freshness) Bust(u *url.URL) string {
	c := *u
	q := c.Query()
	q.Set(FreshnessParam, f.Token())
	c.RawQuery = q.Encode()
	return c.String()
}
