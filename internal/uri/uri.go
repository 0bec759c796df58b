// Package uri canonicalizes resource URIs into stable store keys.
//
// Two URIs that address the same resource must map to the same key, no
// matter how the server or the caller ordered the query string and whether
// the URI was given absolute or relative to the API base.
package uri

import (
	"net/url"
	"strings"
)

// Normalize sorts the query parameters of raw and strips the base prefix.
// Normalize is idempotent: Normalize(Normalize(x, b), b) == Normalize(x, b).
func Normalize(raw, base string) string {
	return StripBase(SortQuery(raw), base)
}

// StripBase removes the base prefix from raw. When raw does not start with
// the full base, the path component of the base is tried instead, unless
// raw is absolute and therefore names its own host.
func StripBase(raw, base string) string {
	base = strings.TrimSuffix(base, "/")
	if base == "" {
		return raw
	}

	if rest, ok := cutPrefix(raw, base); ok {
		return rest
	}

	b, err := url.Parse(base)
	if err != nil {
		return raw
	}
	if b.Host != "" && hasHost(raw) {
		return raw
	}

	path := strings.TrimSuffix(b.Path, "/")
	if path == "" {
		return raw
	}
	if rest, ok := cutPrefix(raw, path); ok {
		return rest
	}
	return raw
}

// SortQuery orders query keys lexicographically. Repeated keys keep the
// relative order of their values. An empty query string is dropped.
func SortQuery(raw string) string {
	prefix, query, ok := strings.Cut(raw, "?")
	if !ok {
		return raw
	}

	query, fragment, hasFragment := strings.Cut(query, "#")

	values, err := url.ParseQuery(query)
	if err != nil {
		return raw
	}

	out := prefix
	if len(values) > 0 {
		out += "?" + values.Encode()
	}
	if hasFragment {
		out += "#" + fragment
	}
	return out
}

// Join resolves a store key against the base for use on the wire.
func Join(base, key string) string {
	if hasHost(key) {
		return key
	}
	base = strings.TrimSuffix(base, "/")
	if key == "" {
		return base + "/"
	}
	if !strings.HasPrefix(key, "/") && !strings.HasPrefix(key, "?") && !strings.HasPrefix(key, "#") {
		key = "/" + key
	}
	return base + key
}

// StripFragment drops a trailing "#..." from a key.
func StripFragment(key string) string {
	before, _, _ := strings.Cut(key, "#")
	return before
}

func hasHost(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Host != ""
}

// cutPrefix only strips prefix at a path boundary, so a base of "/api" does
// not eat the start of "/apiary".
func cutPrefix(s, prefix string) (string, bool) {
	rest, ok := strings.CutPrefix(s, prefix)
	if !ok {
		return s, false
	}
	if rest == "" || strings.ContainsRune("/?#", rune(rest[0])) {
		return rest, true
	}
	return s, false
}
