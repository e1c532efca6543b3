package domain

import (
	"net/url"
	"strings"
	"unicode"
)

// StripInvisible removes whitespace and control characters anywhere in s
func StripInvisible(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// NormalizeURL canonicalizes a URL or path for matching and chain lookups.
// Whitespace and control characters are removed and runs of slashes are
// collapsed, except the pair that follows a scheme.
func NormalizeURL(raw string) string {
	s := StripInvisible(raw)
	if s == "" {
		return ""
	}

	prefix := ""
	if i := strings.Index(s, "://"); i > 0 && isScheme(s[:i]) {
		prefix = s[:i+3]
		s = s[i+3:]
	}

	var b strings.Builder
	b.Grow(len(s))
	lastSlash := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		// the query string is left alone
		if c == '?' || c == '#' {
			b.WriteString(s[i:])
			break
		}
		if c == '/' {
			if lastSlash {
				continue
			}
			lastSlash = true
		} else {
			lastSlash = false
		}
		b.WriteByte(c)
	}
	return prefix + b.String()
}

// SplitQuery separates the query string from a URL. The fragment is dropped.
func SplitQuery(raw string) (base, query string) {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}
	base, query, _ = strings.Cut(raw, "?")
	return base, query
}

// IsAbsoluteURL reports whether s carries an http or https scheme
func IsAbsoluteURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// PathOf returns the path portion of an absolute URL, or s itself when it is already a path
func PathOf(s string) string {
	if !IsAbsoluteURL(s) {
		return s
	}
	u, err := url.Parse(s)
	if err != nil {
		return s
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path
}

// OriginOf returns scheme://host of an absolute URL, or "" when s is not absolute
func OriginOf(s string) string {
	if !IsAbsoluteURL(s) {
		return ""
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// SameURL compares two normalized URLs case-insensitively. An absolute URL
// and a path are equal when the path of the former equals the latter.
func SameURL(a, b string) bool {
	a, b = NormalizeURL(a), NormalizeURL(b)
	if a == "" || b == "" {
		return false
	}
	if strings.EqualFold(a, b) {
		return true
	}
	absA, absB := IsAbsoluteURL(a), IsAbsoluteURL(b)
	if absA == absB {
		return false
	}
	return strings.EqualFold(PathOf(a), PathOf(b))
}

// URIToPath turns a content URI into the public path it is served at
func URIToPath(uri string) string {
	uri = StripInvisible(uri)
	if uri == "" {
		return ""
	}
	if uri == "__home__" {
		return "/"
	}
	if IsAbsoluteURL(uri) {
		return NormalizeURL(uri)
	}
	return NormalizeURL("/" + strings.TrimPrefix(uri, "/"))
}

func isScheme(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}
