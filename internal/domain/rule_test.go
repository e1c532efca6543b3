package domain

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/old-page", "/old-page"},
		{"  /old//page ", "/old/page"},
		{"/a\tb\n", "/ab"},
		{"https://example.com//a///b", "https://example.com/a/b"},
		{"/a//b?next=//c", "/a/b?next=//c"},
		{"/a//b#x//y", "/a/b#x//y"},
		{"//", "/"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeURL(tt.in), "NormalizeURL(%q)", tt.in)
	}
}

func TestSplitQuery(t *testing.T) {
	base, query := SplitQuery("/a?b=1&c=2#frag")
	assert.Equal(t, "/a", base)
	assert.Equal(t, "b=1&c=2", query)

	base, query = SplitQuery("/plain")
	assert.Equal(t, "/plain", base)
	assert.Empty(t, query)
}

func TestPathOfAndOriginOf(t *testing.T) {
	assert.Equal(t, "/a?b=1", PathOf("https://example.com/a?b=1"))
	assert.Equal(t, "/", PathOf("https://example.com"))
	assert.Equal(t, "/already/path", PathOf("/already/path"))

	assert.Equal(t, "https://example.com", OriginOf("https://example.com/a/b"))
	assert.Equal(t, "http://example.com:8080", OriginOf("http://example.com:8080/"))
	assert.Empty(t, OriginOf("/a"))
}

func TestSameURL(t *testing.T) {
	assert.True(t, SameURL("/a", "/A"))
	assert.True(t, SameURL("/a//b", "/a/b"))
	assert.True(t, SameURL("https://example.com/a", "/a"))
	assert.True(t, SameURL("/a", "HTTPS://EXAMPLE.COM/a"))
	assert.False(t, SameURL("/a", "/b"))
	assert.False(t, SameURL("https://one.com/x", "https://two.com/x"))
	assert.False(t, SameURL("", ""))
}

func TestURIToPath(t *testing.T) {
	assert.Equal(t, "/", URIToPath("__home__"))
	assert.Equal(t, "/blog/post", URIToPath("blog/post"))
	assert.Equal(t, "/blog/post", URIToPath("/blog//post"))
	assert.Equal(t, "https://example.com/x", URIToPath("https://example.com/x"))
	assert.Empty(t, URIToPath("  "))
}

func TestRedirectRule_Normalize(t *testing.T) {
	rule := RedirectRule{SourcePattern: " /old//page ", Destination: "/new//page", MatchStrategy: MatchExact}
	rule.Normalize()
	assert.Equal(t, "/old//page", rule.SourcePattern)
	assert.Equal(t, "/old/page", rule.SourceNormalized)
	assert.Equal(t, "/new/page", rule.Destination)

	// regex sources are kept as written
	regex := RedirectRule{SourcePattern: `/a//(\d+)`, MatchStrategy: MatchRegex}
	regex.Normalize()
	assert.Equal(t, `/a//(\d+)`, regex.SourceNormalized)
}

func TestRedirectRule_ApplyDefaults(t *testing.T) {
	rule := RedirectRule{SourcePattern: "/old"}
	rule.ApplyDefaults()
	assert.Equal(t, MatchExact, rule.MatchStrategy)
	assert.Equal(t, 301, rule.StatusCode)
	assert.Equal(t, ScopePathOnly, rule.SourceScope)

	full := RedirectRule{SourcePattern: " https://example.com/old"}
	full.ApplyDefaults()
	assert.Equal(t, ScopeFullURL, full.SourceScope)

	set := RedirectRule{SourcePattern: "/x", MatchStrategy: MatchPrefix, StatusCode: 410, SourceScope: ScopeFullURL}
	set.ApplyDefaults()
	assert.Equal(t, MatchPrefix, set.MatchStrategy)
	assert.Equal(t, 410, set.StatusCode)
	assert.Equal(t, ScopeFullURL, set.SourceScope)
}

func TestRulePatch_Apply(t *testing.T) {
	rule := RedirectRule{SourcePattern: "/a", Destination: "/b", StatusCode: 301, Enabled: true, Priority: 5}

	dest := "/c"
	disabled := false
	RulePatch{Destination: &dest, Enabled: &disabled}.Apply(&rule)

	assert.Equal(t, "/a", rule.SourcePattern)
	assert.Equal(t, "/c", rule.Destination)
	assert.False(t, rule.Enabled)
	assert.Equal(t, 301, rule.StatusCode)
	assert.Equal(t, 5, rule.Priority)
}

func validRule(source, destination string) *RedirectRule {
	rule := &RedirectRule{SourcePattern: source, Destination: destination}
	rule.ApplyDefaults()
	rule.Normalize()
	return rule
}

func TestInputValidator_ValidateRule(t *testing.T) {
	v := NewInputValidator()

	tests := []struct {
		name    string
		rule    func() *RedirectRule
		wantErr bool
		loop    bool
	}{
		{"exact path", func() *RedirectRule { return validRule("/old", "/new") }, false, false},
		{"absolute destination", func() *RedirectRule { return validRule("/old", "https://example.com/new") }, false, false},
		{"gone without destination", func() *RedirectRule {
			r := validRule("/retired", "")
			r.StatusCode = 410
			return r
		}, false, false},
		{"missing destination", func() *RedirectRule { return validRule("/old", "") }, true, false},
		{"self redirect", func() *RedirectRule { return validRule("/same", "/SAME") }, true, true},
		{"self redirect across forms", func() *RedirectRule { return validRule("https://example.com/same", "/same") }, true, true},
		{"non-http destination", func() *RedirectRule { return validRule("/old", "ftp://example.com/file") }, true, false},
		{"bad status", func() *RedirectRule {
			r := validRule("/old", "/new")
			r.StatusCode = 200
			return r
		}, true, false},
		{"path scope without slash", func() *RedirectRule {
			r := validRule("old", "/new")
			r.SourceScope = ScopePathOnly
			return r
		}, true, false},
		{"full scope with a path", func() *RedirectRule {
			r := validRule("/old", "/new")
			r.SourceScope = ScopeFullURL
			return r
		}, true, false},
		{"wildcard without star", func() *RedirectRule {
			r := validRule("/blog/", "/news")
			r.MatchStrategy = MatchWildcard
			return r
		}, true, false},
		{"wildcard", func() *RedirectRule {
			r := validRule("/blog/*", "/news")
			r.MatchStrategy = MatchWildcard
			return r
		}, false, false},
		{"star in exact", func() *RedirectRule { return validRule("/blog/*", "/news") }, true, false},
		{"regex without syntax", func() *RedirectRule {
			r := &RedirectRule{SourcePattern: "/plain", Destination: "/x", MatchStrategy: MatchRegex}
			r.ApplyDefaults()
			r.Normalize()
			return r
		}, true, false},
		{"uncompilable regex", func() *RedirectRule {
			r := &RedirectRule{SourcePattern: `/products/(\d+`, Destination: "/x", MatchStrategy: MatchRegex}
			r.ApplyDefaults()
			r.Normalize()
			return r
		}, true, false},
		{"path regex", func() *RedirectRule {
			r := &RedirectRule{SourcePattern: `^/products/\d+$`, Destination: "/shop", MatchStrategy: MatchRegex}
			r.ApplyDefaults()
			r.Normalize()
			return r
		}, false, false},
		{"regex turning off case folding", func() *RedirectRule {
			r := &RedirectRule{SourcePattern: `^/(?-i)Products/\d+$`, Destination: "/shop", MatchStrategy: MatchRegex}
			r.ApplyDefaults()
			r.Normalize()
			return r
		}, true, false},
		{"regex group turning off case folding", func() *RedirectRule {
			r := &RedirectRule{SourcePattern: `^/(?s-i:Products)/\d+$`, Destination: "/shop", MatchStrategy: MatchRegex}
			r.ApplyDefaults()
			r.Normalize()
			return r
		}, true, false},
		{"regex with other inline flags", func() *RedirectRule {
			r := &RedirectRule{SourcePattern: `^/(?s:products)/\d+$`, Destination: "/shop", MatchStrategy: MatchRegex}
			r.ApplyDefaults()
			r.Normalize()
			return r
		}, false, false},
		{"full url regex", func() *RedirectRule {
			r := &RedirectRule{SourcePattern: `^https://example\.com/p/\d+`, Destination: "/shop", MatchStrategy: MatchRegex, SourceScope: ScopeFullURL}
			r.ApplyDefaults()
			r.Normalize()
			return r
		}, false, false},
		{"full url regex without scheme", func() *RedirectRule {
			r := &RedirectRule{SourcePattern: `^example\.com/p/\d+`, Destination: "/shop", MatchStrategy: MatchRegex, SourceScope: ScopeFullURL}
			r.ApplyDefaults()
			r.Normalize()
			return r
		}, true, false},
		{"priority out of range", func() *RedirectRule {
			r := validRule("/old", "/new")
			r.Priority = 20000
			return r
		}, true, false},
		{"negative priority", func() *RedirectRule {
			r := validRule("/old", "/new")
			r.Priority = -5
			return r
		}, false, false},
		{"priority below range", func() *RedirectRule {
			r := validRule("/old", "/new")
			r.Priority = -20000
			return r
		}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateRule(tt.rule())
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.Equal(t, tt.loop, IsLoop(err))
		})
	}
}

func TestInputValidator_ValidateRuleNil(t *testing.T) {
	err := NewInputValidator().ValidateRule(nil)
	assert.True(t, IsValidationError(err))
}

func TestInputValidator_ValidateURL(t *testing.T) {
	v := NewInputValidator()

	assert.NoError(t, v.ValidateURL("/path"))
	assert.NoError(t, v.ValidateURL("https://example.com/a?b=1"))

	for _, bad := range []string{"", "relative/path", "ftp://example.com/x", "https://", "/" + strings.Repeat("a", maxURLLength)} {
		err := v.ValidateURL(bad)
		assert.Error(t, err, "url %q", bad)
		assert.True(t, IsValidationError(err))
	}
}

func TestAppError(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	err := NewAppErrorWithCause(ErrInternal, "boom", 500, fmt.Errorf("disk full"), nil).WithContext(ctx, "create_rule")

	assert.Equal(t, "req-1", err.RequestID)
	assert.Equal(t, "create_rule", err.Operation)
	assert.Equal(t, "INTERNAL_ERROR: boom (caused by: disk full)", err.Error())

	wrapped := fmt.Errorf("outer: %w", NewAppError(ErrConflict, "dup", 409, nil))
	appErr, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, 409, appErr.StatusCode)
	assert.True(t, IsConflict(wrapped))
	assert.False(t, IsNotFound(wrapped))

	_, ok = AsAppError(fmt.Errorf("plain"))
	assert.False(t, ok)
}

func TestProperty_NormalizeURLIdempotent(t *testing.T) {
	properties := gopter.NewProperties(nil)

	piece := gen.OneConstOf("a", "B", "/", "//", " ", "\t", "?", "x=1", "https://", ".")

	properties.Property("normalizing twice equals normalizing once", prop.ForAll(
		func(parts []string) bool {
			raw := strings.Join(parts, "")
			once := NormalizeURL(raw)
			return NormalizeURL(once) == once
		},
		gen.SliceOf(piece),
	))

	properties.Property("a normalized path has no repeated slashes before the query", prop.ForAll(
		func(parts []string) bool {
			got := NormalizeURL("/" + strings.Join(parts, ""))
			base, _, _ := strings.Cut(got, "?")
			base, _, _ = strings.Cut(base, "#")
			return !strings.Contains(base, "//") && !strings.ContainsAny(base, " \t")
		},
		gen.SliceOf(gen.OneConstOf("a", "/", "//", " ", "\t", "b")),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_SameURLIsSymmetric(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("SameURL(a, b) == SameURL(b, a)", prop.ForAll(
		func(a, b string, absolute bool) bool {
			a = "/" + a
			if absolute {
				a = "https://example.com" + a
			}
			b = "/" + b
			return SameURL(a, b) == SameURL(b, a)
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.Bool(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
