package matcher

import (
	"regexp"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freewebtopdf/redirector/internal/domain"
)

func TestMatches_Exact(t *testing.T) {
	tests := []struct {
		pattern string
		url     string
		want    bool
	}{
		{"/old-page", "/old-page", true},
		{"/Old-Page", "/old-page", true},
		{"/old-page", "/old-page/", false},
		{"/old", "/old-page", false},
		{"https://example.com/a", "HTTPS://EXAMPLE.COM/A", true},
	}

	for _, tt := range tests {
		got, err := Matches(domain.MatchExact, tt.pattern, tt.url)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "pattern=%q url=%q", tt.pattern, tt.url)
	}
}

func TestMatches_Prefix(t *testing.T) {
	ok, err := Matches(domain.MatchPrefix, "/blog/", "/BLOG/2024/post")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Matches(domain.MatchPrefix, "/blog/", "/news/blog/")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Matches(domain.MatchPrefix, "/blog/long-prefix", "/blog/")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatches_Regex(t *testing.T) {
	// unanchored: a partial match anywhere counts
	ok, err := Matches(domain.MatchRegex, `/products/\d+`, "/shop/products/42/detail")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Matches(domain.MatchRegex, `^/products/\d+$`, "/shop/products/42")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Matches(domain.MatchRegex, `/PRODUCTS/`, "/products/1")
	require.NoError(t, err)
	assert.True(t, ok, "regex matching is case-insensitive")
}

func TestMatches_InvalidRegexIsNonMatching(t *testing.T) {
	ok, err := Matches(domain.MatchRegex, `/broken/(unclosed`, "/broken/(unclosed")
	assert.False(t, ok)
	assert.Error(t, err)

	// repeated use hits the memoised failure
	ok, err = Matches(domain.MatchRegex, `/broken/(unclosed`, "/anything")
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestMatches_Wildcard(t *testing.T) {
	tests := []struct {
		pattern string
		url     string
		want    bool
	}{
		{"/blog/*", "/blog/post", true},
		{"/blog/*", "/blog/", true},
		{"/blog/*", "/blog", false},
		{"/blog/*/comments", "/Blog/a/b/comments", true},
		{"/file.*", "/fileXhtml", false}, // dot is literal
		{"/file.*", "/file.html", true},
		{"/a+b/*", "/a+b/c", true},
		{"*/feed", "/news/feed", true},
		{"/x/*", "/prefix/x/y", false}, // anchored
	}

	for _, tt := range tests {
		got, err := Matches(domain.MatchWildcard, tt.pattern, tt.url)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "pattern=%q url=%q", tt.pattern, tt.url)
	}
}

func TestMatches_EmptyPatternNeverMatches(t *testing.T) {
	for _, strategy := range []domain.MatchStrategy{domain.MatchExact, domain.MatchRegex, domain.MatchWildcard, domain.MatchPrefix} {
		ok, err := Matches(strategy, "", "")
		assert.NoError(t, err)
		assert.False(t, ok, "strategy %s", strategy)

		ok, err = Matches(strategy, "", "/anything")
		assert.NoError(t, err)
		assert.False(t, ok, "strategy %s", strategy)
	}
}

func TestMatches_UnknownStrategy(t *testing.T) {
	ok, err := Matches("fuzzy", "/a", "/a")
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestWildcardExpr(t *testing.T) {
	assert.Equal(t, `(?i)^/a/.*$`, WildcardExpr("/a/*"))
	assert.Equal(t, `(?i)^/a\.b/.*/c$`, WildcardExpr("/a.b/*/c"))
}

func TestProperty_ExactIsLowercaseEquality(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("exact matches iff lower(pattern) == lower(url)", prop.ForAll(
		func(pattern, url string, sameBase bool) bool {
			if sameBase {
				url = strings.ToUpper(pattern)
			}
			got, err := Matches(domain.MatchExact, pattern, url)
			if err != nil {
				return false
			}
			if pattern == "" {
				return !got
			}
			return got == (strings.ToLower(pattern) == strings.ToLower(url))
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.Bool(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_WildcardEqualsDerivedRegex(t *testing.T) {
	properties := gopter.NewProperties(nil)

	pieces := gen.SliceOfN(3, gen.OneConstOf("a", "b", ".", "/", "+", "?", "(", "x"))

	properties.Property("wildcard matches iff the anchored derived regex matches", prop.ForAll(
		func(left, right []string, url string) bool {
			pattern := "/" + strings.Join(left, "") + "*" + strings.Join(right, "")
			derived := regexp.MustCompile("(?i)^" + regexp.QuoteMeta("/"+strings.Join(left, "")) + ".*" + regexp.QuoteMeta(strings.Join(right, "")) + "$")

			got, err := Matches(domain.MatchWildcard, pattern, url)
			if err != nil {
				return false
			}
			return got == derived.MatchString(url)
		},
		pieces,
		pieces,
		gen.OneGenOf(
			gen.AlphaString().Map(func(s string) string { return "/" + s }),
			gen.Const("/ab.x"),
			gen.Const("/a+?(x"),
		),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func BenchmarkMatches_Wildcard(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = Matches(domain.MatchWildcard, "/blog/*/comments", "/blog/2024/01/post/comments")
	}
}
