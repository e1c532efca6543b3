// Package matcher tests URLs against redirect rule source patterns.
package matcher

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/freewebtopdf/redirector/internal/domain"
)

// maxCompiled bounds the compiled pattern cache
const maxCompiled = 4096

var compiled = &patternCache{entries: make(map[string]compileResult)}

type compileResult struct {
	re  *regexp.Regexp
	err error
}

// patternCache memoises compiled regexes. Patterns come from rule
// configuration so the set is small; the cache is reset when it fills up.
type patternCache struct {
	mu      sync.RWMutex
	entries map[string]compileResult
}

func (c *patternCache) get(expr string) (*regexp.Regexp, error) {
	c.mu.RLock()
	res, ok := c.entries[expr]
	c.mu.RUnlock()
	if ok {
		return res.re, res.err
	}

	re, err := regexp.Compile(expr)
	c.mu.Lock()
	if len(c.entries) >= maxCompiled {
		c.entries = make(map[string]compileResult)
	}
	c.entries[expr] = compileResult{re: re, err: err}
	c.mu.Unlock()
	return re, err
}

// Matches reports whether url satisfies pattern under strategy. A malformed
// pattern never matches; its compile error is returned for the caller to log.
func Matches(strategy domain.MatchStrategy, pattern, url string) (bool, error) {
	if pattern == "" {
		return false, nil
	}

	switch strategy {
	case domain.MatchExact:
		return strings.ToLower(pattern) == strings.ToLower(url), nil
	case domain.MatchPrefix:
		return strings.HasPrefix(strings.ToLower(url), strings.ToLower(pattern)), nil
	case domain.MatchRegex:
		re, err := compiled.get("(?i)" + pattern)
		if err != nil {
			return false, fmt.Errorf("invalid regex %q: %w", pattern, err)
		}
		return re.MatchString(url), nil
	case domain.MatchWildcard:
		re, err := compiled.get(WildcardExpr(pattern))
		if err != nil {
			return false, fmt.Errorf("invalid wildcard %q: %w", pattern, err)
		}
		return re.MatchString(url), nil
	default:
		return false, fmt.Errorf("unknown match strategy %q", strategy)
	}
}

// WildcardExpr converts a wildcard pattern into an anchored, case-insensitive
// regular expression where * matches any sequence and everything else is literal.
func WildcardExpr(pattern string) string {
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return "(?i)^" + strings.Join(parts, ".*") + "$"
}
