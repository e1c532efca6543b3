// Package resolver turns not-found URLs into redirects.
//
// A resolution normalises the request, skips excluded URLs, finds the first
// enabled rule that matches (through the cache when possible), follows
// exact-rule chains up to domain.MaxChainHops and finally shapes the
// destination and response headers.
package resolver

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freewebtopdf/redirector/internal/domain"
	"github.com/freewebtopdf/redirector/internal/matcher"
	"github.com/freewebtopdf/redirector/internal/rules"
)

// Analytics sources
const (
	SourceResolve  = "resolve"
	SourceNotFound = "404"
	SourceExternal = "external"
	SourceChain    = "chain"
)

// Options configures destination post-processing and exclusions
type Options struct {
	ExcludePatterns     []string
	ExtraHeaders        []domain.Header
	PreserveQueryString bool
	NoCacheHeaders      bool
	// BaseURL makes destinations absolute when the request carries no origin
	BaseURL  string
	CacheTTL time.Duration
}

// Request is a single not-found request to resolve
type Request struct {
	FullURL   string
	Path      string
	SiteID    uint64
	Source    string
	Referrer  string
	RemoteIP  string
	UserAgent string
	Metadata  map[string]any
}

// ExternalContext describes a 404 reported by another module
type ExternalContext struct {
	Source    string         `json:"source"`
	SiteID    uint64         `json:"site_id"`
	Referrer  string         `json:"referrer,omitempty"`
	RemoteIP  string         `json:"remote_ip,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Resolver resolves URLs against the rule store
type Resolver struct {
	repo     domain.RuleRepository
	cache    domain.CacheManager
	recorder domain.AnalyticsRecorder
	excludes []*regexp.Regexp
	opts     Options
	now      func() time.Time
}

// New creates a resolver. Invalid exclusion patterns are logged and dropped.
func New(repo domain.RuleRepository, cache domain.CacheManager, recorder domain.AnalyticsRecorder, opts Options) *Resolver {
	excludes := make([]*regexp.Regexp, 0, len(opts.ExcludePatterns))
	for _, pattern := range opts.ExcludePatterns {
		if strings.TrimSpace(pattern) == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			log.Warn().Err(err).Str("pattern", pattern).Msg("Ignoring invalid exclusion pattern")
			continue
		}
		excludes = append(excludes, re)
	}

	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	return &Resolver{
		repo:     repo,
		cache:    cache,
		recorder: recorder,
		excludes: excludes,
		opts:     opts,
		now:      time.Now,
	}
}

// Resolve resolves a request URL. The bool is false when nothing matched.
func (r *Resolver) Resolve(ctx context.Context, fullURL, pathOnly string, siteID uint64) (*domain.ResolvedRedirect, bool) {
	return r.resolve(ctx, Request{FullURL: fullURL, Path: pathOnly, SiteID: siteID, Source: SourceResolve})
}

// HandleExternal404 resolves a URL reported by another module, tagging
// analytics with the caller's source
func (r *Resolver) HandleExternal404(ctx context.Context, url string, ext ExternalContext) (*domain.ResolvedRedirect, bool) {
	req := Request{
		SiteID:    ext.SiteID,
		Source:    ext.Source,
		Referrer:  ext.Referrer,
		RemoteIP:  ext.RemoteIP,
		UserAgent: ext.UserAgent,
		Metadata:  ext.Metadata,
	}
	if req.Source == "" {
		req.Source = SourceExternal
	}

	if domain.IsAbsoluteURL(url) {
		req.FullURL = url
		req.Path = domain.PathOf(url)
	} else {
		req.Path = url
		if r.opts.BaseURL != "" {
			req.FullURL = r.opts.BaseURL + "/" + strings.TrimLeft(url, "/")
		}
	}

	return r.resolve(ctx, req)
}

// OnNotFound resolves a request the host could not serve
func (r *Resolver) OnNotFound(ctx context.Context, req Request) (*domain.ResolvedRedirect, bool) {
	if req.Source == "" {
		req.Source = SourceNotFound
	}
	return r.resolve(ctx, req)
}

func (r *Resolver) resolve(ctx context.Context, req Request) (*domain.ResolvedRedirect, bool) {
	fullBase, fullQuery := domain.SplitQuery(domain.NormalizeURL(req.FullURL))
	pathBase, pathQuery := domain.SplitQuery(domain.NormalizeURL(req.Path))
	if pathBase == "" && fullBase != "" {
		pathBase, pathQuery = domain.SplitQuery(domain.PathOf(fullBase + queryPart(fullQuery)))
	}
	if pathBase == "" {
		return nil, false
	}
	query := pathQuery
	if query == "" {
		query = fullQuery
	}

	if r.excluded(pathBase, fullBase) {
		log.Debug().Str("path", pathBase).Msg("URL excluded from redirect resolution")
		return nil, false
	}

	analyticsURL := fullBase
	if analyticsURL == "" {
		analyticsURL = pathBase
	}

	cacheKey := fullBase
	if cacheKey == "" {
		cacheKey = pathBase
	}

	rule, lookup, cacheHit := r.lookupCache(ctx, cacheKey, pathBase, fullBase, req.SiteID)
	if rule == nil {
		rule, lookup = r.scan(ctx, pathBase, fullBase, req.SiteID)
		if rule == nil {
			r.record(ctx, req, analyticsURL, false, 0)
			return nil, false
		}
		r.cache.Store(ctx, cacheKey, req.SiteID, rule, r.opts.CacheTTL)
	}

	r.incrementHits(ctx, rule.ID)
	r.record(ctx, req, analyticsURL, true, rule.ID)

	final, chain := r.followChain(ctx, req, rule, lookup, fullBase)

	result := &domain.ResolvedRedirect{
		RuleID:     rule.ID,
		MatchedURL: lookup,
		StatusCode: rule.StatusCode,
		Chain:      chain,
		CacheHit:   cacheHit,
		Timestamp:  r.now(),
	}

	if final.StatusCode == domain.StatusGone || final.Destination == "" {
		result.StatusCode = domain.StatusGone
	} else {
		result.Destination = r.finalizeDestination(final.Destination, fullBase, query)
	}
	result.Headers = r.headers()

	log.Debug().
		Str("url", analyticsURL).
		Uint64("rule_id", rule.ID).
		Int("hops", len(chain)-1).
		Bool("cache_hit", cacheHit).
		Str("destination", result.Destination).
		Int("status", result.StatusCode).
		Msg("Redirect resolved")

	return result, true
}

// lookupCache returns the cached rule for the request together with the
// lookup string it matches under.
func (r *Resolver) lookupCache(ctx context.Context, key, pathBase, fullBase string, siteID uint64) (*domain.RedirectRule, string, bool) {
	rule, found := r.cache.Lookup(ctx, key, siteID)
	if !found {
		return nil, "", false
	}

	lookup := pathBase
	if rule.SourceScope == domain.ScopeFullURL && fullBase != "" {
		lookup = fullBase
	}
	return rule, lookup, true
}

// scan returns the first enabled rule in priority order that matches
func (r *Resolver) scan(ctx context.Context, pathBase, fullBase string, siteID uint64) (*domain.RedirectRule, string) {
	candidates, err := r.repo.FindEnabledRules(ctx, siteID)
	if err != nil {
		log.Error().Err(err).Uint64("site_id", siteID).Msg("Failed to load rules for resolution")
		return nil, ""
	}

	for i := range candidates {
		rule := &candidates[i]

		lookup := pathBase
		if rule.SourceScope == domain.ScopeFullURL {
			if fullBase == "" {
				continue
			}
			lookup = fullBase
		}

		ok, err := matcher.Matches(rule.MatchStrategy, rule.SourceNormalized, lookup)
		if err != nil {
			log.Warn().Err(err).Uint64("rule_id", rule.ID).Msg("Rule pattern failed to evaluate")
			continue
		}
		if ok {
			return rule, lookup
		}
	}
	return nil, ""
}

// followChain walks exact rules from the matched rule's destination. It
// returns the last rule taken and the ids of every rule in the chain.
func (r *Resolver) followChain(ctx context.Context, req Request, first *domain.RedirectRule, lookup, fullBase string) (*domain.RedirectRule, []uint64) {
	chain := []uint64{first.ID}
	final := first

	visited := map[string]struct{}{
		strings.ToLower(lookup): {},
	}
	if fullBase != "" {
		visited[strings.ToLower(fullBase)] = struct{}{}
		visited[strings.ToLower(domain.PathOf(fullBase))] = struct{}{}
	}

	for hop := 0; ; hop++ {
		if final.Destination == "" || final.StatusCode == domain.StatusGone {
			return final, chain
		}

		current, _ := domain.SplitQuery(domain.NormalizeURL(final.Destination))
		visited[strings.ToLower(current)] = struct{}{}

		next, err := rules.NextHop(ctx, r.repo, req.SiteID, current, 0)
		if err != nil {
			log.Error().Err(err).Str("url", current).Msg("Chain lookup failed")
			return final, chain
		}
		if next == nil {
			return final, chain
		}

		if hop >= domain.MaxChainHops {
			log.Warn().
				Uint64("rule_id", first.ID).
				Int("max_hops", domain.MaxChainHops).
				Msg("Redirect chain exceeds hop limit")
			return final, chain
		}

		if next.Destination != "" {
			nextKey, _ := domain.SplitQuery(domain.NormalizeURL(next.Destination))
			if _, seen := visited[strings.ToLower(nextKey)]; seen || r.visitedPath(visited, nextKey) {
				log.Warn().
					Uint64("rule_id", next.ID).
					Str("url", current).
					Str("destination", next.Destination).
					Msg("Redirect chain cycle detected")
				return final, chain
			}
		}

		r.incrementHits(ctx, next.ID)
		hopReq := req
		hopReq.Source = SourceChain
		r.record(ctx, hopReq, current, true, next.ID)

		chain = append(chain, next.ID)
		final = next
	}
}

func (r *Resolver) visitedPath(visited map[string]struct{}, url string) bool {
	if !domain.IsAbsoluteURL(url) {
		return false
	}
	_, seen := visited[strings.ToLower(domain.PathOf(url))]
	return seen
}

// finalizeDestination makes dest absolute and carries over the query string
func (r *Resolver) finalizeDestination(dest, fullBase, query string) string {
	if !domain.IsAbsoluteURL(dest) {
		base := domain.OriginOf(fullBase)
		if base == "" {
			base = r.opts.BaseURL
		}
		if base != "" {
			dest = base + "/" + strings.TrimLeft(dest, "/")
		}
	}

	if r.opts.PreserveQueryString && query != "" {
		if strings.Contains(dest, "?") {
			dest += "&" + query
		} else {
			dest += "?" + query
		}
	}
	return dest
}

func (r *Resolver) headers() []domain.Header {
	headers := make([]domain.Header, 0, len(r.opts.ExtraHeaders)+3)
	headers = append(headers, r.opts.ExtraHeaders...)
	if r.opts.NoCacheHeaders {
		headers = append(headers,
			domain.Header{Name: "Cache-Control", Value: "no-cache, no-store, must-revalidate"},
			domain.Header{Name: "Pragma", Value: "no-cache"},
			domain.Header{Name: "Expires", Value: "0"},
		)
	}
	return headers
}

func (r *Resolver) excluded(urls ...string) bool {
	for _, re := range r.excludes {
		for _, u := range urls {
			if u != "" && re.MatchString(u) {
				return true
			}
		}
	}
	return false
}

func (r *Resolver) incrementHits(ctx context.Context, id uint64) {
	if err := r.repo.IncrementHits(ctx, id, r.now()); err != nil {
		log.Warn().Err(err).Uint64("rule_id", id).Msg("Failed to record rule hit")
	}
}

func (r *Resolver) record(ctx context.Context, req Request, url string, handled bool, ruleID uint64) {
	if r.recorder == nil {
		return
	}
	r.recorder.Record(ctx, domain.HitRecord{
		URL:       url,
		SiteID:    req.SiteID,
		Handled:   handled,
		Source:    req.Source,
		RuleID:    ruleID,
		Referrer:  req.Referrer,
		RemoteIP:  req.RemoteIP,
		UserAgent: req.UserAgent,
		Metadata:  req.Metadata,
		At:        r.now(),
	})
}

func queryPart(query string) string {
	if query == "" {
		return ""
	}
	return "?" + query
}
