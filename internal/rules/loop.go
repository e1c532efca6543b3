package rules

import (
	"context"

	"github.com/freewebtopdf/redirector/internal/domain"
)

// SourceFinder is the part of the rule store chain lookups need
type SourceFinder interface {
	FindBySource(ctx context.Context, siteID uint64, source string, scope domain.SourceScope) ([]domain.RedirectRule, error)
}

// ScopeOf returns the scope exact rules for url are stored under
func ScopeOf(url string) domain.SourceScope {
	if domain.IsAbsoluteURL(url) {
		return domain.ScopeFullURL
	}
	return domain.ScopePathOnly
}

// NextHop returns the highest-priority enabled exact rule whose source is
// url, ignoring excludeID. An absolute url with no full-URL rule falls back
// to the path-only rules for its path. It returns nil when the chain ends at url.
func NextHop(ctx context.Context, finder SourceFinder, siteID uint64, url string, excludeID uint64) (*domain.RedirectRule, error) {
	url = domain.NormalizeURL(url)
	if url == "" {
		return nil, nil
	}

	scope := ScopeOf(url)
	next, err := firstSource(ctx, finder, siteID, url, scope, excludeID)
	if err != nil || next != nil || scope != domain.ScopeFullURL {
		return next, err
	}

	path := domain.PathOf(url)
	if path == "" {
		return nil, nil
	}
	return firstSource(ctx, finder, siteID, path, domain.ScopePathOnly, excludeID)
}

func firstSource(ctx context.Context, finder SourceFinder, siteID uint64, source string, scope domain.SourceScope, excludeID uint64) (*domain.RedirectRule, error) {
	candidates, err := finder.FindBySource(ctx, siteID, source, scope)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		if candidates[i].ID == excludeID {
			continue
		}
		return &candidates[i], nil
	}
	return nil, nil
}

// WouldCreateLoop reports whether a rule from source to destination would
// close a redirect cycle, either directly or through up to MaxChainHops
// existing exact rules. excludeID skips the rule being edited.
func WouldCreateLoop(ctx context.Context, finder SourceFinder, siteID uint64, source, destination string, excludeID uint64) (bool, error) {
	source = domain.NormalizeURL(source)
	current := domain.NormalizeURL(destination)
	if source == "" || current == "" {
		return false, nil
	}
	if domain.SameURL(source, current) {
		return true, nil
	}

	for hop := 0; hop < domain.MaxChainHops; hop++ {
		next, err := NextHop(ctx, finder, siteID, current, excludeID)
		if err != nil {
			return false, err
		}
		if next == nil || next.Destination == "" {
			return false, nil
		}
		if domain.SameURL(next.Destination, source) {
			return true, nil
		}
		current = next.Destination
	}

	return false, nil
}
