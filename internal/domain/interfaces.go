package domain

import (
	"context"
	"time"
)

// RuleRepository defines the contract for rule storage operations
type RuleRepository interface {
	GetRuleByID(ctx context.Context, id uint64) (*RedirectRule, error)
	ListRules(ctx context.Context, filter RuleFilter) ([]RedirectRule, error)
	CreateRule(ctx context.Context, rule *RedirectRule) error
	UpdateRule(ctx context.Context, rule *RedirectRule) error
	DeleteRule(ctx context.Context, id uint64) error
	DeleteRules(ctx context.Context, ids []uint64) (int64, error)

	// FindEnabledRules returns the enabled rules of siteID plus the all-site
	// rules, ordered by priority then id
	FindEnabledRules(ctx context.Context, siteID uint64) ([]RedirectRule, error)
	// FindBySource returns enabled exact rules whose normalized source equals
	// source (case-insensitive) within siteID and the all-site scope
	FindBySource(ctx context.Context, siteID uint64, source string, scope SourceScope) ([]RedirectRule, error)
	// FindByOrigin returns the auto-uri-change rules of a content item, newest first
	FindByOrigin(ctx context.Context, contentID, siteID uint64) ([]RedirectRule, error)
	IncrementHits(ctx context.Context, id uint64, at time.Time) error

	// Health and monitoring
	HealthCheck(ctx context.Context) HealthStatus
	GetStats(ctx context.Context) map[string]any
}

// CacheManager defines the contract for resolved-rule caching
type CacheManager interface {
	Lookup(ctx context.Context, url string, siteID uint64) (*RedirectRule, bool)
	Store(ctx context.Context, url string, siteID uint64, rule *RedirectRule, ttl time.Duration)
	InvalidateAll(ctx context.Context)
	Stats() CacheStats

	// Health and monitoring
	HealthCheck(ctx context.Context) HealthStatus
}

// AnalyticsRecorder receives hit outcomes. Record must never block.
type AnalyticsRecorder interface {
	Record(ctx context.Context, hit HitRecord)
}

// ContentSource reports the URI currently persisted for a content item
type ContentSource interface {
	PersistedURI(ctx context.Context, contentID, siteID uint64) (string, error)
}

// ContentURIWriter records the URI a content item was saved with
type ContentURIWriter interface {
	SetURI(ctx context.Context, contentID, siteID uint64, uri string) error
}

// HealthChecker defines the interface for system health monitoring
type HealthChecker interface {
	CheckHealth(ctx context.Context) SystemHealth
	CheckComponent(ctx context.Context, component string) HealthStatus
}

// Validator defines the interface for input validation
type Validator interface {
	ValidateRule(rule *RedirectRule) error
	ValidateURL(url string) error
}
