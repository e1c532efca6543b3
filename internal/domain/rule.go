package domain

import (
	"strings"
	"time"
)

// AllSites is the SiteID of rules that apply to every site
const AllSites uint64 = 0

// MaxChainHops bounds chain resolution and loop detection
const MaxChainHops = 10

// SourceScope determines which form of the request URL a rule is matched against
type SourceScope string

const (
	// ScopePathOnly matches against the request path
	ScopePathOnly SourceScope = "pathonly"
	// ScopeFullURL matches against the absolute request URL
	ScopeFullURL SourceScope = "fullurl"
)

// MatchStrategy is the comparison algorithm used for a rule's source
type MatchStrategy string

const (
	MatchExact    MatchStrategy = "exact"
	MatchRegex    MatchStrategy = "regex"
	MatchWildcard MatchStrategy = "wildcard"
	MatchPrefix   MatchStrategy = "prefix"
)

// CreationType records how a rule came to exist
type CreationType string

const (
	// CreationManual indicates a rule authored by a user
	CreationManual CreationType = "manual"
	// CreationImport indicates a rule loaded from an import file
	CreationImport CreationType = "import"
	// CreationAutoURIChange indicates a rule generated because content moved
	CreationAutoURIChange CreationType = "auto"
)

// Redirect status codes accepted on rules
var AllowedStatusCodes = []int{301, 302, 303, 307, 308, 410}

// StatusGone is the status code of rules that answer with 410 and no Location
const StatusGone = 410

// RedirectRule maps a source URL pattern to a destination
// @Description Redirect rule configuration
type RedirectRule struct {
	ID               uint64        `json:"id" example:"42"`
	SiteID           uint64        `json:"site_id" example:"0"`
	SourcePattern    string        `json:"source_pattern" validate:"required,max=2048" example:"/old-page"`
	SourceNormalized string        `json:"source_normalized"`
	SourceScope      SourceScope   `json:"source_scope" validate:"required,oneof=pathonly fullurl" example:"pathonly" enums:"pathonly,fullurl"`
	MatchStrategy    MatchStrategy `json:"match_strategy" validate:"required,oneof=exact regex wildcard prefix" example:"exact" enums:"exact,regex,wildcard,prefix"`
	Destination      string        `json:"destination" validate:"max=2048" example:"/new-page"`
	StatusCode       int           `json:"status_code" validate:"required,oneof=301 302 303 307 308 410" example:"301"`
	Enabled          bool          `json:"enabled"`
	Priority         int           `json:"priority" validate:"min=-10000,max=10000" example:"0"`
	CreationType     CreationType  `json:"creation_type" validate:"omitempty,oneof=manual import auto" example:"manual"`
	OriginContentID  uint64        `json:"origin_content_id,omitempty"`
	HitCount         int64         `json:"hit_count"`
	LastHitAt        *time.Time    `json:"last_hit_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// IsAuto reports whether the rule was generated by a content URI change
func (r *RedirectRule) IsAuto() bool {
	return r.CreationType == CreationAutoURIChange
}

// Normalize fills SourceNormalized from SourcePattern and tidies Destination
func (r *RedirectRule) Normalize() {
	r.SourcePattern = StripInvisible(r.SourcePattern)
	r.Destination = NormalizeURL(r.Destination)
	if r.MatchStrategy == MatchRegex {
		r.SourceNormalized = r.SourcePattern
		return
	}
	r.SourceNormalized = NormalizeURL(r.SourcePattern)
}

// ApplyDefaults fills an unset strategy (exact), status (301) and scope,
// inferring the scope from the source pattern
func (r *RedirectRule) ApplyDefaults() {
	if r.MatchStrategy == "" {
		r.MatchStrategy = MatchExact
	}
	if r.StatusCode == 0 {
		r.StatusCode = 301
	}
	if r.SourceScope == "" {
		r.SourceScope = ScopePathOnly
		if IsAbsoluteURL(strings.TrimSpace(r.SourcePattern)) {
			r.SourceScope = ScopeFullURL
		}
	}
}

// RulePatch carries the fields of an update; nil fields are left untouched
type RulePatch struct {
	SiteID        *uint64        `json:"site_id,omitempty"`
	SourcePattern *string        `json:"source_pattern,omitempty"`
	SourceScope   *SourceScope   `json:"source_scope,omitempty"`
	MatchStrategy *MatchStrategy `json:"match_strategy,omitempty"`
	Destination   *string        `json:"destination,omitempty"`
	StatusCode    *int           `json:"status_code,omitempty"`
	Enabled       *bool          `json:"enabled,omitempty"`
	Priority      *int           `json:"priority,omitempty"`
}

// Apply copies the set fields of the patch onto rule
func (p RulePatch) Apply(rule *RedirectRule) {
	if p.SiteID != nil {
		rule.SiteID = *p.SiteID
	}
	if p.SourcePattern != nil {
		rule.SourcePattern = *p.SourcePattern
	}
	if p.SourceScope != nil {
		rule.SourceScope = *p.SourceScope
	}
	if p.MatchStrategy != nil {
		rule.MatchStrategy = *p.MatchStrategy
	}
	if p.Destination != nil {
		rule.Destination = *p.Destination
	}
	if p.StatusCode != nil {
		rule.StatusCode = *p.StatusCode
	}
	if p.Enabled != nil {
		rule.Enabled = *p.Enabled
	}
	if p.Priority != nil {
		rule.Priority = *p.Priority
	}
}

// RuleFilter narrows rule listings
type RuleFilter struct {
	SiteID       *uint64
	CreationType CreationType
	EnabledOnly  bool
	Limit        int
	Offset       int
}

// Header is a single response header attached to a redirect
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ResolvedRedirect is the outcome of a successful resolution
type ResolvedRedirect struct {
	RuleID      uint64    `json:"rule_id"`
	MatchedURL  string    `json:"matched_url"`
	Destination string    `json:"destination,omitempty"`
	StatusCode  int       `json:"status_code"`
	Headers     []Header  `json:"headers,omitempty"`
	Chain       []uint64  `json:"chain"`
	CacheHit    bool      `json:"cache_hit"`
	Timestamp   time.Time `json:"timestamp"`
}

// HitRecord is a single analytics observation of a not-found request
type HitRecord struct {
	URL       string         `json:"url"`
	SiteID    uint64         `json:"site_id"`
	Handled   bool           `json:"handled"`
	Source    string         `json:"source"`
	RuleID    uint64         `json:"rule_id,omitempty"`
	Referrer  string         `json:"referrer,omitempty"`
	RemoteIP  string         `json:"remote_ip,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	At        time.Time      `json:"at"`
}

// CacheStats represents cache performance metrics
type CacheStats struct {
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	Size     int     `json:"size"`
	MaxSize  int     `json:"max_size"`
	HitRatio float64 `json:"hit_ratio"`
	Driver   string  `json:"driver"`
}

// HealthStatus represents the health status of a component
type HealthStatus struct {
	Status    string         `json:"status"` // "healthy", "unhealthy", "degraded"
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Health status constants
const (
	HealthStatusHealthy   = "healthy"
	HealthStatusUnhealthy = "unhealthy"
	HealthStatusDegraded  = "degraded"
)

// SystemHealth represents overall system health
type SystemHealth struct {
	Status     string                  `json:"status"`
	Timestamp  time.Time               `json:"timestamp"`
	Components map[string]HealthStatus `json:"components"`
	Metrics    map[string]any          `json:"metrics,omitempty"`
	Uptime     time.Duration           `json:"uptime"`
}
