package storage

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/freewebtopdf/redirector/internal/domain"
)

// RuleRecord is the persisted form of a redirect rule. Sources are unique
// per site, strategy and scope, compared through SourceKey.
type RuleRecord struct {
	ID               uint64 `gorm:"primaryKey;autoIncrement"`
	SiteID           uint64 `gorm:"uniqueIndex:uniq_rule_source,priority:1;not null"`
	MatchStrategy    string `gorm:"uniqueIndex:uniq_rule_source,priority:2;size:16;not null"`
	SourceScope      string `gorm:"uniqueIndex:uniq_rule_source,priority:3;size:16;not null"`
	SourceKey        string `gorm:"uniqueIndex:uniq_rule_source,priority:4;size:64;not null"`
	SourcePattern    string `gorm:"size:2048;not null"`
	SourceNormalized string `gorm:"size:2048;not null"`
	Destination      string `gorm:"size:2048"`
	StatusCode       int    `gorm:"not null"`
	Enabled          bool   `gorm:"index;not null"`
	Priority         int    `gorm:"index;not null"`
	CreationType     string `gorm:"size:16;index;not null"`
	OriginContentID  uint64 `gorm:"index:idx_rule_origin"`
	HitCount         int64  `gorm:"not null"`
	LastHitAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName pins the table name
func (RuleRecord) TableName() string {
	return "redirect_rules"
}

// SourceKey is the lookup key of a normalized source: its blake3 hash.
// Exact and prefix sources are lower-cased first; regex sources keep their
// case since escapes like \d and \D differ only by it.
func SourceKey(strategy domain.MatchStrategy, normalized string) string {
	if strategy != domain.MatchRegex {
		normalized = strings.ToLower(normalized)
	}
	sum := blake3.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func toRecord(rule *domain.RedirectRule) RuleRecord {
	return RuleRecord{
		ID:               rule.ID,
		SiteID:           rule.SiteID,
		MatchStrategy:    string(rule.MatchStrategy),
		SourceScope:      string(rule.SourceScope),
		SourceKey:        SourceKey(rule.MatchStrategy, rule.SourceNormalized),
		SourcePattern:    rule.SourcePattern,
		SourceNormalized: rule.SourceNormalized,
		Destination:      rule.Destination,
		StatusCode:       rule.StatusCode,
		Enabled:          rule.Enabled,
		Priority:         rule.Priority,
		CreationType:     string(rule.CreationType),
		OriginContentID:  rule.OriginContentID,
		HitCount:         rule.HitCount,
		LastHitAt:        rule.LastHitAt,
		CreatedAt:        rule.CreatedAt,
		UpdatedAt:        rule.UpdatedAt,
	}
}

func (r RuleRecord) toDomain() domain.RedirectRule {
	return domain.RedirectRule{
		ID:               r.ID,
		SiteID:           r.SiteID,
		SourcePattern:    r.SourcePattern,
		SourceNormalized: r.SourceNormalized,
		SourceScope:      domain.SourceScope(r.SourceScope),
		MatchStrategy:    domain.MatchStrategy(r.MatchStrategy),
		Destination:      r.Destination,
		StatusCode:       r.StatusCode,
		Enabled:          r.Enabled,
		Priority:         r.Priority,
		CreationType:     domain.CreationType(r.CreationType),
		OriginContentID:  r.OriginContentID,
		HitCount:         r.HitCount,
		LastHitAt:        r.LastHitAt,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func toDomainList(records []RuleRecord) []domain.RedirectRule {
	rules := make([]domain.RedirectRule, len(records))
	for i := range records {
		rules[i] = records[i].toDomain()
	}
	return rules
}

// ContentURI is the URI a content item was last saved with
type ContentURI struct {
	ContentID uint64 `gorm:"primaryKey;autoIncrement:false"`
	SiteID    uint64 `gorm:"primaryKey;autoIncrement:false"`
	URI       string `gorm:"size:2048;not null"`
	UpdatedAt time.Time
}

// TableName pins the table name
func (ContentURI) TableName() string {
	return "content_uris"
}
