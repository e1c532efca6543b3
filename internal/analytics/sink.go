package analytics

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/freewebtopdf/redirector/internal/domain"
)

// Sink persists batches of hit records
type Sink interface {
	Write(ctx context.Context, hits []domain.HitRecord) error
}

// StatRecord aggregates the hits of one URL on one site
type StatRecord struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SiteID      uint64    `gorm:"uniqueIndex:uniq_stat_url,priority:1;not null" json:"site_id"`
	URLKey      string    `gorm:"uniqueIndex:uniq_stat_url,priority:2;size:64;not null" json:"-"`
	URL         string    `gorm:"size:2048;not null" json:"url"`
	Hits        int64     `gorm:"not null" json:"hits"`
	Handled     bool      `gorm:"index" json:"handled"`
	LastRuleID  uint64    `json:"last_rule_id,omitempty"`
	LastSource  string    `gorm:"size:64" json:"last_source"`
	Referrer    string    `gorm:"size:2048" json:"referrer,omitempty"`
	RemoteIP    string    `gorm:"size:64" json:"remote_ip,omitempty"`
	UserAgent   string    `gorm:"size:512" json:"user_agent,omitempty"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastHitAt   time.Time `gorm:"index" json:"last_hit_at"`
}

// TableName pins the table name
func (StatRecord) TableName() string {
	return "redirect_stats"
}

// GormSink upserts hits into redirect_stats
type GormSink struct {
	db  *gorm.DB
	ips *IPProcessor
}

// NewGormSink migrates the stats table
func NewGormSink(db *gorm.DB, ips *IPProcessor) (*GormSink, error) {
	if err := db.AutoMigrate(&StatRecord{}); err != nil {
		return nil, domain.NewAppErrorWithCause(domain.ErrInternal, "Failed to migrate stats schema", 500, err, nil)
	}
	return &GormSink{db: db, ips: ips}, nil
}

func urlKey(url string) string {
	sum := blake3.Sum256([]byte(strings.ToLower(url)))
	return hex.EncodeToString(sum[:])
}

// Write upserts each hit, incrementing the per-URL counter in SQL
func (s *GormSink) Write(ctx context.Context, hits []domain.HitRecord) error {
	if len(hits) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, hit := range hits {
			at := hit.At
			if at.IsZero() {
				at = time.Now()
			}
			row := StatRecord{
				SiteID:      hit.SiteID,
				URLKey:      urlKey(hit.URL),
				URL:         truncate(hit.URL, 2048),
				Hits:        1,
				Handled:     hit.Handled,
				LastRuleID:  hit.RuleID,
				LastSource:  truncate(hit.Source, 64),
				Referrer:    truncate(hit.Referrer, 2048),
				RemoteIP:    s.ips.Process(hit.RemoteIP),
				UserAgent:   truncate(hit.UserAgent, 512),
				FirstSeenAt: at,
				LastHitAt:   at,
			}

			updates := clause.AssignmentColumns([]string{
				"handled", "last_rule_id", "last_source", "referrer", "remote_ip", "user_agent", "last_hit_at",
			})
			updates = append(updates, clause.Assignment{
				Column: clause.Column{Name: "hits"},
				Value:  gorm.Expr("hits + ?", 1),
			})

			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "site_id"}, {Name: "url_key"}},
				DoUpdates: updates,
			}).Create(&row).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// StatsQuery narrows a stats listing
type StatsQuery struct {
	SiteID  *uint64
	Handled *bool
	Limit   int
}

// Top returns the most hit URLs
func (s *GormSink) Top(ctx context.Context, q StatsQuery) ([]StatRecord, error) {
	query := s.db.WithContext(ctx).Model(&StatRecord{})
	if q.SiteID != nil {
		query = query.Where("site_id = ?", *q.SiteID)
	}
	if q.Handled != nil {
		query = query.Where("handled = ?", *q.Handled)
	}
	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var rows []StatRecord
	if err := query.Order("hits DESC").Order("last_hit_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, domain.NewAppErrorWithCause(domain.ErrInternal, "Failed to query stats", 500, err, nil)
	}
	return rows, nil
}

// Trim deletes the least recently hit rows beyond limit
func (s *GormSink) Trim(ctx context.Context, limit int) (int64, error) {
	db := s.db.WithContext(ctx)

	var total int64
	if err := db.Model(&StatRecord{}).Count(&total).Error; err != nil {
		return 0, err
	}
	excess := total - int64(limit)
	if excess <= 0 {
		return 0, nil
	}

	var ids []uint64
	if err := db.Model(&StatRecord{}).Order("last_hit_at ASC").Order("id ASC").Limit(int(excess)).Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	result := db.Where("id IN ?", ids).Delete(&StatRecord{})
	return result.RowsAffected, result.Error
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
