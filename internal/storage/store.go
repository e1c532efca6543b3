package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/freewebtopdf/redirector/internal/domain"
)

// Store implements the RuleRepository interface on gorm
type Store struct {
	db *gorm.DB
}

// NewStore migrates the rule schema and returns a Store over db
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&RuleRecord{}); err != nil {
		return nil, domain.NewAppErrorWithCause(domain.ErrInternal, "Failed to migrate rule schema", 500, err, nil)
	}
	return &Store{db: db}, nil
}

// GetRuleByID retrieves a rule by its ID
func (s *Store) GetRuleByID(ctx context.Context, id uint64) (*domain.RedirectRule, error) {
	var record RuleRecord
	if err := s.db.WithContext(ctx).First(&record, id).Error; err != nil {
		return nil, translate(ctx, err, "get_rule", map[string]any{"rule_id": id})
	}
	rule := record.toDomain()
	return &rule, nil
}

// ListRules returns rules matching filter ordered by priority then id
func (s *Store) ListRules(ctx context.Context, filter domain.RuleFilter) ([]domain.RedirectRule, error) {
	query := s.db.WithContext(ctx).Model(&RuleRecord{})
	if filter.SiteID != nil {
		query = query.Where("site_id = ?", *filter.SiteID)
	}
	if filter.CreationType != "" {
		query = query.Where("creation_type = ?", string(filter.CreationType))
	}
	if filter.EnabledOnly {
		query = query.Where("enabled = ?", true)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var records []RuleRecord
	if err := query.Order("priority ASC").Order("id ASC").Find(&records).Error; err != nil {
		return nil, translate(ctx, err, "list_rules", nil)
	}
	return toDomainList(records), nil
}

// CreateRule inserts rule and fills in its ID and timestamps
func (s *Store) CreateRule(ctx context.Context, rule *domain.RedirectRule) error {
	if rule == nil {
		return domain.NewAppError(domain.ErrInvalidInput, "Rule cannot be nil", 400, nil)
	}

	record := toRecord(rule)
	record.ID = 0
	record.HitCount = 0
	record.LastHitAt = nil

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return translate(ctx, err, "create_rule", map[string]any{"source": rule.SourceNormalized})
	}

	*rule = record.toDomain()
	return nil
}

// updatableColumns are written by UpdateRule; hit tracking and creation data are left alone
var updatableColumns = []string{
	"site_id", "match_strategy", "source_scope", "source_key", "source_pattern",
	"source_normalized", "destination", "status_code", "enabled", "priority", "updated_at",
}

// UpdateRule overwrites the editable fields of an existing rule
func (s *Store) UpdateRule(ctx context.Context, rule *domain.RedirectRule) error {
	if rule == nil {
		return domain.NewAppError(domain.ErrInvalidInput, "Rule cannot be nil", 400, nil)
	}

	details := map[string]any{"rule_id": rule.ID}
	var updated RuleRecord

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&RuleRecord{}, rule.ID).Error; err != nil {
			return err
		}

		record := toRecord(rule)
		record.UpdatedAt = time.Now()
		if err := tx.Model(&RuleRecord{}).Where("id = ?", rule.ID).Select(updatableColumns).Updates(&record).Error; err != nil {
			return err
		}
		return tx.First(&updated, rule.ID).Error
	})
	if err != nil {
		return translate(ctx, err, "update_rule", details)
	}

	*rule = updated.toDomain()
	return nil
}

// DeleteRule removes a rule by ID
func (s *Store) DeleteRule(ctx context.Context, id uint64) error {
	result := s.db.WithContext(ctx).Delete(&RuleRecord{}, id)
	if result.Error != nil {
		return translate(ctx, result.Error, "delete_rule", map[string]any{"rule_id": id})
	}
	if result.RowsAffected == 0 {
		return notFound(id)
	}
	return nil
}

// DeleteRules removes every listed rule and reports how many existed
func (s *Store) DeleteRules(ctx context.Context, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&RuleRecord{})
	if result.Error != nil {
		return 0, translate(ctx, result.Error, "delete_rules", map[string]any{"count": len(ids)})
	}
	return result.RowsAffected, nil
}

// FindEnabledRules returns the enabled rules of siteID and of all sites
func (s *Store) FindEnabledRules(ctx context.Context, siteID uint64) ([]domain.RedirectRule, error) {
	var records []RuleRecord
	err := s.db.WithContext(ctx).
		Where("enabled = ? AND site_id IN ?", true, siteScope(siteID)).
		Order("priority ASC").Order("id ASC").
		Find(&records).Error
	if err != nil {
		return nil, translate(ctx, err, "find_enabled_rules", map[string]any{"site_id": siteID})
	}
	return toDomainList(records), nil
}

// FindBySource returns enabled exact rules whose source equals source ignoring case
func (s *Store) FindBySource(ctx context.Context, siteID uint64, source string, scope domain.SourceScope) ([]domain.RedirectRule, error) {
	var records []RuleRecord
	err := s.db.WithContext(ctx).
		Where("enabled = ? AND match_strategy = ? AND source_scope = ? AND source_key = ? AND site_id IN ?",
			true, string(domain.MatchExact), string(scope), SourceKey(domain.MatchExact, domain.NormalizeURL(source)), siteScope(siteID)).
		Order("priority ASC").Order("id ASC").
		Find(&records).Error
	if err != nil {
		return nil, translate(ctx, err, "find_by_source", map[string]any{"source": source})
	}
	return toDomainList(records), nil
}

// FindByOrigin returns the auto-generated rules of a content item, newest first
func (s *Store) FindByOrigin(ctx context.Context, contentID, siteID uint64) ([]domain.RedirectRule, error) {
	var records []RuleRecord
	err := s.db.WithContext(ctx).
		Where("creation_type = ? AND origin_content_id = ? AND site_id = ?",
			string(domain.CreationAutoURIChange), contentID, siteID).
		Order("created_at DESC").Order("id DESC").
		Find(&records).Error
	if err != nil {
		return nil, translate(ctx, err, "find_by_origin", map[string]any{"content_id": contentID})
	}
	return toDomainList(records), nil
}

// IncrementHits bumps the hit counter of a rule in a single statement
func (s *Store) IncrementHits(ctx context.Context, id uint64, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&RuleRecord{}).Where("id = ?", id).UpdateColumns(map[string]any{
		"hit_count":   gorm.Expr("hit_count + ?", 1),
		"last_hit_at": at,
	})
	if result.Error != nil {
		return translate(ctx, result.Error, "increment_hits", map[string]any{"rule_id": id})
	}
	if result.RowsAffected == 0 {
		return notFound(id)
	}
	return nil
}

// HealthCheck performs a health check on the storage system
func (s *Store) HealthCheck(ctx context.Context) domain.HealthStatus {
	now := time.Now()
	details := map[string]any{
		"driver": s.db.Dialector.Name(),
	}

	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		details["error"] = err.Error()
		return domain.HealthStatus{
			Status:    domain.HealthStatusUnhealthy,
			Message:   "Database is not reachable",
			Details:   details,
			Timestamp: now,
		}
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&RuleRecord{}).Count(&count).Error; err != nil {
		details["error"] = err.Error()
		return domain.HealthStatus{
			Status:    domain.HealthStatusDegraded,
			Message:   "Rule table is not readable",
			Details:   details,
			Timestamp: now,
		}
	}

	pool := sqlDB.Stats()
	details["rule_count"] = count
	details["open_connections"] = pool.OpenConnections
	details["in_use"] = pool.InUse

	return domain.HealthStatus{
		Status:    domain.HealthStatusHealthy,
		Message:   "Storage is operating normally",
		Details:   details,
		Timestamp: now,
	}
}

type groupCount struct {
	Bucket string
	Total  int64
}

// GetStats returns storage statistics
func (s *Store) GetStats(ctx context.Context) map[string]any {
	db := s.db.WithContext(ctx)

	var total, enabled int64
	db.Model(&RuleRecord{}).Count(&total)
	db.Model(&RuleRecord{}).Where("enabled = ?", true).Count(&enabled)

	stats := map[string]any{
		"driver":        s.db.Dialector.Name(),
		"rule_count":    total,
		"enabled_count": enabled,
	}

	for column, name := range map[string]string{
		"match_strategy": "strategy_distribution",
		"creation_type":  "creation_distribution",
	} {
		var rows []groupCount
		db.Model(&RuleRecord{}).Select(column + " AS bucket, COUNT(*) AS total").Group(column).Scan(&rows)
		dist := make(map[string]int64, len(rows))
		for _, row := range rows {
			dist[row.Bucket] = row.Total
		}
		stats[name] = dist
	}

	var hits struct{ Total int64 }
	db.Model(&RuleRecord{}).Select("COALESCE(SUM(hit_count), 0) AS total").Scan(&hits)
	stats["total_hits"] = hits.Total

	return stats
}

func siteScope(siteID uint64) []uint64 {
	if siteID == domain.AllSites {
		return []uint64{domain.AllSites}
	}
	return []uint64{siteID, domain.AllSites}
}

func notFound(id uint64) error {
	return domain.NewAppError(domain.ErrNotFound, "Rule not found", 404, map[string]any{"rule_id": id})
}

// translate maps gorm and driver errors onto AppErrors
func translate(ctx context.Context, err error, operation string, details map[string]any) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.NewAppError(domain.ErrNotFound, "Rule not found", 404, details).WithContext(ctx, operation)
	case isUniqueViolation(err):
		return domain.NewAppErrorWithCause(domain.ErrConflict, "A rule with this source already exists", 409, err, details).WithContext(ctx, operation)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return domain.NewAppErrorWithCause(domain.ErrTimeout, "Storage operation timed out", 408, err, details).WithContext(ctx, operation)
	default:
		return domain.NewAppErrorWithCause(domain.ErrInternal, "Storage operation failed", 500, err, details).WithContext(ctx, operation)
	}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate entry")
}
