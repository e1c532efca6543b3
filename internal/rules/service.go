// Package rules is the write path for redirect rules. Every mutation is
// normalised, validated and loop-checked before it reaches the store, and
// clears the resolution cache before returning.
package rules

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freewebtopdf/redirector/internal/domain"
)

// Service validates and persists rule changes
type Service struct {
	repo      domain.RuleRepository
	cache     domain.CacheManager
	validator domain.Validator
}

// NewService creates a rule service
func NewService(repo domain.RuleRepository, cache domain.CacheManager, validator domain.Validator) *Service {
	return &Service{
		repo:      repo,
		cache:     cache,
		validator: validator,
	}
}

// Get returns a rule by id
func (s *Service) Get(ctx context.Context, id uint64) (*domain.RedirectRule, error) {
	return s.repo.GetRuleByID(ctx, id)
}

// List returns rules matching filter
func (s *Service) List(ctx context.Context, filter domain.RuleFilter) ([]domain.RedirectRule, error) {
	return s.repo.ListRules(ctx, filter)
}

// Create validates and stores a new rule
func (s *Service) Create(ctx context.Context, rule *domain.RedirectRule) (*domain.RedirectRule, error) {
	if rule == nil {
		return nil, domain.NewAppError(domain.ErrInvalidInput, "Rule cannot be nil", 400, nil)
	}

	candidate := *rule
	if candidate.CreationType == "" {
		candidate.CreationType = domain.CreationManual
	}
	if err := s.check(ctx, &candidate, 0); err != nil {
		return nil, err
	}

	if err := s.repo.CreateRule(ctx, &candidate); err != nil {
		return nil, err
	}
	s.cache.InvalidateAll(ctx)

	log.Info().
		Uint64("rule_id", candidate.ID).
		Uint64("site_id", candidate.SiteID).
		Str("source", candidate.SourceNormalized).
		Str("destination", candidate.Destination).
		Str("creation_type", string(candidate.CreationType)).
		Msg("Rule created")

	return &candidate, nil
}

// Update applies patch to an existing rule
func (s *Service) Update(ctx context.Context, id uint64, patch domain.RulePatch) (*domain.RedirectRule, error) {
	existing, err := s.repo.GetRuleByID(ctx, id)
	if err != nil {
		return nil, err
	}

	patch.Apply(existing)
	if err := s.check(ctx, existing, id); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateRule(ctx, existing); err != nil {
		return nil, err
	}
	s.cache.InvalidateAll(ctx)

	log.Info().Uint64("rule_id", id).Str("source", existing.SourceNormalized).Msg("Rule updated")
	return existing, nil
}

// Delete removes a rule
func (s *Service) Delete(ctx context.Context, id uint64) error {
	if err := s.repo.DeleteRule(ctx, id); err != nil {
		return err
	}
	s.cache.InvalidateAll(ctx)

	log.Info().Uint64("rule_id", id).Msg("Rule deleted")
	return nil
}

// BulkDelete removes every listed rule and returns how many were deleted
func (s *Service) BulkDelete(ctx context.Context, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, domain.NewAppError(domain.ErrInvalidInput, "No rule ids given", 400, nil)
	}

	deleted, err := s.repo.DeleteRules(ctx, ids)
	if err != nil {
		return 0, err
	}
	s.cache.InvalidateAll(ctx)

	log.Info().Int("requested", len(ids)).Int64("deleted", deleted).Msg("Rules deleted")
	return deleted, nil
}

// WouldCreateLoop reports whether a rule from source to destination on
// siteID would close a redirect cycle. excludeID is skipped.
func (s *Service) WouldCreateLoop(ctx context.Context, source, destination string, siteID, excludeID uint64) (bool, error) {
	return WouldCreateLoop(ctx, s.repo, siteID, source, destination, excludeID)
}

// check normalises rule in place and rejects invalid or looping rules
func (s *Service) check(ctx context.Context, rule *domain.RedirectRule, excludeID uint64) error {
	rule.Normalize()
	if err := s.validator.ValidateRule(rule); err != nil {
		return err
	}

	if rule.Destination == "" {
		return nil
	}

	loop, err := WouldCreateLoop(ctx, s.repo, rule.SiteID, rule.SourceNormalized, rule.Destination, excludeID)
	if err != nil {
		return err
	}
	if loop {
		log.Warn().
			Str("source", rule.SourceNormalized).
			Str("destination", rule.Destination).
			Uint64("exclude_id", excludeID).
			Msg("Rejected rule that would create a redirect loop")
		return domain.NewLoopError(rule.SourceNormalized, rule.Destination).WithContext(ctx, "check_loop")
	}
	return nil
}

// ImportFailure describes one rule an import could not store
type ImportFailure struct {
	Index  int    `json:"index"`
	Source string `json:"source"`
	Code   string `json:"code"`
	Error  string `json:"error"`
}

// ImportResult summarises an import
type ImportResult struct {
	Created  int             `json:"created"`
	Skipped  int             `json:"skipped"`
	Failed   []ImportFailure `json:"failed"`
	Duration time.Duration   `json:"duration"`
}

// Import creates each rule in order, tagging it as imported. Rules whose
// source already exists are skipped; other failures are collected.
func (s *Service) Import(ctx context.Context, ruleList []domain.RedirectRule) ImportResult {
	start := time.Now()
	result := ImportResult{Failed: []ImportFailure{}}

	for i := range ruleList {
		rule := ruleList[i]
		rule.ID = 0
		rule.CreationType = domain.CreationImport

		if _, err := s.Create(ctx, &rule); err != nil {
			if domain.IsConflict(err) {
				result.Skipped++
				continue
			}
			failure := ImportFailure{Index: i, Source: rule.SourcePattern, Code: domain.ErrInternal, Error: err.Error()}
			if appErr, ok := domain.AsAppError(err); ok {
				failure.Code = appErr.Code
				failure.Error = appErr.Message
			}
			result.Failed = append(result.Failed, failure)
			continue
		}
		result.Created++
	}

	result.Duration = time.Since(start)
	log.Info().
		Int("created", result.Created).
		Int("skipped", result.Skipped).
		Int("failed", len(result.Failed)).
		Dur("duration", result.Duration).
		Msg("Rule import finished")

	return result
}
