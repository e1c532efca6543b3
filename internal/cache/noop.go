package cache

import (
	"context"
	"time"

	"github.com/freewebtopdf/redirector/internal/domain"
)

// NoopCache disables caching: every lookup misses
type NoopCache struct{}

// NewNoopCache returns a cache that stores nothing
func NewNoopCache() NoopCache {
	return NoopCache{}
}

func (NoopCache) Lookup(context.Context, string, uint64) (*domain.RedirectRule, bool) {
	return nil, false
}

func (NoopCache) Store(context.Context, string, uint64, *domain.RedirectRule, time.Duration) {}

func (NoopCache) InvalidateAll(context.Context) {}

func (NoopCache) Stats() domain.CacheStats {
	return domain.CacheStats{Driver: "none"}
}

func (NoopCache) HealthCheck(context.Context) domain.HealthStatus {
	return domain.HealthStatus{
		Status:    domain.HealthStatusHealthy,
		Message:   "Caching is disabled",
		Timestamp: time.Now(),
	}
}
