// Package health aggregates component health for the /health endpoint.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/freewebtopdf/redirector/internal/domain"
)

// Component is anything that can report its own health
type Component interface {
	HealthCheck(ctx context.Context) domain.HealthStatus
}

// SystemHealthChecker implements domain.HealthChecker over named components
type SystemHealthChecker struct {
	repository domain.RuleRepository
	cache      domain.CacheManager
	extra      map[string]Component

	timeout   time.Duration
	startTime time.Time

	// Cached health status to avoid expensive checks on every request
	lastCheck   time.Time
	lastHealth  domain.SystemHealth
	cacheTTL    time.Duration
	healthMutex sync.Mutex
}

// NewSystemHealthChecker creates a checker for storage and cache. Further
// components, such as analytics, are added with Register.
func NewSystemHealthChecker(repository domain.RuleRepository, cache domain.CacheManager) *SystemHealthChecker {
	return &SystemHealthChecker{
		repository: repository,
		cache:      cache,
		extra:      make(map[string]Component),
		timeout:    5 * time.Second,
		cacheTTL:   10 * time.Second,
		startTime:  time.Now(),
	}
}

// Register adds a named component to the aggregate
func (h *SystemHealthChecker) Register(name string, component Component) {
	h.healthMutex.Lock()
	defer h.healthMutex.Unlock()
	h.extra[name] = component
	h.lastCheck = time.Time{}
}

// CheckHealth checks every component and caches the result briefly
func (h *SystemHealthChecker) CheckHealth(ctx context.Context) domain.SystemHealth {
	h.healthMutex.Lock()
	defer h.healthMutex.Unlock()

	if !h.lastCheck.IsZero() && time.Since(h.lastCheck) < h.cacheTTL {
		return h.lastHealth
	}

	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	now := time.Now()
	components := map[string]domain.HealthStatus{
		"storage": h.repository.HealthCheck(checkCtx),
		"cache":   h.cache.HealthCheck(checkCtx),
	}
	for name, component := range h.extra {
		components[name] = component.HealthCheck(checkCtx)
	}

	overall := domain.HealthStatusHealthy
	for _, status := range components {
		overall = aggregateStatus(overall, status.Status)
	}

	systemHealth := domain.SystemHealth{
		Status:     overall,
		Timestamp:  now,
		Components: components,
		Metrics:    h.collectSystemMetrics(checkCtx),
		Uptime:     time.Since(h.startTime),
	}

	h.lastCheck = now
	h.lastHealth = systemHealth
	return systemHealth
}

// CheckComponent performs a health check on a specific component
func (h *SystemHealthChecker) CheckComponent(ctx context.Context, component string) domain.HealthStatus {
	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	switch component {
	case "storage":
		return h.repository.HealthCheck(checkCtx)
	case "cache":
		return h.cache.HealthCheck(checkCtx)
	}

	h.healthMutex.Lock()
	c, ok := h.extra[component]
	h.healthMutex.Unlock()
	if ok {
		return c.HealthCheck(checkCtx)
	}

	return domain.HealthStatus{
		Status:    domain.HealthStatusUnhealthy,
		Message:   "Unknown component",
		Timestamp: time.Now(),
		Details: map[string]any{
			"component": component,
			"known":     h.componentNames(),
		},
	}
}

func (h *SystemHealthChecker) componentNames() []string {
	h.healthMutex.Lock()
	defer h.healthMutex.Unlock()
	names := []string{"storage", "cache"}
	for name := range h.extra {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// aggregateStatus keeps the worse of two statuses: unhealthy > degraded > healthy
func aggregateStatus(current, componentStatus string) string {
	statusPriority := map[string]int{
		domain.HealthStatusHealthy:   0,
		domain.HealthStatusDegraded:  1,
		domain.HealthStatusUnhealthy: 2,
	}

	componentPriority, known := statusPriority[componentStatus]
	if !known {
		componentPriority = 2
		componentStatus = domain.HealthStatusUnhealthy
	}
	if componentPriority > statusPriority[current] {
		return componentStatus
	}
	return current
}

// collectSystemMetrics gathers system-wide metrics
func (h *SystemHealthChecker) collectSystemMetrics(ctx context.Context) map[string]any {
	metrics := make(map[string]any)

	if storageStats := h.repository.GetStats(ctx); storageStats != nil {
		metrics["storage"] = storageStats
	}

	cacheStats := h.cache.Stats()
	metrics["cache"] = map[string]any{
		"driver":    cacheStats.Driver,
		"hits":      cacheStats.Hits,
		"misses":    cacheStats.Misses,
		"size":      cacheStats.Size,
		"max_size":  cacheStats.MaxSize,
		"hit_ratio": cacheStats.HitRatio,
	}

	metrics["system"] = map[string]any{
		"uptime_seconds": time.Since(h.startTime).Seconds(),
		"timestamp":      time.Now(),
	}

	return metrics
}

// IsHealthy returns true if the system is healthy
func (h *SystemHealthChecker) IsHealthy(ctx context.Context) bool {
	return h.CheckHealth(ctx).Status == domain.HealthStatusHealthy
}
