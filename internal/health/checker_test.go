package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freewebtopdf/redirector/internal/cache"
	"github.com/freewebtopdf/redirector/internal/domain"
	"github.com/freewebtopdf/redirector/internal/storage"
)

type staticComponent struct {
	status string
	calls  int
}

func (s *staticComponent) HealthCheck(context.Context) domain.HealthStatus {
	s.calls++
	return domain.HealthStatus{Status: s.status, Timestamp: time.Now()}
}

func newChecker(t *testing.T) *SystemHealthChecker {
	t.Helper()
	db, err := storage.Open(context.Background(), storage.Options{
		Driver: storage.DriverSQLite,
		DSN:    t.TempDir() + "/health.db",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close(db) })

	store, err := storage.NewStore(db)
	require.NoError(t, err)

	return NewSystemHealthChecker(store, cache.NewLRUCache(100, time.Minute))
}

func TestCheckHealth_AllHealthy(t *testing.T) {
	checker := newChecker(t)

	health := checker.CheckHealth(context.Background())
	assert.Equal(t, domain.HealthStatusHealthy, health.Status)
	assert.Contains(t, health.Components, "storage")
	assert.Contains(t, health.Components, "cache")
	assert.Contains(t, health.Metrics, "storage")
	assert.Contains(t, health.Metrics, "system")
	assert.True(t, checker.IsHealthy(context.Background()))
}

func TestCheckHealth_WorstComponentWins(t *testing.T) {
	checker := newChecker(t)

	degraded := &staticComponent{status: domain.HealthStatusDegraded}
	checker.Register("analytics", degraded)
	assert.Equal(t, domain.HealthStatusDegraded, checker.CheckHealth(context.Background()).Status)

	checker.Register("broken", &staticComponent{status: domain.HealthStatusUnhealthy})
	assert.Equal(t, domain.HealthStatusUnhealthy, checker.CheckHealth(context.Background()).Status)
}

func TestCheckHealth_CachesResult(t *testing.T) {
	checker := newChecker(t)
	component := &staticComponent{status: domain.HealthStatusHealthy}
	checker.Register("analytics", component)

	checker.CheckHealth(context.Background())
	checker.CheckHealth(context.Background())
	assert.Equal(t, 1, component.calls)
}

func TestCheckComponent(t *testing.T) {
	checker := newChecker(t)
	checker.Register("analytics", &staticComponent{status: domain.HealthStatusDegraded})

	assert.Equal(t, domain.HealthStatusHealthy, checker.CheckComponent(context.Background(), "storage").Status)
	assert.Equal(t, domain.HealthStatusDegraded, checker.CheckComponent(context.Background(), "analytics").Status)

	unknown := checker.CheckComponent(context.Background(), "matcher")
	assert.Equal(t, domain.HealthStatusUnhealthy, unknown.Status)
	assert.Equal(t, []string{"analytics", "cache", "storage"}, unknown.Details["known"])
}

func TestAggregateStatus(t *testing.T) {
	assert.Equal(t, "healthy", aggregateStatus("healthy", "healthy"))
	assert.Equal(t, "degraded", aggregateStatus("healthy", "degraded"))
	assert.Equal(t, "unhealthy", aggregateStatus("degraded", "unhealthy"))
	assert.Equal(t, "degraded", aggregateStatus("degraded", "healthy"))
	assert.Equal(t, "unhealthy", aggregateStatus("healthy", "weird"))
}
