package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/freewebtopdf/redirector/internal/domain"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRule(id uint64, dest string) *domain.RedirectRule {
	return &domain.RedirectRule{
		ID:               id,
		SourcePattern:    "/old",
		SourceNormalized: "/old",
		SourceScope:      domain.ScopePathOnly,
		MatchStrategy:    domain.MatchExact,
		Destination:      dest,
		StatusCode:       301,
		Enabled:          true,
	}
}

func TestNewLRUCache(t *testing.T) {
	cache := NewLRUCache(100, time.Minute)
	assert.Equal(t, 100, cache.maxSize)
	assert.Equal(t, time.Minute, cache.defaultTTL)
	assert.Equal(t, 0, cache.size)
	assert.Equal(t, cache.tail, cache.head.next)
	assert.Equal(t, cache.head, cache.tail.prev)
}

func TestNewLRUCache_Defaults(t *testing.T) {
	cache := NewLRUCache(0, 0)
	assert.Equal(t, 10000, cache.maxSize)
	assert.Equal(t, time.Hour, cache.defaultTTL)
}

func TestLRUCache_StoreAndLookup(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(10, time.Minute)

	rule, found := cache.Lookup(ctx, "/old", 1)
	assert.False(t, found)
	assert.Nil(t, rule)

	cache.Store(ctx, "/old", 1, testRule(7, "/new"), 0)

	rule, found = cache.Lookup(ctx, "/old", 1)
	require.True(t, found)
	assert.Equal(t, uint64(7), rule.ID)
	assert.Equal(t, "/new", rule.Destination)

	// keys are case-insensitive, scoped per site
	_, found = cache.Lookup(ctx, "/OLD", 1)
	assert.True(t, found)
	_, found = cache.Lookup(ctx, "/old", 2)
	assert.False(t, found)
}

func TestLRUCache_LookupReturnsCopy(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(10, time.Minute)

	original := testRule(1, "/new")
	cache.Store(ctx, "/old", 0, original, 0)
	original.Destination = "/mutated"

	got, found := cache.Lookup(ctx, "/old", 0)
	require.True(t, found)
	assert.Equal(t, "/new", got.Destination)

	got.Destination = "/changed-by-caller"
	again, _ := cache.Lookup(ctx, "/old", 0)
	assert.Equal(t, "/new", again.Destination)
}

func TestLRUCache_Expiry(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(10, time.Minute)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Store(ctx, "/short", 0, testRule(1, "/a"), time.Second)
	cache.Store(ctx, "/default", 0, testRule(2, "/b"), 0)

	now = now.Add(2 * time.Second)

	_, found := cache.Lookup(ctx, "/short", 0)
	assert.False(t, found, "entry past its ttl is a miss")
	_, found = cache.Lookup(ctx, "/default", 0)
	assert.True(t, found)

	assert.Equal(t, 1, cache.Stats().Size, "expired entry is removed on lookup")

	now = now.Add(time.Hour)
	_, found = cache.Lookup(ctx, "/default", 0)
	assert.False(t, found)
}

func TestLRUCache_Eviction(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(2, time.Minute)

	cache.Store(ctx, "/1", 0, testRule(1, "/a"), 0)
	cache.Store(ctx, "/2", 0, testRule(2, "/b"), 0)

	// touch /1 so /2 becomes least recently used
	_, found := cache.Lookup(ctx, "/1", 0)
	require.True(t, found)

	cache.Store(ctx, "/3", 0, testRule(3, "/c"), 0)

	_, found = cache.Lookup(ctx, "/2", 0)
	assert.False(t, found)
	_, found = cache.Lookup(ctx, "/1", 0)
	assert.True(t, found)
	_, found = cache.Lookup(ctx, "/3", 0)
	assert.True(t, found)
	assert.Equal(t, 2, cache.Stats().Size)
}

func TestLRUCache_StoreOverwrites(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(2, time.Minute)

	cache.Store(ctx, "/old", 0, testRule(1, "/a"), 0)
	cache.Store(ctx, "/old", 0, testRule(2, "/b"), 0)

	got, found := cache.Lookup(ctx, "/old", 0)
	require.True(t, found)
	assert.Equal(t, uint64(2), got.ID)
	assert.Equal(t, 1, cache.Stats().Size)
}

func TestLRUCache_StoreNilIsIgnored(t *testing.T) {
	cache := NewLRUCache(2, time.Minute)
	cache.Store(context.Background(), "/old", 0, nil, 0)
	assert.Equal(t, 0, cache.Stats().Size)
}

func TestLRUCache_InvalidateAllKeepsCounters(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(10, time.Minute)

	cache.Store(ctx, "/a", 0, testRule(1, "/x"), 0)
	cache.Lookup(ctx, "/a", 0)
	cache.Lookup(ctx, "/missing", 0)

	cache.InvalidateAll(ctx)

	stats := cache.Stats()
	assert.Equal(t, 0, stats.Size)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, "memory", stats.Driver)

	_, found := cache.Lookup(ctx, "/a", 0)
	assert.False(t, found)
}

func TestLRUCache_Stats(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(10, time.Minute)

	cache.Store(ctx, "/a", 0, testRule(1, "/x"), 0)
	cache.Lookup(ctx, "/a", 0)
	cache.Lookup(ctx, "/a", 0)
	cache.Lookup(ctx, "/b", 0)

	stats := cache.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRatio, 0.0001)
	assert.Equal(t, 10, stats.MaxSize)
}

func TestLRUCache_HealthCheck(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(10, time.Minute)

	health := cache.HealthCheck(ctx)
	assert.Equal(t, domain.HealthStatusHealthy, health.Status)

	for i := 0; i < 9; i++ {
		cache.Store(ctx, fmt.Sprintf("/p%d", i), 0, testRule(uint64(i+1), "/x"), 0)
	}

	health = cache.HealthCheck(ctx)
	assert.Equal(t, domain.HealthStatusDegraded, health.Status)
	assert.Contains(t, health.Details, "warning")
}

func TestLRUCache_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(50, time.Minute)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				url := fmt.Sprintf("/p%d", (g*200+i)%80)
				cache.Store(ctx, url, 0, testRule(uint64(i+1), "/x"), 0)
				cache.Lookup(ctx, url, 0)
				if i%50 == 0 {
					cache.InvalidateAll(ctx)
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Stats().Size, 50)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("/Old", 1)
	assert.Len(t, a, 64)
	assert.Equal(t, a, Fingerprint("/old", 1))
	assert.NotEqual(t, a, Fingerprint("/old", 2))
	assert.NotEqual(t, a, Fingerprint("/old/", 1))
}

func TestProperty_InvalidateAllThenLookupMisses(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("every key misses after InvalidateAll", prop.ForAll(
		func(paths []string, site uint64) bool {
			ctx := context.Background()
			cache := NewLRUCache(1000, time.Minute)

			for i, p := range paths {
				cache.Store(ctx, "/"+p, site, testRule(uint64(i+1), "/dest"), 0)
			}
			cache.InvalidateAll(ctx)

			for _, p := range paths {
				if _, found := cache.Lookup(ctx, "/"+p, site); found {
					return false
				}
			}
			return cache.Stats().Size == 0
		},
		gen.SliceOf(gen.AlphaString()),
		gen.UInt64Range(0, 5),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_SizeNeverExceedsMax(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("size is bounded by maxSize", prop.ForAll(
		func(maxSize int, keys []string) bool {
			ctx := context.Background()
			cache := NewLRUCache(maxSize, time.Minute)
			for i, k := range keys {
				cache.Store(ctx, "/"+k, 0, testRule(uint64(i+1), "/d"), 0)
				if cache.Stats().Size > maxSize {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 20),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func BenchmarkLRUCache_Lookup(b *testing.B) {
	ctx := context.Background()
	cache := NewLRUCache(1000, time.Minute)
	for i := 0; i < 1000; i++ {
		cache.Store(ctx, fmt.Sprintf("/p%d", i), 0, testRule(uint64(i+1), "/x"), 0)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Lookup(ctx, fmt.Sprintf("/p%d", i%1000), 0)
	}
}
