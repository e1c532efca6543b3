package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/freewebtopdf/redirector/internal/domain"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("cache: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("cache: CBOR decoder initialization failed: " + err.Error())
	}
}

// RedisOptions configures the shared cache
type RedisOptions struct {
	Addr       string
	Password   string
	DB         int
	KeyPrefix  string
	DefaultTTL time.Duration
	Timeout    time.Duration
}

// RedisCache implements CacheManager on a Redis server shared by every
// instance. Entries are CBOR-encoded rules stored with SET EX. Redis
// errors degrade to misses so resolution keeps working.
type RedisCache struct {
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration

	hits   int64
	misses int64
	errors int64
}

// NewRedisCache connects to Redis and verifies the connection with PING
func NewRedisCache(ctx context.Context, opts RedisOptions) (*RedisCache, error) {
	c := newRedisCache(opts)

	pingCtx, cancel := context.WithTimeout(ctx, c.client.Options().DialTimeout)
	defer cancel()
	if err := c.client.Ping(pingCtx).Err(); err != nil {
		_ = c.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("Redis cache connected")
	return c, nil
}

func newRedisCache(opts RedisOptions) *RedisCache {
	if opts.Timeout <= 0 {
		opts.Timeout = 500 * time.Millisecond
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = time.Hour
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "redirector:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.Timeout,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
		MaxRetries:   1,
	})

	return &RedisCache{
		client:     client,
		prefix:     opts.KeyPrefix,
		defaultTTL: opts.DefaultTTL,
	}
}

func (c *RedisCache) key(url string, siteID uint64) string {
	return c.prefix + "rule:" + Fingerprint(url, siteID)
}

// Lookup fetches and decodes the cached rule for url
func (c *RedisCache) Lookup(ctx context.Context, url string, siteID uint64) (*domain.RedirectRule, bool) {
	data, err := c.client.Get(ctx, c.key(url, siteID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			atomic.AddInt64(&c.errors, 1)
			log.Warn().Err(err).Str("url", url).Msg("Redis cache lookup failed")
		}
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	var rule domain.RedirectRule
	if err := decMode.Unmarshal(data, &rule); err != nil {
		atomic.AddInt64(&c.errors, 1)
		atomic.AddInt64(&c.misses, 1)
		log.Warn().Err(err).Str("url", url).Msg("Discarding undecodable cache entry")
		return nil, false
	}

	atomic.AddInt64(&c.hits, 1)
	return &rule, true
}

// Store writes rule under url with the given ttl, or the default when ttl <= 0
func (c *RedisCache) Store(ctx context.Context, url string, siteID uint64, rule *domain.RedirectRule, ttl time.Duration) {
	if rule == nil {
		return
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	data, err := encMode.Marshal(rule)
	if err != nil {
		atomic.AddInt64(&c.errors, 1)
		log.Error().Err(err).Uint64("rule_id", rule.ID).Msg("Failed to encode rule for cache")
		return
	}

	if err := c.client.Set(ctx, c.key(url, siteID), data, ttl).Err(); err != nil {
		atomic.AddInt64(&c.errors, 1)
		log.Warn().Err(err).Str("url", url).Msg("Redis cache store failed")
	}
}

// InvalidateAll removes every key under the cache prefix
func (c *RedisCache) InvalidateAll(ctx context.Context) {
	var cursor uint64
	removed := 0
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"rule:*", 500).Result()
		if err != nil {
			atomic.AddInt64(&c.errors, 1)
			log.Error().Err(err).Msg("Redis cache invalidation scan failed")
			return
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				atomic.AddInt64(&c.errors, 1)
				log.Error().Err(err).Msg("Redis cache invalidation failed")
				return
			}
			removed += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	log.Debug().Int("keys", removed).Msg("Redis cache invalidated")
}

// Stats returns counters observed by this instance
func (c *RedisCache) Stats() domain.CacheStats {
	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)

	var hitRatio float64
	if total := hits + misses; total > 0 {
		hitRatio = float64(hits) / float64(total)
	}

	return domain.CacheStats{
		Hits:     hits,
		Misses:   misses,
		HitRatio: hitRatio,
		Driver:   "redis",
	}
}

// HealthCheck pings the server
func (c *RedisCache) HealthCheck(ctx context.Context) domain.HealthStatus {
	start := time.Now()
	err := c.client.Ping(ctx).Err()
	latency := time.Since(start)

	pool := c.client.PoolStats()
	details := map[string]any{
		"latency_ms":  latency.Milliseconds(),
		"errors":      atomic.LoadInt64(&c.errors),
		"total_conns": pool.TotalConns,
		"idle_conns":  pool.IdleConns,
	}

	if err != nil {
		details["error"] = err.Error()
		return domain.HealthStatus{
			Status:    domain.HealthStatusUnhealthy,
			Message:   "Redis is unreachable",
			Details:   details,
			Timestamp: time.Now(),
		}
	}

	return domain.HealthStatus{
		Status:    domain.HealthStatusHealthy,
		Message:   "Redis cache is operating normally",
		Details:   details,
		Timestamp: time.Now(),
	}
}

// Close releases the connection pool
func (c *RedisCache) Close() error {
	return c.client.Close()
}
