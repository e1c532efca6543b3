// Package middleware holds fiber middleware shared by the HTTP surface.
package middleware

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/freewebtopdf/redirector/internal/domain"
)

// TokenBucket implements a token bucket rate limiter
type TokenBucket struct {
	capacity   int
	tokens     float64 // Use float for precise refill
	refillRate int     // tokens per second
	lastRefill time.Time
	mutex      sync.Mutex
}

// NewTokenBucket creates a new token bucket
func NewTokenBucket(capacity, refillRate int) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow takes a token if one is available and reports the tokens left
func (tb *TokenBucket) Allow() (bool, int) {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()

	tb.tokens = min(float64(tb.capacity), tb.tokens+elapsed*float64(tb.refillRate))
	tb.lastRefill = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true, int(tb.tokens)
	}
	return false, 0
}

type limit struct {
	capacity   int
	refillRate int
}

// Route groups share a bucket per client. Fallthrough redirect traffic
// arrives on arbitrary paths so it is grouped rather than keyed by path.
const (
	GroupResolve = "resolve"
	GroupRules   = "rules"
	GroupContent = "content"
	GroupOps     = "ops"
)

// RateLimiter manages per-client token buckets for each route group
type RateLimiter struct {
	buckets map[string]*TokenBucket
	mutex   sync.RWMutex

	defaultLimit limit
	groupLimits  map[string]limit
}

// NewRateLimiter creates a rate limiter; resolution traffic gets twice the
// default allowance and rule administration half of it.
func NewRateLimiter(rps, burst int) *RateLimiter {
	return &RateLimiter{
		buckets:      make(map[string]*TokenBucket),
		defaultLimit: limit{capacity: burst, refillRate: rps},
		groupLimits: map[string]limit{
			GroupResolve: {capacity: burst * 2, refillRate: rps * 2},
			GroupRules:   {capacity: max(burst/2, 1), refillRate: max(rps/2, 1)},
			GroupContent: {capacity: burst, refillRate: rps},
			GroupOps:     {capacity: 20, refillRate: 2},
		},
	}
}

// GroupOf maps a request path onto its route group
func GroupOf(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/rules"):
		return GroupRules
	case strings.HasPrefix(path, "/v1/content"):
		return GroupContent
	case path == "/health" || path == "/metrics" || strings.HasPrefix(path, "/v1/stats"):
		return GroupOps
	default:
		return GroupResolve
	}
}

// getBucket gets or creates a token bucket for a client+group combination
func (rl *RateLimiter) getBucket(clientID, group string) (*TokenBucket, limit) {
	key := clientID + ":" + group

	l, ok := rl.groupLimits[group]
	if !ok {
		l = rl.defaultLimit
	}

	rl.mutex.RLock()
	bucket, exists := rl.buckets[key]
	rl.mutex.RUnlock()
	if exists {
		return bucket, l
	}

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	// Double-check after acquiring write lock
	if bucket, exists := rl.buckets[key]; exists {
		return bucket, l
	}

	bucket = NewTokenBucket(l.capacity, l.refillRate)
	rl.buckets[key] = bucket
	return bucket, l
}

// getClientID extracts client identifier from request
func (rl *RateLimiter) getClientID(c *fiber.Ctx) string {
	if apiKey := c.Get("X-API-Key"); apiKey != "" {
		return "api:" + apiKey
	}
	return "ip:" + c.IP()
}

// Middleware returns a Fiber middleware for rate limiting
func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID := rl.getClientID(c)
		group := GroupOf(c.Path())

		bucket, l := rl.getBucket(clientID, group)
		allowed, remaining := bucket.Allow()

		c.Set("X-RateLimit-Limit", strconv.Itoa(l.capacity))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			retryAfter := 60
			if l.refillRate > 0 {
				retryAfter = 1
			}
			appErr := domain.NewAppError(
				domain.ErrRateLimit,
				"Rate limit exceeded",
				429,
				map[string]any{
					"group":       group,
					"retry_after": retryAfter,
				},
			).WithContext(c.UserContext(), "rate_limit")

			c.Set("Retry-After", strconv.Itoa(retryAfter))
			return c.Status(appErr.StatusCode).JSON(map[string]any{
				"status":  "error",
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			})
		}

		return c.Next()
	}
}

// CleanupOldBuckets removes buckets idle for longer than maxIdle
func (rl *RateLimiter) CleanupOldBuckets(maxIdle time.Duration) int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()
	removed := 0
	for key, bucket := range rl.buckets {
		bucket.mutex.Lock()
		idle := now.Sub(bucket.lastRefill)
		bucket.mutex.Unlock()
		if idle > maxIdle {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine starts a background routine to clean up old buckets
// Returns a stop function to cancel the routine
func (rl *RateLimiter) StartCleanupRoutine() (stop func()) {
	ticker := time.NewTicker(10 * time.Minute)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				rl.CleanupOldBuckets(time.Hour)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// GetStats returns rate limiter statistics
func (rl *RateLimiter) GetStats() map[string]any {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()

	groups := make(map[string]any, len(rl.groupLimits))
	for name, l := range rl.groupLimits {
		groups[name] = map[string]int{"capacity": l.capacity, "refill_rate": l.refillRate}
	}

	return map[string]any{
		"active_buckets":      len(rl.buckets),
		"default_capacity":    rl.defaultLimit.capacity,
		"default_refill_rate": rl.defaultLimit.refillRate,
		"groups":              groups,
	}
}
