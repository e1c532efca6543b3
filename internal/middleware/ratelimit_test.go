package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket_Allow(t *testing.T) {
	bucket := NewTokenBucket(2, 0)

	ok, remaining := bucket.Allow()
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)

	ok, _ = bucket.Allow()
	assert.True(t, ok)

	ok, remaining = bucket.Allow()
	assert.False(t, ok)
	assert.Equal(t, 0, remaining)
}

func TestGroupOf(t *testing.T) {
	assert.Equal(t, GroupRules, GroupOf("/v1/rules/12"))
	assert.Equal(t, GroupContent, GroupOf("/v1/content/after-save"))
	assert.Equal(t, GroupOps, GroupOf("/health"))
	assert.Equal(t, GroupOps, GroupOf("/v1/stats"))
	assert.Equal(t, GroupResolve, GroupOf("/v1/resolve"))
	assert.Equal(t, GroupResolve, GroupOf("/some/missing/page"))
}

func TestMiddleware_LimitsPerGroup(t *testing.T) {
	rl := NewRateLimiter(0, 2)
	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/*", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNotFound) })

	// resolve group gets twice the burst, shared across arbitrary paths
	for i, path := range []string{"/a", "/b", "/c", "/d"} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, "request %d", i)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/e", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))

	// rules group has its own bucket
	resp, err = app.Test(httptest.NewRequest("GET", "/v1/rules", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestMiddleware_SeparatesClientsByAPIKey(t *testing.T) {
	rl := NewRateLimiter(0, 1)
	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/v1/rules", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	req := func(key string) int {
		r := httptest.NewRequest("GET", "/v1/rules", nil)
		r.Header.Set("X-API-Key", key)
		resp, err := app.Test(r)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, req("one"))
	assert.Equal(t, fiber.StatusTooManyRequests, req("one"))
	assert.Equal(t, fiber.StatusOK, req("two"))
}

func TestCleanupOldBuckets(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	rl.getBucket("ip:1", GroupResolve)
	rl.getBucket("ip:2", GroupRules)

	assert.Equal(t, 0, rl.CleanupOldBuckets(time.Hour))
	assert.Equal(t, 2, rl.CleanupOldBuckets(-time.Second))
	assert.Equal(t, 0, rl.GetStats()["active_buckets"])
}
