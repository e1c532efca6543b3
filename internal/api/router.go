package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/freewebtopdf/redirector/internal/domain"
	"github.com/freewebtopdf/redirector/internal/middleware"
)

// RouterConfig contains configuration for the HTTP router
type RouterConfig struct {
	CORSOrigins    []string
	BodyLimit      int
	RateLimitRPS   int
	RateLimitBurst int
	// DefaultSiteID is used when a request carries no X-Site-ID header
	DefaultSiteID uint64
	// Fallthrough turns unmatched GET/HEAD requests into redirect lookups
	Fallthrough bool
}

// RouterDependencies contains all dependencies needed by the router
type RouterDependencies struct {
	Rules         RuleService
	Resolver      RedirectResolver
	Lifecycle     ContentLifecycle
	Stats         StatsReader
	Repository    domain.RuleRepository
	Cache         domain.CacheManager
	Validator     domain.Validator
	HealthChecker domain.HealthChecker
}

// RouterResult contains the configured app and cleanup function
type RouterResult struct {
	App     *fiber.App
	Cleanup func()
}

// SetupRouter creates and configures the Fiber app with all routes and middleware
func SetupRouter(deps RouterDependencies, config RouterConfig) *RouterResult {
	app := fiber.New(fiber.Config{
		BodyLimit:             config.BodyLimit,
		ErrorHandler:          customErrorHandler,
		DisableStartupMessage: true,
	})

	handlers := NewHandlers(deps, config.DefaultSiteID)

	// Middleware pipeline (order is critical)

	// 1. RequestID middleware for UUID generation
	app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return generateUUID()
		},
	}))

	// 2. Request id into the user context so AppError.WithContext sees it
	app.Use(requestContextMiddleware())

	// 3. Structured logging middleware with zerolog
	app.Use(structuredLoggingMiddleware())

	// 4. Panic recovery middleware with stack trace logging
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			log.Error().
				Str("request_id", requestIDOf(c)).
				Interface("panic", e).
				Str("method", c.Method()).
				Str("path", c.Path()).
				Str("ip", c.IP()).
				Msg("Panic recovered")
		},
	}))

	// 5. Security headers middleware
	app.Use(securityHeadersMiddleware())

	// 6. Rate limiting middleware (before CORS to limit all requests)
	var stopRateLimiter func()
	if config.RateLimitRPS > 0 {
		burst := config.RateLimitBurst
		if burst <= 0 {
			burst = config.RateLimitRPS * 2
		}
		rateLimiter := middleware.NewRateLimiter(config.RateLimitRPS, burst)
		stopRateLimiter = rateLimiter.StartCleanupRoutine()
		app.Use(rateLimiter.Middleware())
	}

	// 7. CORS middleware with origin restrictions
	if len(config.CORSOrigins) > 0 {
		app.Use(cors.New(cors.Config{
			AllowOrigins:     strings.Join(config.CORSOrigins, ","),
			AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
			AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID,X-Site-ID",
			AllowCredentials: false,
			MaxAge:           86400, // 24 hours
		}))
	}

	v1 := app.Group("/v1")

	// Resolution endpoints
	v1.Post("/resolve", handlers.ResolveHandler)
	v1.Post("/external-404", handlers.External404Handler)

	// Rules endpoints; fixed paths before :id
	v1.Get("/rules", handlers.ListRulesHandler)
	v1.Post("/rules", handlers.CreateRuleHandler)
	v1.Get("/rules/export", handlers.ExportRulesHandler)
	v1.Post("/rules/import", handlers.ImportRulesHandler)
	v1.Post("/rules/bulk-delete", handlers.BulkDeleteHandler)
	v1.Post("/rules/check-loop", handlers.CheckLoopHandler)
	v1.Get("/rules/:id", handlers.GetRuleHandler)
	v1.Put("/rules/:id", handlers.UpdateRuleHandler)
	v1.Patch("/rules/:id", handlers.UpdateRuleHandler)
	v1.Delete("/rules/:id", handlers.DeleteRuleHandler)

	// Content lifecycle hooks
	v1.Post("/content/before-save", handlers.BeforeSaveHandler)
	v1.Post("/content/after-save", handlers.AfterSaveHandler)

	// Analytics
	v1.Get("/stats", handlers.StatsHandler)

	// Health and metrics endpoints
	app.Get("/health", handlers.HealthHandler)
	app.Get("/metrics", handlers.MetricsHandler)

	// Swagger documentation endpoint
	app.Get("/swagger/*", swagger.HandlerDefault)

	// Everything else is a page the host does not have
	if config.Fallthrough {
		app.Get("/*", handlers.NotFoundHandler)
		app.Head("/*", handlers.NotFoundHandler)
	}

	cleanup := func() {
		if stopRateLimiter != nil {
			stopRateLimiter()
		}
	}

	return &RouterResult{App: app, Cleanup: cleanup}
}

// customErrorHandler handles Fiber framework errors
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	switch code {
	case fiber.StatusRequestEntityTooLarge:
		return c.Status(413).JSON(ErrorResponse{
			Status:  "error",
			Code:    domain.ErrTooLarge,
			Message: "Request payload too large",
		})
	case fiber.StatusBadRequest:
		return c.Status(400).JSON(ErrorResponse{
			Status:  "error",
			Code:    domain.ErrInvalidInput,
			Message: message,
		})
	case fiber.StatusNotFound:
		return c.Status(404).JSON(ErrorResponse{
			Status:  "error",
			Code:    domain.ErrNotFound,
			Message: message,
		})
	default:
		return c.Status(code).JSON(ErrorResponse{
			Status:  "error",
			Code:    domain.ErrInternal,
			Message: message,
		})
	}
}

// generateUUID generates a UUID v4 for request tracking
func generateUUID() string {
	return uuid.New().String()
}

func requestIDOf(c *fiber.Ctx) string {
	if rid, ok := c.Locals("requestid").(string); ok {
		return rid
	}
	return ""
}

// requestContextMiddleware copies the request id onto the user context
func requestContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rid := requestIDOf(c); rid != "" {
			c.SetUserContext(domain.ContextWithRequestID(c.UserContext(), rid))
		}
		return c.Next()
	}
}

// structuredLoggingMiddleware creates structured JSON logging middleware with zerolog
func structuredLoggingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		requestID := requestIDOf(c)
		if requestID == "" {
			requestID = "unknown"
		}

		latency := time.Since(start)
		status := c.Response().StatusCode()

		logEvent := log.Info()
		switch {
		case status >= 500:
			logEvent = log.Error()
		case status >= 400 && status != 404:
			logEvent = log.Warn()
		}

		logEvent.
			Str("request_id", requestID).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("latency", latency).
			Str("ip", c.IP()).
			Str("user_agent", c.Get("User-Agent")).
			Int("body_size", len(c.Body())).
			Int("response_size", len(c.Response().Body())).
			Msg("HTTP request processed")

		return err
	}
}

// securityHeadersMiddleware adds security headers
func securityHeadersMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")

		return c.Next()
	}
}
