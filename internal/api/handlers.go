package api

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/freewebtopdf/redirector/internal/analytics"
	"github.com/freewebtopdf/redirector/internal/domain"
	"github.com/freewebtopdf/redirector/internal/lifecycle"
	"github.com/freewebtopdf/redirector/internal/resolver"
	"github.com/freewebtopdf/redirector/internal/rules"
)

// SiteHeader selects the site a request belongs to
const SiteHeader = "X-Site-ID"

// RuleService is the rule write path used by the handlers
type RuleService interface {
	Get(ctx context.Context, id uint64) (*domain.RedirectRule, error)
	List(ctx context.Context, filter domain.RuleFilter) ([]domain.RedirectRule, error)
	Create(ctx context.Context, rule *domain.RedirectRule) (*domain.RedirectRule, error)
	Update(ctx context.Context, id uint64, patch domain.RulePatch) (*domain.RedirectRule, error)
	Delete(ctx context.Context, id uint64) error
	BulkDelete(ctx context.Context, ids []uint64) (int64, error)
	WouldCreateLoop(ctx context.Context, source, destination string, siteID, excludeID uint64) (bool, error)
	Import(ctx context.Context, ruleList []domain.RedirectRule) rules.ImportResult
}

// RedirectResolver resolves not-found URLs
type RedirectResolver interface {
	Resolve(ctx context.Context, fullURL, pathOnly string, siteID uint64) (*domain.ResolvedRedirect, bool)
	HandleExternal404(ctx context.Context, url string, ext resolver.ExternalContext) (*domain.ResolvedRedirect, bool)
	OnNotFound(ctx context.Context, req resolver.Request) (*domain.ResolvedRedirect, bool)
}

// ContentLifecycle receives content save notifications
type ContentLifecycle interface {
	Enabled() bool
	BeforeContentSave(ctx context.Context, contentID, siteID uint64) error
	AfterContentSave(ctx context.Context, contentID, siteID uint64, newURI string) (lifecycle.Result, error)
}

// StatsReader lists aggregated hit statistics
type StatsReader interface {
	Top(ctx context.Context, q analytics.StatsQuery) ([]analytics.StatRecord, error)
}

// Handlers contains all HTTP handlers for the redirect API
type Handlers struct {
	rules         RuleService
	resolver      RedirectResolver
	lifecycle     ContentLifecycle
	stats         StatsReader
	repository    domain.RuleRepository
	cache         domain.CacheManager
	validator     domain.Validator
	healthChecker domain.HealthChecker
	defaultSiteID uint64
	startTime     time.Time
}

// NewHandlers creates a new instance of API handlers
func NewHandlers(deps RouterDependencies, defaultSiteID uint64) *Handlers {
	return &Handlers{
		rules:         deps.Rules,
		resolver:      deps.Resolver,
		lifecycle:     deps.Lifecycle,
		stats:         deps.Stats,
		repository:    deps.Repository,
		cache:         deps.Cache,
		validator:     deps.Validator,
		healthChecker: deps.HealthChecker,
		defaultSiteID: defaultSiteID,
		startTime:     time.Now(),
	}
}

// ResolveRequest represents the request payload for the resolve endpoint
// @Description Request payload for redirect resolution
type ResolveRequest struct {
	URL    string  `json:"url" example:"https://example.com/old-page?ref=1"`
	Path   string  `json:"path,omitempty" example:"/old-page?ref=1"`
	SiteID *uint64 `json:"site_id,omitempty" example:"0"`
}

// ResolveResponse represents the response payload for the resolve endpoint
// @Description Resolution outcome
type ResolveResponse struct {
	Matched  bool                     `json:"matched" example:"true"`
	Redirect *domain.ResolvedRedirect `json:"redirect,omitempty"`
}

// External404Request reports a 404 seen by another module
// @Description External not-found report
type External404Request struct {
	URL       string         `json:"url" example:"/missing-page"`
	Source    string         `json:"source,omitempty" example:"pdf-renderer"`
	SiteID    *uint64        `json:"site_id,omitempty" example:"0"`
	Referrer  string         `json:"referrer,omitempty"`
	RemoteIP  string         `json:"remote_ip,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ErrorResponse represents the standard error response format
// @Description Standard error response format
type ErrorResponse struct {
	Status  string `json:"status" example:"error"`
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Invalid input provided"`
	Details any    `json:"details,omitempty"`
}

// SuccessResponse represents the standard success response format
// @Description Standard success response format
type SuccessResponse struct {
	Status string `json:"status" example:"success"`
	Data   any    `json:"data"`
}

// ResolveHandler handles POST /v1/resolve requests
// @Summary      Resolve a URL to its redirect
// @Description  Matches a URL against the redirect rules and follows chains to the final destination
// @Tags         Resolution
// @Accept       json
// @Produce      json
// @Param        request body ResolveRequest true "URL to resolve"
// @Success      200 {object} SuccessResponse{data=ResolveResponse} "Resolution outcome"
// @Failure      400 {object} ErrorResponse "Invalid request payload"
// @Failure      422 {object} ErrorResponse "Validation failed"
// @Router       /v1/resolve [post]
func (h *Handlers) ResolveHandler(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var req ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return h.sendError(c, invalidPayload(ctx, err, "resolve_request_parsing"))
	}

	req.URL = strings.TrimSpace(req.URL)
	req.Path = strings.TrimSpace(req.Path)
	if err := h.validator.ValidateURL(req.URL); err != nil {
		return h.sendErr(c, err, "resolve_request_validation")
	}

	fullURL, path := "", req.Path
	if domain.IsAbsoluteURL(req.URL) {
		fullURL = req.URL
	} else if path == "" {
		path = req.URL
	}

	siteID := h.defaultSiteID
	if req.SiteID != nil {
		siteID = *req.SiteID
	}

	result, ok := h.resolver.Resolve(ctx, fullURL, path, siteID)
	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data:   ResolveResponse{Matched: ok, Redirect: result},
	})
}

// External404Handler handles POST /v1/external-404 requests
// @Summary      Report a 404 from another module
// @Description  Resolves a not-found URL observed elsewhere and tags analytics with the reporting source
// @Tags         Resolution
// @Accept       json
// @Produce      json
// @Param        request body External404Request true "Not-found report"
// @Success      200 {object} SuccessResponse{data=ResolveResponse} "Resolution outcome"
// @Failure      400 {object} ErrorResponse "Invalid request payload"
// @Failure      422 {object} ErrorResponse "Validation failed"
// @Router       /v1/external-404 [post]
func (h *Handlers) External404Handler(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var req External404Request
	if err := c.BodyParser(&req); err != nil {
		return h.sendError(c, invalidPayload(ctx, err, "external_404_parsing"))
	}

	req.URL = strings.TrimSpace(req.URL)
	if err := h.validator.ValidateURL(req.URL); err != nil {
		return h.sendErr(c, err, "external_404_validation")
	}

	ext := resolver.ExternalContext{
		Source:    strings.TrimSpace(req.Source),
		SiteID:    h.defaultSiteID,
		Referrer:  req.Referrer,
		RemoteIP:  req.RemoteIP,
		UserAgent: req.UserAgent,
		Metadata:  req.Metadata,
	}
	if req.SiteID != nil {
		ext.SiteID = *req.SiteID
	}

	result, ok := h.resolver.HandleExternal404(ctx, req.URL, ext)
	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data:   ResolveResponse{Matched: ok, Redirect: result},
	})
}

// NotFoundHandler answers GET/HEAD requests no route served with a redirect or a 404
func (h *Handlers) NotFoundHandler(c *fiber.Ctx) error {
	ctx := c.UserContext()

	req := resolver.Request{
		FullURL:   c.BaseURL() + c.OriginalURL(),
		Path:      c.OriginalURL(),
		SiteID:    h.siteID(c),
		Referrer:  c.Get(fiber.HeaderReferer),
		RemoteIP:  c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}

	result, ok := h.resolver.OnNotFound(ctx, req)
	if !ok {
		return h.sendError(c, domain.NewAppError(
			domain.ErrNotFound,
			"Page not found",
			404,
			map[string]string{"path": c.Path()},
		).WithContext(ctx, "not_found"))
	}

	for _, header := range result.Headers {
		c.Set(header.Name, header.Value)
	}

	if result.StatusCode == domain.StatusGone {
		return h.sendError(c, domain.NewAppError(
			domain.ErrNotFound,
			"Page is gone",
			410,
			map[string]any{"path": c.Path(), "rule_id": result.RuleID},
		))
	}

	return c.Redirect(result.Destination, result.StatusCode)
}

// StatsHandler handles GET /v1/stats requests
// @Summary      Not-found statistics
// @Description  Lists the most requested not-found URLs with hit counts
// @Tags         Analytics
// @Produce      json
// @Param        site_id query int false "Site ID"
// @Param        handled query bool false "Only URLs that did (true) or did not (false) redirect"
// @Param        limit query int false "Maximum rows (default 100)"
// @Success      200 {object} SuccessResponse "Statistics"
// @Failure      422 {object} ErrorResponse "Validation failed"
// @Router       /v1/stats [get]
func (h *Handlers) StatsHandler(c *fiber.Ctx) error {
	ctx := c.UserContext()

	if h.stats == nil {
		return c.Status(200).JSON(SuccessResponse{
			Status: "success",
			Data:   map[string]any{"enabled": false, "stats": []analytics.StatRecord{}, "count": 0},
		})
	}

	var q analytics.StatsQuery
	if raw := c.Query("site_id"); raw != "" {
		siteID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return h.sendError(c, invalidParam(ctx, "site_id", raw))
		}
		q.SiteID = &siteID
	}
	if raw := c.Query("handled"); raw != "" {
		handled, err := strconv.ParseBool(raw)
		if err != nil {
			return h.sendError(c, invalidParam(ctx, "handled", raw))
		}
		q.Handled = &handled
	}
	q.Limit = c.QueryInt("limit", 100)

	rows, err := h.stats.Top(ctx, q)
	if err != nil {
		return h.sendErr(c, err, "stats_query")
	}

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data:   map[string]any{"enabled": true, "stats": rows, "count": len(rows)},
	})
}

// HealthHandler handles GET /health requests
// @Summary      Health check
// @Description  Returns the health status of storage, cache and analytics
// @Tags         System
// @Produce      json
// @Success      200 {object} map[string]any "Service is healthy"
// @Failure      503 {object} map[string]any "Service is degraded or unhealthy"
// @Router       /health [get]
func (h *Handlers) HealthHandler(c *fiber.Ctx) error {
	health := h.healthChecker.CheckHealth(c.UserContext())

	status := 200
	if health.Status != domain.HealthStatusHealthy {
		status = 503
	}

	return c.Status(status).JSON(map[string]any{
		"status":     health.Status,
		"timestamp":  health.Timestamp.Format(time.RFC3339),
		"components": health.Components,
		"uptime":     health.Uptime.String(),
	})
}

// MetricsHandler handles GET /metrics requests
// @Summary      System metrics
// @Description  Returns cache statistics and rule store counts
// @Tags         System
// @Produce      json
// @Success      200 {object} SuccessResponse "Successfully retrieved metrics"
// @Router       /metrics [get]
func (h *Handlers) MetricsHandler(c *fiber.Ctx) error {
	cacheStats := h.cache.Stats()

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data: map[string]any{
			"cache": cacheStats,
			"rules": h.repository.GetStats(c.UserContext()),
			"uptime": map[string]any{
				"seconds":   int64(time.Since(h.startTime).Seconds()),
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			},
		},
	})
}

// siteID reads X-Site-ID, falling back to the configured default
func (h *Handlers) siteID(c *fiber.Ctx) uint64 {
	raw := strings.TrimSpace(c.Get(SiteHeader))
	if raw == "" {
		return h.defaultSiteID
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		log.Debug().Str("value", raw).Msg("Ignoring invalid site header")
		return h.defaultSiteID
	}
	return id
}

func invalidPayload(ctx context.Context, err error, op string) *domain.AppError {
	return domain.NewAppError(
		domain.ErrInvalidInput,
		"Invalid JSON payload",
		400,
		map[string]string{"error": err.Error()},
	).WithContext(ctx, op)
}

func invalidParam(ctx context.Context, field, value string) *domain.AppError {
	return domain.NewAppError(
		domain.ErrValidationFailed,
		"Invalid "+field,
		422,
		map[string]string{"field": field, "value": value},
	).WithContext(ctx, "parameter_parsing")
}

// sendErr converts any error to the standard response; unknown errors become 500s
func (h *Handlers) sendErr(c *fiber.Ctx, err error, op string) error {
	ctx := c.UserContext()
	appErr, ok := domain.AsAppError(err)
	if !ok {
		appErr = domain.NewAppErrorWithCause(domain.ErrInternal, "Internal server error", 500, err, nil)
	}
	appErr = appErr.WithContext(ctx, op)

	if appErr.StatusCode >= 500 {
		log.Error().
			Err(err).
			Str("request_id", appErr.RequestID).
			Str("operation", op).
			Msg("Request failed")
	}
	return h.sendError(c, appErr)
}

// sendError sends a standardized error response
func (h *Handlers) sendError(c *fiber.Ctx, appErr *domain.AppError) error {
	return c.Status(appErr.StatusCode).JSON(ErrorResponse{
		Status:  "error",
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	})
}
