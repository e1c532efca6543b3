package api

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/freewebtopdf/redirector/internal/domain"
	"github.com/freewebtopdf/redirector/internal/loader"
)

// CreateRuleRequest represents the request payload for creating a rule
// @Description Rule to create; strategy, status and scope default to exact, 301 and inferred
type CreateRuleRequest struct {
	SiteID        uint64               `json:"site_id" example:"0"`
	SourcePattern string               `json:"source_pattern" example:"/old-page"`
	SourceScope   domain.SourceScope   `json:"source_scope,omitempty" example:"pathonly"`
	MatchStrategy domain.MatchStrategy `json:"match_strategy,omitempty" example:"exact"`
	Destination   string               `json:"destination" example:"/new-page"`
	StatusCode    int                  `json:"status_code,omitempty" example:"301"`
	Enabled       *bool                `json:"enabled,omitempty" example:"true"`
	Priority      int                  `json:"priority" example:"0"`
}

func (r CreateRuleRequest) toRule() domain.RedirectRule {
	rule := domain.RedirectRule{
		SiteID:        r.SiteID,
		SourcePattern: strings.TrimSpace(r.SourcePattern),
		SourceScope:   r.SourceScope,
		MatchStrategy: r.MatchStrategy,
		Destination:   strings.TrimSpace(r.Destination),
		StatusCode:    r.StatusCode,
		Enabled:       true,
		Priority:      r.Priority,
		CreationType:  domain.CreationManual,
	}
	if r.Enabled != nil {
		rule.Enabled = *r.Enabled
	}
	rule.ApplyDefaults()
	return rule
}

// BulkDeleteRequest lists the rules to delete
// @Description Rule IDs to delete
type BulkDeleteRequest struct {
	IDs []uint64 `json:"ids" example:"1,2,3"`
}

// CheckLoopRequest asks whether a source/destination pair would loop
// @Description Loop check input
type CheckLoopRequest struct {
	Source      string `json:"source" example:"/a"`
	Destination string `json:"destination" example:"/b"`
	SiteID      uint64 `json:"site_id" example:"0"`
	ExcludeID   uint64 `json:"exclude_id,omitempty" example:"0"`
}

// ListRulesHandler handles GET /v1/rules requests
// @Summary      List rules
// @Description  Lists redirect rules ordered by priority then id
// @Tags         Rules
// @Produce      json
// @Param        site_id query int false "Site ID"
// @Param        creation_type query string false "manual, import or auto"
// @Param        enabled query bool false "Only enabled rules"
// @Param        limit query int false "Page size"
// @Param        offset query int false "Page offset"
// @Success      200 {object} SuccessResponse "Rules"
// @Failure      422 {object} ErrorResponse "Validation failed"
// @Router       /v1/rules [get]
func (h *Handlers) ListRulesHandler(c *fiber.Ctx) error {
	ctx := c.UserContext()

	filter := domain.RuleFilter{
		CreationType: domain.CreationType(c.Query("creation_type")),
		EnabledOnly:  c.QueryBool("enabled", false),
		Limit:        c.QueryInt("limit", 0),
		Offset:       c.QueryInt("offset", 0),
	}
	if raw := c.Query("site_id"); raw != "" {
		siteID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return h.sendError(c, invalidParam(ctx, "site_id", raw))
		}
		filter.SiteID = &siteID
	}

	ruleList, err := h.rules.List(ctx, filter)
	if err != nil {
		return h.sendErr(c, err, "list_rules")
	}

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data: map[string]any{
			"rules": ruleList,
			"count": len(ruleList),
		},
	})
}

// GetRuleHandler handles GET /v1/rules/:id requests
// @Summary      Get a rule
// @Tags         Rules
// @Produce      json
// @Param        id path int true "Rule ID"
// @Success      200 {object} SuccessResponse{data=object{rule=domain.RedirectRule}} "Rule"
// @Failure      404 {object} ErrorResponse "Rule not found"
// @Router       /v1/rules/{id} [get]
func (h *Handlers) GetRuleHandler(c *fiber.Ctx) error {
	id, appErr := ruleIDParam(c)
	if appErr != nil {
		return h.sendError(c, appErr)
	}

	rule, err := h.rules.Get(c.UserContext(), id)
	if err != nil {
		return h.sendErr(c, err, "get_rule")
	}

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data:   map[string]any{"rule": rule},
	})
}

// CreateRuleHandler handles POST /v1/rules requests
// @Summary      Create a rule
// @Description  Creates a redirect rule after validation and loop detection
// @Tags         Rules
// @Accept       json
// @Produce      json
// @Param        rule body CreateRuleRequest true "Rule to create"
// @Success      201 {object} SuccessResponse{data=object{rule=domain.RedirectRule}} "Created rule"
// @Failure      400 {object} ErrorResponse "Invalid request payload"
// @Failure      409 {object} ErrorResponse "A rule with this source already exists"
// @Failure      422 {object} ErrorResponse "Validation failed or redirect loop"
// @Router       /v1/rules [post]
func (h *Handlers) CreateRuleHandler(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var req CreateRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return h.sendError(c, invalidPayload(ctx, err, "create_rule_parsing"))
	}

	rule := req.toRule()
	created, err := h.rules.Create(ctx, &rule)
	if err != nil {
		return h.sendErr(c, err, "create_rule")
	}

	return c.Status(201).JSON(SuccessResponse{
		Status: "success",
		Data:   map[string]any{"rule": created},
	})
}

// UpdateRuleHandler handles PUT and PATCH /v1/rules/:id requests
// @Summary      Update a rule
// @Description  Applies the provided fields; the rule itself is ignored by loop detection
// @Tags         Rules
// @Accept       json
// @Produce      json
// @Param        id path int true "Rule ID"
// @Param        rule body domain.RulePatch true "Fields to update"
// @Success      200 {object} SuccessResponse{data=object{rule=domain.RedirectRule}} "Updated rule"
// @Failure      400 {object} ErrorResponse "Invalid request payload"
// @Failure      404 {object} ErrorResponse "Rule not found"
// @Failure      409 {object} ErrorResponse "A rule with this source already exists"
// @Failure      422 {object} ErrorResponse "Validation failed or redirect loop"
// @Router       /v1/rules/{id} [put]
func (h *Handlers) UpdateRuleHandler(c *fiber.Ctx) error {
	ctx := c.UserContext()

	id, appErr := ruleIDParam(c)
	if appErr != nil {
		return h.sendError(c, appErr)
	}

	var patch domain.RulePatch
	if err := c.BodyParser(&patch); err != nil {
		return h.sendError(c, invalidPayload(ctx, err, "update_rule_parsing"))
	}

	updated, err := h.rules.Update(ctx, id, patch)
	if err != nil {
		return h.sendErr(c, err, "update_rule")
	}

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data:   map[string]any{"rule": updated},
	})
}

// DeleteRuleHandler handles DELETE /v1/rules/:id requests
// @Summary      Delete a rule
// @Tags         Rules
// @Produce      json
// @Param        id path int true "Rule ID"
// @Success      200 {object} SuccessResponse{data=object{message=string,rule_id=int}} "Deleted"
// @Failure      404 {object} ErrorResponse "Rule not found"
// @Router       /v1/rules/{id} [delete]
func (h *Handlers) DeleteRuleHandler(c *fiber.Ctx) error {
	id, appErr := ruleIDParam(c)
	if appErr != nil {
		return h.sendError(c, appErr)
	}

	if err := h.rules.Delete(c.UserContext(), id); err != nil {
		return h.sendErr(c, err, "delete_rule")
	}

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data: map[string]any{
			"message": "Rule deleted successfully",
			"rule_id": id,
		},
	})
}

// BulkDeleteHandler handles POST /v1/rules/bulk-delete requests
// @Summary      Delete several rules
// @Tags         Rules
// @Accept       json
// @Produce      json
// @Param        request body BulkDeleteRequest true "Rule IDs"
// @Success      200 {object} SuccessResponse{data=object{deleted=int}} "Deleted count"
// @Failure      422 {object} ErrorResponse "No IDs given"
// @Router       /v1/rules/bulk-delete [post]
func (h *Handlers) BulkDeleteHandler(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var req BulkDeleteRequest
	if err := c.BodyParser(&req); err != nil {
		return h.sendError(c, invalidPayload(ctx, err, "bulk_delete_parsing"))
	}

	deleted, err := h.rules.BulkDelete(ctx, req.IDs)
	if err != nil {
		return h.sendErr(c, err, "bulk_delete")
	}

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data:   map[string]any{"deleted": deleted},
	})
}

// CheckLoopHandler handles POST /v1/rules/check-loop requests
// @Summary      Check for a redirect loop
// @Description  Reports whether adding source -> destination would create a loop
// @Tags         Rules
// @Accept       json
// @Produce      json
// @Param        request body CheckLoopRequest true "Candidate redirect"
// @Success      200 {object} SuccessResponse{data=object{would_loop=bool}} "Loop check"
// @Failure      422 {object} ErrorResponse "Validation failed"
// @Router       /v1/rules/check-loop [post]
func (h *Handlers) CheckLoopHandler(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var req CheckLoopRequest
	if err := c.BodyParser(&req); err != nil {
		return h.sendError(c, invalidPayload(ctx, err, "check_loop_parsing"))
	}

	req.Source = strings.TrimSpace(req.Source)
	req.Destination = strings.TrimSpace(req.Destination)
	if req.Source == "" || req.Destination == "" {
		return h.sendError(c, domain.NewAppError(
			domain.ErrValidationFailed,
			"Source and destination are required",
			422,
			map[string]string{"field": "source,destination", "reason": "required"},
		).WithContext(ctx, "check_loop_validation"))
	}

	loops, err := h.rules.WouldCreateLoop(ctx, req.Source, req.Destination, req.SiteID, req.ExcludeID)
	if err != nil {
		return h.sendErr(c, err, "check_loop")
	}

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data:   map[string]any{"would_loop": loops},
	})
}

// ImportRulesHandler handles POST /v1/rules/import requests
// @Summary      Import rules
// @Description  Imports redirects from a YAML or JSON document; existing sources are skipped
// @Tags         Rules
// @Accept       json
// @Accept       application/x-yaml
// @Produce      json
// @Param        format query string false "yaml or json; defaults from Content-Type"
// @Success      200 {object} SuccessResponse{data=rules.ImportResult} "Import summary"
// @Failure      400 {object} ErrorResponse "Unparseable document"
// @Router       /v1/rules/import [post]
func (h *Handlers) ImportRulesHandler(c *fiber.Ctx) error {
	ctx := c.UserContext()

	format := strings.ToLower(c.Query("format"))
	if format == "" {
		format = loader.FormatJSON
		if strings.Contains(strings.ToLower(c.Get(fiber.HeaderContentType)), "yaml") {
			format = loader.FormatYAML
		}
	}

	ruleList, err := loader.Parse(c.Body(), format)
	if err != nil {
		return h.sendError(c, domain.NewAppErrorWithCause(
			domain.ErrInvalidInput,
			"Invalid import document",
			400,
			err,
			map[string]string{"error": err.Error(), "format": format},
		).WithContext(ctx, "import_parsing"))
	}

	result := h.rules.Import(ctx, ruleList)
	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data:   result,
	})
}

// ExportRulesHandler handles GET /v1/rules/export requests
// @Summary      Export rules
// @Description  Downloads rules as a YAML or JSON redirects document
// @Tags         Rules
// @Produce      json
// @Produce      application/x-yaml
// @Param        format query string false "yaml or json (default json)"
// @Param        site_id query int false "Site ID"
// @Success      200 {string} string "Redirects document"
// @Failure      422 {object} ErrorResponse "Validation failed"
// @Router       /v1/rules/export [get]
func (h *Handlers) ExportRulesHandler(c *fiber.Ctx) error {
	ctx := c.UserContext()

	format := strings.ToLower(c.Query("format", loader.FormatJSON))
	if format != loader.FormatJSON && format != loader.FormatYAML {
		return h.sendError(c, invalidParam(ctx, "format", format))
	}

	var filter domain.RuleFilter
	if raw := c.Query("site_id"); raw != "" {
		siteID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return h.sendError(c, invalidParam(ctx, "site_id", raw))
		}
		filter.SiteID = &siteID
	}

	ruleList, err := h.rules.List(ctx, filter)
	if err != nil {
		return h.sendErr(c, err, "export_rules")
	}

	data, err := loader.Encode(ruleList, format)
	if err != nil {
		return h.sendErr(c, err, "export_encoding")
	}

	contentType := fiber.MIMEApplicationJSON
	if format == loader.FormatYAML {
		contentType = "application/x-yaml"
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="export.redirects.`+format+`"`)
	return c.Status(200).Send(data)
}

// ruleIDParam parses the :id route parameter
func ruleIDParam(c *fiber.Ctx) (uint64, *domain.AppError) {
	raw := strings.TrimSpace(c.Params("id"))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, domain.NewAppError(
			domain.ErrValidationFailed,
			"Rule ID must be a positive integer",
			422,
			map[string]string{"field": "id", "value": raw},
		).WithContext(c.UserContext(), "rule_id_parsing")
	}
	return id, nil
}
