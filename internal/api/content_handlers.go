package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/freewebtopdf/redirector/internal/domain"
	"github.com/freewebtopdf/redirector/internal/lifecycle"
)

// ContentSaveRequest identifies a content item being saved
// @Description Content save notification
type ContentSaveRequest struct {
	ContentID uint64 `json:"content_id" example:"17"`
	SiteID    uint64 `json:"site_id" example:"0"`
	NewURI    string `json:"new_uri,omitempty" example:"blog/new-slug"`
}

func (h *Handlers) lifecycleEnabled() bool {
	return h.lifecycle != nil && h.lifecycle.Enabled()
}

func (h *Handlers) parseContentSave(c *fiber.Ctx, op string) (ContentSaveRequest, *domain.AppError) {
	var req ContentSaveRequest
	if err := c.BodyParser(&req); err != nil {
		return req, invalidPayload(c.UserContext(), err, op)
	}
	if req.ContentID == 0 {
		return req, domain.NewAppError(
			domain.ErrValidationFailed,
			"content_id is required",
			422,
			map[string]string{"field": "content_id", "reason": "required"},
		).WithContext(c.UserContext(), op)
	}
	req.NewURI = strings.TrimSpace(req.NewURI)
	return req, nil
}

// BeforeSaveHandler handles POST /v1/content/before-save requests
// @Summary      Content is about to be saved
// @Description  Stashes the URI currently stored for the content item
// @Tags         Content
// @Accept       json
// @Produce      json
// @Param        request body ContentSaveRequest true "Content item"
// @Success      200 {object} SuccessResponse{data=object{enabled=bool}} "Stashed"
// @Failure      422 {object} ErrorResponse "Validation failed"
// @Router       /v1/content/before-save [post]
func (h *Handlers) BeforeSaveHandler(c *fiber.Ctx) error {
	req, appErr := h.parseContentSave(c, "before_save_parsing")
	if appErr != nil {
		return h.sendError(c, appErr)
	}

	if !h.lifecycleEnabled() {
		return c.Status(200).JSON(SuccessResponse{Status: "success", Data: map[string]any{"enabled": false}})
	}

	if err := h.lifecycle.BeforeContentSave(c.UserContext(), req.ContentID, req.SiteID); err != nil {
		return h.sendErr(c, err, "before_save")
	}

	return c.Status(200).JSON(SuccessResponse{Status: "success", Data: map[string]any{"enabled": true}})
}

// AfterSaveHandler handles POST /v1/content/after-save requests
// @Summary      Content was saved
// @Description  Compares the stashed URI with the new one and creates, collapses or undoes redirects
// @Tags         Content
// @Accept       json
// @Produce      json
// @Param        request body ContentSaveRequest true "Content item with its new URI"
// @Success      200 {object} SuccessResponse{data=lifecycle.Result} "What changed"
// @Failure      422 {object} ErrorResponse "Validation failed"
// @Router       /v1/content/after-save [post]
func (h *Handlers) AfterSaveHandler(c *fiber.Ctx) error {
	req, appErr := h.parseContentSave(c, "after_save_parsing")
	if appErr != nil {
		return h.sendError(c, appErr)
	}

	if h.lifecycle == nil {
		return c.Status(200).JSON(SuccessResponse{Status: "success", Data: lifecycle.Result{Action: lifecycle.ActionNone}})
	}

	result, err := h.lifecycle.AfterContentSave(c.UserContext(), req.ContentID, req.SiteID, req.NewURI)
	if err != nil {
		return h.sendErr(c, err, "after_save")
	}

	return c.Status(200).JSON(SuccessResponse{Status: "success", Data: result})
}
