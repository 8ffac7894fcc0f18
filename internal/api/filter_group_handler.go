package api

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"alertscope/internal/domain"
	"alertscope/internal/explorer"
	"alertscope/internal/filtergroup"
)

// FilterGroupHandler handles HTTP requests for the filter group of a session.
type FilterGroupHandler struct {
	manager *explorer.Manager
	logger  *slog.Logger
}

// NewFilterGroupHandler creates a new filter group handler.
func NewFilterGroupHandler(manager *explorer.Manager, logger *slog.Logger) *FilterGroupHandler {
	return &FilterGroupHandler{
		manager: manager,
		logger:  logger,
	}
}

// commands maps command path segments to controller operations.
var commands = map[string]func(*filtergroup.Controller, context.Context) error{
	"edit":          (*filtergroup.Controller).SwitchToEditMode,
	"view":          (*filtergroup.Controller).SwitchToViewMode,
	"save":          (*filtergroup.Controller).SaveChanges,
	"discard":       (*filtergroup.Controller).DiscardChanges,
	"reset":         (*filtergroup.Controller).ResetControls,
	"open-popover":  (*filtergroup.Controller).OpenPendingChangesPopover,
	"close-popover": (*filtergroup.Controller).ClosePendingChangesPopover,
}

type selectionRequest struct {
	FieldName string           `json:"fieldName"`
	Selection domain.Selection `json:"selection"`
}

type bannerRequest struct {
	Show bool `json:"show"`
}

func (h *FilterGroupHandler) controller(c *fiber.Ctx) (*filtergroup.Controller, error) {
	s, err := h.manager.Get(c.Params("id"))
	if err != nil {
		return nil, err
	}
	return s.FilterGroup(), nil
}

// respond sends the group state after a successful operation.
func (h *FilterGroupHandler) respond(c *fiber.Ctx, ctrl *filtergroup.Controller, err error) error {
	if err != nil {
		return FromError(c, err)
	}
	state, err := ctrl.Snapshot(c.UserContext())
	if err != nil {
		return FromError(c, err)
	}
	return Success(c, state)
}

// Get handles GET /v1/sessions/:id/filter-group
func (h *FilterGroupHandler) Get(c *fiber.Ctx) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return FromError(c, err)
	}
	return h.respond(c, ctrl, nil)
}

// Command handles POST /v1/sessions/:id/filter-group/:command
func (h *FilterGroupHandler) Command(c *fiber.Ctx) error {
	command, ok := commands[c.Params("command")]
	if !ok {
		return NotFound(c, "unknown filter group command: "+c.Params("command"))
	}
	ctrl, err := h.controller(c)
	if err != nil {
		return FromError(c, err)
	}
	return h.respond(c, ctrl, command(ctrl, c.UserContext()))
}

// AddControl handles POST /v1/sessions/:id/filter-group/controls
func (h *FilterGroupHandler) AddControl(c *fiber.Ctx) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return FromError(c, err)
	}

	var control domain.FilterItem
	if err := c.BodyParser(&control); err != nil {
		return BadRequest(c, "invalid request body: "+err.Error())
	}
	return h.respond(c, ctrl, ctrl.AddControl(c.UserContext(), control))
}

// RemoveControl handles DELETE /v1/sessions/:id/filter-group/controls?field=host.name
func (h *FilterGroupHandler) RemoveControl(c *fiber.Ctx) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return FromError(c, err)
	}

	field := c.Query("field")
	if field == "" {
		return BadRequest(c, "field is required")
	}
	return h.respond(c, ctrl, ctrl.RemoveControl(c.UserContext(), field))
}

// UpdateSelection handles PUT /v1/sessions/:id/filter-group/selection
func (h *FilterGroupHandler) UpdateSelection(c *fiber.Ctx) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return FromError(c, err)
	}

	var req selectionRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body: "+err.Error())
	}
	if req.FieldName == "" {
		return ValidationError(c, "fieldName is required")
	}
	return h.respond(c, ctrl, ctrl.UpdateSelection(c.UserContext(), req.FieldName, req.Selection))
}

// SetBanner handles PUT /v1/sessions/:id/filter-group/banner
func (h *FilterGroupHandler) SetBanner(c *fiber.Ctx) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return FromError(c, err)
	}

	var req bannerRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body: "+err.Error())
	}
	return h.respond(c, ctrl, ctrl.SetShowFiltersChangedBanner(c.UserContext(), req.Show))
}
