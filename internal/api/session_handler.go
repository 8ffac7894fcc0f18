package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"alertscope/internal/domain"
	"alertscope/internal/explorer"
	"alertscope/internal/searchbar"
)

// DefaultWaitTimeout bounds how long ?wait=true requests block.
const DefaultWaitTimeout = 10 * time.Second

// SessionHandler handles HTTP requests for explorer sessions.
type SessionHandler struct {
	manager     *explorer.Manager
	waitTimeout time.Duration
	logger      *slog.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(manager *explorer.Manager, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		manager:     manager,
		waitTimeout: DefaultWaitTimeout,
		logger:      logger,
	}
}

// alertsResponse is the alerts query state with its error rendered.
type alertsResponse struct {
	Data              *domain.SearchAlertsResult `json:"data"`
	IsFetching        bool                       `json:"isFetching"`
	IsPlaceholderData bool                       `json:"isPlaceholderData"`
	Enabled           bool                       `json:"enabled"`
	Error             string                     `json:"error,omitempty"`
}

func (h *SessionHandler) session(c *fiber.Ctx) (*explorer.Session, error) {
	return h.manager.Get(c.Params("id"))
}

func (h *SessionHandler) waitContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), h.waitTimeout)
}

// Create handles POST /v1/sessions
func (h *SessionHandler) Create(c *fiber.Ctx) error {
	var opts explorer.Options
	if err := c.BodyParser(&opts); err != nil {
		return BadRequest(c, "invalid request body: "+err.Error())
	}

	s, err := h.manager.Create(c.UserContext(), opts)
	if err != nil {
		h.logger.Warn("failed to create session", "error", err)
		return FromError(c, err)
	}
	return Created(c, s.Info())
}

// List handles GET /v1/sessions
func (h *SessionHandler) List(c *fiber.Ctx) error {
	sessions := h.manager.List()
	infos := make([]explorer.Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	return Success(c, infos)
}

// Get handles GET /v1/sessions/:id
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return FromError(c, err)
	}
	return Success(c, s.Info())
}

// Delete handles DELETE /v1/sessions/:id
func (h *SessionHandler) Delete(c *fiber.Ctx) error {
	if err := h.manager.Delete(c.Params("id")); err != nil {
		return FromError(c, err)
	}
	return NoContent(c)
}

// UpdateSearchBar handles PATCH /v1/sessions/:id/search-bar
func (h *SessionHandler) UpdateSearchBar(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return FromError(c, err)
	}

	var patch searchbar.Patch
	if err := c.BodyParser(&patch); err != nil {
		return BadRequest(c, "invalid request body: "+err.Error())
	}

	state, err := s.UpdateSearchBar(patch)
	if err != nil {
		return FromError(c, err)
	}
	return Success(c, state)
}

// SetPage handles PUT /v1/sessions/:id/page
func (h *SessionHandler) SetPage(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return FromError(c, err)
	}

	var page explorer.Page
	if err := c.BodyParser(&page); err != nil {
		return BadRequest(c, "invalid request body: "+err.Error())
	}
	if err := s.SetPage(page); err != nil {
		return FromError(c, err)
	}
	return Success(c, s.Info())
}

// SetFeatureIDs handles PUT /v1/sessions/:id/feature-ids
func (h *SessionHandler) SetFeatureIDs(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return FromError(c, err)
	}

	var body struct {
		FeatureIDs []domain.FeatureID `json:"featureIds"`
	}
	if err := c.BodyParser(&body); err != nil {
		return BadRequest(c, "invalid request body: "+err.Error())
	}
	if err := s.SetFeatureIDs(body.FeatureIDs); err != nil {
		return FromError(c, err)
	}
	return Success(c, s.Info())
}

// Alerts handles GET /v1/sessions/:id/alerts
// With ?wait=true the response is sent once the current fetch settles.
func (h *SessionHandler) Alerts(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return FromError(c, err)
	}

	result := s.Alerts()
	if c.QueryBool("wait") {
		ctx, cancel := h.waitContext(c)
		defer cancel()
		if result, err = s.WaitAlerts(ctx); err != nil {
			return FromError(c, err)
		}
	}

	resp := alertsResponse{
		Data:              result.Data,
		IsFetching:        result.IsFetching,
		IsPlaceholderData: result.IsPlaceholderData,
		Enabled:           result.Enabled,
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	return Success(c, resp)
}

// Refetch handles POST /v1/sessions/:id/alerts/_refetch
func (h *SessionHandler) Refetch(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return FromError(c, err)
	}
	s.Refetch()
	return NoContent(c)
}

// DataView handles GET /v1/sessions/:id/data-view
// With ?wait=true the response is sent once the data view settles.
func (h *SessionHandler) DataView(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return FromError(c, err)
	}

	if !c.QueryBool("wait") {
		return Success(c, s.DataView())
	}

	ctx, cancel := h.waitContext(c)
	defer cancel()
	state, err := s.WaitDataView(ctx)
	if err != nil {
		return FromError(c, err)
	}
	return Success(c, state)
}
