package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"alertscope/internal/alertsquery"
	"alertscope/internal/dataview"
	"alertscope/internal/domain"
)

// DataViewLookup returns a constructed data view by id.
type DataViewLookup interface {
	Get(id string) (*domain.DataView, error)
}

// SearchHandler serves one-shot alert searches and data view resolutions.
type SearchHandler struct {
	fetcher  alertsquery.Fetcher
	resolver *dataview.Resolver
	views    DataViewLookup
	logger   *slog.Logger
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(fetcher alertsquery.Fetcher, resolver *dataview.Resolver, views DataViewLookup, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		fetcher:  fetcher,
		resolver: resolver,
		views:    views,
		logger:   logger,
	}
}

// Search handles POST /v1/alerts/_search
// Searches run through the fetch coordinator, so identical concurrent
// searches share one backend call.
func (h *SearchHandler) Search(c *fiber.Ctx) error {
	var params domain.SearchAlertsParams
	if err := c.BodyParser(&params); err != nil {
		return BadRequest(c, "invalid request body: "+err.Error())
	}

	result, err := h.fetcher.Fetch(c.UserContext(), params)
	if err != nil {
		h.logger.Warn("alert search failed", "error", err)
		return FromError(c, err)
	}
	return Success(c, result)
}

// DataView handles GET /v1/data-view?featureIds=apm,logs
func (h *SearchHandler) DataView(c *fiber.Ctx) error {
	ids, err := domain.ParseFeatureIDs(c.Query("featureIds"))
	if err != nil {
		return ValidationError(c, err.Error())
	}
	return Success(c, h.resolver.Resolve(c.UserContext(), ids))
}

// GetDataView handles GET /v1/data-views/:id
func (h *SearchHandler) GetDataView(c *fiber.Ctx) error {
	view, err := h.views.Get(c.Params("id"))
	if err != nil {
		return FromError(c, err)
	}
	return Success(c, view)
}
