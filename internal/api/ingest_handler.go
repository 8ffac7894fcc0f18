package api

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"alertscope/internal/filtergroup"
)

// FilterChangePublisher publishes control filter changes to the queue.
// filtergroup.QueueSink implements it.
type FilterChangePublisher interface {
	Publish(ctx context.Context, change filtergroup.FilterChange) error
}

// IngestHandler accepts control filter changes from outside the service,
// e.g. another tab of the same space.
type IngestHandler struct {
	publisher FilterChangePublisher
	logger    *slog.Logger
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(publisher FilterChangePublisher, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{
		publisher: publisher,
		logger:    logger,
	}
}

// IngestFilterChange handles POST /v1/filter-changes
// Validates the change and publishes it to the message queue.
// Returns 202 Accepted immediately - sessions apply it asynchronously.
func (h *IngestHandler) IngestFilterChange(c *fiber.Ctx) error {
	var change filtergroup.FilterChange
	if err := c.BodyParser(&change); err != nil {
		h.logger.Debug("failed to parse filter change body", "error", err)
		return BadRequest(c, "invalid request body")
	}

	if change.SpaceID == "" {
		return ValidationError(c, "space_id is required")
	}
	if _, _, ok := filtergroup.ValidateQuery(change.Filters, nil); !ok {
		return ValidationError(c, "filters cannot be turned into a query")
	}

	if err := h.publisher.Publish(c.UserContext(), change); err != nil {
		h.logger.Error("failed to publish filter change", "error", err, "space_id", change.SpaceID)
		return InternalError(c, "failed to publish filter change")
	}

	h.logger.Debug("filter change accepted", "space_id", change.SpaceID, "session_id", change.SessionID)

	// Return 202 Accepted - the change will be applied asynchronously
	return Accepted(c, map[string]string{
		"status":  "accepted",
		"space_id": change.SpaceID,
	})
}
