package api

import (
	"github.com/gofiber/fiber/v2"

	"alertscope/internal/notification"
)

// NotificationHandler serves the recent toasts.
type NotificationHandler struct {
	toasts *notification.Toasts
}

// NewNotificationHandler creates a new notification handler.
func NewNotificationHandler(toasts *notification.Toasts) *NotificationHandler {
	return &NotificationHandler{toasts: toasts}
}

// List handles GET /v1/notifications?color=danger
// Returns the recent toasts, newest first.
func (h *NotificationHandler) List(c *fiber.Ctx) error {
	color := notification.Color(c.Query("color"))

	recent := h.toasts.Recent()
	if color == "" {
		return Success(c, recent)
	}

	filtered := make([]notification.Toast, 0, len(recent))
	for _, t := range recent {
		if t.Color == color {
			filtered = append(filtered, t)
		}
	}
	return Success(c, filtered)
}
