// Package notification provides user-visible toast notifications.
// Toasts are logged and kept in a bounded list of recent entries that the
// API serves to the UI.
package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"alertscope/internal/metrics"
)

// Color is the severity of a toast.
type Color string

const (
	ColorDanger  Color = "danger"
	ColorWarning Color = "warning"
	ColorSuccess Color = "success"
)

// DefaultRecentLimit is how many toasts Toasts keeps when no limit is given.
const DefaultRecentLimit = 50

// Toast is one notification shown to the user.
type Toast struct {
	ID        string    `json:"id"`
	Color     Color     `json:"color"`
	Title     string    `json:"title"`
	Text      string    `json:"text,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier raises toasts.
type Notifier interface {
	// AddDanger raises an error toast.
	AddDanger(title, text string) Toast

	// AddWarning raises a warning toast.
	AddWarning(title, text string) Toast

	// AddSuccess raises a success toast.
	AddSuccess(title, text string) Toast
}

// Toasts is the default Notifier. It is safe for concurrent use.
type Toasts struct {
	mu     sync.RWMutex
	recent []Toast
	limit  int
	logger *slog.Logger
	now    func() time.Time
}

// NewToasts creates a notifier keeping up to limit recent toasts.
func NewToasts(limit int, logger *slog.Logger) *Toasts {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return &Toasts{
		limit:  limit,
		logger: logger,
		now:    time.Now,
	}
}

// AddDanger implements Notifier.
func (t *Toasts) AddDanger(title, text string) Toast {
	return t.add(ColorDanger, title, text)
}

// AddWarning implements Notifier.
func (t *Toasts) AddWarning(title, text string) Toast {
	return t.add(ColorWarning, title, text)
}

// AddSuccess implements Notifier.
func (t *Toasts) AddSuccess(title, text string) Toast {
	return t.add(ColorSuccess, title, text)
}

// Recent returns the kept toasts, newest first.
func (t *Toasts) Recent() []Toast {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Toast, len(t.recent))
	for i, toast := range t.recent {
		out[len(t.recent)-1-i] = toast
	}
	return out
}

// Count returns the number of kept toasts with the given color.
func (t *Toasts) Count(color Color) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, toast := range t.recent {
		if toast.Color == color {
			n++
		}
	}
	return n
}

func (t *Toasts) add(color Color, title, text string) Toast {
	toast := Toast{
		ID:        uuid.New().String(),
		Color:     color,
		Title:     title,
		Text:      text,
		CreatedAt: t.now().UTC(),
	}

	t.mu.Lock()
	t.recent = append(t.recent, toast)
	if len(t.recent) > t.limit {
		t.recent = append([]Toast(nil), t.recent[len(t.recent)-t.limit:]...)
	}
	t.mu.Unlock()

	metrics.ToastsTotal.WithLabelValues(string(color)).Inc()

	level := slog.LevelInfo
	switch color {
	case ColorDanger:
		level = slog.LevelError
	case ColorWarning:
		level = slog.LevelWarn
	}
	t.logger.Log(context.Background(), level, "toast raised", "id", toast.ID, "color", color, "title", title, "text", text)

	return toast
}
