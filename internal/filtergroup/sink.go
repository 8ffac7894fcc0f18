package filtergroup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"alertscope/internal/domain"
	"alertscope/internal/metrics"
	"alertscope/internal/queue"
)

// FilterSink receives the filters of a control group after they changed.
type FilterSink interface {
	OnFilterChange(ctx context.Context, spaceID string, filters []domain.Filter) error
}

// FuncSink adapts a function to FilterSink.
type FuncSink func(ctx context.Context, spaceID string, filters []domain.Filter) error

// OnFilterChange implements FilterSink.
func (f FuncSink) OnFilterChange(ctx context.Context, spaceID string, filters []domain.Filter) error {
	return f(ctx, spaceID, filters)
}

// FilterChange is the message published for every control filter change.
type FilterChange struct {
	ID      string `json:"id"`
	SpaceID string `json:"space_id"`
	// SessionID scopes the change to one explorer session when set.
	SessionID string          `json:"session_id,omitempty"`
	Filters   []domain.Filter `json:"filters"`
	ChangedAt time.Time       `json:"changed_at"`
}

// Message headers set on filter change messages.
const (
	HeaderSpaceID   = "space_id"
	HeaderSessionID = "session_id"
	HeaderChangeID  = "change_id"
)

// QueueSink publishes filter changes to a message queue, keyed by space so
// that the changes of one space are consumed in order.
type QueueSink struct {
	producer queue.Producer
	logger   *slog.Logger
}

// NewQueueSink creates a sink publishing to producer.
func NewQueueSink(producer queue.Producer, logger *slog.Logger) *QueueSink {
	return &QueueSink{producer: producer, logger: logger}
}

// OnFilterChange implements FilterSink.
func (s *QueueSink) OnFilterChange(ctx context.Context, spaceID string, filters []domain.Filter) error {
	return s.Publish(ctx, FilterChange{SpaceID: spaceID, Filters: filters})
}

// SessionSink returns a sink publishing changes scoped to one session.
func (s *QueueSink) SessionSink(sessionID string) FilterSink {
	return FuncSink(func(ctx context.Context, spaceID string, filters []domain.Filter) error {
		return s.Publish(ctx, FilterChange{SpaceID: spaceID, SessionID: sessionID, Filters: filters})
	})
}

// Publish publishes change, filling in its id and timestamp when unset.
func (s *QueueSink) Publish(ctx context.Context, change FilterChange) error {
	if change.ID == "" {
		change.ID = uuid.New().String()
	}
	if change.ChangedAt.IsZero() {
		change.ChangedAt = time.Now().UTC()
	}
	if change.Filters == nil {
		change.Filters = []domain.Filter{}
	}

	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to serialize filter change: %w", err)
	}

	msg := &queue.Message{
		Key:   []byte(change.SpaceID),
		Value: payload,
		Headers: map[string]string{
			HeaderSpaceID:  change.SpaceID,
			HeaderChangeID: change.ID,
		},
	}
	if change.SessionID != "" {
		msg.Headers[HeaderSessionID] = change.SessionID
	}

	start := time.Now()
	if err := s.producer.Publish(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish filter change: %w", err)
	}
	metrics.QueuePublishLatency.Observe(time.Since(start).Seconds())

	s.logger.Debug("filter change published",
		"space_id", change.SpaceID,
		"session_id", change.SessionID,
		"change_id", change.ID,
		"filters", len(change.Filters),
	)
	return nil
}
