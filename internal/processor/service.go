// Package processor consumes filter change notifications from the message
// queue and applies them to the explorer sessions they belong to.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"alertscope/internal/explorer"
	"alertscope/internal/filtergroup"
	"alertscope/internal/metrics"
	"alertscope/internal/queue"
)

// FilterApplier applies a filter change to the sessions it targets and
// returns how many were updated. explorer.Manager implements it.
type FilterApplier interface {
	ApplyControlFilters(ctx context.Context, change filtergroup.FilterChange) (int, error)
}

// Service consumes filter changes from the queue. Each change replaces the
// control filters of the targeted search bars, which refetches their alerts.
type Service struct {
	consumer queue.Consumer
	applier  FilterApplier
	logger   *slog.Logger
}

// NewService creates a new processor service.
func NewService(consumer queue.Consumer, applier FilterApplier, logger *slog.Logger) *Service {
	return &Service{
		consumer: consumer,
		applier:  applier,
		logger:   logger,
	}
}

// Start consumes filter changes until ctx is canceled.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("starting processor service")
	return s.consumer.Start(ctx, s.handleMessage)
}

// handleMessage applies one filter change. Malformed messages and changes
// for sessions that no longer exist are dropped.
func (s *Service) handleMessage(ctx context.Context, msg *queue.Message) error {
	var change filtergroup.FilterChange
	if err := json.Unmarshal(msg.Value, &change); err != nil {
		s.logger.Error("failed to deserialize filter change", "error", err)
		metrics.MessagesProcessedTotal.WithLabelValues("malformed").Inc()
		return nil
	}
	if change.SpaceID == "" {
		change.SpaceID = msg.Headers[filtergroup.HeaderSpaceID]
	}
	if change.SessionID == "" {
		change.SessionID = msg.Headers[filtergroup.HeaderSessionID]
	}

	logger := s.logger.With(
		"change_id", change.ID,
		"space_id", change.SpaceID,
		"session_id", change.SessionID,
	)

	applied, err := s.applier.ApplyControlFilters(ctx, change)
	switch {
	case errors.Is(err, explorer.ErrSessionNotFound):
		logger.Warn("filter change for unknown session dropped")
		metrics.MessagesProcessedTotal.WithLabelValues("skipped").Inc()
		return nil
	case err != nil:
		logger.Error("failed to apply filter change", "error", err)
		metrics.MessagesProcessedTotal.WithLabelValues("failed").Inc()
		return err
	}

	if applied == 0 {
		metrics.MessagesProcessedTotal.WithLabelValues("skipped").Inc()
		logger.Debug("no session for filter change")
		return nil
	}
	metrics.MessagesProcessedTotal.WithLabelValues("applied").Inc()
	logger.Debug("applied filter change", "sessions", applied, "filters", len(change.Filters))
	return nil
}

// Stop closes the consumer.
func (s *Service) Stop() error {
	s.logger.Info("stopping processor service")
	return s.consumer.Close()
}
