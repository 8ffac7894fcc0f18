// Package explorer runs alerts explorer sessions. A session ties a search bar,
// a filter group and the data view of a feature set to one alerts query, the
// way an alerts page does.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"alertscope/internal/alertsquery"
	"alertscope/internal/dataview"
	"alertscope/internal/domain"
	"alertscope/internal/filtergroup"
	"alertscope/internal/searchbar"
	"alertscope/internal/store"
)

var (
	ErrSessionNotFound = errors.New("explorer session not found")
	ErrSessionClosed   = errors.New("explorer session is closed")
)

// SinkFactory returns the filter sink of a session. A nil factory applies
// control filters to the session's search bar directly.
type SinkFactory func(sessionID string) filtergroup.FilterSink

// Dependencies are shared by every session of a manager.
type Dependencies struct {
	Resolver *dataview.Resolver
	Fetcher  alertsquery.Fetcher
	// Storage persists control groups. Nil keeps them in memory.
	Storage store.KeyValueStore
	Sinks   SinkFactory

	DefaultControls []domain.FilterItem
	DebounceDelay   time.Duration
	MaxControls     int
	DefaultPageSize int
}

// Options configure a new session.
type Options struct {
	SpaceID    string             `json:"spaceId"`
	FeatureIDs []domain.FeatureID `json:"featureIds"`
	// ControlsFromURL are the controls requested by the caller's URL.
	ControlsFromURL []domain.FilterItem `json:"controls,omitempty"`
	SearchBar       *searchbar.Patch    `json:"searchBar,omitempty"`
	Page            Page                `json:"page"`
}

// Manager owns the explorer sessions.
type Manager struct {
	deps   Dependencies
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(deps Dependencies, logger *slog.Logger) *Manager {
	if deps.DefaultPageSize <= 0 {
		deps.DefaultPageSize = domain.DefaultPageSize
	}
	return &Manager{
		deps:     deps,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Create starts a session and waits until its filter group is initialized.
func (m *Manager) Create(ctx context.Context, opts Options) (*Session, error) {
	if opts.SpaceID == "" {
		opts.SpaceID = "default"
	}
	if err := domain.ValidateFeatureIDs(opts.FeatureIDs); err != nil {
		return nil, err
	}
	if opts.Page.Index < 0 {
		return nil, domain.ErrNegativePageIndex
	}
	if opts.Page.Size < 0 {
		return nil, domain.ErrNegativePageSize
	}
	if opts.Page.Size == 0 {
		opts.Page.Size = m.deps.DefaultPageSize
	}

	initial := searchbar.DefaultState()
	if opts.SearchBar != nil {
		if err := opts.SearchBar.Validate(); err != nil {
			return nil, err
		}
		initial = opts.SearchBar.Apply(initial)
	}

	id := uuid.New().String()
	logger := m.logger.With("session_id", id, "space_id", opts.SpaceID)
	s := &Session{
		ID:         id,
		SpaceID:    opts.SpaceID,
		CreatedAt:  time.Now().UTC(),
		logger:     logger,
		container:  searchbar.NewContainer(initial, logger),
		watcher:    dataview.NewWatcher(m.deps.Resolver),
		query:      alertsquery.NewQuery(m.deps.Fetcher, logger),
		featureIDs: append([]domain.FeatureID(nil), opts.FeatureIDs...),
		page:       opts.Page,
	}

	var sink filtergroup.FilterSink
	if m.deps.Sinks != nil {
		sink = m.deps.Sinks(id)
	} else {
		sink = filtergroup.FuncSink(func(ctx context.Context, spaceID string, filters []domain.Filter) error {
			s.SetControlFilters(filters)
			return nil
		})
	}
	s.controller = filtergroup.NewController(filtergroup.Config{
		SpaceID:         opts.SpaceID,
		DefaultControls: m.deps.DefaultControls,
		ControlsFromURL: opts.ControlsFromURL,
		DebounceDelay:   m.deps.DebounceDelay,
		MaxControls:     m.deps.MaxControls,
	}, m.deps.Storage, sink, logger)

	s.start()

	select {
	case <-s.controller.Ready():
	case <-ctx.Done():
		_ = s.close()
		return nil, ctx.Err()
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	logger.Info("explorer session created", "feature_ids", opts.FeatureIDs)
	return s, nil
}

// Get returns a session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// List returns the sessions, oldest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
	return sessions
}

// Delete stops and removes a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	m.logger.Info("explorer session deleted", "session_id", id)
	return s.close()
}

// ApplyControlFilters applies a filter change to the session it names, or
// to every session of its space when it names none. It returns the number of
// sessions updated.
func (m *Manager) ApplyControlFilters(ctx context.Context, change filtergroup.FilterChange) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if change.SessionID != "" {
		s, err := m.Get(change.SessionID)
		if err != nil {
			return 0, err
		}
		if s.SpaceID != change.SpaceID {
			return 0, fmt.Errorf("%w: %s in space %s", ErrSessionNotFound, change.SessionID, change.SpaceID)
		}
		s.SetControlFilters(change.Filters)
		return 1, nil
	}

	applied := 0
	for _, s := range m.List() {
		if s.SpaceID == change.SpaceID {
			s.SetControlFilters(change.Filters)
			applied++
		}
	}
	return applied, nil
}

// Close stops every session.
func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
