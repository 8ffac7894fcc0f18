// Package dataview resolves the data view of a set of alert features: which
// alerts indices and fields can be queried together.
package dataview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"alertscope/internal/domain"
)

// Errors returned by data view services.
var (
	ErrDataViewNotFound  = errors.New("data view not found")
	ErrEmptyIndexPattern = errors.New("data view index pattern is empty")
)

// Service constructs data views.
type Service interface {
	// Create builds a data view from spec. When spec.Fields is nil the
	// service loads the fields itself.
	Create(ctx context.Context, spec domain.DataViewSpec) (*domain.DataView, error)
}

// FieldLoader loads the field specs of indices or index patterns.
type FieldLoader interface {
	FieldsForIndices(ctx context.Context, indices []string) ([]domain.FieldSpec, error)
}

// MemoryService is an in-memory Service. Views are keyed by index pattern and
// time field, so constructing the same view twice returns the same id and the
// service holds one view per distinct pattern.
// This implementation is safe for concurrent use.
type MemoryService struct {
	mu     sync.RWMutex
	views  map[string]*domain.DataView
	loader FieldLoader
	logger *slog.Logger
	now    func() time.Time
}

// NewMemoryService creates a data view service. loader may be nil, in which
// case views created without fields have none.
func NewMemoryService(loader FieldLoader, logger *slog.Logger) *MemoryService {
	return &MemoryService{
		views:  make(map[string]*domain.DataView),
		loader: loader,
		logger: logger,
		now:    time.Now,
	}
}

// viewID derives a stable data view id from the parameters that identify it.
func viewID(spec domain.DataViewSpec) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(spec.Title+"\x00"+spec.TimeFieldName)).String()
}

// Create implements Service. A spec without fields whose view already exists
// returns that view without loading fields again. A spec with fields
// replaces the stored view under the same id.
func (s *MemoryService) Create(ctx context.Context, spec domain.DataViewSpec) (*domain.DataView, error) {
	if spec.Title == "" && !spec.AllowNoIndex {
		return nil, ErrEmptyIndexPattern
	}

	id := viewID(spec)
	fields := spec.Fields
	if fields == nil {
		if view, err := s.Get(id); err == nil {
			return view, nil
		}

		fields = []domain.FieldSpec{}
		if s.loader != nil && spec.Title != "" {
			loaded, err := s.loader.FieldsForIndices(ctx, strings.Split(spec.Title, ","))
			if err != nil {
				return nil, fmt.Errorf("failed to load data view fields: %w", err)
			}
			fields = loaded
		}
	}

	view := &domain.DataView{
		ID:            id,
		Title:         spec.Title,
		TimeFieldName: spec.TimeFieldName,
		Fields:        append([]domain.FieldSpec{}, fields...),
		CreatedAt:     s.now().UTC(),
	}

	s.mu.Lock()
	if existing, ok := s.views[id]; ok {
		view.CreatedAt = existing.CreatedAt
	}
	s.views[id] = view
	s.mu.Unlock()

	s.logger.Debug("data view created", "id", view.ID, "title", view.Title, "fields", len(view.Fields))
	return view, nil
}

// Get returns a created data view by id.
func (s *MemoryService) Get(id string) (*domain.DataView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view, ok := s.views[id]
	if !ok {
		return nil, ErrDataViewNotFound
	}
	return view, nil
}

// ClearInstanceCache drops every created view.
func (s *MemoryService) ClearInstanceCache() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.views = make(map[string]*domain.DataView)
}

// Len returns the number of created views.
func (s *MemoryService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.views)
}
