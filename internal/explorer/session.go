package explorer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"alertscope/internal/alertsquery"
	"alertscope/internal/dataview"
	"alertscope/internal/domain"
	"alertscope/internal/filtergroup"
	"alertscope/internal/searchbar"
)

// Page is the window of alerts a session shows.
type Page struct {
	Index int                 `json:"pageIndex"`
	Size  int                 `json:"pageSize"`
	Sort  []domain.SortClause `json:"sort,omitempty"`
}

// Info is a snapshot of a session.
type Info struct {
	ID         string               `json:"id"`
	SpaceID    string               `json:"spaceId"`
	FeatureIDs []domain.FeatureID   `json:"featureIds"`
	CreatedAt  time.Time            `json:"createdAt"`
	Page       Page                 `json:"page"`
	SearchBar  searchbar.State      `json:"searchBar"`
	DataView   domain.DataViewState `json:"dataView"`
	Alerts     alertsquery.Result   `json:"alerts"`
	QueryError string               `json:"queryError,omitempty"`
}

// Session is one alerts explorer: a search bar, a filter group, the data view
// of its feature set and the alerts query they drive.
type Session struct {
	ID        string
	SpaceID   string
	CreatedAt time.Time

	logger     *slog.Logger
	container  *searchbar.Container
	controller *filtergroup.Controller
	watcher    *dataview.Watcher
	query      *alertsquery.Query

	mu         sync.Mutex
	featureIDs []domain.FeatureID
	page       Page
	queryErr   error
	external   *filtergroup.ExternalInput
	closed     bool

	cancel context.CancelFunc
	group  *errgroup.Group
	gctx   context.Context
}

// start runs the session goroutines until close.
func (s *Session) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.group, s.gctx = errgroup.WithContext(ctx)

	s.group.Go(func() error {
		return s.controller.Run(s.gctx)
	})
	s.group.Go(func() error {
		s.container.Watch(s.gctx, s.onSearchBar)
		return nil
	})

	s.watcher.SetFeatureIDs(s.featureIDs)
	s.group.Go(s.syncDataView)
}

// onSearchBar runs for every search bar snapshot.
func (s *Session) onSearchBar(state searchbar.State) {
	s.refresh(state)

	query := domain.KueryQuery(state.Kuery)
	tr := state.TimeRange()
	ext := filtergroup.ExternalInput{
		Filters:   domain.CloneFilters(state.Filters),
		Query:     &query,
		TimeRange: &tr,
	}

	s.mu.Lock()
	unchanged := s.external != nil && filtergroup.Equal(*s.external, ext)
	s.external = &ext
	s.mu.Unlock()
	if unchanged {
		return
	}

	if err := s.controller.UpdateExternalInput(s.gctx, ext); err != nil && s.gctx.Err() == nil {
		s.logger.Warn("failed to pass search context to filter group", "error", err)
	}
}

// refresh points the alerts query at the current search bar state and page.
// A state whose query does not build leaves the query untouched.
func (s *Session) refresh(state searchbar.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	params, err := searchbar.BuildSearchParams(state, searchbar.Page{
		FeatureIDs: s.featureIDs,
		Sort:       s.page.Sort,
		PageIndex:  s.page.Index,
		PageSize:   s.page.Size,
	})
	s.queryErr = err
	if err != nil {
		s.logger.Warn("search bar state does not build a query, skipping fetch", "error", err)
		return
	}
	if err := s.query.SetParams(params); err != nil {
		s.queryErr = err
		s.logger.Warn("invalid search params", "error", err)
	}
}

// syncDataView points the filter group at the data view once it resolves.
// A feature set without a data view clears it, so the controls stop loading.
func (s *Session) syncDataView() error {
	state, err := s.watcher.Wait(s.gctx)
	if err != nil {
		return nil
	}
	var id string
	if state.DataView != nil {
		id = state.DataView.ID
	} else {
		s.logger.Debug("no data view for feature set", "feature_ids", s.FeatureIDs())
	}
	if err := s.controller.SetDataViewID(s.gctx, id); err != nil && s.gctx.Err() == nil {
		s.logger.Warn("failed to set filter group data view", "error", err)
	}
	return nil
}

// FeatureIDs returns the feature set of the session.
func (s *Session) FeatureIDs() []domain.FeatureID {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.featureIDs)
}

// SetFeatureIDs switches the session to another feature set. The data view
// is resolved again and the alerts refetched.
func (s *Session) SetFeatureIDs(featureIDs []domain.FeatureID) error {
	if err := domain.ValidateFeatureIDs(featureIDs); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.featureIDs = slices.Clone(featureIDs)
	s.watcher.SetFeatureIDs(s.featureIDs)
	s.group.Go(s.syncDataView)
	s.mu.Unlock()

	s.refresh(s.container.State())
	return nil
}

// SearchBar returns the search bar state.
func (s *Session) SearchBar() searchbar.State {
	return s.container.State()
}

// UpdateSearchBar applies patch to the search bar.
func (s *Session) UpdateSearchBar(patch searchbar.Patch) (searchbar.State, error) {
	if err := patch.Validate(); err != nil {
		return searchbar.State{}, err
	}
	return s.container.Update(patch.Apply), nil
}

// SetControlFilters replaces the control filters of the search bar.
func (s *Session) SetControlFilters(filters []domain.Filter) searchbar.State {
	return s.container.Update(func(state searchbar.State) searchbar.State {
		return state.SetControlFilters(filters)
	})
}

// SetPage changes the page of alerts shown. The previous page stays visible
// until the new one resolves.
func (s *Session) SetPage(page Page) error {
	if page.Index < 0 {
		return domain.ErrNegativePageIndex
	}
	if page.Size < 0 {
		return domain.ErrNegativePageSize
	}

	s.mu.Lock()
	if page.Size == 0 {
		page.Size = s.page.Size
	}
	if page.Sort == nil {
		page.Sort = s.page.Sort
	}
	s.page = page
	s.mu.Unlock()

	s.refresh(s.container.State())
	return nil
}

// Refetch reruns the alerts search for the current parameters.
func (s *Session) Refetch() {
	s.query.Refetch()
}

// Alerts returns the alerts query state.
func (s *Session) Alerts() alertsquery.Result {
	return s.query.Result()
}

// WaitAlerts blocks until the alerts query settles.
func (s *Session) WaitAlerts(ctx context.Context) (alertsquery.Result, error) {
	return s.query.Wait(ctx)
}

// DataView returns the data view state of the feature set.
func (s *Session) DataView() domain.DataViewState {
	return s.watcher.State()
}

// WaitDataView blocks until the data view settles.
func (s *Session) WaitDataView(ctx context.Context) (domain.DataViewState, error) {
	return s.watcher.Wait(ctx)
}

// FilterGroup returns the filter group controller of the session.
func (s *Session) FilterGroup() *filtergroup.Controller {
	return s.controller
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	page := s.page
	page.Sort = slices.Clone(page.Sort)
	featureIDs := slices.Clone(s.featureIDs)
	queryErr := s.queryErr
	s.mu.Unlock()

	info := Info{
		ID:         s.ID,
		SpaceID:    s.SpaceID,
		FeatureIDs: featureIDs,
		CreatedAt:  s.CreatedAt,
		Page:       page,
		SearchBar:  s.container.State(),
		DataView:   s.watcher.State(),
		Alerts:     s.query.Result(),
	}
	if queryErr != nil {
		info.QueryError = queryErr.Error()
	}
	return info
}

// close stops the session goroutines and any fetch in flight.
func (s *Session) close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.watcher.Close()
	s.query.Close()
	if err := s.group.Wait(); err != nil {
		return fmt.Errorf("failed to stop session %s: %w", s.ID, err)
	}
	return nil
}
