// Package searchbar holds the state of the alerts search bar: time range,
// free-text query, status and filters. State values are immutable snapshots;
// every transition returns a new snapshot.
package searchbar

import (
	"alertscope/internal/domain"
)

// Defaults of a new search bar.
const (
	DefaultRangeFrom = "now-24h"
	DefaultRangeTo   = "now"
)

// State is a snapshot of the search bar.
type State struct {
	RangeFrom      string             `json:"rangeFrom"`
	RangeTo        string             `json:"rangeTo"`
	Kuery          string             `json:"kuery"`
	Status         domain.AlertStatus `json:"status"`
	Filters        []domain.Filter    `json:"filters"`
	ControlFilters []domain.Filter    `json:"controlFilters"`
	SavedQueryID   string             `json:"savedQueryId,omitempty"`
}

// DefaultState returns the state of a new search bar.
func DefaultState() State {
	return State{
		RangeFrom:      DefaultRangeFrom,
		RangeTo:        DefaultRangeTo,
		Kuery:          "",
		Status:         domain.AlertStatusAll,
		Filters:        []domain.Filter{},
		ControlFilters: []domain.Filter{},
	}
}

// Clone returns a copy sharing no slices with s.
func (s State) Clone() State {
	s.Filters = domain.CloneFilters(s.Filters)
	s.ControlFilters = domain.CloneFilters(s.ControlFilters)
	return s
}

// TimeRange returns the time range of the state.
func (s State) TimeRange() domain.TimeRange {
	return domain.TimeRange{From: s.RangeFrom, To: s.RangeTo}
}

func (s State) SetRangeFrom(from string) State {
	out := s.Clone()
	out.RangeFrom = from
	return out
}

func (s State) SetRangeTo(to string) State {
	out := s.Clone()
	out.RangeTo = to
	return out
}

func (s State) SetKuery(kuery string) State {
	out := s.Clone()
	out.Kuery = kuery
	return out
}

func (s State) SetStatus(status domain.AlertStatus) State {
	out := s.Clone()
	out.Status = status
	return out
}

func (s State) SetFilters(filters []domain.Filter) State {
	out := s.Clone()
	out.Filters = domain.CloneFilters(filters)
	return out
}

func (s State) SetControlFilters(filters []domain.Filter) State {
	out := s.Clone()
	out.ControlFilters = domain.CloneFilters(filters)
	return out
}

func (s State) SetSavedQueryID(id string) State {
	out := s.Clone()
	out.SavedQueryID = id
	return out
}

// Patch is a partial update of the search bar. Nil fields are left unchanged.
type Patch struct {
	RangeFrom      *string             `json:"rangeFrom,omitempty"`
	RangeTo        *string             `json:"rangeTo,omitempty"`
	Kuery          *string             `json:"kuery,omitempty"`
	Status         *domain.AlertStatus `json:"status,omitempty"`
	Filters        *[]domain.Filter    `json:"filters,omitempty"`
	ControlFilters *[]domain.Filter    `json:"controlFilters,omitempty"`
	SavedQueryID   *string             `json:"savedQueryId,omitempty"`
}

// Validate rejects values the search bar cannot hold.
func (p Patch) Validate() error {
	if p.Status != nil && !p.Status.IsValid() {
		return domain.ErrInvalidAlertStatus
	}
	return nil
}

// Apply runs the transitions for every field set on p.
func (p Patch) Apply(s State) State {
	if p.RangeFrom != nil {
		s = s.SetRangeFrom(*p.RangeFrom)
	}
	if p.RangeTo != nil {
		s = s.SetRangeTo(*p.RangeTo)
	}
	if p.Kuery != nil {
		s = s.SetKuery(*p.Kuery)
	}
	if p.Status != nil {
		s = s.SetStatus(*p.Status)
	}
	if p.Filters != nil {
		s = s.SetFilters(*p.Filters)
	}
	if p.ControlFilters != nil {
		s = s.SetControlFilters(*p.ControlFilters)
	}
	if p.SavedQueryID != nil {
		s = s.SetSavedQueryID(*p.SavedQueryID)
	}
	return s
}
