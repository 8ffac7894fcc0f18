package domain

import (
	"sort"
	"strconv"
)

// ViewMode is the interaction mode of a control group.
type ViewMode string

const (
	ViewModeView ViewMode = "view"
	ViewModeEdit ViewMode = "edit"
)

// ChainingSystem controls whether controls narrow each other's options.
type ChainingSystem string

const (
	ChainingHierarchical ChainingSystem = "HIERARCHICAL"
	ChainingNone         ChainingSystem = "NONE"
)

// FilterItem is the configuration of a single filter control.
// FieldName uniquely identifies a control within a control set.
type FilterItem struct {
	FieldName       string   `json:"fieldName" yaml:"field_name"`
	Title           string   `json:"title,omitempty" yaml:"title"`
	SelectedOptions []string `json:"selectedOptions,omitempty" yaml:"selected_options"`
	ExistsSelected  bool     `json:"existsSelected,omitempty" yaml:"exists_selected"`
	Exclude         bool     `json:"exclude,omitempty" yaml:"exclude"`
	// Persist keeps a default control in the group even when a higher
	// priority source does not list it.
	Persist bool `json:"persist,omitempty" yaml:"persist"`
}

// Selection is the user-editable part of a control.
type Selection struct {
	SelectedOptions []string `json:"selectedOptions"`
	ExistsSelected  bool     `json:"existsSelected"`
	Exclude         bool     `json:"exclude"`
}

// ControlPanel places a control in the group.
type ControlPanel struct {
	Order   int        `json:"order"`
	Width   string     `json:"width"`
	Grow    bool       `json:"grow"`
	Control FilterItem `json:"explicitInput"`
}

// ControlGroupInput is the full input of a control group. It is what gets
// persisted in storage and compared to detect pending changes.
type ControlGroupInput struct {
	Panels         map[string]ControlPanel `json:"panels"`
	ChainingSystem ChainingSystem          `json:"chainingSystem,omitempty"`
	ViewMode       ViewMode                `json:"viewMode,omitempty"`
	DataViewID     string                  `json:"dataViewId,omitempty"`
	Filters        []Filter                `json:"filters,omitempty"`
	Query          *Query                  `json:"query,omitempty"`
	TimeRange      *TimeRange              `json:"timeRange,omitempty"`
}

// ControlGroupOutput is what a control group emits after a change.
type ControlGroupOutput struct {
	Filters []Filter `json:"filters"`
	// EmbeddableLoaded maps control id to its loaded flag. Missing entries count as loaded.
	EmbeddableLoaded map[string]bool `json:"embeddableLoaded"`
}

// AllLoaded returns true when every control reported as loaded.
func (o ControlGroupOutput) AllLoaded() bool {
	for _, loaded := range o.EmbeddableLoaded {
		if !loaded {
			return false
		}
	}
	return true
}

// PanelIDs returns the panel ids sorted by panel order, then id.
func (in *ControlGroupInput) PanelIDs() []string {
	ids := make([]string, 0, len(in.Panels))
	for id := range in.Panels {
		ids = append(ids, id)
	}
	sort.SliceStable(ids, func(i, j int) bool {
		pi, pj := in.Panels[ids[i]], in.Panels[ids[j]]
		if pi.Order != pj.Order {
			return pi.Order < pj.Order
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Controls returns the control configurations in panel order.
func (in *ControlGroupInput) Controls() []FilterItem {
	ids := in.PanelIDs()
	items := make([]FilterItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, in.Panels[id].Control)
	}
	return items
}

// FindControl returns the panel id holding the control for a field.
func (in *ControlGroupInput) FindControl(fieldName string) (string, bool) {
	for id, p := range in.Panels {
		if p.Control.FieldName == fieldName {
			return id, true
		}
	}
	return "", false
}

// PanelsFromControls lays controls out as panels with ids and orders matching
// their position.
func PanelsFromControls(controls []FilterItem) map[string]ControlPanel {
	panels := make(map[string]ControlPanel, len(controls))
	for i, c := range controls {
		panels[strconv.Itoa(i)] = ControlPanel{
			Order:   i,
			Width:   "small",
			Control: c,
		}
	}
	return panels
}

// Clone returns a copy that shares no maps or slices with the original.
func (in *ControlGroupInput) Clone() *ControlGroupInput {
	if in == nil {
		return nil
	}
	out := *in
	out.Panels = make(map[string]ControlPanel, len(in.Panels))
	for id, p := range in.Panels {
		p.Control.SelectedOptions = append([]string(nil), p.Control.SelectedOptions...)
		out.Panels[id] = p
	}
	if in.Filters != nil {
		out.Filters = CloneFilters(in.Filters)
	}
	if in.Query != nil {
		q := *in.Query
		out.Query = &q
	}
	if in.TimeRange != nil {
		tr := *in.TimeRange
		out.TimeRange = &tr
	}
	return &out
}
