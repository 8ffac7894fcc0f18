// Package filtergroup keeps a group of filter controls in sync with the
// controls requested by the URL, the controls persisted in storage and the
// configured default controls, and notifies a sink when the filters produced
// by the controls change.
//
// A Controller runs as a single event loop: every operation is sent to the
// loop as a command and applied in arrival order.
package filtergroup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"alertscope/internal/domain"
	"alertscope/internal/kql"
	"alertscope/internal/metrics"
	"alertscope/internal/store"
)

// Errors returned by controller operations.
var (
	ErrNotInEditMode       = errors.New("control group is not in edit mode")
	ErrControlLimitReached = errors.New("maximum number of controls reached")
	ErrDuplicateControl    = errors.New("a control for this field already exists")
	ErrControlNotFound     = errors.New("control not found")
	ErrInvalidControl      = errors.New("control field name is required")
	ErrControllerStopped   = errors.New("filter group controller is not running")
	ErrAlreadyRunning      = errors.New("filter group controller is already running")
)

const (
	// DefaultDebounceDelay is the quiet period before output filters are sent.
	DefaultDebounceDelay = 100 * time.Millisecond
	// DefaultMaxControls is the maximum number of controls in a group.
	DefaultMaxControls = 4
)

// Config configures a Controller.
type Config struct {
	SpaceID         string
	DefaultControls []domain.FilterItem
	// ControlsFromURL are the controls requested by URL parameters.
	// Nil or empty means the URL requested none.
	ControlsFromURL []domain.FilterItem
	DataViewID      string
	ChainingSystem  domain.ChainingSystem
	DebounceDelay   time.Duration
	MaxControls     int
}

// ExternalInput is the search context the control group narrows its options with.
type ExternalInput struct {
	Filters        []domain.Filter
	Query          *domain.Query
	TimeRange      *domain.TimeRange
	ChainingSystem domain.ChainingSystem
}

// State is a snapshot of a control group.
type State struct {
	SpaceID                   string                    `json:"spaceId"`
	ViewMode                  domain.ViewMode           `json:"viewMode"`
	HasPendingChanges         bool                      `json:"hasPendingChanges"`
	PendingChangesPopoverOpen bool                      `json:"pendingChangesPopoverOpen"`
	ShowFiltersChangedBanner  bool                      `json:"showFiltersChangedBanner"`
	CanAddControl             bool                      `json:"canAddControl"`
	Controls                  []domain.FilterItem       `json:"controls"`
	Input                     *domain.ControlGroupInput `json:"input"`
	Output                    domain.ControlGroupOutput `json:"output"`
	// AppliedFilters are the filters last sent to the sink.
	AppliedFilters []domain.Filter `json:"appliedFilters"`
}

type command struct {
	name  string
	apply func(c *Controller) error
	reply chan error
}

// Controller synchronizes one control group.
type Controller struct {
	cfg     Config
	storage store.KeyValueStore
	sink    FilterSink
	logger  *slog.Logger

	commands chan command
	started  chan struct{}
	stopped  chan struct{}
	running  atomic.Bool

	// Everything below is owned by the loop goroutine.
	ctx               context.Context
	viewMode          domain.ViewMode
	hasPendingChanges bool
	popoverOpen       bool
	showBanner        bool
	input             *domain.ControlGroupInput
	stored            *domain.ControlGroupInput
	loaded            map[string]bool
	applied           []domain.Filter
	hasApplied        bool
	pendingOutput     *domain.ControlGroupOutput
	debounceTimer     *time.Timer
	debounceSeq       uint64
}

// NewController creates a controller. storage may be nil, in which case the
// group is only kept in memory. Run must be called before any operation
// completes.
func NewController(cfg Config, storage store.KeyValueStore, sink FilterSink, logger *slog.Logger) *Controller {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = DefaultDebounceDelay
	}
	if cfg.MaxControls <= 0 {
		cfg.MaxControls = DefaultMaxControls
	}
	if cfg.ChainingSystem == "" {
		cfg.ChainingSystem = domain.ChainingHierarchical
	}
	return &Controller{
		cfg:      cfg,
		storage:  storage,
		sink:     sink,
		logger:   logger.With("space_id", cfg.SpaceID),
		commands: make(chan command),
		started:  make(chan struct{}),
		stopped:  make(chan struct{}),
		loaded:   make(map[string]bool),
	}
}

// Run initializes the group and handles commands until ctx is canceled.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(c.stopped)

	c.ctx = ctx
	c.init(ctx)
	close(c.started)

	for {
		select {
		case <-ctx.Done():
			if c.debounceTimer != nil {
				c.debounceTimer.Stop()
			}
			c.logger.Debug("filter group controller stopped")
			return nil
		case cmd := <-c.commands:
			err := cmd.apply(c)
			if cmd.name != "" {
				status := "success"
				if err != nil {
					status = "error"
				}
				metrics.FilterGroupCommandsTotal.WithLabelValues(cmd.name, status).Inc()
			}
			if cmd.reply != nil {
				cmd.reply <- err
			}
		}
	}
}

// Ready returns a channel closed once the group has been initialized.
func (c *Controller) Ready() <-chan struct{} {
	return c.started
}

// Done returns a channel closed once Run has returned.
func (c *Controller) Done() <-chan struct{} {
	return c.stopped
}

// init resolves the initial controls and applies them in view mode.
func (c *Controller) init(ctx context.Context) {
	stored := c.loadStored(ctx)

	var fromStorage []domain.FilterItem
	if stored != nil {
		fromStorage = stored.Controls()
	}
	controls := SelectControlsWithPriority(c.cfg.ControlsFromURL, fromStorage, c.cfg.DefaultControls)

	c.stored = stored
	c.viewMode = domain.ViewModeView
	input := &domain.ControlGroupInput{
		Panels:         domain.PanelsFromControls(controls),
		ChainingSystem: c.cfg.ChainingSystem,
		ViewMode:       domain.ViewModeView,
		DataViewID:     c.cfg.DataViewID,
	}
	c.resetLoaded(input)
	c.applyInput(input)
	c.emitOutput()

	c.logger.Info("filter group initialized",
		"controls", len(controls),
		"from_url", len(c.cfg.ControlsFromURL) > 0,
		"from_storage", len(fromStorage) > 0,
	)
}

func (c *Controller) loadStored(ctx context.Context) *domain.ControlGroupInput {
	if c.storage == nil {
		return nil
	}
	var stored domain.ControlGroupInput
	found, err := c.storage.Get(ctx, StorageKey(c.cfg.SpaceID), &stored)
	if err != nil {
		c.logger.Warn("failed to read stored control group, using defaults", "error", err)
		return nil
	}
	if !found {
		return nil
	}
	return &stored
}

// do sends a command to the loop and waits for it to be applied.
func (c *Controller) do(ctx context.Context, name string, apply func(c *Controller) error) error {
	cmd := command{name: name, apply: apply, reply: make(chan error, 1)}
	select {
	case c.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrControllerStopped
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post sends a fire-and-forget command from outside the loop.
func (c *Controller) post(apply func(c *Controller)) {
	cmd := command{apply: func(c *Controller) error {
		apply(c)
		return nil
	}}
	select {
	case c.commands <- cmd:
	case <-c.stopped:
	}
}

// SwitchToEditMode enables control editing.
func (c *Controller) SwitchToEditMode(ctx context.Context) error {
	return c.do(ctx, "switch_to_edit_mode", func(c *Controller) error {
		c.switchToEditMode()
		return nil
	})
}

// SwitchToViewMode leaves edit mode, clears pending changes and persists the
// current controls.
func (c *Controller) SwitchToViewMode(ctx context.Context) error {
	return c.do(ctx, "switch_to_view_mode", func(c *Controller) error {
		c.switchToViewMode()
		return nil
	})
}

// SaveChanges imposes the default control order, then returns to view mode,
// which persists the controls.
func (c *Controller) SaveChanges(ctx context.Context) error {
	return c.do(ctx, "save_changes", func(c *Controller) error {
		current := c.input.Controls()
		reordered := ReorderControlsWithDefaultControls(current, c.cfg.DefaultControls)
		if !SameFieldOrder(reordered, current) {
			c.replacePanels(reordered)
		}
		c.switchToViewMode()
		c.showBanner = false
		return nil
	})
}

// DiscardChanges restores the stored controls if anything changed, then
// returns to view mode.
func (c *Controller) DiscardChanges(ctx context.Context) error {
	return c.do(ctx, "discard_changes", func(c *Controller) error {
		if c.hasPendingChanges && c.stored != nil {
			input := c.input.Clone()
			input.Panels = c.stored.Clone().Panels
			c.resetLoaded(input)
			c.applyInput(input)
			c.emitOutput()
		}
		c.switchToViewMode()
		c.showBanner = false
		return nil
	})
}

// ResetControls replaces the controls with the default controls and returns
// to view mode.
func (c *Controller) ResetControls(ctx context.Context) error {
	return c.do(ctx, "reset_controls", func(c *Controller) error {
		defaults := make([]domain.FilterItem, len(c.cfg.DefaultControls))
		for i, d := range c.cfg.DefaultControls {
			defaults[i] = cloneItem(d)
		}
		c.replacePanels(defaults)
		c.switchToViewMode()
		c.showBanner = false
		return nil
	})
}

// AddControl adds a control in edit mode. Controls for a field with a default
// control take the default's configuration.
func (c *Controller) AddControl(ctx context.Context, control domain.FilterItem) error {
	return c.do(ctx, "add_control", func(c *Controller) error {
		if c.viewMode != domain.ViewModeEdit {
			return ErrNotInEditMode
		}
		if control.FieldName == "" {
			return ErrInvalidControl
		}
		if len(c.input.Panels) >= c.cfg.MaxControls {
			return fmt.Errorf("%w: %d", ErrControlLimitReached, c.cfg.MaxControls)
		}
		if _, exists := c.input.FindControl(control.FieldName); exists {
			return fmt.Errorf("%w: %q", ErrDuplicateControl, control.FieldName)
		}

		input := c.input.Clone()
		id, order := nextPanel(input)
		input.Panels[id] = domain.ControlPanel{
			Order:   order,
			Width:   "small",
			Control: TransformNewControl(control, c.cfg.DefaultControls),
		}
		c.loaded[id] = input.DataViewID != ""
		c.applyInput(input)
		c.emitOutput()
		return nil
	})
}

// RemoveControl removes the control of a field in edit mode.
func (c *Controller) RemoveControl(ctx context.Context, fieldName string) error {
	return c.do(ctx, "remove_control", func(c *Controller) error {
		if c.viewMode != domain.ViewModeEdit {
			return ErrNotInEditMode
		}
		id, ok := c.input.FindControl(fieldName)
		if !ok {
			return fmt.Errorf("%w: %q", ErrControlNotFound, fieldName)
		}

		input := c.input.Clone()
		delete(input.Panels, id)
		delete(c.loaded, id)
		c.applyInput(input)
		c.emitOutput()
		return nil
	})
}

// UpdateSelection changes the selected options of a control.
func (c *Controller) UpdateSelection(ctx context.Context, fieldName string, sel domain.Selection) error {
	return c.do(ctx, "update_selection", func(c *Controller) error {
		id, ok := c.input.FindControl(fieldName)
		if !ok {
			return fmt.Errorf("%w: %q", ErrControlNotFound, fieldName)
		}

		input := c.input.Clone()
		panel := input.Panels[id]
		panel.Control.SelectedOptions = append([]string{}, sel.SelectedOptions...)
		panel.Control.ExistsSelected = sel.ExistsSelected
		panel.Control.Exclude = sel.Exclude
		input.Panels[id] = panel
		c.applyInput(input)
		c.emitOutput()
		return nil
	})
}

// SetControlLoaded records whether the control of a field finished loading.
// Output filters are held back until every control has loaded.
func (c *Controller) SetControlLoaded(ctx context.Context, fieldName string, loaded bool) error {
	return c.do(ctx, "set_control_loaded", func(c *Controller) error {
		id, ok := c.input.FindControl(fieldName)
		if !ok {
			return fmt.Errorf("%w: %q", ErrControlNotFound, fieldName)
		}
		c.loaded[id] = loaded
		c.emitOutput()
		return nil
	})
}

// SetDataViewID points the controls at a data view. Controls count as loaded
// once they have one.
func (c *Controller) SetDataViewID(ctx context.Context, dataViewID string) error {
	return c.do(ctx, "set_data_view", func(c *Controller) error {
		if c.input.DataViewID == dataViewID {
			return nil
		}
		input := c.input.Clone()
		input.DataViewID = dataViewID
		c.resetLoaded(input)
		c.applyInput(input)
		c.emitOutput()
		return nil
	})
}

// UpdateExternalInput passes the search context to the group. A filter and
// query combination that does not build is replaced by no filters and no query.
func (c *Controller) UpdateExternalInput(ctx context.Context, ext ExternalInput) error {
	return c.do(ctx, "update_external_input", func(c *Controller) error {
		filters, query, ok := ValidateQuery(ext.Filters, ext.Query)
		if !ok {
			c.logger.Warn("discarding filters and query that failed to build")
		}

		input := c.input.Clone()
		input.Filters = filters
		input.Query = query
		input.TimeRange = ext.TimeRange
		if ext.ChainingSystem != "" {
			input.ChainingSystem = ext.ChainingSystem
		}
		c.applyInput(input)
		return nil
	})
}

// HandleOutput feeds an output of the control group into the debounced
// filter notification.
func (c *Controller) HandleOutput(ctx context.Context, output domain.ControlGroupOutput) error {
	return c.do(ctx, "handle_output", func(c *Controller) error {
		c.handleOutput(output)
		return nil
	})
}

// OpenPendingChangesPopover shows the pending changes popover.
func (c *Controller) OpenPendingChangesPopover(ctx context.Context) error {
	return c.do(ctx, "open_pending_changes_popover", func(c *Controller) error {
		c.popoverOpen = true
		return nil
	})
}

// ClosePendingChangesPopover hides the pending changes popover.
func (c *Controller) ClosePendingChangesPopover(ctx context.Context) error {
	return c.do(ctx, "close_pending_changes_popover", func(c *Controller) error {
		c.popoverOpen = false
		return nil
	})
}

// SetShowFiltersChangedBanner shows or hides the filters changed banner.
func (c *Controller) SetShowFiltersChangedBanner(ctx context.Context, show bool) error {
	return c.do(ctx, "set_filters_changed_banner", func(c *Controller) error {
		c.showBanner = show
		return nil
	})
}

// Snapshot returns the current state of the group.
func (c *Controller) Snapshot(ctx context.Context) (State, error) {
	var s State
	err := c.do(ctx, "", func(c *Controller) error {
		s = c.snapshot()
		return nil
	})
	return s, err
}

// Flush sends any debounced output immediately.
func (c *Controller) Flush(ctx context.Context) error {
	return c.do(ctx, "", func(c *Controller) error {
		if c.debounceTimer != nil {
			c.debounceTimer.Stop()
		}
		c.flushOutput(c.debounceSeq)
		return nil
	})
}

func (c *Controller) snapshot() State {
	controls := c.input.Controls()
	return State{
		SpaceID:                   c.cfg.SpaceID,
		ViewMode:                  c.viewMode,
		HasPendingChanges:         c.hasPendingChanges,
		PendingChangesPopoverOpen: c.popoverOpen,
		ShowFiltersChangedBanner:  c.showBanner,
		CanAddControl:             c.viewMode == domain.ViewModeEdit && !c.showBanner && len(controls) < c.cfg.MaxControls,
		Controls:                  controls,
		Input:                     c.input.Clone(),
		Output:                    c.output(),
		AppliedFilters:            domain.CloneFilters(c.applied),
	}
}

func (c *Controller) switchToEditMode() {
	c.viewMode = domain.ViewModeEdit
	input := c.input.Clone()
	input.ViewMode = domain.ViewModeEdit
	c.applyInput(input)
}

func (c *Controller) switchToViewMode() {
	c.viewMode = domain.ViewModeView
	c.hasPendingChanges = false
	c.popoverOpen = false
	input := c.input.Clone()
	input.ViewMode = domain.ViewModeView
	c.applyInput(input)
}

// replacePanels lays controls out as fresh panels.
func (c *Controller) replacePanels(controls []domain.FilterItem) {
	input := c.input.Clone()
	input.Panels = domain.PanelsFromControls(controls)
	c.resetLoaded(input)
	c.applyInput(input)
	c.emitOutput()
}

// applyInput makes input the live input. Input equal to the stored input is
// ignored. Panel changes in edit mode mark pending changes; in view mode the
// input is persisted.
func (c *Controller) applyInput(input *domain.ControlGroupInput) {
	c.input = input
	if c.stored != nil && Equal(c.stored, input) {
		return
	}
	if c.viewMode == domain.ViewModeEdit && !Equal(input.Panels, storedPanels(c.stored)) {
		c.hasPendingChanges = true
	}
	if c.viewMode == domain.ViewModeView {
		c.persist(input)
	}
}

func (c *Controller) persist(input *domain.ControlGroupInput) {
	c.stored = input.Clone()
	if c.storage == nil {
		return
	}
	if err := c.storage.Set(c.ctx, StorageKey(c.cfg.SpaceID), input); err != nil {
		c.logger.Warn("failed to persist control group", "error", err)
	}
}

func storedPanels(stored *domain.ControlGroupInput) map[string]domain.ControlPanel {
	if stored == nil {
		return nil
	}
	return stored.Panels
}

func (c *Controller) resetLoaded(input *domain.ControlGroupInput) {
	c.loaded = make(map[string]bool, len(input.Panels))
	for id := range input.Panels {
		c.loaded[id] = input.DataViewID != ""
	}
}

func (c *Controller) output() domain.ControlGroupOutput {
	loaded := make(map[string]bool, len(c.loaded))
	for id, l := range c.loaded {
		loaded[id] = l
	}
	return domain.ControlGroupOutput{
		Filters:          ControlFilters(c.input),
		EmbeddableLoaded: loaded,
	}
}

func (c *Controller) emitOutput() {
	c.handleOutput(c.output())
}

// handleOutput keeps the latest output and restarts the debounce timer.
func (c *Controller) handleOutput(output domain.ControlGroupOutput) {
	c.pendingOutput = &output
	c.debounceSeq++
	seq := c.debounceSeq

	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
	}
	c.debounceTimer = time.AfterFunc(c.cfg.DebounceDelay, func() {
		c.post(func(c *Controller) { c.flushOutput(seq) })
	})
}

// flushOutput sends the pending output filters to the sink unless they equal
// the filters last sent or some control has not loaded yet.
func (c *Controller) flushOutput(seq uint64) {
	if seq != c.debounceSeq || c.pendingOutput == nil {
		return
	}
	output := *c.pendingOutput
	c.pendingOutput = nil

	filters := output.Filters
	if filters == nil {
		filters = []domain.Filter{}
	}
	if c.hasApplied && Equal(c.applied, filters) {
		metrics.FilterNotificationsTotal.WithLabelValues("unchanged").Inc()
		return
	}
	if !output.AllLoaded() {
		metrics.FilterNotificationsTotal.WithLabelValues("not_loaded").Inc()
		return
	}

	if c.sink != nil {
		if err := c.sink.OnFilterChange(c.ctx, c.cfg.SpaceID, domain.CloneFilters(filters)); err != nil {
			metrics.FilterNotificationsTotal.WithLabelValues("failed").Inc()
			c.logger.Error("failed to notify filter change", "error", err)
			return
		}
	}
	c.applied = domain.CloneFilters(filters)
	c.hasApplied = true
	metrics.FilterNotificationsTotal.WithLabelValues("sent").Inc()
	c.logger.Debug("control filters changed", "filters", len(filters))
}

// nextPanel returns an unused panel id and the order after the last panel.
func nextPanel(input *domain.ControlGroupInput) (string, int) {
	order := 0
	next := 0
	for id, p := range input.Panels {
		if p.Order >= order {
			order = p.Order + 1
		}
		if n, err := strconv.Atoi(id); err == nil && n >= next {
			next = n + 1
		}
	}
	return strconv.Itoa(next), order
}

// ValidateQuery checks that filters and query build into an Elasticsearch
// query. On failure it returns empty filters, no query and false.
func ValidateQuery(filters []domain.Filter, query *domain.Query) ([]domain.Filter, *domain.Query, bool) {
	var queries []domain.Query
	if query != nil {
		queries = []domain.Query{*query}
	}
	if _, err := kql.BuildESQuery(queries, filters); err != nil {
		metrics.QueryBuildFailuresTotal.Inc()
		return []domain.Filter{}, nil, false
	}
	if filters == nil {
		return []domain.Filter{}, query, true
	}
	return domain.CloneFilters(filters), query, true
}
