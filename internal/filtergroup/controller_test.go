package filtergroup_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"alertscope/internal/domain"
	"alertscope/internal/filtergroup"
	"alertscope/internal/store/memory"
)

const (
	spaceID       = "default"
	statusField   = "kibana.alert.status"
	ruleNameField = "kibana.alert.rule.name"
)

// recordingSink keeps every filter notification.
type recordingSink struct {
	mu    sync.Mutex
	calls [][]domain.Filter
	err   error
}

func (s *recordingSink) OnFilterChange(_ context.Context, _ string, filters []domain.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, filters)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.calls)
}

func (s *recordingSink) last() []domain.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.calls) == 0 {
		return nil
	}
	return s.calls[len(s.calls)-1]
}

func phraseOutput(field, value string) domain.ControlGroupOutput {
	return domain.ControlGroupOutput{
		Filters: []domain.Filter{{
			Meta:  domain.FilterMeta{Key: field, Type: domain.FilterTypePhrase, Params: map[string]any{"query": value}},
			Query: map[string]any{"match_phrase": map[string]any{field: value}},
		}},
		EmbeddableLoaded: map[string]bool{"0": true},
	}
}

var _ = Describe("Controller", func() {
	var (
		ctx      context.Context
		cancel   context.CancelFunc
		kv       *memory.KeyValueStore
		sink     *recordingSink
		cfg      filtergroup.Config
		ctrl     *filtergroup.Controller
		logger   *slog.Logger
		defaults []domain.FilterItem
	)

	storedControls := func() []domain.FilterItem {
		var stored domain.ControlGroupInput
		found, err := kv.Get(ctx, filtergroup.StorageKey(spaceID), &stored)
		Expect(err).NotTo(HaveOccurred())
		if !found {
			return nil
		}
		return stored.Controls()
	}

	fields := func(controls []domain.FilterItem) []string {
		out := make([]string, len(controls))
		for i, c := range controls {
			out[i] = c.FieldName
		}
		return out
	}

	snapshot := func() filtergroup.State {
		state, err := ctrl.Snapshot(ctx)
		Expect(err).NotTo(HaveOccurred())
		return state
	}

	start := func() {
		ctrl = filtergroup.NewController(cfg, kv, sink, logger)
		go func() {
			defer GinkgoRecover()
			Expect(ctrl.Run(ctx)).To(Succeed())
		}()
		Eventually(ctrl.Ready()).Should(BeClosed())
	}

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		kv = memory.NewKeyValueStore()
		sink = &recordingSink{}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		defaults = []domain.FilterItem{
			{FieldName: statusField, Title: "Status", SelectedOptions: []string{"active"}, Persist: true},
			{FieldName: ruleNameField, Title: "Rule"},
		}
		cfg = filtergroup.Config{
			SpaceID:         spaceID,
			DefaultControls: defaults,
			DataViewID:      "alerts-dv",
			DebounceDelay:   20 * time.Millisecond,
			MaxControls:     3,
		}
	})

	AfterEach(func() {
		cancel()
		if ctrl != nil {
			Eventually(ctrl.Done()).Should(BeClosed())
		}
	})

	Context("on start", func() {
		It("uses the default controls and notifies their filters once", func() {
			start()

			state := snapshot()
			Expect(state.ViewMode).To(Equal(domain.ViewModeView))
			Expect(fields(state.Controls)).To(Equal([]string{statusField, ruleNameField}))

			Eventually(sink.count).Should(Equal(1))
			Consistently(sink.count, 100*time.Millisecond).Should(Equal(1))
			Expect(sink.last()).To(HaveLen(1))
			Expect(sink.last()[0].Meta.Key).To(Equal(statusField))
		})

		It("persists the initial controls", func() {
			start()

			Expect(fields(storedControls())).To(Equal([]string{statusField, ruleNameField}))
		})

		It("prefers URL controls over stored controls", func() {
			stored := &domain.ControlGroupInput{
				Panels: domain.PanelsFromControls([]domain.FilterItem{{FieldName: "host.name"}}),
			}
			Expect(kv.Set(ctx, filtergroup.StorageKey(spaceID), stored)).To(Succeed())
			cfg.ControlsFromURL = []domain.FilterItem{{FieldName: "service.name", SelectedOptions: []string{"api"}}}

			start()

			Expect(fields(snapshot().Controls)).To(Equal([]string{statusField, "service.name"}))
		})

		It("uses stored controls when the URL has none", func() {
			stored := &domain.ControlGroupInput{
				Panels: domain.PanelsFromControls([]domain.FilterItem{{FieldName: "host.name"}}),
			}
			Expect(kv.Set(ctx, filtergroup.StorageKey(spaceID), stored)).To(Succeed())

			start()

			Expect(fields(snapshot().Controls)).To(Equal([]string{statusField, "host.name"}))
		})
	})

	Context("when outputs arrive", func() {
		BeforeEach(func() {
			start()
			Eventually(sink.count).Should(Equal(1))
		})

		It("sends only the last of a burst", func() {
			for _, v := range []string{"a", "b", "c", "d", "e"} {
				Expect(ctrl.HandleOutput(ctx, phraseOutput("host.name", v))).To(Succeed())
			}

			Eventually(sink.count).Should(Equal(2))
			Consistently(sink.count, 100*time.Millisecond).Should(Equal(2))
			Expect(sink.last()[0].Meta.Params).To(Equal(map[string]any{"query": "e"}))
		})

		It("suppresses unchanged filters", func() {
			Expect(ctrl.HandleOutput(ctx, snapshot().Output)).To(Succeed())

			Consistently(sink.count, 100*time.Millisecond).Should(Equal(1))
		})

		It("holds filters back until every control loaded", func() {
			out := phraseOutput("host.name", "a")
			out.EmbeddableLoaded = map[string]bool{"0": true, "1": false}
			Expect(ctrl.HandleOutput(ctx, out)).To(Succeed())

			Consistently(sink.count, 100*time.Millisecond).Should(Equal(1))

			out.EmbeddableLoaded["1"] = true
			Expect(ctrl.HandleOutput(ctx, out)).To(Succeed())
			Eventually(sink.count).Should(Equal(2))
		})

		It("retries a failed notification on the next output", func() {
			sink.mu.Lock()
			sink.err = errors.New("sink down")
			sink.mu.Unlock()

			Expect(ctrl.HandleOutput(ctx, phraseOutput("host.name", "a"))).To(Succeed())
			Expect(ctrl.Flush(ctx)).To(Succeed())
			Expect(snapshot().AppliedFilters[0].Meta.Key).To(Equal(statusField))

			sink.mu.Lock()
			sink.err = nil
			sink.mu.Unlock()

			Expect(ctrl.HandleOutput(ctx, phraseOutput("host.name", "a"))).To(Succeed())
			Eventually(sink.count).Should(Equal(2))
		})

		It("notifies when a selection changes", func() {
			sel := domain.Selection{SelectedOptions: []string{"active", "recovered"}}
			Expect(ctrl.UpdateSelection(ctx, statusField, sel)).To(Succeed())

			Eventually(sink.count).Should(Equal(2))
			Expect(sink.last()[0].Meta.Type).To(Equal(domain.FilterTypePhrases))
		})
	})

	Context("in edit mode", func() {
		BeforeEach(func() {
			start()
			Expect(ctrl.SwitchToEditMode(ctx)).To(Succeed())
		})

		It("tracks pending changes without persisting them", func() {
			Expect(snapshot().HasPendingChanges).To(BeFalse())

			Expect(ctrl.AddControl(ctx, domain.FilterItem{FieldName: "host.name"})).To(Succeed())

			state := snapshot()
			Expect(state.HasPendingChanges).To(BeTrue())
			Expect(fields(state.Controls)).To(Equal([]string{statusField, ruleNameField, "host.name"}))
			Expect(fields(storedControls())).To(Equal([]string{statusField, ruleNameField}))
		})

		It("restores the stored controls on discard", func() {
			Expect(ctrl.RemoveControl(ctx, ruleNameField)).To(Succeed())
			Expect(ctrl.OpenPendingChangesPopover(ctx)).To(Succeed())

			Expect(ctrl.DiscardChanges(ctx)).To(Succeed())

			state := snapshot()
			Expect(state.ViewMode).To(Equal(domain.ViewModeView))
			Expect(state.HasPendingChanges).To(BeFalse())
			Expect(state.PendingChangesPopoverOpen).To(BeFalse())
			Expect(fields(state.Controls)).To(Equal([]string{statusField, ruleNameField}))
		})

		It("persists and reorders on save", func() {
			Expect(ctrl.RemoveControl(ctx, statusField)).To(Succeed())
			Expect(ctrl.AddControl(ctx, domain.FilterItem{FieldName: "host.name"})).To(Succeed())

			Expect(ctrl.SaveChanges(ctx)).To(Succeed())

			state := snapshot()
			Expect(state.ViewMode).To(Equal(domain.ViewModeView))
			Expect(state.HasPendingChanges).To(BeFalse())
			Expect(fields(state.Controls)).To(Equal([]string{statusField, ruleNameField, "host.name"}))
			Expect(fields(storedControls())).To(Equal([]string{statusField, ruleNameField, "host.name"}))
		})

		It("gives added controls the default configuration of their field", func() {
			Expect(ctrl.RemoveControl(ctx, statusField)).To(Succeed())
			Expect(ctrl.AddControl(ctx, domain.FilterItem{FieldName: statusField, Title: "Alert status"})).To(Succeed())

			for _, c := range snapshot().Controls {
				if c.FieldName == statusField {
					Expect(c.Title).To(Equal("Alert status"))
					Expect(c.SelectedOptions).To(Equal([]string{"active"}))
					Expect(c.Persist).To(BeTrue())
				}
			}
		})

		It("rejects invalid additions", func() {
			Expect(ctrl.AddControl(ctx, domain.FilterItem{})).To(MatchError(filtergroup.ErrInvalidControl))
			Expect(ctrl.AddControl(ctx, domain.FilterItem{FieldName: statusField})).To(MatchError(filtergroup.ErrDuplicateControl))

			Expect(ctrl.AddControl(ctx, domain.FilterItem{FieldName: "host.name"})).To(Succeed())
			Expect(snapshot().CanAddControl).To(BeFalse())
			Expect(ctrl.AddControl(ctx, domain.FilterItem{FieldName: "service.name"})).To(MatchError(filtergroup.ErrControlLimitReached))
		})

		It("resets to the default controls", func() {
			Expect(ctrl.AddControl(ctx, domain.FilterItem{FieldName: "host.name"})).To(Succeed())

			Expect(ctrl.ResetControls(ctx)).To(Succeed())

			state := snapshot()
			Expect(state.ViewMode).To(Equal(domain.ViewModeView))
			Expect(fields(state.Controls)).To(Equal([]string{statusField, ruleNameField}))
			Expect(fields(storedControls())).To(Equal([]string{statusField, ruleNameField}))
		})
	})

	Context("in view mode", func() {
		BeforeEach(func() {
			start()
		})

		It("rejects structural edits", func() {
			Expect(ctrl.AddControl(ctx, domain.FilterItem{FieldName: "host.name"})).To(MatchError(filtergroup.ErrNotInEditMode))
			Expect(ctrl.RemoveControl(ctx, statusField)).To(MatchError(filtergroup.ErrNotInEditMode))
			Expect(snapshot().CanAddControl).To(BeFalse())
		})

		It("persists selection changes immediately", func() {
			sel := domain.Selection{SelectedOptions: []string{"recovered"}}
			Expect(ctrl.UpdateSelection(ctx, statusField, sel)).To(Succeed())

			Expect(storedControls()[0].SelectedOptions).To(Equal([]string{"recovered"}))
		})

		It("reports unknown fields", func() {
			err := ctrl.UpdateSelection(ctx, "missing", domain.Selection{})
			Expect(err).To(MatchError(filtergroup.ErrControlNotFound))
		})
	})

	Context("with external input", func() {
		BeforeEach(func() {
			start()
		})

		It("keeps valid filters and query", func() {
			query := domain.KueryQuery("host.name: web-1")
			err := ctrl.UpdateExternalInput(ctx, filtergroup.ExternalInput{
				Filters: []domain.Filter{{Meta: domain.FilterMeta{Key: "host.name"}}},
				Query:   &query,
			})
			Expect(err).NotTo(HaveOccurred())

			input := snapshot().Input
			Expect(input.Filters).To(HaveLen(1))
			Expect(input.Query).To(Equal(&query))
		})

		It("drops filters and query that do not build", func() {
			query := domain.KueryQuery("host.name: (web-1")
			err := ctrl.UpdateExternalInput(ctx, filtergroup.ExternalInput{
				Filters: []domain.Filter{{Meta: domain.FilterMeta{Key: "host.name"}}},
				Query:   &query,
			})
			Expect(err).NotTo(HaveOccurred())

			input := snapshot().Input
			Expect(input.Filters).To(BeEmpty())
			Expect(input.Query).To(BeNil())
		})
	})

	It("fails operations once stopped", func() {
		start()
		cancel()
		Eventually(ctrl.Done()).Should(BeClosed())

		_, err := ctrl.Snapshot(context.Background())
		Expect(err).To(MatchError(filtergroup.ErrControllerStopped))
	})
})
