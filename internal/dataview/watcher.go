package dataview

import (
	"context"
	"slices"
	"sync"

	"alertscope/internal/domain"
)

// Watcher holds the data view state of a changing feature set. Each change
// starts a new resolution; only the latest one is applied.
type Watcher struct {
	resolver *Resolver

	mu         sync.Mutex
	featureIDs []domain.FeatureID
	started    bool
	state      domain.DataViewState
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewWatcher creates a watcher in the loading state.
func NewWatcher(resolver *Resolver) *Watcher {
	return &Watcher{
		resolver: resolver,
		state:    domain.DataViewState{IsLoading: true},
	}
}

// SetFeatureIDs resolves the data view for featureIDs, superseding any
// resolution in progress. An unchanged feature set is a no-op.
func (w *Watcher) SetFeatureIDs(featureIDs []domain.FeatureID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started && slices.Equal(w.featureIDs, featureIDs) {
		return
	}
	w.started = true
	w.featureIDs = slices.Clone(featureIDs)

	if w.cancel != nil {
		w.cancel()
	}
	if w.done != nil {
		close(w.done)
	}

	w.generation++
	gen := w.generation
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done
	w.state = domain.DataViewState{IsLoading: true}

	go func(ids []domain.FeatureID) {
		state := w.resolver.Resolve(ctx, ids)

		w.mu.Lock()
		defer w.mu.Unlock()
		if gen != w.generation {
			return
		}
		w.state = state
		w.cancel = nil
		cancel()
		close(done)
		w.done = nil
	}(w.featureIDs)
}

// FeatureIDs returns the feature set last passed to SetFeatureIDs.
func (w *Watcher) FeatureIDs() []domain.FeatureID {
	w.mu.Lock()
	defer w.mu.Unlock()

	return slices.Clone(w.featureIDs)
}

// State returns the current data view state.
func (w *Watcher) State() domain.DataViewState {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.state
}

// Wait blocks until the latest resolution settles and returns its state.
// Before the first SetFeatureIDs call it returns the loading state.
func (w *Watcher) Wait(ctx context.Context) (domain.DataViewState, error) {
	for {
		w.mu.Lock()
		done := w.done
		state := w.state
		w.mu.Unlock()

		if done == nil {
			return state, nil
		}
		select {
		case <-done:
		case <-ctx.Done():
			return state, ctx.Err()
		}
	}
}

// Close cancels any resolution in progress.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.generation++
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	if w.done != nil {
		close(w.done)
		w.done = nil
	}
}
