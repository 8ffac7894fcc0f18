package alertsquery

import (
	"context"
	"log/slog"
	"sync"

	"alertscope/internal/domain"
	"alertscope/internal/metrics"
)

// Fetcher loads one page of alerts. Coordinator implements it.
type Fetcher interface {
	Fetch(ctx context.Context, params domain.SearchAlertsParams) (*domain.SearchAlertsResult, error)
}

// Result is the observable state of a Query.
type Result struct {
	// Data is the latest successful result, or the placeholder before the
	// first one resolves.
	Data *domain.SearchAlertsResult `json:"data"`
	// IsFetching is true while a fetch for the current key is running.
	IsFetching bool `json:"isFetching"`
	// IsPlaceholderData is true while Data belongs to a previous key.
	IsPlaceholderData bool `json:"isPlaceholderData"`
	// Enabled is false while the feature set is empty.
	Enabled bool  `json:"enabled"`
	Err     error `json:"-"`
}

// Query tracks the result of an alerts search whose params change over time.
// The previous result stays visible while a new key is fetched, and a fetch
// superseded by newer params is canceled and its result dropped.
type Query struct {
	fetcher Fetcher
	logger  *slog.Logger

	mu         sync.Mutex
	params     domain.SearchAlertsParams
	key        QueryKey
	hasKey     bool
	dataKey    QueryKey
	hasData    bool
	result     Result
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewQuery creates a disabled query holding the placeholder result.
func NewQuery(fetcher Fetcher, logger *slog.Logger) *Query {
	return &Query{
		fetcher: fetcher,
		logger:  logger,
		result:  Result{Data: domain.PlaceholderResult()},
	}
}

// SetParams switches the query to params. A fetch starts unless the key is
// unchanged or the feature set is empty.
func (q *Query) SetParams(params domain.SearchAlertsParams) error {
	key, err := Key(params)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.params = params
	if len(params.FeatureIDs) == 0 {
		q.stopLocked()
		q.hasKey = false
		q.result.Enabled = false
		q.result.IsFetching = false
		return nil
	}

	if q.hasKey && key == q.key && (q.result.IsFetching || q.hasData && q.dataKey == key) {
		q.result.Enabled = true
		return nil
	}

	q.key = key
	q.hasKey = true
	q.result.Enabled = true
	// Data from an earlier key stays visible until this one resolves.
	q.result.IsPlaceholderData = q.hasData && q.dataKey != key
	q.startLocked()
	return nil
}

// Refetch runs the current key again, keeping the current data visible.
func (q *Query) Refetch() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.hasKey {
		return
	}
	q.startLocked()
}

// Params returns the params last passed to SetParams.
func (q *Query) Params() domain.SearchAlertsParams {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.params
}

// Key returns the key of the current params and whether the query is enabled.
func (q *Query) Key() (QueryKey, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.key, q.hasKey
}

// Result returns a snapshot of the query state.
func (q *Query) Result() Result {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.snapshotLocked()
}

// Wait blocks until no fetch is running, then returns the query state.
func (q *Query) Wait(ctx context.Context) (Result, error) {
	for {
		q.mu.Lock()
		done := q.done
		res := q.snapshotLocked()
		q.mu.Unlock()

		if done == nil {
			return res, nil
		}
		select {
		case <-done:
		case <-ctx.Done():
			return res, ctx.Err()
		}
	}
}

// Close cancels any running fetch.
func (q *Query) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.stopLocked()
	q.result.IsFetching = false
}

func (q *Query) snapshotLocked() Result {
	res := q.result
	res.Data = q.result.Data.Clone()
	return res
}

// startLocked supersedes any running fetch and starts one for the current key.
func (q *Query) startLocked() {
	if q.cancel != nil && q.result.IsFetching {
		metrics.SupersededFetchesTotal.Inc()
	}
	q.stopLocked()

	q.generation++
	gen := q.generation
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.done = make(chan struct{})
	q.result.IsFetching = true
	q.result.Err = nil

	go q.run(ctx, gen, q.params, q.done)
}

// stopLocked cancels the running fetch and releases its waiters.
func (q *Query) stopLocked() {
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
	if q.done != nil {
		close(q.done)
		q.done = nil
	}
}

func (q *Query) run(ctx context.Context, gen uint64, params domain.SearchAlertsParams, done chan struct{}) {
	data, err := q.fetcher.Fetch(ctx, params)

	q.mu.Lock()
	defer q.mu.Unlock()

	if gen != q.generation || q.done != done {
		q.logger.Debug("dropping superseded alerts result", "generation", gen)
		return
	}

	q.cancel()
	q.cancel = nil
	q.result.IsFetching = false
	if err != nil {
		q.logger.Warn("alerts query failed", "error", err)
		q.result.Err = err
	} else {
		q.hasData = true
		q.dataKey = q.key
		q.result.Data = data
		q.result.IsPlaceholderData = false
		q.result.Err = nil
	}
	close(done)
	q.done = nil
}
