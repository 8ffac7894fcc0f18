package alertsquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"alertscope/internal/alertsapi"
	"alertscope/internal/domain"
	"alertscope/internal/metrics"
	"alertscope/internal/store"
)

// ErrNoFeatureIDs is returned when a fetch is requested for an empty feature set.
var ErrNoFeatureIDs = errors.New("at least one feature id is required")

// Options configures a Coordinator.
type Options struct {
	// Cache stores resolved results by key hash. Nil disables caching.
	Cache store.ResultCache
	// CacheTTL is how long a cached result stays valid.
	CacheTTL time.Duration
	// FetchTimeout bounds a single backend search. Zero means no bound.
	FetchTimeout time.Duration
}

// Coordinator issues alert searches. Concurrent fetches of the same key share
// one backend call; the call is aborted once every caller waiting on it has
// gone away.
type Coordinator struct {
	searcher alertsapi.Searcher
	backend  string
	opts     Options
	logger   *slog.Logger

	group   singleflight.Group
	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the cancellation scope of one shared backend call.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewCoordinator creates a coordinator searching through searcher.
// backend names the searcher in metrics.
func NewCoordinator(searcher alertsapi.Searcher, backend string, opts Options, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		searcher: searcher,
		backend:  backend,
		opts:     opts,
		logger:   logger,
		flights:  make(map[string]*flight),
	}
}

// Fetch returns one page of alerts for params. Canceling ctx abandons the
// fetch for this caller; the returned result is never shared with other callers.
func (c *Coordinator) Fetch(ctx context.Context, params domain.SearchAlertsParams) (*domain.SearchAlertsResult, error) {
	if len(params.FeatureIDs) == 0 {
		return nil, ErrNoFeatureIDs
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	key, err := Key(params)
	if err != nil {
		return nil, err
	}
	hash := key.Hash()

	if cached := c.cached(ctx, hash); cached != nil {
		return cached, nil
	}

	f, ch, joined := c.join(hash, params)
	if joined {
		metrics.SearchesDeduplicatedTotal.Inc()
	}

	select {
	case res := <-ch:
		c.leave(hash, f, false)
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.SearchAlertsResult).Clone(), nil
	case <-ctx.Done():
		c.leave(hash, f, true)
		return nil, ctx.Err()
	}
}

func (c *Coordinator) cached(ctx context.Context, hash string) *domain.SearchAlertsResult {
	if c.opts.Cache == nil {
		return nil
	}
	result, err := c.opts.Cache.Get(ctx, hash)
	if err != nil {
		metrics.SearchCacheTotal.WithLabelValues("error").Inc()
		c.logger.Warn("failed to read search cache", "key", hash, "error", err)
		return nil
	}
	if result == nil {
		metrics.SearchCacheTotal.WithLabelValues("miss").Inc()
		return nil
	}
	metrics.SearchCacheTotal.WithLabelValues("hit").Inc()
	return result
}

// search runs the backend call shared by every caller of a key.
func (c *Coordinator) search(ctx context.Context, hash string, params domain.SearchAlertsParams) (*domain.SearchAlertsResult, error) {
	start := time.Now()
	result, err := c.searcher.SearchAlerts(ctx, params)
	metrics.SearchLatency.WithLabelValues(c.backend).Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			metrics.SearchesTotal.WithLabelValues(c.backend, "canceled").Inc()
			c.logger.Debug("alert search canceled", "key", hash)
			return nil, ctx.Err()
		}
		metrics.SearchesTotal.WithLabelValues(c.backend, "failure").Inc()
		c.logger.Error("alert search failed", "key", hash, "backend", c.backend, "error", err)
		return nil, fmt.Errorf("failed to search alerts: %w", err)
	}
	metrics.SearchesTotal.WithLabelValues(c.backend, "success").Inc()

	if c.opts.Cache != nil && c.opts.CacheTTL > 0 {
		// The shared call may outlive a caller, so the write is not bound to ctx.
		if err := c.opts.Cache.Set(context.WithoutCancel(ctx), hash, result, c.opts.CacheTTL); err != nil {
			c.logger.Warn("failed to write search cache", "key", hash, "error", err)
		}
	}

	c.logger.Debug("alert search completed",
		"key", hash,
		"total", result.Total,
		"alerts", len(result.Alerts),
		"duration", time.Since(start),
	)
	return result, nil
}

// join attaches the caller to the flight for hash, creating it if needed, and
// subscribes to the shared call. joined is true when the caller attached to a
// call already in progress.
func (c *Coordinator) join(hash string, params domain.SearchAlertsParams) (*flight, <-chan singleflight.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, joined := c.flights[hash]
	if !joined {
		var (
			ctx    context.Context
			cancel context.CancelFunc
		)
		if c.opts.FetchTimeout > 0 {
			ctx, cancel = context.WithTimeout(context.Background(), c.opts.FetchTimeout)
		} else {
			ctx, cancel = context.WithCancel(context.Background())
		}
		f = &flight{ctx: ctx, cancel: cancel}
		c.flights[hash] = f
	}
	f.waiters++

	ch := c.group.DoChan(hash, func() (any, error) {
		return c.search(f.ctx, hash, params)
	})
	return f, ch, joined
}

// leave detaches a caller from a flight. The last caller out releases the
// flight; if it gave up before the call finished, the call is aborted.
func (c *Coordinator) leave(hash string, f *flight, abandoned bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	if c.flights[hash] == f {
		delete(c.flights, hash)
	}
	if abandoned {
		c.group.Forget(hash)
	}
	f.cancel()
}
