package dataview

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"alertscope/internal/alertsapi"
	"alertscope/internal/domain"
	"alertscope/internal/metrics"
	"alertscope/internal/notification"
)

// ErrorToastTitle is the title of the toast raised when resolution fails.
const ErrorToastTitle = "Unable to load alert data view"

// Resolver resolves the data view for a set of feature ids.
//
// Restricted (security) features resolve from index names alone, general
// features from index names and field metadata fetched concurrently. Sets that
// mix both domains, and empty sets, resolve to no data view without any fetch.
type Resolver struct {
	indexNames alertsapi.IndexNameFetcher
	fields     alertsapi.FieldFetcher
	views      Service
	toasts     notification.Notifier
	logger     *slog.Logger
}

// NewResolver creates a data view resolver.
func NewResolver(
	indexNames alertsapi.IndexNameFetcher,
	fields alertsapi.FieldFetcher,
	views Service,
	toasts notification.Notifier,
	logger *slog.Logger,
) *Resolver {
	return &Resolver{
		indexNames: indexNames,
		fields:     fields,
		views:      views,
		toasts:     toasts,
		logger:     logger,
	}
}

// Resolve returns the settled data view state for featureIDs. Failures raise
// one danger toast and resolve to no data view. A canceled ctx resolves to no
// data view without a toast.
func (r *Resolver) Resolve(ctx context.Context, featureIDs []domain.FeatureID) domain.DataViewState {
	start := time.Now()
	featureDomain := domain.Partition(featureIDs)
	label := featureDomain.String()

	var (
		view *domain.DataView
		err  error
	)
	switch featureDomain {
	case domain.FeatureDomainNone, domain.FeatureDomainMixed:
		metrics.DataViewResolutionsTotal.WithLabelValues(label, "skipped").Inc()
		r.logger.Debug("data view resolution skipped", "domain", label, "featureIds", featureIDs)
		return domain.DataViewState{}
	case domain.FeatureDomainRestricted:
		view, err = r.resolveRestricted(ctx, featureIDs)
	default:
		view, err = r.resolveGeneral(ctx, featureIDs)
	}
	metrics.DataViewResolutionLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			metrics.DataViewResolutionsTotal.WithLabelValues(label, "canceled").Inc()
			return domain.DataViewState{}
		}
		metrics.DataViewResolutionsTotal.WithLabelValues(label, "failed").Inc()
		r.logger.Error("failed to resolve data view", "domain", label, "featureIds", featureIDs, "error", err)
		r.toasts.AddDanger(ErrorToastTitle, err.Error())
		return domain.DataViewState{}
	}

	metrics.DataViewResolutionsTotal.WithLabelValues(label, "resolved").Inc()
	r.logger.Debug("data view resolved", "domain", label, "id", view.ID, "title", view.Title)
	return domain.DataViewState{DataView: view}
}

// resolveRestricted fetches index names only and lets the service load fields.
func (r *Resolver) resolveRestricted(ctx context.Context, featureIDs []domain.FeatureID) (*domain.DataView, error) {
	names, err := r.indexNames.FetchIndexNames(ctx, featureIDs)
	if err != nil {
		return nil, err
	}
	return r.views.Create(ctx, domain.DataViewSpec{
		Title:         strings.Join(names, ","),
		TimeFieldName: domain.TimestampField,
		AllowNoIndex:  true,
	})
}

// resolveGeneral fetches index names and fields concurrently. Either failure
// cancels the other fetch.
func (r *Resolver) resolveGeneral(ctx context.Context, featureIDs []domain.FeatureID) (*domain.DataView, error) {
	var (
		names  []string
		fields *domain.AlertsFields
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		names, err = r.indexNames.FetchIndexNames(gctx, featureIDs)
		return err
	})
	g.Go(func() error {
		var err error
		fields, err = r.fields.FetchFields(gctx, featureIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	specs := fields.Fields
	if specs == nil {
		specs = []domain.FieldSpec{}
	}
	return r.views.Create(ctx, domain.DataViewSpec{
		Title:         strings.Join(names, ","),
		TimeFieldName: domain.TimestampField,
		Fields:        specs,
		AllowNoIndex:  true,
	})
}
