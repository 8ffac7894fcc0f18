// Package kibana provides an alerts backend that goes through the Kibana
// alerts REST API instead of talking to Elasticsearch directly.
package kibana

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-resty/resty/v2"

	"alertscope/internal/alertsapi"
	"alertscope/internal/config"
	"alertscope/internal/domain"
)

const (
	indexPath         = "/internal/rac/alerts/index"
	browserFieldsPath = "/internal/rac/alerts/browser_fields"
	findPath          = "/internal/rac/alerts/find"
)

// Client implements alertsapi.Client against Kibana.
type Client struct {
	http *resty.Client
}

// New creates a Kibana backend from config.
func New(cfg *config.KibanaConfig) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("kbn-xsrf", "true").
		SetHeader("x-elastic-internal-origin", "Kibana").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && (r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500)
		})

	switch {
	case cfg.APIKey != "":
		client.SetAuthScheme("ApiKey").SetAuthToken(cfg.APIKey)
	case cfg.Username != "":
		client.SetBasicAuth(cfg.Username, cfg.Password)
	}

	return &Client{http: client}
}

// Name implements alertsapi.Client.
func (c *Client) Name() string {
	return "kibana"
}

type indexResponse struct {
	IndexName []string `json:"index_name"`
}

// FetchIndexNames asks Kibana which alerts indices the user can read for the features.
func (c *Client) FetchIndexNames(ctx context.Context, featureIDs []domain.FeatureID) ([]string, error) {
	var out indexResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("features", joinFeatures(featureIDs)).
		SetResult(&out).
		Get(indexPath)
	if err := checkResponse(ctx, resp, err); err != nil {
		return nil, fmt.Errorf("failed to fetch alerts index names: %w", err)
	}

	names := append([]string{}, out.IndexName...)
	sort.Strings(names)
	return names, nil
}

// FetchFields loads the browser fields and field specs for the features.
func (c *Client) FetchFields(ctx context.Context, featureIDs []domain.FeatureID) (*domain.AlertsFields, error) {
	req := c.http.R().SetContext(ctx)
	for _, f := range featureIDs {
		req.QueryParam.Add("featureIds", string(f))
	}

	var out domain.AlertsFields
	resp, err := req.SetResult(&out).Get(browserFieldsPath)
	if err := checkResponse(ctx, resp, err); err != nil {
		return nil, fmt.Errorf("failed to fetch alerts fields: %w", err)
	}

	if out.BrowserFields == nil {
		out.BrowserFields = domain.BrowserFields{}
	}
	if out.Fields == nil {
		out.Fields = []domain.FieldSpec{}
	}
	alertsapi.SortFields(out.Fields)
	return &out, nil
}

type findRequest struct {
	FeatureIDs      []domain.FeatureID             `json:"feature_ids"`
	Query           map[string]any                 `json:"query"`
	Sort            []domain.SortClause            `json:"sort"`
	Size            int                            `json:"size"`
	From            int                            `json:"from"`
	TrackTotalHits  bool                           `json:"track_total_hits"`
	Fields          []domain.FieldDescriptor       `json:"fields,omitempty"`
	RuntimeMappings map[string]domain.RuntimeField `json:"runtime_mappings,omitempty"`
}

type findHit struct {
	ID     string           `json:"_id"`
	Index  string           `json:"_index"`
	Fields map[string][]any `json:"fields"`
	Source map[string]any   `json:"_source"`
}

type findResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []findHit `json:"hits"`
	} `json:"hits"`
}

// SearchAlerts runs one page of an alerts search through the find endpoint.
func (c *Client) SearchAlerts(ctx context.Context, params domain.SearchAlertsParams) (*domain.SearchAlertsResult, error) {
	params = params.WithDefaults()
	if len(params.FeatureIDs) == 0 {
		return alertsapi.ShapeResult(0, nil), nil
	}

	fields := params.Fields
	if len(fields) == 0 {
		fields = alertsapi.DefaultFields()
	}

	var out findResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(findRequest{
			FeatureIDs:      params.FeatureIDs,
			Query:           params.Query,
			Sort:            params.Sort,
			Size:            params.PageSize,
			From:            params.From(),
			TrackTotalHits:  true,
			Fields:          fields,
			RuntimeMappings: params.RuntimeMappings,
		}).
		SetResult(&out).
		Post(findPath)
	if err := checkResponse(ctx, resp, err); err != nil {
		return nil, fmt.Errorf("failed to search alerts: %w", err)
	}

	hits := make([]alertsapi.Hit, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		values := h.Fields
		// Older Kibana versions answer with _source only.
		if len(values) == 0 && len(h.Source) > 0 {
			values = flattenSource("", h.Source, map[string][]any{})
		}
		hits = append(hits, alertsapi.Hit{ID: h.ID, Index: h.Index, Fields: values})
	}

	return alertsapi.ShapeResult(out.Hits.Total.Value, hits), nil
}

// flattenSource turns a nested _source document into dotted field names
// mapped to value lists, the shape of the fields API.
func flattenSource(prefix string, src map[string]any, out map[string][]any) map[string][]any {
	for k, v := range src {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flattenSource(name, val, out)
		case []any:
			out[name] = append(out[name], val...)
		default:
			out[name] = append(out[name], val)
		}
	}
	return out
}

func joinFeatures(ids []domain.FeatureID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ",")
}

// checkResponse folds transport errors and error statuses into one error.
// 5xx and 429 answers wrap alertsapi.ErrBackendUnavailable.
func checkResponse(ctx context.Context, resp *resty.Response, err error) error {
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %v", alertsapi.ErrBackendUnavailable, err)
	}
	if !resp.IsError() {
		return nil
	}
	if resp.StatusCode() >= 500 || resp.StatusCode() == http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d: %s", alertsapi.ErrBackendUnavailable, resp.StatusCode(), resp.String())
	}
	return fmt.Errorf("kibana returned status %d: %s", resp.StatusCode(), resp.String())
}
