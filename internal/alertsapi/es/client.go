// Package es provides the Elasticsearch alerts backend. It searches the
// alerts indices directly and resolves index names and field capabilities.
package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"alertscope/internal/alertsapi"
	"alertscope/internal/config"
	"alertscope/internal/domain"
)

// Client implements alertsapi.Client against Elasticsearch.
type Client struct {
	es *elasticsearch.Client
}

// New creates an Elasticsearch backend from config.
func New(cfg *config.ElasticsearchConfig) (*Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &Client{es: client}, nil
}

// NewWithClient wraps an existing go-elasticsearch client.
func NewWithClient(client *elasticsearch.Client) *Client {
	return &Client{es: client}
}

// Name implements alertsapi.Client.
func (c *Client) Name() string {
	return "elasticsearch"
}

// ES returns the underlying go-elasticsearch client.
func (c *Client) ES() *elasticsearch.Client {
	return c.es
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []alertsapi.Hit `json:"hits"`
	} `json:"hits"`
}

// SearchAlerts runs one page of an alerts search over the features' index patterns.
func (c *Client) SearchAlerts(ctx context.Context, params domain.SearchAlertsParams) (*domain.SearchAlertsResult, error) {
	params = params.WithDefaults()
	indices := domain.AlertsIndexPatterns(params.FeatureIDs)
	if len(indices) == 0 {
		return alertsapi.ShapeResult(0, nil), nil
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(alertsapi.SearchBody(params)); err != nil {
		return nil, fmt.Errorf("failed to encode search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(indices...),
		c.es.Search.WithBody(&buf),
		c.es.Search.WithIgnoreUnavailable(true),
		c.es.Search.WithAllowNoIndices(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search alerts: %w", wrapTransport(ctx, err))
	}
	defer res.Body.Close()

	if err := checkResponse(res); err != nil {
		return nil, fmt.Errorf("failed to search alerts: %w", err)
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	return alertsapi.ShapeResult(r.Hits.Total.Value, r.Hits.Hits), nil
}

type resolveResponse struct {
	Indices []struct {
		Name    string   `json:"name"`
		Aliases []string `json:"aliases"`
	} `json:"indices"`
	Aliases []struct {
		Name string `json:"name"`
	} `json:"aliases"`
	DataStreams []struct {
		Name string `json:"name"`
	} `json:"data_streams"`
}

// FetchIndexNames resolves the features' index patterns to alias, data stream
// and index names, sorted and deduplicated.
func (c *Client) FetchIndexNames(ctx context.Context, featureIDs []domain.FeatureID) ([]string, error) {
	patterns := domain.AlertsIndexPatterns(featureIDs)
	if len(patterns) == 0 {
		return []string{}, nil
	}

	res, err := c.es.Indices.ResolveIndex(patterns, c.es.Indices.ResolveIndex.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve alerts indices: %w", wrapTransport(ctx, err))
	}
	defer res.Body.Close()

	if err := checkResponse(res); err != nil {
		return nil, fmt.Errorf("failed to resolve alerts indices: %w", err)
	}

	var r resolveResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to decode resolve response: %w", err)
	}

	seen := make(map[string]struct{})
	add := func(name string) {
		if name != "" {
			seen[name] = struct{}{}
		}
	}
	for _, a := range r.Aliases {
		add(a.Name)
	}
	for _, ds := range r.DataStreams {
		add(ds.Name)
	}
	for _, idx := range r.Indices {
		// Concrete indices behind an alias are reachable through the alias.
		if len(idx.Aliases) == 0 {
			add(idx.Name)
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

type fieldCapsResponse struct {
	Indices []string `json:"indices"`
	Fields  map[string]map[string]struct {
		Type          string `json:"type"`
		Searchable    bool   `json:"searchable"`
		Aggregatable  bool   `json:"aggregatable"`
		MetadataField bool   `json:"metadata_field"`
	} `json:"fields"`
}

// FetchFields loads field capabilities for the features' index patterns.
func (c *Client) FetchFields(ctx context.Context, featureIDs []domain.FeatureID) (*domain.AlertsFields, error) {
	fields, indices, err := c.fieldCaps(ctx, domain.AlertsIndexPatterns(featureIDs))
	if err != nil {
		return nil, err
	}
	return &domain.AlertsFields{
		BrowserFields: alertsapi.BuildBrowserFields(fields, indices),
		Fields:        fields,
	}, nil
}

// FieldsForIndices loads the field specs of arbitrary indices or patterns.
// Data view construction uses it when a spec carries no fields.
func (c *Client) FieldsForIndices(ctx context.Context, indices []string) ([]domain.FieldSpec, error) {
	fields, _, err := c.fieldCaps(ctx, indices)
	return fields, err
}

func (c *Client) fieldCaps(ctx context.Context, indices []string) ([]domain.FieldSpec, []string, error) {
	res, err := c.es.FieldCaps(
		c.es.FieldCaps.WithContext(ctx),
		c.es.FieldCaps.WithIndex(indices...),
		c.es.FieldCaps.WithFields("*"),
		c.es.FieldCaps.WithIgnoreUnavailable(true),
		c.es.FieldCaps.WithAllowNoIndices(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch field caps: %w", wrapTransport(ctx, err))
	}
	defer res.Body.Close()

	if err := checkResponse(res); err != nil {
		return nil, nil, fmt.Errorf("failed to fetch field caps: %w", err)
	}

	var r fieldCapsResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, nil, fmt.Errorf("failed to decode field caps response: %w", err)
	}

	fields := make([]domain.FieldSpec, 0, len(r.Fields))
	for name, caps := range r.Fields {
		if strings.HasPrefix(name, "_") && name != "_id" && name != "_index" {
			continue
		}
		spec := domain.FieldSpec{Name: name, Searchable: true, Aggregatable: true}
		skip := false
		for esType, fc := range caps {
			if esType == "object" || esType == "unmapped" {
				skip = true
				break
			}
			spec.ESTypes = append(spec.ESTypes, esType)
			spec.Searchable = spec.Searchable && fc.Searchable
			spec.Aggregatable = spec.Aggregatable && fc.Aggregatable
		}
		if skip || len(spec.ESTypes) == 0 {
			continue
		}
		sort.Strings(spec.ESTypes)
		spec.Type = alertsapi.KibanaType(spec.ESTypes)
		spec.ReadFromDocValues = spec.Aggregatable
		fields = append(fields, spec)
	}
	alertsapi.SortFields(fields)
	return fields, r.Indices, nil
}

// checkResponse turns an error response into a Go error. 5xx and 429 answers
// wrap alertsapi.ErrBackendUnavailable.
func checkResponse(res *esapi.Response) error {
	if !res.IsError() {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	if res.StatusCode >= 500 || res.StatusCode == 429 {
		return fmt.Errorf("%w: status %d: %s", alertsapi.ErrBackendUnavailable, res.StatusCode, body)
	}
	return fmt.Errorf("elasticsearch returned status %d: %s", res.StatusCode, body)
}

// wrapTransport keeps context cancellation visible to callers.
func wrapTransport(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %v", alertsapi.ErrBackendUnavailable, err)
}
