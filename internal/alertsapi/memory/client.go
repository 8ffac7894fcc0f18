// Package memory provides an in-memory alerts backend.
// This is useful for testing and development without Elasticsearch.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"alertscope/internal/alertsapi"
	"alertscope/internal/domain"
	"alertscope/schema"
)

// Client serves alerts searches, index names and fields from documents held in memory.
// This implementation is safe for concurrent use.
type Client struct {
	mu   sync.RWMutex
	docs []schema.Document
	now  func() time.Time
}

// NewClient creates an in-memory backend holding docs.
func NewClient(docs []schema.Document) *Client {
	return &Client{
		docs: append([]schema.Document{}, docs...),
		now:  time.Now,
	}
}

// Name implements alertsapi.Client.
func (c *Client) Name() string {
	return "memory"
}

// Add appends documents to the backend.
func (c *Client) Add(docs ...schema.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.docs = append(c.docs, docs...)
}

// Len returns the number of stored documents.
func (c *Client) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.docs)
}

// SearchAlerts evaluates the query against the documents of the requested
// features, then sorts and pages the matches.
func (c *Client) SearchAlerts(ctx context.Context, params domain.SearchAlertsParams) (*domain.SearchAlertsResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params = params.WithDefaults()

	features := make(map[domain.FeatureID]struct{}, len(params.FeatureIDs))
	for _, f := range params.FeatureIDs {
		features[f] = struct{}{}
	}

	m := &matcher{fieldTypes: schema.FieldTypes, now: c.now()}

	c.mu.RLock()
	var matched []schema.Document
	for _, doc := range c.docs {
		if _, ok := features[doc.Feature]; !ok {
			continue
		}
		ok, err := m.match(params.Query, doc.Fields)
		if err != nil {
			c.mu.RUnlock()
			return nil, fmt.Errorf("failed to evaluate query: %w", err)
		}
		if ok {
			matched = append(matched, doc)
		}
	}
	c.mu.RUnlock()

	sortDocuments(matched, params.Sort)

	from, to := pageBounds(params.PageIndex, params.PageSize, len(matched))

	hits := make([]alertsapi.Hit, 0, to-from)
	for _, doc := range matched[from:to] {
		hits = append(hits, alertsapi.Hit{
			ID:     doc.ID,
			Index:  doc.Index,
			Fields: selectFields(doc.Fields, params.Fields),
		})
	}

	return alertsapi.ShapeResult(len(matched), hits), nil
}

// FetchIndexNames returns the default-space alerts index of each feature.
func (c *Client) FetchIndexNames(ctx context.Context, featureIDs []domain.FeatureID) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(featureIDs))
	names := make([]string, 0, len(featureIDs))
	for _, f := range featureIDs {
		index, ok := schema.ConcreteIndex(f)
		if !ok {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidFeatureID, f)
		}
		if _, dup := seen[index]; dup {
			continue
		}
		seen[index] = struct{}{}
		names = append(names, index)
	}
	return names, nil
}

// FetchFields returns the alert document fields as field specs and browser fields.
func (c *Client) FetchFields(ctx context.Context, featureIDs []domain.FeatureID) (*domain.AlertsFields, error) {
	indexes, err := c.FetchIndexNames(ctx, featureIDs)
	if err != nil {
		return nil, err
	}

	fields := fieldSpecs()
	return &domain.AlertsFields{
		BrowserFields: alertsapi.BuildBrowserFields(fields, indexes),
		Fields:        fields,
	}, nil
}

// FieldsForIndices returns the alert document field specs. Every alerts index
// shares the same mapping, so indices only need to be non-empty.
func (c *Client) FieldsForIndices(ctx context.Context, indices []string) ([]domain.FieldSpec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(indices) == 0 {
		return []domain.FieldSpec{}, nil
	}
	return fieldSpecs(), nil
}

func fieldSpecs() []domain.FieldSpec {
	fields := make([]domain.FieldSpec, 0, len(schema.FieldTypes))
	for name, esType := range schema.FieldTypes {
		text := esType == "text" || esType == "match_only_text"
		fields = append(fields, domain.FieldSpec{
			Name:              name,
			Type:              alertsapi.KibanaType([]string{esType}),
			ESTypes:           []string{esType},
			Searchable:        true,
			Aggregatable:      !text,
			ReadFromDocValues: !text,
		})
	}
	alertsapi.SortFields(fields)
	return fields
}

func sortDocuments(docs []schema.Document, sortBy []domain.SortClause) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, s := range sortBy {
			a := first(docs[i].Fields[s.Field])
			b := first(docs[j].Fields[s.Field])
			c := compareValues(a, b)
			if c == 0 {
				continue
			}
			if s.Order == domain.SortDesc {
				return c > 0
			}
			return c < 0
		}
		return docs[i].ID < docs[j].ID
	})
}

func first(v any) any {
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return nil
		}
		return list[0]
	}
	return v
}

// selectFields returns the requested fields in the fields-API shape, where
// every value is a list. A trailing "*" matches by prefix.
func selectFields(fields map[string]any, requested []domain.FieldDescriptor) map[string][]any {
	if len(requested) == 0 {
		requested = alertsapi.DefaultFields()
	}
	out := make(map[string][]any, len(fields))
	for name, value := range fields {
		if !fieldRequested(name, requested) {
			continue
		}
		if list, ok := value.([]any); ok {
			out[name] = append([]any{}, list...)
		} else {
			out[name] = []any{value}
		}
	}
	return out
}

func fieldRequested(name string, requested []domain.FieldDescriptor) bool {
	for _, r := range requested {
		if r.Field == name {
			return true
		}
		if prefix, ok := strings.CutSuffix(r.Field, "*"); ok && strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// pageBounds returns the slice bounds of a page within n matches, clamped
// to [0, n] even when the page offset does not fit in an int.
func pageBounds(pageIndex, pageSize, n int) (int, int) {
	if pageIndex < 0 || pageSize <= 0 || pageIndex > (n-1)/pageSize {
		return n, n
	}
	from := pageIndex * pageSize
	return from, from + min(pageSize, n-from)
}
