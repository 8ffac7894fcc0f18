package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultPageSize is the page size used when a search does not set one.
const DefaultPageSize = 10

// MaxResultWindow is the deepest offset a search may page to, matching the
// default index.max_result_window of Elasticsearch.
const MaxResultWindow = 10000

// TimestampField is the default sort field for alerts.
const TimestampField = "@timestamp"

// Validation errors for SearchAlertsParams.
var (
	ErrNegativePageIndex = errors.New("pageIndex must not be negative")
	ErrNegativePageSize  = errors.New("pageSize must not be negative")
	ErrInvalidSortOrder  = errors.New("sort order must be 'asc' or 'desc'")
	ErrResultWindow      = fmt.Errorf("pageIndex * pageSize + pageSize must not exceed %d", MaxResultWindow)
)

// SortOrder is the direction of a sort clause.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// SortClause sorts on a single field. It serializes as {"<field>": "<order>"}.
type SortClause struct {
	Field string
	Order SortOrder
}

// MarshalJSON implements json.Marshaler.
func (s SortClause) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]SortOrder{s.Field: s.Order})
}

// UnmarshalJSON accepts both {"f": "desc"} and {"f": {"order": "desc"}}.
func (s *SortClause) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid sort clause: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("invalid sort clause: expected exactly one field, got %d", len(raw))
	}
	for field, value := range raw {
		s.Field = field
		var order string
		if err := json.Unmarshal(value, &order); err == nil {
			s.Order = SortOrder(order)
			return nil
		}
		var obj struct {
			Order string `json:"order"`
		}
		if err := json.Unmarshal(value, &obj); err != nil {
			return fmt.Errorf("invalid sort clause for %q: %w", field, err)
		}
		s.Order = SortOrder(obj.Order)
	}
	return nil
}

// FieldDescriptor requests a field in the search response.
type FieldDescriptor struct {
	Field           string `json:"field"`
	IncludeUnmapped bool   `json:"include_unmapped,omitempty"`
	Format          string `json:"format,omitempty"`
}

// RuntimeField is a field computed at search time.
type RuntimeField struct {
	Type   string         `json:"type"`
	Script *RuntimeScript `json:"script,omitempty"`
}

// RuntimeScript is the painless source of a runtime field.
type RuntimeScript struct {
	Source string `json:"source"`
}

// SearchAlertsParams describes one page of an alerts search.
// Field order here defines the serialization order used for query keys.
type SearchAlertsParams struct {
	FeatureIDs      []FeatureID             `json:"featureIds"`
	Fields          []FieldDescriptor       `json:"fields,omitempty"`
	Query           map[string]any          `json:"query,omitempty"`
	Sort            []SortClause            `json:"sort,omitempty"`
	RuntimeMappings map[string]RuntimeField `json:"runtimeMappings,omitempty"`
	PageIndex       int                     `json:"pageIndex"`
	PageSize        int                     `json:"pageSize"`
}

// Validate checks the params for values a search cannot run with.
func (p *SearchAlertsParams) Validate() error {
	if err := ValidateFeatureIDs(p.FeatureIDs); err != nil {
		return err
	}
	if p.PageIndex < 0 {
		return ErrNegativePageIndex
	}
	if p.PageSize < 0 {
		return ErrNegativePageSize
	}
	size := p.PageSize
	if size == 0 {
		size = DefaultPageSize
	}
	// pageIndex*size may overflow int, so compare by division.
	if size > MaxResultWindow || p.PageIndex > (MaxResultWindow-size)/size {
		return fmt.Errorf("%w: pageIndex %d, pageSize %d", ErrResultWindow, p.PageIndex, p.PageSize)
	}
	for _, s := range p.Sort {
		if s.Order != SortAsc && s.Order != SortDesc {
			return fmt.Errorf("%w: %q on %q", ErrInvalidSortOrder, s.Order, s.Field)
		}
	}
	return nil
}

// WithDefaults returns a copy with the query, sort and page size defaults applied.
func (p SearchAlertsParams) WithDefaults() SearchAlertsParams {
	if p.Query == nil {
		p.Query = map[string]any{"bool": map[string]any{}}
	}
	if len(p.Sort) == 0 {
		p.Sort = []SortClause{{Field: TimestampField, Order: SortDesc}}
	}
	if p.PageSize == 0 {
		p.PageSize = DefaultPageSize
	}
	return p
}

// From returns the offset of the first alert on the page.
func (p *SearchAlertsParams) From() int {
	return p.PageIndex * p.PageSize
}
