package domain

// QueryLanguage is the language of a free-text query.
type QueryLanguage string

const (
	QueryLanguageKuery  QueryLanguage = "kuery"
	QueryLanguageLucene QueryLanguage = "lucene"
)

// Query is a free-text query typed into the search bar.
type Query struct {
	Query    string        `json:"query"`
	Language QueryLanguage `json:"language"`
}

// KueryQuery builds a KQL query.
func KueryQuery(q string) Query {
	return Query{Query: q, Language: QueryLanguageKuery}
}

// FilterType names the predicate shape of a filter.
type FilterType string

const (
	FilterTypePhrase  FilterType = "phrase"
	FilterTypePhrases FilterType = "phrases"
	FilterTypeExists  FilterType = "exists"
	FilterTypeRange   FilterType = "range"
	FilterTypeCustom  FilterType = "custom"
)

// FilterMeta carries the display and behavior flags of a filter.
type FilterMeta struct {
	Alias        string     `json:"alias,omitempty"`
	Disabled     bool       `json:"disabled"`
	Negate       bool       `json:"negate"`
	Key          string     `json:"key,omitempty"`
	Index        string     `json:"index,omitempty"`
	Type         FilterType `json:"type,omitempty"`
	Params       any        `json:"params,omitempty"`
	ControlledBy string     `json:"controlledBy,omitempty"`
}

// Filter is a structured predicate applied on top of the free-text query.
// Query holds the Elasticsearch query DSL of the predicate.
type Filter struct {
	Meta  FilterMeta     `json:"meta"`
	Query map[string]any `json:"query,omitempty"`
}

// TimeRangeMode tells whether a time range is relative or absolute.
type TimeRangeMode string

const (
	TimeRangeRelative TimeRangeMode = "relative"
	TimeRangeAbsolute TimeRangeMode = "absolute"
)

// TimeRange holds date-math or ISO time expressions.
type TimeRange struct {
	From string        `json:"from"`
	To   string        `json:"to"`
	Mode TimeRangeMode `json:"mode,omitempty"`
}

// CloneFilters returns a deep-enough copy of filters so that the caller can
// keep the result without sharing the slice or the query maps' top level.
func CloneFilters(filters []Filter) []Filter {
	if filters == nil {
		return []Filter{}
	}
	out := make([]Filter, len(filters))
	for i, f := range filters {
		out[i] = f
		if f.Query != nil {
			q := make(map[string]any, len(f.Query))
			for k, v := range f.Query {
				q[k] = v
			}
			out[i].Query = q
		}
	}
	return out
}
