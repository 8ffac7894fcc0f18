package alertsapi

import (
	"sort"
	"strings"

	"alertscope/internal/domain"
)

// esToKibanaType maps Elasticsearch field types to data view field types.
var esToKibanaType = map[string]string{
	"keyword":          "string",
	"constant_keyword": "string",
	"wildcard":         "string",
	"text":             "string",
	"match_only_text":  "string",
	"version":          "string",
	"long":             "number",
	"integer":          "number",
	"short":            "number",
	"byte":             "number",
	"double":           "number",
	"float":            "number",
	"half_float":       "number",
	"scaled_float":     "number",
	"unsigned_long":    "number",
	"date":             "date",
	"date_nanos":       "date",
	"boolean":          "boolean",
	"ip":               "ip",
	"geo_point":        "geo_point",
	"geo_shape":        "geo_shape",
	"flattened":        "string",
	"nested":           "nested",
}

// KibanaType returns the data view type for a set of Elasticsearch types.
// Fields mapped with incompatible types across indices are "conflict".
func KibanaType(esTypes []string) string {
	kind := ""
	for _, t := range esTypes {
		k, ok := esToKibanaType[t]
		if !ok {
			k = "unknown"
		}
		if kind != "" && kind != k {
			return "conflict"
		}
		kind = k
	}
	if kind == "" {
		return "unknown"
	}
	return kind
}

// Category returns the browser category of a field: the first segment of a
// dotted name, or "base" for top-level fields.
func Category(field string) string {
	if i := strings.IndexByte(field, '.'); i > 0 {
		return field[:i]
	}
	return "base"
}

// BuildBrowserFields groups field specs by category.
func BuildBrowserFields(fields []domain.FieldSpec, indexes []string) domain.BrowserFields {
	browser := make(domain.BrowserFields)
	for _, f := range fields {
		cat := Category(f.Name)
		group, ok := browser[cat]
		if !ok {
			group = domain.BrowserCategory{Fields: make(map[string]domain.BrowserField)}
			browser[cat] = group
		}
		group.Fields[f.Name] = domain.BrowserField{
			Name:              f.Name,
			Category:          cat,
			Type:              f.Type,
			Indexes:           append([]string{}, indexes...),
			Searchable:        f.Searchable,
			Aggregatable:      f.Aggregatable,
			ReadFromDocValues: f.ReadFromDocValues,
		}
	}
	return browser
}

// SortFields orders field specs by name.
func SortFields(fields []domain.FieldSpec) {
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
}
