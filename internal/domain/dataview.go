package domain

import (
	"time"
)

// FieldSpec describes a queryable field of a data view.
type FieldSpec struct {
	Name              string   `json:"name"`
	Type              string   `json:"type"`
	ESTypes           []string `json:"esTypes,omitempty"`
	Searchable        bool     `json:"searchable"`
	Aggregatable      bool     `json:"aggregatable"`
	ReadFromDocValues bool     `json:"readFromDocValues"`
}

// BrowserField is the field representation used by field browsers.
type BrowserField struct {
	Name              string   `json:"name"`
	Category          string   `json:"category"`
	Type              string   `json:"type"`
	Description       string   `json:"description,omitempty"`
	Format            string   `json:"format,omitempty"`
	Indexes           []string `json:"indexes"`
	Searchable        bool     `json:"searchable"`
	Aggregatable      bool     `json:"aggregatable"`
	ReadFromDocValues bool     `json:"readFromDocValues"`
}

// BrowserCategory groups browser fields sharing the first segment of their name.
type BrowserCategory struct {
	Fields map[string]BrowserField `json:"fields"`
}

// BrowserFields maps category name to its fields.
type BrowserFields map[string]BrowserCategory

// AlertsFields is the field metadata for a set of alerts indices.
type AlertsFields struct {
	BrowserFields BrowserFields `json:"browserFields"`
	Fields        []FieldSpec   `json:"fields"`
}

// DataViewSpec is the input for constructing a data view.
// A nil Fields slice asks the data view service to load the fields itself.
type DataViewSpec struct {
	Title         string      `json:"title"`
	TimeFieldName string      `json:"timeFieldName,omitempty"`
	Fields        []FieldSpec `json:"fields,omitempty"`
	AllowNoIndex  bool        `json:"allowNoIndex"`
}

// DataView is a resolved description of which indices and fields are queryable.
type DataView struct {
	ID            string      `json:"id"`
	Title         string      `json:"title"`
	TimeFieldName string      `json:"timeFieldName,omitempty"`
	Fields        []FieldSpec `json:"fields"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Field looks up a field by name.
func (d *DataView) Field(name string) (FieldSpec, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// DataViewState is the observable state of a data view resolution.
type DataViewState struct {
	IsLoading bool      `json:"isLoading"`
	DataView  *DataView `json:"dataView,omitempty"`
}
