package filtergroup

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"alertscope/internal/domain"
)

// StorageKeySuffix is the last segment of the storage key of a control group.
const StorageKeySuffix = "pageFilters"

// StorageKey returns the key the control group input of a space is stored under.
func StorageKey(spaceID string) string {
	return "unifiedAlerts." + spaceID + "." + StorageKeySuffix
}

// equalOpts treats nil and empty slices and maps as equal.
var equalOpts = []cmp.Option{cmpopts.EquateEmpty()}

// Equal reports whether two values are structurally equal, nil and empty
// collections included.
func Equal(a, b any) bool {
	return cmp.Equal(a, b, equalOpts...)
}

// controlsByField indexes controls by field name.
func controlsByField(controls []domain.FilterItem) map[string]domain.FilterItem {
	m := make(map[string]domain.FilterItem, len(controls))
	for _, c := range controls {
		m[c.FieldName] = c
	}
	return m
}

// overlay applies the values set on control over base. Booleans always come
// from control; title and selected options only when set. Persist is kept
// when either side has it.
func overlay(base, control domain.FilterItem) domain.FilterItem {
	out := base
	out.FieldName = control.FieldName
	if control.Title != "" {
		out.Title = control.Title
	}
	if control.SelectedOptions != nil {
		out.SelectedOptions = append([]string{}, control.SelectedOptions...)
	}
	out.ExistsSelected = control.ExistsSelected
	out.Exclude = control.Exclude
	out.Persist = base.Persist || control.Persist
	return out
}

// MergeControls picks the first non-empty control list by priority and
// reconciles each of its controls with the default control of the same field.
// Duplicate field names keep their first occurrence. It returns nil when every
// source is empty.
func MergeControls(controlsWithPriority [][]domain.FilterItem, defaults []domain.FilterItem) []domain.FilterItem {
	var base []domain.FilterItem
	for _, controls := range controlsWithPriority {
		if len(controls) > 0 {
			base = controls
			break
		}
	}
	if base == nil {
		return nil
	}

	defaultsByField := controlsByField(defaults)
	seen := make(map[string]struct{}, len(base))
	merged := make([]domain.FilterItem, 0, len(base))
	for _, c := range base {
		if _, dup := seen[c.FieldName]; dup || c.FieldName == "" {
			continue
		}
		seen[c.FieldName] = struct{}{}
		if d, ok := defaultsByField[c.FieldName]; ok {
			merged = append(merged, overlay(d, c))
		} else {
			merged = append(merged, overlay(domain.FilterItem{}, c))
		}
	}
	return merged
}

// ReorderControlsWithDefaultControls puts persistent default controls first,
// in default order and carrying any values from controls, followed by the
// remaining controls in their given order.
func ReorderControlsWithDefaultControls(controls, defaults []domain.FilterItem) []domain.FilterItem {
	byField := controlsByField(controls)
	defaultsByField := controlsByField(defaults)

	out := make([]domain.FilterItem, 0, len(controls)+len(defaults))
	for _, d := range defaults {
		if !d.Persist {
			continue
		}
		if c, ok := byField[d.FieldName]; ok {
			out = append(out, overlay(d, c))
		} else {
			out = append(out, cloneItem(d))
		}
	}
	for _, c := range controls {
		if d, ok := defaultsByField[c.FieldName]; ok && d.Persist {
			continue
		}
		out = append(out, cloneItem(c))
	}
	return out
}

// SelectControlsWithPriority resolves the initial controls of a group: URL
// controls, then stored controls, then defaults. Missing selections are
// normalized to empty values before the default order is imposed.
func SelectControlsWithPriority(fromURL, fromStorage, defaults []domain.FilterItem) []domain.FilterItem {
	merged := MergeControls([][]domain.FilterItem{fromURL, fromStorage}, defaults)
	if len(merged) == 0 {
		out := make([]domain.FilterItem, len(defaults))
		for i, d := range defaults {
			out[i] = cloneItem(d)
		}
		return out
	}

	for i := range merged {
		if merged[i].SelectedOptions == nil {
			merged[i].SelectedOptions = []string{}
		}
	}
	return ReorderControlsWithDefaultControls(merged, defaults)
}

// SameFieldOrder reports whether both lists hold the same field names in the
// same order.
func SameFieldOrder(a, b []domain.FilterItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].FieldName != b[i].FieldName {
			return false
		}
	}
	return true
}

// TransformNewControl fills a control added by the user from the default
// control of the same field. The user's title wins when set.
func TransformNewControl(control domain.FilterItem, defaults []domain.FilterItem) domain.FilterItem {
	d, ok := controlsByField(defaults)[control.FieldName]
	if !ok {
		out := cloneItem(control)
		if out.SelectedOptions == nil {
			out.SelectedOptions = []string{}
		}
		return out
	}
	out := cloneItem(d)
	if control.Title != "" {
		out.Title = control.Title
	}
	if out.SelectedOptions == nil {
		out.SelectedOptions = []string{}
	}
	return out
}

func cloneItem(c domain.FilterItem) domain.FilterItem {
	if c.SelectedOptions != nil {
		c.SelectedOptions = append([]string{}, c.SelectedOptions...)
	}
	return c
}

// ControlFilters returns the filters produced by the controls of input, in
// panel order. Controls without a selection produce no filter.
func ControlFilters(input *domain.ControlGroupInput) []domain.Filter {
	filters := []domain.Filter{}
	for _, id := range input.PanelIDs() {
		if f, ok := controlFilter(id, input.Panels[id].Control, input.DataViewID); ok {
			filters = append(filters, f)
		}
	}
	return filters
}

// controlFilter builds the options-list filter of one control: exists when
// "exists" is selected, a phrase for one option, phrases for several.
// Exclude negates the filter.
func controlFilter(id string, c domain.FilterItem, dataViewID string) (domain.Filter, bool) {
	meta := domain.FilterMeta{
		Key:          c.FieldName,
		Index:        dataViewID,
		Negate:       c.Exclude,
		ControlledBy: id,
	}

	switch {
	case c.ExistsSelected:
		meta.Type = domain.FilterTypeExists
		return domain.Filter{
			Meta:  meta,
			Query: map[string]any{"exists": map[string]any{"field": c.FieldName}},
		}, true
	case len(c.SelectedOptions) == 1:
		meta.Type = domain.FilterTypePhrase
		meta.Params = map[string]any{"query": c.SelectedOptions[0]}
		return domain.Filter{
			Meta:  meta,
			Query: matchPhrase(c.FieldName, c.SelectedOptions[0]),
		}, true
	case len(c.SelectedOptions) > 1:
		meta.Type = domain.FilterTypePhrases
		meta.Params = append([]string{}, c.SelectedOptions...)
		should := make([]any, 0, len(c.SelectedOptions))
		for _, opt := range c.SelectedOptions {
			should = append(should, matchPhrase(c.FieldName, opt))
		}
		return domain.Filter{
			Meta: meta,
			Query: map[string]any{"bool": map[string]any{
				"should":               should,
				"minimum_should_match": 1,
			}},
		}, true
	default:
		return domain.Filter{}, false
	}
}

func matchPhrase(field, value string) map[string]any {
	return map[string]any{"match_phrase": map[string]any{field: value}}
}
