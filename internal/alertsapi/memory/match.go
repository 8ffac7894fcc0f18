package memory

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrUnsupportedQuery is returned for query DSL clauses the in-memory matcher
// does not evaluate.
var ErrUnsupportedQuery = errors.New("unsupported query clause")

// matcher evaluates the subset of the query DSL produced by kql.BuildESQuery
// and the filter controls against flattened alert documents.
type matcher struct {
	fieldTypes map[string]string
	now        time.Time
}

func (m *matcher) match(query map[string]any, doc map[string]any) (bool, error) {
	if len(query) == 0 {
		return true, nil
	}
	for kind, body := range query {
		ok, err := m.clause(kind, body, doc)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (m *matcher) clause(kind string, body any, doc map[string]any) (bool, error) {
	switch kind {
	case "match_all":
		return true, nil
	case "match_none":
		return false, nil
	case "bool":
		b, ok := body.(map[string]any)
		if !ok {
			return false, fmt.Errorf("%w: bool body must be an object", ErrUnsupportedQuery)
		}
		return m.boolQuery(b, doc)
	case "match", "match_phrase", "term":
		field, value, err := fieldValue(body, "query", "value")
		if err != nil {
			return false, err
		}
		return m.equals(field, value, doc, kind == "match_phrase"), nil
	case "terms":
		obj, ok := body.(map[string]any)
		if !ok || len(obj) != 1 {
			return false, fmt.Errorf("%w: terms needs exactly one field", ErrUnsupportedQuery)
		}
		for field, raw := range obj {
			values, _ := raw.([]any)
			for _, v := range values {
				if m.equals(field, v, doc, false) {
					return true, nil
				}
			}
		}
		return false, nil
	case "exists":
		obj, _ := body.(map[string]any)
		field, _ := obj["field"].(string)
		return len(docValues(doc, field)) > 0, nil
	case "range":
		obj, ok := body.(map[string]any)
		if !ok || len(obj) != 1 {
			return false, fmt.Errorf("%w: range needs exactly one field", ErrUnsupportedQuery)
		}
		for field, raw := range obj {
			bounds, _ := raw.(map[string]any)
			return m.inRange(field, bounds, doc)
		}
	case "multi_match":
		obj, _ := body.(map[string]any)
		q := fmt.Sprint(obj["query"])
		phrase := obj["type"] == "phrase"
		for field := range doc {
			if m.contains(docValues(doc, field), q, phrase) {
				return true, nil
			}
		}
		return false, nil
	case "query_string":
		obj, _ := body.(map[string]any)
		return m.queryString(obj, doc), nil
	}
	return false, fmt.Errorf("%w: %s", ErrUnsupportedQuery, kind)
}

func (m *matcher) boolQuery(b map[string]any, doc map[string]any) (bool, error) {
	for _, key := range []string{"must", "filter"} {
		for _, c := range clauses(b[key]) {
			ok, err := m.match(c, doc)
			if err != nil || !ok {
				return false, err
			}
		}
	}
	for _, c := range clauses(b["must_not"]) {
		ok, err := m.match(c, doc)
		if err != nil {
			return false, err
		}
		if ok {
			return false, nil
		}
	}

	should := clauses(b["should"])
	if len(should) == 0 {
		return true, nil
	}
	required := 0
	if msm, ok := b["minimum_should_match"]; ok {
		required, _ = strconv.Atoi(fmt.Sprint(msm))
	} else if len(clauses(b["must"])) == 0 && len(clauses(b["filter"])) == 0 {
		required = 1
	}
	matched := 0
	for _, c := range should {
		ok, err := m.match(c, doc)
		if err != nil {
			return false, err
		}
		if ok {
			matched++
		}
	}
	return matched >= required, nil
}

// clauses accepts a single clause object or a list of them.
func clauses(v any) []map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return []map[string]any{t}
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, c := range t {
			if cm, ok := c.(map[string]any); ok {
				out = append(out, cm)
			}
		}
		return out
	case []map[string]any:
		return t
	}
	return nil
}

// fieldValue reads {"field": value} or {"field": {"query"|"value": value}}.
func fieldValue(body any, keys ...string) (string, any, error) {
	obj, ok := body.(map[string]any)
	if !ok || len(obj) != 1 {
		return "", nil, fmt.Errorf("%w: expected exactly one field", ErrUnsupportedQuery)
	}
	for field, raw := range obj {
		if inner, ok := raw.(map[string]any); ok {
			for _, k := range keys {
				if v, ok := inner[k]; ok {
					return field, v, nil
				}
			}
			return "", nil, fmt.Errorf("%w: missing value for %q", ErrUnsupportedQuery, field)
		}
		return field, raw, nil
	}
	return "", nil, nil
}

func docValues(doc map[string]any, field string) []any {
	v, ok := doc[field]
	if !ok || v == nil {
		return nil
	}
	if list, ok := v.([]any); ok {
		return list
	}
	return []any{v}
}

func (m *matcher) isText(field string) bool {
	t := m.fieldTypes[field]
	return t == "text" || t == "match_only_text"
}

func (m *matcher) equals(field string, want any, doc map[string]any, phrase bool) bool {
	values := docValues(doc, field)
	if m.isText(field) {
		return m.contains(values, fmt.Sprint(want), phrase)
	}
	w := fmt.Sprint(want)
	for _, v := range values {
		if fmt.Sprint(v) == w {
			return true
		}
		if a, aok := toFloat(v); aok {
			if b, bok := toFloat(want); bok && a == b {
				return true
			}
		}
	}
	return false
}

// contains reports whether any value holds the phrase, or every word of q when phrase is false.
func (m *matcher) contains(values []any, q string, phrase bool) bool {
	q = strings.ToLower(q)
	for _, v := range values {
		s := strings.ToLower(fmt.Sprint(v))
		if phrase {
			if strings.Contains(s, q) {
				return true
			}
			continue
		}
		all := true
		for _, word := range strings.Fields(q) {
			if !strings.Contains(s, word) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func (m *matcher) queryString(obj map[string]any, doc map[string]any) bool {
	q := strings.ToLower(fmt.Sprint(obj["query"]))
	var fields []string
	if list, ok := obj["fields"].([]any); ok {
		for _, f := range list {
			fields = append(fields, fmt.Sprint(f))
		}
	} else {
		for f := range doc {
			fields = append(fields, f)
		}
	}
	for _, f := range fields {
		for _, v := range docValues(doc, f) {
			s := strings.ToLower(fmt.Sprint(v))
			if ok, _ := path.Match(q, s); ok {
				return true
			}
		}
	}
	return false
}

func (m *matcher) inRange(field string, bounds map[string]any, doc map[string]any) (bool, error) {
	isDate := m.fieldTypes[field] == "date" || m.fieldTypes[field] == "date_nanos"
	for _, v := range docValues(doc, field) {
		ok := true
		for op, bound := range bounds {
			if op == "format" || op == "time_zone" {
				continue
			}
			cmp, err := m.compareBound(v, bound, isDate)
			if err != nil {
				return false, err
			}
			switch op {
			case "gt":
				ok = ok && cmp > 0
			case "gte":
				ok = ok && cmp >= 0
			case "lt":
				ok = ok && cmp < 0
			case "lte":
				ok = ok && cmp <= 0
			default:
				return false, fmt.Errorf("%w: range operator %q", ErrUnsupportedQuery, op)
			}
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (m *matcher) compareBound(v, bound any, isDate bool) (int, error) {
	if isDate {
		t, err := parseDate(fmt.Sprint(v), m.now)
		if err != nil {
			return 0, err
		}
		b, err := parseDate(fmt.Sprint(bound), m.now)
		if err != nil {
			return 0, err
		}
		return t.Compare(b), nil
	}
	return compareValues(v, bound), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// compareValues orders numbers numerically and everything else as strings.
func compareValues(a, b any) int {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

var dateMathRe = regexp.MustCompile(`^now((?:[+-]\d+[smhdwMy])*)(?:/([smhdwMy]))?$`)
var dateMathOpRe = regexp.MustCompile(`([+-])(\d+)([smhdwMy])`)

// parseDate understands RFC3339 timestamps, epoch milliseconds and date math
// relative to now such as "now-24h" or "now-1d/d".
func parseDate(s string, now time.Time) (time.Time, error) {
	if m := dateMathRe.FindStringSubmatch(s); m != nil {
		t := now
		for _, op := range dateMathOpRe.FindAllStringSubmatch(m[1], -1) {
			n, _ := strconv.Atoi(op[2])
			if op[1] == "-" {
				n = -n
			}
			t = addUnit(t, n, op[3])
		}
		if m[2] != "" {
			t = roundDown(t, m[2])
		}
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse date %q", ErrUnsupportedQuery, s)
}

func addUnit(t time.Time, n int, unit string) time.Time {
	switch unit {
	case "s":
		return t.Add(time.Duration(n) * time.Second)
	case "m":
		return t.Add(time.Duration(n) * time.Minute)
	case "h":
		return t.Add(time.Duration(n) * time.Hour)
	case "d":
		return t.AddDate(0, 0, n)
	case "w":
		return t.AddDate(0, 0, 7*n)
	case "M":
		return t.AddDate(0, n, 0)
	case "y":
		return t.AddDate(n, 0, 0)
	}
	return t
}

func roundDown(t time.Time, unit string) time.Time {
	switch unit {
	case "s":
		return t.Truncate(time.Second)
	case "m":
		return t.Truncate(time.Minute)
	case "h":
		return t.Truncate(time.Hour)
	case "d":
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	case "w":
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDate(0, 0, -offset)
	case "M":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	case "y":
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, t.Location())
	}
	return t
}
