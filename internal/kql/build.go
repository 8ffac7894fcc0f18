package kql

import (
	"fmt"
	"strings"

	"alertscope/internal/domain"
)

// ToElasticsearchQuery returns the query DSL for the expression.
// An empty expression yields match_all.
func (e *Expression) ToElasticsearchQuery() map[string]any {
	if e.IsEmpty() {
		return map[string]any{"match_all": map[string]any{}}
	}
	return e.root.Expr.dsl()
}

// ToElasticsearchQuery parses a KQL string and returns its query DSL.
func ToElasticsearchQuery(input string) (map[string]any, error) {
	expr, err := Parse(input)
	if err != nil {
		return nil, err
	}
	return expr.ToElasticsearchQuery(), nil
}

// BuildESQuery combines free-text queries and filters into a single bool query.
// KQL queries and enabled filters go to the filter clause, negated filters to
// must_not, and lucene queries to must as query_string. Any KQL syntax error
// fails the whole build.
func BuildESQuery(queries []domain.Query, filters []domain.Filter) (map[string]any, error) {
	must := []any{}
	filter := []any{}
	mustNot := []any{}

	for _, q := range queries {
		if strings.TrimSpace(q.Query) == "" {
			continue
		}
		switch q.Language {
		case domain.QueryLanguageLucene:
			must = append(must, map[string]any{
				"query_string": map[string]any{
					"query":            q.Query,
					"analyze_wildcard": true,
				},
			})
		case domain.QueryLanguageKuery, "":
			dsl, err := ToElasticsearchQuery(q.Query)
			if err != nil {
				return nil, err
			}
			filter = append(filter, dsl)
		default:
			return nil, fmt.Errorf("%w: unsupported query language %q", ErrSyntax, q.Language)
		}
	}

	for _, f := range filters {
		if f.Meta.Disabled {
			continue
		}
		clause := f.Query
		if clause == nil {
			clause = map[string]any{"match_all": map[string]any{}}
		}
		if f.Meta.Negate {
			mustNot = append(mustNot, clause)
		} else {
			filter = append(filter, clause)
		}
	}

	return map[string]any{
		"bool": map[string]any{
			"must":     must,
			"filter":   filter,
			"should":   []any{},
			"must_not": mustNot,
		},
	}, nil
}

func boolShould(clauses []any) map[string]any {
	return map[string]any{
		"bool": map[string]any{
			"should":               clauses,
			"minimum_should_match": 1,
		},
	}
}

func boolFilter(clauses []any) map[string]any {
	return map[string]any{"bool": map[string]any{"filter": clauses}}
}

func boolMustNot(clause map[string]any) map[string]any {
	return map[string]any{"bool": map[string]any{"must_not": clause}}
}

func (n *orNode) dsl() map[string]any {
	if len(n.Terms) == 1 {
		return n.Terms[0].dsl()
	}
	clauses := make([]any, 0, len(n.Terms))
	for _, t := range n.Terms {
		clauses = append(clauses, t.dsl())
	}
	return boolShould(clauses)
}

func (n *andNode) dsl() map[string]any {
	if len(n.Terms) == 1 {
		return n.Terms[0].dsl()
	}
	clauses := make([]any, 0, len(n.Terms))
	for _, t := range n.Terms {
		clauses = append(clauses, t.dsl())
	}
	return boolFilter(clauses)
}

func (n *notNode) dsl() map[string]any {
	inner := n.Expr.dsl()
	if n.Not {
		return boolMustNot(inner)
	}
	return inner
}

func (p *primary) dsl() map[string]any {
	switch {
	case p.Group != nil:
		return p.Group.dsl()
	case p.Field != nil:
		return p.Field.dsl()
	default:
		return p.Text.textDSL()
	}
}

var rangeOps = map[string]string{
	">":  "gt",
	">=": "gte",
	"<":  "lt",
	"<=": "lte",
}

func (f *fieldExpr) dsl() map[string]any {
	if f.Range != nil {
		return map[string]any{
			"range": map[string]any{
				f.Name: map[string]any{rangeOps[f.Range.Op]: unescape(f.Range.Value)},
			},
		}
	}
	return f.Match.dsl(f.Name)
}

func (v *valueExpr) dsl(field string) map[string]any {
	if v.Group != nil {
		return v.Group.dsl(field)
	}
	return v.Value.fieldDSL(field)
}

func (v *valueOr) dsl(field string) map[string]any {
	if len(v.Terms) == 1 {
		return v.Terms[0].dsl(field)
	}
	clauses := make([]any, 0, len(v.Terms))
	for _, t := range v.Terms {
		clauses = append(clauses, t.dsl(field))
	}
	return boolShould(clauses)
}

func (v *valueAnd) dsl(field string) map[string]any {
	if len(v.Terms) == 1 {
		return v.Terms[0].dsl(field)
	}
	clauses := make([]any, 0, len(v.Terms))
	for _, t := range v.Terms {
		clauses = append(clauses, t.dsl(field))
	}
	return boolFilter(clauses)
}

func (v *valueNot) dsl(field string) map[string]any {
	inner := v.Value.dsl(field)
	if v.Not {
		return boolMustNot(inner)
	}
	return inner
}

// raw returns the unquoted text of the value and whether it holds an
// unescaped wildcard.
func (v *valueNode) raw() (string, bool, bool) {
	if v.Quoted != nil {
		return *v.Quoted, false, true
	}
	joined := strings.Join(v.Words, " ")
	return unescape(joined), hasWildcard(joined), false
}

func (v *valueNode) fieldDSL(field string) map[string]any {
	text, wildcard, quoted := v.raw()
	switch {
	case quoted:
		return map[string]any{"match_phrase": map[string]any{field: text}}
	case text == "*" && wildcard:
		return map[string]any{"exists": map[string]any{"field": field}}
	case wildcard:
		return map[string]any{
			"query_string": map[string]any{
				"fields": []any{field},
				"query":  strings.Join(v.Words, " "),
			},
		}
	default:
		return map[string]any{"match": map[string]any{field: text}}
	}
}

func (v *valueNode) textDSL() map[string]any {
	text, wildcard, quoted := v.raw()
	if wildcard {
		return map[string]any{"query_string": map[string]any{"query": strings.Join(v.Words, " ")}}
	}
	matchType := "best_fields"
	if quoted {
		matchType = "phrase"
	}
	return map[string]any{
		"multi_match": map[string]any{
			"type":    matchType,
			"query":   text,
			"lenient": true,
		},
	}
}

func hasWildcard(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			i++
			continue
		}
		if s[i] == '*' {
			return true
		}
	}
	return false
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
