package searchbar

import (
	"fmt"
	"strconv"

	"alertscope/internal/domain"
	"alertscope/internal/kql"
)

// StatusField is the alert field the status selection filters on.
const StatusField = "kibana.alert.status"

// Page selects the window and shape of the alerts requested for a state.
type Page struct {
	FeatureIDs      []domain.FeatureID
	Fields          []domain.FieldDescriptor
	Sort            []domain.SortClause
	RuntimeMappings map[string]domain.RuntimeField
	PageIndex       int
	PageSize        int
}

// StatusKuery returns the KQL expression selecting alerts in status, or an
// empty string for AlertStatusAll.
func StatusKuery(status domain.AlertStatus) string {
	if status == "" || status == domain.AlertStatusAll {
		return ""
	}
	return StatusField + ": " + strconv.Quote(string(status))
}

// BuildQuery combines the time range, status, free-text query and every
// filter of s into one Elasticsearch bool query.
func BuildQuery(s State) (map[string]any, error) {
	if s.Status != "" && !s.Status.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAlertStatus, s.Status)
	}

	queries := []domain.Query{domain.KueryQuery(s.Kuery)}
	if status := StatusKuery(s.Status); status != "" {
		queries = append(queries, domain.KueryQuery(status))
	}

	filters := make([]domain.Filter, 0, len(s.Filters)+len(s.ControlFilters))
	filters = append(filters, s.Filters...)
	filters = append(filters, s.ControlFilters...)

	query, err := kql.BuildESQuery(queries, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to build alerts query: %w", err)
	}

	if s.RangeFrom != "" || s.RangeTo != "" {
		rng := map[string]any{}
		if s.RangeFrom != "" {
			rng["gte"] = s.RangeFrom
		}
		if s.RangeTo != "" {
			rng["lte"] = s.RangeTo
		}
		boolQuery := query["bool"].(map[string]any)
		boolQuery["filter"] = append(boolQuery["filter"].([]any), map[string]any{
			"range": map[string]any{domain.TimestampField: rng},
		})
	}
	return query, nil
}

// BuildSearchParams returns the search for one page of the alerts matching s.
// A state whose query does not build yields an error and must not be fetched.
func BuildSearchParams(s State, page Page) (domain.SearchAlertsParams, error) {
	query, err := BuildQuery(s)
	if err != nil {
		return domain.SearchAlertsParams{}, err
	}
	return domain.SearchAlertsParams{
		FeatureIDs:      append([]domain.FeatureID(nil), page.FeatureIDs...),
		Fields:          page.Fields,
		Query:           query,
		Sort:            page.Sort,
		RuntimeMappings: page.RuntimeMappings,
		PageIndex:       page.PageIndex,
		PageSize:        page.PageSize,
	}, nil
}
