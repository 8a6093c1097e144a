package dto

import (
	"net/url"
	"sort"
)

// FilterParamPrefix marks global filters on the analytics wire.
const FilterParamPrefix = "f_"

// QueryRequest is one composed analytics query for one widget. It is rebuilt
// on every filter change and never persisted.
type QueryRequest struct {
	Source    string            `json:"source"`
	StartDate string            `json:"startDate,omitempty"`
	EndDate   string            `json:"endDate,omitempty"`
	TimeRange string            `json:"timeRange,omitempty"`
	BranchID  string            `json:"branchId,omitempty"`
	RepID     string            `json:"repId,omitempty"`
	Filters   map[string]string `json:"filters,omitempty"`
}

// Values encodes the request as analytics query parameters; global filters
// are sent as f_<key>.
func (q QueryRequest) Values() url.Values {
	v := url.Values{}
	v.Set("source", q.Source)
	setIf(v, "start_date", q.StartDate)
	setIf(v, "end_date", q.EndDate)
	setIf(v, "time_range", q.TimeRange)
	setIf(v, "branch_id", q.BranchID)
	setIf(v, "rep_id", q.RepID)
	for _, k := range q.FilterKeys() {
		setIf(v, FilterParamPrefix+k, q.Filters[k])
	}
	return v
}

// FilterKeys returns the global filter keys in sorted order.
func (q QueryRequest) FilterKeys() []string {
	keys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasFilter reports whether key travels as a global filter.
func (q QueryRequest) HasFilter(key string) bool {
	_, ok := q.Filters[key]
	return ok
}

func setIf(v url.Values, key, val string) {
	if val != "" {
		v.Set(key, val)
	}
}
