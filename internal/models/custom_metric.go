package models

import (
	"strings"
	"time"
)

// CustomSourcePrefix marks a widget data source backed by a custom metric:
// custom_<metric id>.
const CustomSourcePrefix = "custom_"

// CustomMetric is a user-defined metric computed from other metrics, for
// example {{total_revenue}} / {{num_quotes_accepted}}. Metrics without an
// organisation are global.
type CustomMetric struct {
	ID             string    `firestore:"id" json:"id"`
	OrganizationID string    `firestore:"organizationId" json:"organizationId"`
	Name           string    `firestore:"name" json:"name"`
	Description    string    `firestore:"description" json:"description"`
	Formula        string    `firestore:"formula" json:"formula"`
	Variables      []string  `firestore:"variables" json:"variables"`
	Unit           string    `firestore:"unit,omitempty" json:"unit,omitempty"`
	IsActive       bool      `firestore:"isActive" json:"isActive"`
	CreatedBy      string    `firestore:"createdBy" json:"createdBy"`
	CreatedAt      time.Time `firestore:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt" json:"updatedAt"`
}

// Source is the data source widgets use to show the metric.
func (m *CustomMetric) Source() string { return CustomSourcePrefix + m.ID }

// CustomMetricID extracts the metric id from a custom_<id> data source.
func CustomMetricID(source string) (string, bool) {
	id, ok := strings.CutPrefix(source, CustomSourcePrefix)
	return id, ok && id != ""
}

// AcceptsSource reports whether a widget of kind k can show source. Custom
// metrics compute a single value and only back metric cards.
func (k WidgetKind) AcceptsSource(source string) bool {
	if _, ok := CustomMetricID(source); ok {
		return k == KindMetric
	}
	return true
}
