package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/GregMSThompson/dashboard-service/internal/errs"
)

// Time window overrides a widget may declare instead of following the
// dashboard period.
const (
	TimeRangeLast7Days    = "last_7_days"
	TimeRangeLast30Days   = "last_30_days"
	TimeRangeLast90Days   = "last_90_days"
	TimeRangeLast6Months  = "last_6_months"
	TimeRangeLast12Months = "last_12_months"
	TimeRangeThisYear     = "this_year"
	TimeRangeAllTime      = "all_time"
	TimeRangeFuture       = "future"
)

var TimeRanges = []string{
	TimeRangeLast7Days, TimeRangeLast30Days, TimeRangeLast90Days,
	TimeRangeLast6Months, TimeRangeLast12Months, TimeRangeThisYear,
	TimeRangeAllTime, TimeRangeFuture,
}

// Click actions.
const (
	ClickFilterDashboard = "filter_dashboard"
	ClickNone            = "none"
)

// WidgetConfig is a tagged union keyed by the widget's kind. The shared
// settings apply to every kind; exactly one of the per-kind settings may be
// set and it must match the kind. Extra carries open-ended values that have no
// typed home.
type WidgetConfig struct {
	Style     *Style        `firestore:"style,omitempty" json:"style,omitempty"`
	TimeRange string        `firestore:"timeRange,omitempty" json:"timeRange,omitempty"`
	Scope     *Scope        `firestore:"scope,omitempty" json:"scope,omitempty"`
	Click     *ClickThrough `firestore:"click,omitempty" json:"click,omitempty"`

	Metric   *MetricSettings   `firestore:"metric,omitempty" json:"metric,omitempty"`
	Chart    *ChartSettings    `firestore:"chart,omitempty" json:"chart,omitempty"`
	Table    *TableSettings    `firestore:"table,omitempty" json:"table,omitempty"`
	Calendar *CalendarSettings `firestore:"calendar,omitempty" json:"calendar,omitempty"`
	Control  *ControlSettings  `firestore:"control,omitempty" json:"control,omitempty"`

	Extra map[string]any `firestore:"extra,omitempty" json:"extra,omitempty"`
}

type Style struct {
	BackgroundColor string `firestore:"backgroundColor,omitempty" json:"backgroundColor,omitempty"`
	TextColor       string `firestore:"textColor,omitempty" json:"textColor,omitempty"`
	AccentColor     string `firestore:"accentColor,omitempty" json:"accentColor,omitempty"`
}

// Scope pins a widget to a branch or rep regardless of the global filters.
type Scope struct {
	BranchID string `firestore:"branchId,omitempty" json:"branchId,omitempty"`
	RepID    string `firestore:"repId,omitempty" json:"repId,omitempty"`
}

type ClickThrough struct {
	Enabled   bool   `firestore:"enabled" json:"enabled"`
	Action    string `firestore:"action,omitempty" json:"action,omitempty"`
	TargetKey string `firestore:"targetKey,omitempty" json:"targetKey,omitempty"`
}

// FiltersDashboard reports whether activating an item should filter the dashboard.
func (c *ClickThrough) FiltersDashboard() bool {
	return c != nil && c.Enabled && (c.Action == "" || c.Action == ClickFilterDashboard)
}

type MetricSettings struct {
	Targets    *Targets    `firestore:"targets,omitempty" json:"targets,omitempty"`
	Thresholds *Thresholds `firestore:"thresholds,omitempty" json:"thresholds,omitempty"`
	ShowGoals  *bool       `firestore:"showGoals,omitempty" json:"showGoals,omitempty"`
	Unit       string      `firestore:"unit,omitempty" json:"unit,omitempty"`
}

type Targets struct {
	Value  *float64 `firestore:"value,omitempty" json:"value,omitempty"`
	Period string   `firestore:"period,omitempty" json:"period,omitempty"`
}

// Thresholds flag a metric as warning/critical. With operator "gt" (the
// default) the metric should stay above the thresholds; with "lt" below them.
type Thresholds struct {
	Operator string   `firestore:"operator,omitempty" json:"operator,omitempty"`
	Warning  *float64 `firestore:"warning,omitempty" json:"warning,omitempty"`
	Critical *float64 `firestore:"critical,omitempty" json:"critical,omitempty"`
}

type ChartSettings struct {
	ChartType string `firestore:"chartType,omitempty" json:"chartType,omitempty"` // line, bar, area, pie
	XAxisKey  string `firestore:"xAxisKey,omitempty" json:"xAxisKey,omitempty"`
	ValueKey  string `firestore:"valueKey,omitempty" json:"valueKey,omitempty"`
	Limit     int    `firestore:"limit,omitempty" json:"limit,omitempty"`
}

type TableSettings struct {
	Limit   int      `firestore:"limit,omitempty" json:"limit,omitempty"`
	Columns []string `firestore:"columns,omitempty" json:"columns,omitempty"`
}

type CalendarSettings struct {
	DateKey string `firestore:"dateKey,omitempty" json:"dateKey,omitempty"`
}

// ControlSettings configure a filter-control widget. DefaultValue seeds the
// filter store on load; Locked suppresses writes; Hidden keeps the filter
// active without rendering the control.
type ControlSettings struct {
	DefaultValue any  `firestore:"defaultValue,omitempty" json:"defaultValue,omitempty"`
	Locked       bool `firestore:"locked,omitempty" json:"locked,omitempty"`
	Hidden       bool `firestore:"hidden,omitempty" json:"hidden,omitempty"`
}

// DefaultConfig returns the starting config for a new widget of kind: the
// house style plus an empty settings struct for the kind's variant.
func DefaultConfig(kind WidgetKind) WidgetConfig {
	cfg := WidgetConfig{
		Style: &Style{BackgroundColor: "#ffffff", TextColor: "#1a1a1a", AccentColor: "#1890ff"},
	}
	switch kind {
	case KindMetric:
		cfg.Metric = &MetricSettings{}
	case KindTrend, KindBreakdown, KindFunnel:
		cfg.Chart = &ChartSettings{}
	case KindTable, KindActivity:
		cfg.Table = &TableSettings{}
	case KindCalendar:
		cfg.Calendar = &CalendarSettings{}
	case KindFilterControl:
		cfg.Control = &ControlSettings{}
		cfg.Style = nil
	}
	return cfg
}

// Validate checks the union tag: only the variant belonging to kind may be
// set, and shared settings must hold known values.
func (c WidgetConfig) Validate(kind WidgetKind) error {
	variants := map[string]bool{
		"metric":   c.Metric != nil,
		"chart":    c.Chart != nil,
		"table":    c.Table != nil,
		"calendar": c.Calendar != nil,
		"control":  c.Control != nil,
	}
	allowed := variantFor(kind)
	for name, set := range variants {
		if set && name != allowed {
			return errs.NewValidationError(fmt.Sprintf("config.%s is not valid for %s widgets", name, kind))
		}
	}
	if c.TimeRange != "" && !validTimeRange(c.TimeRange) {
		return errs.NewValidationError("unknown config.timeRange: " + c.TimeRange)
	}
	if c.Click != nil {
		switch c.Click.Action {
		case "", ClickFilterDashboard, ClickNone:
		default:
			return errs.NewValidationError("unknown config.click.action: " + c.Click.Action)
		}
	}
	if c.Metric != nil && c.Metric.Thresholds != nil {
		switch c.Metric.Thresholds.Operator {
		case "", "gt", "lt":
		default:
			return errs.NewValidationError(`config.metric.thresholds.operator must be "gt" or "lt"`)
		}
	}
	return nil
}

func variantFor(kind WidgetKind) string {
	switch kind {
	case KindMetric:
		return "metric"
	case KindTrend, KindBreakdown, KindFunnel:
		return "chart"
	case KindTable, KindActivity:
		return "table"
	case KindCalendar:
		return "calendar"
	case KindFilterControl:
		return "control"
	}
	return ""
}

func validTimeRange(tr string) bool {
	for _, known := range TimeRanges {
		if tr == known {
			return true
		}
	}
	return false
}

// Merge deep-merges patch into a copy of the config and validates the result
// for kind. Nested objects merge key by key so edits made by unrelated flows
// (styling vs. data binding) survive each other; a null value removes a key.
// Unknown keys are rejected.
func (c WidgetConfig) Merge(kind WidgetKind, patch map[string]any) (WidgetConfig, error) {
	base, err := c.toMap()
	if err != nil {
		return c, err
	}
	merged := deepMerge(base, patch)

	raw, err := json.Marshal(merged)
	if err != nil {
		return c, errs.NewValidationError("config patch is not serialisable: " + err.Error())
	}
	var out WidgetConfig
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return c, errs.NewValidationError("invalid widget config: " + err.Error())
	}
	if err := out.Validate(kind); err != nil {
		return c, err
	}
	return out, nil
}

// Clone returns a deep copy of the config.
func (c WidgetConfig) Clone() WidgetConfig {
	raw, err := json.Marshal(c)
	if err != nil {
		return c
	}
	var out WidgetConfig
	if err := json.Unmarshal(raw, &out); err != nil {
		return c
	}
	return out
}

func (c WidgetConfig) toMap() (map[string]any, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, errs.NewValidationError("config is not serialisable: " + err.Error())
	}
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errs.NewValidationError("config is not serialisable: " + err.Error())
	}
	return m, nil
}

func deepMerge(base, patch map[string]any) map[string]any {
	if base == nil {
		base = map[string]any{}
	}
	for k, v := range patch {
		if v == nil {
			delete(base, k)
			continue
		}
		pm, pIsMap := v.(map[string]any)
		bm, bIsMap := base[k].(map[string]any)
		if pIsMap && bIsMap {
			base[k] = deepMerge(bm, pm)
			continue
		}
		base[k] = v
	}
	return base
}
