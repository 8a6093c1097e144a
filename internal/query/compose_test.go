package query

import (
	"testing"
	"time"

	"github.com/GregMSThompson/dashboard-service/internal/filters"
	"github.com/GregMSThompson/dashboard-service/internal/models"
)

var fixedNow = time.Date(2026, 10, 18, 14, 30, 0, 0, time.UTC)

func widget(kind models.WidgetKind, source string) models.Widget {
	return models.Widget{ID: "w1", Title: "Widget", Kind: kind, DataSource: source, Config: models.DefaultConfig(kind)}
}

func snapshotOf(values map[string]filters.Value) filters.Snapshot {
	s := filters.NewStore()
	for k, v := range values {
		s.Apply(k, v)
	}
	return s.Snapshot()
}

func TestCompose_NonCRMSourceSuppressesEntityFilters(t *testing.T) {
	snap := snapshotOf(map[string]filters.Value{
		filters.KeyRep:      filters.Number(3),
		filters.KeyBranch:   filters.Number(7),
		filters.KeyCustomer: filters.String("c-1"),
		filters.KeySource:   filters.String("google"),
		"category":          filters.String("fuel"),
	})

	req := Compose(widget(models.KindMetric, "total_expenses"), snap, fixedNow)
	for _, key := range []string{filters.KeyRep, filters.KeyBranch, filters.KeyCustomer, filters.KeySource} {
		if req.HasFilter(key) {
			t.Errorf("non-CRM request carries %s", key)
		}
	}
	if req.Filters["category"] != "fuel" {
		t.Errorf("expected unrelated filter to pass through, got %v", req.Filters)
	}

	req = Compose(widget(models.KindMetric, "total_revenue"), snap, fixedNow)
	vals := req.Values()
	if vals.Get("f_branch_id") != "7" || vals.Get("f_rep_id") != "3" || vals.Get("f_source") != "google" {
		t.Errorf("CRM request missing entity filters: %v", vals)
	}
}

func TestCompose_CurrentMonthEndsToday(t *testing.T) {
	req := Compose(widget(models.KindTrend, "revenue_trend"), filters.NewStore().Snapshot(), fixedNow)
	if req.StartDate != "2026-10-01" || req.EndDate != "2026-10-18" {
		t.Errorf("got %s..%s, want 2026-10-01..2026-10-18", req.StartDate, req.EndDate)
	}
	if req.TimeRange != "" {
		t.Errorf("expected no time range, got %q", req.TimeRange)
	}
}

func TestCompose_MonthWindowFromDateFilter(t *testing.T) {
	tests := []struct {
		name      string
		kind      models.WidgetKind
		source    string
		date      filters.Value
		wantStart string
		wantEnd   string
	}{
		{"past month", models.KindMetric, "total_revenue", filters.String("2026-08"), "2026-08-01", "2026-08-31"},
		{"day in past month", models.KindMetric, "total_revenue", filters.String("2026-02-14"), "2026-02-01", "2026-02-28"},
		{"future month is not clipped", models.KindMetric, "total_revenue", filters.String("2026-12"), "2026-12-01", "2026-12-31"},
		{"range anchors on start", models.KindMetric, "total_revenue",
			filters.Range(time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC), time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)),
			"2026-09-01", "2026-09-30"},
		{"upcoming_jobs calendar keeps full month", models.KindCalendar, "upcoming_jobs", filters.String("2026-10"), "2026-10-01", "2026-10-31"},
		{"forward-looking source keeps full month", models.KindTable, "site_visits", filters.String("2026-10"), "2026-10-01", "2026-10-31"},
		{"calendar keeps full month", models.KindCalendar, "jobs_completed", filters.String("2026-10"), "2026-10-01", "2026-10-31"},
		{"unparseable date falls back to current month", models.KindMetric, "total_revenue", filters.String("soon"), "2026-10-01", "2026-10-18"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := snapshotOf(map[string]filters.Value{filters.KeyDate: tt.date})
			req := Compose(widget(tt.kind, tt.source), snap, fixedNow)
			if req.StartDate != tt.wantStart || req.EndDate != tt.wantEnd {
				t.Errorf("got %s..%s, want %s..%s", req.StartDate, req.EndDate, tt.wantStart, tt.wantEnd)
			}
			if req.HasFilter(filters.KeyDate) {
				t.Error("period selector must not be forwarded as a filter")
			}
		})
	}
}

func TestCompose_TimeRangeOverride(t *testing.T) {
	tests := []struct {
		timeRange string
		wantStart string
		wantEnd   string
	}{
		{models.TimeRangeLast7Days, "2026-10-11", "2026-10-18"},
		{models.TimeRangeLast30Days, "2026-09-19", "2026-10-18"},
		{models.TimeRangeLast90Days, "2026-07-19", "2026-10-18"},
		{models.TimeRangeLast6Months, "2026-04-19", "2026-10-18"},
		{models.TimeRangeLast12Months, "2025-10-19", "2026-10-18"},
		{models.TimeRangeThisYear, "2026-01-01", "2026-10-18"},
		{models.TimeRangeAllTime, "", ""},
		{models.TimeRangeFuture, "2026-10-18", "2028-10-17"},
	}
	// the period selector points at a past month; overrides must ignore it
	snap := snapshotOf(map[string]filters.Value{filters.KeyDate: filters.String("2026-03")})
	for _, tt := range tests {
		t.Run(tt.timeRange, func(t *testing.T) {
			w := widget(models.KindTrend, "revenue_trend")
			w.Config.TimeRange = tt.timeRange
			req := Compose(w, snap, fixedNow)
			if req.StartDate != tt.wantStart || req.EndDate != tt.wantEnd {
				t.Errorf("got %s..%s, want %s..%s", req.StartDate, req.EndDate, tt.wantStart, tt.wantEnd)
			}
			if req.TimeRange != tt.timeRange {
				t.Errorf("expected time_range %q, got %q", tt.timeRange, req.TimeRange)
			}
		})
	}
}

func TestCompose_LocalScopeAndFlatValues(t *testing.T) {
	w := widget(models.KindMetric, "total_expenses")
	w.Config.Scope = &models.Scope{BranchID: "4"}
	snap := snapshotOf(map[string]filters.Value{
		filters.KeyDateRange: filters.Range(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC)),
		"notes":              filters.String("  "),
	})

	req := Compose(w, snap, fixedNow)
	if req.BranchID != "4" || req.RepID != "" {
		t.Errorf("expected fixed branch scope, got branch=%q rep=%q", req.BranchID, req.RepID)
	}
	vals := req.Values()
	if vals.Get("branch_id") != "4" {
		t.Errorf("expected branch_id param, got %v", vals)
	}
	if vals.Get("f_date_range") != "2026-10-01,2026-10-05" {
		t.Errorf("expected flat date range, got %q", vals.Get("f_date_range"))
	}
	if req.HasFilter("notes") {
		t.Error("empty values must be skipped")
	}
}
