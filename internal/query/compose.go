package query

import (
	"time"

	"github.com/GregMSThompson/dashboard-service/internal/dto"
	"github.com/GregMSThompson/dashboard-service/internal/filters"
	"github.com/GregMSThompson/dashboard-service/internal/models"
	"github.com/GregMSThompson/dashboard-service/pkg/helpers"
)

// futureSpanDays is how far ahead the "future" window reaches.
const futureSpanDays = 730

// Sources whose records are not tied to CRM entities. The entity-scoping
// filters are meaningless for them and are never forwarded.
var nonCRMSources = map[string]bool{
	"expenses":            true,
	"purchases":           true,
	"total_expenses":      true,
	"expense_trends":      true,
	"expense_by_category": true,
	"purchase_orders":     true,
	"vendor_spending":     true,
}

// Sources that list upcoming events; their month window is never clipped to today.
var forwardLookingSources = map[string]bool{
	"upcoming_jobs": true,
	"site_visits":   true,
}

var entityScopedKeys = map[string]bool{
	filters.KeyRep:      true,
	filters.KeyBranch:   true,
	filters.KeyCustomer: true,
	filters.KeySource:   true,
}

func IsNonCRM(source string) bool { return nonCRMSources[source] }

func IsForwardLooking(source string) bool { return forwardLookingSources[source] }

// Compose builds the analytics request for one widget from the current
// filter snapshot. now is injected so windows are reproducible.
//
// An explicit widget time range wins outright and is never clipped.
// Otherwise the month selected by the "date" filter (the current month when
// unset) is used, with its end clipped to today unless the source is
// forward-looking or the widget is a calendar.
func Compose(w models.Widget, snap filters.Snapshot, now time.Time) dto.QueryRequest {
	req := dto.QueryRequest{Source: w.DataSource}
	today := helpers.Day(now)

	if tr := w.Config.TimeRange; tr != "" {
		start, end := overrideWindow(tr, today)
		req.TimeRange = tr
		req.StartDate = helpers.FormatDate(start)
		req.EndDate = helpers.FormatDate(end)
	} else {
		start, end := monthWindow(snap, today)
		if end.After(today) && !start.After(today) && !IsForwardLooking(w.DataSource) && w.Kind != models.KindCalendar {
			end = today
		}
		req.StartDate = helpers.FormatDate(start)
		req.EndDate = helpers.FormatDate(end)
	}

	if sc := w.Config.Scope; sc != nil {
		req.BranchID = sc.BranchID
		req.RepID = sc.RepID
	}

	nonCRM := IsNonCRM(w.DataSource)
	for _, key := range snap.Keys() {
		if key == filters.KeyDate {
			continue
		}
		if nonCRM && entityScopedKeys[key] {
			continue
		}
		v, _ := snap.Get(key)
		if v.IsEmpty() {
			continue
		}
		if req.Filters == nil {
			req.Filters = map[string]string{}
		}
		req.Filters[key] = v.Flat()
	}
	return req
}

// overrideWindow resolves an explicit time range anchored on today. all_time
// and unknown values carry no dates.
func overrideWindow(tr string, today time.Time) (start, end time.Time) {
	after := today.AddDate(0, 0, 1)
	switch tr {
	case models.TimeRangeLast7Days:
		return today.AddDate(0, 0, -7), today
	case models.TimeRangeLast30Days:
		return helpers.AddMonths(after, -1), today
	case models.TimeRangeLast90Days:
		return helpers.AddMonths(after, -3), today
	case models.TimeRangeLast6Months:
		return helpers.AddMonths(after, -6), today
	case models.TimeRangeLast12Months:
		return helpers.AddMonths(after, -12), today
	case models.TimeRangeThisYear:
		return helpers.StartOfYear(today), today
	case models.TimeRangeFuture:
		return today, today.AddDate(0, 0, futureSpanDays)
	}
	return time.Time{}, time.Time{}
}

// monthWindow returns the calendar month selected by the "date" filter.
func monthWindow(snap filters.Snapshot, today time.Time) (start, end time.Time) {
	anchor := today
	if v, ok := snap.Get(filters.KeyDate); ok {
		if a, ok := v.Anchor(); ok {
			anchor = time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, today.Location())
		}
	}
	return helpers.StartOfMonth(anchor), helpers.EndOfMonth(anchor)
}
