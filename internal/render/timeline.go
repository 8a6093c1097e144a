package render

import (
	"sort"
	"time"

	"github.com/GregMSThompson/dashboard-service/internal/dto"
	"github.com/GregMSThompson/dashboard-service/internal/models"
	"github.com/GregMSThompson/dashboard-service/pkg/helpers"
)

type Timeline struct {
	Entries []TimelineEntry `json:"entries"`
}

type TimelineEntry struct {
	Title  string         `json:"title"`
	Date   string         `json:"date,omitempty"`
	Amount *float64       `json:"amount,omitempty"`
	Fields map[string]any `json:"fields"`
}

func renderTimeline(w models.Widget, p dto.Payload) any {
	var ts models.TableSettings
	if w.Config.Table != nil {
		ts = *w.Config.Table
	}
	out := Timeline{Entries: []TimelineEntry{}}
	for _, item := range limit(p.Items, ts.Limit) {
		e := TimelineEntry{
			Title:  orDefault(firstString(item, "customer", "title", "name"), "Untitled"),
			Date:   dateOnly(stringOf(item["date"])),
			Fields: project(item, ts.Columns),
		}
		if amt, ok := numberOf(item["amount"]); ok && amt > 0 {
			e.Amount = &amt
		}
		out.Entries = append(out.Entries, e)
	}
	return out
}

// project keeps only the configured columns; no columns keeps everything.
func project(item map[string]any, columns []string) map[string]any {
	if len(columns) == 0 {
		return item
	}
	out := make(map[string]any, len(columns))
	for _, c := range columns {
		if v, ok := item[c]; ok {
			out[c] = v
		}
	}
	return out
}

// CalendarGrid groups events by day for a month grid.
type CalendarGrid struct {
	Days map[string][]CalendarEvent `json:"days"`
}

type CalendarEvent struct {
	Title string         `json:"title"`
	Start string         `json:"start"`
	Raw   map[string]any `json:"raw"`
}

// CalendarHeatmap carries one count per day.
type CalendarHeatmap struct {
	Cells []HeatmapCell `json:"cells"`
}

type HeatmapCell struct {
	Date   string   `json:"date"`
	Count  int      `json:"count"`
	Titles []string `json:"titles,omitempty"`
}

func calendarKey(w models.Widget) string {
	if w.Config.Calendar != nil && w.Config.Calendar.DateKey != "" {
		return w.Config.Calendar.DateKey
	}
	return "start"
}

func renderCalendarGrid(w models.Widget, p dto.Payload) any {
	key := calendarKey(w)
	out := CalendarGrid{Days: map[string][]CalendarEvent{}}
	for _, item := range p.Items {
		day := dateOnly(stringOf(item[key]))
		if day == "" {
			continue
		}
		out.Days[day] = append(out.Days[day], CalendarEvent{
			Title: orDefault(firstString(item, "title", "customer", "name"), "Untitled"),
			Start: stringOf(item[key]),
			Raw:   item,
		})
	}
	return out
}

func renderCalendarHeatmap(w models.Widget, p dto.Payload) any {
	key := calendarKey(w)
	byDay := map[string]*HeatmapCell{}
	for _, item := range p.Items {
		day := dateOnly(stringOf(item[key]))
		if day == "" {
			continue
		}
		cell, ok := byDay[day]
		if !ok {
			cell = &HeatmapCell{Date: day}
			byDay[day] = cell
		}
		cell.Count++
		if t := stringOf(item["title"]); t != "" {
			cell.Titles = append(cell.Titles, t)
		}
	}
	out := CalendarHeatmap{Cells: make([]HeatmapCell, 0, len(byDay))}
	for _, c := range byDay {
		out.Cells = append(out.Cells, *c)
	}
	sort.Slice(out.Cells, func(i, j int) bool { return out.Cells[i].Date < out.Cells[j].Date })
	return out
}

// dateOnly reduces a date or timestamp string to YYYY-MM-DD; unparseable
// input yields "".
func dateOnly(s string) string {
	if s == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", helpers.DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return helpers.FormatDate(t)
		}
	}
	return ""
}
