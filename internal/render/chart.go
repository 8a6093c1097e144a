package render

import (
	"strconv"
	"strings"

	"github.com/GregMSThompson/dashboard-service/internal/dto"
	"github.com/GregMSThompson/dashboard-service/internal/models"
)

// SeriesChart is drawn by the recharts client: raw points plus the keys to plot.
type SeriesChart struct {
	ChartType string           `json:"chartType"`
	XKey      string           `json:"xKey"`
	YKey      string           `json:"yKey"`
	Points    []map[string]any `json:"points"`
}

// TableChart is drawn by the Google Charts client: a header row followed by
// [label, value] rows.
type TableChart struct {
	ChartType string  `json:"chartType"`
	Rows      [][]any `json:"rows"`
}

func chartSettings(w models.Widget) models.ChartSettings {
	if w.Config.Chart != nil {
		return *w.Config.Chart
	}
	return models.ChartSettings{}
}

func renderRecharts(w models.Widget, p dto.Payload) any {
	cs := chartSettings(w)
	out := SeriesChart{
		ChartType: orDefault(cs.ChartType, "bar"),
		XKey:      orDefault(cs.XAxisKey, "date"),
		YKey:      orDefault(cs.ValueKey, "value"),
		Points:    limit(p.Items, cs.Limit),
	}
	if out.Points == nil {
		out.Points = []map[string]any{}
	}
	return out
}

func renderGoogleChart(w models.Widget, p dto.Payload) any {
	cs := chartSettings(w)
	rows := [][]any{{"Category", "Value"}}
	for _, item := range limit(p.Items, cs.Limit) {
		rows = append(rows, []any{googleLabel(item, cs.XAxisKey), googleValue(item, cs.ValueKey)})
	}
	return TableChart{ChartType: googleChartType(cs.ChartType), Rows: rows}
}

func googleLabel(item map[string]any, xKey string) string {
	keys := []string{"name", "label", "category", "source", "stage", "date"}
	if xKey != "" {
		keys = append([]string{xKey}, keys...)
	}
	if s := firstString(item, keys...); s != "" {
		return s
	}
	return "Unknown"
}

func googleValue(item map[string]any, valueKey string) float64 {
	keys := []string{"value", "count"}
	if valueKey != "" {
		keys = append([]string{valueKey}, keys...)
	}
	for _, k := range keys {
		if n, ok := numberOf(item[k]); ok && n != 0 {
			return n
		}
	}
	return 0
}

func googleChartType(t string) string {
	switch strings.ToLower(t) {
	case "pie", "":
		return "PieChart"
	case "bar":
		return "ColumnChart"
	case "line":
		return "LineChart"
	case "area":
		return "AreaChart"
	case "funnel":
		return "Sankey"
	case "geo":
		return "GeoChart"
	}
	return t
}

func limit(items []map[string]any, n int) []map[string]any {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func firstString(item map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringOf(item[k]); s != "" {
			return s
		}
	}
	return ""
}

// stringOf renders scalar values; maps, slices and nil become "".
func stringOf(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}

func numberOf(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case string:
		n, err := strconv.ParseFloat(x, 64)
		return n, err == nil
	}
	return 0, false
}
