package render

import (
	"math"
	"strconv"

	"github.com/GregMSThompson/dashboard-service/internal/dto"
	"github.com/GregMSThompson/dashboard-service/internal/models"
)

// Threshold levels.
const (
	LevelHealthy  = "healthy"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

var levelColors = map[string]string{
	LevelHealthy:  "#52c41a",
	LevelWarning:  "#faad14",
	LevelCritical: "#f5222d",
}

type MetricCard struct {
	Value   float64            `json:"value"`
	Display string             `json:"display"`
	Subtext string             `json:"subtext"`
	Trend   *float64           `json:"trend,omitempty"`
	History []dto.HistoryPoint `json:"history,omitempty"`
	Status  *MetricStatus      `json:"status,omitempty"`
	Goal    *GoalProgress      `json:"goal,omitempty"`
}

type MetricStatus struct {
	Level string `json:"level"`
	Color string `json:"color"`
}

type GoalProgress struct {
	Target  float64 `json:"target"`
	Period  string  `json:"period,omitempty"`
	Display string  `json:"display"`
	Percent int     `json:"percent"`
}

func renderMetric(w models.Widget, p dto.Payload) any {
	m := dto.MetricData{}
	if p.Metric != nil {
		m = *p.Metric
	} else if len(p.Items) > 0 {
		m.Value, _ = numberOf(p.Items[0]["value"])
	}

	var settings models.MetricSettings
	if w.Config.Metric != nil {
		settings = *w.Config.Metric
	}
	suffix := m.Suffix
	if suffix == "" {
		suffix = settings.Unit
	}

	card := MetricCard{
		Value:   m.Value,
		Display: m.Prefix + compact(m.Value) + suffix,
		Subtext: m.Subtext,
		History: m.History,
	}
	if card.Subtext == "" {
		card.Subtext = "This period"
	}
	if m.Trend != nil && *m.Trend != 0 {
		card.Trend = m.Trend
	}

	if settings.ShowGoals != nil && !*settings.ShowGoals {
		return card
	}
	if level, ok := thresholdLevel(m.Value, settings.Thresholds); ok {
		card.Status = &MetricStatus{Level: level, Color: levelColors[level]}
	}
	if t := settings.Targets; t != nil && t.Value != nil && *t.Value > 0 {
		card.Goal = &GoalProgress{
			Target:  *t.Value,
			Period:  t.Period,
			Display: m.Prefix + compact(*t.Value) + suffix,
			Percent: goalPercent(m.Value, *t.Value),
		}
	}
	return card
}

// thresholdLevel classifies value. With "gt" a value at or below a threshold
// trips it; with "lt" a value at or above it does.
func thresholdLevel(value float64, th *models.Thresholds) (string, bool) {
	if th == nil || (th.Warning == nil && th.Critical == nil) {
		return "", false
	}
	trips := func(limit *float64) bool {
		if limit == nil {
			return false
		}
		if th.Operator == "lt" {
			return value >= *limit
		}
		return value <= *limit
	}
	switch {
	case trips(th.Critical):
		return LevelCritical, true
	case trips(th.Warning):
		return LevelWarning, true
	}
	return LevelHealthy, true
}

func goalPercent(value, target float64) int {
	pct := int(math.Round(value / target * 100))
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

// compact abbreviates large numbers: 1.2M, 3.4K.
func compact(v float64) string {
	switch abs := math.Abs(v); {
	case abs >= 1_000_000:
		return strconv.FormatFloat(v/1_000_000, 'f', 1, 64) + "M"
	case abs >= 1_000:
		return strconv.FormatFloat(v/1_000, 'f', 1, 64) + "K"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
