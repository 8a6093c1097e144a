package models

// WidgetKind is the visualization kind of a widget.
type WidgetKind string

const (
	KindMetric        WidgetKind = "metric"
	KindTrend         WidgetKind = "trend"
	KindBreakdown     WidgetKind = "breakdown"
	KindFunnel        WidgetKind = "funnel"
	KindTable         WidgetKind = "table"
	KindActivity      WidgetKind = "activity"
	KindCalendar      WidgetKind = "calendar"
	KindFilterControl WidgetKind = "filter-control"
)

// Kinds lists every supported kind in catalog order.
var Kinds = []WidgetKind{
	KindMetric, KindTrend, KindBreakdown, KindFunnel,
	KindTable, KindActivity, KindCalendar, KindFilterControl,
}

func (k WidgetKind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// IsChart reports whether the kind renders through a charting backend.
func (k WidgetKind) IsChart() bool {
	return k == KindTrend || k == KindBreakdown || k == KindFunnel
}

// Backend is the charting engine a chart-kind widget renders with.
type Backend string

const (
	BackendRecharts     Backend = "recharts"
	BackendGoogleCharts Backend = "google_charts"
	BackendNone         Backend = "none"
)

func (b Backend) Valid() bool {
	switch b {
	case BackendRecharts, BackendGoogleCharts, BackendNone, "":
		return true
	}
	return false
}

// Layout is a widget's grid geometry on a 12-column board.
type Layout struct {
	X int `firestore:"x" json:"x"`
	Y int `firestore:"y" json:"y"`
	W int `firestore:"w" json:"w"`
	H int `firestore:"h" json:"h"`
}

// IsZero reports a missing geometry (no width or height).
func (l Layout) IsZero() bool {
	return l.W <= 0 || l.H <= 0
}

// Bottom is the first free row below the widget.
func (l Layout) Bottom() int {
	return l.Y + l.H
}

// GridColumns is the board width in grid units.
const GridColumns = 12

var defaultSizes = map[WidgetKind]Layout{
	KindMetric:        {W: 3, H: 4},
	KindTrend:         {W: 6, H: 8},
	KindBreakdown:     {W: 6, H: 8},
	KindFunnel:        {W: 6, H: 8},
	KindTable:         {W: 6, H: 10},
	KindActivity:      {W: 4, H: 10},
	KindCalendar:      {W: 6, H: 10},
	KindFilterControl: {W: 3, H: 2},
}

// DefaultSize returns the kind's default width and height; unknown kinds get the chart size.
func DefaultSize(kind WidgetKind) Layout {
	if l, ok := defaultSizes[kind]; ok {
		return l
	}
	return defaultSizes[KindTrend]
}

// Widget is one visual unit of a dashboard, stored embedded in its dashboard document.
type Widget struct {
	ID         string       `firestore:"id" json:"id"`
	Title      string       `firestore:"title" json:"title"`
	Kind       WidgetKind   `firestore:"kind" json:"kind"`
	DataSource string       `firestore:"dataSource" json:"dataSource"`
	Backend    Backend      `firestore:"renderingBackend" json:"renderingBackend"`
	Config     WidgetConfig `firestore:"config" json:"config"`
	Layout     Layout       `firestore:"layout" json:"layout"`
}

// Clone returns a deep copy; configs are never shared between widgets.
func (w Widget) Clone() Widget {
	w.Config = w.Config.Clone()
	return w
}
