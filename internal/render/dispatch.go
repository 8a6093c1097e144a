package render

import (
	"fmt"

	"github.com/GregMSThompson/dashboard-service/internal/dto"
	"github.com/GregMSThompson/dashboard-service/internal/models"
)

// Capability names the client-side component that draws a frame.
type Capability string

const (
	CapMetricCard      Capability = "metric-card"
	CapChartRecharts   Capability = "chart-recharts"
	CapChartGoogle     Capability = "chart-google"
	CapTimeline        Capability = "timeline"
	CapCalendarGrid    Capability = "calendar-grid"
	CapCalendarHeatmap Capability = "calendar-heatmap"
	CapPlaceholder     Capability = "placeholder"
)

type route struct {
	kind    models.WidgetKind
	backend models.Backend
}

// routes maps (kind, backend) to a capability. An empty backend is stored as
// BackendNone before lookup.
var routes = map[route]Capability{}

func init() {
	for _, b := range []models.Backend{models.BackendRecharts, models.BackendGoogleCharts, models.BackendNone} {
		routes[route{models.KindMetric, b}] = CapMetricCard
		routes[route{models.KindTable, b}] = CapTimeline
		routes[route{models.KindActivity, b}] = CapTimeline
	}
	for _, k := range []models.WidgetKind{models.KindTrend, models.KindBreakdown, models.KindFunnel} {
		routes[route{k, models.BackendRecharts}] = CapChartRecharts
		routes[route{k, models.BackendGoogleCharts}] = CapChartGoogle
		routes[route{k, models.BackendNone}] = CapChartGoogle
	}
	routes[route{models.KindCalendar, models.BackendGoogleCharts}] = CapCalendarHeatmap
	routes[route{models.KindCalendar, models.BackendRecharts}] = CapCalendarGrid
	routes[route{models.KindCalendar, models.BackendNone}] = CapCalendarGrid
}

// Resolve looks up the capability for a kind and backend. Unknown
// combinations resolve to the placeholder; they are never an error.
func Resolve(kind models.WidgetKind, backend models.Backend) Capability {
	if backend == "" {
		backend = models.BackendNone
	}
	if c, ok := routes[route{kind, backend}]; ok {
		return c
	}
	return CapPlaceholder
}

// Frame is the render-ready description of one widget.
type Frame struct {
	WidgetID   string        `json:"widgetId"`
	Capability Capability    `json:"capability"`
	Title      string        `json:"title"`
	Style      *models.Style `json:"style,omitempty"`
	Clickable  bool          `json:"clickable"`
	Body       any           `json:"body,omitempty"`
	Diagnostic string        `json:"diagnostic,omitempty"`
}

// Renderer turns a payload into the body of a frame.
type Renderer interface {
	Render(w models.Widget, p dto.Payload) any
}

type RendererFunc func(w models.Widget, p dto.Payload) any

func (f RendererFunc) Render(w models.Widget, p dto.Payload) any { return f(w, p) }

// Dispatcher owns one renderer per capability.
type Dispatcher struct {
	renderers map[Capability]Renderer
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{renderers: map[Capability]Renderer{
		CapMetricCard:      RendererFunc(renderMetric),
		CapChartRecharts:   RendererFunc(renderRecharts),
		CapChartGoogle:     RendererFunc(renderGoogleChart),
		CapTimeline:        RendererFunc(renderTimeline),
		CapCalendarGrid:    RendererFunc(renderCalendarGrid),
		CapCalendarHeatmap: RendererFunc(renderCalendarHeatmap),
	}}
}

// Register replaces the renderer of a capability.
func (d *Dispatcher) Register(c Capability, r Renderer) {
	d.renderers[c] = r
}

// Frame builds the frame for w. A nil payload yields a frame without a body
// (the widget is loading, empty or failed).
func (d *Dispatcher) Frame(w models.Widget, p *dto.Payload) Frame {
	c := Resolve(w.Kind, w.Backend)
	f := Frame{
		WidgetID:   w.ID,
		Capability: c,
		Title:      w.Title,
		Style:      w.Config.Style,
		Clickable:  w.Config.Click.FiltersDashboard(),
	}
	r, ok := d.renderers[c]
	if !ok {
		f.Capability = CapPlaceholder
		f.Clickable = false
		f.Diagnostic = fmt.Sprintf("no renderer for kind %q with backend %q", w.Kind, w.Backend)
		return f
	}
	if p != nil {
		f.Body = r.Render(w, *p)
	}
	return f
}
