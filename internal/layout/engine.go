package layout

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/GregMSThompson/dashboard-service/internal/errs"
	"github.com/GregMSThompson/dashboard-service/internal/models"
)

type Mode string

const (
	ModeViewing Mode = "viewing"
	ModeEditing Mode = "editing"
)

// Persistence stores dashboards on behalf of the engine's owner.
type Persistence interface {
	Save(ctx context.Context, d *models.Dashboard) (*models.Dashboard, error)
	CreateFromTemplate(ctx context.Context, templateID string) (*models.Dashboard, error)
}

// WidgetSpec describes a widget to add. Config is an initial patch applied
// on top of the kind's default config.
type WidgetSpec struct {
	Kind       models.WidgetKind `json:"kind"`
	DataSource string            `json:"dataSource"`
	Title      string            `json:"title"`
	Backend    models.Backend    `json:"renderingBackend,omitempty"`
	Config     map[string]any    `json:"config,omitempty"`
}

// Engine holds the widget collection and geometry of one dashboard and
// tracks whether it is being edited. Mutations stay local until Save.
type Engine struct {
	store Persistence
	newID func() string

	mu      sync.Mutex
	mode    Mode
	saved   *models.Dashboard
	current *models.Dashboard
}

func NewEngine(store Persistence) *Engine {
	return &Engine{
		store: store,
		newID: uuid.NewString,
		mode:  ModeViewing,
	}
}

// Load adopts d as the current and last-saved state, filling in missing
// geometry, and returns to viewing.
func (e *Engine) Load(d *models.Dashboard) {
	d = d.Clone()
	Normalise(d.Widgets)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.saved = d
	e.current = d.Clone()
	e.mode = ModeViewing
}

// Normalise gives every widget without geometry its kind's default size,
// flowing four per row across the grid. Wide widgets are pulled left so
// they stay inside the grid.
func Normalise(widgets []models.Widget) {
	for i := range widgets {
		if !widgets[i].Layout.IsZero() {
			continue
		}
		size := models.DefaultSize(widgets[i].Kind)
		x := (i * 3) % models.GridColumns
		if x+size.W > models.GridColumns {
			x = models.GridColumns - size.W
		}
		widgets[i].Layout = models.Layout{
			X: x,
			Y: (i / 4) * size.H,
			W: size.W,
			H: size.H,
		}
	}
}

func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Dashboard returns a copy of the current state.
func (e *Engine) Dashboard() *models.Dashboard {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.Clone()
}

// Dirty reports unsaved local changes.
func (e *Engine) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode == ModeEditing && !sameWidgets(e.saved, e.current)
}

func (e *Engine) BeginEdit() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return errs.NewValidationError("no dashboard loaded")
	}
	if e.current.IsTemplate {
		return errs.NewReadOnlyError("templates cannot be edited; create a dashboard from it instead")
	}
	if e.current.IsLocked {
		return errs.NewReadOnlyError("dashboard is locked")
	}
	e.mode = ModeEditing
	return nil
}

// CancelEdit discards local changes and returns to viewing.
func (e *Engine) CancelEdit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.saved != nil {
		e.current = e.saved.Clone()
	}
	e.mode = ModeViewing
}

// EndEdit returns to viewing, keeping unsaved changes in place.
func (e *Engine) EndEdit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = ModeViewing
}

// AddWidget appends a widget with a fresh id and the kind's default size,
// placed at the left edge below the lowest widget.
func (e *Engine) AddWidget(spec WidgetSpec) (models.Widget, error) {
	if !spec.Kind.Valid() {
		return models.Widget{}, errs.NewValidationError("unknown widget kind: " + string(spec.Kind))
	}
	if !spec.Backend.Valid() {
		return models.Widget{}, errs.NewValidationError("unknown rendering backend: " + string(spec.Backend))
	}
	if strings.TrimSpace(spec.DataSource) == "" {
		return models.Widget{}, errs.NewValidationError("dataSource is required")
	}
	if !spec.Kind.AcceptsSource(spec.DataSource) {
		return models.Widget{}, errs.NewValidationError("custom metrics can only back metric widgets")
	}
	cfg := models.DefaultConfig(spec.Kind)
	if len(spec.Config) > 0 {
		merged, err := cfg.Merge(spec.Kind, spec.Config)
		if err != nil {
			return models.Widget{}, err
		}
		cfg = merged
	}
	title := strings.TrimSpace(spec.Title)
	if title == "" {
		title = spec.DataSource
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editingLocked(); err != nil {
		return models.Widget{}, err
	}

	size := models.DefaultSize(spec.Kind)
	w := models.Widget{
		ID:         e.newID(),
		Title:      title,
		Kind:       spec.Kind,
		DataSource: spec.DataSource,
		Backend:    spec.Backend,
		Config:     cfg,
		Layout:     models.Layout{X: 0, Y: bottom(e.current.Widgets), W: size.W, H: size.H},
	}
	e.current.Widgets = append(e.current.Widgets, w)
	return w.Clone(), nil
}

// MoveOrResize replaces the geometry of one widget.
func (e *Engine) MoveOrResize(id string, l models.Layout) error {
	if err := validateLayout(l); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editingLocked(); err != nil {
		return err
	}
	i := e.current.WidgetIndex(id)
	if i < 0 {
		return errs.NewNotFoundError("widget not found: " + id)
	}
	e.current.Widgets[i].Layout = l
	return nil
}

func (e *Engine) RemoveWidget(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editingLocked(); err != nil {
		return err
	}
	i := e.current.WidgetIndex(id)
	if i < 0 {
		return errs.NewNotFoundError("widget not found: " + id)
	}
	e.current.Widgets = append(e.current.Widgets[:i], e.current.Widgets[i+1:]...)
	return nil
}

// ConfigureWidget deep-merges patch into the widget's config.
func (e *Engine) ConfigureWidget(id string, patch map[string]any) (models.Widget, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editingLocked(); err != nil {
		return models.Widget{}, err
	}
	i := e.current.WidgetIndex(id)
	if i < 0 {
		return models.Widget{}, errs.NewNotFoundError("widget not found: " + id)
	}
	w := &e.current.Widgets[i]
	cfg, err := w.Config.Merge(w.Kind, patch)
	if err != nil {
		return models.Widget{}, err
	}
	w.Config = cfg
	return w.Clone(), nil
}

// Save sends the full ordered collection to persistence and adopts the
// stored echo, which may carry renormalised ids. Editing ends on success.
// Concurrent saves from other sessions are not detected; the last one wins.
func (e *Engine) Save(ctx context.Context) (*models.Dashboard, error) {
	e.mu.Lock()
	if err := e.editingLocked(); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	draft := e.current.Clone()
	e.mu.Unlock()

	saved, err := e.store.Save(ctx, draft)
	if err != nil {
		return nil, err
	}
	e.Load(saved)
	return saved.Clone(), nil
}

// CreateFromTemplate clones a template through persistence and adopts the
// new dashboard in viewing mode.
func (e *Engine) CreateFromTemplate(ctx context.Context, templateID string) (*models.Dashboard, error) {
	d, err := e.store.CreateFromTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	e.Load(d)
	return d.Clone(), nil
}

func (e *Engine) editingLocked() error {
	if e.current == nil {
		return errs.NewValidationError("no dashboard loaded")
	}
	if e.mode != ModeEditing {
		return errs.NewReadOnlyError("dashboard is not in edit mode")
	}
	return nil
}

func bottom(widgets []models.Widget) int {
	maxY := 0
	for _, w := range widgets {
		if b := w.Layout.Bottom(); b > maxY {
			maxY = b
		}
	}
	return maxY
}

func validateLayout(l models.Layout) error {
	switch {
	case l.W < 1 || l.H < 1:
		return errs.NewValidationError("layout width and height must be positive")
	case l.X < 0 || l.Y < 0:
		return errs.NewValidationError("layout position must not be negative")
	case l.X+l.W > models.GridColumns:
		return errs.NewValidationError(fmt.Sprintf("layout exceeds the %d-column grid", models.GridColumns))
	}
	return nil
}

func sameWidgets(a, b *models.Dashboard) bool {
	if a == nil || b == nil {
		return a == b
	}
	return reflect.DeepEqual(a.Widgets, b.Widgets)
}
