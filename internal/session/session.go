package session

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GregMSThompson/dashboard-service/internal/controls"
	"github.com/GregMSThompson/dashboard-service/internal/dto"
	"github.com/GregMSThompson/dashboard-service/internal/errs"
	"github.com/GregMSThompson/dashboard-service/internal/filters"
	"github.com/GregMSThompson/dashboard-service/internal/layout"
	"github.com/GregMSThompson/dashboard-service/internal/models"
	"github.com/GregMSThompson/dashboard-service/internal/query"
	"github.com/GregMSThompson/dashboard-service/internal/render"
	"github.com/GregMSThompson/dashboard-service/pkg/logger"
)

// mountLimit bounds concurrent option fetches while opening a session.
const mountLimit = 8

// Dashboards is the persistence service as sessions use it.
type Dashboards interface {
	GetDashboard(ctx context.Context, caller models.Caller, id string) (*models.Dashboard, error)
	SaveWidgets(ctx context.Context, caller models.Caller, id string, widgets []models.Widget) (*models.Dashboard, error)
	CreateFromTemplate(ctx context.Context, caller models.Caller, templateID string) (*models.Dashboard, error)
}

// persistence binds the service to the session owner for the layout engine.
type persistence struct {
	svc    Dashboards
	caller models.Caller
}

func (p persistence) Save(ctx context.Context, d *models.Dashboard) (*models.Dashboard, error) {
	return p.svc.SaveWidgets(ctx, p.caller, d.ID, d.Widgets)
}

func (p persistence) CreateFromTemplate(ctx context.Context, templateID string) (*models.Dashboard, error) {
	return p.svc.CreateFromTemplate(ctx, p.caller, templateID)
}

// Session is one open dashboard: its layout, its filter store, one query
// runner per data widget and one control per filter-control widget.
type Session struct {
	id       string
	caller   models.Caller
	readOnly bool
	opened   time.Time
	used     atomic.Int64
	token    *callerToken

	// ctx outlives the request that opened the session; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	store      *filters.Store
	engine     *layout.Engine
	dispatcher *render.Dispatcher
	fetcher    query.Fetcher
	lookup     controls.OptionLookup
	clock      func() time.Time

	mu          sync.RWMutex
	runners     map[string]*query.Runner
	pickers     map[string]*controls.Control
	unsubscribe func()
}

type sessionConfig struct {
	id         string
	caller     models.Caller
	token      *callerToken
	readOnly   bool
	dashboards Dashboards
	fetcher    query.Fetcher
	lookup     controls.OptionLookup
	dispatcher *render.Dispatcher
	clock      func() time.Time
}

func open(ctx context.Context, cfg sessionConfig, d *models.Dashboard) *Session {
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if cfg.clock == nil {
		cfg.clock = time.Now
	}
	if cfg.dispatcher == nil {
		cfg.dispatcher = render.NewDispatcher()
	}
	s := &Session{
		id:         cfg.id,
		caller:     cfg.caller,
		readOnly:   cfg.readOnly,
		opened:     cfg.clock(),
		token:      cfg.token,
		ctx:        sctx,
		cancel:     cancel,
		store:      filters.NewStore(),
		engine:     layout.NewEngine(persistence{svc: cfg.dashboards, caller: cfg.caller}),
		dispatcher: cfg.dispatcher,
		fetcher:    cfg.fetcher,
		lookup:     cfg.lookup,
		clock:      cfg.clock,
		runners:    map[string]*query.Runner{},
		pickers:    map[string]*controls.Control{},
	}
	s.touch(s.opened)
	s.engine.Load(d)
	s.unsubscribe = s.store.Subscribe(s.onFilters)
	s.rebuild(ctx, true)
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Caller() models.Caller { return s.caller }

func (s *Session) ReadOnly() bool { return s.readOnly }

func (s *Session) touch(now time.Time) { s.used.Store(now.UnixNano()) }

func (s *Session) lastUsed() time.Time { return time.Unix(0, s.used.Load()) }

// Filters exposes the session's store; dependents hold it by handle.
func (s *Session) Filters() *filters.Store { return s.store }

// onFilters re-runs every widget against the new snapshot.
func (s *Session) onFilters(snap filters.Snapshot) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.runners {
		r.Refresh(s.ctx, snap)
	}
}

// rebuild reconciles runners and controls with the engine's widgets. Widgets
// whose data binding is unchanged keep their runner; new controls are
// mounted and their defaults seeded; new runners are refreshed. withGlobals
// also seeds the dashboard's own default filters, which controls override.
func (s *Session) rebuild(ctx context.Context, withGlobals bool) {
	d := s.engine.Dashboard()

	s.mu.Lock()
	runners := make(map[string]*query.Runner, len(d.Widgets))
	pickers := map[string]*controls.Control{}
	var fresh []*query.Runner
	var mounted []*controls.Control
	for _, w := range d.Widgets {
		if w.Kind == models.KindFilterControl {
			if c, ok := s.pickers[w.ID]; ok && sameBinding(c.Widget(), w) {
				pickers[w.ID] = c
				continue
			}
			c := controls.New(w, s.store, s.lookup)
			pickers[w.ID] = c
			mounted = append(mounted, c)
			continue
		}
		if r, ok := s.runners[w.ID]; ok && sameBinding(r.Widget(), w) {
			runners[w.ID] = r
			continue
		}
		r := query.NewRunner(w, s.fetcher, query.WithClock(s.clock))
		runners[w.ID] = r
		fresh = append(fresh, r)
	}
	s.runners = runners
	s.pickers = pickers
	s.mu.Unlock()

	s.mount(ctx, mounted)

	defaults := map[string]filters.Value{}
	if withGlobals {
		defaults = dashboardDefaults(d)
	}
	for _, c := range mounted {
		if v, ok := c.DefaultValue(); ok {
			defaults[c.Key()] = v
		}
	}
	before := s.store.Snapshot().Version()
	snap := s.store.Seed(defaults)
	if snap.Version() != before {
		// the seed notified every runner already
		return
	}
	for _, r := range fresh {
		r.Refresh(s.ctx, snap)
	}
}

// dashboardDefaults parses the dashboard's stored default filters. Values
// that no longer parse are skipped.
func dashboardDefaults(d *models.Dashboard) map[string]filters.Value {
	out := make(map[string]filters.Value, len(d.GlobalFilters))
	for k, raw := range d.GlobalFilters {
		if v, err := filters.FromAny(raw); err == nil {
			out[k] = v
		}
	}
	return out
}

// mount loads control options concurrently; failures stay inside each control.
func (s *Session) mount(ctx context.Context, pickers []*controls.Control) {
	if len(pickers) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(mountLimit)
	for _, c := range pickers {
		g.Go(func() error {
			c.Mount(gctx)
			return nil
		})
	}
	_ = g.Wait()
}

// sameBinding compares two versions of a widget ignoring geometry.
func sameBinding(a, b models.Widget) bool {
	a.Layout, b.Layout = models.Layout{}, models.Layout{}
	return reflect.DeepEqual(a, b)
}

// --- Views ---

type View struct {
	ID          string           `json:"id"`
	DashboardID string           `json:"dashboardId"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Mode        layout.Mode      `json:"mode"`
	ReadOnly    bool             `json:"readOnly"`
	Dirty       bool             `json:"dirty"`
	IsTemplate  bool             `json:"isTemplate"`
	IsLocked    bool             `json:"isLocked"`
	Filters     filters.Snapshot `json:"filters"`
	Widgets     []WidgetView     `json:"widgets"`
	OpenedAt    time.Time        `json:"openedAt"`
}

type WidgetView struct {
	Widget  models.Widget    `json:"widget"`
	State   *query.ViewState `json:"state,omitempty"`
	Frame   *render.Frame    `json:"frame,omitempty"`
	Control *controls.View   `json:"control,omitempty"`
}

// View renders the whole session: filters, and per widget its state and
// frame or its control.
func (s *Session) View() View {
	d := s.engine.Dashboard()
	v := View{
		ID:          s.id,
		DashboardID: d.ID,
		Name:        d.Name,
		Description: d.Description,
		Mode:        s.engine.Mode(),
		ReadOnly:    s.readOnly,
		Dirty:       s.engine.Dirty(),
		IsTemplate:  d.IsTemplate,
		IsLocked:    d.IsLocked,
		Filters:     s.store.Snapshot(),
		Widgets:     make([]WidgetView, 0, len(d.Widgets)),
		OpenedAt:    s.opened,
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range d.Widgets {
		wv := WidgetView{Widget: w}
		if c, ok := s.pickers[w.ID]; ok {
			cv := c.View()
			wv.Control = &cv
		} else if r, ok := s.runners[w.ID]; ok {
			st := r.State()
			var payload *dto.Payload
			if st.Status == query.StatusReady {
				payload = st.Payload
			}
			f := s.dispatcher.Frame(w, payload)
			wv.State = &st
			wv.Frame = &f
		}
		v.Widgets = append(v.Widgets, wv)
	}
	return v
}

// Settle waits until no widget has a query in flight.
func (s *Session) Settle(ctx context.Context) error {
	s.mu.RLock()
	runners := make([]*query.Runner, 0, len(s.runners))
	for _, r := range s.runners {
		runners = append(runners, r)
	}
	s.mu.RUnlock()

	for _, r := range runners {
		if err := r.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// --- Filters and click-through; available to viewers too ---

func (s *Session) ApplyFilter(key string, raw any) (filters.Snapshot, error) {
	if key == "" {
		return filters.Snapshot{}, errs.NewValidationError("filter key is required")
	}
	v, err := filters.FromAny(raw)
	if err != nil {
		return filters.Snapshot{}, errs.NewValidationError("invalid value for " + key + ": " + err.Error())
	}
	return s.store.Apply(key, v), nil
}

func (s *Session) ClearFilter(key string) filters.Snapshot {
	return s.store.Clear(key)
}

func (s *Session) ResetFilters() filters.Snapshot {
	return s.store.Reset()
}

// ChangeControl writes through a filter-control widget, honouring its lock.
func (s *Session) ChangeControl(widgetID string, raw any) (filters.Snapshot, error) {
	s.mu.RLock()
	c, ok := s.pickers[widgetID]
	s.mu.RUnlock()
	if !ok {
		return filters.Snapshot{}, errs.NewNotFoundError("filter control not found: " + widgetID)
	}
	return c.Change(raw)
}

// SearchControl fuzzy-searches the options of a filter-control widget.
func (s *Session) SearchControl(widgetID, q string) ([]dto.Option, error) {
	s.mu.RLock()
	c, ok := s.pickers[widgetID]
	s.mu.RUnlock()
	if !ok {
		return nil, errs.NewNotFoundError("filter control not found: " + widgetID)
	}
	return c.Search(q), nil
}

// Select folds a click-through selection into the filter store. ok is false
// when the widget does not filter on click or the item has no usable value.
func (s *Session) Select(ctx context.Context, widgetID string, item map[string]any) (sel render.Selection, ok bool, err error) {
	s.mu.RLock()
	r, found := s.runners[widgetID]
	s.mu.RUnlock()
	if !found {
		return render.Selection{}, false, errs.NewNotFoundError("widget not found: " + widgetID)
	}
	sel, ok = render.Select(r.Widget(), item)
	if !ok {
		logger.FromContext(ctx).Debug("selection ignored", "widget_id", widgetID)
		return sel, false, nil
	}
	s.store.Apply(sel.Key, sel.Value)
	return sel, true, nil
}

// Retry reissues the widget's last query.
func (s *Session) Retry(widgetID string) error {
	s.mu.RLock()
	r, ok := s.runners[widgetID]
	s.mu.RUnlock()
	if !ok {
		return errs.NewNotFoundError("widget not found: " + widgetID)
	}
	r.Retry(s.ctx)
	return nil
}

// --- Editing; refused in viewer sessions ---

func (s *Session) editable() error {
	if s.readOnly {
		return errs.NewReadOnlyError("session is read-only")
	}
	return nil
}

func (s *Session) BeginEdit() error {
	if err := s.editable(); err != nil {
		return err
	}
	return s.engine.BeginEdit()
}

func (s *Session) CancelEdit(ctx context.Context) error {
	if err := s.editable(); err != nil {
		return err
	}
	s.engine.CancelEdit()
	s.rebuild(ctx, false)
	return nil
}

func (s *Session) EndEdit() error {
	if err := s.editable(); err != nil {
		return err
	}
	s.engine.EndEdit()
	return nil
}

func (s *Session) AddWidget(ctx context.Context, spec layout.WidgetSpec) (models.Widget, error) {
	if err := s.editable(); err != nil {
		return models.Widget{}, err
	}
	w, err := s.engine.AddWidget(spec)
	if err != nil {
		return models.Widget{}, err
	}
	s.rebuild(ctx, false)
	return w, nil
}

func (s *Session) MoveOrResize(widgetID string, l models.Layout) error {
	if err := s.editable(); err != nil {
		return err
	}
	return s.engine.MoveOrResize(widgetID, l)
}

func (s *Session) RemoveWidget(ctx context.Context, widgetID string) error {
	if err := s.editable(); err != nil {
		return err
	}
	if err := s.engine.RemoveWidget(widgetID); err != nil {
		return err
	}
	s.rebuild(ctx, false)
	return nil
}

func (s *Session) ConfigureWidget(ctx context.Context, widgetID string, patch map[string]any) (models.Widget, error) {
	if err := s.editable(); err != nil {
		return models.Widget{}, err
	}
	w, err := s.engine.ConfigureWidget(widgetID, patch)
	if err != nil {
		return models.Widget{}, err
	}
	s.rebuild(ctx, false)
	return w, nil
}

func (s *Session) Save(ctx context.Context) (*models.Dashboard, error) {
	if err := s.editable(); err != nil {
		return nil, err
	}
	d, err := s.engine.Save(ctx)
	if err != nil {
		return nil, err
	}
	s.rebuild(ctx, false)
	logger.FromContext(ctx).Info("dashboard saved", "session_id", s.id, "dashboard_id", d.ID, "widgets", len(d.Widgets))
	return d, nil
}

// CreateFromTemplate clones a template and makes the clone this session's
// dashboard, starting from an empty filter set.
func (s *Session) CreateFromTemplate(ctx context.Context, templateID string) (*models.Dashboard, error) {
	if err := s.editable(); err != nil {
		return nil, err
	}
	d, err := s.engine.CreateFromTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.runners = map[string]*query.Runner{}
	s.pickers = map[string]*controls.Control{}
	s.mu.Unlock()
	s.store.Reset()
	s.rebuild(ctx, true)
	return d, nil
}

// Close stops the session; in-flight queries are abandoned.
func (s *Session) Close() {
	s.cancel()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}
