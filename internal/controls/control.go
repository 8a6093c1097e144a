package controls

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/GregMSThompson/dashboard-service/internal/dto"
	"github.com/GregMSThompson/dashboard-service/internal/errs"
	"github.com/GregMSThompson/dashboard-service/internal/filters"
	"github.com/GregMSThompson/dashboard-service/internal/models"
	"github.com/GregMSThompson/dashboard-service/pkg/logger"
)

// Variant is the kind of picker a control renders, chosen by its bound key.
type Variant string

const (
	VariantPerson    Variant = "person"
	VariantLocation  Variant = "location"
	VariantEntity    Variant = "entity"
	VariantSource    Variant = "source"
	VariantDateRange Variant = "date_range"
	VariantUnknown   Variant = ""
)

func VariantFor(key string) Variant {
	switch key {
	case filters.KeyRep:
		return VariantPerson
	case filters.KeyBranch:
		return VariantLocation
	case filters.KeyCustomer:
		return VariantEntity
	case filters.KeySource:
		return VariantSource
	case filters.KeyDateRange:
		return VariantDateRange
	}
	return VariantUnknown
}

// SourceOptions is the fixed list of lead sources.
var SourceOptions = []dto.Option{
	{Value: "moveit", Label: "Moveit"},
	{Value: "mymovingloads", Label: "MyMovingLoads"},
	{Value: "moving24", Label: "Moving24"},
	{Value: "baltic_website", Label: "Baltic Website"},
	{Value: "n1m_website", Label: "N1M Website"},
	{Value: "google", Label: "Google"},
	{Value: "referral", Label: "Referral"},
	{Value: "other", Label: "Other"},
}

// OptionLookup fetches the choices of the option-bearing pickers.
type OptionLookup interface {
	People(ctx context.Context) ([]dto.Option, error)
	Branches(ctx context.Context) ([]dto.Option, error)
	Customers(ctx context.Context) ([]dto.Option, error)
}

// Control is one filter-control widget bound to a filter key. It reads and
// writes the shared store and never holds a value of its own.
type Control struct {
	widget   models.Widget
	key      string
	variant  Variant
	settings models.ControlSettings
	store    *filters.Store
	lookup   OptionLookup

	mu      sync.RWMutex
	options []dto.Option
	mounted bool
}

func New(w models.Widget, store *filters.Store, lookup OptionLookup) *Control {
	c := &Control{
		widget:  w,
		key:     w.DataSource,
		variant: VariantFor(w.DataSource),
		store:   store,
		lookup:  lookup,
	}
	if w.Config.Control != nil {
		c.settings = *w.Config.Control
	}
	if c.variant == VariantSource {
		c.options = SourceOptions
	}
	return c
}

func (c *Control) Key() string { return c.key }

func (c *Control) Variant() Variant { return c.variant }

func (c *Control) Widget() models.Widget { return c.widget }

func (c *Control) Locked() bool { return c.settings.Locked }

// Visible is false for hidden controls (the filter stays active) and for
// keys no picker exists for.
func (c *Control) Visible() bool {
	return !c.settings.Hidden && c.variant != VariantUnknown
}

// DefaultValue returns the configured seed value, if any.
func (c *Control) DefaultValue() (filters.Value, bool) {
	if c.settings.DefaultValue == nil {
		return filters.Value{}, false
	}
	v, err := filters.FromAny(c.settings.DefaultValue)
	if err != nil || v.IsEmpty() {
		return filters.Value{}, false
	}
	return v, true
}

// Mount loads the option list once. A failed fetch leaves the control
// empty but usable.
func (c *Control) Mount(ctx context.Context) {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = true
	c.mu.Unlock()

	fetch := c.fetcher()
	if fetch == nil || c.lookup == nil {
		return
	}
	log := logger.FromContext(ctx).With("widget_id", c.widget.ID, "filter_key", c.key)

	opts, err := fetch(ctx)
	switch {
	case errors.Is(err, errs.ErrNoCredentials):
		log.Debug("skipping option fetch without credentials")
		return
	case err != nil:
		log.Warn("failed to load filter options", "error", err)
		return
	}

	c.mu.Lock()
	c.options = opts
	c.mu.Unlock()
	log.Debug("filter options loaded", "count", len(opts))
}

func (c *Control) fetcher() func(context.Context) ([]dto.Option, error) {
	if c.lookup == nil {
		return nil
	}
	switch c.variant {
	case VariantPerson:
		return c.lookup.People
	case VariantLocation:
		return c.lookup.Branches
	case VariantEntity:
		return c.lookup.Customers
	}
	return nil
}

func (c *Control) Options() []dto.Option {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]dto.Option(nil), c.options...)
}

// Value reads the bound key from the store. Date-range controls turn the
// flat "start,end" string back into a pair.
func (c *Control) Value() (filters.Value, bool) {
	v, ok := c.store.Get(c.key)
	if !ok {
		return filters.Value{}, false
	}
	if c.variant == VariantDateRange {
		if start, end, ok := v.DateRange(); ok {
			return filters.Range(start, end), true
		}
	}
	return v, true
}

// Change writes raw through the store's toggle semantics; nil or an empty
// string clears the key. Locked controls ignore writes.
func (c *Control) Change(raw any) (filters.Snapshot, error) {
	if c.settings.Locked {
		return c.store.Snapshot(), nil
	}
	if raw == nil {
		return c.store.Clear(c.key), nil
	}
	v, err := filters.FromAny(raw)
	if err != nil {
		return c.store.Snapshot(), errs.NewValidationError("invalid value for " + c.key + ": " + err.Error())
	}
	if v.IsEmpty() {
		return c.store.Clear(c.key), nil
	}
	if c.variant == VariantDateRange {
		start, end, ok := v.DateRange()
		if !ok {
			return c.store.Snapshot(), errs.NewValidationError(c.key + " expects a start and end date")
		}
		return c.ChangeRange(start, end), nil
	}
	return c.store.Apply(c.key, v), nil
}

// ChangeRange stores a date pair in its flat wire form.
func (c *Control) ChangeRange(start, end time.Time) filters.Snapshot {
	if c.settings.Locked {
		return c.store.Snapshot()
	}
	return c.store.Apply(c.key, filters.String(filters.Range(start, end).Flat()))
}

func (c *Control) Clear() filters.Snapshot {
	if c.settings.Locked {
		return c.store.Snapshot()
	}
	return c.store.Clear(c.key)
}

type optionLabels []dto.Option

func (o optionLabels) String(i int) string { return o[i].Label }

func (o optionLabels) Len() int { return len(o) }

// Search fuzzy-matches query against option labels, best match first. An
// empty query returns every option.
func (c *Control) Search(query string) []dto.Option {
	opts := c.Options()
	if query == "" {
		return opts
	}
	matches := fuzzy.FindFrom(query, optionLabels(opts))
	out := make([]dto.Option, 0, len(matches))
	for _, m := range matches {
		out = append(out, opts[m.Index])
	}
	return out
}

// View is the render-ready state of a control.
type View struct {
	WidgetID string         `json:"widgetId"`
	Title    string         `json:"title"`
	Key      string         `json:"key"`
	Variant  Variant        `json:"variant"`
	Value    *filters.Value `json:"value,omitempty"`
	Options  []dto.Option   `json:"options,omitempty"`
	Locked   bool           `json:"locked"`
	Visible  bool           `json:"visible"`
}

func (c *Control) View() View {
	v := View{
		WidgetID: c.widget.ID,
		Title:    c.widget.Title,
		Key:      c.key,
		Variant:  c.variant,
		Options:  c.Options(),
		Locked:   c.settings.Locked,
		Visible:  c.Visible(),
	}
	if val, ok := c.Value(); ok {
		v.Value = &val
	}
	return v
}
