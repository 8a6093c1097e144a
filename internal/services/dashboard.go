package services

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/GregMSThompson/dashboard-service/internal/dto"
	"github.com/GregMSThompson/dashboard-service/internal/errs"
	"github.com/GregMSThompson/dashboard-service/internal/filters"
	"github.com/GregMSThompson/dashboard-service/internal/layout"
	"github.com/GregMSThompson/dashboard-service/internal/models"
	"github.com/GregMSThompson/dashboard-service/internal/render"
	"github.com/GregMSThompson/dashboard-service/pkg/helpers"
	"github.com/GregMSThompson/dashboard-service/pkg/logger"
)

const (
	maxNameLength        = 255
	maxCategoryLength    = 100
	maxDescriptionLength = 2000
	maxWidgets           = 100
)

// dashboardStore is the Firestore storage interface for dashboards.
type dashboardStore interface {
	Create(ctx context.Context, d *models.Dashboard) error
	Get(ctx context.Context, id string) (*models.Dashboard, error)
	List(ctx context.Context, organizationID string) ([]*models.Dashboard, error)
	ListTemplates(ctx context.Context, organizationID string) ([]*models.Dashboard, error)
	Update(ctx context.Context, d *models.Dashboard) error
	UpdateWidgets(ctx context.Context, id string, widgets []models.Widget) error
	Delete(ctx context.Context, id string) error
	NameTaken(ctx context.Context, organizationID, name, excludeID string) (bool, error)
}

type dashboardService struct {
	store  dashboardStore
	policy *bluemonday.Policy
	newID  func() string
}

func NewDashboardService(store dashboardStore) *dashboardService {
	return &dashboardService{
		store:  store,
		policy: bluemonday.StripTagsPolicy(),
		newID:  uuid.NewString,
	}
}

// --- Queries ---

// ListDashboards returns the active dashboards of the caller's organisation
// that are shared with one of the caller's roles, or with nobody in
// particular. Administrators see all of them.
func (s *dashboardService) ListDashboards(ctx context.Context, caller models.Caller) ([]*models.Dashboard, error) {
	all, err := s.store.List(ctx, caller.OrganizationID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Dashboard, 0, len(all))
	for _, d := range all {
		if caller.CanSee(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

// ListTemplates returns global templates and the organisation's own.
func (s *dashboardService) ListTemplates(ctx context.Context, caller models.Caller) ([]*models.Dashboard, error) {
	templates, err := s.store.ListTemplates(ctx, caller.OrganizationID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Dashboard, 0, len(templates))
	for _, t := range templates {
		if t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

// GetDashboard loads a dashboard the caller may see. Dashboards of other
// organisations are reported as not found.
func (s *dashboardService) GetDashboard(ctx context.Context, caller models.Caller, id string) (*models.Dashboard, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.CanSee(d) {
		return nil, errs.NewNotFoundError("dashboard not found")
	}
	layout.Normalise(d.Widgets)
	return d, nil
}

var backends = []models.Backend{models.BackendRecharts, models.BackendGoogleCharts, models.BackendNone}

// Catalog lists the widget kinds with the backends the dispatcher draws them
// with and their default sizes.
func (s *dashboardService) Catalog() []dto.WidgetKindInfo {
	out := make([]dto.WidgetKindInfo, 0, len(models.Kinds))
	for _, k := range models.Kinds {
		info := dto.WidgetKindInfo{Kind: k, DefaultSize: models.DefaultSize(k)}
		for _, b := range backends {
			if render.Resolve(k, b) != render.CapPlaceholder {
				info.Backends = append(info.Backends, b)
			}
		}
		if len(info.Backends) == 0 {
			info.Backends = []models.Backend{models.BackendNone}
		}
		out = append(out, info)
	}
	return out
}

// --- Commands ---

func (s *dashboardService) CreateDashboard(ctx context.Context, caller models.Caller, req dto.CreateDashboardRequest) (*models.Dashboard, error) {
	if req.IsTemplate && !caller.Admin {
		return nil, errs.NewReadOnlyError("only administrators can create templates")
	}
	name, err := s.name(req.Name)
	if err != nil {
		return nil, err
	}
	description, category, err := s.details(req.Description, req.Category)
	if err != nil {
		return nil, err
	}
	widgets, err := s.buildWidgets(req.Widgets)
	if err != nil {
		return nil, err
	}
	globals, err := globalFilters(req.GlobalFilters)
	if err != nil {
		return nil, err
	}

	d := &models.Dashboard{
		ID:              s.newID(),
		OrganizationID:  caller.OrganizationID,
		Name:            name,
		Description:     description,
		Category:        category,
		Widgets:         widgets,
		SharedWithRoles: cleanRoles(req.SharedWithRoles),
		GlobalFilters:   globals,
		IsTemplate:      req.IsTemplate,
		IsActive:        true,
		CreatedBy:       caller.UID,
	}
	if err := s.store.Create(ctx, d); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("dashboard created", "dashboard_id", d.ID, "widgets", len(d.Widgets))
	return d, nil
}

// UpdateDashboard applies a partial update. Locked dashboards and templates
// may only be changed by administrators, and only they may convert a
// dashboard to a template.
func (s *dashboardService) UpdateDashboard(ctx context.Context, caller models.Caller, id string, req dto.UpdateDashboardRequest) (*models.Dashboard, error) {
	d, err := s.GetDashboard(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if err := checkWritable(caller, d); err != nil {
		return nil, err
	}
	if req.IsTemplate != nil && !caller.Admin {
		return nil, errs.NewReadOnlyError("only administrators can manage templates")
	}

	if req.Name != nil {
		name, err := s.name(*req.Name)
		if err != nil {
			return nil, err
		}
		if name != d.Name {
			taken, err := s.store.NameTaken(ctx, d.OrganizationID, name, d.ID)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, errs.NewAlreadyExistsError("a dashboard named " + name + " already exists")
			}
		}
		d.Name = name
	}
	if req.Description != nil || req.Category != nil {
		description, category, err := s.details(helpers.ValueOr(req.Description, d.Description), helpers.ValueOr(req.Category, d.Category))
		if err != nil {
			return nil, err
		}
		d.Description, d.Category = description, category
	}
	if req.Widgets != nil {
		widgets, err := s.buildWidgets(*req.Widgets)
		if err != nil {
			return nil, err
		}
		d.Widgets = widgets
	}
	if req.SharedWithRoles != nil {
		d.SharedWithRoles = cleanRoles(*req.SharedWithRoles)
	}
	if req.GlobalFilters != nil {
		globals, err := globalFilters(*req.GlobalFilters)
		if err != nil {
			return nil, err
		}
		d.GlobalFilters = globals
	}
	if req.IsTemplate != nil {
		d.IsTemplate = *req.IsTemplate
	}
	if req.IsLocked != nil {
		d.IsLocked = *req.IsLocked
	}
	if req.IsActive != nil {
		d.IsActive = *req.IsActive
	}

	if err := s.store.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *dashboardService) DeleteDashboard(ctx context.Context, caller models.Caller, id string) error {
	d, err := s.GetDashboard(ctx, caller, id)
	if err != nil {
		return err
	}
	if err := checkWritable(caller, d); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("dashboard deleted", "dashboard_id", id)
	return nil
}

// SaveWidgets replaces the full ordered widget collection and returns the
// stored dashboard. Existing unique ids are kept; empty or duplicate ids
// get fresh ones.
func (s *dashboardService) SaveWidgets(ctx context.Context, caller models.Caller, id string, widgets []models.Widget) (*models.Dashboard, error) {
	d, err := s.GetDashboard(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if d.IsTemplate {
		return nil, errs.NewReadOnlyError("templates cannot be edited; create a dashboard from it instead")
	}
	if err := checkWritable(caller, d); err != nil {
		return nil, err
	}

	inputs := make([]dto.WidgetInput, len(widgets))
	for i, w := range widgets {
		inputs[i] = dto.WidgetInput{
			ID:         w.ID,
			Title:      w.Title,
			Kind:       w.Kind,
			DataSource: w.DataSource,
			Backend:    w.Backend,
			Config:     w.Config,
			Layout:     w.Layout,
		}
	}
	out, err := s.buildWidgets(inputs)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateWidgets(ctx, d.ID, out); err != nil {
		return nil, err
	}
	d.Widgets = out
	return d, nil
}

// CreateFromTemplate deep-copies a template into a new, unlocked dashboard
// of the caller's organisation. Every widget gets a fresh id.
func (s *dashboardService) CreateFromTemplate(ctx context.Context, caller models.Caller, templateID string) (*models.Dashboard, error) {
	if caller.OrganizationID == "" {
		return nil, errs.NewValidationError("no active organization found")
	}
	t, err := s.GetDashboard(ctx, caller, templateID)
	if err != nil {
		return nil, err
	}
	if !t.IsTemplate {
		return nil, errs.NewValidationError("this dashboard is not a template")
	}

	name, err := s.cloneName(ctx, caller.OrganizationID, t.Name)
	if err != nil {
		return nil, err
	}
	d := t.Clone()
	d.ID = s.newID()
	d.Name = name
	d.OrganizationID = caller.OrganizationID
	d.IsTemplate = false
	d.IsLocked = false
	d.IsActive = true
	d.SharedWithRoles = nil
	d.CreatedBy = caller.UID
	d.CreatedAt, d.UpdatedAt = time.Time{}, time.Time{}
	for i := range d.Widgets {
		d.Widgets[i].ID = s.newID()
	}

	if err := s.store.Create(ctx, d); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("dashboard created from template", "dashboard_id", d.ID, "template_id", templateID)
	return d, nil
}

// --- Validation ---

func checkWritable(caller models.Caller, d *models.Dashboard) error {
	if caller.Admin {
		return nil
	}
	if d.IsTemplate {
		return errs.NewReadOnlyError("only administrators can change templates")
	}
	if d.IsLocked {
		return errs.NewReadOnlyError("dashboard is locked")
	}
	return nil
}

func (s *dashboardService) name(raw string) (string, error) {
	name := s.sanitize(raw)
	if name == "" {
		return "", errs.NewValidationError("name is required")
	}
	if len(name) > maxNameLength {
		return "", errs.NewValidationError(fmt.Sprintf("name must be at most %d characters", maxNameLength))
	}
	return name, nil
}

func (s *dashboardService) details(rawDescription, rawCategory string) (description, category string, err error) {
	description = s.sanitize(rawDescription)
	category = s.sanitize(rawCategory)
	if len(description) > maxDescriptionLength {
		return "", "", errs.NewValidationError(fmt.Sprintf("description must be at most %d characters", maxDescriptionLength))
	}
	if len(category) > maxCategoryLength {
		return "", "", errs.NewValidationError(fmt.Sprintf("category must be at most %d characters", maxCategoryLength))
	}
	return description, category, nil
}

// buildWidgets validates the submitted widgets, assigns ids where missing
// or repeated and fills in missing geometry.
func (s *dashboardService) buildWidgets(inputs []dto.WidgetInput) ([]models.Widget, error) {
	if len(inputs) > maxWidgets {
		return nil, errs.NewValidationError(fmt.Sprintf("a dashboard holds at most %d widgets", maxWidgets))
	}
	seen := make(map[string]bool, len(inputs))
	widgets := make([]models.Widget, 0, len(inputs))
	for i, in := range inputs {
		if !in.Kind.Valid() {
			return nil, errs.NewValidationError(fmt.Sprintf("widgets[%d]: unknown widget kind: %s", i, in.Kind))
		}
		if !in.Backend.Valid() {
			return nil, errs.NewValidationError(fmt.Sprintf("widgets[%d]: unknown rendering backend: %s", i, in.Backend))
		}
		source := strings.TrimSpace(in.DataSource)
		if source == "" {
			return nil, errs.NewValidationError(fmt.Sprintf("widgets[%d]: dataSource is required", i))
		}
		if !in.Kind.AcceptsSource(source) {
			return nil, errs.NewValidationError(fmt.Sprintf("widgets[%d]: custom metrics can only back metric widgets", i))
		}
		if err := in.Config.Validate(in.Kind); err != nil {
			return nil, errs.NewValidationError(fmt.Sprintf("widgets[%d]: %s", i, err.Error()))
		}
		if !in.Layout.IsZero() && (in.Layout.X < 0 || in.Layout.Y < 0 || in.Layout.X+in.Layout.W > models.GridColumns) {
			return nil, errs.NewValidationError(fmt.Sprintf("widgets[%d]: layout exceeds the %d-column grid", i, models.GridColumns))
		}

		id := strings.TrimSpace(in.ID)
		if id == "" || seen[id] {
			id = s.newID()
		}
		seen[id] = true

		title := s.sanitize(in.Title)
		if title == "" {
			title = source
		}
		widgets = append(widgets, models.Widget{
			ID:         id,
			Title:      title,
			Kind:       in.Kind,
			DataSource: source,
			Backend:    in.Backend,
			Config:     in.Config.Clone(),
			Layout:     in.Layout,
		})
	}
	layout.Normalise(widgets)
	return widgets, nil
}

// cloneName picks "<name> (Cloned)", numbering it when the organisation
// already has a dashboard of that name.
func (s *dashboardService) cloneName(ctx context.Context, organizationID, name string) (string, error) {
	base := name + " (Cloned)"
	candidate := base
	for n := 2; ; n++ {
		taken, err := s.store.NameTaken(ctx, organizationID, candidate, "")
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s (Cloned %d)", name, n)
	}
}

func (s *dashboardService) sanitize(raw string) string {
	return plainText(s.policy, raw)
}

// plainText strips markup from user-authored text.
func plainText(policy *bluemonday.Policy, raw string) string {
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(raw)))
}

// globalFilters validates dashboard default filters. Nil and empty values
// are dropped; anything else must parse as a filter value.
func globalFilters(raw map[string]any) (map[string]any, error) {
	out := map[string]any{}
	for k, v := range raw {
		key := strings.TrimSpace(k)
		if key == "" {
			return nil, errs.NewValidationError("globalFilters: empty filter key")
		}
		if v == nil {
			continue
		}
		parsed, err := filters.FromAny(v)
		if err != nil {
			return nil, errs.NewValidationError(fmt.Sprintf("globalFilters[%s]: %v", key, err))
		}
		if parsed.IsEmpty() {
			continue
		}
		out[key] = v
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func cleanRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	seen := map[string]bool{}
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
