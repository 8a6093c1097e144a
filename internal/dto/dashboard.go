package dto

import (
	"github.com/GregMSThompson/dashboard-service/internal/models"
)

// --- Request types ---

// WidgetInput is a widget as the client submits it. An empty ID asks the
// service to assign one; a zero layout asks for the kind's default geometry.
type WidgetInput struct {
	ID         string              `json:"id,omitempty"`
	Title      string              `json:"title"`
	Kind       models.WidgetKind   `json:"kind"`
	DataSource string              `json:"dataSource"`
	Backend    models.Backend      `json:"renderingBackend,omitempty"`
	Config     models.WidgetConfig `json:"config"`
	Layout     models.Layout       `json:"layout"`
}

type CreateDashboardRequest struct {
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	Category        string         `json:"category,omitempty"`
	Widgets         []WidgetInput  `json:"widgets"`
	SharedWithRoles []string       `json:"sharedWithRoles"`
	GlobalFilters   map[string]any `json:"globalFilters,omitempty"`
	IsTemplate      bool           `json:"isTemplate"`
}

// UpdateDashboardRequest is a partial update; nil fields are left untouched.
// Widgets, when present, replace the full ordered collection. IsTemplate converts a dashboard to a template or back and is reserved for
// administrators.
type UpdateDashboardRequest struct {
	Name            *string         `json:"name,omitempty"`
	Description     *string         `json:"description,omitempty"`
	Category        *string         `json:"category,omitempty"`
	Widgets         *[]WidgetInput  `json:"widgets,omitempty"`
	SharedWithRoles *[]string       `json:"sharedWithRoles,omitempty"`
	GlobalFilters   *map[string]any `json:"globalFilters,omitempty"`
	IsTemplate      *bool           `json:"isTemplate,omitempty"`
	IsLocked        *bool           `json:"isLocked,omitempty"`
	IsActive        *bool           `json:"isActive,omitempty"`
}

// --- Response types ---

// DashboardSummary is the list view of a dashboard.
type DashboardSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	IsTemplate  bool   `json:"isTemplate"`
	IsLocked    bool   `json:"isLocked"`
	WidgetCount int    `json:"widgetCount"`
}

func NewDashboardSummary(d *models.Dashboard) DashboardSummary {
	return DashboardSummary{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Category:    d.Category,
		IsTemplate:  d.IsTemplate,
		IsLocked:    d.IsLocked,
		WidgetCount: len(d.Widgets),
	}
}

// WidgetKindInfo describes one entry of the widget catalog.
type WidgetKindInfo struct {
	Kind        models.WidgetKind `json:"kind"`
	Backends    []models.Backend  `json:"backends"`
	DefaultSize models.Layout     `json:"defaultSize"`
}
