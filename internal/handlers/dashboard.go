package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/GregMSThompson/dashboard-service/internal/dto"
	"github.com/GregMSThompson/dashboard-service/internal/middleware"
	"github.com/GregMSThompson/dashboard-service/internal/models"
	"github.com/GregMSThompson/dashboard-service/internal/response"
)

type dashboardService interface {
	ListDashboards(ctx context.Context, caller models.Caller) ([]*models.Dashboard, error)
	ListTemplates(ctx context.Context, caller models.Caller) ([]*models.Dashboard, error)
	GetDashboard(ctx context.Context, caller models.Caller, id string) (*models.Dashboard, error)
	CreateDashboard(ctx context.Context, caller models.Caller, req dto.CreateDashboardRequest) (*models.Dashboard, error)
	UpdateDashboard(ctx context.Context, caller models.Caller, id string, req dto.UpdateDashboardRequest) (*models.Dashboard, error)
	DeleteDashboard(ctx context.Context, caller models.Caller, id string) error
	CreateFromTemplate(ctx context.Context, caller models.Caller, templateID string) (*models.Dashboard, error)
	Catalog() []dto.WidgetKindInfo
}

type dashboardHandlers struct {
	ResponseHandler response.ResponseHandler
	DashboardSvc    dashboardService
}

func NewDashboardHandlers(deps *Deps) *dashboardHandlers {
	return &dashboardHandlers{
		ResponseHandler: deps.ResponseHandler,
		DashboardSvc:    deps.DashboardSvc,
	}
}

func (h *dashboardHandlers) DashboardRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListDashboards)
	r.Post("/", h.CreateDashboard)
	r.Get("/templates", h.ListTemplates) // must be before /{dashboardId}
	r.Get("/widget-kinds", h.GetWidgetKinds)
	r.Get("/{dashboardId}", h.GetDashboard)
	r.Patch("/{dashboardId}", h.UpdateDashboard)
	r.Delete("/{dashboardId}", h.DeleteDashboard)
	r.Post("/{dashboardId}/create-from-template", h.CreateFromTemplate)
	return r
}

// ListDashboards returns summaries; ?show_templates=true lists templates instead.
func (h *dashboardHandlers) ListDashboards(w http.ResponseWriter, r *http.Request) {
	if show, _ := strconv.ParseBool(r.URL.Query().Get("show_templates")); show {
		h.ListTemplates(w, r)
		return
	}
	dashboards, err := h.DashboardSvc.ListDashboards(r.Context(), middleware.Caller(r.Context()))
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, summaries(dashboards))
}

func (h *dashboardHandlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.DashboardSvc.ListTemplates(r.Context(), middleware.Caller(r.Context()))
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, summaries(templates))
}

func (h *dashboardHandlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "dashboardId")
	d, err := h.DashboardSvc.GetDashboard(r.Context(), middleware.Caller(r.Context()), id)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, d)
}

func (h *dashboardHandlers) CreateDashboard(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateDashboardRequest
	if err := decodeJSON(r, &req); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	d, err := h.DashboardSvc.CreateDashboard(r.Context(), middleware.Caller(r.Context()), req)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusCreated, d)
}

func (h *dashboardHandlers) UpdateDashboard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "dashboardId")
	var req dto.UpdateDashboardRequest
	if err := decodeJSON(r, &req); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	d, err := h.DashboardSvc.UpdateDashboard(r.Context(), middleware.Caller(r.Context()), id, req)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, d)
}

func (h *dashboardHandlers) DeleteDashboard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "dashboardId")
	if err := h.DashboardSvc.DeleteDashboard(r.Context(), middleware.Caller(r.Context()), id); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, nil)
}

func (h *dashboardHandlers) CreateFromTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "dashboardId")
	d, err := h.DashboardSvc.CreateFromTemplate(r.Context(), middleware.Caller(r.Context()), id)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusCreated, d)
}

// GetWidgetKinds returns the catalog of widget kinds, their backends and default sizes.
func (h *dashboardHandlers) GetWidgetKinds(w http.ResponseWriter, r *http.Request) {
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, h.DashboardSvc.Catalog())
}

func summaries(dashboards []*models.Dashboard) []dto.DashboardSummary {
	out := make([]dto.DashboardSummary, 0, len(dashboards))
	for _, d := range dashboards {
		out = append(out, dto.NewDashboardSummary(d))
	}
	return out
}
