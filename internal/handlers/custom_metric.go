package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/GregMSThompson/dashboard-service/internal/dto"
	"github.com/GregMSThompson/dashboard-service/internal/middleware"
	"github.com/GregMSThompson/dashboard-service/internal/models"
	"github.com/GregMSThompson/dashboard-service/internal/response"
)

type customMetricService interface {
	ListCustomMetrics(ctx context.Context, caller models.Caller) ([]*models.CustomMetric, error)
	GetCustomMetric(ctx context.Context, caller models.Caller, id string) (*models.CustomMetric, error)
	CreateCustomMetric(ctx context.Context, caller models.Caller, req dto.CreateCustomMetricRequest) (*models.CustomMetric, error)
	UpdateCustomMetric(ctx context.Context, caller models.Caller, id string, req dto.UpdateCustomMetricRequest) (*models.CustomMetric, error)
	DeleteCustomMetric(ctx context.Context, caller models.Caller, id string) error
}

type customMetricHandlers struct {
	ResponseHandler response.ResponseHandler
	CustomMetricSvc customMetricService
}

func NewCustomMetricHandlers(deps *Deps) *customMetricHandlers {
	return &customMetricHandlers{
		ResponseHandler: deps.ResponseHandler,
		CustomMetricSvc: deps.CustomMetricSvc,
	}
}

func (h *customMetricHandlers) CustomMetricRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListCustomMetrics)
	r.Post("/", h.CreateCustomMetric)
	r.Get("/{metricId}", h.GetCustomMetric)
	r.Patch("/{metricId}", h.UpdateCustomMetric)
	r.Delete("/{metricId}", h.DeleteCustomMetric)
	return r
}

func (h *customMetricHandlers) ListCustomMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.CustomMetricSvc.ListCustomMetrics(r.Context(), middleware.Caller(r.Context()))
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, metrics)
}

func (h *customMetricHandlers) GetCustomMetric(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "metricId")
	m, err := h.CustomMetricSvc.GetCustomMetric(r.Context(), middleware.Caller(r.Context()), id)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, m)
}

func (h *customMetricHandlers) CreateCustomMetric(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateCustomMetricRequest
	if err := decodeJSON(r, &req); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	m, err := h.CustomMetricSvc.CreateCustomMetric(r.Context(), middleware.Caller(r.Context()), req)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusCreated, m)
}

func (h *customMetricHandlers) UpdateCustomMetric(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "metricId")
	var req dto.UpdateCustomMetricRequest
	if err := decodeJSON(r, &req); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	m, err := h.CustomMetricSvc.UpdateCustomMetric(r.Context(), middleware.Caller(r.Context()), id, req)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, m)
}

func (h *customMetricHandlers) DeleteCustomMetric(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "metricId")
	if err := h.CustomMetricSvc.DeleteCustomMetric(r.Context(), middleware.Caller(r.Context()), id); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, nil)
}
