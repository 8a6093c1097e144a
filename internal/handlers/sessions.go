package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/GregMSThompson/dashboard-service/internal/layout"
	"github.com/GregMSThompson/dashboard-service/internal/middleware"
	"github.com/GregMSThompson/dashboard-service/internal/models"
	"github.com/GregMSThompson/dashboard-service/internal/render"
	"github.com/GregMSThompson/dashboard-service/internal/response"
	"github.com/GregMSThompson/dashboard-service/internal/session"
	"github.com/GregMSThompson/dashboard-service/pkg/logger"
)

// settleTimeout bounds how long ?settle=true waits for in-flight queries.
const settleTimeout = 10 * time.Second

type sessionManager interface {
	Open(ctx context.Context, caller models.Caller, dashboardID string, readOnly bool) (*session.Session, error)
	Get(caller models.Caller, id string) (*session.Session, error)
	Close(ctx context.Context, caller models.Caller, id string) error
}

type sessionHandlers struct {
	ResponseHandler response.ResponseHandler
	Sessions        sessionManager
}

func NewSessionHandlers(deps *Deps) *sessionHandlers {
	return &sessionHandlers{
		ResponseHandler: deps.ResponseHandler,
		Sessions:        deps.Sessions,
	}
}

type openSessionRequest struct {
	DashboardID string `json:"dashboardId"`
	ReadOnly    bool   `json:"readOnly"`
}

type valueRequest struct {
	Value any `json:"value"`
}

type selectResponse struct {
	Applied   bool              `json:"applied"`
	Selection *render.Selection `json:"selection,omitempty"`
	View      session.View      `json:"view"`
}

type optionsResponse struct {
	Options any `json:"options"`
}

type dashboardResponse struct {
	Dashboard *models.Dashboard `json:"dashboard"`
	View      session.View      `json:"view"`
}

func (h *sessionHandlers) SessionRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.OpenSession)
	r.Route("/{sessionId}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.CloseSession)

		r.Get("/filters", h.GetFilters)
		r.Delete("/filters", h.ResetFilters)
		r.Put("/filters/{key}", h.ApplyFilter)
		r.Delete("/filters/{key}", h.ClearFilter)

		r.Put("/controls/{widgetId}", h.ChangeControl)
		r.Get("/controls/{widgetId}/options", h.SearchControl)

		r.Post("/edit", h.BeginEdit)
		r.Delete("/edit", h.CancelEdit)
		r.Post("/edit/done", h.EndEdit)
		r.Post("/save", h.Save)
		r.Post("/from-template/{templateId}", h.CreateFromTemplate)

		r.Post("/widgets", h.AddWidget)
		r.Delete("/widgets/{widgetId}", h.RemoveWidget)
		r.Put("/widgets/{widgetId}/layout", h.MoveOrResize)
		r.Patch("/widgets/{widgetId}/config", h.ConfigureWidget)
		r.Post("/widgets/{widgetId}/select", h.Select)
		r.Post("/widgets/{widgetId}/retry", h.Retry)
	})
	return r
}

// session resolves the caller's session from the path, writing the error
// response itself when it cannot.
func (h *sessionHandlers) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.Sessions.Get(middleware.Caller(r.Context()), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return nil, false
	}
	return s, true
}

// view renders the session, first waiting for queries when ?settle=true.
func (h *sessionHandlers) view(r *http.Request, s *session.Session) session.View {
	if settle, _ := strconv.ParseBool(r.URL.Query().Get("settle")); settle {
		ctx, cancel := context.WithTimeout(r.Context(), settleTimeout)
		defer cancel()
		if err := s.Settle(ctx); err != nil {
			logger.FromContext(r.Context()).Debug("session did not settle", "session_id", s.ID(), "err", err)
		}
	}
	return s.View()
}

func (h *sessionHandlers) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	s, err := h.Sessions.Open(r.Context(), middleware.Caller(r.Context()), req.DashboardID, req.ReadOnly)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusCreated, h.view(r, s))
}

func (h *sessionHandlers) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, h.view(r, s))
}

func (h *sessionHandlers) CloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")
	if err := h.Sessions.Close(r.Context(), middleware.Caller(r.Context()), id); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, nil)
}

// --- Filters ---

func (h *sessionHandlers) GetFilters(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, s.Filters().Snapshot())
}

func (h *sessionHandlers) ApplyFilter(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req valueRequest
	if err := decodeJSON(r, &req); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	if _, err := s.ApplyFilter(chi.URLParam(r, "key"), req.Value); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, h.view(r, s))
}

func (h *sessionHandlers) ClearFilter(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.ClearFilter(chi.URLParam(r, "key"))
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, h.view(r, s))
}

func (h *sessionHandlers) ResetFilters(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.ResetFilters()
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, h.view(r, s))
}

// --- Filter controls ---

func (h *sessionHandlers) ChangeControl(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req valueRequest
	if err := decodeJSON(r, &req); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	if _, err := s.ChangeControl(chi.URLParam(r, "widgetId"), req.Value); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, h.view(r, s))
}

func (h *sessionHandlers) SearchControl(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	opts, err := s.SearchControl(chi.URLParam(r, "widgetId"), r.URL.Query().Get("q"))
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, optionsResponse{Options: opts})
}

// --- Click-through and retry ---

func (h *sessionHandlers) Select(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var item map[string]any
	if err := decodeJSON(r, &item); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	sel, applied, err := s.Select(r.Context(), chi.URLParam(r, "widgetId"), item)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	res := selectResponse{Applied: applied}
	if applied {
		res.Selection = &sel
	}
	res.View = h.view(r, s)
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, res)
}

func (h *sessionHandlers) Retry(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Retry(chi.URLParam(r, "widgetId")); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, h.view(r, s))
}

// --- Editing ---

func (h *sessionHandlers) BeginEdit(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, func(s *session.Session) error { return s.BeginEdit() })
}

func (h *sessionHandlers) CancelEdit(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, func(s *session.Session) error { return s.CancelEdit(r.Context()) })
}

func (h *sessionHandlers) EndEdit(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, func(s *session.Session) error { return s.EndEdit() })
}

func (h *sessionHandlers) AddWidget(w http.ResponseWriter, r *http.Request) {
	var spec layout.WidgetSpec
	if err := decodeJSON(r, &spec); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.editWithStatus(w, r, http.StatusCreated, func(s *session.Session) error {
		_, err := s.AddWidget(r.Context(), spec)
		return err
	})
}

func (h *sessionHandlers) MoveOrResize(w http.ResponseWriter, r *http.Request) {
	var l models.Layout
	if err := decodeJSON(r, &l); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.edit(w, r, func(s *session.Session) error {
		return s.MoveOrResize(chi.URLParam(r, "widgetId"), l)
	})
}

func (h *sessionHandlers) RemoveWidget(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, func(s *session.Session) error {
		return s.RemoveWidget(r.Context(), chi.URLParam(r, "widgetId"))
	})
}

func (h *sessionHandlers) ConfigureWidget(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := decodeJSON(r, &patch); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.edit(w, r, func(s *session.Session) error {
		_, err := s.ConfigureWidget(r.Context(), chi.URLParam(r, "widgetId"), patch)
		return err
	})
}

func (h *sessionHandlers) Save(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	d, err := s.Save(r.Context())
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, dashboardResponse{Dashboard: d, View: h.view(r, s)})
}

func (h *sessionHandlers) CreateFromTemplate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	d, err := s.CreateFromTemplate(r.Context(), chi.URLParam(r, "templateId"))
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusCreated, dashboardResponse{Dashboard: d, View: h.view(r, s)})
}

func (h *sessionHandlers) edit(w http.ResponseWriter, r *http.Request, op func(*session.Session) error) {
	h.editWithStatus(w, r, http.StatusOK, op)
}

func (h *sessionHandlers) editWithStatus(w http.ResponseWriter, r *http.Request, status int, op func(*session.Session) error) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := op(s); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, status, h.view(r, s))
}

