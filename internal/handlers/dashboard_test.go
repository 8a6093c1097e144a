package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/GregMSThompson/dashboard-service/internal/dto"
	"github.com/GregMSThompson/dashboard-service/internal/errs"
	"github.com/GregMSThompson/dashboard-service/internal/models"
)

// --- Stub service ---

type stubDashboardService struct {
	dashboards   []*models.Dashboard
	templates    []*models.Dashboard
	dashboard    *models.Dashboard
	err          error
	lastCaller   models.Caller
	lastID       string
	lastCreate   dto.CreateDashboardRequest
	lastUpdate   dto.UpdateDashboardRequest
	templateList bool
}

func (s *stubDashboardService) ListDashboards(_ context.Context, caller models.Caller) ([]*models.Dashboard, error) {
	s.lastCaller = caller
	return s.dashboards, s.err
}

func (s *stubDashboardService) ListTemplates(_ context.Context, caller models.Caller) ([]*models.Dashboard, error) {
	s.lastCaller = caller
	s.templateList = true
	return s.templates, s.err
}

func (s *stubDashboardService) GetDashboard(_ context.Context, caller models.Caller, id string) (*models.Dashboard, error) {
	s.lastCaller, s.lastID = caller, id
	return s.dashboard, s.err
}

func (s *stubDashboardService) CreateDashboard(_ context.Context, caller models.Caller, req dto.CreateDashboardRequest) (*models.Dashboard, error) {
	s.lastCaller, s.lastCreate = caller, req
	return s.dashboard, s.err
}

func (s *stubDashboardService) UpdateDashboard(_ context.Context, caller models.Caller, id string, req dto.UpdateDashboardRequest) (*models.Dashboard, error) {
	s.lastCaller, s.lastID, s.lastUpdate = caller, id, req
	return s.dashboard, s.err
}

func (s *stubDashboardService) DeleteDashboard(_ context.Context, caller models.Caller, id string) error {
	s.lastCaller, s.lastID = caller, id
	return s.err
}

func (s *stubDashboardService) CreateFromTemplate(_ context.Context, caller models.Caller, templateID string) (*models.Dashboard, error) {
	s.lastCaller, s.lastID = caller, templateID
	return s.dashboard, s.err
}

func (s *stubDashboardService) Catalog() []dto.WidgetKindInfo {
	return []dto.WidgetKindInfo{{Kind: models.KindMetric, Backends: []models.Backend{models.BackendNone}}}
}

// --- Tests ---

func TestListDashboards_Summaries(t *testing.T) {
	svc := &stubDashboardService{dashboards: []*models.Dashboard{
		{ID: "d1", Name: "Sales", Widgets: make([]models.Widget, 3)},
	}}
	resp := &stubResponseHandler{}
	h := NewDashboardHandlers(&Deps{ResponseHandler: resp, DashboardSvc: svc})

	req := withCaller(httptest.NewRequest(http.MethodGet, "/dashboards", nil), member)
	h.ListDashboards(httptest.NewRecorder(), req)

	if !resp.writeSuccessCalled || resp.writeSuccessStatus != http.StatusOK {
		t.Fatalf("expected WriteSuccess 200, got called=%v status=%d", resp.writeSuccessCalled, resp.writeSuccessStatus)
	}
	got, ok := resp.writeSuccessData.([]dto.DashboardSummary)
	if !ok || len(got) != 1 || got[0].WidgetCount != 3 {
		t.Fatalf("unexpected summaries %#v", resp.writeSuccessData)
	}
	if svc.lastCaller.UID != "u1" {
		t.Errorf("expected caller from context, got %+v", svc.lastCaller)
	}
}

func TestListDashboards_ShowTemplates(t *testing.T) {
	svc := &stubDashboardService{templates: []*models.Dashboard{{ID: "t1", IsTemplate: true}}}
	resp := &stubResponseHandler{}
	h := NewDashboardHandlers(&Deps{ResponseHandler: resp, DashboardSvc: svc})

	req := withCaller(httptest.NewRequest(http.MethodGet, "/dashboards?show_templates=true", nil), member)
	h.ListDashboards(httptest.NewRecorder(), req)

	if !svc.templateList {
		t.Fatal("expected templates to be listed")
	}
	got := resp.writeSuccessData.([]dto.DashboardSummary)
	if len(got) != 1 || !got[0].IsTemplate {
		t.Errorf("unexpected templates %#v", got)
	}
}

func TestGetDashboard_PassesID(t *testing.T) {
	svc := &stubDashboardService{dashboard: &models.Dashboard{ID: "d1"}}
	resp := &stubResponseHandler{}
	h := NewDashboardHandlers(&Deps{ResponseHandler: resp, DashboardSvc: svc})

	req := httptest.NewRequest(http.MethodGet, "/dashboards/d1", nil)
	req = withChiParams(withCaller(req, member), "dashboardId", "d1")
	h.GetDashboard(httptest.NewRecorder(), req)

	if svc.lastID != "d1" || !resp.writeSuccessCalled {
		t.Fatalf("expected d1 to be fetched, got id=%q called=%v", svc.lastID, resp.writeSuccessCalled)
	}
}

func TestGetDashboard_ServiceError(t *testing.T) {
	svc := &stubDashboardService{err: errs.NewNotFoundError("dashboard not found")}
	resp := &stubResponseHandler{}
	h := NewDashboardHandlers(&Deps{ResponseHandler: resp, DashboardSvc: svc})

	req := httptest.NewRequest(http.MethodGet, "/dashboards/missing", nil)
	req = withChiParams(withCaller(req, member), "dashboardId", "missing")
	h.GetDashboard(httptest.NewRecorder(), req)

	var nf *errs.NotFoundError
	if !resp.handleErrorCalled || !errors.As(resp.handleError, &nf) {
		t.Fatalf("expected NotFoundError, got %v", resp.handleError)
	}
}

func TestCreateDashboard_OK(t *testing.T) {
	svc := &stubDashboardService{dashboard: &models.Dashboard{ID: "d1"}}
	resp := &stubResponseHandler{}
	h := NewDashboardHandlers(&Deps{ResponseHandler: resp, DashboardSvc: svc})

	body := `{"name":"Sales","widgets":[{"kind":"metric","dataSource":"total_revenue","config":{}}]}`
	req := withCaller(httptest.NewRequest(http.MethodPost, "/dashboards", strings.NewReader(body)), member)
	h.CreateDashboard(httptest.NewRecorder(), req)

	if resp.writeSuccessStatus != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.writeSuccessStatus)
	}
	if svc.lastCreate.Name != "Sales" || len(svc.lastCreate.Widgets) != 1 || svc.lastCreate.Widgets[0].Kind != models.KindMetric {
		t.Errorf("unexpected request passed to service: %+v", svc.lastCreate)
	}
}

func TestCreateDashboard_InvalidJSON(t *testing.T) {
	svc := &stubDashboardService{}
	resp := &stubResponseHandler{}
	h := NewDashboardHandlers(&Deps{ResponseHandler: resp, DashboardSvc: svc})

	req := withCaller(httptest.NewRequest(http.MethodPost, "/dashboards", strings.NewReader("not-json")), member)
	h.CreateDashboard(httptest.NewRecorder(), req)

	var ve *errs.ValidationError
	if !resp.handleErrorCalled || !errors.As(resp.handleError, &ve) {
		t.Fatalf("expected ValidationError on invalid JSON, got %v", resp.handleError)
	}
	if resp.writeSuccessCalled {
		t.Fatal("WriteSuccess should not be called on invalid JSON")
	}
}

func TestUpdateDashboard_Partial(t *testing.T) {
	svc := &stubDashboardService{dashboard: &models.Dashboard{ID: "d1"}}
	resp := &stubResponseHandler{}
	h := NewDashboardHandlers(&Deps{ResponseHandler: resp, DashboardSvc: svc})

	body := `{"name":"Renamed"}`
	req := httptest.NewRequest(http.MethodPatch, "/dashboards/d1", strings.NewReader(body))
	req = withChiParams(withCaller(req, member), "dashboardId", "d1")
	h.UpdateDashboard(httptest.NewRecorder(), req)

	if svc.lastUpdate.Name == nil || *svc.lastUpdate.Name != "Renamed" {
		t.Fatalf("expected name in update, got %+v", svc.lastUpdate)
	}
	if svc.lastUpdate.Widgets != nil || svc.lastUpdate.Description != nil {
		t.Error("absent fields must stay nil")
	}
}

func TestUpdateDashboard_MakeTemplate(t *testing.T) {
	svc := &stubDashboardService{dashboard: &models.Dashboard{ID: "d1"}}
	resp := &stubResponseHandler{}
	h := NewDashboardHandlers(&Deps{ResponseHandler: resp, DashboardSvc: svc})

	body := `{"isTemplate":true,"globalFilters":{"source":"google"}}`
	req := httptest.NewRequest(http.MethodPatch, "/dashboards/d1", strings.NewReader(body))
	req = withChiParams(withCaller(req, admin), "dashboardId", "d1")
	h.UpdateDashboard(httptest.NewRecorder(), req)

	if svc.lastUpdate.IsTemplate == nil || !*svc.lastUpdate.IsTemplate {
		t.Fatalf("expected isTemplate in update, got %+v", svc.lastUpdate)
	}
	if svc.lastUpdate.GlobalFilters == nil || (*svc.lastUpdate.GlobalFilters)["source"] != "google" {
		t.Errorf("expected global filters in update, got %v", svc.lastUpdate.GlobalFilters)
	}
}

func TestDeleteDashboard_ReadOnly(t *testing.T) {
	svc := &stubDashboardService{err: errs.NewReadOnlyError("dashboard is locked")}
	resp := &stubResponseHandler{}
	h := NewDashboardHandlers(&Deps{ResponseHandler: resp, DashboardSvc: svc})

	req := httptest.NewRequest(http.MethodDelete, "/dashboards/d1", nil)
	req = withChiParams(withCaller(req, member), "dashboardId", "d1")
	h.DeleteDashboard(httptest.NewRecorder(), req)

	if !resp.handleErrorCalled || svc.lastID != "d1" {
		t.Fatalf("expected HandleError for d1, got called=%v id=%q", resp.handleErrorCalled, svc.lastID)
	}
}

func TestCreateFromTemplate_Created(t *testing.T) {
	svc := &stubDashboardService{dashboard: &models.Dashboard{ID: "clone"}}
	resp := &stubResponseHandler{}
	h := NewDashboardHandlers(&Deps{ResponseHandler: resp, DashboardSvc: svc})

	req := httptest.NewRequest(http.MethodPost, "/dashboards/t1/create-from-template", nil)
	req = withChiParams(withCaller(req, member), "dashboardId", "t1")
	h.CreateFromTemplate(httptest.NewRecorder(), req)

	if resp.writeSuccessStatus != http.StatusCreated || svc.lastID != "t1" {
		t.Fatalf("expected 201 for template t1, got status=%d id=%q", resp.writeSuccessStatus, svc.lastID)
	}
}

func TestGetWidgetKinds(t *testing.T) {
	resp := &stubResponseHandler{}
	h := NewDashboardHandlers(&Deps{ResponseHandler: resp, DashboardSvc: &stubDashboardService{}})

	h.GetWidgetKinds(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/dashboards/widget-kinds", nil))

	catalog, ok := resp.writeSuccessData.([]dto.WidgetKindInfo)
	if !ok || len(catalog) == 0 {
		t.Fatalf("expected catalog, got %T", resp.writeSuccessData)
	}
}

func TestDashboardRoutes_TemplatesBeforeID(t *testing.T) {
	svc := &stubDashboardService{}
	resp := &stubResponseHandler{}
	h := NewDashboardHandlers(&Deps{ResponseHandler: resp, DashboardSvc: svc})

	req := withCaller(httptest.NewRequest(http.MethodGet, "/templates", nil), member)
	h.DashboardRoutes().ServeHTTP(httptest.NewRecorder(), req)

	if !svc.templateList || svc.lastID != "" {
		t.Fatalf("expected /templates to reach ListTemplates, got id=%q", svc.lastID)
	}
}
