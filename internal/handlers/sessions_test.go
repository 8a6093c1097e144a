package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"golang.org/x/oauth2"

	"github.com/GregMSThompson/dashboard-service/internal/controls"
	"github.com/GregMSThompson/dashboard-service/internal/dto"
	"github.com/GregMSThompson/dashboard-service/internal/errs"
	"github.com/GregMSThompson/dashboard-service/internal/filters"
	"github.com/GregMSThompson/dashboard-service/internal/models"
	"github.com/GregMSThompson/dashboard-service/internal/query"
	"github.com/GregMSThompson/dashboard-service/internal/session"
)

// --- Stubs behind a real session manager ---

type sessionDashboards struct {
	mu        sync.Mutex
	dashboard *models.Dashboard
	saves     int
}

func (s *sessionDashboards) GetDashboard(_ context.Context, _ models.Caller, id string) (*models.Dashboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dashboard.ID != id {
		return nil, errs.NewNotFoundError("dashboard not found")
	}
	return s.dashboard.Clone(), nil
}

func (s *sessionDashboards) SaveWidgets(_ context.Context, _ models.Caller, _ string, widgets []models.Widget) (*models.Dashboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	d := s.dashboard.Clone()
	d.Widgets = widgets
	s.dashboard = d
	return d.Clone(), nil
}

func (s *sessionDashboards) CreateFromTemplate(_ context.Context, _ models.Caller, _ string) (*models.Dashboard, error) {
	return nil, errs.NewNotFoundError("template not found")
}

type constantFetcher struct{}

func (constantFetcher) Query(_ context.Context, req dto.QueryRequest) (dto.Payload, error) {
	if req.Source == "leads_by_source" {
		return dto.Payload{Items: []map[string]any{{"name": "google", "value": 3.0}}}, nil
	}
	return dto.Payload{Metric: &dto.MetricData{Value: 42}}, nil
}

type noOptions struct{}

func (noOptions) People(context.Context) ([]dto.Option, error)    { return nil, nil }
func (noOptions) Branches(context.Context) ([]dto.Option, error)  { return nil, nil }
func (noOptions) Customers(context.Context) ([]dto.Option, error) { return nil, nil }

func leadsDashboard() *models.Dashboard {
	breakdown := models.DefaultConfig(models.KindBreakdown)
	breakdown.Click = &models.ClickThrough{Enabled: true, TargetKey: filters.KeySource}
	return &models.Dashboard{
		ID:             "d1",
		OrganizationID: "org1",
		Name:           "Leads",
		Widgets: []models.Widget{
			{ID: "revenue", Title: "Revenue", Kind: models.KindMetric, DataSource: "total_revenue", Config: models.DefaultConfig(models.KindMetric)},
			{ID: "sources", Title: "Sources", Kind: models.KindBreakdown, DataSource: "leads_by_source", Backend: models.BackendRecharts, Config: breakdown},
		},
	}
}

type sessionHarness struct {
	h    *sessionHandlers
	resp *stubResponseHandler
	mgr  *session.Manager
	dash *sessionDashboards
}

func newSessionHarness(t *testing.T) *sessionHarness {
	t.Helper()
	dash := &sessionDashboards{dashboard: leadsDashboard()}
	mgr := session.NewManager(session.Deps{
		Dashboards: dash,
		Analytics:  func(oauth2.TokenSource) query.Fetcher { return constantFetcher{} },
		Options:    func(oauth2.TokenSource, string) controls.OptionLookup { return noOptions{} },
	})
	t.Cleanup(mgr.Shutdown)
	resp := &stubResponseHandler{}
	return &sessionHarness{
		h:    NewSessionHandlers(&Deps{ResponseHandler: resp, Sessions: mgr}),
		resp: resp,
		mgr:  mgr,
		dash: dash,
	}
}

// do runs one handler with a fresh stub state.
func (sh *sessionHarness) do(handler http.HandlerFunc, method, target, body string, caller models.Caller, params ...string) {
	sh.resp.reset()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	req = withChiParams(withCaller(req, caller), params...)
	handler(httptest.NewRecorder(), req)
}

func (sh *sessionHarness) open(t *testing.T, readOnly bool) session.View {
	t.Helper()
	body := `{"dashboardId":"d1"}`
	if readOnly {
		body = `{"dashboardId":"d1","readOnly":true}`
	}
	sh.do(sh.h.OpenSession, http.MethodPost, "/sessions?settle=true", body, member)
	if sh.resp.writeSuccessStatus != http.StatusCreated {
		t.Fatalf("expected 201 on open, got %d (err %v)", sh.resp.writeSuccessStatus, sh.resp.handleError)
	}
	return sh.view(t)
}

func (sh *sessionHarness) view(t *testing.T) session.View {
	t.Helper()
	v, ok := sh.resp.writeSuccessData.(session.View)
	if !ok {
		t.Fatalf("expected session.View, got %T (err %v)", sh.resp.writeSuccessData, sh.resp.handleError)
	}
	return v
}

// --- Tests ---

func TestOpenSession_SettledView(t *testing.T) {
	sh := newSessionHarness(t)
	v := sh.open(t, false)

	if v.ID == "" || v.DashboardID != "d1" || len(v.Widgets) != 2 {
		t.Fatalf("unexpected view %+v", v)
	}
	for _, w := range v.Widgets {
		if w.State == nil || w.State.Status != query.StatusReady {
			t.Errorf("expected %s to be ready, got %+v", w.Widget.ID, w.State)
		}
	}
}

func TestOpenSession_UnknownDashboard(t *testing.T) {
	sh := newSessionHarness(t)
	sh.do(sh.h.OpenSession, http.MethodPost, "/sessions", `{"dashboardId":"nope"}`, member)

	var nf *errs.NotFoundError
	if !errors.As(sh.resp.handleError, &nf) {
		t.Fatalf("expected NotFoundError, got %v", sh.resp.handleError)
	}
	if sh.mgr.Len() != 0 {
		t.Error("no session should be registered")
	}
}

func TestGetSession_OtherUser(t *testing.T) {
	sh := newSessionHarness(t)
	v := sh.open(t, false)

	sh.do(sh.h.GetSession, http.MethodGet, "/sessions/"+v.ID, "", admin, "sessionId", v.ID)

	var nf *errs.NotFoundError
	if !errors.As(sh.resp.handleError, &nf) {
		t.Fatalf("expected other users to get NotFoundError, got %v", sh.resp.handleError)
	}
}

func TestApplyAndClearFilter(t *testing.T) {
	sh := newSessionHarness(t)
	id := sh.open(t, false).ID

	sh.do(sh.h.ApplyFilter, http.MethodPut, "/sessions/x/filters/branch_id?settle=true", `{"value":7}`, member,
		"sessionId", id, "key", filters.KeyBranch)
	v := sh.view(t)
	if got, ok := v.Filters.Get(filters.KeyBranch); !ok || !got.Equal(filters.Number(7)) {
		t.Fatalf("expected branch filter 7, got %v", got)
	}

	sh.do(sh.h.ClearFilter, http.MethodDelete, "/sessions/x/filters/branch_id", "", member,
		"sessionId", id, "key", filters.KeyBranch)
	if sh.view(t).Filters.Len() != 0 {
		t.Error("expected filter to be cleared")
	}
}

func TestApplyFilter_InvalidBody(t *testing.T) {
	sh := newSessionHarness(t)
	id := sh.open(t, false).ID

	sh.do(sh.h.ApplyFilter, http.MethodPut, "/sessions/x/filters/source", "{", member,
		"sessionId", id, "key", filters.KeySource)

	var ve *errs.ValidationError
	if !errors.As(sh.resp.handleError, &ve) {
		t.Fatalf("expected ValidationError, got %v", sh.resp.handleError)
	}
}

func TestSelect_AppliesClickThrough(t *testing.T) {
	sh := newSessionHarness(t)
	id := sh.open(t, true)

	sh.do(sh.h.Select, http.MethodPost, "/sessions/x/widgets/sources/select", `{"name":"google","value":3}`, member,
		"sessionId", id.ID, "widgetId", "sources")

	res, ok := sh.resp.writeSuccessData.(selectResponse)
	if !ok || !res.Applied || res.Selection == nil {
		t.Fatalf("expected applied selection, got %#v (err %v)", sh.resp.writeSuccessData, sh.resp.handleError)
	}
	if res.Selection.Key != filters.KeySource {
		t.Errorf("expected source key, got %q", res.Selection.Key)
	}
	if got, _ := res.View.Filters.Get(filters.KeySource); !got.Equal(filters.String("google")) {
		t.Errorf("expected source filter google, got %v", got)
	}
}

func TestSelect_NotClickable(t *testing.T) {
	sh := newSessionHarness(t)
	id := sh.open(t, false).ID

	sh.do(sh.h.Select, http.MethodPost, "/sessions/x/widgets/revenue/select", `{"name":"x"}`, member,
		"sessionId", id, "widgetId", "revenue")

	res := sh.resp.writeSuccessData.(selectResponse)
	if res.Applied || res.View.Filters.Len() != 0 {
		t.Errorf("metric widget must not filter on click, got %+v", res)
	}
}

func TestEdit_ReadOnlySessionRefused(t *testing.T) {
	sh := newSessionHarness(t)
	id := sh.open(t, true).ID

	sh.do(sh.h.BeginEdit, http.MethodPost, "/sessions/x/edit", "", member, "sessionId", id)

	var ro *errs.ReadOnlyError
	if !errors.As(sh.resp.handleError, &ro) {
		t.Fatalf("expected ReadOnlyError, got %v", sh.resp.handleError)
	}
}

func TestEdit_AddWidgetAndSave(t *testing.T) {
	sh := newSessionHarness(t)
	id := sh.open(t, false).ID

	sh.do(sh.h.BeginEdit, http.MethodPost, "/sessions/x/edit", "", member, "sessionId", id)
	if sh.view(t).Mode == "" {
		t.Fatal("expected a mode in the view")
	}

	sh.do(sh.h.AddWidget, http.MethodPost, "/sessions/x/widgets", `{"kind":"metric","dataSource":"total_leads","title":"Leads"}`, member,
		"sessionId", id)
	if sh.resp.writeSuccessStatus != http.StatusCreated {
		t.Fatalf("expected 201 on add, got %d (err %v)", sh.resp.writeSuccessStatus, sh.resp.handleError)
	}
	v := sh.view(t)
	if len(v.Widgets) != 3 || !v.Dirty {
		t.Fatalf("expected 3 widgets and a dirty view, got %d dirty=%v", len(v.Widgets), v.Dirty)
	}

	sh.do(sh.h.Save, http.MethodPost, "/sessions/x/save", "", member, "sessionId", id)
	res, ok := sh.resp.writeSuccessData.(dashboardResponse)
	if !ok {
		t.Fatalf("expected dashboardResponse, got %T (err %v)", sh.resp.writeSuccessData, sh.resp.handleError)
	}
	if len(res.Dashboard.Widgets) != 3 || res.View.Dirty {
		t.Errorf("expected saved dashboard with 3 widgets, got %d dirty=%v", len(res.Dashboard.Widgets), res.View.Dirty)
	}
	if sh.dash.saves != 1 {
		t.Errorf("expected one save, got %d", sh.dash.saves)
	}
}

func TestCloseSession(t *testing.T) {
	sh := newSessionHarness(t)
	id := sh.open(t, false).ID

	sh.do(sh.h.CloseSession, http.MethodDelete, "/sessions/x", "", member, "sessionId", id)
	if !sh.resp.writeSuccessCalled || sh.mgr.Len() != 0 {
		t.Fatalf("expected session to be closed, sessions=%d", sh.mgr.Len())
	}

	sh.do(sh.h.GetSession, http.MethodGet, "/sessions/x", "", member, "sessionId", id)
	if !sh.resp.handleErrorCalled {
		t.Error("expected closed session to be gone")
	}
}
