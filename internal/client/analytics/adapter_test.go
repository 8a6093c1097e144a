package analyticsclient

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2"

	"github.com/GregMSThompson/dashboard-service/internal/dto"
	"github.com/GregMSThompson/dashboard-service/internal/errs"
	"github.com/GregMSThompson/dashboard-service/pkg/helpers"
)

func token(s string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: s, TokenType: "Bearer"})
}

func TestQuery_SendsParamsAndDecodesMetric(t *testing.T) {
	var gotAuth string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": {"value": 1250, "trend": 4.5, "previousValue": 1200}}`))
	}))
	defer srv.Close()

	a := NewAdapter(helpers.TestCtx(), srv.URL+"/api/analytics/query", token("tok"))
	p, err := a.Query(helpers.TestCtx(), dto.QueryRequest{
		Source:    "total_revenue",
		StartDate: "2026-10-01",
		EndDate:   "2026-10-18",
		BranchID:  "4",
		Filters:   map[string]string{"rep_id": "9"},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("expected bearer token, got %q", gotAuth)
	}
	want := map[string]string{"source": "total_revenue", "start_date": "2026-10-01", "end_date": "2026-10-18", "branch_id": "4", "f_rep_id": "9"}
	for k, v := range want {
		if got := gotQuery[k]; len(got) != 1 || got[0] != v {
			t.Errorf("param %s = %v, want %s", k, got, v)
		}
	}
	if p.Metric == nil || p.Metric.Value != 1250 || p.Metric.Trend == nil || *p.Metric.Trend != 4.5 {
		t.Errorf("unexpected payload %+v", p)
	}
}

func TestQuery_List(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [{"name": "google", "value": 3}, {"name": "referral", "value": 1}]}`))
	}))
	defer srv.Close()

	p, err := NewAdapter(helpers.TestCtx(), srv.URL, token("tok")).Query(helpers.TestCtx(), dto.QueryRequest{Source: "leads_by_source"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(p.Items) != 2 || p.Items[0]["name"] != "google" {
		t.Errorf("unexpected items %+v", p.Items)
	}
}

func TestQuery_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		message   string
		transient bool
	}{
		{"server error", http.StatusBadGateway, `{"error": "warehouse offline"}`, "warehouse offline", true},
		{"bad request", http.StatusBadRequest, `{"error": "unknown source"}`, "unknown source", false},
		{"no body", http.StatusServiceUnavailable, ``, "analytics service returned 503", true},
		{"error in ok envelope", http.StatusOK, `{"error": "query failed"}`, "query failed", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewAdapter(helpers.TestCtx(), srv.URL, token("tok")).Query(helpers.TestCtx(), dto.QueryRequest{Source: "x"})
			var ext *errs.ExternalServiceError
			if !errors.As(err, &ext) {
				t.Fatalf("expected ExternalServiceError, got %v", err)
			}
			if ext.Message != tt.message || ext.Transient != tt.transient {
				t.Errorf("got message %q transient %v", ext.Message, ext.Transient)
			}
		})
	}
}

func TestQuery_NoCredentials(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()

	_, err := NewAdapter(helpers.TestCtx(), srv.URL, nil).Query(helpers.TestCtx(), dto.QueryRequest{Source: "x"})
	if !errors.Is(err, errs.ErrNoCredentials) {
		t.Errorf("expected ErrNoCredentials, got %v", err)
	}
	if called {
		t.Error("no request should be sent without credentials")
	}
}
