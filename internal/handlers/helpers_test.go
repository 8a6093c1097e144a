package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/GregMSThompson/dashboard-service/internal/middleware"
	"github.com/GregMSThompson/dashboard-service/internal/models"
)

// --- Stub response handler ---

type stubResponseHandler struct {
	writeSuccessCalled bool
	writeSuccessStatus int
	writeSuccessData   any

	handleErrorCalled bool
	handleError       error

	writeErrorCalled bool
	writeErrorStatus int
	writeErrorCode   string
}

func (s *stubResponseHandler) WriteSuccess(w http.ResponseWriter, _ *http.Request, status int, data any) {
	s.writeSuccessCalled = true
	s.writeSuccessStatus = status
	s.writeSuccessData = data

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"success":true}`))
}

func (s *stubResponseHandler) WriteError(w http.ResponseWriter, _ *http.Request, status int, code, _ string) {
	s.writeErrorCalled = true
	s.writeErrorStatus = status
	s.writeErrorCode = code
	w.WriteHeader(status)
}

func (s *stubResponseHandler) HandleError(w http.ResponseWriter, _ *http.Request, err error) {
	s.handleErrorCalled = true
	s.handleError = err
	w.WriteHeader(http.StatusInternalServerError)
}

func (s *stubResponseHandler) reset() {
	*s = stubResponseHandler{}
}

var (
	member = models.Caller{UID: "u1", OrganizationID: "org1", Roles: []string{"sales"}}
	admin  = models.Caller{UID: "a1", OrganizationID: "org1", Admin: true}
)

// withCaller injects an authenticated caller into the request context.
func withCaller(r *http.Request, c models.Caller) *http.Request {
	return r.WithContext(middleware.WithCaller(r.Context(), c))
}

// withChiParams injects chi URL parameters, given as key/value pairs.
func withChiParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}
