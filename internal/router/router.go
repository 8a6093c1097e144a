package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/GregMSThompson/dashboard-service/internal/handlers"
	"github.com/GregMSThompson/dashboard-service/internal/middleware"
)

func NewRouter(deps *handlers.Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewLoggerMiddleware(deps.Log).LoggerMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	dh := handlers.NewDashboardHandlers(deps)
	sh := handlers.NewSessionHandlers(deps)
	mh := handlers.NewCustomMetricHandlers(deps)
	auth := middleware.NewMiddleware(deps.Firebase)

	r.Group(func(r chi.Router) {
		r.Use(auth.FirebaseAuth)
		r.Mount("/dashboards", dh.DashboardRoutes())
		r.Mount("/custom-metrics", mh.CustomMetricRoutes())
		r.Mount("/sessions", sh.SessionRoutes())
	})
	return r
}
