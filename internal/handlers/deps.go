package handlers

import (
	"log/slog"

	"github.com/GregMSThompson/dashboard-service/internal/middleware"
	"github.com/GregMSThompson/dashboard-service/internal/response"
)

type Deps struct {
	Log             *slog.Logger
	ResponseHandler response.ResponseHandler
	Firebase        middleware.TokenVerifier
	DashboardSvc    dashboardService
	CustomMetricSvc customMetricService
	Sessions        sessionManager
}
