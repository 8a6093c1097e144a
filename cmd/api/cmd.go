package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/oauth2"

	"github.com/GregMSThompson/dashboard-service/internal/bootstrap"
	analyticsclient "github.com/GregMSThompson/dashboard-service/internal/client/analytics"
	optionsclient "github.com/GregMSThompson/dashboard-service/internal/client/options"
	"github.com/GregMSThompson/dashboard-service/internal/config"
	"github.com/GregMSThompson/dashboard-service/internal/controls"
	"github.com/GregMSThompson/dashboard-service/internal/handlers"
	"github.com/GregMSThompson/dashboard-service/internal/query"
	"github.com/GregMSThompson/dashboard-service/internal/response"
	"github.com/GregMSThompson/dashboard-service/internal/router"
	"github.com/GregMSThompson/dashboard-service/internal/services"
	"github.com/GregMSThompson/dashboard-service/internal/session"
	"github.com/GregMSThompson/dashboard-service/internal/store"
	"github.com/GregMSThompson/dashboard-service/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

var exit = os.Exit

// exitOnError logs err, runs closers in order and exits. Deferred calls do
// not run after os.Exit, so anything holding a client goes in closers.
func exitOnError(message string, err error, log *slog.Logger, closers ...func()) {
	if err == nil {
		return
	}
	log.Error(message, "error", err)
	for _, c := range closers {
		c()
	}
	exit(1)
}

func main() {
	// bootstrap
	cfg := config.New()
	bs, err := bootstrap.Run(cfg)
	exitOnError("bootstrap failed", err, bs.Log, bs.Close)
	defer bs.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// stores
	dstore := store.NewDashboardStore(bs.Firestore)
	mstore := store.NewCustomMetricStore(bs.Firestore)

	// services
	dserv := services.NewDashboardService(dstore)
	mserv := services.NewCustomMetricService(mstore, dstore)

	// sessions
	sessions := session.NewManager(session.Deps{
		Dashboards:    dserv,
		CustomMetrics: mserv,
		Analytics: func(ts oauth2.TokenSource) query.Fetcher {
			return analyticsclient.NewAdapter(ctx, cfg.AnalyticsURL, ts)
		},
		Options: func(ts oauth2.TokenSource, organizationID string) controls.OptionLookup {
			return optionsclient.NewAdapter(ctx, cfg.OptionsURL, organizationID, ts)
		},
		ServiceToken: bs.ServiceToken,
		IdleTTL:      cfg.SessionIdleTTL,
	})
	defer sessions.Shutdown()
	go sessions.Run(logger.ToContext(ctx, bs.Log))

	// response handler
	rh := response.New(bs.Log)

	// dependancies
	deps := new(handlers.Deps)
	deps.Log = bs.Log
	deps.ResponseHandler = rh
	deps.Firebase = bs.Firebase
	deps.DashboardSvc = dserv
	deps.CustomMetricSvc = mserv
	deps.Sessions = sessions

	// router
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	idle := make(chan struct{})
	go func() {
		defer close(idle)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			bs.Log.Error("server shutdown failed", "error", err)
		}
	}()

	bs.Log.Info("server listening", "port", cfg.Port)
	err = srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		<-idle
		err = nil
	}
	exitOnError("server start failed", err, bs.Log, stop, sessions.Shutdown, bs.Close)
}
