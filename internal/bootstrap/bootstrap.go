package bootstrap

import (
	"context"
	"log/slog"

	"cloud.google.com/go/firestore"
	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"firebase.google.com/go/v4/auth"
	"golang.org/x/oauth2"

	"github.com/GregMSThompson/dashboard-service/internal/config"
	"github.com/GregMSThompson/dashboard-service/pkg/logger"
)

type Bootstrap struct {
	Log          *slog.Logger
	Firestore    *firestore.Client
	Firebase     *auth.Client
	Secrets      *secretmanager.Client
	ServiceToken oauth2.TokenSource
}

func Run(cfg *config.Config) (*Bootstrap, error) {
	var err error
	applicationCtx := context.Background()
	bs := new(Bootstrap)

	bs.Log = logger.New(cfg.LogLevel, logger.NewCloudRunHandler)
	bs.Firestore, err = InitFirestore(applicationCtx, cfg.ProjectID)
	if err != nil {
		return bs, err
	}
	bs.Firebase, err = InitFirebase(applicationCtx, cfg.ProjectID)
	if err != nil {
		return bs, err
	}
	if cfg.AnalyticsSecret != "" {
		bs.Secrets, err = InitSecretManager(applicationCtx)
		if err != nil {
			return bs, err
		}
		bs.ServiceToken, err = LoadServiceToken(applicationCtx, bs.Secrets, cfg.ProjectID, cfg.AnalyticsSecret)
		if err != nil {
			return bs, err
		}
		bs.Log.Info("analytics service credential loaded", "secret", cfg.AnalyticsSecret)
	}

	return bs, nil
}

// Close releases the clients opened by Run.
func (bs *Bootstrap) Close() {
	if bs.Firestore != nil {
		bs.Firestore.Close()
	}
	if bs.Secrets != nil {
		bs.Secrets.Close()
	}
}
