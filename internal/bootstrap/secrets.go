package bootstrap

import (
	"context"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"golang.org/x/oauth2"

	"github.com/GregMSThompson/dashboard-service/internal/store"
)

func InitSecretManager(ctx context.Context) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx)
}

// LoadServiceToken reads the analytics service credential from Secret
// Manager. Outbound analytics and option calls authenticate with it instead
// of the caller's own token.
func LoadServiceToken(ctx context.Context, client *secretmanager.Client, projectID, secretID string) (oauth2.TokenSource, error) {
	token, err := store.NewSecretStore(client, projectID).Latest(ctx, secretID)
	if err != nil {
		return nil, err
	}
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: strings.TrimSpace(token),
		TokenType:   "Bearer",
	}), nil
}
