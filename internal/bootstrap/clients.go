package bootstrap

import (
	"context"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
)

// InitFirestore connects to the project's default database. The client
// honours FIRESTORE_EMULATOR_HOST on its own.
func InitFirestore(ctx context.Context, projectID string) (*firestore.Client, error) {
	return firestore.NewClient(ctx, projectID)
}

// InitFirebase returns the auth client used to verify caller ID tokens.
// An empty projectID lets the SDK discover it from the environment.
func InitFirebase(ctx context.Context, projectID string) (*auth.Client, error) {
	var conf *firebase.Config
	if projectID != "" {
		conf = &firebase.Config{ProjectID: projectID}
	}
	app, err := firebase.NewApp(ctx, conf)
	if err != nil {
		return nil, err
	}
	return app.Auth(ctx)
}
