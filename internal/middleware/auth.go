package middleware

import (
	"context"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"

	"github.com/GregMSThompson/dashboard-service/internal/models"
)

// TokenVerifier verifies Firebase ID tokens; *auth.Client implements it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

type Middleware struct {
	AuthClient TokenVerifier
}

func NewMiddleware(client TokenVerifier) *Middleware {
	return &Middleware{AuthClient: client}
}

// context key
type contextKey string

const (
	UIDKey    contextKey = "uid"
	CallerKey contextKey = "caller"
)

// Custom claims carried by the ID token.
const (
	claimOrganization = "org"
	claimRoles        = "roles"
	claimAdmin        = "admin"
)

// Main middleware
func (m *Middleware) FirebaseAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		header := r.Header.Get("Authorization")
		if header == "" {
			http.Error(w, "missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			http.Error(w, "invalid Authorization header", http.StatusUnauthorized)
			return
		}

		tokenStr := parts[1]

		// Verify ID Token
		token, err := m.AuthClient.VerifyIDToken(r.Context(), tokenStr)
		if err != nil {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}

		caller := callerFromToken(token, tokenStr)
		ctx := context.WithValue(r.Context(), UIDKey, token.UID)
		ctx = context.WithValue(ctx, CallerKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerFromToken(token *auth.Token, raw string) models.Caller {
	c := models.Caller{UID: token.UID, Token: raw}
	if org, ok := token.Claims[claimOrganization].(string); ok {
		c.OrganizationID = org
	}
	if admin, ok := token.Claims[claimAdmin].(bool); ok {
		c.Admin = admin
	}
	switch roles := token.Claims[claimRoles].(type) {
	case []any:
		for _, r := range roles {
			if s, ok := r.(string); ok && s != "" {
				c.Roles = append(c.Roles, s)
			}
		}
	case string:
		if roles != "" {
			c.Roles = []string{roles}
		}
	}
	return c
}

// Helper to extract UID
func UID(ctx context.Context) string {
	uid, _ := ctx.Value(UIDKey).(string)
	return uid
}

// Caller returns the authenticated caller.
func Caller(ctx context.Context) models.Caller {
	c, _ := ctx.Value(CallerKey).(models.Caller)
	return c
}

// WithCaller stores c in ctx the way FirebaseAuth does.
func WithCaller(ctx context.Context, c models.Caller) context.Context {
	ctx = context.WithValue(ctx, UIDKey, c.UID)
	return context.WithValue(ctx, CallerKey, c)
}
