package middleware

import (
	"context"
	"net"
	"net/http"

	"github.com/upb/auth-control-plane/backend/models"
)

// Context key type to avoid collisions
type contextKey string

// UserKey is the context key for the authenticated user
const UserKey contextKey = "user"

// GetUserFromContext retrieves the authenticated user from context
func GetUserFromContext(ctx context.Context) *models.User {
	if val := ctx.Value(UserKey); val != nil {
		if user, ok := val.(*models.User); ok {
			return user
		}
	}
	return nil
}

// WithUser adds the authenticated user to the context
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// ClientIP returns the caller address without the port. Behind a proxy the
// RealIP middleware has already rewritten RemoteAddr.
func ClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
