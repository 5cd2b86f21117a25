package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/auth-control-plane/backend/internal/observability"
	"github.com/upb/auth-control-plane/backend/models"
	"github.com/upb/auth-control-plane/backend/services"
	"github.com/upb/auth-control-plane/backend/utils"
)

// TokenParser decodes a signed bearer token into its claims
type TokenParser interface {
	Parse(raw string) (*services.TokenClaims, error)
}

// UserLoader resolves a token subject to a live account. Loading on every
// request means deleted accounts lose access immediately, access tokens
// are not trusted beyond their subject claim.
type UserLoader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	codec  TokenParser
	users  UserLoader
	logger *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(codec TokenParser, users UserLoader, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		codec:  codec,
		users:  users,
		logger: logger,
	}
}

// RequireAuth is a middleware that requires a valid bearer access token.
// The resolved user is stored in the request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := observability.WithRequestID(ctx, m.logger)

		token := extractBearerToken(r)
		if token == "" {
			logger.Warn("missing bearer token")
			writeUnauthenticated(w)
			return
		}

		claims, err := m.codec.Parse(token)
		if err != nil {
			logger.Warn("token validation failed", zap.Error(err))
			writeUnauthenticated(w)
			return
		}

		user, err := m.users.Get(ctx, claims.Subject)
		if err != nil {
			if services.IsNotFoundError(err) || services.IsUserGoneError(err) {
				logger.Warn("token subject no longer exists",
					zap.String("subject", claims.Subject.String()))
				writeUnauthenticated(w)
				return
			}
			logger.Error("failed to load token subject", zap.Error(err))
			_ = utils.WriteInternalServerError(w, "An internal error occurred")
			return
		}

		ctx = WithUser(ctx, user)

		logger.Debug("authentication successful",
			zap.String("user_id", user.ID.String()),
			zap.String("email", user.Email))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole is a middleware that requires the authenticated user to hold
// one of the given roles. It must be mounted after RequireAuth.
func (m *AuthMiddleware) RequireRole(roles ...models.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := observability.WithRequestID(ctx, m.logger)

			user := GetUserFromContext(ctx)
			if user == nil {
				logger.Error("user not found in context")
				writeUnauthenticated(w)
				return
			}

			if !user.HasRole(roles...) {
				logger.Warn("insufficient permissions",
					zap.String("user_id", user.ID.String()),
					zap.String("role", string(user.Role)))
				_ = utils.WriteForbidden(w, fmt.Sprintf("Operation not permitted for role '%s'.", user.Role))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeUnauthenticated writes the 401 response for a failed bearer
// authentication. The message is identical for every failure mode.
func writeUnauthenticated(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	_ = utils.WriteUnauthorized(w, "Could not validate credentials")
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
