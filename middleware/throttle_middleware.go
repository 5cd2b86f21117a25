package middleware

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/auth-control-plane/backend/internal/observability"
	"github.com/upb/auth-control-plane/backend/services"
	"github.com/upb/auth-control-plane/backend/utils"
)

// Throttler decides whether a request may proceed
type Throttler interface {
	Allow(ctx context.Context, scope, key string) error
}

// ThrottleMiddleware limits request rates on the credential endpoints
type ThrottleMiddleware struct {
	throttler Throttler
	logger    *zap.Logger
}

// NewThrottleMiddleware creates a new ThrottleMiddleware
func NewThrottleMiddleware(throttler Throttler, logger *zap.Logger) *ThrottleMiddleware {
	return &ThrottleMiddleware{
		throttler: throttler,
		logger:    logger,
	}
}

// Limit restricts request rates per client IP for the given scope. A failed
// limit check is logged but does not block the request.
func (m *ThrottleMiddleware) Limit(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := m.throttler.Allow(r.Context(), scope, ClientIP(r)); err != nil {
				if services.IsRateLimitError(err) {
					_ = utils.WriteTooManyRequests(w, services.GetErrorMessage(err), nil)
					return
				}
				observability.WithRequestID(r.Context(), m.logger).
					Error("throttle check failed", zap.Error(err))
			}
			next.ServeHTTP(w, r)
		})
	}
}
