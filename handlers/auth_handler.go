package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/auth-control-plane/backend/internal/observability"
	"github.com/upb/auth-control-plane/backend/middleware"
	"github.com/upb/auth-control-plane/backend/models"
	"github.com/upb/auth-control-plane/backend/services"
	"github.com/upb/auth-control-plane/backend/services/audit"
	"github.com/upb/auth-control-plane/backend/utils"
)

// RefreshRequest is the request body for POST /refresh
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// TokenIssuer defines the rotation operations the auth endpoints drive
type TokenIssuer interface {
	// IssueOnLogin authenticates credentials and issues a fresh token pair
	IssueOnLogin(ctx context.Context, email, password string) (*services.TokenPair, *models.User, error)

	// Refresh rotates a presented refresh token into a new pair
	Refresh(ctx context.Context, rawRefresh string) (*services.TokenPair, *models.User, error)

	// Logout revokes all refresh tokens for the user
	Logout(ctx context.Context, user *models.User) error
}

// AuthHandler handles login, refresh, logout and the current-user endpoint
type AuthHandler struct {
	rotation TokenIssuer
	audit    AuditRecorder
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(rotation TokenIssuer, auditor AuditRecorder, metrics *observability.Metrics, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		rotation: rotation,
		audit:    auditor,
		metrics:  metrics,
		logger:   logger,
	}
}

// HandleLogin handles POST /token.
// The body is form encoded with `username` carrying the email. Unknown
// account and wrong password produce the same response.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequestID(ctx, h.logger)

	if err := r.ParseForm(); err != nil {
		logger.Warn("failed to parse login form", zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid form data", nil)
		return
	}

	email := r.PostFormValue("username")
	password := r.PostFormValue("password")

	pair, user, err := h.rotation.IssueOnLogin(ctx, email, password)
	if err != nil {
		if services.IsInvalidCredentialsError(err) {
			h.audit.LoginFailed(email, requestMeta(r))
		}
		HandleServiceError(w, err, logger)
		return
	}

	h.metrics.UserLogin()
	if user.Role == models.RoleGuest {
		h.metrics.GuestLogin()
	}
	h.audit.LoginSucceeded(user, requestMeta(r))

	logger.Info("login succeeded", zap.String("user_id", user.ID.String()))

	respondJSON(w, http.StatusOK, pair)
}

// HandleRefresh handles POST /refresh.
// A rejected token never reaches the client with the underlying cause; the
// response carries only the category message.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequestID(ctx, h.logger)

	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("failed to parse refresh request", zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	pair, user, err := h.rotation.Refresh(ctx, req.RefreshToken)
	if err != nil {
		if services.IsTokenReusedError(err) {
			h.metrics.RefreshUsage(observability.RefreshOutcomeReused)
			h.audit.ReuseDetected(reuseIdentifiers(err, requestMeta(r)))
		} else {
			h.metrics.RefreshUsage(observability.RefreshOutcomeRejected)
		}
		HandleServiceError(w, err, logger)
		return
	}

	h.metrics.RefreshUsage(observability.RefreshOutcomeRotated)
	h.audit.RefreshRotated(user, requestMeta(r))

	logger.Info("refresh token rotated", zap.String("user_id", user.ID.String()))

	respondJSON(w, http.StatusOK, pair)
}

// HandleLogout handles POST /logout. Idempotent, always 204 on success.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequestID(ctx, h.logger)

	user := middleware.GetUserFromContext(ctx)
	if user == nil {
		HandleServiceError(w, services.ErrUnauthenticated, logger)
		return
	}

	if err := h.rotation.Logout(ctx, user); err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	h.audit.LogoutCompleted(user, requestMeta(r))

	logger.Info("logout completed", zap.String("user_id", user.ID.String()))

	utils.WriteNoContent(w)
}

// HandleMe handles GET /me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		HandleServiceError(w, services.ErrUnauthenticated, observability.WithRequestID(r.Context(), h.logger))
		return
	}

	respondJSON(w, http.StatusOK, userToResponse(user))
}

// reuseIdentifiers pulls the user and rotation IDs a reuse error carries for
// the audit record. Missing or malformed details degrade to zero values.
func reuseIdentifiers(err error, meta audit.RequestMeta) (uuid.UUID, string, audit.RequestMeta) {
	details := services.GetErrorDetails(err)

	var userID uuid.UUID
	if raw, ok := details["user_id"].(string); ok {
		if parsed, parseErr := uuid.Parse(raw); parseErr == nil {
			userID = parsed
		}
	}

	rotationID, _ := details["rotation_id"].(string)

	return userID, rotationID, meta
}
