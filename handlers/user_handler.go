package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/auth-control-plane/backend/internal/observability"
	"github.com/upb/auth-control-plane/backend/models"
	"github.com/upb/auth-control-plane/backend/utils"
)

// RegisterRequest is the request body for POST /users/
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UserRegistrar defines the signup operation
type UserRegistrar interface {
	Register(ctx context.Context, email, password string) (*models.User, error)
}

// UserHandler handles self-service registration
type UserHandler struct {
	users   UserRegistrar
	audit   AuditRecorder
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users UserRegistrar, auditor AuditRecorder, metrics *observability.Metrics, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		users:   users,
		audit:   auditor,
		metrics: metrics,
		logger:  logger,
	}
}

// HandleRegister handles POST /users/.
// New accounts always get the standard role.
func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequestID(ctx, h.logger)

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("failed to parse registration request", zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	user, err := h.users.Register(ctx, req.Email, req.Password)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	h.metrics.UserRegistration()
	h.audit.RegistrationSucceeded(user, requestMeta(r))

	logger.Info("user registered",
		zap.String("user_id", user.ID.String()),
		zap.String("email", user.Email))

	respondJSON(w, http.StatusOK, userToResponse(user))
}
