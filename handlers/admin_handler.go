package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/auth-control-plane/backend/internal/observability"
	"github.com/upb/auth-control-plane/backend/middleware"
	"github.com/upb/auth-control-plane/backend/models"
	"github.com/upb/auth-control-plane/backend/utils"
)

// CreateUserRequest is the request body for POST /admin/users
type CreateUserRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	Password string          `json:"password" validate:"required"`
	Role     models.UserRole `json:"role" validate:"required,oneof=standard admin guest"`
}

// ChangeRoleRequest is the request body for PATCH /admin/users/{id}/role
type ChangeRoleRequest struct {
	Role models.UserRole `json:"role" validate:"required,oneof=standard admin guest"`
}

// DeleteUsersResponse reports how many accounts a pattern delete removed
type DeleteUsersResponse struct {
	Deleted int64 `json:"deleted"`
}

// UserAdministrator defines the account operations behind the admin routes
type UserAdministrator interface {
	// List returns users ordered by creation time, newest first
	List(ctx context.Context, limit, offset int) ([]*models.User, error)

	// RegisterWithRole creates an account with an explicit role
	RegisterWithRole(ctx context.Context, email, password string, role models.UserRole) (*models.User, error)

	// DeleteByEmailPattern removes non-admin users matching the pattern
	DeleteByEmailPattern(ctx context.Context, pattern string) (int64, error)

	// ChangeRole updates a user's role
	ChangeRole(ctx context.Context, id uuid.UUID, role models.UserRole) error
}

// AdminHandler handles the role-gated user administration routes
type AdminHandler struct {
	users   UserAdministrator
	audit   AuditRecorder
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(users UserAdministrator, auditor AuditRecorder, metrics *observability.Metrics, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		users:   users,
		audit:   auditor,
		metrics: metrics,
		logger:  logger,
	}
}

// HandleListUsers handles GET /admin/users
func (h *AdminHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequestID(ctx, h.logger)

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	users, err := h.users.List(ctx, limit, offset)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	responses := make([]UserResponse, len(users))
	for i, u := range users {
		responses[i] = userToResponse(u)
	}

	logger.Debug("listed users", zap.Int("count", len(responses)))

	respondJSON(w, http.StatusOK, responses)
}

// HandleCreateUser handles POST /admin/users
func (h *AdminHandler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequestID(ctx, h.logger)

	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("failed to parse create user request", zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	user, err := h.users.RegisterWithRole(ctx, req.Email, req.Password, req.Role)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	h.recordAdminAction(r, "create_user", map[string]interface{}{
		"user_id": user.ID.String(),
		"email":   user.Email,
		"role":    string(user.Role),
	})

	logger.Info("admin created user",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)))

	respondJSON(w, http.StatusCreated, userToResponse(user))
}

// HandleDeleteUsersByPattern handles DELETE /admin/users?pattern=
func (h *AdminHandler) HandleDeleteUsersByPattern(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequestID(ctx, h.logger)

	pattern := r.URL.Query().Get("pattern")

	deleted, err := h.users.DeleteByEmailPattern(ctx, pattern)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	h.recordAdminAction(r, "delete_users_by_pattern", map[string]interface{}{
		"pattern": pattern,
		"deleted": deleted,
	})

	logger.Info("admin deleted users by pattern",
		zap.String("pattern", pattern),
		zap.Int64("deleted", deleted))

	respondJSON(w, http.StatusOK, DeleteUsersResponse{Deleted: deleted})
}

// HandleChangeRole handles PATCH /admin/users/{id}/role
func (h *AdminHandler) HandleChangeRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequestID(ctx, h.logger)

	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid user ID format", nil)
		return
	}

	var req ChangeRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("failed to parse change role request", zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	if err := h.users.ChangeRole(ctx, userID, req.Role); err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	h.recordAdminAction(r, "change_role", map[string]interface{}{
		"user_id": userID.String(),
		"role":    string(req.Role),
	})

	logger.Info("admin changed user role",
		zap.String("user_id", userID.String()),
		zap.String("role", string(req.Role)))

	utils.WriteNoContent(w)
}

// recordAdminAction emits the audit entry and counter for one admin
// operation. The actor is taken from the authenticated request context.
func (h *AdminHandler) recordAdminAction(r *http.Request, operation string, details map[string]interface{}) {
	h.metrics.AdminAction()

	actor := middleware.GetUserFromContext(r.Context())
	if actor == nil {
		return
	}
	h.audit.AdminAction(actor, operation, details, requestMeta(r))
}

// queryInt reads an integer query parameter, falling back on absent or
// malformed values.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
